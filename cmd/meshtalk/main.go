package main

import "github.com/immxrtalbeast/meshtalk/cmd/meshtalk/cmd"

func main() {
	cmd.Execute()
}
