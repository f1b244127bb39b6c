package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meshtalk",
	Short: "Headless client for meshtalk video rooms",
	Long: `Meshtalk is a command-line client for meshtalk conference rooms. It joins
a room over the signaling relay, negotiates a WebRTC mesh with every other
participant and relays chat between the room and the terminal.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		color.Red("error: %s", err.Error())
		os.Exit(1)
	}
}
