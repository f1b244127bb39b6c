package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pion/webrtc/v3"
	"github.com/spf13/cobra"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
	"github.com/immxrtalbeast/meshtalk/internal/media"
	"github.com/immxrtalbeast/meshtalk/internal/peer"
	"github.com/immxrtalbeast/meshtalk/internal/signaling"
	"github.com/immxrtalbeast/meshtalk/lib/logger/sl"
)

var (
	flagServer  string
	flagRoom    string
	flagName    string
	flagSTUN    []string
	flagVerbose bool
)

const welcomeTimeout = 10 * time.Second

var joinCmd = &cobra.Command{
	Use:     "join",
	Aliases: []string{"j"},
	Short:   "Join a conference room",
	Long: `Join a conference room on a meshtalk server and build the peer mesh.

Typed lines are sent to the room chat. Commands:
  /mute     toggle the microphone
  /video    toggle the camera
  /screen   start or stop screen sharing
  /who      list the peers in the mesh
  /quit     leave the room

Examples:
  meshtalk join --room standup
  meshtalk join --server ws://conf.example.com/ws --room standup --name Lena`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagRoom == "" {
			return fmt.Errorf("no room specified")
		}
		return runJoin()
	},
}

func runJoin() error {
	log := setupLog()

	client := signaling.NewClient(flagServer)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect to %s: %w", flagServer, err)
	}
	defer client.Close()

	selfID, err := awaitWelcome(client)
	if err != nil {
		return err
	}
	log.Debug("connected", slog.String("self_id", selfID))

	ctx := context.Background()

	controller := media.NewController(media.SyntheticCamera{}, media.SyntheticScreen{}, log)
	if _, err := controller.Start(ctx); err != nil {
		return fmt.Errorf("start media: %w", err)
	}
	defer controller.Stop()

	session := peer.NewSession(
		selfID,
		client,
		peer.NewPionFactory(flagSTUN),
		func() []webrtc.TrackLocal { return controller.Stream().Locals() },
		func(peerID string, track *webrtc.TrackRemote) {
			log.Debug("remote track",
				slog.String("peer_id", peerID),
				slog.String("kind", track.Kind().String()),
			)
		},
		log,
	)
	defer session.Close()

	controller.OnStreamChanged(func(stream *media.Stream) {
		session.ReplaceOutgoing(streamLocals(stream))
	})

	client.JoinRoom(flagRoom)

	lines := readLines()
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	seen := make(map[string]struct{})

	for {
		select {
		case <-interrupt:
			color.Yellow("leaving %s", flagRoom)
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, line, client, controller, session); quit {
				return nil
			}

		case event, ok := <-client.Incoming():
			if !ok {
				return fmt.Errorf("connection to %s lost", flagServer)
			}
			handleEvent(event, selfID, session, seen, log)
		}
	}
}

// awaitWelcome blocks until the server assigns this connection its
// participant identifier.
func awaitWelcome(client *signaling.Client) (string, error) {
	timeout := time.After(welcomeTimeout)
	for {
		select {
		case event, ok := <-client.Incoming():
			if !ok {
				return "", fmt.Errorf("connection closed before welcome")
			}
			if event.Type == domain.EventWelcome {
				return event.SenderID, nil
			}
		case <-timeout:
			return "", fmt.Errorf("no welcome from server within %s", welcomeTimeout)
		}
	}
}

func handleEvent(event domain.Event, selfID string, session *peer.Session, seen map[string]struct{}, log *slog.Logger) {
	switch event.Type {
	case domain.EventPresenceAnnounce:
		session.HandleAnnounce(event.SenderID, event.Members)
		if event.SenderID == selfID {
			color.Green("joined %s (%d in room)", event.Room, len(event.Members))
		} else {
			color.Green("%s joined (%d in room)", shortID(event.SenderID), len(event.Members))
		}

	case domain.EventPresenceDeparted:
		session.HandleDeparted(event.SenderID)
		color.Yellow("%s left", shortID(event.SenderID))

	case domain.EventSignalDelivered:
		if err := session.HandleSignal(event.SenderID, event.Payload); err != nil {
			log.Error("signal handling failed",
				slog.String("peer_id", event.SenderID),
				sl.Err(err),
			)
		}

	case domain.EventChatRelay:
		// The relay is at-least-once; drop repeats of the same message.
		key := event.SenderID + "\x00" + event.Body + "\x00" + event.SentAt
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		fmt.Printf("%s %s\n", color.CyanString("%s:", event.Label), event.Body)

	case domain.EventWelcome:
		// Already consumed before the loop; a repeat is harmless.

	default:
		log.Debug("unhandled event", slog.String("type", string(event.Type)))
	}
}

func handleLine(ctx context.Context, line string, client *signaling.Client, controller *media.Controller, session *peer.Session) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch line {
	case "/quit":
		return true

	case "/mute":
		if controller.ToggleAudio() {
			color.Yellow("microphone on")
		} else {
			color.Yellow("microphone off")
		}

	case "/video":
		if controller.ToggleVideo() {
			color.Yellow("camera on")
		} else {
			color.Yellow("camera off")
		}

	case "/screen":
		if controller.State().ScreenSharing {
			if err := controller.StopScreenShare(ctx); err != nil {
				color.Red("stop screen share: %s", err)
			} else {
				color.Yellow("screen sharing stopped")
			}
		} else {
			if err := controller.StartScreenShare(ctx); err != nil {
				color.Red("start screen share: %s", err)
			} else {
				color.Yellow("screen sharing started")
			}
		}

	case "/who":
		peers := session.Peers()
		if len(peers) == 0 {
			color.Yellow("nobody else here yet")
		}
		for _, id := range peers {
			state, _ := session.LinkState(id)
			color.Yellow("%s  %s", shortID(id), state)
		}

	default:
		client.SendChat(line, flagName)
	}
	return false
}

func streamLocals(stream *media.Stream) (audio, video webrtc.TrackLocal) {
	if stream.Audio != nil {
		audio = stream.Audio.Local()
	}
	if stream.Video != nil {
		video = stream.Video.Local()
	}
	return audio, video
}

func readLines() <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func setupLog() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "ws://localhost:8080/ws", "Signaling server URL")
	joinCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "Room key to join")
	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name for chat")
	joinCmd.Flags().StringSliceVar(&flagSTUN, "stun", []string{"stun:stun.l.google.com:19302"}, "STUN servers")
	joinCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging")
}
