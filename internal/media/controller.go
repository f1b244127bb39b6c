// Package media owns the local capture devices and the single active
// outgoing stream. Switching between camera and screen capture replaces
// tracks in place; it never tears down a connection.
package media

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/meshtalk/lib/logger/sl"
)

var ErrNotStarted = errors.New("media not started")

// State is a snapshot of the controller flags.
type State struct {
	AudioEnabled  bool
	VideoEnabled  bool
	ScreenSharing bool
}

type Controller struct {
	camera Source
	screen Source
	log    *slog.Logger

	// onChange tells the session to swap outgoing tracks on every link.
	onChange func(*Stream)

	mu               sync.Mutex
	stream           *Stream
	audioEnabled     bool
	videoEnabled     bool
	screenSharing    bool
	audioBeforeShare bool
}

func NewController(camera, screen Source, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		camera: camera,
		screen: screen,
		log:    log,
	}
}

// OnStreamChanged registers the hook fired with the new composite stream
// after every in-place replacement. Set it before Start.
func (c *Controller) OnStreamChanged(fn func(*Stream)) {
	c.onChange = fn
}

// Start acquires camera and microphone and makes them the active stream.
// Acquisition failure is surfaced to the caller immediately; there is no
// retry here.
func (c *Controller) Start(ctx context.Context) (*Stream, error) {
	stream, err := c.camera.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.stream = stream
	c.audioEnabled = true
	c.videoEnabled = true
	c.screenSharing = false
	c.mu.Unlock()

	return stream, nil
}

// Stream returns the currently active stream.
func (c *Controller) Stream() *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		AudioEnabled:  c.audioEnabled,
		VideoEnabled:  c.videoEnabled,
		ScreenSharing: c.screenSharing,
	}
}

// ToggleAudio flips the microphone flag on the active track and reports the
// new state. Peers observe the change without any message exchange.
func (c *Controller) ToggleAudio() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.audioEnabled = !c.audioEnabled
	if c.stream != nil && c.stream.Audio != nil {
		c.stream.Audio.SetEnabled(c.audioEnabled)
	}
	return c.audioEnabled
}

// ToggleVideo flips the camera/screen flag on the active track.
func (c *Controller) ToggleVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.videoEnabled = !c.videoEnabled
	if c.stream != nil && c.stream.Video != nil {
		c.stream.Video.SetEnabled(c.videoEnabled)
	}
	return c.videoEnabled
}

// StartScreenShare swaps the outgoing video for a screen capture track. The
// microphone track is carried over into the new composite stream so audio is
// never interrupted, and its enabled state survives the switch. Acquisition
// failure leaves the current stream and flags untouched.
func (c *Controller) StartScreenShare(ctx context.Context) error {
	c.mu.Lock()
	if c.stream == nil {
		c.mu.Unlock()
		return ErrNotStarted
	}
	if c.screenSharing {
		c.mu.Unlock()
		return nil
	}
	prev := c.stream
	wasAudioEnabled := c.audioEnabled
	c.mu.Unlock()

	screen, err := c.screen.Acquire(ctx)
	if err != nil {
		c.log.Error("screen capture failed", sl.Err(err))
		return err
	}

	c.mu.Lock()
	if prev.Video != nil {
		prev.Video.Stop()
	}

	next := &Stream{Audio: prev.Audio, Video: screen.Video}
	if next.Audio != nil {
		next.Audio.SetEnabled(wasAudioEnabled)
	}
	if next.Video != nil {
		next.Video.SetEnabled(c.videoEnabled)
	}

	// The user can end sharing at the OS level without touching our UI;
	// fall back to the camera and restore the pre-share audio state.
	next.Video.OnEnded(func() {
		c.log.Info("screen capture ended by device, reverting to camera")
		if err := c.fallbackToCamera(context.Background()); err != nil {
			c.log.Error("camera fallback failed", sl.Err(err))
		}
	})

	c.stream = next
	c.screenSharing = true
	c.audioBeforeShare = wasAudioEnabled
	c.mu.Unlock()

	c.notify(next)
	return nil
}

// StopScreenShare returns to camera and microphone, preserving the current
// audio flag across the switch.
func (c *Controller) StopScreenShare(ctx context.Context) error {
	c.mu.Lock()
	if !c.screenSharing {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.switchToCamera(ctx, c.State().AudioEnabled)
}

func (c *Controller) fallbackToCamera(ctx context.Context) error {
	c.mu.Lock()
	restore := c.audioBeforeShare
	c.mu.Unlock()
	return c.switchToCamera(ctx, restore)
}

func (c *Controller) switchToCamera(ctx context.Context, audioEnabled bool) error {
	camera, err := c.camera.Acquire(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.stream != nil {
		c.stream.StopAll()
	}

	if camera.Audio != nil {
		camera.Audio.SetEnabled(audioEnabled)
	}
	if camera.Video != nil {
		camera.Video.SetEnabled(c.videoEnabled)
	}

	c.stream = camera
	c.audioEnabled = audioEnabled
	c.screenSharing = false
	c.mu.Unlock()

	c.notify(camera)
	return nil
}

// Stop releases every local track. Best effort: it never fails.
func (c *Controller) Stop() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.screenSharing = false
	c.mu.Unlock()

	if stream != nil {
		stream.StopAll()
	}
}

func (c *Controller) notify(stream *Stream) {
	if c.onChange != nil {
		c.onChange(stream)
	}
}
