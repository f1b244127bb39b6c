package media

import (
	"sync"

	"github.com/pion/webrtc/v3"
)

// Track wraps a local capture track with the mute flag and end-of-device
// signal that the underlying webrtc track does not carry. Disabling a track
// stops its producer from encoding but keeps every connection it is attached
// to alive; no signaling round-trip is involved.
type Track struct {
	local webrtc.TrackLocal

	mu      sync.Mutex
	enabled bool
	stopped bool
	onEnded func()
}

func NewTrack(local webrtc.TrackLocal) *Track {
	return &Track{local: local, enabled: true}
}

// Local exposes the underlying track for attaching to peer connections.
func (t *Track) Local() webrtc.TrackLocal {
	return t.local
}

func (t *Track) Kind() webrtc.RTPCodecType {
	return t.local.Kind()
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// OnEnded registers the handler invoked when the capture device stops on its
// own, e.g. the user terminates screen sharing at the OS level.
func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

// Stop releases the track locally. It does not fire the OnEnded handler;
// that is reserved for device-initiated ends.
func (t *Track) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// End marks the track stopped and fires the OnEnded handler once. Capture
// implementations call this when the device goes away underneath them.
func (t *Track) End() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	fn := t.onEnded
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}
