package media

import "github.com/pion/webrtc/v3"

// Stream is the composite of at most one audio and one video track that a
// session sends to its peers. Exactly one stream is active per local session.
type Stream struct {
	Audio *Track
	Video *Track
}

// Tracks returns the non-nil tracks of the stream.
func (s *Stream) Tracks() []*Track {
	var tracks []*Track
	if s.Audio != nil {
		tracks = append(tracks, s.Audio)
	}
	if s.Video != nil {
		tracks = append(tracks, s.Video)
	}
	return tracks
}

// Locals returns the underlying webrtc tracks for attachment.
func (s *Stream) Locals() []webrtc.TrackLocal {
	var locals []webrtc.TrackLocal
	for _, t := range s.Tracks() {
		locals = append(locals, t.Local())
	}
	return locals
}

// StopAll releases every track, continuing past individual failures.
func (s *Stream) StopAll() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
