package media

import (
	"context"

	"github.com/pion/webrtc/v3"
)

// Source acquires a capture device. Acquisition may suspend (permission
// prompts, device warm-up) and must honor the context.
type Source interface {
	Acquire(ctx context.Context) (*Stream, error)
}

// Synthetic sources stand in for real capture devices on headless clients:
// a silent audio track and a black video frame, mirroring what a muted
// browser tab would send. They also back the tests.

// SyntheticCamera yields a stream with one audio and one video track.
type SyntheticCamera struct{}

func (SyntheticCamera) Acquire(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audio, err := newSampleTrack(webrtc.MimeTypeOpus, "audio", "meshtalk-camera")
	if err != nil {
		return nil, err
	}
	video, err := newSampleTrack(webrtc.MimeTypeVP8, "video", "meshtalk-camera")
	if err != nil {
		return nil, err
	}
	return &Stream{Audio: audio, Video: video}, nil
}

// SyntheticScreen yields a video-only stream; screen capture never carries
// audio, the microphone track is preserved by the controller instead.
type SyntheticScreen struct{}

func (SyntheticScreen) Acquire(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	video, err := newSampleTrack(webrtc.MimeTypeVP8, "video", "meshtalk-screen")
	if err != nil {
		return nil, err
	}
	return &Stream{Video: video}, nil
}

func newSampleTrack(mimeType, id, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		id,
		streamID,
	)
	if err != nil {
		return nil, err
	}
	return NewTrack(local), nil
}
