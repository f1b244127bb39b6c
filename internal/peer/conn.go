package peer

import "github.com/pion/webrtc/v3"

// Conn is the subset of a WebRTC peer connection the session drives. The
// production implementation wraps pion; tests substitute a scripted fake so
// the negotiation state machine can be exercised without a network.
type Conn interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) (Sender, error)
	Senders() []Sender
	OnICECandidate(fn func(*webrtc.ICECandidate))
	OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

// Sender is an outgoing track slot on a connection. Media replacement swaps
// the track in place without renegotiation.
type Sender interface {
	Kind() webrtc.RTPCodecType
	ReplaceTrack(track webrtc.TrackLocal) error
}

// ConnFactory builds one connection per remote participant.
type ConnFactory func() (Conn, error)
