package domain

import "github.com/pion/webrtc/v3"

// SignalPayload is the negotiation message peers exchange through the relay.
// The server never decodes it; only the two endpoints of a link do. Exactly
// one of SDP or ICE is set.
type SignalPayload struct {
	SDP *webrtc.SessionDescription `json:"sdp,omitempty"`
	ICE *webrtc.ICECandidateInit   `json:"ice,omitempty"`
}
