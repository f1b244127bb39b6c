package peer

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
)

// State is the negotiation phase of one link.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TransitionError reports an operation applied in a state that does not
// permit it, e.g. a remote description arriving for an idle link. These are
// programming errors surfaced loudly rather than silent state corruption.
type TransitionError struct {
	Peer string
	From State
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("peer %s: %s not allowed in state %s", e.Peer, e.Op, e.From)
}

// Link is the local representation of the connection to one remote
// participant. At most one link exists per remote identifier; a departed
// peer's link is closed and never resurrected.
type Link struct {
	peerID string
	conn   Conn

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newLink(peerID string, conn Conn) *Link {
	return &Link{peerID: peerID, conn: conn, state: StateIdle}
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// beginNegotiation arms the link once its connection is built and local
// tracks are attached.
func (l *Link) beginNegotiation() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateIdle {
		return &TransitionError{Peer: l.peerID, From: l.state, Op: "begin negotiation"}
	}
	l.state = StateNegotiating
	return nil
}

// applyRemoteDescription installs the remote SDP and flushes any candidates
// that arrived ahead of it. Allowed while negotiating and, for re-offers,
// while connected.
func (l *Link) applyRemoteDescription(desc webrtc.SessionDescription) error {
	l.mu.Lock()
	if l.state != StateNegotiating && l.state != StateConnected {
		defer l.mu.Unlock()
		return &TransitionError{Peer: l.peerID, From: l.state, Op: "apply remote description"}
	}
	l.mu.Unlock()

	if err := l.conn.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	l.mu.Lock()
	l.remoteSet = true
	queued := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, candidate := range queued {
		// Individual candidate failures are transient; the rest still count.
		_ = l.conn.AddICECandidate(candidate)
	}
	return nil
}

// addCandidate applies an ICE candidate, queueing it if the remote
// description has not landed yet. SDP and ICE may be delivered in either
// order for the same peer.
func (l *Link) addCandidate(candidate webrtc.ICECandidateInit) error {
	l.mu.Lock()
	switch l.state {
	case StateIdle, StateClosed:
		defer l.mu.Unlock()
		return &TransitionError{Peer: l.peerID, From: l.state, Op: "add ice candidate"}
	}
	if !l.remoteSet {
		l.pending = append(l.pending, candidate)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	return l.conn.AddICECandidate(candidate)
}

// markConnected records the arrival of inbound media. A late track event on a
// link that is already closed is ignored.
func (l *Link) markConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateNegotiating {
		l.state = StateConnected
	}
}

// close releases the connection. Idempotent; never resurrected.
func (l *Link) close() {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = StateClosed
	l.mu.Unlock()

	_ = l.conn.Close()
}

func (l *Link) pendingCandidates() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
