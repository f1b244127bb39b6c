package peer

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
)

type fakeSender struct {
	kind     webrtc.RTPCodecType
	mu       sync.Mutex
	current  webrtc.TrackLocal
	replaced int
}

func (s *fakeSender) Kind() webrtc.RTPCodecType { return s.kind }

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = track
	s.replaced++
	return nil
}

type fakeConn struct {
	mu         sync.Mutex
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	senders    []Sender
	onICE      func(*webrtc.ICECandidate)
	onTrack    func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	closed     bool

	offerErr  error
	remoteErr error
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	if c.offerErr != nil {
		return webrtc.SessionDescription{}, c.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (c *fakeConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = &desc
	return nil
}

func (c *fakeConn) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if c.remoteErr != nil {
		return c.remoteErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = &desc
	return nil
}

func (c *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakeConn) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	sender := &fakeSender{kind: track.Kind(), current: track}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.senders = append(c.senders, sender)
	return sender, nil
}

func (c *fakeConn) Senders() []Sender {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sender(nil), c.senders...)
}

func (c *fakeConn) OnICECandidate(fn func(*webrtc.ICECandidate)) { c.onICE = fn }

func (c *fakeConn) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) { c.onTrack = fn }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type sentSignal struct {
	TargetID string
	Payload  domain.SignalPayload
}

type signalRecorder struct {
	mu   sync.Mutex
	sent []sentSignal
}

func (r *signalRecorder) SendSignal(targetID string, payload domain.SignalPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentSignal{TargetID: targetID, Payload: payload})
	return nil
}

func (r *signalRecorder) all() []sentSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentSignal(nil), r.sent...)
}

func (r *signalRecorder) offersTo(targetID string) int {
	n := 0
	for _, s := range r.all() {
		if s.TargetID == targetID && s.Payload.SDP != nil && s.Payload.SDP.Type == webrtc.SDPTypeOffer {
			n++
		}
	}
	return n
}

// harness wires a session to fakes and keeps the connections inspectable.
type harness struct {
	session *Session
	signals *signalRecorder

	mu    sync.Mutex
	conns []*fakeConn
}

func newHarness(t *testing.T, selfID string) *harness {
	t.Helper()
	h := &harness{signals: &signalRecorder{}}
	factory := func() (Conn, error) {
		conn := &fakeConn{}
		h.mu.Lock()
		h.conns = append(h.conns, conn)
		h.mu.Unlock()
		return conn, nil
	}
	h.session = NewSession(selfID, h.signals, factory, nil, nil, nil)
	return h
}

func (h *harness) conn(i int) *fakeConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[i]
}

func signalJSON(t *testing.T, payload domain.SignalPayload) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

func offerJSON(t *testing.T) json.RawMessage {
	return signalJSON(t, domain.SignalPayload{
		SDP: &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote offer"},
	})
}

func iceJSON(t *testing.T, candidate string) json.RawMessage {
	return signalJSON(t, domain.SignalPayload{
		ICE: &webrtc.ICECandidateInit{Candidate: candidate},
	})
}

func TestNewcomerInitiatesOffers(t *testing.T) {
	h := newHarness(t, "self")

	// The announcement of our own join: we offer to everyone already there.
	h.session.HandleAnnounce("self", []string{"alice", "bob", "self"})

	assert.Equal(t, 1, h.signals.offersTo("alice"))
	assert.Equal(t, 1, h.signals.offersTo("bob"))

	state, ok := h.session.LinkState("alice")
	require.True(t, ok)
	assert.Equal(t, StateNegotiating, state)
}

func TestExistingMemberWaitsForNewcomer(t *testing.T) {
	h := newHarness(t, "self")
	h.session.HandleAnnounce("self", []string{"self"})

	// Carol joins after us: a link is built, but carol initiates, not us.
	h.session.HandleAnnounce("carol", []string{"self", "carol"})

	assert.Equal(t, 0, h.signals.offersTo("carol"))
	state, ok := h.session.LinkState("carol")
	require.True(t, ok)
	assert.Equal(t, StateNegotiating, state)
}

func TestRepeatedAnnounceDoesNotReoffer(t *testing.T) {
	h := newHarness(t, "self")
	h.session.HandleAnnounce("self", []string{"alice", "self"})
	require.Equal(t, 1, h.signals.offersTo("alice"))

	// A later join announcement lists alice again; her link already exists.
	h.session.HandleAnnounce("dave", []string{"alice", "self", "dave"})

	assert.Equal(t, 1, h.signals.offersTo("alice"))
}

func TestIncomingOfferProducesAnswer(t *testing.T) {
	h := newHarness(t, "self")
	h.session.HandleAnnounce("carol", []string{"self", "carol"})

	err := h.session.HandleSignal("carol", offerJSON(t))
	require.NoError(t, err)

	conn := h.conn(0)
	require.NotNil(t, conn.remote)
	assert.Equal(t, webrtc.SDPTypeOffer, conn.remote.Type)

	var answers int
	for _, s := range h.signals.all() {
		if s.TargetID == "carol" && s.Payload.SDP != nil && s.Payload.SDP.Type == webrtc.SDPTypeAnswer {
			answers++
		}
	}
	assert.Equal(t, 1, answers)
}

func TestCandidatesQueueUntilRemoteDescription(t *testing.T) {
	h := newHarness(t, "self")
	h.session.HandleAnnounce("carol", []string{"self", "carol"})

	// ICE lands before the SDP: buffered, not applied.
	require.NoError(t, h.session.HandleSignal("carol", iceJSON(t, "candidate:1")))
	require.NoError(t, h.session.HandleSignal("carol", iceJSON(t, "candidate:2")))

	conn := h.conn(0)
	assert.Empty(t, conn.candidates)

	// The SDP flushes the queue in arrival order.
	require.NoError(t, h.session.HandleSignal("carol", offerJSON(t)))
	require.Len(t, conn.candidates, 2)
	assert.Equal(t, "candidate:1", conn.candidates[0].Candidate)
	assert.Equal(t, "candidate:2", conn.candidates[1].Candidate)

	// Later candidates apply immediately.
	require.NoError(t, h.session.HandleSignal("carol", iceJSON(t, "candidate:3")))
	assert.Len(t, conn.candidates, 3)
}

func TestSignalForUnknownPeer(t *testing.T) {
	h := newHarness(t, "self")

	err := h.session.HandleSignal("ghost", offerJSON(t))
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

func TestMalformedSignalIsDropped(t *testing.T) {
	h := newHarness(t, "self")
	h.session.HandleAnnounce("carol", []string{"self", "carol"})

	err := h.session.HandleSignal("carol", json.RawMessage(`{"sdp":`))
	assert.NoError(t, err)
	assert.Nil(t, h.conn(0).remote)
}

func TestBadRemoteDescriptionLeavesStateIntact(t *testing.T) {
	h := newHarness(t, "self")
	h.session.HandleAnnounce("carol", []string{"self", "carol"})
	h.conn(0).remoteErr = errors.New("invalid sdp")

	err := h.session.HandleSignal("carol", offerJSON(t))
	assert.NoError(t, err)

	state, ok := h.session.LinkState("carol")
	require.True(t, ok)
	assert.Equal(t, StateNegotiating, state)
}

func TestDepartedPeerLinkIsClosed(t *testing.T) {
	h := newHarness(t, "self")
	h.session.HandleAnnounce("carol", []string{"self", "carol"})

	h.session.HandleDeparted("carol")

	assert.True(t, h.conn(0).closed)
	_, ok := h.session.LinkState("carol")
	assert.False(t, ok)

	// The identifier is gone; signaling for it now fails loudly.
	err := h.session.HandleSignal("carol", offerJSON(t))
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

func TestSignalAfterCloseIsTransitionError(t *testing.T) {
	h := newHarness(t, "self")
	h.session.HandleAnnounce("carol", []string{"self", "carol"})

	// Close the underlying link directly, keeping the map entry, to force a
	// state-machine violation on the next signal.
	h.session.mu.Lock()
	link := h.session.links["carol"]
	h.session.mu.Unlock()
	link.close()

	err := h.session.HandleSignal("carol", iceJSON(t, "candidate:1"))
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "carol", te.Peer)
	assert.Equal(t, StateClosed, te.From)
}

func TestOutgoingCandidatesAreRelayed(t *testing.T) {
	h := newHarness(t, "self")
	h.session.HandleAnnounce("self", []string{"alice", "self"})

	conn := h.conn(0)
	require.NotNil(t, conn.onICE)

	// End-of-gathering sentinel must not be relayed.
	conn.onICE(nil)

	sent := 0
	for _, s := range h.signals.all() {
		if s.Payload.ICE != nil {
			sent++
		}
	}
	assert.Zero(t, sent)

	conn.onICE(&webrtc.ICECandidate{Typ: webrtc.ICECandidateTypeHost})
	for _, s := range h.signals.all() {
		if s.Payload.ICE != nil {
			sent++
			assert.Equal(t, "alice", s.TargetID)
		}
	}
	assert.Equal(t, 1, sent)
}

func TestInboundTrackMarksConnected(t *testing.T) {
	var gotPeer string
	h := newHarness(t, "self")
	h.session.onTrack = func(peerID string, _ *webrtc.TrackRemote) { gotPeer = peerID }

	h.session.HandleAnnounce("carol", []string{"self", "carol"})
	conn := h.conn(0)
	require.NotNil(t, conn.onTrack)

	conn.onTrack(&webrtc.TrackRemote{}, nil)

	assert.Equal(t, "carol", gotPeer)
	state, _ := h.session.LinkState("carol")
	assert.Equal(t, StateConnected, state)
}

type fakeTrack struct {
	id   string
	kind webrtc.RTPCodecType
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) RID() string               { return "" }
func (t *fakeTrack) StreamID() string          { return "test-stream" }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

func (t *fakeTrack) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}

func (t *fakeTrack) Unbind(webrtc.TrackLocalContext) error { return nil }

func TestReplaceOutgoingSwapsByKind(t *testing.T) {
	h := newHarness(t, "self")
	audio := &fakeTrack{id: "mic", kind: webrtc.RTPCodecTypeAudio}
	video := &fakeTrack{id: "cam", kind: webrtc.RTPCodecTypeVideo}
	h.session.tracks = func() []webrtc.TrackLocal { return []webrtc.TrackLocal{audio, video} }

	h.session.HandleAnnounce("self", []string{"alice", "self"})

	conn := h.conn(0)
	require.Len(t, conn.Senders(), 2)

	screen := &fakeTrack{id: "screen", kind: webrtc.RTPCodecTypeVideo}
	h.session.ReplaceOutgoing(audio, screen)

	for _, sender := range conn.Senders() {
		fs := sender.(*fakeSender)
		switch fs.kind {
		case webrtc.RTPCodecTypeAudio:
			assert.Same(t, audio, fs.current)
		case webrtc.RTPCodecTypeVideo:
			assert.Same(t, screen, fs.current)
			assert.Equal(t, 1, fs.replaced)
		}
	}
}

func TestReplaceOutgoingSkipsClosedLinks(t *testing.T) {
	h := newHarness(t, "self")
	video := &fakeTrack{id: "cam", kind: webrtc.RTPCodecTypeVideo}
	h.session.tracks = func() []webrtc.TrackLocal { return []webrtc.TrackLocal{video} }

	h.session.HandleAnnounce("self", []string{"alice", "self"})
	h.session.mu.Lock()
	link := h.session.links["alice"]
	h.session.mu.Unlock()
	link.close()

	h.session.ReplaceOutgoing(nil, &fakeTrack{id: "screen", kind: webrtc.RTPCodecTypeVideo})

	fs := h.conn(0).Senders()[0].(*fakeSender)
	assert.Zero(t, fs.replaced)
}

func TestCloseTearsDownEveryLink(t *testing.T) {
	h := newHarness(t, "self")
	h.session.HandleAnnounce("self", []string{"alice", "bob", "self"})

	h.session.Close()

	assert.True(t, h.conn(0).closed)
	assert.True(t, h.conn(1).closed)
	assert.Empty(t, h.session.Peers())
}
