// Package peer drives WebRTC negotiation for every remote participant of one
// local call: a mesh of point-to-point links built from presence
// announcements and fed by relayed signals.
package peer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
	"github.com/immxrtalbeast/meshtalk/lib/logger/sl"
)

var ErrUnknownPeer = errors.New("no link for peer")

// SignalSender carries an opaque negotiation payload to one remote
// participant; the relay transport implements it.
type SignalSender interface {
	SendSignal(targetID string, payload domain.SignalPayload) error
}

// TrackProvider yields the current local tracks for attachment to a new
// connection; the media controller implements it.
type TrackProvider func() []webrtc.TrackLocal

// RemoteTrackHandler is invoked when inbound media arrives, keyed by the
// remote participant identifier.
type RemoteTrackHandler func(peerID string, track *webrtc.TrackRemote)

type Session struct {
	selfID  string
	signals SignalSender
	factory ConnFactory
	tracks  TrackProvider
	onTrack RemoteTrackHandler
	log     *slog.Logger

	mu    sync.Mutex
	links map[string]*Link
}

func NewSession(selfID string, signals SignalSender, factory ConnFactory, tracks TrackProvider, onTrack RemoteTrackHandler, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		selfID:  selfID,
		signals: signals,
		factory: factory,
		tracks:  tracks,
		onTrack: onTrack,
		log:     log,
		links:   make(map[string]*Link),
	}
}

// HandleAnnounce reacts to a presence announcement: every member gets a link,
// and if the announcement is about ourselves we are the newcomer and initiate
// an offer toward every other member. Existing members never initiate; they
// wait for the newcomer's offer. That asymmetry is the glare-avoidance rule.
func (s *Session) HandleAnnounce(newID string, members []string) {
	var fresh []*Link
	for _, id := range members {
		if id == s.selfID {
			continue
		}
		link, created, err := s.ensureLink(id)
		if err != nil {
			s.log.Error("failed to build link", slog.String("peer", id), sl.Err(err))
			continue
		}
		if created {
			fresh = append(fresh, link)
		}
	}

	if newID != s.selfID {
		return
	}
	for _, link := range fresh {
		s.sendOffer(link)
	}
}

// HandleSignal applies one relayed negotiation message from a remote peer.
// Transient failures (a bad SDP, an unparseable candidate) drop the message
// and leave the link state untouched; state-machine violations are returned
// loudly.
func (s *Session) HandleSignal(fromID string, raw json.RawMessage) error {
	var payload domain.SignalPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("malformed signal payload", slog.String("peer", fromID), sl.Err(err))
		return nil
	}

	s.mu.Lock()
	link, ok := s.links[fromID]
	s.mu.Unlock()
	if !ok {
		s.log.Debug("signal for unknown peer", slog.String("peer", fromID))
		return ErrUnknownPeer
	}

	switch {
	case payload.SDP != nil:
		return s.handleRemoteDescription(link, *payload.SDP)
	case payload.ICE != nil:
		if err := link.addCandidate(*payload.ICE); err != nil {
			var te *TransitionError
			if errors.As(err, &te) {
				return err
			}
			s.log.Warn("failed to add ice candidate", slog.String("peer", link.peerID), sl.Err(err))
		}
	}
	return nil
}

func (s *Session) handleRemoteDescription(link *Link, desc webrtc.SessionDescription) error {
	if err := link.applyRemoteDescription(desc); err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			return err
		}
		s.log.Warn("failed to apply remote description", slog.String("peer", link.peerID), sl.Err(err))
		return nil
	}

	if desc.Type != webrtc.SDPTypeOffer {
		return nil
	}

	answer, err := link.conn.CreateAnswer()
	if err != nil {
		s.log.Warn("failed to create answer", slog.String("peer", link.peerID), sl.Err(err))
		return nil
	}
	if err := link.conn.SetLocalDescription(answer); err != nil {
		s.log.Warn("failed to set local description", slog.String("peer", link.peerID), sl.Err(err))
		return nil
	}

	s.sendDescription(link)
	return nil
}

// HandleDeparted closes and discards the link for a departed participant.
// The identifier is never reused; a future arrival builds a new link from
// scratch.
func (s *Session) HandleDeparted(peerID string) {
	s.mu.Lock()
	link, ok := s.links[peerID]
	delete(s.links, peerID)
	s.mu.Unlock()

	if ok {
		link.close()
		s.log.Info("peer departed", slog.String("peer", peerID))
	}
}

// ReplaceOutgoing swaps the outgoing audio and video tracks on every live
// link in place. No SDP is renegotiated and no connection object is
// recreated; peers keep receiving on the same sender slots.
func (s *Session) ReplaceOutgoing(audio, video webrtc.TrackLocal) {
	s.mu.Lock()
	links := make([]*Link, 0, len(s.links))
	for _, link := range s.links {
		links = append(links, link)
	}
	s.mu.Unlock()

	for _, link := range links {
		if state := link.State(); state != StateNegotiating && state != StateConnected {
			continue
		}
		for _, sender := range link.conn.Senders() {
			var replacement webrtc.TrackLocal
			switch sender.Kind() {
			case webrtc.RTPCodecTypeAudio:
				replacement = audio
			case webrtc.RTPCodecTypeVideo:
				replacement = video
			}
			if replacement == nil {
				continue
			}
			if err := sender.ReplaceTrack(replacement); err != nil {
				s.log.Warn("failed to replace track", slog.String("peer", link.peerID), sl.Err(err))
			}
		}
	}
}

// Close tears down every link in one best-effort pass. Individual close
// failures are swallowed; the call never propagates them.
func (s *Session) Close() {
	s.mu.Lock()
	links := s.links
	s.links = make(map[string]*Link)
	s.mu.Unlock()

	for _, link := range links {
		link.close()
	}
}

// LinkState reports the negotiation state for one remote participant.
func (s *Session) LinkState(peerID string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[peerID]
	if !ok {
		return StateClosed, false
	}
	return link.State(), true
}

// Peers lists the remote identifiers with an active link.
func (s *Session) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	return ids
}

// ensureLink builds the connection for a newly observed member: local tracks
// attached, candidate listener armed, state advanced to negotiating. Reports
// whether a new link was created.
func (s *Session) ensureLink(peerID string) (*Link, bool, error) {
	s.mu.Lock()
	if link, ok := s.links[peerID]; ok {
		s.mu.Unlock()
		return link, false, nil
	}
	s.mu.Unlock()

	conn, err := s.factory()
	if err != nil {
		return nil, false, err
	}

	link := newLink(peerID, conn)

	conn.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		if err := s.signals.SendSignal(peerID, domain.SignalPayload{ICE: &init}); err != nil {
			s.log.Warn("failed to send ice candidate", slog.String("peer", peerID), sl.Err(err))
		}
	})

	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		link.markConnected()
		if s.onTrack != nil {
			s.onTrack(peerID, track)
		}
	})

	if s.tracks != nil {
		for _, track := range s.tracks() {
			if _, err := conn.AddTrack(track); err != nil {
				s.log.Warn("failed to attach local track", slog.String("peer", peerID), sl.Err(err))
			}
		}
	}

	if err := link.beginNegotiation(); err != nil {
		link.close()
		return nil, false, err
	}

	s.mu.Lock()
	if existing, ok := s.links[peerID]; ok {
		// Lost the race to another announce; keep the first link.
		s.mu.Unlock()
		link.close()
		return existing, false, nil
	}
	s.links[peerID] = link
	s.mu.Unlock()

	return link, true, nil
}

// sendOffer runs the offer leg of negotiation toward one peer. Failures are
// transient: logged and dropped, the remote side may re-offer later.
func (s *Session) sendOffer(link *Link) {
	offer, err := link.conn.CreateOffer()
	if err != nil {
		s.log.Warn("failed to create offer", slog.String("peer", link.peerID), sl.Err(err))
		return
	}
	if err := link.conn.SetLocalDescription(offer); err != nil {
		s.log.Warn("failed to set local description", slog.String("peer", link.peerID), sl.Err(err))
		return
	}
	s.sendDescription(link)
}

func (s *Session) sendDescription(link *Link) {
	desc := link.conn.LocalDescription()
	if desc == nil {
		return
	}
	if err := s.signals.SendSignal(link.peerID, domain.SignalPayload{SDP: desc}); err != nil {
		s.log.Warn("failed to send description", slog.String("peer", link.peerID), sl.Err(err))
	}
}
