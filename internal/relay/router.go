// Package relay bridges each client's event channel to registry operations
// and to targeted or broadcast delivery toward other channels. It never
// interprets signal payloads; they pass through as raw bytes.
package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
	"github.com/immxrtalbeast/meshtalk/internal/registry"
	"github.com/immxrtalbeast/meshtalk/lib/logger/sl"
)

var ErrUnknownEvent = errors.New("unknown event type")

type Router struct {
	registry *registry.Registry
	log      *slog.Logger

	// mu serializes dispatch so every member of a room observes events in
	// the order the router processed them. Enqueue never blocks, so the
	// critical sections stay short.
	mu           sync.Mutex
	participants map[string]*domain.Participant
}

func New(reg *registry.Registry, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		registry:     reg,
		log:          log,
		participants: make(map[string]*domain.Participant),
	}
}

// Attach makes the participant addressable for targeted delivery. It must be
// called before the connection's read loop starts dispatching.
func (r *Router) Attach(p *domain.Participant) {
	r.mu.Lock()
	r.participants[p.ID] = p
	r.mu.Unlock()
	r.log.Info("participant connected", slog.String("participant", p.ID))
}

// Dispatch routes one client event. Unknown kinds are reported to the caller
// but are not fatal to the connection.
func (r *Router) Dispatch(p *domain.Participant, event domain.Event) error {
	switch event.Type {
	case domain.EventJoinRoom:
		r.HandleJoin(p, event.Room)
	case domain.EventRelaySignal:
		r.HandleRelaySignal(p, event.TargetID, event.Payload)
	case domain.EventChatSend:
		r.HandleChat(p, event.Body, event.Label)
	default:
		r.log.Warn("dropping event",
			slog.String("participant", p.ID),
			slog.String("type", string(event.Type)),
		)
		return ErrUnknownEvent
	}
	return nil
}

// HandleJoin registers the participant in the room and announces the arrival
// to every member, newcomer included. Each announce carries the full
// membership snapshot, which is what lets the newcomer bootstrap its own
// outgoing negotiations once it sees itself in the list. After the fan-out
// the room's chat history is replayed to the joiner only, in original order.
func (r *Router) HandleJoin(p *domain.Participant, roomKey string) {
	const op = "relay.join"
	log := r.log.With(slog.String("op", op), slog.String("participant", p.ID))

	r.mu.Lock()
	defer r.mu.Unlock()

	memberIDs := r.registry.Join(roomKey, p)

	// Join is a no-op for a participant that already belongs to a room, so
	// announce into the room it actually ended up in.
	key, _ := r.registry.RoomOf(p.ID)
	members := r.registry.Members(key)

	announce := domain.Event{
		Type:     domain.EventPresenceAnnounce,
		Room:     key,
		SenderID: p.ID,
		Members:  memberIDs,
	}
	for _, member := range members {
		member.Enqueue(announce)
	}

	for _, entry := range r.registry.History(key) {
		p.Enqueue(domain.ChatRelayEvent(entry))
	}

	log.Info("joined room",
		slog.String("room", announce.Room),
		slog.Int("members", len(memberIDs)),
	)
}

// HandleRelaySignal forwards the opaque payload to exactly the named target.
// A target that is not currently connected means the sender is racing a
// departure; the signal is dropped silently and the sender will learn about
// the departure through the usual presence event.
func (r *Router) HandleRelaySignal(p *domain.Participant, targetID string, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.participants[targetID]
	if !ok || targetID == p.ID {
		r.log.Debug("dropping signal for unknown target",
			slog.String("from", p.ID),
			slog.String("target", targetID),
		)
		return
	}

	target.Enqueue(domain.Event{
		Type:     domain.EventSignalDelivered,
		SenderID: p.ID,
		Payload:  payload,
	})
}

// HandleChat records the entry in the sender's room and broadcasts it to
// every member, sender included. Delivery is at-least-once by design; clients
// de-duplicate on the (sender, body, timestamp) triple. A sender that belongs
// to no room produces no event at all.
func (r *Router) HandleChat(p *domain.Participant, body, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := domain.NewChatEntry(p.ID, label, body)
	members, ok := r.registry.RecordChat(p.ID, entry)
	if !ok {
		r.log.Debug("chat from roomless participant", slog.String("participant", p.ID))
		return
	}

	event := domain.ChatRelayEvent(entry)
	for _, member := range members {
		member.Enqueue(event)
	}
}

// Detach runs the transport-level disconnect path: the participant leaves its
// room, remaining members get a departure event, and the event channel is
// sealed. Safe to call more than once; cleanup for an identifier that has
// already been detached is a no-op.
func (r *Router) Detach(p *domain.Participant) {
	const op = "relay.detach"

	r.mu.Lock()
	if _, ok := r.participants[p.ID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.participants, p.ID)

	roomKey, remaining, wasMember := r.registry.Leave(p.ID)
	if wasMember {
		departed := domain.Event{
			Type:     domain.EventPresenceDeparted,
			Room:     roomKey,
			SenderID: p.ID,
		}
		for _, member := range remaining {
			member.Enqueue(departed)
		}
	}
	r.mu.Unlock()

	p.Close()

	r.log.Info("participant disconnected",
		slog.String("op", op),
		slog.String("participant", p.ID),
		slog.Duration("time_online", p.TimeOnline()),
	)
}

// DispatchRaw decodes a wire frame and routes it. Malformed frames are
// dropped with a log line; the connection survives.
func (r *Router) DispatchRaw(p *domain.Participant, frame []byte) {
	var event domain.Event
	if err := json.Unmarshal(frame, &event); err != nil {
		r.log.Warn("malformed event frame", slog.String("participant", p.ID), sl.Err(err))
		return
	}
	_ = r.Dispatch(p, event)
}
