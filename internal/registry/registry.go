// Package registry owns the authoritative room -> participants mapping and the
// per-room chat log. It is a leaf component: purely in-memory, no transport
// awareness, every operation a guarded map mutation that cannot fail.
package registry

import (
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
)

type Registry struct {
	mu           sync.RWMutex
	rooms        map[string]*domain.Room
	memberships  map[string]string // participant id -> room key
	historyLimit int
	log          *slog.Logger
}

// New builds an empty registry. historyLimit bounds the chat entries kept per
// room; zero keeps everything for the life of the room.
func New(log *slog.Logger, historyLimit int) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		rooms:        make(map[string]*domain.Room),
		memberships:  make(map[string]string),
		historyLimit: historyLimit,
		log:          log,
	}
}

// Join registers the participant under the room key, creating the room if
// absent, and returns the full membership in join order, joiner included.
// A participant that is already a member of some room stays where it is and
// gets that room's membership back: double-join is a no-op.
func (r *Registry) Join(roomKey string, p *domain.Participant) []string {
	key := domain.NormalizeRoomKey(roomKey)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.memberships[p.ID]; ok {
		return r.rooms[existing].MemberIDs()
	}

	room, ok := r.rooms[key]
	if !ok {
		room = domain.NewRoom(key)
		r.rooms[key] = room
		r.log.Debug("room created", slog.String("room", key))
	}

	room.Participants = append(room.Participants, p)
	r.memberships[p.ID] = key
	return room.MemberIDs()
}

// Leave removes the participant from whichever room it belongs to. The room
// and its chat log are deleted atomically with the removal of the last
// member. Unknown identifiers are a benign no-op, so the call is idempotent.
// It returns the room key and the remaining members for departure fan-out.
func (r *Registry) Leave(participantID string) (string, []*domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.memberships[participantID]
	if !ok {
		return "", nil, false
	}
	delete(r.memberships, participantID)

	room := r.rooms[key]
	room.Remove(participantID)

	if len(room.Participants) == 0 {
		delete(r.rooms, key)
		r.log.Debug("room deleted", slog.String("room", key))
		return key, nil, true
	}

	remaining := make([]*domain.Participant, len(room.Participants))
	copy(remaining, room.Participants)
	return key, remaining, true
}

// RecordChat appends the entry to the sender's room log and returns the
// membership snapshot for fan-out. A sender that belongs to no room gets a
// false result and nothing is recorded.
func (r *Registry) RecordChat(participantID string, entry *domain.ChatEntry) ([]*domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.memberships[participantID]
	if !ok {
		return nil, false
	}

	room := r.rooms[key]
	entry.RoomKey = key
	room.Chat = append(room.Chat, entry)
	if r.historyLimit > 0 && len(room.Chat) > r.historyLimit {
		room.Chat = room.Chat[len(room.Chat)-r.historyLimit:]
	}

	members := make([]*domain.Participant, len(room.Participants))
	copy(members, room.Participants)
	return members, true
}

// History returns the room's chat log in insertion order, or nil if the room
// does not exist.
func (r *Registry) History(roomKey string) []*domain.ChatEntry {
	key := domain.NormalizeRoomKey(roomKey)

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[key]
	if !ok {
		return nil
	}
	entries := make([]*domain.ChatEntry, len(room.Chat))
	copy(entries, room.Chat)
	return entries
}

// Members returns the membership snapshot of a room in join order.
func (r *Registry) Members(roomKey string) []*domain.Participant {
	key := domain.NormalizeRoomKey(roomKey)

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[key]
	if !ok {
		return nil
	}
	members := make([]*domain.Participant, len(room.Participants))
	copy(members, room.Participants)
	return members
}

// RoomOf reports which room the participant currently belongs to.
func (r *Registry) RoomOf(participantID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.memberships[participantID]
	return key, ok
}

// RoomCount is a diagnostics counter.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
