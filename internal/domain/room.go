package domain

import (
	"strings"
	"time"
)

// Room groups the participants that exchange signaling and chat with each
// other. It exists only while at least one participant is joined; the registry
// creates it on first join and discards it, chat log included, the moment the
// last participant leaves.
//
// A Room carries no lock of its own: all mutation goes through the registry,
// which serializes access.
type Room struct {
	Key          string
	Participants []*Participant
	Chat         []*ChatEntry
	CreatedAt    time.Time
}

// NormalizeRoomKey canonicalizes a client-supplied room key. Keys are opaque
// and never validated, but they are case-insensitive.
func NormalizeRoomKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func NewRoom(key string) *Room {
	return &Room{
		Key:       key,
		CreatedAt: time.Now().UTC(),
	}
}

// MemberIDs returns the participant identifiers in join order.
func (r *Room) MemberIDs() []string {
	ids := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

// Contains reports whether the participant identifier is a member.
func (r *Room) Contains(participantID string) bool {
	for _, p := range r.Participants {
		if p.ID == participantID {
			return true
		}
	}
	return false
}

// Remove drops the participant while preserving the join order of the rest.
// It reports whether the participant was a member.
func (r *Room) Remove(participantID string) bool {
	for i, p := range r.Participants {
		if p.ID == participantID {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return true
		}
	}
	return false
}
