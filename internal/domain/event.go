package domain

import (
	"encoding/json"
	"time"
)

// EventType names the logical event kinds exchanged over the signaling
// channel. Client-to-server and server-to-client kinds share one namespace.
type EventType string

const (
	// Client to server.
	EventJoinRoom    EventType = "join-room"
	EventRelaySignal EventType = "relay-signal"
	EventChatSend    EventType = "chat-send"

	// Server to client.
	EventWelcome          EventType = "welcome"
	EventPresenceAnnounce EventType = "presence-announce"
	EventPresenceDeparted EventType = "presence-departed"
	EventSignalDelivered  EventType = "signal-delivered"
	EventChatRelay        EventType = "chat-relay"
)

// Event is the wire envelope for every message on the signaling channel.
// Payload is opaque to the server: it is carried as raw JSON and forwarded
// verbatim, which keeps the relay media-protocol-agnostic.
type Event struct {
	Type     EventType       `json:"type"`
	Room     string          `json:"room,omitempty"`
	SenderID string          `json:"sender_id,omitempty"`
	TargetID string          `json:"target_id,omitempty"`
	Members  []string        `json:"members,omitempty"`
	Label    string          `json:"label,omitempty"`
	Body     string          `json:"body,omitempty"`
	SentAt   string          `json:"sent_at,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ChatRelayEvent builds the broadcast form of a recorded chat entry. The
// timestamp rides along so receivers can de-duplicate by the
// (sender, body, timestamp) triple.
func ChatRelayEvent(entry *ChatEntry) Event {
	return Event{
		Type:     EventChatRelay,
		Room:     entry.RoomKey,
		SenderID: entry.SenderID,
		Label:    entry.Label,
		Body:     entry.Body,
		SentAt:   entry.SentAt.Format(time.RFC3339Nano),
	}
}
