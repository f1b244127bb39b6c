package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatEntry is one recorded chat line. The sender label is free text supplied
// by the client and is not authenticated against any identity; the originating
// participant identifier is what ties the entry to a connection.
type ChatEntry struct {
	ID       uuid.UUID
	RoomKey  string
	SenderID string
	Label    string
	Body     string
	SentAt   time.Time
}

// AnonymousLabel substitutes for an empty sender label on fan-out.
const AnonymousLabel = "Anonymous"

func NewChatEntry(senderID, label, body string) *ChatEntry {
	if label == "" {
		label = AnonymousLabel
	}
	return &ChatEntry{
		ID:       uuid.New(),
		SenderID: senderID,
		Label:    label,
		Body:     body,
		SentAt:   time.Now().UTC(),
	}
}
