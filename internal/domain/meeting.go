package domain

import (
	"time"

	"github.com/google/uuid"
)

// Meeting is a "meeting joined" history record keyed by account username and
// room code. It is the only state that survives a server restart.
type Meeting struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	MeetingCode string    `json:"meeting_code"`
	JoinedAt    time.Time `json:"joined_at"`
}

func NewMeeting(username, meetingCode string) *Meeting {
	return &Meeting{
		ID:          uuid.New(),
		Username:    username,
		MeetingCode: meetingCode,
		JoinedAt:    time.Now().UTC(),
	}
}
