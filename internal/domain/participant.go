package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Participant is one connected client instance. The identifier is assigned by
// the transport layer at connect time and dies with the connection; a
// reconnecting client comes back as a brand-new participant.
type Participant struct {
	ID       string
	JoinedAt time.Time

	mu     sync.Mutex
	events chan Event
	closed bool
}

const eventBuffer = 32

func NewParticipant() *Participant {
	return &Participant{
		ID:       uuid.New().String(),
		JoinedAt: time.Now().UTC(),
		events:   make(chan Event, eventBuffer),
	}
}

// Enqueue hands an event to the participant's write pump. Delivery is fire and
// forget: a full buffer or a closed participant drops the event. It reports
// whether the event was accepted.
func (p *Participant) Enqueue(event Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.events <- event:
		return true
	default:
		return false
	}
}

// Events is the channel the write pump drains. It is closed by Close.
func (p *Participant) Events() <-chan Event {
	return p.events
}

// Close seals the event channel. Safe to call more than once and concurrently
// with Enqueue.
func (p *Participant) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.events)
}

// TimeOnline reports how long the participant has been connected, for
// disconnect diagnostics only.
func (p *Participant) TimeOnline() time.Duration {
	return time.Since(p.JoinedAt)
}
