// Package signaling is the client side of the relay channel: one persistent
// websocket carrying the event envelope in both directions.
package signaling

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the websocket connection to the relay.
type Client struct {
	serverURL string
	conn      *websocket.Conn
	incoming  chan domain.Event
	outgoing  chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan domain.Event, 32),
		outgoing:  make(chan domain.Event, 32),
		done:      make(chan struct{}),
	}
}

// Connect dials the relay and starts the read and write pumps.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("dial signaling server: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// JoinRoom announces the client into a room. Room keys are lower-cased by
// convention before they go on the wire.
func (c *Client) JoinRoom(roomKey string) {
	c.Send(domain.Event{
		Type: domain.EventJoinRoom,
		Room: domain.NormalizeRoomKey(roomKey),
	})
}

// SendSignal relays an opaque negotiation payload to one participant.
func (c *Client) SendSignal(targetID string, payload domain.SignalPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.Send(domain.Event{
		Type:     domain.EventRelaySignal,
		TargetID: targetID,
		Payload:  raw,
	})
	return nil
}

// SendChat broadcasts a chat line to the whole room.
func (c *Client) SendChat(body, label string) {
	c.Send(domain.Event{
		Type:  domain.EventChatSend,
		Body:  body,
		Label: label,
	})
}

// Send queues an event for the write pump. Drops when the client is closing.
func (c *Client) Send(event domain.Event) {
	select {
	case c.outgoing <- event:
	case <-c.done:
	}
}

// Incoming returns the channel of events delivered by the relay. It is
// closed when the connection ends.
func (c *Client) Incoming() <-chan domain.Event {
	return c.incoming
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var event domain.Event
		if err := c.conn.ReadJSON(&event); err != nil {
			return
		}

		select {
		case c.incoming <- event:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
