package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
	"github.com/immxrtalbeast/meshtalk/internal/relay"
	"github.com/immxrtalbeast/meshtalk/lib/logger/sl"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // enough for any SDP
)

// CallController terminates signaling websockets. Each accepted connection
// becomes a participant whose identifier lives exactly as long as the socket.
type CallController struct {
	router   *relay.Router
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewCallController(router *relay.Router, log *slog.Logger) *CallController {
	if log == nil {
		log = slog.Default()
	}
	return &CallController{
		router: router,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Serve upgrades the connection and runs the read loop. Room membership is
// not implied by the URL: the client announces itself with a join-room event,
// and everything after that flows through the relay router.
func (c *CallController) Serve(ctx *gin.Context) {
	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Error("websocket upgrade failed", sl.Err(err))
		return
	}

	participant := domain.NewParticipant()
	c.router.Attach(participant)

	// The identifier is transport-assigned, so the client learns it from the
	// first event on the channel.
	participant.Enqueue(domain.Event{
		Type:     domain.EventWelcome,
		SenderID: participant.ID,
	})

	go c.writePump(conn, participant)
	c.readPump(conn, participant)
}

// readPump executes all reads for the connection and dispatches each frame to
// the router. Per-connection serialization here is what closes the
// join-versus-leave race for a single identifier.
func (c *CallController) readPump(conn *websocket.Conn, p *domain.Participant) {
	defer func() {
		c.router.Detach(p)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var event domain.Event
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read loop ended", slog.String("participant", p.ID), sl.Err(err))
			}
			return
		}
		if err := c.router.Dispatch(p, event); err != nil {
			c.log.Warn("event rejected", slog.String("participant", p.ID), sl.Err(err))
		}
	}
}

// writePump drains the participant's event channel onto the socket and keeps
// the connection alive with pings. It exits when the channel is sealed or a
// write fails.
func (c *CallController) writePump(conn *websocket.Conn, p *domain.Participant) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-p.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				c.log.Debug("write failed", slog.String("participant", p.ID), sl.Err(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
