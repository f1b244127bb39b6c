package http

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
	"github.com/immxrtalbeast/meshtalk/internal/registry"
	"github.com/immxrtalbeast/meshtalk/internal/relay"
)

const readTimeout = 2 * time.Second

func newSignalingServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := relay.New(registry.New(nil, 0), nil)
	engine := SetupRouter(NewCallController(router, nil), nil, nil, nil)

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)
	return server
}

// wsClient is one signaling connection with its server-assigned identifier.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func dial(t *testing.T, server *httptest.Server) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client := &wsClient{t: t, conn: conn}
	welcome := client.read()
	require.Equal(t, domain.EventWelcome, welcome.Type)
	require.NotEmpty(t, welcome.SenderID)
	client.id = welcome.SenderID
	return client
}

func (c *wsClient) send(event domain.Event) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(event))
}

func (c *wsClient) read() domain.Event {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var event domain.Event
	require.NoError(c.t, c.conn.ReadJSON(&event))
	return event
}

func (c *wsClient) join(room string) {
	c.send(domain.Event{Type: domain.EventJoinRoom, Room: room})
}

func (c *wsClient) expectAnnounce(newID string, members ...string) {
	c.t.Helper()
	event := c.read()
	require.Equal(c.t, domain.EventPresenceAnnounce, event.Type)
	assert.Equal(c.t, newID, event.SenderID)
	assert.Equal(c.t, members, event.Members)
}

func TestWelcomeCarriesIdentifier(t *testing.T) {
	server := newSignalingServer(t)

	a := dial(t, server)
	b := dial(t, server)

	assert.NotEqual(t, a.id, b.id)
}

func TestThreePartyCall(t *testing.T) {
	server := newSignalingServer(t)

	a := dial(t, server)
	a.join("demo")
	a.expectAnnounce(a.id, a.id)

	b := dial(t, server)
	b.join("demo")
	a.expectAnnounce(b.id, a.id, b.id)
	b.expectAnnounce(b.id, a.id, b.id)

	c := dial(t, server)
	c.join("demo")
	a.expectAnnounce(c.id, a.id, b.id, c.id)
	b.expectAnnounce(c.id, a.id, b.id, c.id)
	c.expectAnnounce(c.id, a.id, b.id, c.id)

	// A signal from c to a arrives only at a, payload untouched.
	payload := json.RawMessage(`{"sdp":{"type":"offer","sdp":"v=0"}}`)
	c.send(domain.Event{
		Type:     domain.EventRelaySignal,
		TargetID: a.id,
		Payload:  payload,
	})

	signal := a.read()
	require.Equal(t, domain.EventSignalDelivered, signal.Type)
	assert.Equal(t, c.id, signal.SenderID)
	assert.JSONEq(t, string(payload), string(signal.Payload))

	// Chat reaches everyone, the sender included. For b this must be the
	// next frame: the signal was never fanned out.
	b.send(domain.Event{Type: domain.EventChatSend, Body: "hello", Label: "Bea"})
	for _, client := range []*wsClient{a, b, c} {
		chat := client.read()
		require.Equal(t, domain.EventChatRelay, chat.Type)
		assert.Equal(t, b.id, chat.SenderID)
		assert.Equal(t, "hello", chat.Body)
		assert.Equal(t, "Bea", chat.Label)
		assert.NotEmpty(t, chat.SentAt)
	}
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	server := newSignalingServer(t)

	a := dial(t, server)
	a.join("demo")
	a.expectAnnounce(a.id, a.id)

	b := dial(t, server)
	b.join("demo")
	a.expectAnnounce(b.id, a.id, b.id)
	b.expectAnnounce(b.id, a.id, b.id)

	require.NoError(t, b.conn.Close())

	departed := a.read()
	assert.Equal(t, domain.EventPresenceDeparted, departed.Type)
	assert.Equal(t, b.id, departed.SenderID)
}

func TestChatHistoryReplaysToNewcomer(t *testing.T) {
	server := newSignalingServer(t)

	a := dial(t, server)
	a.join("demo")
	a.expectAnnounce(a.id, a.id)

	a.send(domain.Event{Type: domain.EventChatSend, Body: "early bird", Label: "Ann"})
	require.Equal(t, domain.EventChatRelay, a.read().Type)

	b := dial(t, server)
	b.join("demo")
	b.expectAnnounce(b.id, a.id, b.id)

	replayed := b.read()
	assert.Equal(t, domain.EventChatRelay, replayed.Type)
	assert.Equal(t, "early bird", replayed.Body)
	assert.Equal(t, "Ann", replayed.Label)
}
