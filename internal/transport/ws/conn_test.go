package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/partygate/internal/model"
	"github.com/mcoot/partygate/internal/testutil"
)

// echoHandler challenges every channel, accepts any credentials and can be
// told to reject instead
type echoHandler struct {
	mu       sync.Mutex
	channels []model.Channel
	received []model.InboundMessage
	reject   bool
	lost     chan model.Channel
}

func newEchoHandler() *echoHandler {
	return &echoHandler{lost: make(chan model.Channel, 4)}
}

func (h *echoHandler) Upgrade(ch model.Channel) {
	h.mu.Lock()
	h.channels = append(h.channels, ch)
	reject := h.reject
	h.mu.Unlock()

	if reject {
		_ = ch.Send(model.OutboundMessage{Type: model.MessageRejected, Reasons: []string{"no reservation"}})
		ch.Close("rejected")
		return
	}
	_ = ch.Send(model.OutboundMessage{Type: model.MessageChallenge, GameCode: "ABC123"})
}

func (h *echoHandler) Receive(ch model.Channel, msg model.InboundMessage) {
	h.mu.Lock()
	h.received = append(h.received, msg)
	h.mu.Unlock()
	if msg.Type == model.MessageSubmitCredentials {
		_ = ch.Send(model.OutboundMessage{Type: model.MessageAccepted})
	}
}

func (h *echoHandler) ChannelClosed(ch model.Channel) {
	h.lost <- ch
}

func startServer(t *testing.T, h Handler) string {
	t.Helper()
	up := NewUpgrader(DefaultConfig(), testutil.NopLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = up.Serve(w, r, "10.0.0.1", h)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readOutbound(t *testing.T, conn *websocket.Conn) model.OutboundMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg model.OutboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestChallengeAndAccept(t *testing.T) {
	h := newEchoHandler()
	conn := dial(t, startServer(t, h))

	msg := readOutbound(t, conn)
	assert.Equal(t, model.MessageChallenge, msg.Type)
	assert.Equal(t, "ABC123", msg.GameCode)

	err := conn.WriteJSON(model.InboundMessage{
		Type:        model.MessageSubmitCredentials,
		Credentials: model.Credentials{Token: "tok", DisplayName: "alice", GameCode: "ABC123"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.MessageAccepted, readOutbound(t, conn).Type)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.received, 1)
	assert.Equal(t, "tok", h.received[0].Token)
	assert.Equal(t, "alice", h.received[0].DisplayName)
	assert.Equal(t, "10.0.0.1", h.channels[0].RemoteAddr())
}

func TestWireFormat(t *testing.T) {
	h := newEchoHandler()
	conn := dial(t, startServer(t, h))
	readOutbound(t, conn)

	raw := `{"type":"submit-credentials","token":"t","displayName":"bob","gamecode":"XYZ"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
	readOutbound(t, conn)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.received, 1)
	assert.Equal(t, model.Credentials{Token: "t", DisplayName: "bob", GameCode: "XYZ"}, h.received[0].Credentials)
}

func TestMalformedMessageIgnored(t *testing.T) {
	h := newEchoHandler()
	conn := dial(t, startServer(t, h))
	readOutbound(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(model.InboundMessage{Type: model.MessageSubmitCredentials}))

	assert.Equal(t, model.MessageAccepted, readOutbound(t, conn).Type)
}

func TestRejectThenClose(t *testing.T) {
	h := newEchoHandler()
	h.reject = true
	conn := dial(t, startServer(t, h))

	msg := readOutbound(t, conn)
	assert.Equal(t, model.MessageRejected, msg.Type)
	assert.Equal(t, []string{"no reservation"}, msg.Reasons)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "rejected", closeErr.Text)
}

func TestClientDisconnectReported(t *testing.T) {
	h := newEchoHandler()
	conn := dial(t, startServer(t, h))
	readOutbound(t, conn)

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))

	select {
	case ch := <-h.lost:
		assert.Equal(t, "10.0.0.1", ch.RemoteAddr())
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not told the channel closed")
	}
}

func TestSendAfterCloseAndBufferFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendBuffer = 1
	c := newConn(nil, "10.0.0.1", cfg, testutil.NopLogger())

	require.NoError(t, c.Send(model.OutboundMessage{Type: model.MessageChallenge}))
	assert.ErrorIs(t, c.Send(model.OutboundMessage{Type: model.MessageAccepted}), ErrBufferFull)

	c.Close("done")
	c.Close("again")
	assert.ErrorIs(t, c.Send(model.OutboundMessage{Type: model.MessageAccepted}), ErrClosed)
	assert.Equal(t, "done", c.closeReason())
}

func TestCloseReasonTruncated(t *testing.T) {
	c := newConn(nil, "10.0.0.1", DefaultConfig(), testutil.NopLogger())
	c.Close(strings.Repeat("x", 200))
	assert.Len(t, c.closeReason(), maxCloseReason)
}

func TestCloseReasonKeepsRunesWhole(t *testing.T) {
	// 41 three-byte runes: the 123 byte limit falls on a rune boundary, one more byte does not
	c := newConn(nil, "10.0.0.1", DefaultConfig(), testutil.NopLogger())
	c.Close("a" + strings.Repeat("€", 41))

	reason := c.closeReason()
	assert.True(t, utf8.ValidString(reason))
	assert.Equal(t, "a"+strings.Repeat("€", 40), reason)
	assert.LessOrEqual(t, len(reason), maxCloseReason)
}
