// Package ws carries lifecycle channels over gorilla/websocket connections.
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/mcoot/partygate/internal/model"
)

var (
	ErrClosed     = errors.New("channel closed")
	ErrBufferFull = errors.New("channel send buffer full")
)

// Handler receives channel events; a lifecycle manager satisfies it
type Handler interface {
	Upgrade(ch model.Channel)
	Receive(ch model.Channel, msg model.InboundMessage)
	ChannelClosed(ch model.Channel)
}

// Config holds websocket transport settings
type Config struct {
	WriteWait      time.Duration // Time allowed to write a message to the peer
	PongWait       time.Duration // Time allowed to read the next pong from the peer
	PingPeriod     time.Duration // Must be less than PongWait
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultConfig returns the default transport configuration
func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     16,
	}
}

// maxCloseReason is the largest reason a close frame can carry
const maxCloseReason = 123

// Conn is a model.Channel backed by a websocket connection
type Conn struct {
	conn   *websocket.Conn
	remote string
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	send   chan model.OutboundMessage
	closed bool
	reason string
}

var _ model.Channel = (*Conn)(nil)

func newConn(conn *websocket.Conn, remote string, cfg Config, logger *slog.Logger) *Conn {
	return &Conn{
		conn:   conn,
		remote: remote,
		cfg:    cfg,
		logger: logger,
		send:   make(chan model.OutboundMessage, cfg.SendBuffer),
	}
}

// RemoteAddr returns the client address resolved when the request arrived
func (c *Conn) RemoteAddr() string {
	return c.remote
}

// Send queues msg without blocking
func (c *Conn) Send(msg model.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close flushes queued messages, then sends a close frame carrying reason
func (c *Conn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason
	close(c.send)
}

func (c *Conn) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return truncateReason(c.reason, maxCloseReason)
}

// truncateReason cuts s to at most n bytes without splitting a rune
func truncateReason(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Upgrader upgrades HTTP requests and runs the resulting channels
type Upgrader struct {
	upgrader websocket.Upgrader
	cfg      Config
	logger   *slog.Logger
}

// NewUpgrader creates an Upgrader
func NewUpgrader(cfg Config, logger *slog.Logger) *Upgrader {
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ws")),
	}
}

// Serve upgrades the request and hands the channel to h. It blocks until the
// connection ends, then reports the loss to h.
func (u *Upgrader) Serve(w http.ResponseWriter, r *http.Request, remote string, h Handler) error {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := newConn(conn, remote, u.cfg, u.logger.With(slog.String("remote", remote)))
	c.logger.Debug("websocket connected")

	writerDone := make(chan struct{})
	go func() {
		c.writePump()
		close(writerDone)
	}()

	h.Upgrade(c)
	c.readPump(h)
	h.ChannelClosed(c)

	c.Close("connection closed")
	<-writerDone
	c.logger.Debug("websocket finished")
	return nil
}

func (c *Conn) readPump(h Handler) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("websocket closed unexpectedly", slog.Any("error", err))
			}
			return
		}

		var msg model.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("malformed channel message ignored", slog.Any("error", err))
			continue
		}
		h.Receive(c, msg)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason()))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
