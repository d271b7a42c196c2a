package testutil

import (
	"sync"

	"github.com/mcoot/partygate/internal/model"
)

// FakeChannel is an in-memory model.Channel that records what it was sent
type FakeChannel struct {
	mu     sync.Mutex
	addr   string
	sent   []model.OutboundMessage
	closed bool
	reason string
}

// NewFakeChannel creates a FakeChannel coming from addr
func NewFakeChannel(addr string) *FakeChannel {
	return &FakeChannel{addr: addr}
}

func (c *FakeChannel) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

func (c *FakeChannel) Send(msg model.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *FakeChannel) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason
}

// SetAddr changes the address the channel reports from now on
func (c *FakeChannel) SetAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addr = addr
}

// Closed reports whether Close has been called
func (c *FakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseReason returns the reason passed to the first Close call
func (c *FakeChannel) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Last returns the most recent message, or the zero message if none were sent
func (c *FakeChannel) Last() model.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return model.OutboundMessage{}
	}
	return c.sent[len(c.sent)-1]
}

// Types returns the type of every message sent so far
func (c *FakeChannel) Types() []model.MessageType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.MessageType, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.Type
	}
	return out
}
