package lifecycle

import (
	"time"

	"github.com/mcoot/partygate/internal/model"
	"github.com/mcoot/partygate/internal/services/verify"
)

// Config holds the per-game configuration of a Manager
type Config struct {
	GameID string

	// Game callbacks. They run on the manager's event loop and must not call
	// back into the same Manager.
	OnJoin      func(s model.Session)
	OnLeave     func(s model.Session, intentional bool) model.LeaveDecision
	OnReconnect func(s model.Session)

	// Optional external validators, AND-combined with the configured methods
	ValidateJoin      verify.Validator
	ValidateReconnect verify.Validator

	Methods       []verify.Method
	EnableLogging bool

	ReservationTimeout time.Duration // Reserved, waiting for a channel
	ChannelTimeout     time.Duration // ChannelPending, waiting for credentials
	ReconnectTimeout   time.Duration // Reconnection attempt, waiting for credentials
}

// DefaultConfig returns the default configuration for a game
func DefaultConfig(gameID string) Config {
	return Config{
		GameID:             gameID,
		Methods:            verify.DefaultMethods(),
		EnableLogging:      true,
		ReservationTimeout: 30 * time.Second,
		ChannelTimeout:     30 * time.Second,
		ReconnectTimeout:   30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig(c.GameID)
	if c.OnJoin == nil {
		c.OnJoin = func(model.Session) {}
	}
	if c.OnLeave == nil {
		c.OnLeave = DefaultLeavePolicy
	}
	if c.OnReconnect == nil {
		c.OnReconnect = func(model.Session) {}
	}
	if len(c.Methods) == 0 {
		c.Methods = def.Methods
	}
	if c.ReservationTimeout <= 0 {
		c.ReservationTimeout = def.ReservationTimeout
	}
	if c.ChannelTimeout <= 0 {
		c.ChannelTimeout = def.ChannelTimeout
	}
	if c.ReconnectTimeout <= 0 {
		c.ReconnectTimeout = def.ReconnectTimeout
	}
}

// DefaultLeavePolicy removes sessions that left on purpose and keeps the rest
// for reconnection.
func DefaultLeavePolicy(_ model.Session, intentional bool) model.LeaveDecision {
	if intentional {
		return model.LeaveDecision{ShouldRemove: true, RemovalReason: "left the game"}
	}
	return model.LeaveDecision{}
}

// ReserveOption customises a single reservation
type ReserveOption func(*reserveOptions)

type reserveOptions struct {
	timeout         time.Duration
	allowReconnects bool
	capacity        int
}

// WithTimeout overrides how long the reservation waits for a channel
func WithTimeout(d time.Duration) ReserveOption {
	return func(o *reserveOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithReconnects sets whether the resulting session may be resumed after a disconnect
func WithReconnects(allow bool) ReserveOption {
	return func(o *reserveOptions) {
		o.allowReconnects = allow
	}
}

// WithCapacity refuses the reservation while n or more records are live.
// Zero or less means no limit.
func WithCapacity(n int) ReserveOption {
	return func(o *reserveOptions) {
		o.capacity = n
	}
}
