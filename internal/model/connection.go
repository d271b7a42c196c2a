package model

import "time"

// Handle is a stable identifier for a connection record within one game instance
type Handle uint64

// Phase is the lifecycle stage of a connection record
type Phase int

const (
	PhaseReserved       Phase = iota // Join request accepted, no channel yet
	PhaseChannelPending              // Channel matched, awaiting credentials
	PhaseActive                      // Verified session, connected or not
	PhaseRemoved                     // Terminal
)

// String returns the phase name used in logs
func (p Phase) String() string {
	switch p {
	case PhaseReserved:
		return "reserved"
	case PhaseChannelPending:
		return "channel_pending"
	case PhaseActive:
		return "active"
	case PhaseRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Connection is a snapshot of a connection record in any phase.
// Channel is nil while Reserved; the Session timestamps are zero until Active.
type Connection struct {
	Handle          Handle
	Phase           Phase
	DisplayName     string
	Token           string
	Address         string
	CreatedAt       time.Time
	AllowReconnects bool

	Channel Channel

	Connected        bool
	FirstConnectedAt time.Time
	LastConnectedAt  time.Time
	DisconnectedAt   time.Time
}

// Session is the view of an Active connection handed to game callbacks
type Session struct {
	Handle           Handle
	DisplayName      string
	Address          string
	Connected        bool
	FirstConnectedAt time.Time
	LastConnectedAt  time.Time
	DisconnectedAt   time.Time
}

// LeaveDecision is the game's answer to a session losing its channel
type LeaveDecision struct {
	ShouldRemove  bool
	RemovalReason string
}

// Channel is a bidirectional real-time transport to one client
type Channel interface {
	// RemoteAddr returns the client address the channel currently comes from
	RemoteAddr() string
	// Send queues a message for the client; it must not block
	Send(msg OutboundMessage) error
	// Close terminates the channel; closing twice is a no-op
	Close(reason string)
}
