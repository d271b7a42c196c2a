// Package lifecycle turns anonymous join requests into verified, reconnectable
// player sessions for one game instance.
//
// A player moves through three stages: a Reservation made by the join request,
// a pending channel once its real-time connection arrives, and a Session once
// the channel proves its credentials. Every stage that waits on the client owns
// a countdown and evicts itself when it expires.
package lifecycle

import (
	"io"
	"log/slog"
	"sync"

	"github.com/mcoot/partygate/internal/dependencies/clock"
	"github.com/mcoot/partygate/internal/model"
	"github.com/mcoot/partygate/internal/services/registry"
	"github.com/mcoot/partygate/internal/services/timeout"
	"github.com/mcoot/partygate/internal/services/verify"
)

// record is the single arena entry for a player, whatever its phase
type record struct {
	model.Connection

	timer   timeout.TimerID // countdown for Reserved and ChannelPending
	attempt *reconnectAttempt
}

// reconnectAttempt is a new channel trying to resume a disconnected session
type reconnectAttempt struct {
	channel model.Channel
	timer   timeout.TimerID
}

// Stats counts live records per stage
type Stats struct {
	Reservations int
	Pending      int
	Sessions     int
	Connected    int
	Reconnecting int
	AddressKeys  int
	NameKeys     int
}

// Live returns the number of live records across all stages
func (s Stats) Live() int {
	return s.Reservations + s.Pending + s.Sessions
}

// Manager runs the connection lifecycle for one game instance. All state is
// owned by a single event-loop goroutine; public methods block until the loop
// has handled them.
type Manager struct {
	cfg      Config
	clock    clock.Clock
	timers   *timeout.Scheduler
	verifier *verify.Engine
	logger   *slog.Logger

	// Owned by the event loop
	nextHandle model.Handle
	records    map[model.Handle]*record
	registries *registry.Registries
	channels   map[model.Channel]model.Handle

	events    chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Manager and starts its event loop. tokens may be nil when the
// token method is not configured.
func New(cfg Config, clk clock.Clock, tokens verify.TokenParser, logger *slog.Logger) (*Manager, error) {
	cfg.applyDefaults()

	verifier, err := verify.New(verify.Config{
		Methods:           cfg.Methods,
		ValidateJoin:      cfg.ValidateJoin,
		ValidateReconnect: cfg.ValidateReconnect,
	}, tokens)
	if err != nil {
		return nil, err
	}

	if logger == nil || !cfg.EnableLogging {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	m := &Manager{
		cfg:        cfg,
		clock:      clk,
		timers:     timeout.New(clk),
		verifier:   verifier,
		logger:     logger.With(slog.String("component", "lifecycle"), slog.String("game", cfg.GameID)),
		records:    make(map[model.Handle]*record),
		registries: registry.New(),
		channels:   make(map[model.Channel]model.Handle),
		events:     make(chan func()),
		done:       make(chan struct{}),
	}
	go m.run()
	return m, nil
}

func (m *Manager) run() {
	for {
		select {
		case ev := <-m.events:
			ev()
		case <-m.done:
			return
		}
	}
}

// do runs f on the event loop and waits for it. It returns false if the
// manager has been closed.
func (m *Manager) do(f func()) bool {
	finished := make(chan struct{})
	select {
	case m.events <- func() { f(); close(finished) }:
	case <-m.done:
		return false
	}
	<-finished
	return true
}

// GameID returns the game this manager serves
func (m *Manager) GameID() string {
	return m.cfg.GameID
}

// Reserve holds a slot for displayName at address until a channel arrives.
// It returns false, changing nothing, if either key is already live or the
// game is at the capacity set by WithCapacity.
func (m *Manager) Reserve(displayName, token, address string, opts ...ReserveOption) bool {
	o := reserveOptions{timeout: m.cfg.ReservationTimeout, allowReconnects: true}
	for _, opt := range opts {
		opt(&o)
	}

	var ok bool
	m.do(func() { ok = m.reserve(displayName, token, address, o) })
	return ok
}

// Upgrade matches a newly connected channel to a reservation or a
// disconnected session at the same address. Unmatched channels are rejected.
func (m *Manager) Upgrade(ch model.Channel) {
	if !m.do(func() { m.upgrade(ch) }) {
		ch.Close("game closed")
	}
}

// Receive handles a message arriving on a channel
func (m *Manager) Receive(ch model.Channel, msg model.InboundMessage) {
	m.do(func() { m.receive(ch, msg) })
}

// ChannelClosed reports that the transport behind ch went away
func (m *Manager) ChannelClosed(ch model.Channel) {
	m.do(func() { m.channelLost(ch, false, "channel closed") })
}

// Remove hard-removes the record for displayName in whatever stage it is.
// Removing an unknown or already removed name is a no-op that returns false.
func (m *Manager) Remove(displayName, reason string) bool {
	var removed bool
	m.do(func() {
		h, ok := m.registries.Names.Lookup(model.NameKey(displayName))
		if !ok {
			return
		}
		m.remove(m.records[h], reason, nil)
		removed = true
	})
	return removed
}

// Session returns the session for displayName if one is Active
func (m *Manager) Session(displayName string) (model.Session, bool) {
	var (
		s  model.Session
		ok bool
	)
	m.do(func() {
		h, found := m.registries.Names.Lookup(model.NameKey(displayName))
		if !found {
			return
		}
		if rec := m.records[h]; rec.Phase == model.PhaseActive {
			s, ok = rec.session(), true
		}
	})
	return s, ok
}

// Snapshot returns a copy of every live record
func (m *Manager) Snapshot() []model.Connection {
	var out []model.Connection
	m.do(func() {
		out = make([]model.Connection, 0, len(m.records))
		for _, rec := range m.records {
			out = append(out, rec.Connection)
		}
	})
	return out
}

// Stats returns live record counts
func (m *Manager) Stats() Stats {
	var st Stats
	m.do(func() {
		for _, rec := range m.records {
			switch rec.Phase {
			case model.PhaseReserved:
				st.Reservations++
			case model.PhaseChannelPending:
				st.Pending++
			case model.PhaseActive:
				st.Sessions++
				if rec.Connected {
					st.Connected++
				}
				if rec.attempt != nil {
					st.Reconnecting++
				}
			}
		}
		st.AddressKeys = m.registries.Addresses.Len()
		st.NameKeys = m.registries.Names.Len()
	})
	return st
}

// PendingTimers returns the number of outstanding countdowns
func (m *Manager) PendingTimers() int {
	return m.timers.Pending()
}

// Close cancels every countdown, closes every channel and stops the event loop.
// Game callbacks are not invoked.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.do(func() {
			cancelled := m.timers.CancelAll()
			for ch := range m.channels {
				ch.Close("game closed")
			}
			m.logger.Info("lifecycle manager closed",
				slog.Int("live_records", len(m.records)),
				slog.Int("cancelled_timers", cancelled))
			m.channels = make(map[model.Channel]model.Handle)
			m.records = make(map[model.Handle]*record)
			m.registries = registry.New()
		})
		close(m.done)
	})
}

func (r *record) session() model.Session {
	return model.Session{
		Handle:           r.Handle,
		DisplayName:      r.DisplayName,
		Address:          r.Address,
		Connected:        r.Connected,
		FirstConnectedAt: r.FirstConnectedAt,
		LastConnectedAt:  r.LastConnectedAt,
		DisconnectedAt:   r.DisconnectedAt,
	}
}
