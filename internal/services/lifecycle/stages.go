package lifecycle

import (
	"log/slog"
	"time"

	"github.com/mcoot/partygate/internal/model"
	"github.com/mcoot/partygate/internal/services/timeout"
	"github.com/mcoot/partygate/internal/services/verify"
)

const (
	reasonNoReservation   = "no reservation for this address"
	reasonChannelTimeout  = "credentials not submitted in time"
	reasonReconnectTimout = "reconnection not completed in time"
)

func (m *Manager) reserve(displayName, token, address string, o reserveOptions) bool {
	if o.capacity > 0 && len(m.records) >= o.capacity {
		m.logger.Info("reservation refused, game is full",
			slog.String("display_name", displayName),
			slog.Int("capacity", o.capacity))
		return false
	}

	addrTaken, nameTaken := m.registries.Taken(address, displayName)
	if addrTaken || nameTaken {
		// The join handler checks availability first, so this is a caller bug or a race
		m.logger.Warn("reservation collides with a live connection",
			slog.String("display_name", displayName),
			slog.String("address", address),
			slog.Bool("address_taken", addrTaken),
			slog.Bool("name_taken", nameTaken),
			slog.String("error", model.ErrAnomaly.Error()))
		return false
	}

	m.nextHandle++
	rec := &record{Connection: model.Connection{
		Handle:          m.nextHandle,
		Phase:           model.PhaseReserved,
		DisplayName:     displayName,
		Token:           token,
		Address:         address,
		CreatedAt:       m.clock.Now(),
		AllowReconnects: o.allowReconnects,
	}}
	m.registries.Claim(address, displayName, rec.Handle)
	m.records[rec.Handle] = rec
	rec.timer = m.schedule(rec.Handle, o.timeout)

	m.logger.Info("slot reserved",
		slog.String("display_name", displayName),
		slog.String("address", address),
		slog.Duration("timeout", o.timeout))
	return true
}

func (m *Manager) upgrade(ch model.Channel) {
	if _, bound := m.channels[ch]; bound {
		return
	}

	addr := ch.RemoteAddr()
	var rec *record
	if h, ok := m.registries.Addresses.Lookup(addr); ok {
		rec = m.records[h]
	}

	switch {
	case rec != nil && rec.Phase == model.PhaseReserved:
		if !m.promote(rec, model.PhaseChannelPending) {
			m.reject(ch, []string{reasonNoReservation})
			return
		}
		rec.Channel = ch
		m.channels[ch] = rec.Handle
		rec.timer = m.schedule(rec.Handle, m.cfg.ChannelTimeout)
		m.send(ch, model.OutboundMessage{Type: model.MessageChallenge, GameCode: m.cfg.GameID})
		m.logger.Info("channel matched to reservation",
			slog.String("display_name", rec.DisplayName),
			slog.String("address", addr))

	case rec != nil && rec.Phase == model.PhaseActive && !rec.Connected && rec.AllowReconnects && rec.attempt == nil:
		rec.attempt = &reconnectAttempt{channel: ch}
		m.channels[ch] = rec.Handle
		rec.attempt.timer = m.schedule(rec.Handle, m.cfg.ReconnectTimeout)
		m.send(ch, model.OutboundMessage{Type: model.MessageChallenge, GameCode: m.cfg.GameID})
		m.logger.Info("reconnection attempt started",
			slog.String("display_name", rec.DisplayName),
			slog.String("address", addr))

	default:
		m.logger.Warn("unsolicited channel rejected", slog.String("address", addr))
		m.reject(ch, []string{reasonNoReservation})
	}
}

func (m *Manager) receive(ch model.Channel, msg model.InboundMessage) {
	h, ok := m.channels[ch]
	if !ok {
		m.logger.Debug("message from unbound channel ignored", slog.String("type", string(msg.Type)))
		return
	}
	rec := m.records[h]
	reconnecting := rec.attempt != nil && rec.attempt.channel == ch

	switch msg.Type {
	case model.MessageSubmitCredentials:
		switch {
		case reconnecting:
			m.completeReconnect(rec, msg.Credentials)
		case rec.Phase == model.PhaseChannelPending:
			m.completeJoin(rec, msg.Credentials)
		default:
			m.logger.Debug("duplicate credential submission ignored", slog.String("display_name", rec.DisplayName))
		}
	case model.MessageLeave:
		m.channelLost(ch, false, msg.Reason)
	case model.MessageIntentionalLeave:
		m.channelLost(ch, true, "intentional leave")
	default:
		m.logger.Debug("unknown message ignored", slog.String("type", string(msg.Type)))
	}
}

func (m *Manager) completeJoin(rec *record, creds model.Credentials) {
	res := m.verifier.Verify(m.connectionFor(rec, rec.Channel), creds, false)
	if !res.Valid {
		m.logger.Warn("credential verification failed",
			slog.String("display_name", rec.DisplayName),
			slog.Any("reasons", res.Reasons))
		m.remove(rec, "verification failed", res.Reasons)
		return
	}

	if !m.promote(rec, model.PhaseActive) {
		return
	}
	now := m.clock.Now()
	rec.Connected = true
	rec.FirstConnectedAt = now
	rec.LastConnectedAt = now

	m.send(rec.Channel, model.OutboundMessage{Type: model.MessageAccepted, GameCode: m.cfg.GameID})
	m.logger.Info("player joined", slog.String("display_name", rec.DisplayName))
	m.cfg.OnJoin(rec.session())
}

func (m *Manager) completeReconnect(rec *record, creds model.Credentials) {
	a := rec.attempt
	res := m.verifier.Verify(m.connectionFor(rec, a.channel), creds, true)
	if !res.Valid {
		m.logger.Warn("reconnection verification failed",
			slog.String("display_name", rec.DisplayName),
			slog.Any("reasons", res.Reasons))
		m.abandonReconnect(rec, res.Reasons)
		return
	}

	m.timers.Cancel(a.timer)
	rec.attempt = nil
	rec.Channel = a.channel
	rec.Connected = true
	rec.LastConnectedAt = m.clock.Now()

	m.send(rec.Channel, model.OutboundMessage{Type: model.MessageAccepted, GameCode: m.cfg.GameID})
	m.logger.Info("player reconnected",
		slog.String("display_name", rec.DisplayName),
		slog.Duration("away", rec.LastConnectedAt.Sub(rec.DisconnectedAt)))
	m.cfg.OnReconnect(rec.session())
}

// abandonReconnect rejects the attempt's channel and leaves the session disconnected
func (m *Manager) abandonReconnect(rec *record, reasons []string) {
	a := rec.attempt
	if a == nil {
		return
	}
	m.timers.Cancel(a.timer)
	rec.attempt = nil
	m.reject(a.channel, reasons)
}

func (m *Manager) channelLost(ch model.Channel, intentional bool, reason string) {
	h, ok := m.channels[ch]
	if !ok {
		return
	}
	rec := m.records[h]

	switch {
	case rec.attempt != nil && rec.attempt.channel == ch:
		m.abandonReconnect(rec, []string{reason})

	case rec.Phase == model.PhaseChannelPending:
		m.remove(rec, "left before verifying: "+reason, nil)

	case rec.Phase == model.PhaseActive && rec.Connected:
		delete(m.channels, ch)
		ch.Close(reason)
		rec.Channel = nil
		rec.Connected = false
		rec.DisconnectedAt = m.clock.Now()

		m.logger.Info("player disconnected",
			slog.String("display_name", rec.DisplayName),
			slog.Bool("intentional", intentional),
			slog.String("reason", reason))

		decision := m.cfg.OnLeave(rec.session(), intentional)
		if decision.ShouldRemove {
			m.remove(rec, decision.RemovalReason, nil)
		}
	}
}

func (m *Manager) onTimeout(h model.Handle, id timeout.TimerID) {
	rec, ok := m.records[h]
	if !ok {
		return
	}

	switch {
	case rec.timer == id:
		rec.timer = 0
		switch rec.Phase {
		case model.PhaseReserved:
			m.logger.Info("reservation expired",
				slog.String("display_name", rec.DisplayName),
				slog.String("address", rec.Address))
			m.remove(rec, "reservation expired", nil)
		case model.PhaseChannelPending:
			m.logger.Info("credential challenge expired", slog.String("display_name", rec.DisplayName))
			m.remove(rec, "credential challenge expired", []string{reasonChannelTimeout})
		}
	case rec.attempt != nil && rec.attempt.timer == id:
		rec.attempt.timer = 0
		m.logger.Info("reconnection attempt expired", slog.String("display_name", rec.DisplayName))
		m.abandonReconnect(rec, []string{reasonReconnectTimout})
	}
}

// promote moves rec one stage forward, cancelling its countdown first
func (m *Manager) promote(rec *record, to model.Phase) bool {
	m.timers.Cancel(rec.timer)
	rec.timer = 0

	valid := false
	switch rec.Phase {
	case model.PhaseReserved:
		valid = to == model.PhaseChannelPending
	case model.PhaseChannelPending:
		valid = to == model.PhaseActive
	case model.PhaseActive, model.PhaseRemoved:
		valid = false
	}
	if !valid {
		m.logger.Error("invalid stage transition",
			slog.String("display_name", rec.DisplayName),
			slog.String("from", rec.Phase.String()),
			slog.String("to", to.String()))
		return false
	}

	rec.Phase = to
	return true
}

// remove is the only path that deletes a record. It cancels every countdown,
// closes bound channels and frees both registry keys. When rejectReasons is
// non-nil the channel is sent a rejection first.
func (m *Manager) remove(rec *record, reason string, rejectReasons []string) {
	if rec == nil || rec.Phase == model.PhaseRemoved {
		return
	}

	m.timers.Cancel(rec.timer)
	rec.timer = 0
	if rec.attempt != nil {
		m.abandonReconnect(rec, []string{reason})
	}

	if rec.Channel != nil {
		if rejectReasons != nil {
			m.reject(rec.Channel, rejectReasons)
		} else {
			delete(m.channels, rec.Channel)
			rec.Channel.Close(reason)
		}
		rec.Channel = nil
	}

	if freed := m.registries.Release(rec.Address, rec.DisplayName, rec.Handle); freed != 2 {
		m.logger.Error("registry keys out of sync on removal",
			slog.String("display_name", rec.DisplayName),
			slog.Int("freed", freed))
	}
	delete(m.records, rec.Handle)
	previous := rec.Phase
	rec.Phase = model.PhaseRemoved

	m.logger.Info("connection removed",
		slog.String("display_name", rec.DisplayName),
		slog.String("phase", previous.String()),
		slog.String("reason", reason))
}

// reject unbinds ch, tells the client why and closes it
func (m *Manager) reject(ch model.Channel, reasons []string) {
	delete(m.channels, ch)
	m.send(ch, model.OutboundMessage{Type: model.MessageRejected, Reasons: reasons})
	ch.Close("rejected")
}

func (m *Manager) send(ch model.Channel, msg model.OutboundMessage) {
	if err := ch.Send(msg); err != nil {
		m.logger.Warn("channel send failed",
			slog.String("type", string(msg.Type)),
			slog.String("error", err.Error()))
	}
}

func (m *Manager) schedule(h model.Handle, d time.Duration) timeout.TimerID {
	return m.timers.Schedule(h, d, func(owner model.Handle, id timeout.TimerID) {
		m.do(func() { m.onTimeout(owner, id) })
	})
}

func (m *Manager) connectionFor(rec *record, ch model.Channel) verify.Connection {
	return verify.Connection{
		DisplayName: rec.DisplayName,
		Address:     rec.Address,
		GameCode:    m.cfg.GameID,
		RemoteAddr:  ch.RemoteAddr(),
	}
}
