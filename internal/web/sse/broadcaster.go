package sse

import (
	"encoding/json"
	"log/slog"

	"github.com/mcoot/partygate/internal/model"
)

// Broadcaster publishes lobby events as JSON to the lobby's hub
type Broadcaster struct {
	hubManager *HubManager
	logger     *slog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hubManager *HubManager, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hubManager: hubManager,
		logger:     logger.With(slog.String("component", "sse-broadcaster")),
	}
}

// Publish sends ev to the listeners of its lobby. Lobbies nobody is
// listening to have no hub and the event is dropped.
func (b *Broadcaster) Publish(ev model.Event) {
	hub := b.hubManager.GetHub(ev.LobbyCode)
	if hub == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("sse failed to encode event",
			slog.String("lobby", string(ev.LobbyCode)),
			slog.String("type", string(ev.Type)),
			slog.Any("error", err))
		return
	}
	hub.BroadcastEvent(string(ev.Type), string(data))
}

// CloseLobby ends every event stream of a lobby
func (b *Broadcaster) CloseLobby(code model.LobbyCode) {
	b.hubManager.RemoveHub(code)
}
