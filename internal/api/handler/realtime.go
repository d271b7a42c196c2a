package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/partygate/internal/services/lobby"
	"github.com/mcoot/partygate/internal/transport/ws"
	"github.com/mcoot/partygate/internal/web/sse"
)

// RealtimeHandler serves the long-lived lobby connections: player channels
// over websocket and the event stream over SSE
type RealtimeHandler struct {
	lobbyController *lobby.Controller
	hubManager      *sse.HubManager
	upgrader        *ws.Upgrader
	addresses       AddressResolver
	logger          *slog.Logger
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(
	lobbyController *lobby.Controller,
	hubManager *sse.HubManager,
	upgrader *ws.Upgrader,
	addresses AddressResolver,
	logger *slog.Logger,
) *RealtimeHandler {
	return &RealtimeHandler{
		lobbyController: lobbyController,
		hubManager:      hubManager,
		upgrader:        upgrader,
		addresses:       addresses,
		logger:          logger.With(slog.String("component", "realtime")),
	}
}

// Channel handles GET /api/v1/lobbies/{code}/ws. The connection is handed to
// the lobby's lifecycle manager, which matches it to a reservation.
func (h *RealtimeHandler) Channel(w http.ResponseWriter, r *http.Request) {
	code := lobbyCode(r)

	mgr, err := h.lobbyController.Manager(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}

	remote := h.addresses.Resolve(r)
	if err := h.upgrader.Serve(w, r, remote, mgr); err != nil {
		// The upgrader has already written the HTTP error
		h.logger.Warn("websocket upgrade failed",
			slog.String("lobby", string(code)),
			slog.String("remote", remote),
			slog.String("error", err.Error()))
	}
}

// Events handles GET /api/v1/lobbies/{code}/events
func (h *RealtimeHandler) Events(w http.ResponseWriter, r *http.Request) {
	code := lobbyCode(r)

	if _, err := h.lobbyController.GetLobby(r.Context(), code); err != nil {
		WriteError(w, err)
		return
	}

	// The stream outlives the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sse.ServeSSE(w, r, h.hubManager.GetOrCreateHub(code), h.addresses.Resolve(r))
}
