package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/partygate/internal/api/handler"
	"github.com/mcoot/partygate/internal/api/middleware"
	"github.com/mcoot/partygate/internal/api/response"
	"github.com/mcoot/partygate/internal/services/lobby"
	"github.com/mcoot/partygate/internal/transport/ws"
	"github.com/mcoot/partygate/internal/web/sse"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger          *slog.Logger
	LobbyController *lobby.Controller
	HubManager      *sse.HubManager
	Upgrader        *ws.Upgrader

	// TrustProxy resolves client addresses from X-Forwarded-For
	TrustProxy bool
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	addresses := handler.AddressResolver{TrustProxy: cfg.TrustProxy}

	// Create handlers
	lobbyHandler := handler.NewLobbyHandler(cfg.LobbyController, addresses)
	realtimeHandler := handler.NewRealtimeHandler(cfg.LobbyController, cfg.HubManager, cfg.Upgrader, addresses, cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(middleware.Logging(cfg.Logger))

	// Lobby routes
	lobbies := api.PathPrefix("/lobbies").Subrouter()
	lobbies.HandleFunc("", lobbyHandler.Create).Methods(http.MethodPost)
	lobbies.HandleFunc("", lobbyHandler.List).Methods(http.MethodGet)
	lobbies.HandleFunc("/{code}", lobbyHandler.Get).Methods(http.MethodGet)
	lobbies.HandleFunc("/{code}", lobbyHandler.Delete).Methods(http.MethodDelete)
	lobbies.HandleFunc("/{code}/join", lobbyHandler.Join).Methods(http.MethodPost)
	lobbies.HandleFunc("/{code}/start", lobbyHandler.Start).Methods(http.MethodPost)
	lobbies.HandleFunc("/{code}/members/{name}", lobbyHandler.Kick).Methods(http.MethodDelete)

	// Long-lived connections
	lobbies.HandleFunc("/{code}/ws", realtimeHandler.Channel).Methods(http.MethodGet)
	lobbies.HandleFunc("/{code}/events", realtimeHandler.Events).Methods(http.MethodGet)

	// Health check endpoint
	api.HandleFunc("/health", healthHandler(cfg.LobbyController)).Methods(http.MethodGet)

	return r
}

func healthHandler(lobbies *lobby.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.Health{
			Status:        "ok",
			ActiveLobbies: lobbies.ActiveLobbies(),
		})
	}
}
