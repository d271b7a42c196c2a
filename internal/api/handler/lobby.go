package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mcoot/partygate/internal/api/request"
	"github.com/mcoot/partygate/internal/api/response"
	"github.com/mcoot/partygate/internal/model"
	"github.com/mcoot/partygate/internal/services/lobby"
)

// LobbyHandler handles lobby-related endpoints
type LobbyHandler struct {
	lobbyController *lobby.Controller
	addresses       AddressResolver
}

// NewLobbyHandler creates a new lobby handler
func NewLobbyHandler(lobbyController *lobby.Controller, addresses AddressResolver) *LobbyHandler {
	return &LobbyHandler{
		lobbyController: lobbyController,
		addresses:       addresses,
	}
}

// Create handles POST /api/v1/lobbies
func (h *LobbyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, NewInvalidRequestError("Invalid request body"))
		return
	}
	if req.MaxPlayers < 0 {
		WriteError(w, NewInvalidRequestError("max_players must not be negative"))
		return
	}

	cfg := model.DefaultLobbyConfig()
	if req.MaxPlayers > 0 {
		cfg.MaxPlayers = req.MaxPlayers
	}
	override(&cfg.AllowReconnects, req.AllowReconnects)
	override(&cfg.AllowPregameReconnects, req.AllowPregameReconnects)
	override(&cfg.AllowSpectatorReconnects, req.AllowSpectatorReconnects)
	override(&cfg.KillDisconnectedPlayers, req.KillDisconnectedPlayers)

	l, err := h.lobbyController.CreateLobby(r.Context(), cfg, req.Passcode)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.Created(w, "/api/v1/lobbies/"+string(l.Code), response.LobbyFromModel(l))
}

// List handles GET /api/v1/lobbies
func (h *LobbyHandler) List(w http.ResponseWriter, r *http.Request) {
	codes, err := h.lobbyController.ListLobbies(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := response.LobbyList{Codes: make([]string, len(codes))}
	for i, c := range codes {
		resp.Codes[i] = string(c)
	}
	response.JSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/lobbies/{code}
func (h *LobbyHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := lobbyCode(r)

	l, err := h.lobbyController.GetLobby(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := response.LobbyFromModel(l)
	if mgr, ok := h.lobbyController.ExistingManager(code); ok {
		stats := response.ConnectionStatsFromLifecycle(mgr.Stats())
		resp.Connections = &stats
	}
	response.JSON(w, http.StatusOK, resp)
}

// Join handles POST /api/v1/lobbies/{code}/join.
// It reserves a slot for the caller's address; the returned token must be
// submitted over the websocket opened from that same address.
func (h *LobbyHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := lobbyCode(r)

	var req request.JoinLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("Invalid request body"))
		return
	}

	ticket, err := h.lobbyController.Join(r.Context(), code, req.DisplayName, req.Passcode, h.addresses.Resolve(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.JoinTicketFromLobby(ticket))
}

// Start handles POST /api/v1/lobbies/{code}/start
func (h *LobbyHandler) Start(w http.ResponseWriter, r *http.Request) {
	l, err := h.lobbyController.Start(r.Context(), lobbyCode(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.LobbyFromModel(l))
}

// Kick handles DELETE /api/v1/lobbies/{code}/members/{name}
func (h *LobbyHandler) Kick(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.lobbyController.Kick(r.Context(), lobbyCode(r), name); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Delete handles DELETE /api/v1/lobbies/{code}
func (h *LobbyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.lobbyController.DeleteLobby(r.Context(), lobbyCode(r)); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// lobbyCode reads the lobby code path variable; codes are case-insensitive
func lobbyCode(r *http.Request) model.LobbyCode {
	return model.LobbyCode(strings.ToUpper(mux.Vars(r)["code"]))
}

func override(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
