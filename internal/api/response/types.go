package response

import (
	"time"

	"github.com/mcoot/partygate/internal/model"
	"github.com/mcoot/partygate/internal/services/lifecycle"
	"github.com/mcoot/partygate/internal/services/lobby"
)

// LobbyConfig represents lobby configuration
type LobbyConfig struct {
	MaxPlayers               int  `json:"max_players"`
	AllowReconnects          bool `json:"allow_reconnects"`
	AllowPregameReconnects   bool `json:"allow_pregame_reconnects"`
	AllowSpectatorReconnects bool `json:"allow_spectator_reconnects"`
	KillDisconnectedPlayers  bool `json:"kill_disconnected_players"`
}

// LobbyConfigFromModel converts model.LobbyConfig
func LobbyConfigFromModel(c model.LobbyConfig) LobbyConfig {
	return LobbyConfig{
		MaxPlayers:               c.MaxPlayers,
		AllowReconnects:          c.AllowReconnects,
		AllowPregameReconnects:   c.AllowPregameReconnects,
		AllowSpectatorReconnects: c.AllowSpectatorReconnects,
		KillDisconnectedPlayers:  c.KillDisconnectedPlayers,
	}
}

// LobbyMember represents a lobby member
type LobbyMember struct {
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Connected   bool      `json:"connected"`
	Eliminated  bool      `json:"eliminated,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// LobbyMemberFromModel converts model.LobbyMember
func LobbyMemberFromModel(m model.LobbyMember) LobbyMember {
	return LobbyMember{
		DisplayName: m.DisplayName,
		Role:        string(m.Role),
		Connected:   m.Connected,
		Eliminated:  m.Eliminated,
		JoinedAt:    m.JoinedAt,
	}
}

// ConnectionStats counts the lobby's live connection records by stage
type ConnectionStats struct {
	Reservations int `json:"reservations"`
	Pending      int `json:"pending"`
	Sessions     int `json:"sessions"`
	Connected    int `json:"connected"`
	Reconnecting int `json:"reconnecting"`
}

// ConnectionStatsFromLifecycle converts lifecycle.Stats
func ConnectionStatsFromLifecycle(s lifecycle.Stats) ConnectionStats {
	return ConnectionStats{
		Reservations: s.Reservations,
		Pending:      s.Pending,
		Sessions:     s.Sessions,
		Connected:    s.Connected,
		Reconnecting: s.Reconnecting,
	}
}

// Lobby represents a lobby in API responses
type Lobby struct {
	Code        string           `json:"code"`
	State       string           `json:"state"`
	HasPasscode bool             `json:"has_passcode"`
	Config      LobbyConfig      `json:"config"`
	Members     []LobbyMember    `json:"members"`
	Connections *ConnectionStats `json:"connections,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// LobbyFromModel converts model.Lobby
func LobbyFromModel(l *model.Lobby) Lobby {
	members := make([]LobbyMember, len(l.Members))
	for i, m := range l.Members {
		members[i] = LobbyMemberFromModel(m)
	}

	return Lobby{
		Code:        string(l.Code),
		State:       string(l.State),
		HasPasscode: l.HasPasscode(),
		Config:      LobbyConfigFromModel(l.Config),
		Members:     members,
		CreatedAt:   l.CreatedAt,
	}
}

// LobbyList is the response for listing lobbies
type LobbyList struct {
	Codes []string `json:"codes"`
}

// JoinTicket is the response for a successful join request
type JoinTicket struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
	GameCode    string `json:"game_code"`
}

// JoinTicketFromLobby converts lobby.JoinTicket
func JoinTicketFromLobby(t *lobby.JoinTicket) JoinTicket {
	return JoinTicket{
		Token:       t.Token,
		DisplayName: t.DisplayName,
		GameCode:    string(t.GameCode),
	}
}

// Health reports server liveness and how many lobbies have live connection managers
type Health struct {
	Status        string `json:"status"`
	ActiveLobbies int    `json:"active_lobbies"`
}
