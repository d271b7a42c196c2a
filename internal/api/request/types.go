package request

// CreateLobbyRequest is the request body for creating a lobby.
// Nil fields take the server defaults.
type CreateLobbyRequest struct {
	MaxPlayers               int    `json:"max_players,omitempty"`
	Passcode                 string `json:"passcode,omitempty"`
	AllowReconnects          *bool  `json:"allow_reconnects,omitempty"`
	AllowPregameReconnects   *bool  `json:"allow_pregame_reconnects,omitempty"`
	AllowSpectatorReconnects *bool  `json:"allow_spectator_reconnects,omitempty"`
	KillDisconnectedPlayers  *bool  `json:"kill_disconnected_players,omitempty"`
}

// JoinLobbyRequest is the request body for joining a lobby
type JoinLobbyRequest struct {
	DisplayName string `json:"display_name"`
	Passcode    string `json:"passcode,omitempty"`
}
