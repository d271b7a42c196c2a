package model

import "time"

// LobbyCode is a human-readable identifier for a game instance
type LobbyCode string

// LobbyState represents the current state of a lobby
type LobbyState string

const (
	LobbyStateWaiting LobbyState = "waiting" // Pregame, players gathering
	LobbyStateInGame  LobbyState = "in_game" // Game currently active
)

// LobbyMemberRole distinguishes players from spectators
type LobbyMemberRole string

const (
	RolePlayer    LobbyMemberRole = "player"
	RoleSpectator LobbyMemberRole = "spectator"
)

// LobbyMember is a verified participant of a lobby
type LobbyMember struct {
	DisplayName string
	Role        LobbyMemberRole
	Connected   bool
	Eliminated  bool // Killed for disconnecting mid-game
	JoinedAt    time.Time
}

// LobbyConfig holds the settings chosen when the lobby was created
type LobbyConfig struct {
	MaxPlayers int

	// Reconnection policy knobs consumed by the leave policy
	AllowReconnects          bool
	AllowPregameReconnects   bool
	AllowSpectatorReconnects bool
	KillDisconnectedPlayers  bool
}

// DefaultLobbyConfig returns the default lobby configuration
func DefaultLobbyConfig() LobbyConfig {
	return LobbyConfig{
		MaxPlayers:               16,
		AllowReconnects:          true,
		AllowPregameReconnects:   true,
		AllowSpectatorReconnects: false,
		KillDisconnectedPlayers:  false,
	}
}

// Lobby is a single game instance that players join
type Lobby struct {
	Code         LobbyCode
	State        LobbyState
	Config       LobbyConfig
	PasscodeHash string // bcrypt hash, empty when the lobby is open
	Members      []LobbyMember
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GetMember returns the member with the given display name (case-insensitive), or nil
func (l *Lobby) GetMember(displayName string) *LobbyMember {
	key := NameKey(displayName)
	for i := range l.Members {
		if NameKey(l.Members[i].DisplayName) == key {
			return &l.Members[i]
		}
	}
	return nil
}

// RemoveMember drops the member with the given display name, returning true if found
func (l *Lobby) RemoveMember(displayName string) bool {
	key := NameKey(displayName)
	for i, m := range l.Members {
		if NameKey(m.DisplayName) == key {
			l.Members = append(l.Members[:i], l.Members[i+1:]...)
			return true
		}
	}
	return false
}

// GetPlayers returns all members with the player role
func (l *Lobby) GetPlayers() []LobbyMember {
	var players []LobbyMember
	for _, m := range l.Members {
		if m.Role == RolePlayer {
			players = append(players, m)
		}
	}
	return players
}

// HasPasscode reports whether joining requires a passcode
func (l *Lobby) HasPasscode() bool {
	return l.PasscodeHash != ""
}
