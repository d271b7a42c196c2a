package lobby

import "github.com/mcoot/partygate/internal/model"

// Removal reasons reported in player-left events
const (
	ReasonLeft             = "left the game"
	ReasonDisconnected     = "disconnected"
	ReasonPregameDrop      = "disconnected before the game started"
	ReasonSpectatorDropped = "spectator disconnected"
)

// Verdict is the leave policy's answer for one departing member
type Verdict struct {
	model.LeaveDecision

	// Eliminate keeps the session but marks the member dead for the rest of the game
	Eliminate bool
}

// Decide applies the lobby's reconnection settings to a member whose channel
// went away. Rules are checked in order and the first match wins.
func Decide(member model.LobbyMember, state model.LobbyState, cfg model.LobbyConfig, intentional bool) Verdict {
	switch {
	case intentional:
		return remove(ReasonLeft)
	case !cfg.AllowReconnects:
		return remove(ReasonDisconnected)
	case state == model.LobbyStateWaiting && !cfg.AllowPregameReconnects:
		return remove(ReasonPregameDrop)
	case member.Role == model.RoleSpectator && !cfg.AllowSpectatorReconnects:
		return remove(ReasonSpectatorDropped)
	case state == model.LobbyStateInGame && cfg.KillDisconnectedPlayers && member.Role == model.RolePlayer:
		return Verdict{Eliminate: true}
	default:
		return Verdict{}
	}
}

func remove(reason string) Verdict {
	return Verdict{LeaveDecision: model.LeaveDecision{ShouldRemove: true, RemovalReason: reason}}
}
