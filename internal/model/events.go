package model

import "time"

// EventType identifies the type of event
type EventType string

const (
	EventPlayerJoined       EventType = "player-joined"
	EventPlayerLeft         EventType = "player-left"
	EventPlayerDisconnected EventType = "player-disconnected"
	EventPlayerReconnected  EventType = "player-reconnected"
	EventGameStarted        EventType = "game-started"
)

// Event is published to lobby listeners when membership changes
type Event struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	LobbyCode   LobbyCode `json:"lobby_code"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}
