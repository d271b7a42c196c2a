package redis

import (
	"fmt"

	"github.com/mcoot/partygate/internal/model"
)

const keyPrefix = "partygate"

// lobbyKey returns the Redis key for a Lobby
func lobbyKey(code model.LobbyCode) string {
	return fmt.Sprintf("%s:lobby:%s", keyPrefix, code)
}

// lobbyIndexKey returns the Redis key for the SET of known lobby codes
func lobbyIndexKey() string {
	return fmt.Sprintf("%s:idx:lobbies", keyPrefix)
}
