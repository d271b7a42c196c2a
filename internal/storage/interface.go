package storage

import (
	"context"

	"github.com/mcoot/partygate/internal/model"
)

// Storage persists lobby metadata. Connection and session state is never
// stored here; it lives only in the lifecycle managers.
type Storage interface {
	SaveLobby(ctx context.Context, lobby *model.Lobby) error
	GetLobby(ctx context.Context, code model.LobbyCode) (*model.Lobby, error)
	DeleteLobby(ctx context.Context, code model.LobbyCode) error
	LobbyExists(ctx context.Context, code model.LobbyCode) (bool, error)
	ListLobbies(ctx context.Context) ([]model.LobbyCode, error)
}
