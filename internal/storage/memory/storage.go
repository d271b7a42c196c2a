package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/mcoot/partygate/internal/model"
	"github.com/mcoot/partygate/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// Lobbies are copied on the way in and out so callers never share state.
type Storage struct {
	mu      sync.RWMutex
	lobbies map[model.LobbyCode]*model.Lobby
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		lobbies: make(map[model.LobbyCode]*model.Lobby),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) SaveLobby(ctx context.Context, lobby *model.Lobby) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobbies[lobby.Code] = clone(lobby)
	return nil
}

func (s *Storage) GetLobby(ctx context.Context, code model.LobbyCode) (*model.Lobby, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lobby, ok := s.lobbies[code]
	if !ok {
		return nil, model.ErrLobbyNotFound
	}
	return clone(lobby), nil
}

func (s *Storage) DeleteLobby(ctx context.Context, code model.LobbyCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobbies, code)
	return nil
}

func (s *Storage) LobbyExists(ctx context.Context, code model.LobbyCode) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.lobbies[code]
	return ok, nil
}

func (s *Storage) ListLobbies(ctx context.Context) ([]model.LobbyCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]model.LobbyCode, 0, len(s.lobbies))
	for code := range s.lobbies {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes, nil
}

func clone(l *model.Lobby) *model.Lobby {
	c := *l
	c.Members = slices.Clone(l.Members)
	return &c
}
