package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/partygate/internal/model"
	"github.com/mcoot/partygate/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) SaveLobby(ctx context.Context, lobby *model.Lobby) error {
	data, err := json.Marshal(lobby)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, lobbyKey(lobby.Code), data, s.cfg.LobbyTTL)
	pipe.SAdd(ctx, lobbyIndexKey(), string(lobby.Code))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetLobby(ctx context.Context, code model.LobbyCode) (*model.Lobby, error) {
	data, err := s.client.Get(ctx, lobbyKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrLobbyNotFound
		}
		return nil, err
	}

	var lobby model.Lobby
	if err := json.Unmarshal(data, &lobby); err != nil {
		return nil, err
	}
	return &lobby, nil
}

func (s *Storage) DeleteLobby(ctx context.Context, code model.LobbyCode) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, lobbyKey(code))
	pipe.SRem(ctx, lobbyIndexKey(), string(code))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) LobbyExists(ctx context.Context, code model.LobbyCode) (bool, error) {
	n, err := s.client.Exists(ctx, lobbyKey(code)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListLobbies returns the codes of all live lobbies. Index entries whose lobby
// has expired are pruned as they are found.
func (s *Storage) ListLobbies(ctx context.Context) ([]model.LobbyCode, error) {
	members, err := s.client.SMembers(ctx, lobbyIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	codes := make([]model.LobbyCode, 0, len(members))
	var stale []any
	for _, m := range members {
		code := model.LobbyCode(m)
		exists, err := s.LobbyExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if !exists {
			stale = append(stale, m)
			continue
		}
		codes = append(codes, code)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, lobbyIndexKey(), stale...).Err(); err != nil {
			return nil, err
		}
	}

	slices.Sort(codes)
	return codes, nil
}
