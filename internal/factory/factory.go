package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcoot/partygate/internal/dependencies/clock"
	"github.com/mcoot/partygate/internal/dependencies/random"
	"github.com/mcoot/partygate/internal/services/lobby"
	"github.com/mcoot/partygate/internal/services/token"
	"github.com/mcoot/partygate/internal/storage"
	"github.com/mcoot/partygate/internal/storage/memory"
	redisstorage "github.com/mcoot/partygate/internal/storage/redis"
	"github.com/mcoot/partygate/internal/transport/ws"
	"github.com/mcoot/partygate/internal/web/sse"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// generatedSecretLength is used when no token secret is configured
const generatedSecretLength = 48

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	Tokens          *token.Manager
	LobbyController *lobby.Controller
	HubManager      *sse.HubManager
	Broadcaster     *sse.Broadcaster
	Upgrader        *ws.Upgrader
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// TokenConfig holds credential signing settings (optional)
	// If Secret is empty a random one is generated, so tokens do not survive a restart
	TokenConfig token.Config
	// LobbyConfig holds lobby controller settings (optional)
	// If nil, defaults to lobby.DefaultConfig()
	LobbyConfig *lobby.Config
	// TransportConfig holds websocket settings (optional)
	// If nil, defaults to ws.DefaultConfig()
	TransportConfig *ws.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Create storage based on type
	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	tokenCfg := cfg.TokenConfig
	if tokenCfg.Issuer == "" {
		tokenCfg.Issuer = token.DefaultConfig().Issuer
	}
	if len(tokenCfg.Secret) == 0 {
		logger.Warn("no token secret configured, generating one")
		tokenCfg.Secret = rnd.Secret(generatedSecretLength)
	}

	lobbyCfg := lobby.DefaultConfig()
	if cfg.LobbyConfig != nil {
		lobbyCfg = *cfg.LobbyConfig
	}
	transportCfg := ws.DefaultConfig()
	if cfg.TransportConfig != nil {
		transportCfg = *cfg.TransportConfig
	}

	return newWithDependencies(store, clk, rnd, tokenCfg, lobbyCfg, transportCfg, logger)
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	clk clock.Clock,
	rnd random.Random,
	tokenCfg token.Config,
	lobbyCfg lobby.Config,
	transportCfg ws.Config,
	logger *slog.Logger,
) (*App, error) {
	tokens, err := token.NewManager(tokenCfg, clk)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	hubManager := sse.NewHubManager(logger)
	broadcaster := sse.NewBroadcaster(hubManager, logger)
	lobbyController := lobby.NewController(lobbyCfg, store, tokens, broadcaster, clk, rnd, logger)
	upgrader := ws.NewUpgrader(transportCfg, logger)

	return &App{
		Storage:         store,
		Clock:           clk,
		Random:          rnd,
		Tokens:          tokens,
		LobbyController: lobbyController,
		HubManager:      hubManager,
		Broadcaster:     broadcaster,
		Upgrader:        upgrader,
	}, nil
}

// Close stops every lobby and event stream, then releases storage
func (a *App) Close() error {
	a.LobbyController.Close()
	a.HubManager.Close()
	if closer, ok := a.Storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
