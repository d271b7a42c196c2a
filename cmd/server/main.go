package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mcoot/partygate/internal/api"
	"github.com/mcoot/partygate/internal/factory"
	"github.com/mcoot/partygate/internal/services/token"
	redisstorage "github.com/mcoot/partygate/internal/storage/redis"
)

func main() {
	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	tokenCfg := token.DefaultConfig()
	tokenCfg.Secret = []byte(os.Getenv("TOKEN_SECRET"))

	// Build factory config from environment
	cfg := factory.Config{
		Logger:      logger,
		StorageType: os.Getenv("STORAGE_TYPE"),
		TokenConfig: tokenCfg,
	}

	// Configure Redis if storage type is redis
	if cfg.StorageType == factory.StorageTypeRedis {
		redisURL := os.Getenv("REDIS_URL")
		if redisURL == "" {
			logger.Error("REDIS_URL required when STORAGE_TYPE=redis")
			os.Exit(1)
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = redisURL
		cfg.RedisConfig = &redisCfg
	}

	// Create application factory
	app, err := factory.New(cfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to release storage", slog.String("error", err.Error()))
		}
	}()

	trustProxy, _ := strconv.ParseBool(os.Getenv("TRUST_PROXY"))

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Logger:          logger,
		LobbyController: app.LobbyController,
		HubManager:      app.HubManager,
		Upgrader:        app.Upgrader,
		TrustProxy:      trustProxy,
	})

	// Create server
	serverConfig := api.DefaultServerConfig()
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			logger.Error("invalid PORT", slog.String("port", port))
			os.Exit(1)
		}
		serverConfig.Port = p
	}
	server := api.NewServer(router, serverConfig, logger)
	// Websocket channels are hijacked, so Shutdown does not wait for them
	server.OnShutdown(app.LobbyController.Close)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("server starting",
		slog.String("addr", server.Addr()),
		slog.Bool("trust_proxy", trustProxy))

	if err := server.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		cancel()
		_ = app.Close()
		os.Exit(1)
	}

	logger.Info("server stopped")
}
