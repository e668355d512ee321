package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"wolf-backend/internal/api"
	"wolf-backend/internal/config"
	"wolf-backend/internal/gateway"
	"wolf-backend/internal/handlers"
	"wolf-backend/internal/lock"
	"wolf-backend/internal/logging"
	"wolf-backend/internal/realtime"
	"wolf-backend/internal/services"
	"wolf-backend/internal/store"
	"wolf-backend/internal/store/postgres"
	"wolf-backend/internal/store/sqlite"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	zl, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("FATAL: Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := zl.Sugar()

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("FATAL: %v", err)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	logger.Infow("Starting Wolf backend", "store", cfg.StoreDriver, "port", cfg.HTTPPort, "dotenv", cfg.DotEnvLoaded)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(realtime.DefaultBuffer, logger.Named("realtime"))
	g, gctx := errgroup.WithContext(ctx)

	// 2. Initialize the transcript store and its realtime feed
	var st store.Store
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgStore := postgres.NewPostgresStore(pool, logger.Named("store.postgres"))
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}
		st = pgStore

		listener := realtime.NewPGListener(pool, postgres.NotifyChannel, pgStore, hub, logger.Named("realtime.listener"))
		g.Go(func() error { return listener.Run(gctx) })
		logger.Info("Postgres store initialized.")

	case config.StoreDriverSQLite:
		sqliteStore, err := sqlite.Open(ctx, cfg.SQLitePath, logger.Named("store.sqlite"))
		if err != nil {
			return err
		}
		defer sqliteStore.Close()

		st = realtime.NewPublishingStore(sqliteStore, hub)
		logger.Infow("SQLite store initialized.", "path", cfg.SQLitePath)
	}

	// 3. Send lock: shared through Redis when configured
	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, cfg.Gateway.StreamTimeout+time.Minute, logger.Named("lock"))
		logger.Infow("Redis send lock enabled.", "addr", cfg.RedisAddr)
	}

	// 4. Gateway client
	profile, err := gateway.LoadProfile(cfg.Gateway.ProfilePath)
	if err != nil {
		return err
	}
	gw := gateway.NewClient(cfg.Gateway, profile, logger.Named("gateway"))
	if cfg.Gateway.APIKey == "" {
		logger.Warn("GATEWAY_API_KEY is not set; sends will fail until it is configured.")
	}
	logger.Infow("Gateway client initialized.", "model", gw.Model())

	// 5. Services and handlers
	authService := services.NewAuthService(st, cfg, logger.Named("auth"))
	conversationService := services.NewConversationService(st, logger.Named("conversations"))
	chatService := services.NewChatSessionService(st, gw, locker, cfg.Gateway.StreamTimeout, logger.Named("chat"))

	router := api.NewRouter(api.RouterDependencies{
		AuthHandler:         handlers.NewAuthHandler(authService, logger.Named("http.auth")),
		ConversationHandler: handlers.NewConversationHandlers(conversationService, logger.Named("http.conversations")),
		MessageHandler:      handlers.NewMessageHandlers(chatService, logger.Named("http.messages")),
		ChatStreamHandler:   handlers.NewChatStreamHandler(gw, logger.Named("http.chat_stream")),
		LiveHandler:         handlers.NewLiveHandler(hub, conversationService, cfg.CORSAllowedOrigins, logger.Named("http.live")),
		RateLimiter:         api.NewUserRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Config:              cfg,
		Logger:              logger.Named("http"),
	})

	// 6. Configure and Start HTTP Server
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// No Read/WriteTimeout: they would cut off streamed replies and
		// websocket sessions. Sends are bounded by GATEWAY_STREAM_TIMEOUT.
		IdleTimeout: 120 * time.Second,
	}

	g.Go(func() error {
		logger.Infof("Server starting and listening on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", cfg.HTTPPort, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, initiating graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server shutdown complete.")
	return nil
}
