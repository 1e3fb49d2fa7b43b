package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/bus"
	"github.com/loopline/realtime/internals/call"
	"github.com/loopline/realtime/internals/config"
	"github.com/loopline/realtime/internals/gateway"
	"github.com/loopline/realtime/internals/livestream"
	"github.com/loopline/realtime/internals/moderation"
	"github.com/loopline/realtime/internals/presence"
	"github.com/loopline/realtime/internals/store"
	"github.com/loopline/realtime/internals/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logger
	if err := utils.InitLogger(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger := utils.GetLogger()
	logger.Info("Starting coordination server")

	// TTL store: the single source of truth for ephemeral session state.
	redisStore, err := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Durable collaborators (ban records, last-seen, stream end marks).
	pgCtx, pgCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := pgxpool.New(pgCtx, cfg.Postgres.URL)
	if err == nil {
		err = pool.Ping(pgCtx)
	}
	pgCancel()
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}

	hub := bus.NewHub(logger)
	publisher := bus.NewPubSub(redisStore.Client(), hub, logger)

	calls := call.NewManager(redisStore, publisher, logger,
		cfg.Coordination.CallTTL,
		cfg.Coordination.CallTimeoutAfter,
	)
	streams := livestream.NewCoordinator(redisStore, publisher,
		livestream.NewPostgresStreamEnder(pool, redisStore),
		logger,
		cfg.Coordination.GraceTTL,
	)
	tracker := presence.NewTracker(redisStore, publisher,
		presence.NewPostgresPeerSource(pool),
		presence.NewPostgresLastSeen(pool),
		logger,
		cfg.Coordination.PresenceTTL,
	)
	mod := moderation.NewService(redisStore, publisher,
		moderation.NewPostgresBanRepository(pool),
		logger,
		cfg.Coordination.ReportWindow,
		cfg.Coordination.ReportThreshold,
	)

	server := gateway.NewServer(cfg, hub, calls, streams, tracker, mod, logger)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start coordination server", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Received shutdown signal")

	// Graceful shutdown
	server.Stop()
	publisher.Close()
	redisStore.Close()
	pool.Close()
	logger.Info("Coordination server stopped")
}
