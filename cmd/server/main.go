package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dtsoden/pmo-sub002/internal/api"
	"github.com/dtsoden/pmo-sub002/internal/infrastructure/config"
	mongodb "github.com/dtsoden/pmo-sub002/internal/infrastructure/db/mongo"
	redisdb "github.com/dtsoden/pmo-sub002/internal/infrastructure/db/redis"
	"github.com/dtsoden/pmo-sub002/internal/infrastructure/queue"
	"github.com/dtsoden/pmo-sub002/internal/realtime"
	"github.com/dtsoden/pmo-sub002/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			log.Error().Err(err).Msg("mongo disconnect failed")
		}
	}()

	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("index creation failed")
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer rdb.Close()

	// --- Event pipeline: services → dispatcher → (hub, redis bridge) ---
	hub := realtime.NewHub(logger.Component("hub"))

	bridge := redisdb.NewBridge(rdb, hub, logger.Component("redis-bridge"))
	go func() {
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("redis bridge stopped")
		}
	}()

	dispatcher := queue.NewDispatcher(cfg.Realtime.DispatcherWorkers, logger.Component("dispatcher"), hub, bridge)
	dispatcher.Start(ctx)

	// --- HTTP ---
	pollHandler := realtime.NewPollHandler(hub, logger.Component("polling"))
	pollHandler.StartReaper(ctx)

	e := api.NewRouter(db, rdb, dispatcher, hub, pollHandler, cfg.JWTSecret, log)

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
