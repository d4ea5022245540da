// Package app assembles the server process: configuration, logging, store
// selection, the game engine, and the HTTP listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	server "bridge-and-breach/server"
	"bridge-and-breach/server/internal/config"
	"bridge-and-breach/server/internal/game"
	"bridge-and-breach/server/internal/llm"
	servernet "bridge-and-breach/server/internal/net"
	"bridge-and-breach/server/internal/store"
)

// Run boots the server and blocks until ctx is cancelled or a fatal error
// occurs.
func Run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Environment)
	if err != nil {
		return fmt.Errorf("construct logger: %w", err)
	}
	defer logger.Sync()

	st, err := selectStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := game.SeedShip(ctx, st); err != nil {
		return err
	}
	if err := game.SeedMissions(ctx, st); err != nil {
		return err
	}

	client, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}
	if client == nil {
		logger.Warn("no completion backend configured, running on the keyword classifier")
	}

	rank := game.NewRankEngine(st, logger, cfg.Game)
	auth := game.NewAuthCoordinator(st, logger, cfg.Game)
	classifier := game.NewClassifier(st, client, logger, cfg.Game)

	// The announcer is wired after hub construction; the scheduler and hub
	// reference each other.
	leak := game.NewLeakScheduler(st, logger, cfg.Game, rank, nil)
	processor := game.NewProcessor(st, classifier, auth, rank, leak, logger, cfg.Game)
	hub := server.NewHub(st, processor, leak, logger)
	leak.SetAnnouncer(hub)

	router := servernet.NewRouter(servernet.Deps{
		Hub:    hub,
		Store:  st,
		Rank:   rank,
		Leak:   leak,
		Logger: logger,
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("server listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		if err := leak.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("leak scheduler: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func buildLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// selectStore connects to Redis, or falls back to the in-memory store when
// the deployment allows it. Production refuses to start without Redis.
func selectStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.Redis.UseMemory {
		logger.Info("using in-memory state store")
		return store.NewMemory(), nil
	}

	st, err := store.NewRedis(ctx, store.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err == nil {
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		return st, nil
	}

	if cfg.Environment == "production" {
		return nil, fmt.Errorf("redis unavailable at %s: %w", cfg.Redis.Addr, err)
	}

	logger.Warn("redis unavailable, falling back to in-memory store",
		zap.String("addr", cfg.Redis.Addr),
		zap.Error(err))
	return store.NewMemory(), nil
}
