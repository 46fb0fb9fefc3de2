package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lox/tridice/cmd/tridice/shared"
	"github.com/lox/tridice/internal/engine"
	"github.com/lox/tridice/internal/randutil"
	"github.com/lox/tridice/internal/room"
	"github.com/lox/tridice/internal/server"
	"github.com/lox/tridice/internal/store"
)

// ServerCmd contains the game server configuration
type ServerCmd struct {
	Port        int           `kong:"default='3001',env='PORT',help='Port to listen on'"`
	CorsOrigin  string        `kong:"default='*',env='CORS_ORIGIN',help='Comma-separated list of allowed origins'"`
	RedisURL    string        `kong:"env='REDIS_URL',help='Redis DSN for state persistence (in-process fallback if unset)'"`
	Environment string        `kong:"default='development',env='TRIDICE_ENV',help='Environment tag echoed by /health'"`
	IdleTimeout time.Duration `kong:"default='10m',help='Delete rooms with no activity for this long'"`
	Debug       bool          `kong:"help='Enable debug logging'"`
	Seed        *int64        `kong:"help='Deterministic RNG seed for the server (optional)'"`
}

func (c *ServerCmd) Run() error {
	logger := shared.NewLogger(c.Debug, c.Environment != "development")

	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info().Int64("seed", seed).Msg("Using deterministic seed")
	} else {
		seed = time.Now().UnixNano()
		logger.Info().Int64("seed", seed).Msg("Using random seed")
	}
	// Separate streams: room codes and per-room game RNGs must not race on
	// one shared source.
	codeRNG := randutil.New(seed)
	gameRNG := randutil.New(seed + 1)

	clock := quartz.NewReal()
	ctx := shared.SignalContext(logger)

	st, closeStore := c.setupStore(ctx, clock, logger)
	defer closeStore()

	registry := room.NewRegistry(st, clock, codeRNG, logger)

	cfg := server.Config{
		Addr:        fmt.Sprintf(":%d", c.Port),
		CORSOrigins: splitOrigins(c.CorsOrigin),
		Environment: c.Environment,
		Version:     version,
		IdleTimeout: c.IdleTimeout,
	}
	gateway := server.New(cfg, registry, clock, logger)
	manager := engine.NewManager(registry, clock, gateway, gameRNG, logger)
	gateway.SetEngine(manager)

	logger.Info().
		Int("port", c.Port).
		Str("cors_origin", c.CorsOrigin).
		Str("environment", c.Environment).
		Bool("redis", c.RedisURL != "").
		Dur("idle_timeout", c.IdleTimeout).
		Msg("Starting Tridice server")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gateway.ListenAndServe(ctx)
	})

	err := g.Wait()
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// setupStore connects Redis when configured and wraps it with the in-process
// fallback; without a REDIS_URL (or when Redis is unreachable at boot) the
// server runs purely in-process.
func (c *ServerCmd) setupStore(ctx context.Context, clock quartz.Clock, logger zerolog.Logger) (store.Store, func()) {
	mem := store.NewMemory(clock)
	if c.RedisURL == "" {
		logger.Info().Msg("No REDIS_URL configured, using in-process store")
		return mem, func() {}
	}

	rds, err := store.NewRedis(ctx, c.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unreachable, using in-process store")
		return mem, func() {}
	}

	logger.Info().Msg("Connected to Redis")
	return store.NewFailover(rds, mem, logger), func() {
		if err := rds.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing redis")
		}
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
