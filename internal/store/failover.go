package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Failover wraps a primary store with an in-process fallback. The first
// primary failure flips it into degraded mode for good: mixing two backends
// per-key would hand players inconsistent snapshots, so once we fall back we
// stay there until restart.
type Failover struct {
	primary  Store
	fallback Store
	logger   zerolog.Logger
	degraded atomic.Bool
}

// NewFailover wraps primary with fallback.
func NewFailover(primary, fallback Store, logger zerolog.Logger) *Failover {
	return &Failover{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "store").Logger(),
	}
}

// Degraded reports whether the store has switched to the fallback.
func (f *Failover) Degraded() bool {
	return f.degraded.Load()
}

func (f *Failover) degrade(op string, err error) {
	if f.degraded.CompareAndSwap(false, true) {
		f.logger.Error().Err(err).Str("op", op).
			Msg("primary store failed, switching to in-memory fallback")
	}
}

func (f *Failover) Get(ctx context.Context, key string) ([]byte, error) {
	if !f.degraded.Load() {
		val, err := f.primary.Get(ctx, key)
		if err == nil || errors.Is(err, ErrNotFound) {
			return val, err
		}
		f.degrade("get", err)
	}
	return f.fallback.Get(ctx, key)
}

func (f *Failover) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !f.degraded.Load() {
		err := f.primary.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		f.degrade("set", err)
	}
	return f.fallback.Set(ctx, key, value, ttl)
}

func (f *Failover) Delete(ctx context.Context, key string) error {
	if !f.degraded.Load() {
		err := f.primary.Delete(ctx, key)
		if err == nil {
			return nil
		}
		f.degrade("delete", err)
	}
	return f.fallback.Delete(ctx, key)
}
