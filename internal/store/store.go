// Package store persists room snapshots and reconnect tokens with a TTL.
// The server runs against Redis when a REDIS_URL is configured and falls back
// to an in-process store otherwise, or when Redis goes away mid-game.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("store: key not found")

// DefaultTTL is how long room snapshots and reconnect tokens live without
// being refreshed.
const DefaultTTL = 24 * time.Hour

// Store is a small TTL'd key-value surface. Values are opaque bytes; callers
// do their own JSON.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GameKey is the snapshot key for a room.
func GameKey(roomCode string) string {
	return "game:" + roomCode
}

// ReconnectKey is the key for a reconnect token.
func ReconnectKey(token string) string {
	return "reconnect:" + token
}
