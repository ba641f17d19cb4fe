package store

import (
	"context"
	"time"

	"image-processor-go/internal/domain/session"
)

// Store persists live sessions for the request layer. Every entry expires
// TTL after its last save; Get reports session.ErrNotFound for unknown or
// expired ids.
type Store interface {
	session.Repository
	List(ctx context.Context) ([]string, error)
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	TTL    time.Duration
	Redis  *RedisConfig
	Memory *MemoryConfig
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	GCInterval time.Duration
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

const defaultTTL = 2 * time.Hour

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

// clone copies s so callers cannot alias stored image metadata.
func clone(s session.Session) session.Session {
	if s.Image != nil {
		img := *s.Image
		s.Image = &img
	}
	return s
}
