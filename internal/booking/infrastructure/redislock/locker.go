// Package redislock provides a Redis-backed per-resource lock for
// deployments with more than one engine instance.
package redislock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/slotwise/internal/booking/application/services"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the subset of *redis.Client the locker uses.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Config configures a Locker.
type Config struct {
	// Prefix namespaces lock keys.
	Prefix string
	// TTL bounds how long a crashed holder can block a resource.
	TTL time.Duration
	// RetryInterval is the poll interval while the key is held.
	RetryInterval time.Duration
}

// DefaultConfig returns the default locker configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:        "slotwise:lock:",
		TTL:           10 * time.Second,
		RetryInterval: 25 * time.Millisecond,
	}
}

// Locker implements services.Locker with SET NX PX.
type Locker struct {
	client Client
	config Config
	logger *slog.Logger
}

var _ services.Locker = (*Locker)(nil)

// New creates a Locker.
func New(client Client, cfg Config, logger *slog.Logger) *Locker {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: client, config: cfg, logger: logger}
}

// Lock polls until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.config.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.config.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.config.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(ctx, fullKey, token) })
	}, nil
}

func (l *Locker) release(ctx context.Context, fullKey, token string) {
	// The caller's context may already be past its deadline.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	n, err := releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Int()
	switch {
	case err != nil:
		l.logger.WarnContext(ctx, "redis lock release failed", "key", fullKey, "error", err)
	case n == 0:
		l.logger.WarnContext(ctx, "redis lock expired before release", "key", fullKey, "ttl", l.config.TTL)
	}
}
