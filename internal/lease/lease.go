// Package lease serialises scheduler passes across processes.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"canister-transfer-backend/internal/logging"
)

// ErrHeld is returned by Acquire while another owner holds the lease.
var ErrHeld = errors.New("lease is held by another owner")

// Lease is an expiring, owner-tagged lock. Acquire returns a release function that
// drops the lease only if the caller still owns it.
type Lease interface {
	Acquire(ctx context.Context) (release func(), err error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease keeps the lease in a Redis key set with SET NX PX.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLease(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *RedisLease {
	return &RedisLease{client: client, key: key, ttl: ttl, logger: logging.OrNop(logger)}
}

func (l *RedisLease) Acquire(ctx context.Context) (func(), error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %q: %w", l.key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() {
		if err := releaseScript.Run(context.Background(), l.client, []string{l.key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("failed to release lease", zap.String("lease", l.key), zap.Error(err))
		}
	}, nil
}

// Store is the repository side of StoreLease.
type Store interface {
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error
}

// StoreLease keeps the lease in the scheduler_leases table.
type StoreLease struct {
	store  Store
	name   string
	ttl    time.Duration
	logger *zap.Logger
}

func NewStoreLease(store Store, name string, ttl time.Duration, logger *zap.Logger) *StoreLease {
	return &StoreLease{store: store, name: name, ttl: ttl, logger: logging.OrNop(logger)}
}

func (l *StoreLease) Acquire(ctx context.Context) (func(), error) {
	owner := uuid.NewString()
	ok, err := l.store.AcquireLease(ctx, l.name, owner, l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() {
		if err := l.store.ReleaseLease(context.Background(), l.name, owner); err != nil {
			l.logger.Warn("failed to release lease", zap.String("lease", l.name), zap.Error(err))
		}
	}, nil
}
