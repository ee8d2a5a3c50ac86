package locks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"launchlock/internal/clock"
	"launchlock/internal/config"
	"launchlock/internal/services"
	"launchlock/internal/storage"
)

// Entity types locked by handlers.
const (
	EntityListing       = "listing"
	EntitySourceProduct = "source_product"
)

// Key identifies a lockable entity.
type Key struct {
	EntityType string
	EntityID   string
}

func (k Key) String() string {
	return k.EntityType + ":" + k.EntityID
}

// Locker acquires and releases entity locks.
type Locker interface {
	// Acquire takes the lock for owner or extends it when owner already
	// holds it. A lock held by someone else fails with RESOURCE_LOCKED.
	Acquire(ctx context.Context, key Key, owner string, ttl time.Duration) error
	// Release drops the lock if owner holds it.
	Release(ctx context.Context, key Key, owner string) error
	// Sweep removes expired locks and reports how many were removed.
	Sweep(ctx context.Context) (int64, error)
}

// New builds the locker selected in configuration.
func New(cfg *config.Config, db *storage.DB, clk clock.Clock) (Locker, error) {
	switch strings.ToLower(cfg.Locks.Backend) {
	case "", config.LockBackendSQLite:
		return NewSQLiteLocker(db, clk), nil
	case config.LockBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Locks.RedisAddr,
			Password: cfg.Locks.RedisPassword,
			DB:       cfg.Locks.RedisDB,
		})
		return NewRedisLocker(client), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend %q", cfg.Locks.Backend)
	}
}

func lockedFailure(key Key, holder string) error {
	return services.NewFailure(services.ErrTransient, services.CodeResourceLocked,
		fmt.Sprintf("%s is locked by command %s", key, holder))
}

// WithLock runs fn while holding key and releases the lock afterwards, even
// when ctx has been cancelled. The lock is renewed every ttl/3 while fn runs.
// When a renewal finds the lock held by another owner, the context passed to
// fn is cancelled and WithLock returns the RESOURCE_LOCKED failure.
func WithLock(ctx context.Context, locker Locker, key Key, owner string, ttl time.Duration, fn func(context.Context) error) error {
	if err := locker.Acquire(ctx, key, owner, ttl); err != nil {
		return err
	}
	lockCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		renew(lockCtx, stop, locker, key, owner, ttl, cancel)
	}()
	defer func() {
		close(stop)
		wg.Wait()
		cancel(nil)
		_ = locker.Release(context.WithoutCancel(ctx), key, owner)
	}()

	err := fn(lockCtx)
	if err != nil && ctx.Err() == nil {
		if cause := context.Cause(lockCtx); services.HasCode(cause, services.CodeResourceLocked) {
			return cause
		}
	}
	return err
}

func renew(ctx context.Context, stop <-chan struct{}, locker Locker, key Key, owner string, ttl time.Duration, lost context.CancelCauseFunc) {
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := locker.Acquire(ctx, key, owner, ttl)
			if services.HasCode(err, services.CodeResourceLocked) {
				lost(err)
				return
			}
			// Other errors are retried on the next tick; the lock is still
			// valid for the rest of its ttl.
		}
	}
}
