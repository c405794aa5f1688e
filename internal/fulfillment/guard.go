package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const lockScope = "fulfillment"

// Locker guards an order against concurrent supplier calls. The returned
// release func is always safe to call.
type Locker interface {
	Acquire(ctx context.Context, orderID uuid.UUID) (func(), error)
}

type lockStore interface {
	redis.LockStore
	LockKey(scope, id string) string
}

// RedisLocker is an in-flight guard backed by owner-tagged Redis locks.
type RedisLocker struct {
	store lockStore
	ttl   time.Duration
}

func NewRedisLocker(store lockStore, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{store: store, ttl: ttl}
}

// Acquire fails with CONFLICT when another worker holds the order.
func (l *RedisLocker) Acquire(ctx context.Context, orderID uuid.UUID) (func(), error) {
	lock, err := redis.NewLock(l.store, l.store.LockKey(lockScope, orderID.String()), l.ttl)
	if err != nil {
		return func() {}, err
	}
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return func() {}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire fulfillment guard")
	}
	if !ok {
		return func() {}, pkgerrors.New(pkgerrors.CodeConflict, "fulfillment already in progress").
			WithDetails(map[string]any{"order_id": orderID.String()})
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}

// NoopLocker never blocks. Used when Redis is not configured.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}
