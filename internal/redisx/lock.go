package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrLockBusy = errors.New("warehouse lock busy")

// Only the holder of the token may release the lease.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker is a per-warehouse lease shared by every process talking to the
// same redis. The lease expires after TTL if the holder dies.
type Locker struct {
	rdb      *redis.Client
	ttl      time.Duration
	retry    time.Duration
	attempts int
	log      *zap.Logger
}

func NewLocker(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Locker{rdb: rdb, ttl: ttl, retry: 50 * time.Millisecond, attempts: 100, log: log}
}

func (l *Locker) Lock(ctx context.Context, warehouseID int64) (func(), error) {
	key := fmt.Sprintf(KeyWarehouseLock, warehouseID)
	token := uuid.NewString()

	for i := 0; i < l.attempts; i++ {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
	return nil, fmt.Errorf("%s: %w", key, ErrLockBusy)
}

func (l *Locker) release(key, token string) {
	// The caller's context may already be cancelled; the lease must still go.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
		l.log.Warn("release warehouse lock", zap.String("key", key), zap.Error(err))
	}
}
