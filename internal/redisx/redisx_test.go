package redisx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func getRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := New(addr)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// uniqueID keeps keys of concurrent test runs apart.
func uniqueID() int64 { return time.Now().UnixNano() }

func TestLocker_MutualExclusion(t *testing.T) {
	rdb := getRedisClient(t)
	l := NewLocker(rdb, 2*time.Second, zap.NewNop())
	l.retry = 5 * time.Millisecond
	id := uniqueID()

	var inside, overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), id)
			if err != nil {
				t.Error(err)
				return
			}
			if inside.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if overlaps.Load() != 0 {
		t.Fatalf("%d overlapping holders", overlaps.Load())
	}
	if n, _ := rdb.Exists(context.Background(), fmt.Sprintf(KeyWarehouseLock, id)).Result(); n != 0 {
		t.Fatal("lock key left behind")
	}
}

func TestLocker_ReleaseKeepsForeignLease(t *testing.T) {
	rdb := getRedisClient(t)
	ctx := context.Background()
	l := NewLocker(rdb, 50*time.Millisecond, zap.NewNop())
	id := uniqueID()
	key := fmt.Sprintf(KeyWarehouseLock, id)

	unlock, err := l.Lock(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	// the lease expires and someone else takes it
	time.Sleep(80 * time.Millisecond)
	if err := rdb.Set(ctx, key, "other", time.Second).Err(); err != nil {
		t.Fatal(err)
	}
	unlock()

	if v, _ := rdb.Get(ctx, key).Result(); v != "other" {
		t.Fatalf("foreign lease released, value = %q", v)
	}
	rdb.Del(ctx, key)
}

func TestLocker_BusyAfterAttempts(t *testing.T) {
	rdb := getRedisClient(t)
	ctx := context.Background()
	l := NewLocker(rdb, time.Second, zap.NewNop())
	l.retry, l.attempts = time.Millisecond, 3
	id := uniqueID()

	unlock, err := l.Lock(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()
	if _, err := l.Lock(ctx, id); !errors.Is(err, ErrLockBusy) {
		t.Fatalf("err = %v, want ErrLockBusy", err)
	}
}

func TestIdempotency(t *testing.T) {
	rdb := getRedisClient(t)
	ctx := context.Background()
	idem := NewIdempotency(rdb)
	ext := uuid.NewString()

	if _, ok, err := idem.Lookup(ctx, ext); err != nil || ok {
		t.Fatalf("fresh key: ok=%v err=%v", ok, err)
	}
	if err := idem.Remember(ctx, ext, 42); err != nil {
		t.Fatal(err)
	}
	id, ok, err := idem.Lookup(ctx, ext)
	if err != nil || !ok || id != 42 {
		t.Fatalf("lookup = %d, %v, %v", id, ok, err)
	}
	rdb.Del(ctx, fmt.Sprintf(KeyIdemOrderPlace, ext))
}

func TestDedup(t *testing.T) {
	rdb := getRedisClient(t)
	ctx := context.Background()
	d := NewDedup(rdb, "test")
	ev := uuid.NewString()

	if first, err := d.MarkProcessed(ctx, ev); err != nil || !first {
		t.Fatalf("first mark = %v, %v", first, err)
	}
	if first, _ := d.MarkProcessed(ctx, ev); first {
		t.Fatal("second mark reported first")
	}
	if err := d.Forget(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if first, _ := d.MarkProcessed(ctx, ev); !first {
		t.Fatal("mark after forget not first")
	}
	_ = d.Forget(ctx, ev)
}
