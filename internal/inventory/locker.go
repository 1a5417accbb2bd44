package inventory

import (
	"context"
	"sync"
)

// Locker serialises every mutation of one warehouse's lines: order commits
// and administrative adjustments alike.
type Locker interface {
	Lock(ctx context.Context, warehouseID int64) (unlock func(), err error)
}

// LocalLocker is a per-warehouse lock for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[int64]*slot)}
}

func (l *LocalLocker) Lock(ctx context.Context, warehouseID int64) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[warehouseID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[warehouseID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(warehouseID, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(warehouseID, s)
		})
	}, nil
}

func (l *LocalLocker) release(warehouseID int64, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, warehouseID)
	}
	l.mu.Unlock()
}
