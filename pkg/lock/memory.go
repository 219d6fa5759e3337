package lock

import (
	"context"
	"sync"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is an in-process keyed mutex set. Entries are dropped once
// no goroutine holds or waits on them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))

	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			for i := len(held) - 1; i >= 0; i-- {
				l.release(held[i])
			}
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				l.release(held[i])
			}
		})
	}, nil
}

func (l *MemoryLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(key, kl)
		return ctx.Err()
	}
}

func (l *MemoryLocker) release(key string) {
	l.mu.Lock()
	kl := l.locks[key]
	l.mu.Unlock()
	if kl == nil {
		return
	}
	<-kl.ch
	l.drop(key, kl)
}

func (l *MemoryLocker) drop(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
