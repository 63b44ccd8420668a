package services

import (
	"context"
	"sync"
)

// Locker serializes reservations for one resource. Lock blocks until the
// key is free or ctx is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedLocker is an in-process Locker with one channel per held key.
type KeyedLocker struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	ch      chan struct{}
	waiters int
}

// NewKeyedLocker creates an empty KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{keys: make(map[string]*keyLock)}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	k, ok := l.keys[key]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.keys[key] = k
	}
	k.waiters++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, k, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, k, true) })
	}, nil
}

func (l *KeyedLocker) release(key string, k *keyLock, held bool) {
	if held {
		<-k.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k.waiters--
	if k.waiters == 0 {
		delete(l.keys, key)
	}
}

// Held reports how many keys currently have a holder or waiter.
func (l *KeyedLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
