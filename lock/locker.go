// Package lock serializes mutations of a single user's attendance. Holders
// for different keys never contend.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrLockTimeout = errors.New("lock: timed out waiting for lock")

type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func
	// releases the lock and is safe to call more than once.
	Lock(ctx context.Context, key string) (func(), error)
}

// DefaultWait bounds how long a request waits for a user's lock.
const DefaultWait = 10 * time.Second

// LockWithin is l.Lock with the wait capped at wait, whatever ctx allows.
func LockWithin(ctx context.Context, l Locker, key string, wait time.Duration) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return l.Lock(ctx, key)
}

func UserKey(userID string) string {
	return "attendance:user:" + userID
}

type entry struct {
	ch   chan struct{}
	refs int
}

type local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

// NewLocal returns an in-process keyed mutex. It is only correct when a
// single replica serves a given user.
func NewLocal() Locker {
	return &local{keys: make(map[string]*entry)}
}

func (l *local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}
