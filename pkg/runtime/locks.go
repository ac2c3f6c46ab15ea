// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"sync"
)

// sessionLocks hands out one exclusive lock per session key. An entry lives
// only while some caller holds or waits for it, so the map is bounded by the
// number of sessions with turns in flight.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// acquire blocks until the lock for key is held or ctx is done. Waiters are
// served in the order they started waiting.
func (l *sessionLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, lk)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.sem
			l.unref(key, lk)
		})
	}, nil
}

func (l *sessionLocks) unref(key string, lk *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *sessionLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// permits is the global counting semaphore bounding concurrent turns.
type permits chan struct{}

func newPermits(n int) permits {
	if n < 1 {
		n = 1
	}
	return make(permits, n)
}

func (p permits) acquire(ctx context.Context) (func(), error) {
	select {
	case p <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-p }) }, nil
}

func (p permits) inUse() int { return len(p) }
