// Package lock provides the single-writer locks that guard the journal.
package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// Locker provides mutual exclusion for journal writers, across processes
// where the implementation allows it.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done. The
	// returned release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// pollInterval is how often non-blocking lock attempts are retried.
var pollInterval = 100 * time.Millisecond

// Mutex is an in-process lock, used where the storage itself serializes
// writers across processes (SQLite).
type Mutex struct {
	ch   chan struct{}
	once sync.Once
}

func NewMutex() *Mutex {
	return &Mutex{}
}

func (m *Mutex) init() {
	m.once.Do(func() { m.ch = make(chan struct{}, 1) })
}

func (m *Mutex) Acquire(ctx context.Context, _ string) (func(), error) {
	m.init()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	select {
	case m.ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-m.ch }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to acquire lock: %w", ctx.Err())
	}
}

// hashKey maps a lock key to a stable non-negative int64 (FNV-1a).
func hashKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
