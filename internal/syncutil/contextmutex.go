// Package syncutil provides locks whose acquisition can be abandoned when a
// context is cancelled.
package syncutil

import (
	"context"
	"hash/fnv"
)

// ContextMutex is a mutex backed by a one-slot channel so that Lock can
// select on ctx.Done(). The zero value is not usable; use NewContextMutex.
type ContextMutex struct {
	ch chan struct{}
}

// NewContextMutex returns an unlocked mutex.
func NewContextMutex() *ContextMutex {
	m := &ContextMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

// LockContext waits for the mutex or for ctx. On success the caller must
// call the returned unlock function exactly once.
func (m *ContextMutex) LockContext(ctx context.Context) (func(), error) {
	select {
	case <-m.ch:
		return func() { m.ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the mutex only if it is free.
func (m *ContextMutex) TryLock() (func(), bool) {
	select {
	case <-m.ch:
		return func() { m.ch <- struct{}{} }, true
	default:
		return nil, false
	}
}

// KeyedMutex is a fixed pool of ContextMutex shards selected by key hash.
// Distinct keys may share a shard.
type KeyedMutex struct {
	shards []*ContextMutex
}

// NewKeyedMutex creates a pool with n shards (16 if n <= 0).
func NewKeyedMutex(n int) *KeyedMutex {
	if n <= 0 {
		n = 16
	}
	k := &KeyedMutex{shards: make([]*ContextMutex, n)}
	for i := range k.shards {
		k.shards[i] = NewContextMutex()
	}
	return k
}

// LockContext acquires the shard for key.
func (k *KeyedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	return k.shards[k.shardIdx(key)].LockContext(ctx)
}

func (k *KeyedMutex) shardIdx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % uint32(len(k.shards))
}
