package syncutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextMutex_LockUnlock(t *testing.T) {
	m := NewContextMutex()

	unlock, err := m.LockContext(context.Background())
	require.NoError(t, err)
	unlock()

	unlock, ok := m.TryLock()
	require.True(t, ok)
	_, ok = m.TryLock()
	assert.False(t, ok)
	unlock()
}

func TestContextMutex_MutualExclusion(t *testing.T) {
	m := NewContextMutex()
	ctx := context.Background()

	var counter int64
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock, err := m.LockContext(ctx)
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			defer unlock()
			v := atomic.LoadInt64(&counter)
			atomic.StoreInt64(&counter, v+1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), atomic.LoadInt64(&counter))
}

func TestContextMutex_ContextCancelled(t *testing.T) {
	m := NewContextMutex()

	unlock, err := m.LockContext(context.Background())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = m.LockContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestContextMutex_UnlockHandsOver(t *testing.T) {
	m := NewContextMutex()
	ctx := context.Background()

	unlock, err := m.LockContext(ctx)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, err := m.LockContext(ctx)
		if err != nil {
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired lock before first released")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second goroutine did not acquire lock after release")
	}
}

func TestKeyedMutex_SameKeyBlocks(t *testing.T) {
	k := NewKeyedMutex(4)

	unlock, err := k.LockContext(context.Background(), "rings:7")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.LockContext(ctx, "rings:7")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex_DefaultShards(t *testing.T) {
	k := NewKeyedMutex(0)
	assert.Len(t, k.shards, 16)
}
