package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestBreaker_ClosedAllows(t *testing.T) {
	b := New(3, time.Minute)
	assert.True(t, b.Allow("postgres:reviews"))
	assert.Equal(t, StateClosed, b.State("postgres:reviews"))
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)
	key := "postgres:reviews"

	b.RecordFailure(key)
	b.RecordFailure(key)
	assert.True(t, b.Allow(key), "below threshold")

	b.RecordFailure(key)
	assert.False(t, b.Allow(key))
	assert.Equal(t, StateOpen, b.State(key))
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := New(3, time.Minute)
	key := "postgres:transactions"

	b.RecordFailure(key)
	b.RecordFailure(key)
	b.RecordSuccess(key)
	b.RecordFailure(key)
	b.RecordFailure(key)

	assert.Equal(t, StateClosed, b.State(key))
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	clock := newFakeClock()
	b := New(2, 30*time.Second, WithClock(clock.Now))
	key := "neo4j:interactions"

	b.RecordFailure(key)
	b.RecordFailure(key)
	require.False(t, b.Allow(key))

	clock.Advance(29 * time.Second)
	assert.False(t, b.Allow(key), "still cooling down")

	clock.Advance(time.Second)
	assert.True(t, b.Allow(key), "one probe")
	assert.Equal(t, StateHalfOpen, b.State(key))
	assert.False(t, b.Allow(key), "second caller waits for the probe")

	b.RecordSuccess(key)
	assert.Equal(t, StateClosed, b.State(key))
	assert.True(t, b.Allow(key))
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	clock := newFakeClock()
	b := New(1, 10*time.Second, WithClock(clock.Now))
	key := "postgres:history"

	b.RecordFailure(key)
	clock.Advance(10 * time.Second)
	require.True(t, b.Allow(key))

	b.RecordFailure(key)
	assert.Equal(t, StateOpen, b.State(key))
	assert.False(t, b.Allow(key))

	// Cool-down restarts from the failed probe.
	clock.Advance(9 * time.Second)
	assert.False(t, b.Allow(key))
	clock.Advance(time.Second)
	assert.True(t, b.Allow(key))
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	b := New(1, time.Minute)
	b.RecordFailure("postgres:reviews")

	assert.False(t, b.Allow("postgres:reviews"))
	assert.True(t, b.Allow("postgres:transactions"))
	assert.Equal(t, []string{"postgres:reviews"}, b.OpenKeys())
}

func TestBreaker_TransitionHook(t *testing.T) {
	clock := newFakeClock()
	var got []string
	b := New(1, time.Second, WithClock(clock.Now), WithTransitionHook(func(key string, from, to State) {
		got = append(got, key+":"+from.String()+"->"+to.String())
	}))

	b.RecordFailure("k")
	clock.Advance(time.Second)
	b.Allow("k")
	b.RecordSuccess("k")

	assert.Equal(t, []string{
		"k:closed->open",
		"k:open->half_open",
		"k:half_open->closed",
	}, got)
}

func TestBreaker_Defaults(t *testing.T) {
	b := New(0, 0)
	assert.Equal(t, DefaultThreshold, b.threshold)
	assert.Equal(t, DefaultOpenDuration, b.openDuration)
}

func TestBreaker_ConcurrentProbeAdmitsOne(t *testing.T) {
	clock := newFakeClock()
	b := New(1, time.Second, WithClock(clock.Now))
	b.RecordFailure("k")
	clock.Advance(time.Second)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow("k") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
