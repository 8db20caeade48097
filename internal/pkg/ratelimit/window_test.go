package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances virtual time whenever a waiter sleeps.
type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.t = c.t.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// assertBudget checks that no rolling window holds more than limit admissions.
func assertBudget(t *testing.T, admitted []time.Time, limit int, window time.Duration) {
	t.Helper()
	for i := range admitted {
		n := 0
		for j := i; j < len(admitted); j++ {
			if admitted[j].Sub(admitted[i]) < window {
				n++
			}
		}
		assert.LessOrEqual(t, n, limit, "window starting at call %d", i)
	}
}

func TestSlidingWindowBlocksInsteadOfRejecting(t *testing.T) {
	clock := newFakeClock()
	lim := NewSlidingWindow(5, time.Minute).WithClock(clock.Now, clock.Sleep)
	ctx := context.Background()

	var admitted []time.Time
	for i := 0; i < 12; i++ {
		require.NoError(t, lim.Acquire(ctx))
		admitted = append(admitted, clock.Now())
		clock.Advance(time.Second)
	}

	assert.Len(t, admitted, 12)
	assert.NotEmpty(t, clock.waits, "calls over budget must wait")
	assertBudget(t, admitted, 5, time.Minute)
	// The sixth call waits for the first to age out.
	assert.Equal(t, admitted[0].Add(time.Minute), admitted[5])
}

func TestSlidingWindowUnderBudgetDoesNotWait(t *testing.T) {
	clock := newFakeClock()
	lim := NewSlidingWindow(5, time.Minute).WithClock(clock.Now, clock.Sleep)

	for i := 0; i < 5; i++ {
		require.NoError(t, lim.Acquire(context.Background()))
	}
	assert.Empty(t, clock.waits)
	assert.Equal(t, 5, lim.InWindow())

	clock.Advance(61 * time.Second)
	assert.Equal(t, 0, lim.InWindow())
}

func TestSlidingWindowHonorsContext(t *testing.T) {
	lim := NewSlidingWindow(1, time.Hour)
	require.NoError(t, lim.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := lim.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlidingWindowConcurrentCallersShareBudget(t *testing.T) {
	lim := NewSlidingWindow(5, 200*time.Millisecond)
	ctx := context.Background()

	var mu sync.Mutex
	var admitted []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, lim.Acquire(ctx))
			mu.Lock()
			admitted = append(admitted, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, admitted, 10)
	first, last := admitted[0], admitted[0]
	for _, a := range admitted {
		if a.Before(first) {
			first = a
		}
		if a.After(last) {
			last = a
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 150*time.Millisecond)
}

func TestRedisWindowSharedAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clock := newFakeClock()
	a := NewRedisWindow(client, "oracle", 5, time.Minute).WithClock(clock.Now, clock.Sleep)
	b := NewRedisWindow(client, "oracle", 5, time.Minute).WithClock(clock.Now, clock.Sleep)
	ctx := context.Background()

	var admitted []time.Time
	for i := 0; i < 10; i++ {
		lim := a
		if i%2 == 1 {
			lim = b
		}
		require.NoError(t, lim.Acquire(ctx))
		admitted = append(admitted, clock.Now())
		clock.Advance(2 * time.Second)
	}

	assert.NotEmpty(t, clock.waits)
	assertBudget(t, admitted, 5, time.Minute)
}
