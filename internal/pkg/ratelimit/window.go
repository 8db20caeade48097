// Package ratelimit provides the blocking sliding-window call budget shared
// by every oracle call in a process, or across processes via Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits calls under a budget. Acquire blocks until a slot is free
// or ctx ends; it never rejects a call for being over budget.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// SlidingWindow admits at most limit calls in any rolling window. It keeps
// the admission time of every call still inside the window.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSlidingWindow creates a limiter admitting limit calls per window.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// WithClock replaces the time source and the wait primitive. Used by tests
// to drive the window without real sleeps.
func (w *SlidingWindow) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *SlidingWindow {
	w.now = now
	w.sleep = sleep
	return w
}

// Acquire waits until the oldest call leaves the window, then re-checks
// admission. The loop repeats because another waiter may take the slot.
func (w *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		w.mu.Lock()
		now := w.now()
		w.evict(now)
		if len(w.calls) < w.limit {
			w.calls = append(w.calls, now)
			w.mu.Unlock()
			return nil
		}
		wait := w.calls[0].Add(w.window).Sub(now)
		w.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InWindow returns the number of calls admitted in the current window.
func (w *SlidingWindow) InWindow() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.now())
	return len(w.calls)
}

func (w *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
