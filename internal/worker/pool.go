package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ErrStopped marks items that were never started because the stop channel
// closed first.
var ErrStopped = errors.New("worker: stopped before start")

// Options configures ProcessAll.
type Options struct {
	Workers int

	// RatePerSecond paces item starts across all workers. Set to <=0 to disable.
	RatePerSecond float64

	// Stop, when closed, prevents further items from starting. Items already
	// running finish normally.
	Stop <-chan struct{}
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Input  In
	Output Out
	Err    error
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	return o
}

// ProcessAll runs processor over items with a bounded number of workers and
// returns one result per item, in input order. A processor error or panic
// is recorded on that item only.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) []Result[In, Out] {
	return ProcessAllWithCallback(ctx, items, processor, nil, opts)
}

// ProcessAllWithCallback is ProcessAll with onResult invoked, from a single
// goroutine, as each item completes.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]),
	opts Options,
) []Result[In, Out] {
	opts = opts.withDefaults()

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	out := make([]Result[In, Out], len(items))
	started := make([]bool, len(items))

	type job struct {
		idx int
		in  In
	}
	type completion struct {
		idx int
		res Result[In, Out]
	}

	jobs := make(chan job)
	done := make(chan completion, opts.Workers)

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				done <- completion{idx: j.idx, res: processOne(ctx, j.in, processor)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			if stopped(opts.Stop) || ctx.Err() != nil {
				return
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
			select {
			case jobs <- job{idx: i, in: item}:
			case <-ctx.Done():
				return
			case <-opts.Stop:
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	for c := range done {
		out[c.idx] = c.res
		started[c.idx] = true
		if onResult != nil {
			onResult(c.res)
		}
	}

	for i, ok := range started {
		if ok {
			continue
		}
		err := ErrStopped
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		out[i] = Result[In, Out]{Input: items[i], Err: err}
	}
	return out
}

func processOne[In any, Out any](ctx context.Context, item In, processor func(context.Context, In) (Out, error)) (res Result[In, Out]) {
	res.Input = item
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("worker: panic: %v", r)
		}
	}()
	res.Output, res.Err = processor(ctx, item)
	return res
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
