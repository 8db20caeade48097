package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/mailsource"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/distlock"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
	"github.com/nickimizell/property-dashboard-sub000/internal/worker"
)

// ErrStopped is returned by RunOnce after Stop.
var ErrStopped = errors.New("pipeline: runner stopped")

// RunnerState is the coarse lifecycle of a Runner.
type RunnerState string

const (
	RunnerIdle     RunnerState = "idle"
	RunnerRunning  RunnerState = "running"
	RunnerStopping RunnerState = "stopping"
	RunnerStopped  RunnerState = "stopped"
)

// RunnerStatus is the runner state reported by the status API.
type RunnerStatus struct {
	State         RunnerState `json:"state"`
	Batches       int64       `json:"batches"`
	LastBatchAt   *time.Time  `json:"last_batch_at,omitempty"`
	LastBatchSize int         `json:"last_batch_size"`
}

// BatchResult summarizes one RunOnce.
type BatchResult struct {
	Fetched  int       `json:"fetched"`
	Outcomes []Outcome `json:"outcomes"`
	// NotStarted counts fetched emails left unprocessed by Stop.
	NotStarted int `json:"not_started"`
	// Skipped is set when another process held the batch lock.
	Skipped bool `json:"skipped"`
}

// Runner pulls batches from a mail source and processes them through a
// bounded worker pool, one batch at a time per lock.
type Runner struct {
	orch   *Orchestrator
	source mailsource.Source
	lock   distlock.DistLock
	cfg    config.PipelineConfig
	now    func() time.Time

	mu            sync.Mutex
	state         RunnerState
	batches       int64
	lastBatchAt   time.Time
	lastBatchSize int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRunner creates a runner. lock may be nil for a single-process setup.
func NewRunner(orch *Orchestrator, source mailsource.Source, lock distlock.DistLock, cfg config.PipelineConfig) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Runner{
		orch:   orch,
		source: source,
		lock:   lock,
		cfg:    cfg,
		now:    time.Now,
		state:  RunnerIdle,
		stop:   make(chan struct{}),
	}
}

// RunOnce fetches and processes one batch. Emails already running when
// Stop is called finish; the rest of the batch stays unread in the source.
func (r *Runner) RunOnce(ctx context.Context) (BatchResult, error) {
	if r.stopping() {
		return BatchResult{}, ErrStopped
	}

	var res BatchResult
	batch := func(ctx context.Context) error {
		var err error
		res, err = r.runBatch(ctx)
		return err
	}

	if r.lock == nil {
		err := batch(ctx)
		return res, err
	}
	err := distlock.Run(ctx, r.lock, batch)
	if errors.Is(err, distlock.ErrNotAcquired) {
		logger.Info("batch lock held elsewhere, skipping")
		return BatchResult{Skipped: true}, nil
	}
	return res, err
}

func (r *Runner) runBatch(ctx context.Context) (BatchResult, error) {
	r.setState(RunnerRunning)
	defer r.settle()

	emails, err := r.source.Fetch(ctx, r.cfg.BatchSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("fetch: %w", err)
	}
	res := BatchResult{Fetched: len(emails)}

	results := worker.ProcessAll(ctx, emails, func(ctx context.Context, e domain.InboundEmail) (Outcome, error) {
		return r.orch.Process(ctx, e), nil
	}, worker.Options{
		Workers:       r.cfg.Workers,
		RatePerSecond: r.cfg.EmailsPerSecond,
		Stop:          r.stop,
	})
	for _, out := range results {
		if out.Err != nil {
			res.NotStarted++
			r.release(ctx, out.Input)
			continue
		}
		if out.Output.Retry {
			r.release(ctx, out.Input)
		}
		res.Outcomes = append(res.Outcomes, out.Output)
	}

	r.mu.Lock()
	r.batches++
	r.lastBatchAt = r.now()
	r.lastBatchSize = len(emails)
	r.mu.Unlock()

	if len(emails) > 0 {
		log.Printf("[Runner] batch done: fetched=%d processed=%d not_started=%d", len(emails), len(res.Outcomes), res.NotStarted)
	}
	return res, nil
}

// release hands an email back to the source for a later batch.
func (r *Runner) release(ctx context.Context, email domain.InboundEmail) {
	id := email.ExternalID()
	if id == "" {
		return
	}
	if err := r.source.Release(ctx, id); err != nil {
		logger.Warn("failed to release message", "email_id", id, "error", err)
	}
}

// Run processes batches until ctx ends or Stop is called, waiting the poll
// interval between batches.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.cfg.PollInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	log.Printf("[Runner] started (batch=%d workers=%d poll=%s)", r.cfg.BatchSize, r.cfg.Workers, interval)

	for {
		if _, err := r.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrStopped) {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("batch failed", "error", err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-r.stop:
			timer.Stop()
			r.settle()
			log.Printf("[Runner] stopped")
			return nil
		case <-timer.C:
		}
	}
	log.Printf("[Runner] stopped")
	return nil
}

// Stop prevents new emails from entering the pipeline. Emails in flight
// finish normally.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.mu.Lock()
		if r.state == RunnerRunning {
			r.state = RunnerStopping
		} else {
			r.state = RunnerStopped
		}
		r.mu.Unlock()
	})
}

// Status reports the runner state.
func (r *Runner) Status() RunnerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := RunnerStatus{State: r.state, Batches: r.batches, LastBatchSize: r.lastBatchSize}
	if !r.lastBatchAt.IsZero() {
		at := r.lastBatchAt
		st.LastBatchAt = &at
	}
	return st
}

// Validate checks every dependency the runner needs before it accepts work.
func (r *Runner) Validate(ctx context.Context) error {
	checks := append(r.orch.Checks(), Check{Name: "mail source", Ping: r.source.Ping})
	return Validate(ctx, checks...)
}

func (r *Runner) stopping() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *Runner) setState(s RunnerState) {
	r.mu.Lock()
	if r.state != RunnerStopping && r.state != RunnerStopped {
		r.state = s
	}
	r.mu.Unlock()
}

// settle moves the runner out of running: to stopped after Stop, else idle.
func (r *Runner) settle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping() {
		r.state = RunnerStopped
		return
	}
	r.state = RunnerIdle
}
