package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/observability"
)

// Reconciler is anything that runs one reconciliation tick.
type Reconciler interface {
	Feed() domain.Feed
	Tick(ctx context.Context) (*TickResult, error)
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Loop     Reconciler
	Interval time.Duration // default 30s
	Alerts   AlertSink     // receives an error alert per failed tick
	Logger   *log.Logger
}

// Runner drives a Reconciler on a fixed interval. Ticks never overlap:
// a tick that is due while another runs starts once the running one returns.
type Runner struct {
	loop     Reconciler
	interval time.Duration
	alerts   AlertSink
	logger   *log.Logger

	mu   sync.RWMutex
	last *TickResult
	runs int
	fail int
}

// NewRunner creates a new reconciliation runner.
func NewRunner(opts RunnerOptions) *Runner {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		loop:     opts.Loop,
		interval: interval,
		alerts:   opts.Alerts,
		logger:   logger,
	}
}

// Run ticks immediately and then every interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("Starting runner: feed=%s interval=%v", r.loop.Feed(), r.interval)

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("Runner stopping: feed=%s", r.loop.Feed())
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes one tick, absorbing every failure including panics.
func (r *Runner) RunOnce(ctx context.Context) {
	feed := r.loop.Feed()
	start := time.Now()

	res, err := r.safeTick(ctx)
	duration := time.Since(start).Round(time.Millisecond)
	if err == nil && res == nil {
		err = errors.New("tick returned no result")
	}

	var warnings error
	if err == nil {
		warnings = res.Err()
	}
	if err != nil {
		observability.RecordTick(string(feed), duration, err)
	} else {
		observability.RecordTick(string(feed), duration, warnings)
	}

	r.mu.Lock()
	r.runs++
	if res != nil {
		r.last = res
	}
	if err != nil {
		r.fail++
	}
	r.mu.Unlock()

	switch {
	case err != nil:
		var se *StageError
		if errors.As(err, &se) {
			observability.RecordStageFailure(string(feed), string(se.Stage))
		}
		r.logger.Printf("Tick failed: feed=%s duration=%v err=%v", feed, duration, err)
		r.alert(ctx, fmt.Sprintf("%s tick failed: %v", feed, err))
	case warnings != nil:
		r.logger.Printf("Tick completed with %d warnings: feed=%s duration=%v err=%v",
			len(res.Warnings), feed, duration, warnings)
		r.alert(ctx, fmt.Sprintf("%s tick completed with errors: %v", feed, warnings))
	default:
		r.logger.Printf("Tick completed: feed=%s watchlist=%d registry=%d discovered=%d promoted=%d exits=%d duration=%v",
			feed, len(res.Watchlist), res.Registry, res.Discovered, len(res.Promoted), len(res.Exits), duration)
	}
}

func (r *Runner) safeTick(ctx context.Context) (res *TickResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("tick panic: %v", p)
		}
	}()
	return r.loop.Tick(ctx)
}

func (r *Runner) alert(ctx context.Context, detail string) {
	if r.alerts == nil || ctx.Err() != nil {
		return
	}
	if err := r.alerts.Publish(ctx, domain.ErrorAlert(r.loop.Feed(), detail, time.Now().UTC())); err != nil {
		r.logger.Printf("Error alert failed: feed=%s err=%v", r.loop.Feed(), err)
	}
}

// Status is a point-in-time view of the runner.
type Status struct {
	Feed       domain.Feed `json:"feed"`
	Runs       int         `json:"runs"`
	Failures   int         `json:"failures"`
	LastTickID string      `json:"lastTickId,omitempty"`
	LastTickAt *time.Time  `json:"lastTickAt,omitempty"`
	Watchlist  int         `json:"watchlist"`
	Registry   int         `json:"registry"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// Status returns counters and the last tick summary.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Status{Feed: r.loop.Feed(), Runs: r.runs, Failures: r.fail}
	if r.last != nil {
		at := r.last.StartedAt
		s.LastTickID = r.last.ID
		s.LastTickAt = &at
		s.Watchlist = len(r.last.Watchlist)
		s.Registry = r.last.Registry
		for _, w := range r.last.Warnings {
			s.Warnings = append(s.Warnings, w.Error())
		}
	}
	return s
}
