package reconcile

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"solana-token-watch/internal/domain"
)

type scriptedReconciler struct {
	mu     sync.Mutex
	calls  int
	script []func() (*TickResult, error)
	delay  time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func (s *scriptedReconciler) Feed() domain.Feed {
	return domain.FeedDexScreener
}

func (s *scriptedReconciler) Tick(context.Context) (*TickResult, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxActive.Load()
		if n <= m || s.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	if i < len(s.script) {
		return s.script[i]()
	}
	return &TickResult{ID: "tick", Feed: domain.FeedDexScreener}, nil
}

func (s *scriptedReconciler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func quietRunner(loop Reconciler, alerts AlertSink) *Runner {
	return NewRunner(RunnerOptions{
		Loop:     loop,
		Interval: time.Millisecond,
		Alerts:   alerts,
		Logger:   log.New(io.Discard, "", 0),
	})
}

func TestRunner_FailedTickDoesNotStopLoop(t *testing.T) {
	rec := &scriptedReconciler{script: []func() (*TickResult, error){
		func() (*TickResult, error) {
			return &TickResult{}, &StageError{Stage: StageLoading, Err: errors.New("redis down")}
		},
		func() (*TickResult, error) {
			return &TickResult{ID: "ok", Registry: 3}, nil
		},
	}}
	alerts := &alertRecorder{}
	r := quietRunner(rec, alerts)

	r.RunOnce(context.Background())
	r.RunOnce(context.Background())

	s := r.Status()
	if s.Runs != 2 || s.Failures != 1 {
		t.Errorf("expected 2 runs and 1 failure, got %+v", s)
	}
	if s.LastTickID != "ok" || s.Registry != 3 {
		t.Errorf("status should reflect the last tick, got %+v", s)
	}
	if n := alerts.count(domain.AlertError); n != 1 {
		t.Errorf("expected 1 error alert, got %d", n)
	}
}

func TestRunner_PanicIsAbsorbed(t *testing.T) {
	rec := &scriptedReconciler{script: []func() (*TickResult, error){
		func() (*TickResult, error) { panic("nil map") },
	}}
	alerts := &alertRecorder{}
	r := quietRunner(rec, alerts)

	r.RunOnce(context.Background())
	r.RunOnce(context.Background())

	if s := r.Status(); s.Runs != 2 || s.Failures != 1 {
		t.Errorf("expected the panic to count as one failure, got %+v", s)
	}
	if alerts.count(domain.AlertError) != 1 {
		t.Error("panic should raise an error alert")
	}
}

func TestRunner_NilResultIsFailure(t *testing.T) {
	rec := &scriptedReconciler{script: []func() (*TickResult, error){
		func() (*TickResult, error) { return nil, nil },
	}}
	r := quietRunner(rec, nil)

	r.RunOnce(context.Background())
	if s := r.Status(); s.Failures != 1 || s.LastTickID != "" {
		t.Errorf("unexpected status: %+v", s)
	}
}

func TestRunner_WarningsRaiseAlert(t *testing.T) {
	rec := &scriptedReconciler{script: []func() (*TickResult, error){
		func() (*TickResult, error) {
			res := &TickResult{ID: "warn"}
			res.warn(StagePublishing, errors.New("sheets 503"))
			return res, nil
		},
	}}
	alerts := &alertRecorder{}
	r := quietRunner(rec, alerts)

	r.RunOnce(context.Background())

	s := r.Status()
	if s.Failures != 0 {
		t.Errorf("warnings are not failures, got %+v", s)
	}
	if len(s.Warnings) != 1 {
		t.Errorf("expected 1 warning in status, got %v", s.Warnings)
	}
	if alerts.count(domain.AlertError) != 1 {
		t.Error("warnings should raise an error alert")
	}
}

func TestRunner_TicksNeverOverlap(t *testing.T) {
	rec := &scriptedReconciler{delay: 10 * time.Millisecond}
	r := quietRunner(rec, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	err := r.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if rec.count() < 2 {
		t.Errorf("expected several ticks, got %d", rec.count())
	}
	if m := rec.maxActive.Load(); m != 1 {
		t.Errorf("ticks overlapped: max concurrent %d", m)
	}
}

func TestRunner_RunTicksImmediately(t *testing.T) {
	rec := &scriptedReconciler{}
	r := NewRunner(RunnerOptions{Loop: rec, Interval: time.Hour, Logger: log.New(io.Discard, "", 0)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitFor(t, func() bool { return rec.count() == 1 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled, got %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected exactly one tick, got %d", rec.count())
	}
}

func TestRunner_DefaultInterval(t *testing.T) {
	r := NewRunner(RunnerOptions{Loop: &scriptedReconciler{}})
	if r.interval != 30*time.Second {
		t.Errorf("expected 30s default, got %v", r.interval)
	}
}
