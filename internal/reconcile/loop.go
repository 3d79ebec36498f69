package reconcile

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/eligibility"
	"solana-token-watch/internal/observability"
	"solana-token-watch/internal/staging"
	"solana-token-watch/internal/storage"
	"solana-token-watch/internal/trigger"
	"solana-token-watch/internal/watchlist"
)

// LoopOptions contains configuration for creating a Loop.
type LoopOptions struct {
	Feed      domain.Feed
	Provider  Provider
	Watchlist *watchlist.Store
	Registry  *staging.Store
	Filter    *eligibility.Filter
	Evaluator *trigger.Evaluator

	// Optional collaborators
	Executor  trigger.Executor
	Positions trigger.PositionSource
	Prices    trigger.PriceSource
	Reports   ReportSink
	Alerts    AlertSink

	StagingTTL       time.Duration // default 48h
	BatchSize        int           // addresses per attribute request, default 30
	FetchConcurrency int           // concurrent attribute requests, default 4
	EntryAmount      string        // quote base units bought on promotion, "" disables
	WatchInterval    time.Duration // price-target polling, 0 disables
	TradeTimeout     time.Duration
	Logger           *log.Logger
	Now              func() time.Time
}

// Loop runs one feed's reconciliation tick. Tick must not be called
// concurrently; Runner serialises calls.
type Loop struct {
	feed        domain.Feed
	provider    Provider
	watchlist   *watchlist.Store
	registry    *staging.Store
	filter      *eligibility.Filter
	evaluator   *trigger.Evaluator
	dispatcher  *trigger.Dispatcher
	watcher     *trigger.Watcher
	reports     ReportSink
	alerts      AlertSink
	stagingTTL  time.Duration
	batchSize   int
	concurrency int
	entryAmount string
	logger      *log.Logger
	now         func() time.Time

	// Confirmed exits waiting to be applied to the watchlist
	exitsMu sync.Mutex
	exits   map[string]time.Time
}

// NewLoop creates a loop. ctx bounds the detached trade tasks and price
// watchers started by the loop; cancel it and call Close on shutdown.
func NewLoop(ctx context.Context, opts LoopOptions) *Loop {
	if opts.StagingTTL <= 0 {
		opts.StagingTTL = 48 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 30
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Filter == nil {
		opts.Filter = eligibility.NewFilter(eligibility.DefaultConfig())
	}
	if opts.Evaluator == nil {
		opts.Evaluator = trigger.NewEvaluator(trigger.DefaultConfig())
	}

	l := &Loop{
		feed:        opts.Feed,
		provider:    opts.Provider,
		watchlist:   opts.Watchlist,
		registry:    opts.Registry,
		filter:      opts.Filter,
		evaluator:   opts.Evaluator,
		reports:     opts.Reports,
		alerts:      opts.Alerts,
		stagingTTL:  opts.StagingTTL,
		batchSize:   opts.BatchSize,
		concurrency: opts.FetchConcurrency,
		entryAmount: opts.EntryAmount,
		logger:      opts.Logger,
		now:         opts.Now,
		exits:       make(map[string]time.Time),
	}

	if opts.Executor != nil {
		l.dispatcher = trigger.NewDispatcher(ctx, trigger.DispatcherOptions{
			Feed:      opts.Feed,
			Executor:  opts.Executor,
			Positions: opts.Positions,
			Alerts:    opts.Alerts,
			Logger:    opts.Logger,
			Timeout:   opts.TradeTimeout,
			OnOutcome: l.handleOutcome,
			Now:       opts.Now,
		})
	}
	if l.dispatcher != nil && opts.Prices != nil && opts.WatchInterval > 0 {
		l.watcher = trigger.NewWatcher(ctx, trigger.WatcherOptions{
			Feed:     opts.Feed,
			Prices:   opts.Prices,
			Interval: opts.WatchInterval,
			Logger:   opts.Logger,
			OnTarget: func(e domain.TrackedEntry, _ decimal.Decimal) { l.dispatcher.Exit(e) },
		})
	}

	return l
}

// Feed returns the feed this loop reconciles.
func (l *Loop) Feed() domain.Feed {
	return l.feed
}

// Close stops price watchers and waits for in-flight trade tasks.
func (l *Loop) Close() {
	if l.watcher != nil {
		l.watcher.Stop()
	}
	if l.dispatcher != nil {
		l.dispatcher.Wait()
	}
}

// RecordExit queues a confirmed exit; the next tick sets RemovedAt.
func (l *Loop) RecordExit(address string, at time.Time) {
	l.exitsMu.Lock()
	defer l.exitsMu.Unlock()
	if _, ok := l.exits[address]; !ok {
		l.exits[address] = at
	}
}

func (l *Loop) drainExits() map[string]time.Time {
	l.exitsMu.Lock()
	defer l.exitsMu.Unlock()
	out := l.exits
	l.exits = make(map[string]time.Time)
	return out
}

func (l *Loop) restoreExits(m map[string]time.Time) {
	for addr, at := range m {
		l.RecordExit(addr, at)
	}
}

func (l *Loop) handleOutcome(o trigger.Outcome) {
	if !o.Receipt.Success {
		return
	}
	switch o.Side {
	case domain.TradeSideSell:
		l.RecordExit(o.Entry.Address, o.At)
		if l.watcher != nil {
			l.watcher.Disarm(o.Entry.Address)
		}
	case domain.TradeSideBuy:
		if l.watcher != nil {
			l.watcher.Arm(o.Entry, l.evaluator.Target(o.Entry.BaselinePrice))
		}
	}
}

// Tick runs Loading, Evaluating, Discovering, Promoting, Persisting and
// Publishing once. A returned error is a *StageError from Loading; later
// failures are collected in TickResult.Warnings.
func (l *Loop) Tick(ctx context.Context) (*TickResult, error) {
	now := l.now().UTC()
	res := &TickResult{
		ID:        uuid.NewString(),
		Feed:      l.feed,
		StartedAt: now,
		Rejected:  make(map[string]string),
	}
	defer func() { res.FinishedAt = l.now().UTC() }()

	// Loading
	removals := l.drainExits()
	existing, err := l.watchlist.Load(ctx)
	if err != nil {
		l.restoreExits(removals)
		return res, &StageError{Stage: StageLoading, Err: err}
	}
	registry, err := l.registry.Load(ctx)
	if err != nil {
		l.restoreExits(removals)
		return res, &StageError{Stage: StageLoading, Err: err}
	}

	res.Removed = watchlist.MarkRemoved(existing, removals)
	refreshed, err := l.fetchAttributes(ctx, watchlist.Active(existing))
	res.warn(StageLoading, err)

	// Evaluating
	current := watchlist.Merge(existing, refreshed, nil)
	res.Refreshed = len(refreshed)
	for i := range current {
		e := &current[i]
		if _, ok := refreshed[e.Address]; !ok {
			continue
		}
		d := l.evaluator.Evaluate(e)
		if d.Action != trigger.ActionExit {
			continue
		}
		l.logger.Printf("Exit triggered: address=%s baseline=%s current=%s threshold=%s",
			e.Address, e.BaselinePrice, e.CurrentPrice, d.Threshold)
		observability.RecordTrigger(string(l.feed), "tick")
		if l.dispatcher != nil && l.dispatcher.Exit(*e) {
			res.Exits = append(res.Exits, e.Address)
		}
	}

	// Discovering
	candidates := l.discover(ctx, res)
	res.Discovered = len(candidates)

	tracked := watchlist.Addresses(current)
	trackedSet := make(map[string]struct{}, len(tracked))
	for _, addr := range tracked {
		trackedSet[addr] = struct{}{}
	}
	for _, c := range candidates {
		if _, ok := trackedSet[c.Address]; ok {
			continue
		}
		observedAt := c.DiscoveredAt
		if observedAt.IsZero() {
			observedAt = now
		}
		if registry.RecordSighting(c.Address, observedAt) {
			res.Staged++
		}
	}
	res.Expired = registry.SweepExpired(now, l.stagingTTL)
	observability.RecordExpired(string(l.feed), len(res.Expired))
	registry.ExcludeIfTracked(tracked)

	if err := l.registry.Save(ctx, registry); err != nil {
		res.warn(StageDiscovering, err)
	}

	staged := registry.Addresses()
	stagedAttrs, err := l.fetchAttributes(ctx, staged)
	res.warn(StageDiscovering, err)

	// Promoting
	var promoted []domain.TrackedEntry
	for _, addr := range staged {
		a, ok := stagedAttrs[addr]
		if !ok {
			continue
		}
		if reason := l.filter.Reason(a, now); reason != "" {
			res.Rejected[addr] = reason
			continue
		}
		if e, ok := domain.NewTrackedEntry(a, now); ok {
			promoted = append(promoted, e)
		}
	}

	// Persisting
	final := watchlist.Merge(current, nil, promoted)
	if err := l.watchlist.Save(ctx, final); err != nil {
		// Nothing from this tick is durable; exits and promotions are retried next tick.
		res.warn(StagePersisting, err)
		l.restoreExits(removals)
		final = current
		promoted = nil
	} else {
		res.Persisted = true
		for _, e := range promoted {
			registry.Remove(e.Address)
		}
	}
	if err := l.registry.Save(ctx, registry); err != nil {
		res.warn(StagePersisting, err)
	}
	res.Watchlist = final
	res.Promoted = promoted
	res.Registry = registry.Len()

	// Publishing
	l.publish(ctx, res, now)

	l.recordMetrics(res)
	return res, nil
}

func (l *Loop) publish(ctx context.Context, res *TickResult, now time.Time) {
	if l.reports != nil {
		snap := &storage.WatchlistSnapshot{ID: res.ID, Feed: l.feed, TakenAt: now, Entries: res.Watchlist}
		if err := l.reports.Publish(ctx, snap); err != nil {
			l.logger.Printf("Report publish failed: feed=%s err=%v", l.feed, err)
			res.warn(StagePublishing, err)
		}
	}

	if len(res.Promoted) == 0 {
		return
	}

	if l.alerts != nil {
		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, e := range res.Promoted {
			wg.Add(1)
			go func(e domain.TrackedEntry) {
				defer wg.Done()
				if err := l.alerts.Publish(ctx, domain.CoinAlert(l.feed, &e, now)); err != nil {
					l.logger.Printf("Coin alert failed: address=%s err=%v", e.Address, err)
					mu.Lock()
					res.warn(StagePublishing, fmt.Errorf("alert %s: %w", e.Address, err))
					mu.Unlock()
				}
			}(e)
		}
		wg.Wait()
	}

	if l.entryAmount != "" && l.dispatcher != nil {
		for _, e := range res.Promoted {
			l.dispatcher.Enter(e, l.entryAmount)
		}
	}
}

func (l *Loop) recordMetrics(res *TickResult) {
	feed := string(l.feed)
	observability.RecordPromotions(feed, len(res.Promoted))
	active := len(watchlist.Active(res.Watchlist))
	observability.UpdateSizes(feed, res.Registry, active, len(res.Watchlist)-active)
	for _, w := range res.Warnings {
		if se, ok := w.(*StageError); ok {
			observability.RecordWarning(feed, string(se.Stage))
		}
	}
}
