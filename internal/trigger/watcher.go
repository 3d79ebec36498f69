package trigger

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/observability"
)

// PriceSource returns the current USD price of an address.
// A nil price with a nil error means the provider has no quote yet.
type PriceSource interface {
	Price(ctx context.Context, address string) (*decimal.Decimal, error)
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Feed     domain.Feed
	Prices   PriceSource
	Interval time.Duration // poll interval, default 5s
	Logger   *log.Logger
	// OnTarget is called once when price >= target; the watch is then disarmed.
	OnTarget func(entry domain.TrackedEntry, price decimal.Decimal)
}

// Watcher polls prices for armed entries, one goroutine per address.
type Watcher struct {
	ctx      context.Context
	feed     domain.Feed
	prices   PriceSource
	interval time.Duration
	logger   *log.Logger
	onTarget func(domain.TrackedEntry, decimal.Decimal)

	mu    sync.Mutex
	armed map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// NewWatcher creates a watcher whose goroutines stop when ctx is cancelled.
func NewWatcher(ctx context.Context, opts WatcherOptions) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Watcher{
		ctx:      ctx,
		feed:     opts.Feed,
		prices:   opts.Prices,
		interval: opts.Interval,
		logger:   opts.Logger,
		onTarget: opts.OnTarget,
		armed:    make(map[string]context.CancelFunc),
	}
}

// Arm starts watching entry until its price reaches target.
// Returns false if the address is already armed.
func (w *Watcher) Arm(entry domain.TrackedEntry, target decimal.Decimal) bool {
	w.mu.Lock()
	if _, ok := w.armed[entry.Address]; ok {
		w.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(w.ctx)
	w.armed[entry.Address] = cancel
	n := len(w.armed)
	w.mu.Unlock()

	observability.UpdateWatchers(string(w.feed), n)
	w.logger.Printf("Armed price watcher: address=%s target=%s", entry.Address, target)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.release(entry.Address)
		w.poll(ctx, entry, target)
	}()
	return true
}

// Disarm stops watching address. Returns false if it was not armed.
func (w *Watcher) Disarm(address string) bool {
	w.mu.Lock()
	cancel, ok := w.armed[address]
	w.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Armed reports whether address is being watched.
func (w *Watcher) Armed(address string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.armed[address]
	return ok
}

// Len returns the number of armed watches.
func (w *Watcher) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.armed)
}

// Stop disarms every watch and waits for the goroutines to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for _, cancel := range w.armed {
		cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) release(address string) {
	w.mu.Lock()
	if cancel, ok := w.armed[address]; ok {
		cancel()
		delete(w.armed, address)
	}
	n := len(w.armed)
	w.mu.Unlock()
	observability.UpdateWatchers(string(w.feed), n)
}

func (w *Watcher) poll(ctx context.Context, entry domain.TrackedEntry, target decimal.Decimal) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		price, err := w.prices.Price(ctx, entry.Address)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Printf("Price check failed: address=%s err=%v", entry.Address, err)
			continue
		}
		if price == nil || price.LessThan(target) {
			continue
		}

		w.logger.Printf("Price target reached: address=%s price=%s target=%s", entry.Address, price, target)
		observability.RecordTrigger(string(w.feed), "watcher")
		if w.onTarget != nil {
			w.onTarget(entry, *price)
		}
		return
	}
}
