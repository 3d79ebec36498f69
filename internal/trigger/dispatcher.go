package trigger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/observability"
)

// Executor runs a swap. A failed receipt is a normal outcome; err is reserved
// for transport or signing failures.
type Executor interface {
	Execute(ctx context.Context, req domain.TradeRequest) (domain.TradeReceipt, error)
}

// PositionSource reports the wallet balance of a token in base units.
type PositionSource interface {
	TokenBalance(ctx context.Context, mint string) (string, error)
}

// AlertSink publishes alerts.
type AlertSink interface {
	Publish(ctx context.Context, alert domain.Alert) error
}

// Outcome is reported once per finished trade task.
type Outcome struct {
	Feed    domain.Feed
	Side    domain.TradeSide
	Entry   domain.TrackedEntry
	Amount  string
	Receipt domain.TradeReceipt
	Err     error
	At      time.Time
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Feed      domain.Feed
	Executor  Executor
	Positions PositionSource
	Alerts    AlertSink
	Logger    *log.Logger
	Timeout   time.Duration // per task, default 2m
	OnOutcome func(Outcome) // called from the task goroutine
	Now       func() time.Time
}

// Dispatcher runs trades as detached tasks. It allows at most one task per
// address at a time and never reports back to the caller's control flow.
type Dispatcher struct {
	ctx       context.Context
	feed      domain.Feed
	executor  Executor
	positions PositionSource
	alerts    AlertSink
	logger    *log.Logger
	timeout   time.Duration
	onOutcome func(Outcome)
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]domain.TradeSide
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Tasks derive from ctx, not from the
// context of the tick that launched them.
func NewDispatcher(ctx context.Context, opts DispatcherOptions) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Dispatcher{
		ctx:       ctx,
		feed:      opts.Feed,
		executor:  opts.Executor,
		positions: opts.Positions,
		alerts:    opts.Alerts,
		logger:    opts.Logger,
		timeout:   opts.Timeout,
		onOutcome: opts.OnOutcome,
		now:       opts.Now,
		inflight:  make(map[string]domain.TradeSide),
	}
}

// Exit sells the whole position in entry's base mint. Returns false if a task
// for the address is already running or no executor is configured.
func (d *Dispatcher) Exit(entry domain.TrackedEntry) bool {
	return d.launch(entry, domain.TradeSideSell, "")
}

// Enter buys amount (quote-token base units) of entry's base mint.
func (d *Dispatcher) Enter(entry domain.TrackedEntry, amount string) bool {
	return d.launch(entry, domain.TradeSideBuy, amount)
}

// InFlight returns the number of running tasks.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Wait blocks until every launched task has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) launch(entry domain.TrackedEntry, side domain.TradeSide, amount string) bool {
	if d.executor == nil {
		return false
	}

	d.mu.Lock()
	if _, busy := d.inflight[entry.Address]; busy {
		d.mu.Unlock()
		return false
	}
	d.inflight[entry.Address] = side
	d.mu.Unlock()

	d.wg.Add(1)
	observability.AddTradesInFlight(1)
	go func() {
		defer d.wg.Done()
		out := d.run(entry, side, amount)

		// Release the address before reporting so outcome hooks may dispatch again.
		d.mu.Lock()
		delete(d.inflight, entry.Address)
		d.mu.Unlock()
		observability.AddTradesInFlight(-1)

		d.finish(out)
	}()
	return true
}

func (d *Dispatcher) run(entry domain.TrackedEntry, side domain.TradeSide, amount string) (out Outcome) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	out = Outcome{Feed: d.feed, Side: side, Entry: entry, Amount: amount}
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("trade task panic: %v", r)
			out.Receipt = domain.Failed("panic")
		}
		out.At = d.now()
	}()

	if entry.BaseMint == "" || entry.QuoteMint == "" {
		out.Receipt = domain.Failed("missing base or quote mint")
		return out
	}

	req := domain.TradeRequest{InputMint: entry.QuoteMint, OutputMint: entry.BaseMint, Amount: amount}
	if side == domain.TradeSideSell {
		if d.positions == nil {
			out.Receipt = domain.Failed("no position source")
			return out
		}
		balance, err := d.positions.TokenBalance(ctx, entry.BaseMint)
		if err != nil {
			out.Err = fmt.Errorf("token balance %s: %w", entry.BaseMint, err)
			out.Receipt = domain.Failed("balance lookup failed")
			return out
		}
		if balance == "" || balance == "0" {
			out.Receipt = domain.Failed("no position")
			return out
		}
		out.Amount = balance
		req = domain.TradeRequest{InputMint: entry.BaseMint, OutputMint: entry.QuoteMint, Amount: balance}
	}

	receipt, err := d.executor.Execute(ctx, req)
	if err != nil {
		out.Err = fmt.Errorf("execute %s %s: %w", side, entry.Address, err)
		if receipt.Reason == "" {
			receipt = domain.Failed(err.Error())
		}
	}
	out.Receipt = receipt
	return out
}

func (d *Dispatcher) finish(out Outcome) {
	observability.RecordTrade(string(d.feed), string(out.Side), out.Receipt.Success)

	switch {
	case out.Receipt.Success:
		d.logger.Printf("%s %s succeeded: address=%s amount=%s tx=%s",
			out.Side, out.Entry.Name, out.Entry.Address, out.Amount, out.Receipt.Hash)
		d.publish(tradeAlert(out))
	case out.Err != nil:
		d.logger.Printf("%s %s failed: address=%s err=%v", out.Side, out.Entry.Name, out.Entry.Address, out.Err)
		d.publish(domain.ErrorAlert(d.feed, out.Err.Error(), out.At))
	default:
		d.logger.Printf("%s %s not executed: address=%s reason=%s", out.Side, out.Entry.Name, out.Entry.Address, out.Receipt.Reason)
	}

	if d.onOutcome != nil {
		d.onOutcome(out)
	}
}

func (d *Dispatcher) publish(a domain.Alert) {
	if d.alerts == nil {
		return
	}
	// Alerts still go out while the dispatcher context is shutting down.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(d.ctx), 10*time.Second)
	defer cancel()
	if err := d.alerts.Publish(ctx, a); err != nil {
		d.logger.Printf("Trade alert failed: kind=%s err=%v", a.Kind, err)
	}
}

func tradeAlert(out Outcome) domain.Alert {
	price := out.Entry.CurrentPrice
	a := domain.Alert{
		Kind:   domain.AlertTrade,
		Feed:   out.Feed,
		At:     out.At,
		Side:   out.Side,
		Name:   out.Entry.Name,
		Price:  &price,
		Amount: out.Amount,
		Link:   "https://solscan.io/tx/" + out.Receipt.Hash,
	}
	if out.Entry.Volume24h != nil && out.Entry.MarketCap != nil && *out.Entry.MarketCap != 0 {
		r := *out.Entry.Volume24h / *out.Entry.MarketCap
		a.VolumeRatio = &r
	}
	return a
}
