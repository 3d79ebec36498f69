package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/eligibility"
	"solana-token-watch/internal/staging"
	"solana-token-watch/internal/storage"
	"solana-token-watch/internal/storage/memory"
	"solana-token-watch/internal/trigger"
	"solana-token-watch/internal/watchlist"
)

const (
	watchlistKey = "gt_watchlist"
	registryKey  = "gt_staging"
	solMint      = "So11111111111111111111111111111111111111112"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// flakyKV injects failures per key on top of the memory store.
type flakyKV struct {
	*memory.KVStore
	mu      sync.Mutex
	failGet map[string]error
	failSet map[string]error
}

func newFlakyKV() *flakyKV {
	return &flakyKV{
		KVStore: memory.NewKVStore(),
		failGet: make(map[string]error),
		failSet: make(map[string]error),
	}
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	err := f.failGet[key]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.KVStore.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	err := f.failSet[key]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.KVStore.Set(ctx, key, value, ttl)
}

type fakeProvider struct {
	mu         sync.Mutex
	sources    []string
	candidates map[string][]domain.Candidate
	sourceErr  map[string]error
	attrs      map[string]domain.LiveAttributes
	failAddr   map[string]bool
	batches    [][]string
}

func newFakeProvider(sources ...string) *fakeProvider {
	return &fakeProvider{
		sources:    sources,
		candidates: make(map[string][]domain.Candidate),
		sourceErr:  make(map[string]error),
		attrs:      make(map[string]domain.LiveAttributes),
		failAddr:   make(map[string]bool),
	}
}

func (p *fakeProvider) Sources() []string {
	return p.sources
}

func (p *fakeProvider) FetchCandidates(_ context.Context, source string) ([]domain.Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sourceErr[source]; err != nil {
		return nil, err
	}
	return append([]domain.Candidate(nil), p.candidates[source]...), nil
}

func (p *fakeProvider) FetchLiveAttributes(_ context.Context, addresses []string) ([]domain.LiveAttributes, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]string(nil), addresses...))
	for _, a := range addresses {
		if p.failAddr[a] {
			return nil, errors.New("upstream 502")
		}
	}
	var out []domain.LiveAttributes
	for _, a := range addresses {
		if attrs, ok := p.attrs[a]; ok {
			out = append(out, attrs)
		}
	}
	return out, nil
}

func (p *fakeProvider) setAttrs(a domain.LiveAttributes) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attrs[a.Address] = a
}

func (p *fakeProvider) batchSizes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int
	for _, b := range p.batches {
		out = append(out, len(b))
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

type recordingExecutor struct {
	mu       sync.Mutex
	requests []domain.TradeRequest
}

func (e *recordingExecutor) Execute(_ context.Context, req domain.TradeRequest) (domain.TradeReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	return domain.TradeReceipt{Success: true, Hash: fmt.Sprintf("sig%d", len(e.requests))}, nil
}

func (e *recordingExecutor) calls() []domain.TradeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.TradeRequest(nil), e.requests...)
}

type staticPositions string

func (p staticPositions) TokenBalance(context.Context, string) (string, error) {
	return string(p), nil
}

type staticPrices string

func (p staticPrices) Price(context.Context, string) (*decimal.Decimal, error) {
	d := decimal.RequireFromString(string(p))
	return &d, nil
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []domain.Alert
	err    error
}

func (a *alertRecorder) Publish(_ context.Context, alert domain.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return a.err
}

func (a *alertRecorder) count(kind domain.AlertKind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, al := range a.alerts {
		if al.Kind == kind {
			n++
		}
	}
	return n
}

type reportRecorder struct {
	mu        sync.Mutex
	snapshots []*storage.WatchlistSnapshot
	err       error
}

func (r *reportRecorder) Publish(_ context.Context, s *storage.WatchlistSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
	return r.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	kv       *flakyKV
	provider *fakeProvider
	clock    *clock
	wl       *watchlist.Store
	reg      *staging.Store
}

func newHarness(sources ...string) *harness {
	kv := newFlakyKV()
	return &harness{
		kv:       kv,
		provider: newFakeProvider(sources...),
		clock:    &clock{t: baseTime},
		wl:       watchlist.NewStore(kv, watchlistKey, 0),
		reg:      staging.NewStore(kv, registryKey, 0),
	}
}

func (h *harness) options() LoopOptions {
	return LoopOptions{
		Feed:      domain.FeedGeckoTerminal,
		Provider:  h.provider,
		Watchlist: h.wl,
		Registry:  h.reg,
		Filter: eligibility.NewFilter(eligibility.Config{
			MaxAge:       24 * time.Hour,
			MinLiquidity: 250000,
			MinBuys:      700,
		}),
		Logger: log.New(io.Discard, "", 0),
		Now:    h.clock.Now,
	}
}

func (h *harness) loop(t *testing.T, mutate func(*LoopOptions)) *Loop {
	t.Helper()
	opts := h.options()
	if mutate != nil {
		mutate(&opts)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop(ctx, opts)
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	return l
}

func (h *harness) seedWatchlist(t *testing.T, entries ...domain.TrackedEntry) {
	t.Helper()
	if err := h.wl.Save(context.Background(), entries); err != nil {
		t.Fatalf("seed watchlist: %v", err)
	}
}

func (h *harness) savedWatchlist(t *testing.T) []domain.TrackedEntry {
	t.Helper()
	entries, err := h.wl.Load(context.Background())
	if err != nil {
		t.Fatalf("load watchlist: %v", err)
	}
	return entries
}

func (h *harness) savedRegistry(t *testing.T) *staging.Registry {
	t.Helper()
	r, err := h.reg.Load(context.Background())
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return r
}

func ptr[T any](v T) *T {
	return &v
}

func attrs(addr, price string, liquidity float64, buys int64, createdAt time.Time) domain.LiveAttributes {
	return domain.LiveAttributes{
		Address:   addr,
		Name:      "Token " + addr,
		Symbol:    addr,
		BaseMint:  "mint-" + addr,
		QuoteMint: solMint,
		PriceUSD:  domain.ParsePrice(price),
		Liquidity: ptr(liquidity),
		Buys:      ptr(buys),
		Volume24h: ptr(1000.0),
		MarketCap: ptr(50000.0),
		CreatedAt: ptr(createdAt),
	}
}

func tracked(addr, baseline string, addedAt time.Time) domain.TrackedEntry {
	p := decimal.RequireFromString(baseline)
	return domain.TrackedEntry{
		Address:       addr,
		Name:          "Token " + addr,
		BaseMint:      "mint-" + addr,
		QuoteMint:     solMint,
		BaselinePrice: p,
		CurrentPrice:  p,
		AddedAt:       addedAt,
	}
}

func candidate(addr, source string, at time.Time) domain.Candidate {
	return domain.Candidate{Address: addr, Feed: domain.FeedGeckoTerminal, Source: source, DiscoveredAt: at}
}

func stageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func hasWarning(res *TickResult, stage Stage) bool {
	for _, w := range res.Warnings {
		if stageOf(w) == stage {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTick_PromotesEligibleAndKeepsRejectedStaged(t *testing.T) {
	h := newHarness("new_pools")
	h.provider.candidates["new_pools"] = []domain.Candidate{
		candidate("A", "new_pools", baseTime),
		candidate("B", "new_pools", baseTime),
	}
	h.provider.setAttrs(attrs("A", "0.001", 300000, 800, baseTime.Add(-2*time.Hour)))
	h.provider.setAttrs(attrs("B", "0.002", 100000, 900, baseTime.Add(-2*time.Hour)))

	res, err := h.loop(t, nil).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Err())
	}

	if got := res.PromotedAddresses(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("expected A promoted, got %v", got)
	}
	if res.Rejected["B"] != eligibility.CriterionLiquidity {
		t.Errorf("expected B rejected on liquidity, got %q", res.Rejected["B"])
	}

	wl := h.savedWatchlist(t)
	if len(wl) != 1 || wl[0].Address != "A" {
		t.Fatalf("unexpected watchlist: %+v", wl)
	}
	if !wl[0].BaselinePrice.Equal(decimal.RequireFromString("0.001")) || !wl[0].CurrentPrice.Equal(wl[0].BaselinePrice) {
		t.Errorf("baseline should equal current at promotion: %+v", wl[0])
	}
	if !wl[0].AddedAt.Equal(baseTime) {
		t.Errorf("expected AddedAt %v, got %v", baseTime, wl[0].AddedAt)
	}

	reg := h.savedRegistry(t)
	if reg.Has("A") {
		t.Error("promoted address must leave the registry")
	}
	if !reg.Has("B") {
		t.Error("rejected address should remain staged")
	}
	if res.Registry != 1 {
		t.Errorf("expected registry size 1, got %d", res.Registry)
	}
}

func TestTick_RejectedCandidatePromotedOnLaterTick(t *testing.T) {
	h := newHarness("new_pools")
	h.provider.candidates["new_pools"] = []domain.Candidate{candidate("B", "new_pools", baseTime)}
	h.provider.setAttrs(attrs("B", "0.002", 100000, 900, baseTime))

	l := h.loop(t, nil)
	if _, err := l.Tick(context.Background()); err != nil {
		t.Fatalf("first Tick: %v", err)
	}

	h.clock.Advance(time.Minute)
	h.provider.setAttrs(attrs("B", "0.003", 400000, 900, baseTime))
	res, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if got := res.PromotedAddresses(); len(got) != 1 || got[0] != "B" {
		t.Fatalf("expected B promoted, got %v", got)
	}
	if wl := h.savedWatchlist(t); !wl[0].BaselinePrice.Equal(decimal.RequireFromString("0.003")) {
		t.Errorf("baseline should be the price at promotion, got %s", wl[0].BaselinePrice)
	}
}

func TestTick_TrackedAddressIsNeverStaged(t *testing.T) {
	h := newHarness("new_pools")
	h.seedWatchlist(t, tracked("A", "0.001", baseTime.Add(-time.Hour)))
	h.provider.candidates["new_pools"] = []domain.Candidate{candidate("A", "new_pools", baseTime)}
	h.provider.setAttrs(attrs("A", "0.001", 300000, 800, baseTime))

	res, err := h.loop(t, nil).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Staged != 0 || len(res.Promoted) != 0 {
		t.Errorf("tracked address should not be staged: staged=%d promoted=%v", res.Staged, res.PromotedAddresses())
	}
	if h.savedRegistry(t).Has("A") {
		t.Error("registry must not contain a tracked address")
	}
	if wl := h.savedWatchlist(t); len(wl) != 1 {
		t.Errorf("watchlist should hold A once, got %d entries", len(wl))
	}
}

func TestTick_StalePreexistingRegistryEntryExcluded(t *testing.T) {
	h := newHarness()
	h.seedWatchlist(t, tracked("A", "0.001", baseTime.Add(-time.Hour)))
	if err := h.reg.Save(context.Background(), staging.FromSnapshot(map[string]time.Time{"A": baseTime})); err != nil {
		t.Fatal(err)
	}

	if _, err := h.loop(t, nil).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if h.savedRegistry(t).Has("A") {
		t.Error("tracked address should be removed from the registry")
	}
}

func TestTick_MergePriorityKeepsFirstSource(t *testing.T) {
	h := newHarness("profiles", "boosts")
	first := baseTime.Add(-10 * time.Minute)
	h.provider.candidates["profiles"] = []domain.Candidate{candidate("A", "profiles", first)}
	h.provider.candidates["boosts"] = []domain.Candidate{candidate("A", "boosts", baseTime)}

	res, err := h.loop(t, nil).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Discovered != 1 {
		t.Errorf("expected 1 merged candidate, got %d", res.Discovered)
	}
	seen, ok := h.savedRegistry(t).FirstSeen("A")
	if !ok || !seen.Equal(first) {
		t.Errorf("expected first-seen from the first source %v, got %v", first, seen)
	}
}

func TestTick_ExitTriggerAndRemovalOnNextTick(t *testing.T) {
	h := newHarness()
	h.seedWatchlist(t, tracked("X", "0.0005", baseTime.Add(-time.Hour)))
	h.provider.setAttrs(attrs("X", "0.00066", 300000, 800, baseTime))

	exec := &recordingExecutor{}
	l := h.loop(t, func(o *LoopOptions) {
		o.Executor = exec
		o.Positions = staticPositions("1000")
	})

	res, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(res.Exits) != 1 || res.Exits[0] != "X" {
		t.Fatalf("expected exit for X, got %v", res.Exits)
	}
	l.Close()

	calls := exec.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 sell, got %d", len(calls))
	}
	if calls[0] != (domain.TradeRequest{InputMint: "mint-X", OutputMint: solMint, Amount: "1000"}) {
		t.Errorf("unexpected sell request: %+v", calls[0])
	}
	if wl := h.savedWatchlist(t); wl[0].IsRemoved() {
		t.Error("entry should not be removed in the tick that triggered the exit")
	}

	h.clock.Advance(30 * time.Second)
	res, err = l.Tick(context.Background())
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != "X" {
		t.Errorf("expected X removed, got %v", res.Removed)
	}
	if len(res.Exits) != 0 {
		t.Errorf("removed entry should not trigger again, got %v", res.Exits)
	}

	wl := h.savedWatchlist(t)
	if len(wl) != 1 || !wl[0].IsRemoved() {
		t.Fatalf("expected soft-removed entry, got %+v", wl)
	}
	if !wl[0].RemovedAt.Equal(baseTime) {
		t.Errorf("RemovedAt should be the trade time %v, got %v", baseTime, *wl[0].RemovedAt)
	}
	if !wl[0].BaselinePrice.Equal(decimal.RequireFromString("0.0005")) {
		t.Errorf("baseline must not change, got %s", wl[0].BaselinePrice)
	}
}

func TestTick_BelowThresholdDoesNotExit(t *testing.T) {
	h := newHarness()
	h.seedWatchlist(t, tracked("X", "0.0005", baseTime.Add(-time.Hour)))
	h.provider.setAttrs(attrs("X", "0.00065", 300000, 800, baseTime))

	exec := &recordingExecutor{}
	l := h.loop(t, func(o *LoopOptions) {
		o.Executor = exec
		o.Positions = staticPositions("1000")
	})

	res, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	l.Close()
	if len(res.Exits) != 0 || len(exec.calls()) != 0 {
		t.Errorf("0.00065 is exactly 1.3x and must not exit: exits=%v", res.Exits)
	}
	if wl := h.savedWatchlist(t); !wl[0].CurrentPrice.Equal(decimal.RequireFromString("0.00065")) {
		t.Errorf("current price should refresh, got %s", wl[0].CurrentPrice)
	}
}

func TestTick_MissingLookupRetainsEntry(t *testing.T) {
	h := newHarness()
	h.seedWatchlist(t,
		tracked("X", "0.0005", baseTime.Add(-2*time.Hour)),
		tracked("Y", "0.0010", baseTime.Add(-time.Hour)),
	)
	h.provider.setAttrs(attrs("Y", "0.0011", 300000, 800, baseTime))

	res, err := h.loop(t, nil).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Refreshed != 1 {
		t.Errorf("expected 1 refreshed entry, got %d", res.Refreshed)
	}

	wl := h.savedWatchlist(t)
	if len(wl) != 2 || wl[0].Address != "X" || wl[1].Address != "Y" {
		t.Fatalf("unexpected watchlist order: %+v", wl)
	}
	if !wl[0].CurrentPrice.Equal(decimal.RequireFromString("0.0005")) {
		t.Errorf("X should keep its last-known price, got %s", wl[0].CurrentPrice)
	}
	if !wl[1].CurrentPrice.Equal(decimal.RequireFromString("0.0011")) {
		t.Errorf("Y should refresh, got %s", wl[1].CurrentPrice)
	}
}

func TestTick_LoadingFailureAbortsTick(t *testing.T) {
	h := newHarness("new_pools")
	h.seedWatchlist(t, tracked("X", "0.0005", baseTime.Add(-time.Hour)))
	h.kv.failGet[watchlistKey] = errors.New("connection refused")
	h.provider.candidates["new_pools"] = []domain.Candidate{candidate("A", "new_pools", baseTime)}

	l := h.loop(t, nil)
	l.RecordExit("X", baseTime)

	_, err := l.Tick(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if stageOf(err) != StageLoading {
		t.Errorf("expected loading stage error, got %v", err)
	}
	if len(h.provider.batchSizes()) != 0 {
		t.Error("no lookups should run after a loading failure")
	}
	if h.savedRegistry(t).Len() != 0 {
		t.Error("registry should be untouched")
	}

	// Queued exits survive the failed tick.
	delete(h.kv.failGet, watchlistKey)
	res, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != "X" {
		t.Errorf("expected X removed after recovery, got %v", res.Removed)
	}
}

func TestTick_RegistryLoadFailureAbortsTick(t *testing.T) {
	h := newHarness()
	h.kv.failGet[registryKey] = errors.New("timeout")

	_, err := h.loop(t, nil).Tick(context.Background())
	if stageOf(err) != StageLoading {
		t.Errorf("expected loading stage error, got %v", err)
	}
}

func TestTick_WatchlistSaveFailureKeepsRegistry(t *testing.T) {
	h := newHarness("new_pools")
	h.seedWatchlist(t, tracked("X", "0.0005", baseTime.Add(-time.Hour)))
	h.kv.failSet[watchlistKey] = errors.New("read only replica")
	h.provider.candidates["new_pools"] = []domain.Candidate{candidate("A", "new_pools", baseTime)}
	h.provider.setAttrs(attrs("A", "0.001", 300000, 800, baseTime))

	reports := &reportRecorder{}
	l := h.loop(t, func(o *LoopOptions) { o.Reports = reports })
	l.RecordExit("X", baseTime)

	res, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick should not abort on persist failure: %v", err)
	}
	if res.Persisted {
		t.Error("Persisted should be false")
	}
	if !hasWarning(res, StagePersisting) {
		t.Errorf("expected persisting warning, got %v", res.Err())
	}
	if len(res.Promoted) != 0 {
		t.Errorf("nothing should be reported as promoted, got %v", res.PromotedAddresses())
	}
	if !h.savedRegistry(t).Has("A") {
		t.Error("A must stay staged until the watchlist write succeeds")
	}
	if len(res.Watchlist) != 1 || res.Watchlist[0].Address != "X" {
		t.Errorf("published state should exclude unsaved promotions, got %+v", res.Watchlist)
	}
	if wl := h.savedWatchlist(t); wl[0].IsRemoved() {
		t.Error("stored watchlist should be unchanged")
	}
	if len(reports.snapshots) != 1 || len(reports.snapshots[0].Entries) != 1 {
		t.Errorf("unexpected report: %+v", reports.snapshots)
	}

	// Both the exit and the promotion land on the next successful tick.
	delete(h.kv.failSet, watchlistKey)
	res, err = l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(res.Removed) != 1 || len(res.Promoted) != 1 {
		t.Errorf("expected retry of exit and promotion, removed=%v promoted=%v", res.Removed, res.PromotedAddresses())
	}
	if h.savedRegistry(t).Has("A") {
		t.Error("A should leave the registry once promoted")
	}
}

func TestTick_RegistrySaveFailureIsWarning(t *testing.T) {
	h := newHarness("new_pools")
	h.kv.failSet[registryKey] = errors.New("quota exceeded")
	h.provider.candidates["new_pools"] = []domain.Candidate{candidate("A", "new_pools", baseTime)}
	h.provider.setAttrs(attrs("A", "0.001", 300000, 800, baseTime))

	res, err := h.loop(t, nil).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !hasWarning(res, StageDiscovering) || !hasWarning(res, StagePersisting) {
		t.Errorf("expected discovering and persisting warnings, got %v", res.Err())
	}
	if !res.Persisted || len(res.Promoted) != 1 {
		t.Error("watchlist should still be persisted")
	}
}

func TestTick_BatchesAttributeLookups(t *testing.T) {
	h := newHarness()
	var entries []domain.TrackedEntry
	for i := 0; i < 65; i++ {
		addr := fmt.Sprintf("addr%02d", i)
		entries = append(entries, tracked(addr, "0.001", baseTime.Add(time.Duration(i)*time.Second)))
		h.provider.setAttrs(attrs(addr, "0.001", 300000, 800, baseTime))
	}
	h.seedWatchlist(t, entries...)

	res, err := h.loop(t, nil).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	got := h.provider.batchSizes()
	if len(got) != 3 || got[0] != 30 || got[1] != 30 || got[2] != 5 {
		t.Errorf("expected batches 30,30,5, got %v", got)
	}
	if res.Refreshed != 65 {
		t.Errorf("expected 65 refreshed, got %d", res.Refreshed)
	}
}

func TestTick_PartialBatchFailure(t *testing.T) {
	h := newHarness()
	h.seedWatchlist(t,
		tracked("A", "0.001", baseTime.Add(-4*time.Minute)),
		tracked("B", "0.001", baseTime.Add(-3*time.Minute)),
		tracked("C", "0.001", baseTime.Add(-2*time.Minute)),
		tracked("D", "0.001", baseTime.Add(-time.Minute)),
	)
	for _, a := range []string{"A", "B", "C", "D"} {
		h.provider.setAttrs(attrs(a, "0.0011", 300000, 800, baseTime))
	}
	h.provider.failAddr["C"] = true

	res, err := h.loop(t, func(o *LoopOptions) { o.BatchSize = 2 }).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !hasWarning(res, StageLoading) {
		t.Errorf("expected loading warning, got %v", res.Err())
	}
	if res.Refreshed != 2 {
		t.Errorf("expected 2 refreshed, got %d", res.Refreshed)
	}

	wl := h.savedWatchlist(t)
	want := map[string]string{"A": "0.0011", "B": "0.0011", "C": "0.001", "D": "0.001"}
	for _, e := range wl {
		if !e.CurrentPrice.Equal(decimal.RequireFromString(want[e.Address])) {
			t.Errorf("%s: expected price %s, got %s", e.Address, want[e.Address], e.CurrentPrice)
		}
	}
}

func TestTick_SourceFailureIsWarning(t *testing.T) {
	h := newHarness("profiles", "boosts")
	h.provider.sourceErr["profiles"] = errors.New("429 too many requests")
	h.provider.candidates["boosts"] = []domain.Candidate{candidate("A", "boosts", baseTime)}

	res, err := h.loop(t, nil).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !hasWarning(res, StageDiscovering) {
		t.Errorf("expected discovering warning, got %v", res.Err())
	}
	if !h.savedRegistry(t).Has("A") {
		t.Error("candidates from healthy sources should still be staged")
	}
}

func TestTick_RegistryExpiry(t *testing.T) {
	h := newHarness("new_pools")
	h.provider.candidates["new_pools"] = []domain.Candidate{candidate("A", "new_pools", baseTime)}

	l := h.loop(t, func(o *LoopOptions) { o.StagingTTL = 48 * time.Hour })
	if _, err := l.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.provider.candidates["new_pools"] = nil

	h.clock.Advance(48 * time.Hour)
	res, err := l.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Expired) != 0 || !h.savedRegistry(t).Has("A") {
		t.Error("entry exactly at the ttl should be kept")
	}

	h.clock.Advance(time.Second)
	res, err = l.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Expired) != 1 || res.Expired[0] != "A" {
		t.Errorf("expected A expired, got %v", res.Expired)
	}
	if h.savedRegistry(t).Has("A") {
		t.Error("expired entry should be gone")
	}
}

func TestTick_ResightingKeepsFirstSeen(t *testing.T) {
	h := newHarness("new_pools")
	h.provider.candidates["new_pools"] = []domain.Candidate{candidate("A", "new_pools", time.Time{})}

	l := h.loop(t, nil)
	for i := 0; i < 3; i++ {
		if _, err := l.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
		h.clock.Advance(time.Hour)
	}
	seen, _ := h.savedRegistry(t).FirstSeen("A")
	if !seen.Equal(baseTime) {
		t.Errorf("first sighting should win, got %v", seen)
	}
}

func TestTick_PublishesReportAndCoinAlerts(t *testing.T) {
	h := newHarness("new_pools")
	h.seedWatchlist(t, tracked("X", "0.0005", baseTime.Add(-time.Hour)))
	h.provider.candidates["new_pools"] = []domain.Candidate{
		candidate("A", "new_pools", baseTime),
		candidate("B", "new_pools", baseTime),
	}
	h.provider.setAttrs(attrs("A", "0.001", 300000, 800, baseTime))
	h.provider.setAttrs(attrs("B", "0.001", 300000, 800, baseTime))

	reports := &reportRecorder{}
	alerts := &alertRecorder{}
	res, err := h.loop(t, func(o *LoopOptions) {
		o.Reports = reports
		o.Alerts = alerts
	}).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(reports.snapshots) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports.snapshots))
	}
	snap := reports.snapshots[0]
	if snap.ID != res.ID || snap.Feed != domain.FeedGeckoTerminal || len(snap.Entries) != 3 {
		t.Errorf("unexpected snapshot: id=%s feed=%s entries=%d", snap.ID, snap.Feed, len(snap.Entries))
	}
	if snap.Entries[0].Address != "X" {
		t.Errorf("snapshot should keep AddedAt order, got %s first", snap.Entries[0].Address)
	}
	if n := alerts.count(domain.AlertCoin); n != 2 {
		t.Errorf("expected 2 coin alerts, got %d", n)
	}
}

func TestTick_PublishFailuresAreWarnings(t *testing.T) {
	h := newHarness("new_pools")
	h.provider.candidates["new_pools"] = []domain.Candidate{candidate("A", "new_pools", baseTime)}
	h.provider.setAttrs(attrs("A", "0.001", 300000, 800, baseTime))

	res, err := h.loop(t, func(o *LoopOptions) {
		o.Reports = &reportRecorder{err: errors.New("sheets 503")}
		o.Alerts = &alertRecorder{err: errors.New("telegram 429")}
	}).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !res.Persisted {
		t.Error("publishing failures must not affect persistence")
	}
	n := 0
	for _, w := range res.Warnings {
		if stageOf(w) == StagePublishing {
			n++
		}
	}
	if n != 2 {
		t.Errorf("expected 2 publishing warnings, got %d: %v", n, res.Err())
	}
}

func TestTick_EntryBuyArmsWatcherThenExits(t *testing.T) {
	h := newHarness("new_pools")
	h.provider.candidates["new_pools"] = []domain.Candidate{candidate("A", "new_pools", baseTime)}
	h.provider.setAttrs(attrs("A", "0.001", 300000, 800, baseTime))

	exec := &recordingExecutor{}
	l := h.loop(t, func(o *LoopOptions) {
		o.Executor = exec
		o.Positions = staticPositions("42")
		o.Prices = staticPrices("0.0013")
		o.EntryAmount = "30000000"
		o.WatchInterval = 5 * time.Millisecond
	})

	if _, err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	waitFor(t, func() bool { return len(exec.calls()) == 2 })
	l.Close()

	calls := exec.calls()
	if calls[0] != (domain.TradeRequest{InputMint: solMint, OutputMint: "mint-A", Amount: "30000000"}) {
		t.Errorf("unexpected buy: %+v", calls[0])
	}
	if calls[1] != (domain.TradeRequest{InputMint: "mint-A", OutputMint: solMint, Amount: "42"}) {
		t.Errorf("unexpected sell: %+v", calls[1])
	}

	res, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != "A" {
		t.Errorf("watcher exit should mark A removed, got %v", res.Removed)
	}
}

func TestTick_NoExecutorStillEvaluates(t *testing.T) {
	h := newHarness()
	h.seedWatchlist(t, tracked("X", "0.0005", baseTime.Add(-time.Hour)))
	h.provider.setAttrs(attrs("X", "0.001", 300000, 800, baseTime))

	res, err := h.loop(t, nil).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(res.Exits) != 0 {
		t.Errorf("exits are only reported once dispatched, got %v", res.Exits)
	}
}

func TestTick_WatchlistUniqueAcrossTicks(t *testing.T) {
	h := newHarness("a", "b")
	h.provider.candidates["a"] = []domain.Candidate{candidate("A", "a", baseTime), candidate("B", "a", baseTime)}
	h.provider.candidates["b"] = []domain.Candidate{candidate("B", "b", baseTime), candidate("A", "b", baseTime)}
	h.provider.setAttrs(attrs("A", "0.001", 300000, 800, baseTime))
	h.provider.setAttrs(attrs("B", "0.001", 300000, 800, baseTime))

	l := h.loop(t, nil)
	for i := 0; i < 3; i++ {
		if _, err := l.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
		h.clock.Advance(time.Minute)
	}

	seen := make(map[string]bool)
	for _, e := range h.savedWatchlist(t) {
		if seen[e.Address] {
			t.Errorf("duplicate watchlist entry %s", e.Address)
		}
		seen[e.Address] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected 2 entries, got %d", len(seen))
	}
	if h.savedRegistry(t).Len() != 0 {
		t.Error("registry and watchlist must be disjoint")
	}
}

var _ trigger.PriceSource = staticPrices("")
