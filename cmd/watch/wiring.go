package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"solana-token-watch/internal/config"
	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/eligibility"
	"solana-token-watch/internal/executor"
	"solana-token-watch/internal/notify"
	"solana-token-watch/internal/provider/dexscreener"
	"solana-token-watch/internal/provider/geckoterminal"
	"solana-token-watch/internal/provider/httpx"
	"solana-token-watch/internal/reconcile"
	"solana-token-watch/internal/report"
	"solana-token-watch/internal/solana"
	"solana-token-watch/internal/staging"
	"solana-token-watch/internal/storage"
	chstore "solana-token-watch/internal/storage/clickhouse"
	"solana-token-watch/internal/storage/memory"
	"solana-token-watch/internal/storage/migrations"
	pgstore "solana-token-watch/internal/storage/postgres"
	redisstore "solana-token-watch/internal/storage/redis"
	sqlitestore "solana-token-watch/internal/storage/sqlite"
	"solana-token-watch/internal/trigger"
	"solana-token-watch/internal/watchlist"
)

// purgeInterval is how often SQL backends drop expired keys.
const purgeInterval = 10 * time.Minute

// allStores holds the durable state backends.
type allStores struct {
	kv      storage.KVStore
	history storage.SnapshotStore // nil when no ClickHouse DSN is configured
}

// purger is implemented by backends without native key expiry.
type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// createStores opens the configured KV backend and the optional snapshot history.
func createStores(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (*allStores, func(), error) {
	stores := &allStores{}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Backend {
	case config.BackendMemory:
		stores.kv = memory.NewKVStore()

	case config.BackendRedis:
		kv, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		stores.kv = kv
		closers = append(closers, func() { kv.Close() })

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		stores.kv = pgstore.NewKVStore(pool)
		closers = append(closers, pool.Close)

	case config.BackendSQLite:
		kv, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		stores.kv = kv
		closers = append(closers, func() { kv.Close() })

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if p, ok := stores.kv.(purger); ok {
		purgeCtx, stop := context.WithCancel(ctx)
		closers = append(closers, stop)
		go runPurger(purgeCtx, p, logger)
	}

	if cfg.ClickhouseDSN != "" && cfg.Backend != config.BackendMemory {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		stores.history = chstore.NewSnapshotStore(conn)
		closers = append(closers, func() { conn.Close() })
	}

	logger.Printf("Stores ready: backend=%s history=%t", cfg.Backend, stores.history != nil)
	return stores, cleanup, nil
}

func runPurger(ctx context.Context, p purger, logger *log.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Printf("Purge expired keys failed: err=%v", err)
				continue
			}
			if n > 0 {
				logger.Printf("Purged expired keys: n=%d", n)
			}
		}
	}
}

// newServer wires one reconciliation loop per enabled feed.
func newServer(ctx context.Context, cfg *config.Config, stores *allStores, logger *log.Logger) (*Server, func(), error) {
	var closers []func()
	shutdown := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Server, func(), error) {
		shutdown()
		return nil, nil, err
	}

	alerts, err := buildAlerts(cfg, logger)
	if err != nil {
		return fail(err)
	}

	tiers, err := cfg.Trigger.Evaluator()
	if err != nil {
		return fail(err)
	}
	evaluator := trigger.NewEvaluator(tiers)

	trade, err := buildTrading(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	if trade.close != nil {
		closers = append(closers, trade.close)
	}

	s := &Server{alerts: alerts, logger: logger}

	for _, feed := range cfg.EnabledFeeds() {
		fc := cfg.Feed(feed)
		feedLogger := log.New(os.Stdout, fmt.Sprintf("[%s] ", feed), log.LstdFlags|log.Lshortfile)

		provider := buildProvider(feed, fc)

		reports, err := buildReports(ctx, cfg, fc, stores)
		if err != nil {
			return fail(fmt.Errorf("%s reports: %w", feed, err))
		}

		opts := reconcile.LoopOptions{
			Feed:          feed,
			Provider:      provider,
			Watchlist:     watchlist.NewStore(stores.kv, fc.WatchlistKey, 0),
			Registry:      staging.NewStore(stores.kv, fc.RegistryKey, staging.BlobTTL(fc.StagingTTL.Std())),
			Filter:        eligibility.NewFilter(fc.Filter()),
			Evaluator:     evaluator,
			Prices:        provider,
			Reports:       reports,
			Alerts:        alerts,
			StagingTTL:    fc.StagingTTL.Std(),
			BatchSize:     fc.BatchSize,
			EntryAmount:   fc.EntryAmount,
			WatchInterval: fc.WatchInterval.Std(),
			TradeTimeout:  cfg.Executor.TradeTimeout.Std(),
			Logger:        feedLogger,
		}
		if trade.executor != nil {
			opts.Executor = trade.executor
			opts.Positions = trade.positions
		}

		loop := reconcile.NewLoop(ctx, opts)
		s.loops = append(s.loops, loop)
		s.runners = append(s.runners, reconcile.NewRunner(reconcile.RunnerOptions{
			Loop:     loop,
			Interval: fc.Interval.Std(),
			Alerts:   alerts,
			Logger:   feedLogger,
		}))

		logger.Printf("Feed configured: feed=%s interval=%v sinks=%d trading=%t",
			feed, fc.Interval.Std(), reports.Len(), opts.Executor != nil)
	}

	return s, shutdown, nil
}

// priceProvider is a feed provider that can also quote a single price.
type priceProvider interface {
	reconcile.Provider
	trigger.PriceSource
}

func buildProvider(feed domain.Feed, fc config.FeedConfig) priceProvider {
	switch feed {
	case domain.FeedGeckoTerminal:
		opts := geckoterminal.Options{Network: fc.Network}
		if fc.BaseURL != "" {
			opts.Client = httpx.New("geckoterminal", fc.BaseURL, httpx.WithRateLimit(0.5, 3))
		}
		return geckoterminal.New(opts)
	default:
		opts := dexscreener.Options{Chain: fc.Network}
		if fc.BaseURL != "" {
			opts.Client = httpx.New("dexscreener", fc.BaseURL, httpx.WithRateLimit(1, 5))
		}
		return dexscreener.New(opts)
	}
}

func buildReports(ctx context.Context, cfg *config.Config, fc config.FeedConfig, stores *allStores) (*report.Multi, error) {
	reports := report.NewMulti()
	if cfg.Report.Console {
		reports.Add("console", report.NewConsole(os.Stdout))
	}
	if cfg.Sheets.SpreadsheetID != "" {
		sheets, err := report.NewSheets(ctx, report.SheetsOptions{
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			Sheet:           fc.Sheet,
			CredentialsPath: cfg.Sheets.CredentialsPath,
		})
		if err != nil {
			return nil, err
		}
		reports.Add("sheets", sheets)
	}
	if stores.history != nil {
		reports.Add("history", report.NewHistory(stores.history))
	}
	return reports, nil
}

func buildAlerts(cfg *config.Config, logger *log.Logger) (*notify.Multi, error) {
	sinks := []notify.Sink{notify.NewLog(log.New(os.Stdout, "[alert] ", log.LstdFlags))}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(notify.TelegramOptions{
			Token:       cfg.Telegram.Token,
			ChatID:      cfg.Telegram.ChatID,
			AdminChatID: cfg.Telegram.AdminChatID,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sinks = append(sinks, tg)
		logger.Printf("Telegram alerts enabled: chat=%s", cfg.Telegram.ChatID)
	}
	return notify.NewMulti(sinks...), nil
}

// trading holds the executor and the wallet balance source.
type trading struct {
	executor  trigger.Executor
	positions trigger.PositionSource
	close     func()
}

func buildTrading(ctx context.Context, cfg *config.Config, logger *log.Logger) (trading, error) {
	if cfg.Executor.Kind == config.ExecutorNone {
		return trading{}, nil
	}

	kp, err := solana.ParseKeypair(cfg.Solana.WalletPrivateKey)
	if err != nil {
		return trading{}, fmt.Errorf("wallet: %w", err)
	}
	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint)
	t := trading{positions: solana.NewPositions(rpc, kp.PublicKey())}

	switch cfg.Executor.Kind {
	case config.ExecutorGMGN:
		t.executor, err = executor.NewGMGN(executor.GMGNOptions{
			Keypair:      kp,
			AntiMEV:      cfg.Executor.AntiMEV,
			SlippagePct:  cfg.Executor.SlippagePct,
			PollInterval: cfg.Executor.PollInterval.Std(),
			Logger:       log.New(os.Stdout, "[gmgn] ", log.LstdFlags|log.Lshortfile),
		})
	case config.ExecutorJupiter:
		opts := executor.JupiterOptions{
			RPC:          rpc,
			Keypair:      kp,
			SlippageBps:  cfg.Executor.SlippageBps,
			PollInterval: cfg.Executor.PollInterval.Std(),
			Logger:       log.New(os.Stdout, "[jupiter] ", log.LstdFlags|log.Lshortfile),
		}
		if cfg.Solana.WSEndpoint != "" {
			ws, wsErr := solana.NewWSClient(ctx, cfg.Solana.WSEndpoint, nil)
			if wsErr != nil {
				logger.Printf("WebSocket unavailable, confirming by polling: err=%v", wsErr)
			} else {
				opts.WS = ws
				t.close = func() { ws.Close() }
			}
		}
		t.executor, err = executor.NewJupiter(opts)
	}
	if err != nil {
		if t.close != nil {
			t.close()
		}
		return trading{}, err
	}

	logger.Printf("Trading enabled: executor=%s wallet=%s", cfg.Executor.Kind, kp.PublicKey())
	return t, nil
}
