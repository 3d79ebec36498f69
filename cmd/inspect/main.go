// Package main prints a feed's persisted watchlist and staging registry.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"solana-token-watch/internal/config"
	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/report"
	"solana-token-watch/internal/staging"
	"solana-token-watch/internal/storage"
	chstore "solana-token-watch/internal/storage/clickhouse"
	pgstore "solana-token-watch/internal/storage/postgres"
	redisstore "solana-token-watch/internal/storage/redis"
	sqlitestore "solana-token-watch/internal/storage/sqlite"
	"solana-token-watch/internal/watchlist"
)

func main() {
	configPath := flag.String("config", os.Getenv("WATCH_CONFIG"), "Path to YAML config (optional)")
	feedName := flag.String("feed", "dexscreener", "Feed to inspect (dexscreener, geckoterminal)")
	showRegistry := flag.Bool("registry", false, "Also print the staging registry")
	showHistory := flag.Bool("history", false, "Print the latest ClickHouse snapshot instead of the live watchlist")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("Error loading config: %v", err)
	}
	if err := cfg.SelectFeeds(*feedName); err != nil {
		fatalf("Error: %v", err)
	}
	feeds := cfg.EnabledFeeds()
	if len(feeds) != 1 {
		fatalf("Error: --feed must name exactly one feed")
	}
	feed := feeds[0]
	fc := cfg.Feed(feed)

	if *showHistory {
		if err := printHistory(ctx, cfg.Storage.ClickhouseDSN, feed); err != nil {
			fatalf("Error reading history: %v", err)
		}
		return
	}

	kv, closeKV, err := openKV(ctx, cfg.Storage)
	if err != nil {
		fatalf("Error opening store: %v", err)
	}
	defer closeKV()

	entries, err := watchlist.NewStore(kv, fc.WatchlistKey, 0).Load(ctx)
	if err != nil {
		fatalf("Error loading watchlist %s: %v", fc.WatchlistKey, err)
	}
	fmt.Printf("%s watchlist (%s): %d entries\n", feed, fc.WatchlistKey, len(entries))
	if err := report.WriteTable(os.Stdout, entries); err != nil {
		fatalf("Error rendering watchlist: %v", err)
	}

	if !*showRegistry {
		return
	}

	reg, err := staging.NewStore(kv, fc.RegistryKey, staging.BlobTTL(fc.StagingTTL.Std())).Load(ctx)
	if err != nil {
		fatalf("Error loading registry %s: %v", fc.RegistryKey, err)
	}
	records := reg.ListLive()
	fmt.Printf("\n%s registry (%s): %d staged\n", feed, fc.RegistryKey, len(records))

	now := time.Now()
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Address", "First Seen", "Age", "Expires In")
	for _, r := range records {
		age := now.Sub(r.FirstSeenAt)
		left := fc.StagingTTL.Std() - age
		if left < 0 {
			left = 0
		}
		if err := table.Append(r.Address, r.FirstSeenAt.UTC().Format(time.RFC3339), age.Round(time.Second).String(), left.Round(time.Second).String()); err != nil {
			fatalf("Error rendering registry: %v", err)
		}
	}
	if err := table.Render(); err != nil {
		fatalf("Error rendering registry: %v", err)
	}
}

// openKV opens the configured durable backend.
func openKV(ctx context.Context, cfg config.StorageConfig) (storage.KVStore, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		kv, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { kv.Close() }, nil
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.NewKVStore(pool), pool.Close, nil
	case config.BackendSQLite:
		kv, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { kv.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("backend %q holds no persisted state", cfg.Backend)
	}
}

func printHistory(ctx context.Context, dsn string, feed domain.Feed) error {
	if dsn == "" {
		return fmt.Errorf("CLICKHOUSE_DSN is not set")
	}
	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	snap, err := chstore.NewSnapshotStore(conn).GetLatest(ctx, feed)
	if err != nil {
		return err
	}
	fmt.Printf("%s snapshot %s taken %s: %d entries\n", feed, snap.ID, snap.TakenAt.UTC().Format(time.RFC3339), len(snap.Entries))
	return report.WriteTable(os.Stdout, snap.Entries)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
