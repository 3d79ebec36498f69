package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
// Each snapshot is stored as one row per entry; an empty snapshot writes nothing.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert appends all entries of s in their watchlist order.
func (st *SnapshotStore) Insert(ctx context.Context, s *storage.WatchlistSnapshot) error {
	if s == nil || s.ID == "" || s.Feed == "" {
		return storage.ErrInvalidInput
	}
	if len(s.Entries) == 0 {
		return nil
	}

	batch, err := st.conn.PrepareBatch(ctx, `
		INSERT INTO watchlist_snapshots (
			snapshot_id, feed, taken_at, position, address, name, symbol, profile_url,
			baseline_price, current_price, change_pct_24h, volume_24h, market_cap,
			added_at, removed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i, e := range s.Entries {
		err = batch.Append(
			s.ID, string(s.Feed), s.TakenAt.UTC(), uint32(i), e.Address, e.Name, e.Symbol, e.ProfileURL,
			e.BaselinePrice.String(), e.CurrentPrice.String(), e.ChangePct24h, e.Volume24h, e.MarketCap,
			e.AddedAt.UTC(), e.RemovedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot for feed.
func (st *SnapshotStore) GetLatest(ctx context.Context, feed domain.Feed) (*storage.WatchlistSnapshot, error) {
	var id string
	var takenAt time.Time
	err := st.conn.QueryRow(ctx, `
		SELECT snapshot_id, taken_at
		FROM watchlist_snapshots
		WHERE feed = ?
		ORDER BY taken_at DESC
		LIMIT 1
	`, string(feed)).Scan(&id, &takenAt)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	rows, err := st.conn.Query(ctx, `
		SELECT address, name, symbol, profile_url, baseline_price, current_price,
			change_pct_24h, volume_24h, market_cap, added_at, removed_at
		FROM watchlist_snapshots
		WHERE snapshot_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query snapshot entries: %w", err)
	}
	defer rows.Close()

	snap := &storage.WatchlistSnapshot{ID: id, Feed: feed, TakenAt: takenAt}
	for rows.Next() {
		var e domain.TrackedEntry
		var baseline, current string
		if err := rows.Scan(
			&e.Address, &e.Name, &e.Symbol, &e.ProfileURL, &baseline, &current,
			&e.ChangePct24h, &e.Volume24h, &e.MarketCap, &e.AddedAt, &e.RemovedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		if p := domain.ParsePrice(baseline); p != nil {
			e.BaselinePrice = *p
		}
		if p := domain.ParsePrice(current); p != nil {
			e.CurrentPrice = *p
		}
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snap, nil
}
