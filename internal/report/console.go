package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/olekukonko/tablewriter"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/storage"
)

// Console prints the watchlist as a table.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console sink. A nil writer means stdout.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

// Publish renders the snapshot.
func (c *Console) Publish(_ context.Context, snapshot *storage.WatchlistSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n[%s] %s watchlist: %d entries\n",
		snapshot.TakenAt.UTC().Format("2006-01-02 15:04:05"), snapshot.Feed, len(snapshot.Entries))
	return WriteTable(c.out, snapshot.Entries)
}

// WriteTable writes entries as a table with the report header.
func WriteTable(out io.Writer, entries []domain.TrackedEntry) error {
	table := tablewriter.NewWriter(out)
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	table.Header(header...)

	for _, row := range Rows(entries) {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = cell(v)
		}
		if err := table.Append(cells...); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	return table.Render()
}

func cell(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.2f", x)
	default:
		return fmt.Sprint(x)
	}
}
