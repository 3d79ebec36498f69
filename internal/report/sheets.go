package report

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"solana-token-watch/internal/storage"
)

// SheetsOptions configures a Sheets sink.
type SheetsOptions struct {
	SpreadsheetID   string
	Sheet           string // default "DATA"
	CredentialsPath string // service account JSON
	// ClientOptions replace the credentials option when set.
	ClientOptions []option.ClientOption
}

// Sheets overwrites one spreadsheet tab with the latest watchlist.
type Sheets struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	sheet         string
}

// NewSheets creates a Sheets sink.
func NewSheets(ctx context.Context, opts SheetsOptions) (*Sheets, error) {
	if opts.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	if opts.Sheet == "" {
		opts.Sheet = "DATA"
	}

	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 {
		if opts.CredentialsPath == "" {
			return nil, fmt.Errorf("sheets: credentials path is required")
		}
		clientOpts = []option.ClientOption{
			option.WithCredentialsFile(opts.CredentialsPath),
			option.WithScopes(sheets.SpreadsheetsScope),
		}
	}

	srv, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Sheets{values: srv.Spreadsheets.Values, spreadsheetID: opts.SpreadsheetID, sheet: opts.Sheet}, nil
}

// Publish clears the tab and writes the header plus one row per entry at A1.
func (s *Sheets) Publish(ctx context.Context, snapshot *storage.WatchlistSnapshot) error {
	data := make([][]interface{}, 0, len(snapshot.Entries)+1)
	data = append(data, headerRow())
	data = append(data, Rows(snapshot.Entries)...)

	if _, err := s.values.Clear(s.spreadsheetID, s.sheet, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", s.sheet, err)
	}

	rng := s.sheet + "!A1"
	_, err := s.values.Update(s.spreadsheetID, rng, &sheets.ValueRange{Values: data}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}
