package notify

import (
	"context"
	"log"

	"solana-token-watch/internal/domain"
)

// Log writes alerts to a logger.
type Log struct {
	logger *log.Logger
}

// NewLog creates a log sink. A nil logger means log.Default().
func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{logger: logger}
}

// Publish logs the alert.
func (l *Log) Publish(_ context.Context, a domain.Alert) error {
	l.logger.Print(Plain(a))
	return nil
}
