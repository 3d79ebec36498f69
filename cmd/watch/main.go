// Package main runs the watchlist reconciliation service: one loop per
// enabled feed, reporting to the console, Google Sheets and ClickHouse, and
// alerting through Telegram.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"solana-token-watch/internal/config"
	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/observability"
	"solana-token-watch/internal/reconcile"
)

// Server holds the running feed loops.
type Server struct {
	loops   []*reconcile.Loop
	runners []*reconcile.Runner
	alerts  reconcile.AlertSink
	logger  *log.Logger
	started time.Time
}

func main() {
	configPath := flag.String("config", os.Getenv("WATCH_CONFIG"), "Path to YAML config (optional)")
	feeds := flag.String("feeds", "", "Comma-separated feeds to run (dexscreener,geckoterminal); overrides config")
	once := flag.Bool("once", false, "Run a single tick per feed and exit")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage regardless of config")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty disables)")

	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *feeds != "" {
		if err := cfg.SelectFeeds(*feeds); err != nil {
			logger.Fatalf("Invalid --feeds: %v", err)
		}
	}
	if *useMemory {
		cfg.Storage.Backend = config.BackendMemory
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	server, shutdown, err := newServer(ctx, cfg, stores, logger)
	if err != nil {
		logger.Fatalf("Failed to build server: %v", err)
	}
	defer shutdown()

	if *once {
		for _, r := range server.runners {
			r.RunOnce(ctx)
		}
		server.close()
		cancel()
		logger.Println("Single run complete")
		return
	}

	// Channel to signal completion
	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	if *metricsAddr != "" {
		go server.startHTTPServer(*metricsAddr)
	}

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// Run starts every feed runner and blocks until ctx is cancelled, then
// waits for in-flight trades.
func (s *Server) Run(ctx context.Context) error {
	s.started = time.Now()
	s.systemAlert("Watcher started", s.describe())

	var wg sync.WaitGroup
	for _, r := range s.runners {
		wg.Add(1)
		go func(r *reconcile.Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil && err != context.Canceled {
				s.logger.Printf("Runner stopped: err=%v", err)
			}
		}(r)
	}
	wg.Wait()

	s.close()
	s.systemAlert("Watcher stopped", fmt.Sprintf("uptime %s", time.Since(s.started).Round(time.Second)))
	return ctx.Err()
}

// close waits for trade tasks and stops price watchers.
func (s *Server) close() {
	for _, l := range s.loops {
		l.Close()
	}
}

func (s *Server) describe() string {
	feeds := make([]string, 0, len(s.loops))
	for _, l := range s.loops {
		feeds = append(feeds, l.Feed().String())
	}
	return "feeds: " + strings.Join(feeds, ", ")
}

// systemAlert publishes with its own deadline so shutdown alerts still go out.
func (s *Server) systemAlert(title, detail string) {
	if s.alerts == nil || len(s.loops) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := domain.SystemAlert(s.loops[0].Feed(), title, detail, time.Now().UTC())
	if err := s.alerts.Publish(ctx, a); err != nil {
		s.logger.Printf("System alert failed: title=%q err=%v", title, err)
	}
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status  string             `json:"status"`
	Uptime  string             `json:"uptime"`
	Started time.Time          `json:"started"`
	Feeds   []reconcile.Status `json:"feeds"`
}

// handleStatus returns runner status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:  "running",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Started: s.started,
		Feeds:   make([]reconcile.Status, 0, len(s.runners)),
	}
	for _, r := range s.runners {
		resp.Feeds = append(resp.Feeds, r.Status())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
