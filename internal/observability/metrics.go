// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Reconciliation metrics
	TicksTotal        *prometheus.CounterVec
	TickDuration      *prometheus.HistogramVec
	StageFailures     *prometheus.CounterVec
	TickWarnings      *prometheus.CounterVec
	CandidatesFetched *prometheus.CounterVec
	Promotions        *prometheus.CounterVec
	StagingExpired    *prometheus.CounterVec

	// State size
	RegistrySize  *prometheus.GaugeVec
	WatchlistSize *prometheus.GaugeVec

	// Trigger metrics
	TriggersFired  *prometheus.CounterVec
	TradesTotal    *prometheus.CounterVec
	WatchersArmed  *prometheus.GaugeVec
	TradesInFlight prometheus.Gauge

	// Sink metrics
	AlertsTotal    *prometheus.CounterVec
	SnapshotsTotal *prometheus.CounterVec

	// Latency metrics
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec
	RPCCallLatency  *prometheus.HistogramVec

	// Storage metrics
	StoreOpDuration *prometheus.HistogramVec
	StoreOpErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulTick *prometheus.GaugeVec
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_token_watch"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Reconciliation metrics
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "ticks_total",
			Help:      "Total number of reconciliation ticks by status",
		}, []string{"feed", "status"}),
		TickDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "tick_duration_seconds",
			Help:      "Reconciliation tick duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"feed"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "stage_failures_total",
			Help:      "Total number of ticks aborted by stage",
		}, []string{"feed", "stage"}),
		TickWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "warnings_total",
			Help:      "Total number of non-fatal tick failures by stage",
		}, []string{"feed", "stage"}),
		CandidatesFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_fetched_total",
			Help:      "Total number of candidates fetched by source",
		}, []string{"feed", "source"}),
		Promotions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "promotions_total",
			Help:      "Total number of candidates promoted to the watchlist",
		}, []string{"feed"}),
		StagingExpired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staging",
			Name:      "expired_total",
			Help:      "Total number of staged candidates swept by ttl",
		}, []string{"feed"}),

		RegistrySize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "staging",
			Name:      "size",
			Help:      "Current number of staged candidates",
		}, []string{"feed"}),
		WatchlistSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watchlist",
			Name:      "size",
			Help:      "Current number of watchlist entries by state",
		}, []string{"feed", "state"}),

		// Trigger metrics
		TriggersFired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "fired_total",
			Help:      "Total number of exit triggers fired",
		}, []string{"feed", "origin"}),
		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "trades_total",
			Help:      "Total number of trade attempts by side and status",
		}, []string{"feed", "side", "status"}),
		WatchersArmed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "watchers_armed",
			Help:      "Current number of armed price-target watchers",
		}, []string{"feed"}),
		TradesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "trades_in_flight",
			Help:      "Current number of detached trade tasks",
		}),

		// Sink metrics
		AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "alerts_total",
			Help:      "Total number of alerts by kind and status",
		}, []string{"kind", "status"}),
		SnapshotsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "snapshots_total",
			Help:      "Total number of published snapshots by sink and status",
		}, []string{"sink", "status"}),

		// Latency metrics
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_latency_seconds",
			Help:      "Market-data provider request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_errors_total",
			Help:      "Total number of failed provider requests",
		}, []string{"provider", "endpoint"}),
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Storage metrics
		StoreOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Durable store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"key", "operation"}),
		StoreOpErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_errors_total",
			Help:      "Total number of durable store errors",
		}, []string{"key", "operation"}),

		// Health metrics
		LastSuccessfulTick: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of last tick that completed all stages",
		}, []string{"feed"}),
		UptimeSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordTick records a finished tick.
func RecordTick(feed string, duration time.Duration, err error) {
	DefaultMetrics.TicksTotal.WithLabelValues(feed, status(err)).Inc()
	DefaultMetrics.TickDuration.WithLabelValues(feed).Observe(duration.Seconds())
	if err == nil {
		DefaultMetrics.LastSuccessfulTick.WithLabelValues(feed).Set(float64(time.Now().Unix()))
	}
}

// RecordStageFailure records a tick aborted in stage.
func RecordStageFailure(feed, stage string) {
	DefaultMetrics.StageFailures.WithLabelValues(feed, stage).Inc()
}

// RecordWarning records a non-fatal failure in stage.
func RecordWarning(feed, stage string) {
	DefaultMetrics.TickWarnings.WithLabelValues(feed, stage).Inc()
}

// RecordCandidates adds n fetched candidates for source.
func RecordCandidates(feed, source string, n int) {
	DefaultMetrics.CandidatesFetched.WithLabelValues(feed, source).Add(float64(n))
}

// RecordPromotions adds n promotions.
func RecordPromotions(feed string, n int) {
	DefaultMetrics.Promotions.WithLabelValues(feed).Add(float64(n))
}

// RecordExpired adds n swept staging records.
func RecordExpired(feed string, n int) {
	DefaultMetrics.StagingExpired.WithLabelValues(feed).Add(float64(n))
}

// UpdateSizes sets the registry and watchlist gauges.
func UpdateSizes(feed string, registry, active, removed int) {
	DefaultMetrics.RegistrySize.WithLabelValues(feed).Set(float64(registry))
	DefaultMetrics.WatchlistSize.WithLabelValues(feed, "active").Set(float64(active))
	DefaultMetrics.WatchlistSize.WithLabelValues(feed, "removed").Set(float64(removed))
}

// RecordTrigger records a fired exit trigger. origin is "tick" or "watcher".
func RecordTrigger(feed, origin string) {
	DefaultMetrics.TriggersFired.WithLabelValues(feed, origin).Inc()
}

// RecordTrade records a trade attempt outcome.
func RecordTrade(feed, side string, success bool) {
	s := "failed"
	if success {
		s = "success"
	}
	DefaultMetrics.TradesTotal.WithLabelValues(feed, side, s).Inc()
}

// AddTradesInFlight adjusts the in-flight trade gauge.
func AddTradesInFlight(delta int) {
	DefaultMetrics.TradesInFlight.Add(float64(delta))
}

// UpdateWatchers sets the armed watcher gauge.
func UpdateWatchers(feed string, n int) {
	DefaultMetrics.WatchersArmed.WithLabelValues(feed).Set(float64(n))
}

// RecordAlert records an alert delivery attempt.
func RecordAlert(kind string, err error) {
	DefaultMetrics.AlertsTotal.WithLabelValues(kind, status(err)).Inc()
}

// RecordSnapshot records a report publication attempt.
func RecordSnapshot(sink string, err error) {
	DefaultMetrics.SnapshotsTotal.WithLabelValues(sink, status(err)).Inc()
}

// RecordProviderRequest records a provider request.
func RecordProviderRequest(provider, endpoint string, duration time.Duration, err error) {
	DefaultMetrics.ProviderLatency.WithLabelValues(provider, endpoint).Observe(duration.Seconds())
	if err != nil {
		DefaultMetrics.ProviderErrors.WithLabelValues(provider, endpoint).Inc()
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordStoreOp records a durable store operation.
func RecordStoreOp(key, operation string, duration time.Duration, err error) {
	DefaultMetrics.StoreOpDuration.WithLabelValues(key, operation).Observe(duration.Seconds())
	if err != nil {
		DefaultMetrics.StoreOpErrors.WithLabelValues(key, operation).Inc()
	}
}
