// Package metrics provides Prometheus metrics and correlation-id helpers.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// EventsApplied counts ledger transitions by tenant and kind (started, stopped, combined).
	EventsApplied *prometheus.CounterVec
	// EventsDropped counts events that produced no ledger mutation, by reason.
	EventsDropped *prometheus.CounterVec
	// OracleRequests counts oracle calls by outcome.
	OracleRequests *prometheus.CounterVec
	// OracleDuration observes oracle latency in seconds.
	OracleDuration prometheus.Observer
	// OpenIntervals reports intervals currently open per tenant.
	OpenIntervals *prometheus.GaugeVec
	// Flushes counts ledger flushes by backend result.
	Flushes *prometheus.CounterVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{Name: "uptimebot_events_applied_total", Help: "Ledger transitions applied"}, []string{"tenant", "kind"})
		EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "uptimebot_events_dropped_total", Help: "Events that produced no ledger mutation"}, []string{"reason"})
		OracleRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "uptimebot_oracle_requests_total", Help: "Extraction oracle calls"}, []string{"outcome"})
		OracleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "uptimebot_oracle_duration_seconds", Help: "Extraction oracle latency", Buckets: prometheus.DefBuckets})
		OpenIntervals = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "uptimebot_open_intervals", Help: "Intervals currently open"}, []string{"tenant"})
		Flushes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "uptimebot_ledger_flushes_total", Help: "Ledger flushes to the store"}, []string{"result"})
	})
}

// IncApplied records one applied transition.
func IncApplied(tenant, kind string) {
	if EventsApplied != nil {
		EventsApplied.WithLabelValues(tenant, kind).Inc()
	}
}

// IncDropped records one dropped event.
func IncDropped(reason string) {
	if EventsDropped != nil {
		EventsDropped.WithLabelValues(reason).Inc()
	}
}

// ObserveOracle records an oracle call outcome and its latency.
func ObserveOracle(outcome string, d time.Duration) {
	if OracleRequests != nil {
		OracleRequests.WithLabelValues(outcome).Inc()
	}
	if OracleDuration != nil {
		OracleDuration.Observe(d.Seconds())
	}
}

// SetOpenIntervals records the number of open intervals of a tenant.
func SetOpenIntervals(tenant string, n int) {
	if OpenIntervals != nil {
		OpenIntervals.WithLabelValues(tenant).Set(float64(n))
	}
}

// IncFlush records a flush result ("ok" or "error").
func IncFlush(result string) {
	if Flushes != nil {
		Flushes.WithLabelValues(result).Inc()
	}
}

// Serve exposes /metrics on addr until ctx is done. An empty addr disables the endpoint.
func Serve(ctx context.Context, addr string, log *slog.Logger) error {
	if addr == "" {
		return nil
	}
	Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Metrics endpoint listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Metrics endpoint shutdown failed", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// Correlation returns the correlation id of ctx or an empty string.
func Correlation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}
