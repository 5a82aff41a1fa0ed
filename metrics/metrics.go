// Package metrics exposes scrape run counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoria_scraper"

// Listing outcomes.
const (
	ResultSaved   = "saved"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	reg prometheus.Gatherer

	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds prometheus.Histogram
	URLsFound          prometheus.Gauge
	ListingsTotal      *prometheus.CounterVec
	ExtractionsRunning prometheus.Gauge
}

// New registers the scraper metrics on reg. A nil reg uses a fresh
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Scrape runs by final status.",
		}, []string{"status"}),
		RunDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full scrape run.",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 7200, 14400},
		}),
		URLsFound: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "urls_found",
			Help:      "Unique listing URLs found by the latest run.",
		}),
		ListingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_total",
			Help:      "Listings processed by outcome.",
		}, []string{"result"}),
		ExtractionsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extractions_running",
			Help:      "Listing extractions currently in flight.",
		}),
	}
}

func (m *Metrics) RunFinished(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.Observe(took.Seconds())
}

func (m *Metrics) SetURLsFound(n int) {
	if m == nil {
		return
	}
	m.URLsFound.Set(float64(n))
}

func (m *Metrics) Listing(result string) {
	if m == nil {
		return
	}
	m.ListingsTotal.WithLabelValues(result).Inc()
}

// ExtractionStarted bumps the in-flight gauge and returns the matching
// decrement.
func (m *Metrics) ExtractionStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ExtractionsRunning.Inc()
	return m.ExtractionsRunning.Dec
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Metrics listening on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics server error: %v", err)
	}
}
