package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors on a private registry
// ⭐ SSOT: 메트릭 정의는 여기서만
type Metrics struct {
	Registry *prometheus.Registry

	Rebuilds        *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
	Joins           *prometheus.CounterVec
	Valuations      *prometheus.CounterVec
	FeedDeliveries  *prometheus.CounterVec
	Subscriptions   prometheus.Gauge
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		Rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "leaderboard_rebuilds_total",
			Help:      "Leaderboard rebuilds by result.",
		}, []string{"result"}),
		RebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arena",
			Name:      "leaderboard_rebuild_duration_seconds",
			Help:      "Time spent scoring and sorting one competition.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "roster_joins_total",
			Help:      "Join attempts by result code.",
		}, []string{"result"}),
		Valuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "valuations_total",
			Help:      "Valuation reports by result code.",
		}, []string{"result"}),
		FeedDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "feed_deliveries_total",
			Help:      "Feed callback invocations by result.",
		}, []string{"result"}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "feed_subscriptions",
			Help:      "Active live feed subscriptions.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Rebuilds,
		m.RebuildDuration,
		m.Joins,
		m.Valuations,
		m.FeedDeliveries,
		m.Subscriptions,
	)

	return m
}

// ObserveRebuild records one rebuild outcome
func (m *Metrics) ObserveRebuild(started time.Time, err error) {
	if m == nil {
		return
	}
	m.RebuildDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		m.Rebuilds.WithLabelValues("error").Inc()
		return
	}
	m.Rebuilds.WithLabelValues("ok").Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve runs a metrics HTTP server until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
