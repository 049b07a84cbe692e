// Package metrics provides Prometheus instrumentation for the risk engine.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentinel"

var (
	// IntelLookupsTotal counts intelligence lookups by where the answer came from.
	IntelLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intel_lookups_total",
			Help:      "Total IP intelligence lookups by source (local, memory, store, providers).",
		},
		[]string{"source"},
	)

	// ProviderRequestsTotal counts provider calls by outcome.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total reputation provider requests by provider and outcome.",
		},
		[]string{"provider", "outcome"}, // "ok", "error", "timeout"
	)

	// ProviderLatency observes provider call latency.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Reputation provider latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"provider"},
	)

	// LoginGuardEventsTotal counts brute-force guard events.
	LoginGuardEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_guard_events_total",
			Help:      "Total brute-force guard events by type.",
		},
		[]string{"event"},
	)

	// GuardTrackedKeys tracks live guard windows after each sweep.
	GuardTrackedKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "guard_tracked_keys",
		Help:      "Number of login attempt windows held in memory.",
	})

	// FraudAssessmentsTotal counts order risk assessments by level.
	FraudAssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fraud_assessments_total",
			Help:      "Total order risk assessments by level.",
		},
		[]string{"level"},
	)

	// DecisionsTotal counts decisions by disposition and reason.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total security decisions by disposition and reason.",
		},
		[]string{"disposition", "reason"},
	)

	// AuditDroppedTotal counts audit records dropped because the queue was full.
	AuditDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_dropped_total",
		Help:      "Total audit records dropped on a full queue.",
	})

	// PublishDroppedTotal counts persisted records not published because the publish queue was full.
	PublishDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_dropped_total",
		Help:      "Total audit records dropped on a full publish queue.",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "route", "status"},
	)

	DBTotalConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_total_connections",
		Help: "Number of connections in the pool.",
	})
	DBIdleConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_idle_connections",
		Help: "Number of idle pool connections.",
	})
	DBAcquiredConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_acquired_connections",
		Help: "Number of acquired pool connections.",
	})
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		IntelLookupsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		LoginGuardEventsTotal,
		GuardTrackedKeys,
		FraudAssessmentsTotal,
		DecisionsTotal,
		AuditDroppedTotal,
		PublishDroppedTotal,
		HTTPRequestsTotal,
		DBTotalConns,
		DBIdleConns,
		DBAcquiredConns,
		GoroutineCount,
	)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartPoolStatsCollector samples pgxpool stats and the goroutine count into gauges.
// Call in a goroutine; exits when ctx is done.
func StartPoolStatsCollector(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pool != nil {
				stat := pool.Stat()
				DBTotalConns.Set(float64(stat.TotalConns()))
				DBIdleConns.Set(float64(stat.IdleConns()))
				DBAcquiredConns.Set(float64(stat.AcquiredConns()))
			}
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}
