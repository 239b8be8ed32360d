// Package metrics provides Prometheus instrumentation for the BondFi platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bondfi",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bondfi",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// BondsCreatedTotal counts bond submissions.
	BondsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bondfi",
		Name:      "bonds_created_total",
		Help:      "Total bonds submitted for listing.",
	})

	// BondApprovalsTotal counts approval decisions by outcome.
	BondApprovalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bondfi",
			Name:      "bond_approvals_total",
			Help:      "Total bond approval decisions by outcome.",
		},
		[]string{"outcome"},
	)

	// PricingQuotesTotal counts fair-market-value quotes served.
	PricingQuotesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bondfi",
		Name:      "pricing_quotes_total",
		Help:      "Total resale pricing quotes computed.",
	})

	// PurchasesTotal counts completed bond purchases.
	PurchasesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bondfi",
		Name:      "purchases_total",
		Help:      "Total bond purchases completed.",
	})

	// SaleListingsTotal counts secondary-market sale listings created.
	SaleListingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bondfi",
		Name:      "sale_listings_total",
		Help:      "Total secondary-market sale listings created.",
	})

	// NotificationsTotal counts notifications emitted by type.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bondfi",
			Name:      "notifications_total",
			Help:      "Total notifications emitted by type.",
		},
		[]string{"type"},
	)

	// OracleOverridesTotal counts privileged admin score overrides.
	OracleOverridesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bondfi",
		Name:      "oracle_overrides_total",
		Help:      "Total privileged oracle score overrides recorded.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bondfi",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bondfi", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bondfi", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bondfi", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		BondsCreatedTotal,
		BondApprovalsTotal,
		PricingQuotesTotal,
		PurchasesTotal,
		SaleListingsTotal,
		NotificationsTotal,
		OracleOverridesTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
