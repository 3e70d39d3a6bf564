// Package metrics exposes Prometheus collectors for the marketplace core
// and its HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "service_marketplace",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "service_marketplace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "service_marketplace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	listingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "service_marketplace",
			Subsystem: "listings",
			Name:      "created_total",
			Help:      "Total number of services listed.",
		},
		[]string{"soulbound"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "service_marketplace",
			Subsystem: "settlement",
			Name:      "operations_total",
			Help:      "Total number of committed settlements.",
		},
		[]string{"kind"},
	)

	settlementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "service_marketplace",
			Subsystem: "settlement",
			Name:      "operation_duration_seconds",
			Help:      "Duration of settlement transitions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"kind"},
	)

	royaltyCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "service_marketplace",
			Subsystem: "settlement",
			Name:      "royalty_collected_total",
			Help:      "Royalty units deposited into vaults, by payment mint.",
		},
		[]string{"payment_mint"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		listingsCreated,
		settlements,
		settlementDuration,
		royaltyCollected,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordListing counts a created listing.
func RecordListing(soulbound bool) {
	listingsCreated.WithLabelValues(strconv.FormatBool(soulbound)).Inc()
}

// RecordSettlement counts a committed settlement and its duration.
func RecordSettlement(kind string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	settlements.WithLabelValues(kind).Inc()
	settlementDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// AddRoyalty accumulates royalty units collected for a payment mint.
func AddRoyalty(paymentMint string, amount uint64) {
	if amount == 0 {
		return
	}
	royaltyCollected.WithLabelValues(paymentMint).Add(float64(amount))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses record names out of paths so label cardinality
// stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "services":
		if len(parts) == 1 {
			return "/services"
		}
		if len(parts) == 2 {
			return "/services/:name"
		}
		return "/services/:name/" + parts[2]
	case "mints":
		if len(parts) == 1 {
			return "/mints"
		}
		return "/mints/:name"
	case "vaults":
		return "/vaults/:mint"
	default:
		return "/" + parts[0]
	}
}
