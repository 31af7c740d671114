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
			Namespace: "feeledger",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feeledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feeledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	feesAssessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "feeledger",
			Subsystem: "ledger",
			Name:      "fees_assessed_total",
			Help:      "Total number of fees assigned to students.",
		},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feeledger",
			Subsystem: "ledger",
			Name:      "payments_total",
			Help:      "Payment attempts by outcome.",
		},
		[]string{"result"},
	)

	paymentCents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "feeledger",
			Subsystem: "ledger",
			Name:      "payment_amount_cents_total",
			Help:      "Sum of accepted payment amounts in cents.",
		},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feeledger",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Ledger events handed to the broker, by type and outcome.",
		},
		[]string{"type", "result"},
	)

	paymentsExported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feeledger",
			Subsystem: "export",
			Name:      "payments_total",
			Help:      "Payments written to the payment register, by outcome.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		feesAssessed,
		payments,
		paymentCents,
		eventsPublished,
		paymentsExported,
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

func RecordFeeAssessed() {
	feesAssessed.Inc()
}

// RecordPayment counts a payment attempt; only accepted ones add to the amount.
func RecordPayment(accepted bool, amountCents int64) {
	if !accepted {
		payments.WithLabelValues("rejected").Inc()
		return
	}
	payments.WithLabelValues("accepted").Inc()
	if amountCents > 0 {
		paymentCents.Add(float64(amountCents))
	}
}

func RecordEventPublished(eventType string, err error) {
	eventsPublished.WithLabelValues(eventType, result(err)).Inc()
}

func RecordPaymentExported(err error) {
	paymentsExported.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
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

// canonicalPath replaces numeric ids so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}
