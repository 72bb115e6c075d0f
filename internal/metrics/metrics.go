package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the API registers. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	RequestCount     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	OrdersCreated    *prometheus.CounterVec
	OrderRejections  *prometheus.CounterVec
	OrderTransitions *prometheus.CounterVec
	SweepExpired     prometheus.Counter
	SweepFailures    prometheus.Counter
	SweepDuration    prometheus.Histogram
	LedgerOperations *prometheus.CounterVec
	CoinMismatches   prometheus.Counter
	NotifyFailures   *prometheus.CounterVec
	DeliveryRequests *prometheus.CounterVec
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldex_orders_created_total",
			Help: "Orders accepted with a locked price.",
		}, []string{"side", "product"}),
		OrderRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldex_order_rejections_total",
			Help: "Order submissions rejected, by error code.",
		}, []string{"code"}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldex_order_transitions_total",
			Help: "Order status transitions, by target status.",
		}, []string{"status"}),
		SweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goldex_sweeper_expired_total",
			Help: "Orders expired by the sweeper.",
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goldex_sweeper_failures_total",
			Help: "Orders the sweeper failed to expire.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "goldex_sweep_duration_seconds",
			Help:    "Duration of one sweep pass.",
			Buckets: prometheus.DefBuckets,
		}),
		LedgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldex_ledger_operations_total",
			Help: "Composite ledger operations, by operation and outcome.",
		}, []string{"operation", "status"}),
		CoinMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goldex_coin_holding_mismatches_total",
			Help: "Coin holdings that disagree with settled history.",
		}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldex_notify_failures_total",
			Help: "Notification sink failures, by sink.",
		}, []string{"sink"}),
		DeliveryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldex_delivery_transitions_total",
			Help: "Delivery request status changes, by target status.",
		}, []string{"status"}),
	}
	registry.MustRegister(
		m.RequestCount, m.RequestDuration,
		m.OrdersCreated, m.OrderRejections, m.OrderTransitions,
		m.SweepExpired, m.SweepFailures, m.SweepDuration,
		m.LedgerOperations, m.CoinMismatches, m.NotifyFailures, m.DeliveryRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderCreated(side, product string) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(side, product).Inc()
}

func (m *Metrics) OrderRejected(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "internal"
	}
	m.OrderRejections.WithLabelValues(code).Inc()
}

func (m *Metrics) OrderTransitioned(status string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Swept(expired, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.SweepExpired.Add(float64(expired))
	m.SweepFailures.Add(float64(failed))
	m.SweepDuration.Observe(took.Seconds())
}

func (m *Metrics) LedgerOp(op string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.LedgerOperations.WithLabelValues(op, status).Inc()
}

func (m *Metrics) CoinMismatch(n int) {
	if m == nil || n == 0 {
		return
	}
	m.CoinMismatches.Add(float64(n))
}

func (m *Metrics) NotifyFailed(sink string) {
	if m == nil {
		return
	}
	m.NotifyFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) DeliveryTransitioned(status string) {
	if m == nil {
		return
	}
	m.DeliveryRequests.WithLabelValues(status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := strconv.Itoa(rec.status)
		m.RequestCount.WithLabelValues(r.Method, path, status).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}
