package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain counters for the entitlement engine.
type Metrics struct {
	entitlementDecisions *prometheus.CounterVec
	conversionsRecorded  *prometheus.CounterVec
	webhookEvents        *prometheus.CounterVec
	reconcileRuns        prometheus.Counter
	reconcileErrors      prometheus.Counter
	reconcileUpdated     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		entitlementDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conversor",
			Name:      "entitlement_decisions_total",
			Help:      "Entitlement check decisions by plan and outcome.",
		}, []string{"plan", "outcome"}),
		conversionsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conversor",
			Name:      "conversions_recorded_total",
			Help:      "Completed conversions recorded by identity kind.",
		}, []string{"identity"}),
		webhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conversor",
			Name:      "webhook_events_total",
			Help:      "Payment-processor webhook deliveries by result.",
		}, []string{"result"}),
		reconcileRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "conversor",
			Name:      "subscription_reconcile_runs_total",
			Help:      "Subscription poll reconciliation runs.",
		}),
		reconcileErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "conversor",
			Name:      "subscription_reconcile_errors_total",
			Help:      "Per-subscription reconciliation failures.",
		}),
		reconcileUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "conversor",
			Name:      "subscription_reconcile_updates_total",
			Help:      "Subscriptions whose local state was corrected by the poll.",
		}),
	}
}

// Outcome labels for entitlement decisions. Permissive marks the explicit
// fail-open path taken when the backing store could not be read.
const (
	OutcomeAllowed    = "allowed"
	OutcomeDenied     = "denied"
	OutcomePermissive = "permissive"
)

func (m *Metrics) IncEntitlementDecision(plan, outcome string) {
	if m == nil {
		return
	}
	m.entitlementDecisions.WithLabelValues(plan, outcome).Inc()
}

func (m *Metrics) IncConversionRecorded(identity string) {
	if m == nil {
		return
	}
	m.conversionsRecorded.WithLabelValues(identity).Inc()
}

func (m *Metrics) IncWebhookEvent(result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveReconcileRun(updated, errs int) {
	if m == nil {
		return
	}
	m.reconcileRuns.Inc()
	m.reconcileUpdated.Add(float64(updated))
	m.reconcileErrors.Add(float64(errs))
}

// HTTPMetrics instruments inbound requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conversor",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conversor",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
