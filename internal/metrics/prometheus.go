package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "editbiz"

// PrometheusRecorder exports metrics through a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	authAttempts    *prometheus.CounterVec
	keyValidation   prometheus.Histogram
	keyVerifyCache  *prometheus.CounterVec
	keysIssued      *prometheus.CounterVec
	keysDeactivated prometheus.Counter
	quotaDecisions  *prometheus.CounterVec
	quotaRefunded   prometheus.Counter
}

// NewPrometheus creates a recorder registered on a fresh registry together
// with the Go runtime and process collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &PrometheusRecorder{
		registry: reg,
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by scheme and outcome.",
		}, []string{"scheme", "outcome"}),
		keyValidation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_key_validation_duration_seconds",
			Help:      "Time spent validating API keys.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		keyVerifyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_key_verify_cache_total",
			Help:      "Verification cache lookups by result.",
		}, []string{"hit"}),
		keysIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_keys_issued_total",
			Help:      "API keys issued by reason.",
		}, []string{"reason"}),
		keysDeactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_keys_deactivated_total",
			Help:      "API keys explicitly deactivated.",
		}),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Ingestion admission decisions by outcome.",
		}, []string{"outcome"}),
		quotaRefunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_refunded_units_total",
			Help:      "Quota units returned after failed writes.",
		}),
	}

	reg.MustRegister(
		p.authAttempts,
		p.keyValidation,
		p.keyVerifyCache,
		p.keysIssued,
		p.keysDeactivated,
		p.quotaDecisions,
		p.quotaRefunded,
	)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) IncAuthAttempt(scheme, outcome string) {
	p.authAttempts.WithLabelValues(scheme, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveKeyValidation(duration time.Duration) {
	p.keyValidation.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncKeyVerifyCache(hit bool) {
	p.keyVerifyCache.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

func (p *PrometheusRecorder) IncKeyIssued(reason string) {
	p.keysIssued.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncKeyDeactivated() {
	p.keysDeactivated.Inc()
}

func (p *PrometheusRecorder) IncQuotaDecision(outcome string) {
	p.quotaDecisions.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) AddQuotaRefunded(units int) {
	p.quotaRefunded.Add(float64(units))
}
