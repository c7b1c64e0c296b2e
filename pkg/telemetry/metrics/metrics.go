// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the gateway's Prometheus collectors.
type Metrics struct {
	// requests counts gateway requests by endpoint and response status.
	requests *prometheus.CounterVec

	// policyExecutions counts policy action executions by policy and
	// outcome (continue, halt, error).
	policyExecutions *prometheus.CounterVec

	// rateLimitRejections counts rate-limit rejections by endpoint.
	rateLimitRejections *prometheus.CounterVec

	// backendDuration observes backend forwarding latency by service
	// endpoint.
	backendDuration *prometheus.HistogramVec

	// tokensIssued counts OAuth2 access tokens issued by format.
	tokensIssued *prometheus.CounterVec
}

// New creates the gateway metrics and registers them with the given
// registerer (use prometheus.DefaultRegisterer in production; tests pass
// their own registry to avoid duplicate-registration panics).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_requests_total",
				Help: "Total requests routed through the gateway",
			},
			[]string{"endpoint", "status"},
		),
		policyExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_policy_executions_total",
				Help: "Total policy action executions by outcome",
			},
			[]string{"policy", "outcome"},
		),
		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_rate_limit_rejections_total",
				Help: "Total requests rejected by the rate-limit policy",
			},
			[]string{"endpoint"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meridian_backend_request_duration_seconds",
				Help:    "Backend forwarding latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		tokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_oauth2_tokens_issued_total",
				Help: "Total OAuth2 access tokens issued",
			},
			[]string{"format"},
		),
	}

	reg.MustRegister(
		m.requests,
		m.policyExecutions,
		m.rateLimitRejections,
		m.backendDuration,
		m.tokensIssued,
	)
	return m
}

// ObserveRequest records one completed gateway request.
func (m *Metrics) ObserveRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, status).Inc()
}

// ObservePolicy records one policy action execution.
func (m *Metrics) ObservePolicy(policy, outcome string) {
	if m == nil {
		return
	}
	m.policyExecutions.WithLabelValues(policy, outcome).Inc()
}

// ObserveRateLimitRejection records a 429 produced by the rate-limit
// policy.
func (m *Metrics) ObserveRateLimitRejection(endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitRejections.WithLabelValues(endpoint).Inc()
}

// ObserveBackend records backend forwarding latency in seconds.
func (m *Metrics) ObserveBackend(service string, seconds float64) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(service).Observe(seconds)
}

// ObserveTokenIssued records an issued access token.
func (m *Metrics) ObserveTokenIssued(format string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(format).Inc()
}
