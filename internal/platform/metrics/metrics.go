package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Issuance outcomes recorded by IncrementIssuance.
const (
	OutcomeIssued             = "issued"
	OutcomeReplayed           = "replayed"
	OutcomeVerificationFailed = "verification_failed"
	OutcomeSybilCollision     = "sybil_collision"
	OutcomeRejected           = "rejected"
	OutcomeError              = "error"
)

// Refund outcomes recorded by IncrementRefund.
const (
	RefundOutcomeRefunded   = "refunded"
	RefundOutcomeInProgress = "in_progress"
	RefundOutcomeRejected   = "rejected"
	RefundOutcomeError      = "error"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	SessionsCreated    prometheus.Counter
	SessionTransitions *prometheus.CounterVec
	Issuances          *prometheus.CounterVec
	NullifierCache     *prometheus.CounterVec
	SybilCollisions    *prometheus.CounterVec
	Refunds            *prometheus.CounterVec
	ProviderFetch      *prometheus.HistogramVec
	SignerLatency      prometheus.Histogram
	HTTPLatency        *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "idserver_sessions_created_total",
			Help: "Total number of verification sessions created",
		}),
		SessionTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idserver_session_transitions_total",
			Help: "Session status transitions by target status",
		}, []string{"status"}),
		Issuances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idserver_issuances_total",
			Help: "Credential issuance requests by provider and outcome",
		}, []string{"provider", "outcome"}),
		NullifierCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idserver_nullifier_cache_lookups_total",
			Help: "Nullifier replay cache lookups by result",
		}, []string{"result"}),
		SybilCollisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idserver_sybil_collisions_total",
			Help: "Issuances refused because the identity was already registered",
		}, []string{"provider"}),
		Refunds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idserver_refunds_total",
			Help: "Refund attempts by outcome",
		}, []string{"outcome"}),
		ProviderFetch: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idserver_provider_fetch_duration_seconds",
			Help:    "Latency of IDV provider result fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "result"}),
		SignerLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "idserver_signer_duration_seconds",
			Help:    "Latency of credential signer calls",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idserver_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "status"}),
	}
}

func (m *Metrics) IncrementSessionsCreated() {
	m.SessionsCreated.Inc()
}

func (m *Metrics) IncrementTransition(status string) {
	m.SessionTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementIssuance(provider, outcome string) {
	m.Issuances.WithLabelValues(provider, outcome).Inc()
}

// ObserveNullifierLookup records a cache hit or miss.
func (m *Metrics) ObserveNullifierLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.NullifierCache.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementSybilCollision(provider string) {
	m.SybilCollisions.WithLabelValues(provider).Inc()
}

func (m *Metrics) IncrementRefund(outcome string) {
	m.Refunds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveProviderFetch(provider string, err error, start time.Time) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProviderFetch.WithLabelValues(provider, result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveSigner(start time.Time) {
	m.SignerLatency.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTPRequest(route, method, status string, start time.Time) {
	m.HTTPLatency.WithLabelValues(route, method, status).Observe(time.Since(start).Seconds())
}
