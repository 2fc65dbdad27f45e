// Package metrics holds Prometheus collectors for the credential engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds collectors for issuance, verification and challenge
// operations.
type Metrics struct {
	CredentialsIssued  prometheus.Counter
	IssueFailures      prometheus.Counter
	IssueDurationMs    prometheus.Histogram
	Verifications      *prometheus.CounterVec
	VerifyDurationMs   prometheus.Histogram
	NoncesIssued       prometheus.Counter
	NoncesConsumed     prometheus.Counter
	Revocations        prometheus.Counter
	ResolverFailures   prometheus.Counter
	ExpiredNonceSweeps prometheus.Counter
}

// New registers collectors on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers collectors on the given registry. Tests pass a
// fresh prometheus.NewRegistry to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "racepass_credentials_issued_total",
			Help: "Total number of credentials issued",
		}),
		IssueFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "racepass_issue_failures_total",
			Help: "Total number of rejected issuance requests",
		}),
		IssueDurationMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "racepass_issue_duration_ms",
			Help:    "Latency of credential issuance in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250},
		}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "racepass_verifications_total",
			Help: "Verification verdicts by result and reason",
		}, []string{"result", "reason"}),
		VerifyDurationMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "racepass_verify_duration_ms",
			Help:    "Latency of credential verification in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		}),
		NoncesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "racepass_nonces_issued_total",
			Help: "Total number of verification challenges issued",
		}),
		NoncesConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "racepass_nonces_consumed_total",
			Help: "Total number of verification challenges consumed",
		}),
		Revocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "racepass_revocations_total",
			Help: "Total number of credentials revoked",
		}),
		ResolverFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "racepass_resolver_failures_total",
			Help: "Total number of issuer DID resolution failures",
		}),
		ExpiredNonceSweeps: factory.NewCounter(prometheus.CounterOpts{
			Name: "racepass_expired_nonce_sweeps_total",
			Help: "Total number of expired nonce cleanup passes",
		}),
	}
}

// RecordVerification increments the verdict counter for one pass.
func (m *Metrics) RecordVerification(valid bool, reason string) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.Verifications.WithLabelValues(result, reason).Inc()
}
