package service

import (
	"context"
	"errors"
	"log/slog"

	"racepass/internal/audit"
	"racepass/internal/revocation"
	"racepass/internal/vc/metrics"
	"racepass/internal/vc/tracer"
	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/sentinel"
)

// Revoker applies administrative revocations to the registry.
type Revoker struct {
	registry revocation.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	sink     audit.Sink
}

// RevokerOption configures a Revoker.
type RevokerOption func(*Revoker)

// WithRevokerLogger sets the structured logger.
func WithRevokerLogger(logger *slog.Logger) RevokerOption {
	return func(r *Revoker) {
		r.logger = logger
	}
}

// WithRevokerMetrics sets the Prometheus collectors.
func WithRevokerMetrics(m *metrics.Metrics) RevokerOption {
	return func(r *Revoker) {
		r.metrics = m
	}
}

// WithRevokerTracer sets the span source.
func WithRevokerTracer(t tracer.Tracer) RevokerOption {
	return func(r *Revoker) {
		r.tracer = t
	}
}

// WithRevokerAuditSink sets the audit event sink.
func WithRevokerAuditSink(sink audit.Sink) RevokerOption {
	return func(r *Revoker) {
		r.sink = sink
	}
}

// NewRevoker builds a Revoker over the registry.
func NewRevoker(registry revocation.Registry, opts ...RevokerOption) (*Revoker, error) {
	if registry == nil {
		return nil, errors.New("revocation registry is required")
	}
	r := &Revoker{
		registry: registry,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Revoke marks the credential revoked. Repeat revocations succeed;
// unknown credentials fail with CodeNotFound.
func (r *Revoker) Revoke(ctx context.Context, jti string) error {
	ctx, span := r.tracer.Start(ctx, tracer.SpanRevoke, tracer.String(tracer.AttrJTI, jti))
	var revokeErr error
	defer func() { span.End(revokeErr) }()

	if jti == "" {
		revokeErr = dErrors.New(dErrors.CodeInvalidInput, "jti is required")
		return revokeErr
	}

	err := r.registry.Revoke(ctx, jti)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		revokeErr = dErrors.New(dErrors.CodeNotFound, "credential not found")
		return revokeErr
	case err != nil:
		revokeErr = dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential")
		return revokeErr
	}

	if r.metrics != nil {
		r.metrics.Revocations.Inc()
	}
	if auditErr := audit.Emit(ctx, r.sink, audit.Event{
		Action: audit.ActionRevoked,
		JTI:    jti,
	}); auditErr != nil {
		r.logger.Warn("audit emit failed", "action", audit.ActionRevoked, "jti", jti, "error", auditErr)
	}
	r.logger.Info("credential revoked", "jti", jti)
	return nil
}
