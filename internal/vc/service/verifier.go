package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"racepass/internal/audit"
	"racepass/internal/nonce"
	"racepass/internal/revocation"
	"racepass/internal/vc/metrics"
	"racepass/internal/vc/models"
	"racepass/internal/vc/token"
	"racepass/internal/vc/tracer"
	"racepass/pkg/platform/sentinel"
)

//go:generate mockgen -source=verifier.go -destination=mocks/mocks.go -package=mocks

// Resolver resolves an issuer DID to its RSA public key.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*rsa.PublicKey, error)
}

// Verifier runs the verification sequence over presented tokens.
//
// The check order is fixed: parse, resolve issuer, verify signature,
// expiry, revocation, nonce. The signature check precedes any use of
// claim content, and the nonce is consumed last so a rejected token
// never burns the caller's challenge.
type Verifier struct {
	resolver Resolver
	registry revocation.Registry
	nonces   nonce.Store
	clock    func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	sink     audit.Sink
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock overrides the time source, for tests.
func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.clock = clock
	}
}

// WithVerifierLogger sets the structured logger.
func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithVerifierMetrics sets the Prometheus collectors.
func WithVerifierMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithVerifierTracer sets the span source.
func WithVerifierTracer(t tracer.Tracer) VerifierOption {
	return func(v *Verifier) {
		v.tracer = t
	}
}

// WithVerifierAuditSink sets the audit event sink.
func WithVerifierAuditSink(sink audit.Sink) VerifierOption {
	return func(v *Verifier) {
		v.sink = sink
	}
}

// NewVerifier builds a Verifier over the given trust dependencies.
func NewVerifier(resolver Resolver, registry revocation.Registry, nonces nonce.Store, opts ...VerifierOption) (*Verifier, error) {
	if resolver == nil {
		return nil, fmt.Errorf("DID resolver is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("revocation registry is required")
	}
	if nonces == nil {
		return nil, fmt.Errorf("nonce store is required")
	}

	v := &Verifier{
		resolver: resolver,
		registry: registry,
		nonces:   nonces,
		clock:    time.Now,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Challenge issues a fresh single-use nonce valid for ttl.
func (v *Verifier) Challenge(ctx context.Context, ttl time.Duration) (nonce.Nonce, error) {
	ctx, span := v.tracer.Start(ctx, tracer.SpanChallenge)
	n, err := nonce.Issue(ctx, v.nonces, v.clock(), ttl)
	span.End(err)
	if err != nil {
		return nonce.Nonce{}, err
	}
	if v.metrics != nil {
		v.metrics.NoncesIssued.Inc()
	}
	if auditErr := audit.Emit(ctx, v.sink, audit.Event{Action: audit.ActionChallengeIssued}); auditErr != nil {
		v.logger.Warn("audit emit failed", "action", audit.ActionChallengeIssued, "error", auditErr)
	}
	return n, nil
}

// Verify runs one verification pass. It always returns a definite
// verdict for check failures; the error return is reserved for
// infrastructure faults (store or registry unavailable), in which case
// the verdict is nil and the nonce has not been consumed.
func (v *Verifier) Verify(ctx context.Context, tokenString, nonceValue string) (*models.Verdict, error) {
	start := v.clock()
	ctx, span := v.tracer.Start(ctx, tracer.SpanVerify)
	var infraErr error
	defer func() { span.End(infraErr) }()

	verdict, err := v.runChecks(ctx, span, tokenString, nonceValue)
	if err != nil {
		infraErr = err
		return nil, err
	}

	span.SetAttributes(
		tracer.Bool(tracer.AttrValid, verdict.Valid),
		tracer.String(tracer.AttrReason, string(verdict.Reason)),
	)
	if v.metrics != nil {
		v.metrics.RecordVerification(verdict.Valid, string(verdict.Reason))
		v.metrics.VerifyDurationMs.Observe(float64(v.clock().Sub(start).Microseconds()) / 1000.0)
	}
	v.emitVerdict(ctx, verdict)
	return verdict, nil
}

func (v *Verifier) runChecks(ctx context.Context, span tracer.Span, tokenString, nonceValue string) (*models.Verdict, error) {
	// Challenge presence is checked up front; its consumption is not.
	if nonceValue == "" {
		return models.InvalidVerdict(models.ReasonReplay), nil
	}

	meta, err := token.ExtractUnverified(tokenString)
	if err != nil {
		return models.InvalidVerdict(models.ReasonMalformed), nil
	}
	span.SetAttributes(
		tracer.String(tracer.AttrJTI, meta.JTI),
		tracer.String(tracer.AttrIssuerDID, meta.IssuerDID),
	)

	resolveCtx, resolveSpan := v.tracer.Start(ctx, tracer.SpanResolve,
		tracer.String(tracer.AttrIssuerDID, meta.IssuerDID),
	)
	key, err := v.resolver.Resolve(resolveCtx, meta.IssuerDID)
	resolveSpan.End(err)
	if err != nil {
		if v.metrics != nil {
			v.metrics.ResolverFailures.Inc()
		}
		v.logger.Info("issuer resolution failed", "issuer_did", meta.IssuerDID, "error", err)
		return models.InvalidVerdict(models.ReasonUnresolvableIssuer), nil
	}

	decoded, err := token.VerifySignature(tokenString, key)
	switch {
	case errors.Is(err, token.ErrMalformed):
		return models.InvalidVerdict(models.ReasonMalformed), nil
	case err != nil:
		return models.InvalidVerdict(models.ReasonBadSignature), nil
	}

	now := v.clock()
	if !now.Before(decoded.ExpiresAt) {
		return models.InvalidVerdict(models.ReasonExpired), nil
	}

	revoked, err := v.registry.IsRevoked(ctx, decoded.JTI)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// No ledger entry for this jti. The registry has no authority
		// over it, so it cannot be revoked.
	case err != nil:
		return nil, fmt.Errorf("revocation check: %w", err)
	case revoked:
		return models.InvalidVerdict(models.ReasonRevoked), nil
	}

	err = v.nonces.Consume(ctx, nonceValue, now)
	switch {
	case errors.Is(err, sentinel.ErrNotFound),
		errors.Is(err, sentinel.ErrExpired),
		errors.Is(err, sentinel.ErrAlreadyUsed):
		return models.InvalidVerdict(models.ReasonReplay), nil
	case err != nil:
		return nil, fmt.Errorf("nonce consume: %w", err)
	}
	span.AddEvent(tracer.EventNonceConsumed)
	if v.metrics != nil {
		v.metrics.NoncesConsumed.Inc()
	}

	verdict := models.ValidVerdict(decoded.JTI, decoded.Claims)
	return verdict, nil
}

func (v *Verifier) emitVerdict(ctx context.Context, verdict *models.Verdict) {
	event := audit.Event{JTI: verdict.JTI}
	if verdict.Valid {
		event.Action = audit.ActionVerified
	} else {
		event.Action = audit.ActionVerificationDenied
		event.Reason = string(verdict.Reason)
	}
	if err := audit.Emit(ctx, v.sink, event); err != nil {
		v.logger.Warn("audit emit failed", "action", event.Action, "error", err)
	}
}
