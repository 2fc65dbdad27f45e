// Package service implements credential issuance and verification.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"racepass/internal/audit"
	"racepass/internal/keys"
	"racepass/internal/vc/metrics"
	"racepass/internal/vc/models"
	"racepass/internal/vc/store"
	"racepass/internal/vc/token"
	"racepass/internal/vc/tracer"
	dErrors "racepass/pkg/domain-errors"
)

// maxClaimsBytes caps the serialized claims payload accepted for
// signing. Oversized payloads are rejected before any key touches
// them.
const maxClaimsBytes = 64 * 1024

// IssueResult is the outcome of a successful issuance.
type IssueResult struct {
	JTI       string
	Token     string
	Claims    models.Claims
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer signs credentials and records them in the ledger.
type Issuer struct {
	keys      *keys.Provider
	store     store.Store
	issuerDID string
	clock     func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	sink      audit.Sink
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock overrides the time source, for tests.
func WithIssuerClock(clock func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.clock = clock
	}
}

// WithIssuerLogger sets the structured logger.
func WithIssuerLogger(logger *slog.Logger) IssuerOption {
	return func(i *Issuer) {
		i.logger = logger
	}
}

// WithIssuerMetrics sets the Prometheus collectors.
func WithIssuerMetrics(m *metrics.Metrics) IssuerOption {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// WithIssuerTracer sets the span source.
func WithIssuerTracer(t tracer.Tracer) IssuerOption {
	return func(i *Issuer) {
		i.tracer = t
	}
}

// WithIssuerAuditSink sets the audit event sink.
func WithIssuerAuditSink(sink audit.Sink) IssuerOption {
	return func(i *Issuer) {
		i.sink = sink
	}
}

// NewIssuer builds an Issuer for the given identity and key material.
func NewIssuer(provider *keys.Provider, s store.Store, issuerDID string, opts ...IssuerOption) (*Issuer, error) {
	if provider == nil {
		return nil, fmt.Errorf("key provider is required")
	}
	if s == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if issuerDID == "" {
		return nil, fmt.Errorf("issuer DID is required")
	}

	issuer := &Issuer{
		keys:      provider,
		store:     s,
		issuerDID: issuerDID,
		clock:     time.Now,
		logger:    slog.Default(),
		tracer:    tracer.NewNoop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}
	return issuer, nil
}

// Issue validates the request, signs a credential and persists its
// record. Nothing is mutated when validation fails.
func (i *Issuer) Issue(ctx context.Context, subjectDID string, claims models.Claims, ttl time.Duration) (*IssueResult, error) {
	start := i.clock()
	ctx, span := i.tracer.Start(ctx, tracer.SpanIssue,
		tracer.String(tracer.AttrSubjectDID, subjectDID),
	)
	var issueErr error
	defer func() { span.End(issueErr) }()

	if err := validateIssueRequest(subjectDID, claims, ttl); err != nil {
		if i.metrics != nil {
			i.metrics.IssueFailures.Inc()
		}
		issueErr = err
		return nil, err
	}

	signClaims := withDefaultSchema(claims)

	jti := "urn:uuid:" + uuid.NewString()
	now := i.clock()
	expiresAt := now.Add(ttl)

	signed, err := token.Sign(i.keys.SigningKey(), token.SignParams{
		JTI:        jti,
		IssuerDID:  i.issuerDID,
		SubjectDID: subjectDID,
		Claims:     signClaims,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		issueErr = dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign credential")
		return nil, issueErr
	}

	rec := models.CredentialRecord{
		JTI:        jti,
		IssuerDID:  i.issuerDID,
		SubjectDID: subjectDID,
		Token:      signed,
		Status:     models.StatusValid,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := i.store.Save(ctx, rec); err != nil {
		issueErr = dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist credential")
		return nil, issueErr
	}

	if err := audit.Emit(ctx, i.sink, audit.Event{
		Action:     audit.ActionIssued,
		JTI:        jti,
		SubjectDID: subjectDID,
		IssuerDID:  i.issuerDID,
	}); err != nil {
		i.logger.Warn("audit emit failed", "action", audit.ActionIssued, "jti", jti, "error", err)
	}
	span.AddEvent(tracer.EventAuditEmitted)
	span.SetAttributes(tracer.String(tracer.AttrJTI, jti))

	if i.metrics != nil {
		i.metrics.CredentialsIssued.Inc()
		i.metrics.IssueDurationMs.Observe(float64(i.clock().Sub(start).Microseconds()) / 1000.0)
	}
	i.logger.Info("credential issued",
		"jti", jti,
		"subject_did", subjectDID,
		"expires_at", expiresAt,
	)

	return &IssueResult{
		JTI:       jti,
		Token:     signed,
		Claims:    signClaims,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

func validateIssueRequest(subjectDID string, claims models.Claims, ttl time.Duration) error {
	if ttl <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "ttl must be positive")
	}
	if subjectDID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "subject DID is required")
	}
	if claims == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "claims payload is required")
	}
	encoded, err := json.Marshal(claims)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "claims payload is not serializable")
	}
	if len(encoded) > maxClaimsBytes {
		return dErrors.New(dErrors.CodeInvalidInput, "claims payload exceeds 64KiB")
	}
	return nil
}

// withDefaultSchema copies the claims and injects the default
// credentialSchema when the caller did not supply one.
func withDefaultSchema(claims models.Claims) models.Claims {
	out := make(models.Claims, len(claims)+1)
	for k, v := range claims {
		out[k] = v
	}
	if _, ok := out["credentialSchema"]; !ok {
		out["credentialSchema"] = models.DefaultCredentialSchema
	}
	return out
}
