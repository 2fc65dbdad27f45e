// Package tracer is a small tracing abstraction for the credential
// engine. The service layer emits spans through this interface so it
// stays decoupled from OpenTelemetry; production wires the OTel
// adapter and tests use the no-op.
package tracer

import (
	"context"
	"time"
)

// Span tracks one operation and can record an error on completion.
type Span interface {
	// End completes the span. A non-nil err marks it failed. Call
	// exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent
// use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the credential engine.
const (
	SpanIssue     = "vc.issue"
	SpanVerify    = "vc.verify"
	SpanRevoke    = "vc.revoke"
	SpanChallenge = "vc.challenge"
	SpanResolve   = "vc.resolve_issuer"
)

// Attribute keys used by the credential engine.
const (
	AttrJTI        = "vc.jti"
	AttrIssuerDID  = "vc.issuer_did"
	AttrSubjectDID = "vc.subject_did"
	AttrReason     = "vc.reason"
	AttrValid      = "vc.valid"
)

// Event names used by the credential engine.
const (
	EventNonceConsumed = "nonce.consumed"
	EventAuditEmitted  = "audit.emitted"
)
