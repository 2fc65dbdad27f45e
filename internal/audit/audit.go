// Package audit records credential lifecycle events.
//
// Events are emitted from the issuer, verifier and admin flows and fan
// out to a sink. The Kafka sink is the production path; the memory
// sink backs tests and broker-less deployments.
package audit

import (
	"context"
	"time"
)

// Action identifies what happened to a credential.
type Action string

const (
	ActionIssued             Action = "credential_issued"
	ActionVerified           Action = "credential_verified"
	ActionVerificationDenied Action = "verification_denied"
	ActionRevoked            Action = "credential_revoked"
	ActionChallengeIssued    Action = "challenge_issued"
)

// Event is one audit record. Keep it transport-agnostic so sinks can
// fan out.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	JTI        string    `json:"jti,omitempty"`
	SubjectDID string    `json:"subject_did,omitempty"`
	IssuerDID  string    `json:"issuer_did,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Sink receives audit events. Publish must not block the hot path
// longer than broker acknowledgement.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Emit stamps and publishes one event, tolerating a nil sink.
func Emit(ctx context.Context, sink Sink, event Event) error {
	if sink == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return sink.Publish(ctx, event)
}
