// Package models holds the credential domain types shared by the
// issuer, verifier, stores and HTTP layer.
package models

import (
	"fmt"
	"time"
)

// Status of a stored credential record.
type Status string

const (
	StatusValid   Status = "valid"
	StatusRevoked Status = "revoked"
)

// DefaultCredentialSchema is injected into the claims of every issued
// credential that does not already carry a credentialSchema entry.
var DefaultCredentialSchema = map[string]any{
	"id":   "https://racepass.local/schemas/race-result-v1.json",
	"type": "JsonSchema",
}

// Claims is the attested fact set carried under the token's vc claim.
// Opaque to the engine apart from summary extraction and schema
// injection.
type Claims map[string]any

// CredentialRecord is the persisted ledger entry for an issued
// credential. The token string is written once at issuance and never
// mutated afterwards.
type CredentialRecord struct {
	JTI        string
	IssuerDID  string
	SubjectDID string
	Token      string
	Status     Status
	IssuedAt   time.Time
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Revoked reports whether the record has been revoked.
func (r CredentialRecord) Revoked() bool {
	return r.Status == StatusRevoked
}

// Reason is the machine-readable cause attached to an invalid verdict.
type Reason string

const (
	ReasonMalformed          Reason = "malformed_token"
	ReasonUnresolvableIssuer Reason = "unresolvable_issuer"
	ReasonBadSignature       Reason = "bad_signature"
	ReasonExpired            Reason = "expired"
	ReasonRevoked            Reason = "revoked"
	ReasonReplay             Reason = "replay_or_invalid_challenge"
)

// Verdict is the outcome of one verification pass. Valid verdicts carry
// the decoded claims; invalid ones carry the failing reason.
type Verdict struct {
	Valid  bool
	Reason Reason
	JTI    string
	Claims Claims
}

// ValidVerdict builds the terminal success verdict.
func ValidVerdict(jti string, claims Claims) *Verdict {
	return &Verdict{Valid: true, JTI: jti, Claims: claims}
}

// InvalidVerdict builds a terminal failure verdict.
func InvalidVerdict(reason Reason) *Verdict {
	return &Verdict{Valid: false, Reason: reason}
}

// Summary is the human-readable digest of a race result credential.
type Summary struct {
	Event string `json:"event"`
	Bib   string `json:"bib"`
	Name  string `json:"name"`
	Time  string `json:"time"`
}

// SummaryFromClaims extracts the well-known race result fields from a
// claims set. Missing or non-scalar fields come back empty.
func SummaryFromClaims(claims Claims) Summary {
	return Summary{
		Event: claimString(claims, "event"),
		Bib:   claimString(claims, "bib"),
		Name:  claimString(claims, "name"),
		Time:  claimString(claims, "time"),
	}
}

func claimString(claims Claims, key string) string {
	v, ok := claims[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%v", val)
	case int:
		return fmt.Sprintf("%d", val)
	default:
		return ""
	}
}
