// Package token signs and checks the JWT wire form of credentials.
//
// The codec is deliberately split in two: ExtractUnverified reads
// routing metadata (issuer, jti) from an unchecked token so the caller
// can resolve the issuer's key, and VerifySignature checks the
// signature with that key before any claim content is trusted.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"racepass/internal/vc/models"
)

// ErrMalformed marks tokens that do not parse as a three-part JWT.
var ErrMalformed = errors.New("malformed token")

// ErrBadSignature marks tokens whose signature does not verify against
// the issuer's key.
var ErrBadSignature = errors.New("bad signature")

// SignParams carries everything needed to mint one token.
type SignParams struct {
	JTI        string
	IssuerDID  string
	SubjectDID string
	Claims     models.Claims
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

type credentialClaims struct {
	jwt.RegisteredClaims
	VC models.Claims `json:"vc"`
}

// Sign serializes and signs the credential with RS256.
func Sign(key *rsa.PrivateKey, p SignParams) (string, error) {
	claims := credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        p.JTI,
			Issuer:    p.IssuerDID,
			Subject:   p.SubjectDID,
			IssuedAt:  jwt.NewNumericDate(p.IssuedAt),
			NotBefore: jwt.NewNumericDate(p.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
		VC: p.Claims,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing credential: %w", err)
	}
	return signed, nil
}

// Metadata is the untrusted routing data of a not-yet-verified token.
type Metadata struct {
	JTI       string
	IssuerDID string
}

// ExtractUnverified parses the token without checking its signature
// and returns issuer and jti. Callers must treat the result as
// attacker-controlled until VerifySignature has passed.
func ExtractUnverified(tokenString string) (Metadata, error) {
	var claims credentialClaims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ID == "" || claims.Issuer == "" {
		return Metadata{}, fmt.Errorf("%w: missing jti or iss", ErrMalformed)
	}
	return Metadata{JTI: claims.ID, IssuerDID: claims.Issuer}, nil
}

// DecodeUnverified parses the full claim set without checking the
// signature. For reads of ledger-stored tokens that were verified at
// issuance, not for presented tokens.
func DecodeUnverified(tokenString string) (*Decoded, error) {
	var claims credentialClaims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	d := &Decoded{
		JTI:        claims.ID,
		IssuerDID:  claims.Issuer,
		SubjectDID: claims.Subject,
		Claims:     claims.VC,
	}
	if claims.IssuedAt != nil {
		d.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		d.ExpiresAt = claims.ExpiresAt.Time
	}
	return d, nil
}

// Decoded is a fully parsed token.
type Decoded struct {
	JTI        string
	IssuerDID  string
	SubjectDID string
	Claims     models.Claims
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// VerifySignature checks the RS256 signature with the given key.
// Temporal claims are not validated here. Expiry is a separate step of
// the verification sequence and is checked against an injected clock.
func VerifySignature(tokenString string, key *rsa.PublicKey) (*Decoded, error) {
	var claims credentialClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	case !parsed.Valid:
		return nil, ErrBadSignature
	}

	d := &Decoded{
		JTI:        claims.ID,
		IssuerDID:  claims.Issuer,
		SubjectDID: claims.Subject,
		Claims:     claims.VC,
	}
	if claims.IssuedAt != nil {
		d.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		d.ExpiresAt = claims.ExpiresAt.Time
	}
	return d, nil
}
