package token

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racepass/internal/vc/models"
)

func signParams() SignParams {
	now := time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC)
	return SignParams{
		JTI:        "urn:uuid:4f9d2e8a-1111-2222-3333-444455556666",
		IssuerDID:  "did:web:racepass.local",
		SubjectDID: "did:ebsi:runner-42",
		Claims: models.Claims{
			"event": "Berlin Marathon 2026",
			"bib":   "1042",
			"name":  "Jonas Weiss",
			"time":  "02:41:33",
		},
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := signParams()
	signed, err := Sign(key, p)
	require.NoError(t, err)
	assert.Len(t, strings.Split(signed, "."), 3)

	decoded, err := VerifySignature(signed, &key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, p.JTI, decoded.JTI)
	assert.Equal(t, p.IssuerDID, decoded.IssuerDID)
	assert.Equal(t, p.SubjectDID, decoded.SubjectDID)
	assert.Equal(t, "02:41:33", decoded.Claims["time"])
	assert.True(t, decoded.ExpiresAt.Equal(p.ExpiresAt))
}

func TestExtractUnverified(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signed, err := Sign(key, signParams())
	require.NoError(t, err)

	meta, err := ExtractUnverified(signed)
	require.NoError(t, err)
	assert.Equal(t, "urn:uuid:4f9d2e8a-1111-2222-3333-444455556666", meta.JTI)
	assert.Equal(t, "did:web:racepass.local", meta.IssuerDID)
}

func TestExtractUnverifiedMalformed(t *testing.T) {
	for _, tok := range []string{"", "not-a-jwt", "a.b", "a.b.c.d"} {
		_, err := ExtractUnverified(tok)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", tok)
	}
}

func TestVerifySignatureWrongKey(t *testing.T) {
	signer, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signed, err := Sign(signer, signParams())
	require.NoError(t, err)

	_, err = VerifySignature(signed, &other.PublicKey)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signed, err := Sign(key, signParams())
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	if payload[10] == 'A' {
		payload[10] = 'B'
	} else {
		payload[10] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = VerifySignature(tampered, &key.PublicKey)
	assert.Error(t, err)
}

func TestVerifySignatureAcceptsExpiredToken(t *testing.T) {
	// Temporal validity is the verifier's job, not the codec's.
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := signParams()
	p.IssuedAt = time.Now().Add(-2 * time.Hour)
	p.ExpiresAt = time.Now().Add(-time.Hour)

	signed, err := Sign(key, p)
	require.NoError(t, err)

	decoded, err := VerifySignature(signed, &key.PublicKey)
	require.NoError(t, err)
	assert.True(t, decoded.ExpiresAt.Before(time.Now()))
}
