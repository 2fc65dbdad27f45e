package handler

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racepass/internal/did"
	"racepass/internal/keys"
	"racepass/internal/nonce"
	"racepass/internal/revocation"
	"racepass/internal/vc/service"
	"racepass/internal/vc/store"
)

const testIssuerDID = "did:web:racepass.local"

// env bundles a fully wired handler over in-memory backends.
type env struct {
	router *chi.Mux
	creds  *store.MemoryStore
	nonces *nonce.MemoryStore
}

func newEnv(t *testing.T) *env {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	provider, err := keys.Load(string(privPEM), string(pubPEM))
	require.NoError(t, err)

	creds := store.NewMemoryStore()
	nonces := nonce.NewMemoryStore()
	registry := revocation.NewStoreRegistry(creds)

	resolver := did.NewStaticResolver()
	resolver.Add(testIssuerDID, provider.PublicKey())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	issuer, err := service.NewIssuer(provider, creds, testIssuerDID, service.WithIssuerLogger(logger))
	require.NoError(t, err)
	verifier, err := service.NewVerifier(resolver, registry, nonces, service.WithVerifierLogger(logger))
	require.NoError(t, err)
	revoker, err := service.NewRevoker(registry, service.WithRevokerLogger(logger))
	require.NoError(t, err)

	h := New(issuer, verifier, revoker, creds, nonces, logger)
	router := chi.NewRouter()
	h.Register(router)
	h.RegisterAdmin(router)

	return &env{router: router, creds: creds, nonces: nonces}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *env) issue(t *testing.T) IssueResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/issuer/credentials", IssueRequest{
		SubjectDID: "did:ebsi:runner-5",
		TTLSeconds: 3600,
		Claims: map[string]any{
			"event": "Tartu City Run 2026",
			"bib":   "512",
			"name":  "Mari Tamm",
			"time":  "00:47:02",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeBody[IssueResponse](t, rec)
}

func (e *env) challenge(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/verifier/challenge", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody[ChallengeResponse](t, rec).Nonce
}

func TestIssueEndpoint(t *testing.T) {
	e := newEnv(t)

	resp := e.issue(t)
	assert.Equal(t, "valid", resp.Status)
	assert.NotEmpty(t, resp.Token)
	assert.Contains(t, resp.Claims, "credentialSchema")
	assert.Equal(t, "Tartu City Run 2026", resp.Summary.Event)
	assert.Equal(t, "00:47:02", resp.Summary.Time)
}

func TestIssueEndpointRejectsBadBody(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/issuer/credentials", IssueRequest{
		SubjectDID: "",
		TTLSeconds: 3600,
		Claims:     map[string]any{"event": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/issuer/credentials", IssueRequest{
		SubjectDID: "did:ebsi:runner-5",
		TTLSeconds: 0,
		Claims:     map[string]any{"event": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChallengeEndpointClampsTTL(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/verifier/challenge?ttl=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), decodeBody[ChallengeResponse](t, rec).TTLSeconds)

	rec = e.do(t, http.MethodGet, "/verifier/challenge?ttl=99999", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(600), decodeBody[ChallengeResponse](t, rec).TTLSeconds)

	rec = e.do(t, http.MethodGet, "/verifier/challenge?ttl=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyEndpointRoundTrip(t *testing.T) {
	e := newEnv(t)

	issued := e.issue(t)
	challenge := e.challenge(t)

	rec := e.do(t, http.MethodPost, "/verifier/verify", VerifyRequest{Token: issued.Token, Nonce: challenge})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[VerifyResponse](t, rec)
	assert.Equal(t, "valid", resp.Result)
	assert.Equal(t, "512", resp.Claims["bib"])
	assert.Empty(t, resp.Reason)
}

func TestVerifyEndpointReplay(t *testing.T) {
	e := newEnv(t)

	issued := e.issue(t)
	challenge := e.challenge(t)

	first := e.do(t, http.MethodPost, "/verifier/verify", VerifyRequest{Token: issued.Token, Nonce: challenge})
	require.Equal(t, "valid", decodeBody[VerifyResponse](t, first).Result)

	second := e.do(t, http.MethodPost, "/verifier/verify", VerifyRequest{Token: issued.Token, Nonce: challenge})
	resp := decodeBody[VerifyResponse](t, second)
	assert.Equal(t, "invalid", resp.Result)
	assert.Equal(t, "replay_or_invalid_challenge", resp.Reason)
}

func TestVerifyEndpointMalformedToken(t *testing.T) {
	e := newEnv(t)
	challenge := e.challenge(t)

	rec := e.do(t, http.MethodPost, "/verifier/verify", VerifyRequest{Token: "garbage", Nonce: challenge})
	resp := decodeBody[VerifyResponse](t, rec)
	assert.Equal(t, "invalid", resp.Result)
	assert.Equal(t, "malformed_token", resp.Reason)

	// A rejected token must not burn the challenge.
	issued := e.issue(t)
	rec = e.do(t, http.MethodPost, "/verifier/verify", VerifyRequest{Token: issued.Token, Nonce: challenge})
	assert.Equal(t, "valid", decodeBody[VerifyResponse](t, rec).Result)
}

func TestVerifyEndpointRevoked(t *testing.T) {
	e := newEnv(t)

	issued := e.issue(t)
	rec := e.do(t, http.MethodPost, "/admin/revoke", RevokeRequest{JTI: issued.JTI})
	require.Equal(t, http.StatusOK, rec.Code)

	challenge := e.challenge(t)
	rec = e.do(t, http.MethodPost, "/verifier/verify", VerifyRequest{Token: issued.Token, Nonce: challenge})
	resp := decodeBody[VerifyResponse](t, rec)
	assert.Equal(t, "invalid", resp.Result)
	assert.Equal(t, "revoked", resp.Reason)
}

func TestRevokeEndpoint(t *testing.T) {
	e := newEnv(t)
	issued := e.issue(t)

	rec := e.do(t, http.MethodPost, "/admin/revoke", RevokeRequest{JTI: issued.JTI})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Idempotent on repeat.
	rec = e.do(t, http.MethodPost, "/admin/revoke", RevokeRequest{JTI: issued.JTI})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/admin/revoke", RevokeRequest{JTI: "urn:uuid:missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/admin/revoke", RevokeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHolderEndpoint(t *testing.T) {
	e := newEnv(t)
	issued := e.issue(t)

	rec := e.do(t, http.MethodGet, "/holder/credentials/"+issued.JTI, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[HolderResponse](t, rec)
	assert.Equal(t, issued.JTI, resp.JTI)
	assert.Equal(t, issued.Token, resp.Token, "stored token must be byte-identical")
	assert.Equal(t, "valid", resp.Status)
	assert.Equal(t, "Mari Tamm", resp.Summary.Name)

	rec = e.do(t, http.MethodGet, "/holder/credentials/urn:uuid:missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDBDumpEndpoint(t *testing.T) {
	e := newEnv(t)
	issued := e.issue(t)
	e.issue(t)
	challenge := e.challenge(t)

	rec := e.do(t, http.MethodGet, "/admin/db", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	dump := decodeBody[DBDumpResponse](t, rec)
	assert.Equal(t, 2, dump.CredentialCount)
	require.Len(t, dump.Credentials, 2)
	assert.Equal(t, issued.JTI, dump.Credentials[0].JTI)
	assert.Less(t, len(dump.Credentials[0].Token), len(issued.Token), "dump tokens are truncated")

	assert.Equal(t, 1, dump.NonceCount)
	require.Len(t, dump.Nonces, 1)
	assert.False(t, dump.Nonces[0].Consumed)
	assert.NotEqual(t, challenge, dump.Nonces[0].Value, "dump nonce values are truncated")
}
