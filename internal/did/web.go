package did

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// maxDocumentSize bounds DID document reads; documents are tiny in practice.
const maxDocumentSize = 1 << 20

// document is the subset of a W3C DID document we consume.
type document struct {
	ID                 string               `json:"id"`
	VerificationMethod []verificationMethod `json:"verificationMethod"`
}

type verificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// WebResolver resolves did:web identifiers by fetching the hosted DID
// document over HTTPS per the did:web method specification.
type WebResolver struct {
	client *http.Client
	scheme string
}

// WebOption configures a WebResolver.
type WebOption func(*WebResolver)

// WithHTTPClient overrides the HTTP client, typically to adjust the timeout.
func WithHTTPClient(c *http.Client) WebOption {
	return func(r *WebResolver) {
		if c != nil {
			r.client = c
		}
	}
}

// WithInsecureHTTP switches document fetches to plain HTTP. Test servers only.
func WithInsecureHTTP() WebOption {
	return func(r *WebResolver) {
		r.scheme = "http"
	}
}

// NewWebResolver builds a did:web resolver with a bounded-timeout client so a
// slow host surfaces as a resolution failure, not a hang.
func NewWebResolver(opts ...WebOption) *WebResolver {
	r := &WebResolver{
		client: &http.Client{Timeout: 5 * time.Second},
		scheme: "https",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches the DID document and extracts the first RSA verification key.
func (r *WebResolver) Resolve(ctx context.Context, did string) (*rsa.PublicKey, error) {
	docURL, err := r.documentURL(did)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", docURL, ErrUnresolvable)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		// Covers timeouts and context cancellation as well.
		return nil, fmt.Errorf("fetch did document: %v: %w", err, ErrUnresolvable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("did document fetch returned %d: %w", resp.StatusCode, ErrUnresolvable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read did document: %v: %w", err, ErrUnresolvable)
	}

	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse did document: %v: %w", err, ErrUnresolvable)
	}

	for _, vm := range doc.VerificationMethod {
		if vm.PublicKeyPem == "" {
			continue
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(vm.PublicKeyPem))
		if err != nil {
			continue
		}
		return key, nil
	}
	return nil, fmt.Errorf("no usable verification key in did document: %w", ErrUnresolvable)
}

// documentURL maps a did:web identifier to its document location:
// did:web:example.com          -> https://example.com/.well-known/did.json
// did:web:example.com:athletes -> https://example.com/athletes/did.json
// A port is percent-encoded in the DID (example.com%3A8443).
func (r *WebResolver) documentURL(did string) (string, error) {
	const prefix = "did:web:"
	if !strings.HasPrefix(did, prefix) {
		return "", fmt.Errorf("not a did:web identifier %q: %w", did, ErrUnresolvable)
	}

	segments := strings.Split(did[len(prefix):], ":")
	host, err := url.PathUnescape(segments[0])
	if err != nil || host == "" {
		return "", fmt.Errorf("malformed did:web host %q: %w", segments[0], ErrUnresolvable)
	}

	if len(segments) == 1 {
		return fmt.Sprintf("%s://%s/.well-known/did.json", r.scheme, host), nil
	}
	return fmt.Sprintf("%s://%s/%s/did.json", r.scheme, host, strings.Join(segments[1:], "/")), nil
}
