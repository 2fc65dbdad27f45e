// Package did resolves decentralized identifiers to verification keys.
//
// Resolution is polymorphic over the DID method: each method registers a
// Resolver under its method name and the MethodMux dispatches on the prefix.
// The verifier only ever sees the Resolver interface, so new methods (for
// example ledger-anchored ones) plug in without touching verification logic.
package did

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvable marks any resolution failure: unknown method, unreachable
// document, malformed key material, timeout. Callers treat it as a
// verification failure, never as a crash.
var ErrUnresolvable = errors.New("did unresolvable")

// Resolver maps a DID string to the verification public key of its subject.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*rsa.PublicKey, error)
}

// MethodMux dispatches resolution by DID method name.
type MethodMux struct {
	resolvers map[string]Resolver
}

// NewMethodMux returns an empty method multiplexer.
func NewMethodMux() *MethodMux {
	return &MethodMux{resolvers: make(map[string]Resolver)}
}

// Register routes DIDs of the given method ("web", "ebsi", ...) to r.
func (m *MethodMux) Register(method string, r Resolver) {
	m.resolvers[method] = r
}

// Resolve dispatches to the resolver registered for the DID's method.
func (m *MethodMux) Resolve(ctx context.Context, did string) (*rsa.PublicKey, error) {
	method, err := Method(did)
	if err != nil {
		return nil, err
	}
	r, ok := m.resolvers[method]
	if !ok {
		return nil, fmt.Errorf("no resolver for method %q: %w", method, ErrUnresolvable)
	}
	return r.Resolve(ctx, did)
}

// Method extracts the method name from a DID ("did:web:example.com" -> "web").
func Method(did string) (string, error) {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) != 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return "", fmt.Errorf("malformed did %q: %w", did, ErrUnresolvable)
	}
	return parts[1], nil
}
