// Package keys owns the issuer signing keypair.
//
// Key material is loaded exactly once at process start and is immutable for
// the process lifetime; rotation is a deployment concern, not a runtime one.
// A missing or malformed key is a fatal startup error by contract, so the
// constructor is the only place in the system allowed to make key problems
// fatal.
package keys

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Provider supplies the issuer's RSA signing key and the matching public key.
type Provider struct {
	signingKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// Load builds a Provider from the two key sources. Each source is either an
// inline PEM block or a path to a PEM file.
func Load(privateSource, publicSource string) (*Provider, error) {
	privPEM, err := material(privateSource)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	pubPEM, err := material(publicSource)
	if err != nil {
		return nil, fmt.Errorf("load public key: %w", err)
	}

	signingKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return &Provider{signingKey: signingKey, publicKey: publicKey}, nil
}

// SigningKey returns the issuer's private signing key.
func (p *Provider) SigningKey() *rsa.PrivateKey {
	return p.signingKey
}

// PublicKey returns the public half of the issuer keypair.
func (p *Provider) PublicKey() *rsa.PublicKey {
	return p.publicKey
}

// material resolves a key source to PEM bytes. Inline PEM is recognized by
// its armor header; anything else is treated as a file path.
func material(source string) ([]byte, error) {
	if source == "" {
		return nil, fmt.Errorf("key material not configured")
	}
	if strings.Contains(source, "-----BEGIN") {
		return []byte(source), nil
	}
	pem, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", source, err)
	}
	return pem, nil
}
