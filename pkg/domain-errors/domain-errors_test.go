package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(CodeRevoked, "credential has been revoked")

	var dErr *Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, CodeRevoked, dErr.Code)
	assert.Equal(t, "credential has been revoked", err.Error())
}

func TestErrorFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeBadSignature}
	assert.Equal(t, "bad_signature", err.Error())
}

func TestWrapPreservesExistingCode(t *testing.T) {
	inner := New(CodeExpired, "token expired")
	wrapped := Wrap(inner, CodeInternal, "verification failed")

	assert.True(t, HasCode(wrapped, CodeExpired))
	assert.False(t, HasCode(wrapped, CodeInternal))
	assert.ErrorIs(t, wrapped, inner)
}

func TestWrapAssignsCodeToPlainErrors(t *testing.T) {
	inner := errors.New("connection refused")
	wrapped := Wrap(inner, CodeUnavailable, "store unreachable")

	assert.True(t, HasCode(wrapped, CodeUnavailable))
	assert.ErrorIs(t, wrapped, inner)
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeReplay, "nonce already consumed"))
	assert.ErrorIs(t, err, New(CodeReplay, "different message"))
	assert.NotErrorIs(t, err, New(CodeNotFound, ""))
}
