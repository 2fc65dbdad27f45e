package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	"go.uber.org/mock/gomock"

	"racepass/internal/audit"
	"racepass/internal/vc/models"
	"racepass/pkg/platform/sentinel"
)

// issue mints a token through the real issuer so verifier tests work
// on genuine RS256 material.
func (s *ServiceSuite) issue() *IssueResult {
	result, err := s.issuer.Issue(context.Background(), "did:ebsi:runner-88", raceClaims(), time.Hour)
	s.Require().NoError(err)
	return result
}

func (s *ServiceSuite) expectResolve() {
	s.mockResolver.EXPECT().Resolve(gomock.Any(), testIssuerDID).Return(s.provider.PublicKey(), nil)
}

func (s *ServiceSuite) TestVerify_HappyPath() {
	issued := s.issue()

	s.expectResolve()
	s.mockRegistry.EXPECT().IsRevoked(gomock.Any(), issued.JTI).Return(false, nil)
	s.mockNonces.EXPECT().Consume(gomock.Any(), "challenge-1", frozenNow).Return(nil)

	verdict, err := s.verifier.Verify(context.Background(), issued.Token, "challenge-1")
	s.Require().NoError(err)
	s.True(verdict.Valid)
	s.Equal(issued.JTI, verdict.JTI)
	s.Equal("02:55:10", verdict.Claims["time"])

	events := s.sink.Events()
	s.Equal(audit.ActionVerified, events[len(events)-1].Action)
}

func (s *ServiceSuite) TestVerify_MalformedToken() {
	// No resolver, registry or nonce interaction may happen.
	verdict, err := s.verifier.Verify(context.Background(), "not-a-jwt", "challenge-1")
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(models.ReasonMalformed, verdict.Reason)
}

func (s *ServiceSuite) TestVerify_MissingNonce() {
	issued := s.issue()

	verdict, err := s.verifier.Verify(context.Background(), issued.Token, "")
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(models.ReasonReplay, verdict.Reason)
}

func (s *ServiceSuite) TestVerify_UnresolvableIssuer() {
	issued := s.issue()

	s.mockResolver.EXPECT().Resolve(gomock.Any(), testIssuerDID).Return(nil, errors.New("no did document"))

	verdict, err := s.verifier.Verify(context.Background(), issued.Token, "challenge-1")
	s.Require().NoError(err)
	s.Equal(models.ReasonUnresolvableIssuer, verdict.Reason)
}

func (s *ServiceSuite) TestVerify_BadSignature() {
	issued := s.issue()

	// Resolve to a key that did not sign the token.
	stranger, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.mockResolver.EXPECT().Resolve(gomock.Any(), testIssuerDID).Return(&stranger.PublicKey, nil)

	verdict, err := s.verifier.Verify(context.Background(), issued.Token, "challenge-1")
	s.Require().NoError(err)
	s.Equal(models.ReasonBadSignature, verdict.Reason)
}

func (s *ServiceSuite) TestVerify_TamperedClaims() {
	issued := s.issue()

	parts := strings.Split(issued.Token, ".")
	s.Require().Len(parts, 3)
	payload := []byte(parts[1])
	if payload[12] == 'A' {
		payload[12] = 'B'
	} else {
		payload[12] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	s.mockResolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(s.provider.PublicKey(), nil).AnyTimes()

	verdict, err := s.verifier.Verify(context.Background(), tampered, "challenge-1")
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.NotEqual(models.Reason(""), verdict.Reason)
}

func (s *ServiceSuite) TestVerify_ExpiredDoesNotBurnNonce() {
	issued := s.issue()

	late := frozenNow.Add(2 * time.Hour)
	verifier, err := NewVerifier(s.mockResolver, s.mockRegistry, s.mockNonces,
		WithVerifierClock(func() time.Time { return late }),
	)
	s.Require().NoError(err)

	s.expectResolve()
	// No Consume expectation: an expired token must leave the
	// challenge untouched.

	verdict, err := verifier.Verify(context.Background(), issued.Token, "challenge-1")
	s.Require().NoError(err)
	s.Equal(models.ReasonExpired, verdict.Reason)
}

func (s *ServiceSuite) TestVerify_RevokedDoesNotBurnNonce() {
	issued := s.issue()

	s.expectResolve()
	s.mockRegistry.EXPECT().IsRevoked(gomock.Any(), issued.JTI).Return(true, nil)

	verdict, err := s.verifier.Verify(context.Background(), issued.Token, "challenge-1")
	s.Require().NoError(err)
	s.Equal(models.ReasonRevoked, verdict.Reason)
}

func (s *ServiceSuite) TestVerify_UnknownJTINotRevoked() {
	issued := s.issue()

	s.expectResolve()
	s.mockRegistry.EXPECT().IsRevoked(gomock.Any(), issued.JTI).Return(false, sentinel.ErrNotFound)
	s.mockNonces.EXPECT().Consume(gomock.Any(), "challenge-1", frozenNow).Return(nil)

	verdict, err := s.verifier.Verify(context.Background(), issued.Token, "challenge-1")
	s.Require().NoError(err)
	s.True(verdict.Valid)
}

func (s *ServiceSuite) TestVerify_ReplayedNonce() {
	issued := s.issue()

	s.expectResolve()
	s.mockRegistry.EXPECT().IsRevoked(gomock.Any(), issued.JTI).Return(false, nil)
	s.mockNonces.EXPECT().Consume(gomock.Any(), "challenge-1", frozenNow).Return(sentinel.ErrAlreadyUsed)

	verdict, err := s.verifier.Verify(context.Background(), issued.Token, "challenge-1")
	s.Require().NoError(err)
	s.Equal(models.ReasonReplay, verdict.Reason)
}

func (s *ServiceSuite) TestVerify_RegistryUnavailableIsInfraError() {
	issued := s.issue()

	s.expectResolve()
	s.mockRegistry.EXPECT().IsRevoked(gomock.Any(), issued.JTI).Return(false, errors.New("connection refused"))

	verdict, err := s.verifier.Verify(context.Background(), issued.Token, "challenge-1")
	s.Error(err)
	s.Nil(verdict)
}

func (s *ServiceSuite) TestChallenge() {
	s.mockNonces.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	n, err := s.verifier.Challenge(context.Background(), time.Minute)
	s.Require().NoError(err)
	s.NotEmpty(n.Value)
	s.Equal(frozenNow.Add(time.Minute), n.ExpiresAt)
}
