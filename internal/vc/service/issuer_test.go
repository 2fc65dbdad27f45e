package service

import (
	"context"
	"strings"
	"time"

	"racepass/internal/audit"
	"racepass/internal/vc/models"
	dErrors "racepass/pkg/domain-errors"
)

func raceClaims() models.Claims {
	return models.Claims{
		"event": "Rotterdam Marathon 2026",
		"bib":   "88",
		"name":  "Femke de Groot",
		"time":  "02:55:10",
	}
}

func (s *ServiceSuite) TestIssue_HappyPath() {
	result, err := s.issuer.Issue(context.Background(), "did:ebsi:runner-88", raceClaims(), time.Hour)
	s.Require().NoError(err)

	s.True(strings.HasPrefix(result.JTI, "urn:uuid:"))
	s.Len(strings.Split(result.Token, "."), 3)
	s.Equal(frozenNow, result.IssuedAt)
	s.Equal(frozenNow.Add(time.Hour), result.ExpiresAt)

	rec, err := s.creds.FindByJTI(context.Background(), result.JTI)
	s.Require().NoError(err)
	s.Equal(models.StatusValid, rec.Status)
	s.Equal(result.Token, rec.Token)
	s.Equal(testIssuerDID, rec.IssuerDID)
	s.Equal("did:ebsi:runner-88", rec.SubjectDID)

	events := s.sink.Events()
	s.Require().Len(events, 1)
	s.Equal(audit.ActionIssued, events[0].Action)
	s.Equal(result.JTI, events[0].JTI)
}

func (s *ServiceSuite) TestIssue_InjectsDefaultSchema() {
	result, err := s.issuer.Issue(context.Background(), "did:ebsi:runner-88", raceClaims(), time.Hour)
	s.Require().NoError(err)
	s.Equal(models.DefaultCredentialSchema, result.Claims["credentialSchema"])

	// An explicit schema survives untouched.
	claims := raceClaims()
	claims["credentialSchema"] = map[string]any{"id": "custom"}
	result, err = s.issuer.Issue(context.Background(), "did:ebsi:runner-88", claims, time.Hour)
	s.Require().NoError(err)
	s.Equal(map[string]any{"id": "custom"}, result.Claims["credentialSchema"])
}

func (s *ServiceSuite) TestIssue_DoesNotMutateInputClaims() {
	claims := raceClaims()
	_, err := s.issuer.Issue(context.Background(), "did:ebsi:runner-88", claims, time.Hour)
	s.Require().NoError(err)
	s.NotContains(claims, "credentialSchema")
}

func (s *ServiceSuite) TestIssue_UniqueJTIs() {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		result, err := s.issuer.Issue(context.Background(), "did:ebsi:runner-88", raceClaims(), time.Hour)
		s.Require().NoError(err)
		s.False(seen[result.JTI], "duplicate jti")
		seen[result.JTI] = true
	}
}

func (s *ServiceSuite) TestIssue_RejectsBadInput() {
	cases := []struct {
		name    string
		subject string
		claims  models.Claims
		ttl     time.Duration
	}{
		{"zero ttl", "did:ebsi:runner-88", raceClaims(), 0},
		{"negative ttl", "did:ebsi:runner-88", raceClaims(), -time.Minute},
		{"empty subject", "", raceClaims(), time.Hour},
		{"nil claims", "did:ebsi:runner-88", nil, time.Hour},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.issuer.Issue(context.Background(), tc.subject, tc.claims, tc.ttl)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "expected invalid input, got %v", err)
		})
	}

	all, err := s.creds.List(context.Background())
	s.Require().NoError(err)
	s.Empty(all, "rejected requests must not persist records")
	s.Empty(s.sink.Events())
}

func (s *ServiceSuite) TestIssue_RejectsOversizedClaims() {
	claims := raceClaims()
	claims["splits"] = strings.Repeat("x", maxClaimsBytes+1)

	_, err := s.issuer.Issue(context.Background(), "did:ebsi:runner-88", claims, time.Hour)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
