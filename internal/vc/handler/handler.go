// Package handler is the HTTP layer over the credential engine.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"racepass/internal/nonce"
	"racepass/internal/vc/models"
	"racepass/internal/vc/service"
	"racepass/internal/vc/store"
	"racepass/internal/vc/token"
	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/httputil"
	"racepass/pkg/platform/sentinel"
)

// Challenge TTL bounds, applied to the caller-requested value.
const (
	minChallengeTTL     = 5 * time.Second
	maxChallengeTTL     = 10 * time.Minute
	defaultChallengeTTL = 60 * time.Second
)

// Issue TTL bounds.
const (
	minIssueTTL = 60 * time.Second
	maxIssueTTL = 365 * 24 * time.Hour
)

// Handler serves the issuer, verifier, holder and admin endpoints.
type Handler struct {
	issuer   *service.Issuer
	verifier *service.Verifier
	revoker  *service.Revoker
	creds    store.Store
	nonces   nonce.Store
	logger   *slog.Logger
}

// New wires the handler over the credential services.
func New(issuer *service.Issuer, verifier *service.Verifier, revoker *service.Revoker, creds store.Store, nonces nonce.Store, logger *slog.Logger) *Handler {
	return &Handler{
		issuer:   issuer,
		verifier: verifier,
		revoker:  revoker,
		creds:    creds,
		nonces:   nonces,
		logger:   logger,
	}
}

// Register mounts the public endpoints. Admin endpoints are registered
// separately so the router can wrap them in the admin token middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/issuer/credentials", h.HandleIssue)
	r.Get("/verifier/challenge", h.HandleChallenge)
	r.Post("/verifier/verify", h.HandleVerify)
	r.Get("/holder/credentials/{jti}", h.HandleHolderGet)
}

// RegisterAdmin mounts the admin endpoints on an authenticated router group.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/revoke", h.HandleRevoke)
	r.Get("/admin/db", h.HandleDBDump)
}

// IssueRequest is the issuance request body.
type IssueRequest struct {
	SubjectDID string        `json:"subject_did"`
	TTLSeconds int64         `json:"ttl_seconds"`
	Claims     models.Claims `json:"claims"`
}

// Validate checks the request before it reaches the issuer.
func (r *IssueRequest) Validate() error {
	if r.SubjectDID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "subject_did is required")
	}
	if r.TTLSeconds <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "ttl_seconds must be positive")
	}
	if r.Claims == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "claims is required")
	}
	return nil
}

// IssueResponse is the issuance response body.
type IssueResponse struct {
	Status  string         `json:"status"`
	JTI     string         `json:"jti"`
	Token   string         `json:"token"`
	Claims  models.Claims  `json:"claims"`
	Summary models.Summary `json:"summary"`
}

// HandleIssue signs and records a new credential.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndValidate[IssueRequest](w, r, h.logger)
	if !ok {
		return
	}

	ttl := clampDuration(time.Duration(req.TTLSeconds)*time.Second, minIssueTTL, maxIssueTTL)

	result, err := h.issuer.Issue(r.Context(), req.SubjectDID, req.Claims, ttl)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "issue failed", "subject_did", req.SubjectDID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, IssueResponse{
		Status:  string(models.StatusValid),
		JTI:     result.JTI,
		Token:   result.Token,
		Claims:  result.Claims,
		Summary: models.SummaryFromClaims(result.Claims),
	})
}

// ChallengeResponse is the nonce challenge response body.
type ChallengeResponse struct {
	Nonce      string    `json:"nonce"`
	ExpiresAt  time.Time `json:"expires_at"`
	TTLSeconds int64     `json:"ttl"`
}

// HandleChallenge issues a fresh verification nonce. The optional ttl
// query parameter is clamped to the allowed range.
func (h *Handler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	ttl := defaultChallengeTTL
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "ttl must be an integer number of seconds"))
			return
		}
		ttl = clampDuration(time.Duration(seconds)*time.Second, minChallengeTTL, maxChallengeTTL)
	}

	n, err := h.verifier.Challenge(r.Context(), ttl)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "challenge issuance failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue challenge"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ChallengeResponse{
		Nonce:      n.Value,
		ExpiresAt:  n.ExpiresAt,
		TTLSeconds: int64(ttl / time.Second),
	})
}

// VerifyRequest is the verification request body.
type VerifyRequest struct {
	Token string `json:"token"`
	Nonce string `json:"nonce"`
}

// Validate checks the request shape. An empty nonce is not rejected
// here; the verifier turns it into a replay verdict.
func (r *VerifyRequest) Validate() error {
	if r.Token == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "token is required")
	}
	return nil
}

// VerifyResponse is the verification response body. Reason is set only
// on invalid verdicts, claims only on valid ones.
type VerifyResponse struct {
	Result string        `json:"result"`
	Claims models.Claims `json:"claims,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// HandleVerify runs one verification pass and reports the verdict.
// Verdicts ride a 200 response; only infrastructure faults surface as
// HTTP errors.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndValidate[VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	verdict, err := h.verifier.Verify(r.Context(), req.Token, req.Nonce)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "verification unavailable", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification temporarily unavailable"))
		return
	}

	resp := VerifyResponse{}
	if verdict.Valid {
		resp.Result = "valid"
		resp.Claims = verdict.Claims
	} else {
		resp.Result = "invalid"
		resp.Reason = string(verdict.Reason)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HolderResponse is the holder retrieval response body. The token is
// byte-identical to the one returned at issuance.
type HolderResponse struct {
	JTI     string         `json:"jti"`
	Status  string         `json:"status"`
	Token   string         `json:"token"`
	Summary models.Summary `json:"summary"`
}

// HandleHolderGet returns a previously issued credential by jti.
// Read-only; never touches nonce or revocation state.
func (h *Handler) HandleHolderGet(w http.ResponseWriter, r *http.Request) {
	jti := chi.URLParam(r, "jti")

	rec, err := h.creds.FindByJTI(r.Context(), jti)
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "credential not found"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "holder lookup failed", "jti", jti, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential"))
		return
	}

	summary, err := summaryFromToken(rec.Token)
	if err != nil {
		h.logger.WarnContext(r.Context(), "stored token not summarizable", "jti", jti, "error", err)
	}

	httputil.WriteJSON(w, http.StatusOK, HolderResponse{
		JTI:     rec.JTI,
		Status:  string(rec.Status),
		Token:   rec.Token,
		Summary: summary,
	})
}

// RevokeRequest is the admin revocation request body.
type RevokeRequest struct {
	JTI string `json:"jti"`
}

// Validate checks the request shape.
func (r *RevokeRequest) Validate() error {
	if r.JTI == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "jti is required")
	}
	return nil
}

// HandleRevoke marks a credential revoked. Idempotent on repeats.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndValidate[RevokeRequest](w, r, h.logger)
	if !ok {
		return
	}

	if err := h.revoker.Revoke(r.Context(), req.JTI); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "revoked",
		"jti":    req.JTI,
	})
}

// DBDumpCredential is one credential row in the admin dump, with the
// token truncated to keep the dump skimmable.
type DBDumpCredential struct {
	JTI        string    `json:"jti"`
	SubjectDID string    `json:"subject_did"`
	Status     string    `json:"status"`
	Token      string    `json:"token"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// DBDumpNonce is one challenge row in the admin dump, value truncated
// so the dump cannot be replayed.
type DBDumpNonce struct {
	Value     string    `json:"value"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
}

// DBDumpResponse is the admin state dump.
type DBDumpResponse struct {
	CredentialCount int                `json:"credential_count"`
	Credentials     []DBDumpCredential `json:"credentials"`
	NonceCount      int                `json:"nonce_count"`
	Nonces          []DBDumpNonce      `json:"nonces"`
}

// HandleDBDump returns the current ledger state for audit and debug.
func (h *Handler) HandleDBDump(w http.ResponseWriter, r *http.Request) {
	records, err := h.creds.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "db dump failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials"))
		return
	}
	challenges, err := h.nonces.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "db dump failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list nonces"))
		return
	}

	dump := DBDumpResponse{
		CredentialCount: len(records),
		Credentials:     make([]DBDumpCredential, 0, len(records)),
		NonceCount:      len(challenges),
		Nonces:          make([]DBDumpNonce, 0, len(challenges)),
	}
	for _, rec := range records {
		dump.Credentials = append(dump.Credentials, DBDumpCredential{
			JTI:        rec.JTI,
			SubjectDID: rec.SubjectDID,
			Status:     string(rec.Status),
			Token:      truncateToken(rec.Token),
			IssuedAt:   rec.IssuedAt,
			ExpiresAt:  rec.ExpiresAt,
		})
	}
	for _, n := range challenges {
		dump.Nonces = append(dump.Nonces, DBDumpNonce{
			Value:     truncateToken(n.Value),
			IssuedAt:  n.IssuedAt,
			ExpiresAt: n.ExpiresAt,
			Consumed:  n.ConsumedAt != nil,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, dump)
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

func truncateToken(token string) string {
	const keep = 24
	if len(token) <= keep {
		return token
	}
	return token[:keep] + "..."
}

// summaryFromToken extracts the claims summary from a stored token
// without re-verifying it; the ledger copy was checked at issuance.
func summaryFromToken(tokenString string) (models.Summary, error) {
	decoded, err := token.DecodeUnverified(tokenString)
	if err != nil {
		return models.Summary{}, err
	}
	return models.SummaryFromClaims(decoded.Claims), nil
}
