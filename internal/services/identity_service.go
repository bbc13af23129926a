package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/requestctx"
	"github.com/lojafacil/engine/internal/repositories"
)

const (
	taxIDLength = 11
	codeLength  = 6

	defaultIdentificationTTL = 15 * time.Minute
)

var (
	errIdentityRepositoryRequired = errors.New("identity service: repository is required")
	errIdentityBackendRequired    = errors.New("identity service: backend is required")
	errIdentityTokensRequired     = errors.New("identity service: token manager is required")
)

// ErrConsentRequired indicates the shopper has not acknowledged the
// lookup consent; no network call is made without it.
var ErrConsentRequired = errors.New("identity service: consent is required")

// ErrInvalidTaxID indicates the tax identifier is not eleven digits.
var ErrInvalidTaxID = errors.New("identity service: tax ID must have 11 digits")

// ErrInvalidCode indicates the one-time code is not six digits.
var ErrInvalidCode = errors.New("identity service: code must have 6 digits")

// ErrCodeRejected indicates the backend refused the one-time code; the
// flow stays at the code-requested step.
var ErrCodeRejected = errors.New("identity service: code rejected")

// ErrNoPendingCode indicates code validation was attempted without an
// outstanding code request.
var ErrNoPendingCode = errors.New("identity service: no pending code request")

// ErrIdentificationNotFound indicates no identification state exists for
// the session.
var ErrIdentificationNotFound = errors.New("identity service: not found")

// ErrIdentityUnavailable indicates the session store cannot fulfil the request.
var ErrIdentityUnavailable = errors.New("identity service: unavailable")

// IdentityServiceDeps wires the identification-flow dependencies.
type IdentityServiceDeps struct {
	Sessions repositories.SessionStateRepository
	Backend  IdentityBackend
	Tokens   TokenManager
	// TTL bounds how long an unresolved identification stays pending.
	TTL   time.Duration
	Clock func() time.Time
}

// IdentityService runs the one-time-code identification flow. A profile is
// only trusted for checkout prefill after an immediate match or a
// validated code, never from an unconfirmed lookup.
type IdentityService struct {
	sessions repositories.SessionStateRepository
	backend  IdentityBackend
	tokens   TokenManager
	ttl      time.Duration
	now      func() time.Time
}

// NewIdentityService validates deps and builds the service.
func NewIdentityService(deps IdentityServiceDeps) (*IdentityService, error) {
	if deps.Sessions == nil {
		return nil, errIdentityRepositoryRequired
	}
	if deps.Backend == nil {
		return nil, errIdentityBackendRequired
	}
	if deps.Tokens == nil {
		return nil, errIdentityTokensRequired
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultIdentificationTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &IdentityService{
		sessions: deps.Sessions,
		backend:  deps.Backend,
		tokens:   deps.Tokens,
		ttl:      ttl,
		now:      clock,
	}, nil
}

// RequestCodeCommand starts the identification flow.
type RequestCodeCommand struct {
	SessionID string
	TaxID     string
	// Consent records the shopper's acknowledgment. Without it the
	// request is parked awaiting consent and no lookup is issued.
	Consent bool
}

// RequestCodeResult is the outcome of a code request.
type RequestCodeResult struct {
	State domain.IdentificationState
	// Destination is the masked contact the code was sent to.
	Destination string
	// Profile is populated only on the immediate legacy path.
	Profile domain.CustomerProfile
}

// RequestCode asks the backend to challenge the tax ID. Requesting twice
// for the same identifier is safe: the stored state is simply replaced and
// only the latest outstanding code is honoured by the backend.
func (s *IdentityService) RequestCode(ctx context.Context, cmd RequestCodeCommand) (RequestCodeResult, error) {
	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" {
		return RequestCodeResult{}, ErrIdentityUnavailable
	}

	taxID := digitsOnly(cmd.TaxID)
	if len(taxID) != taxIDLength {
		return RequestCodeResult{}, ErrInvalidTaxID
	}

	if !cmd.Consent {
		ident := domain.IdentificationSession{
			TaxID:     taxID,
			State:     domain.IdentificationAwaitingConsent,
			ExpiresAt: s.now().Add(s.ttl),
		}
		if err := s.sessions.SaveIdentification(ctx, sid, ident); err != nil {
			return RequestCodeResult{}, ErrIdentityUnavailable
		}
		return RequestCodeResult{}, ErrConsentRequired
	}

	outcome, err := s.backend.RequestCode(ctx, taxID)
	if err != nil {
		return RequestCodeResult{}, err
	}

	now := s.now()
	ident := domain.IdentificationSession{
		TaxID:     taxID,
		ExpiresAt: now.Add(s.ttl),
	}

	switch {
	case outcome.Found && outcome.RequiresCode:
		ident.State = domain.IdentificationCodeRequested
		ident.DestinationHint = outcome.Destination
	case outcome.Found:
		// Legacy customers are released without a code.
		ident.State = domain.IdentificationResolved
		ident.Method = domain.ResolutionImmediate
		ident.Profile = outcome.Profile
	default:
		ident.State = domain.IdentificationManualFallback
	}

	if err := s.sessions.SaveIdentification(ctx, sid, ident); err != nil {
		return RequestCodeResult{}, ErrIdentityUnavailable
	}

	if ident.State == domain.IdentificationResolved {
		s.openClientSession(ctx, sid, taxID)
	}

	return RequestCodeResult{
		State:       ident.State,
		Destination: ident.DestinationHint,
		Profile:     ident.Profile,
	}, nil
}

// ValidateCode checks the one-time code and, on success, releases the
// profile and opens a client session. A rejected code leaves the flow at
// the code-requested step so the shopper can retry.
func (s *IdentityService) ValidateCode(ctx context.Context, sessionID, code string) (domain.CustomerProfile, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.CustomerProfile{}, ErrIdentityUnavailable
	}

	code = digitsOnly(code)
	if len(code) != codeLength {
		return domain.CustomerProfile{}, ErrInvalidCode
	}

	ident, err := s.sessions.Identification(ctx, sid)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.CustomerProfile{}, ErrNoPendingCode
		}
		return domain.CustomerProfile{}, ErrIdentityUnavailable
	}
	if ident.State != domain.IdentificationCodeRequested || s.now().After(ident.ExpiresAt) {
		return domain.CustomerProfile{}, ErrNoPendingCode
	}

	outcome, err := s.backend.ValidateCode(ctx, ident.TaxID, code)
	if err != nil {
		return domain.CustomerProfile{}, err
	}
	if !outcome.Valid {
		return domain.CustomerProfile{}, ErrCodeRejected
	}

	ident.State = domain.IdentificationResolved
	ident.Method = domain.ResolutionCode
	ident.Profile = outcome.Profile
	ident.ExpiresAt = s.now().Add(s.ttl)
	if err := s.sessions.SaveIdentification(ctx, sid, ident); err != nil {
		return domain.CustomerProfile{}, ErrIdentityUnavailable
	}

	s.openClientSession(ctx, sid, ident.TaxID)
	return ident.Profile, nil
}

// ManualFallback records a hand-filled profile for an identifier the
// backend does not know. The previously resolved buffer, if any, is
// replaced.
func (s *IdentityService) ManualFallback(ctx context.Context, sessionID string, profile domain.CustomerProfile) error {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return ErrIdentityUnavailable
	}

	taxID := digitsOnly(profile.TaxID)
	if len(taxID) != taxIDLength {
		return ErrInvalidTaxID
	}
	profile.TaxID = taxID

	ident := domain.IdentificationSession{
		TaxID:     taxID,
		Profile:   profile,
		State:     domain.IdentificationManualFallback,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.sessions.SaveIdentification(ctx, sid, ident); err != nil {
		return ErrIdentityUnavailable
	}
	return nil
}

// Current returns the identification state for the session.
func (s *IdentityService) Current(ctx context.Context, sessionID string) (domain.IdentificationSession, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.IdentificationSession{}, ErrIdentificationNotFound
	}

	ident, err := s.sessions.Identification(ctx, sid)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.IdentificationSession{}, ErrIdentificationNotFound
		}
		return domain.IdentificationSession{}, ErrIdentityUnavailable
	}
	if s.now().After(ident.ExpiresAt) {
		return domain.IdentificationSession{}, ErrIdentificationNotFound
	}
	return ident, nil
}

// openClientSession mints a token so the shopper can reopen their order
// history without re-identifying. Failures are logged, not surfaced: the
// identification itself already succeeded.
func (s *IdentityService) openClientSession(ctx context.Context, sessionID, taxID string) {
	token, expiresAt, err := s.tokens.Mint(taxID)
	if err != nil {
		requestctx.Logger(ctx).Warn("client session token not minted", zap.Error(err))
		return
	}
	session := domain.ClientSession{TaxID: taxID, Token: token, ExpiresAt: expiresAt}
	if err := s.sessions.SaveClientSession(ctx, sessionID, session); err != nil {
		requestctx.Logger(ctx).Warn("client session not stored", zap.Error(err))
	}
}

func digitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
