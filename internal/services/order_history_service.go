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

var (
	errHistoryRepositoryRequired = errors.New("order history service: repository is required")
	errHistoryBackendRequired    = errors.New("order history service: backend is required")
	errHistoryTokensRequired     = errors.New("order history service: token manager is required")
)

// ErrHistorySessionRequired indicates no active client session exists;
// the shopper must identify again before listing orders.
var ErrHistorySessionRequired = errors.New("order history service: identification required")

// ErrHistoryUnavailable indicates the session store cannot fulfil the request.
var ErrHistoryUnavailable = errors.New("order history service: unavailable")

// OrderHistoryServiceDeps wires the order-history dependencies.
type OrderHistoryServiceDeps struct {
	Sessions repositories.SessionStateRepository
	Backend  OrderBackend
	Tokens   TokenManager
	Clock    func() time.Time
}

// OrderHistoryService lists a shopper's past orders behind the sliding
// client session: every successful access renews the window for its full
// duration from the access time.
type OrderHistoryService struct {
	sessions repositories.SessionStateRepository
	backend  OrderBackend
	tokens   TokenManager
	now      func() time.Time
}

// NewOrderHistoryService validates deps and builds the service.
func NewOrderHistoryService(deps OrderHistoryServiceDeps) (*OrderHistoryService, error) {
	if deps.Sessions == nil {
		return nil, errHistoryRepositoryRequired
	}
	if deps.Backend == nil {
		return nil, errHistoryBackendRequired
	}
	if deps.Tokens == nil {
		return nil, errHistoryTokensRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &OrderHistoryService{
		sessions: deps.Sessions,
		backend:  deps.Backend,
		tokens:   deps.Tokens,
		now:      clock,
	}, nil
}

// List returns the order history for the session's identified shopper. An
// absent or expired client session forces re-identification.
func (s *OrderHistoryService) List(ctx context.Context, sessionID string) ([]domain.OrderRecord, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return nil, ErrHistorySessionRequired
	}

	session, err := s.sessions.ClientSession(ctx, sid)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrHistorySessionRequired
		}
		return nil, ErrHistoryUnavailable
	}
	if !session.Active(s.now()) {
		s.dropSession(ctx, sid)
		return nil, ErrHistorySessionRequired
	}

	taxID, renewed, expiresAt, err := s.tokens.Renew(session.Token)
	if err != nil {
		s.dropSession(ctx, sid)
		return nil, ErrHistorySessionRequired
	}

	refreshed := domain.ClientSession{TaxID: taxID, Token: renewed, ExpiresAt: expiresAt}
	if err := s.sessions.SaveClientSession(ctx, sid, refreshed); err != nil {
		requestctx.Logger(ctx).Warn("client session not renewed", zap.Error(err))
	}

	return s.backend.ListOrders(ctx, taxID)
}

// Logout drops the client session.
func (s *OrderHistoryService) Logout(ctx context.Context, sessionID string) error {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return nil
	}
	if err := s.sessions.ClearClientSession(ctx, sid); err != nil {
		return ErrHistoryUnavailable
	}
	return nil
}

func (s *OrderHistoryService) dropSession(ctx context.Context, sessionID string) {
	if err := s.sessions.ClearClientSession(ctx, sessionID); err != nil {
		requestctx.Logger(ctx).Warn("expired client session not cleared", zap.Error(err))
	}
}
