// Package cacherepo implements the repository interfaces on top of the
// session cache store. Every slot is serialised as one JSON value;
// unreadable slots are treated as absent rather than failing the request.
package cacherepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/cache"
	"github.com/lojafacil/engine/internal/repositories"
)

const defaultClientSessionTTL = 10 * time.Minute

// SessionStateRepositoryDeps lists the dependencies for the repository.
type SessionStateRepositoryDeps struct {
	Store cache.Store
	// ClientSessionTTL bounds how long an idle client session slot
	// survives. Defaults to ten minutes, the sliding renewal window.
	ClientSessionTTL time.Duration
	// StateTTL bounds the remaining slots. Zero keeps them until
	// overwritten or purged.
	StateTTL time.Duration
}

// SessionStateRepository stores per-shopper state in the cache store.
type SessionStateRepository struct {
	store            cache.Store
	clientSessionTTL time.Duration
	stateTTL         time.Duration
}

// NewSessionStateRepository validates deps and builds the repository.
func NewSessionStateRepository(deps SessionStateRepositoryDeps) (*SessionStateRepository, error) {
	if deps.Store == nil {
		return nil, errors.New("cacherepo: store is required")
	}
	ttl := deps.ClientSessionTTL
	if ttl <= 0 {
		ttl = defaultClientSessionTTL
	}
	return &SessionStateRepository{
		store:            deps.Store,
		clientSessionTTL: ttl,
		stateTTL:         deps.StateTTL,
	}, nil
}

// Cart implements repositories.SessionStateRepository. A missing or
// unreadable slot yields an empty cart.
func (r *SessionStateRepository) Cart(ctx context.Context, sessionID string) (domain.Cart, error) {
	var cart domain.Cart
	err := r.load(ctx, sessionID, cache.KeyCart, &cart)
	if errors.Is(err, repositories.ErrNotFound) {
		return domain.Cart{}, nil
	}
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// SaveCart implements repositories.SessionStateRepository.
func (r *SessionStateRepository) SaveCart(ctx context.Context, sessionID string, cart domain.Cart) error {
	return r.save(ctx, sessionID, cache.KeyCart, cart, r.stateTTL)
}

// ClearCart implements repositories.SessionStateRepository.
func (r *SessionStateRepository) ClearCart(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, sessionID, cache.KeyCart)
}

// Quote implements repositories.SessionStateRepository.
func (r *SessionStateRepository) Quote(ctx context.Context, sessionID string) (domain.ShippingQuote, error) {
	var quote domain.ShippingQuote
	if err := r.load(ctx, sessionID, cache.KeyQuote, &quote); err != nil {
		return domain.ShippingQuote{}, err
	}
	return quote, nil
}

// SaveQuote implements repositories.SessionStateRepository.
func (r *SessionStateRepository) SaveQuote(ctx context.Context, sessionID string, quote domain.ShippingQuote) error {
	return r.save(ctx, sessionID, cache.KeyQuote, quote, r.stateTTL)
}

// ClearQuote implements repositories.SessionStateRepository.
func (r *SessionStateRepository) ClearQuote(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, sessionID, cache.KeyQuote)
}

// ClientSession implements repositories.SessionStateRepository.
func (r *SessionStateRepository) ClientSession(ctx context.Context, sessionID string) (domain.ClientSession, error) {
	var session domain.ClientSession
	if err := r.load(ctx, sessionID, cache.KeyClientSession, &session); err != nil {
		return domain.ClientSession{}, err
	}
	return session, nil
}

// SaveClientSession implements repositories.SessionStateRepository. The
// slot expires together with the session's sliding window.
func (r *SessionStateRepository) SaveClientSession(ctx context.Context, sessionID string, session domain.ClientSession) error {
	return r.save(ctx, sessionID, cache.KeyClientSession, session, r.clientSessionTTL)
}

// ClearClientSession implements repositories.SessionStateRepository.
func (r *SessionStateRepository) ClearClientSession(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, sessionID, cache.KeyClientSession)
}

// Identification implements repositories.SessionStateRepository.
func (r *SessionStateRepository) Identification(ctx context.Context, sessionID string) (domain.IdentificationSession, error) {
	var ident domain.IdentificationSession
	if err := r.load(ctx, sessionID, cache.KeyIdentification, &ident); err != nil {
		return domain.IdentificationSession{}, err
	}
	return ident, nil
}

// SaveIdentification implements repositories.SessionStateRepository.
func (r *SessionStateRepository) SaveIdentification(ctx context.Context, sessionID string, ident domain.IdentificationSession) error {
	return r.save(ctx, sessionID, cache.KeyIdentification, ident, r.stateTTL)
}

// ClearIdentification implements repositories.SessionStateRepository.
func (r *SessionStateRepository) ClearIdentification(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, sessionID, cache.KeyIdentification)
}

// Purge implements repositories.SessionStateRepository.
func (r *SessionStateRepository) Purge(ctx context.Context, sessionID string) error {
	return r.store.Purge(ctx, sessionID)
}

func (r *SessionStateRepository) load(ctx context.Context, scope string, key cache.Key, out any) error {
	raw, err := r.store.Get(ctx, scope, key)
	if err != nil {
		if cache.IsNotFound(err) {
			return repositories.ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// Corrupt slots are dropped and reported as absent.
		_ = r.store.Delete(ctx, scope, key)
		return repositories.ErrNotFound
	}
	return nil
}

func (r *SessionStateRepository) save(ctx context.Context, scope string, key cache.Key, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, scope, key, raw, ttl)
}
