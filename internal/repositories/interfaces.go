package repositories

import (
	"context"
	"errors"

	"github.com/lojafacil/engine/internal/domain"
)

// ErrNotFound reports that the requested state slot holds no value.
var ErrNotFound = errors.New("repository: not found")

// SessionStateRepository persists per-shopper state: the cart ledger,
// the shipping quote, the identification flow and the client session.
type SessionStateRepository interface {
	// Cart returns the session's cart, empty when none was stored yet.
	Cart(ctx context.Context, sessionID string) (domain.Cart, error)
	SaveCart(ctx context.Context, sessionID string, cart domain.Cart) error
	ClearCart(ctx context.Context, sessionID string) error

	// Quote returns the stored shipping quote or ErrNotFound.
	Quote(ctx context.Context, sessionID string) (domain.ShippingQuote, error)
	SaveQuote(ctx context.Context, sessionID string, quote domain.ShippingQuote) error
	ClearQuote(ctx context.Context, sessionID string) error

	// ClientSession returns the identified-customer session or ErrNotFound.
	ClientSession(ctx context.Context, sessionID string) (domain.ClientSession, error)
	SaveClientSession(ctx context.Context, sessionID string, session domain.ClientSession) error
	ClearClientSession(ctx context.Context, sessionID string) error

	// Identification returns the in-flight identification state or ErrNotFound.
	Identification(ctx context.Context, sessionID string) (domain.IdentificationSession, error)
	SaveIdentification(ctx context.Context, sessionID string, ident domain.IdentificationSession) error
	ClearIdentification(ctx context.Context, sessionID string) error

	// Purge removes all state held for the session.
	Purge(ctx context.Context, sessionID string) error
}

// CatalogRepository persists the shared catalog snapshot, the store
// configuration and the version marker used for invalidation.
type CatalogRepository interface {
	// Products returns the cached catalog or ErrNotFound when no
	// snapshot exists yet.
	Products(ctx context.Context) ([]domain.Product, error)
	SaveProducts(ctx context.Context, products []domain.Product) error

	// StoreConfig returns the cached store configuration or ErrNotFound.
	StoreConfig(ctx context.Context) (domain.StoreConfig, error)
	SaveStoreConfig(ctx context.Context, config domain.StoreConfig) error

	// ConfigVersion returns the stored version marker, empty when unset.
	ConfigVersion(ctx context.Context) (string, error)
	SaveConfigVersion(ctx context.Context, version string) error

	// Reset drops the snapshot, configuration and version marker.
	Reset(ctx context.Context) error
}
