// Package services implements the commerce session engine: the cart
// ledger, the shipping-quote lifecycle, customer identification, checkout
// orchestration and the catalog cache, on top of the session repositories
// and the order-backend client.
package services

import (
	"context"
	"time"

	"github.com/lojafacil/engine/internal/address"
	"github.com/lojafacil/engine/internal/backend"
	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/jobs"
)

// CatalogBackend fetches the product list and store configuration.
type CatalogBackend interface {
	FetchProducts(ctx context.Context) ([]domain.Product, error)
	FetchConfig(ctx context.Context) (domain.StoreConfig, error)
}

// ShippingBackend quotes carrier options for an aggregated parcel.
type ShippingBackend interface {
	QuoteShipping(ctx context.Context, req backend.ShippingRequest) ([]domain.CarrierOption, error)
}

// IdentityBackend runs the one-time-code operations.
type IdentityBackend interface {
	RequestCode(ctx context.Context, taxID string) (backend.CodeRequestResult, error)
	ValidateCode(ctx context.Context, taxID, code string) (backend.CodeValidationResult, error)
}

// OrderBackend submits and lists orders.
type OrderBackend interface {
	ListOrders(ctx context.Context, taxID string) ([]domain.OrderRecord, error)
	RecordMessagingOrder(ctx context.Context, order domain.PendingOrder) (string, error)
	CreatePayment(ctx context.Context, order domain.PendingOrder, returnTo string) (string, error)
}

// PostalLookup resolves a destination postal code into an address.
type PostalLookup interface {
	Lookup(ctx context.Context, postalCode string) (address.Address, error)
}

// TokenManager issues and checks client-session tokens.
type TokenManager interface {
	Mint(taxID string) (string, time.Time, error)
	Verify(token string) (string, error)
	Renew(token string) (string, string, time.Time, error)
	TTL() time.Duration
}

// OrderPublisher emits order-recorded events for downstream consumers.
type OrderPublisher interface {
	PublishOrderRecorded(ctx context.Context, msg jobs.OrderRecordedMessage) error
}

// ProductFinder exposes the catalog reads the cart and shipping flows need.
type ProductFinder interface {
	Find(ctx context.Context, productID string) (domain.Product, error)
}

// ConfigProvider exposes the store configuration reads.
type ConfigProvider interface {
	Config(ctx context.Context) (domain.StoreConfig, error)
}
