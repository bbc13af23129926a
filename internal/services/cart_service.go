package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/requestctx"
	"github.com/lojafacil/engine/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the session store cannot fulfil the request.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartItemNotFound indicates the item key is not in the ledger.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrVariantRequired indicates the product needs a variant choice before
// it can enter the cart.
var ErrVariantRequired = errors.New("cart service: variant is required")

// CartServiceDeps wires the session store and catalog dependencies.
type CartServiceDeps struct {
	Sessions repositories.SessionStateRepository
	Catalog  ProductFinder
	Clock    func() time.Time
}

// CartService owns the per-session cart ledger. Every mutation persists
// the whole ledger and invalidates the selected shipping quote.
type CartService struct {
	sessions repositories.SessionStateRepository
	catalog  ProductFinder
	now      func() time.Time
}

// NewCartService validates deps and builds the service.
func NewCartService(deps CartServiceDeps) (*CartService, error) {
	if deps.Sessions == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CartService{sessions: deps.Sessions, catalog: deps.Catalog, now: clock}, nil
}

// Get returns the session's cart ledger, empty when none exists.
func (s *CartService) Get(ctx context.Context, sessionID string) (domain.Cart, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}
	cart, err := s.sessions.Cart(ctx, sid)
	if err != nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	return cart, nil
}

// AddItemCommand describes one cart insertion.
type AddItemCommand struct {
	SessionID string
	ProductID string
	Variant   string
	Quantity  int
}

// AddItem inserts or increments the (product, variant) line. The unit
// price is normalised from the catalog entry at insertion time so the
// ledger never stores locale-formatted strings.
func (s *CartService) AddItem(ctx context.Context, cmd AddItemCommand) (domain.Cart, error) {
	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}

	product, err := s.catalog.Find(ctx, cmd.ProductID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return domain.Cart{}, fmt.Errorf("%w: unknown product", ErrCartInvalidInput)
		}
		return domain.Cart{}, ErrCartUnavailable
	}

	variant := strings.TrimSpace(cmd.Variant)
	if product.HasVariants() {
		if variant == "" {
			return domain.Cart{}, ErrVariantRequired
		}
		if !variantOffered(product.Variants, variant) {
			return domain.Cart{}, fmt.Errorf("%w: unknown variant %q", ErrCartInvalidInput, variant)
		}
	} else {
		variant = domain.DefaultVariant
	}

	quantity := cmd.Quantity
	if quantity < 1 {
		quantity = 1
	}

	cart, err := s.sessions.Cart(ctx, sid)
	if err != nil {
		return domain.Cart{}, ErrCartUnavailable
	}

	key := domain.ItemKey(product.ID, variant)
	merged := false
	for i := range cart.Items {
		if cart.Items[i].Key == key {
			cart.Items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		price := product.Price
		if price == 0 && strings.TrimSpace(product.RawPrice) != "" {
			price = domain.ParseMoney(product.RawPrice)
		}
		cart.Items = append(cart.Items, domain.CartItem{
			Key:                 key,
			ProductID:           product.ID,
			Variant:             variant,
			Title:               product.Name,
			UnitPrice:           price,
			Quantity:            quantity,
			Image:               product.Image,
			FreeShippingRegions: append([]string(nil), product.FreeShippingRegions...),
		})
	}

	return s.persist(ctx, sid, cart)
}

// ChangeQuantity applies a delta to the item's quantity. A result of zero
// or less removes the item rather than keeping a zero line.
func (s *CartService) ChangeQuantity(ctx context.Context, sessionID, itemKey string, delta int) (domain.Cart, error) {
	sid := strings.TrimSpace(sessionID)
	key := strings.TrimSpace(itemKey)
	if sid == "" || key == "" || delta == 0 {
		return domain.Cart{}, ErrCartInvalidInput
	}

	cart, err := s.sessions.Cart(ctx, sid)
	if err != nil {
		return domain.Cart{}, ErrCartUnavailable
	}

	idx := indexOfItem(cart.Items, key)
	if idx < 0 {
		return domain.Cart{}, ErrCartItemNotFound
	}

	cart.Items[idx].Quantity += delta
	if cart.Items[idx].Quantity <= 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	}

	return s.persist(ctx, sid, cart)
}

// RemoveItem removes the item by key.
func (s *CartService) RemoveItem(ctx context.Context, sessionID, itemKey string) (domain.Cart, error) {
	sid := strings.TrimSpace(sessionID)
	key := strings.TrimSpace(itemKey)
	if sid == "" || key == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}

	cart, err := s.sessions.Cart(ctx, sid)
	if err != nil {
		return domain.Cart{}, ErrCartUnavailable
	}

	idx := indexOfItem(cart.Items, key)
	if idx < 0 {
		return domain.Cart{}, ErrCartItemNotFound
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)

	return s.persist(ctx, sid, cart)
}

// Clear drops the ledger and the quote in one step.
func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return ErrCartInvalidInput
	}
	if err := s.sessions.ClearCart(ctx, sid); err != nil {
		return ErrCartUnavailable
	}
	if err := s.sessions.ClearQuote(ctx, sid); err != nil {
		requestctx.Logger(ctx).Warn("quote not cleared with cart", zap.Error(err))
	}
	return nil
}

// persist saves the ledger and invalidates the shipping quote, which is
// only valid for the cart state it was computed under.
func (s *CartService) persist(ctx context.Context, sessionID string, cart domain.Cart) (domain.Cart, error) {
	cart.UpdatedAt = s.now().UTC()
	if err := s.sessions.SaveCart(ctx, sessionID, cart); err != nil {
		return domain.Cart{}, ErrCartUnavailable
	}
	if err := s.sessions.ClearQuote(ctx, sessionID); err != nil {
		requestctx.Logger(ctx).Warn("quote not invalidated after cart change", zap.Error(err))
	}
	return cart, nil
}

func variantOffered(offered []string, variant string) bool {
	for _, candidate := range offered {
		if strings.EqualFold(strings.TrimSpace(candidate), variant) {
			return true
		}
	}
	return false
}

func indexOfItem(items []domain.CartItem, key string) int {
	for i, item := range items {
		if item.Key == key {
			return i
		}
	}
	return -1
}
