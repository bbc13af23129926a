package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lojafacil/engine/internal/address"
	"github.com/lojafacil/engine/internal/backend"
	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/requestctx"
	"github.com/lojafacil/engine/internal/platform/textutil"
	"github.com/lojafacil/engine/internal/repositories"
)

// Parcel fallbacks for items whose product record is gone from the
// catalog snapshot.
const (
	fallbackItemWeight = 0.9
	fallbackItemVolume = 6000

	minParcelHeight = 15
	minParcelWidth  = 15
	minParcelLength = 20

	priceMatchTolerance = 0.01
)

var (
	errShippingRepositoryRequired = errors.New("shipping service: repository is required")
	errShippingBackendRequired    = errors.New("shipping service: backend is required")
	errShippingCatalogRequired    = errors.New("shipping service: catalog is required")
	errShippingLookupRequired     = errors.New("shipping service: postal lookup is required")
	errShippingConfigRequired     = errors.New("shipping service: config provider is required")
)

// ErrShippingEmptyCart indicates there is nothing to quote.
var ErrShippingEmptyCart = errors.New("shipping service: cart is empty")

// ErrShippingUnavailable indicates the session store cannot fulfil the request.
var ErrShippingUnavailable = errors.New("shipping service: unavailable")

// ErrQuoteStale indicates the cart changed while the quote was in flight
// or since it was selected; the caller must recalculate.
var ErrQuoteStale = errors.New("shipping service: quote is stale")

// ErrQuoteNotSelected indicates no carrier option was chosen yet.
var ErrQuoteNotSelected = errors.New("shipping service: no quote selected")

// ErrOptionNotFound indicates the named carrier option was not offered
// for the current parcel and destination.
var ErrOptionNotFound = errors.New("shipping service: option not found")

// ShippingServiceDeps wires the quote-engine dependencies.
type ShippingServiceDeps struct {
	Sessions repositories.SessionStateRepository
	Backend  ShippingBackend
	Catalog  ProductFinder
	Config   ConfigProvider
	Lookup   PostalLookup
	Clock    func() time.Time
}

// ShippingService computes parcel aggregates, quotes carrier options and
// tracks the selected quote, which stays valid only for the postal code
// and cart fingerprint captured at selection time.
type ShippingService struct {
	sessions repositories.SessionStateRepository
	backend  ShippingBackend
	catalog  ProductFinder
	config   ConfigProvider
	lookup   PostalLookup
	now      func() time.Time
}

// NewShippingService validates deps and builds the service.
func NewShippingService(deps ShippingServiceDeps) (*ShippingService, error) {
	if deps.Sessions == nil {
		return nil, errShippingRepositoryRequired
	}
	if deps.Backend == nil {
		return nil, errShippingBackendRequired
	}
	if deps.Catalog == nil {
		return nil, errShippingCatalogRequired
	}
	if deps.Config == nil {
		return nil, errShippingConfigRequired
	}
	if deps.Lookup == nil {
		return nil, errShippingLookupRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ShippingService{
		sessions: deps.Sessions,
		backend:  deps.Backend,
		catalog:  deps.Catalog,
		config:   deps.Config,
		lookup:   deps.Lookup,
		now:      clock,
	}, nil
}

// QuoteResult is the outcome of one quote calculation.
type QuoteResult struct {
	Destination address.Address
	Options     []domain.CarrierOption
	Selected    domain.ShippingQuote
	Fingerprint string
}

// Calculate quotes carrier options for the session's cart and destination.
// The address lookup and the carrier quote run concurrently; pricing rules
// are applied only after both settle. A selection is persisted: a quote
// previously chosen for the same postal code is restored when a returned
// option still matches it by name and price, otherwise the default option
// is selected.
func (s *ShippingService) Calculate(ctx context.Context, sessionID, postalCode string) (QuoteResult, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return QuoteResult{}, ErrShippingUnavailable
	}

	code, err := address.NormalizePostalCode(postalCode)
	if err != nil {
		return QuoteResult{}, err
	}

	cart, err := s.sessions.Cart(ctx, sid)
	if err != nil {
		return QuoteResult{}, ErrShippingUnavailable
	}
	if len(cart.Items) == 0 {
		return QuoteResult{}, ErrShippingEmptyCart
	}
	fingerprint := cart.Fingerprint()

	parcel := s.aggregateParcel(ctx, cart)
	parcel.PostalCode = code

	var (
		wg       sync.WaitGroup
		dest     address.Address
		destErr  error
		options  []domain.CarrierOption
		quoteErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		dest, destErr = s.lookup.Lookup(ctx, code)
	}()
	go func() {
		defer wg.Done()
		options, quoteErr = s.backend.QuoteShipping(ctx, parcel)
	}()
	wg.Wait()

	if quoteErr != nil {
		return QuoteResult{}, quoteErr
	}
	if destErr != nil {
		// Lookup failures, including codes ViaCEP does not know, are
		// non-fatal; free-shipping detection is simply disabled
		// without a resolved region.
		requestctx.Logger(ctx).Warn("postal lookup failed", zap.Error(destErr))
		dest = address.Address{PostalCode: code}
	}

	options = s.applyPricing(ctx, cart, options, dest.Region)

	// A late response must not repopulate a quote for a cart that
	// changed while the calls were in flight.
	current, err := s.sessions.Cart(ctx, sid)
	if err != nil {
		return QuoteResult{}, ErrShippingUnavailable
	}
	if current.Fingerprint() != fingerprint {
		return QuoteResult{}, ErrQuoteStale
	}

	selected := s.chooseOption(ctx, sid, code, options)
	quote := domain.ShippingQuote{
		Service:     selected.Name,
		Price:       selected.Price,
		PostalCode:  code,
		Fingerprint: fingerprint,
		SelectedAt:  s.now().UTC(),
	}
	if err := s.sessions.SaveQuote(ctx, sid, quote); err != nil {
		return QuoteResult{}, ErrShippingUnavailable
	}

	return QuoteResult{
		Destination: dest,
		Options:     options,
		Selected:    quote,
		Fingerprint: fingerprint,
	}, nil
}

// Select chooses a carrier option by name. The backend is re-quoted for
// the destination stored with the last calculation, so the persisted
// price is never taken from the caller.
func (s *ShippingService) Select(ctx context.Context, sessionID, serviceName string) (domain.ShippingQuote, error) {
	sid := strings.TrimSpace(sessionID)
	name := strings.TrimSpace(serviceName)
	if sid == "" || name == "" {
		return domain.ShippingQuote{}, ErrOptionNotFound
	}

	stored, err := s.sessions.Quote(ctx, sid)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.ShippingQuote{}, ErrQuoteNotSelected
		}
		return domain.ShippingQuote{}, ErrShippingUnavailable
	}

	result, err := s.Calculate(ctx, sid, stored.PostalCode)
	if err != nil {
		return domain.ShippingQuote{}, err
	}

	for _, option := range result.Options {
		if strings.EqualFold(strings.TrimSpace(option.Name), name) {
			quote := domain.ShippingQuote{
				Service:     option.Name,
				Price:       option.Price,
				PostalCode:  result.Selected.PostalCode,
				Fingerprint: result.Fingerprint,
				SelectedAt:  s.now().UTC(),
			}
			if err := s.sessions.SaveQuote(ctx, sid, quote); err != nil {
				return domain.ShippingQuote{}, ErrShippingUnavailable
			}
			return quote, nil
		}
	}
	return domain.ShippingQuote{}, ErrOptionNotFound
}

// Selected returns the chosen quote after checking it is still valid for
// the current cart. A stale quote is cleared and reported as such.
func (s *ShippingService) Selected(ctx context.Context, sessionID string) (domain.ShippingQuote, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.ShippingQuote{}, ErrQuoteNotSelected
	}

	quote, err := s.sessions.Quote(ctx, sid)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.ShippingQuote{}, ErrQuoteNotSelected
		}
		return domain.ShippingQuote{}, ErrShippingUnavailable
	}

	cart, err := s.sessions.Cart(ctx, sid)
	if err != nil {
		return domain.ShippingQuote{}, ErrShippingUnavailable
	}
	if cart.Fingerprint() != quote.Fingerprint {
		if err := s.sessions.ClearQuote(ctx, sid); err != nil {
			requestctx.Logger(ctx).Warn("stale quote not cleared", zap.Error(err))
		}
		return domain.ShippingQuote{}, ErrQuoteStale
	}
	return quote, nil
}

// aggregateParcel folds the cart into one parcel. Dimensions come from a
// cube of the total volume, floored to the carrier minimums; items whose
// product is gone from the snapshot use fixed per-unit fallbacks.
func (s *ShippingService) aggregateParcel(ctx context.Context, cart domain.Cart) backend.ShippingRequest {
	var weight, volume float64
	for _, item := range cart.Items {
		qty := float64(item.Quantity)
		if qty < 1 {
			qty = 1
		}

		product, err := s.catalog.Find(ctx, item.ProductID)
		if err != nil {
			weight += fallbackItemWeight * qty
			volume += fallbackItemVolume * qty
			continue
		}
		weight += orDefault(product.Weight, fallbackItemWeight) * qty
		volume += orDefault(product.Height, minParcelHeight) *
			orDefault(product.Width, 20) *
			orDefault(product.Length, 20) * qty
	}

	edge := math.Cbrt(volume)
	return backend.ShippingRequest{
		Weight: weight,
		Height: maxInt(minParcelHeight, int(math.Ceil(edge))),
		Width:  maxInt(minParcelWidth, int(math.Ceil(edge))),
		Length: maxInt(minParcelLength, int(math.Ceil(edge))),
	}
}

// applyPricing applies the store rules to the raw carrier prices. When the
// destination region is on any item's free-shipping list, economy-tier
// services are zeroed and the rest get the flat subsidy; otherwise the
// subsidy, when configured, applies uniformly. Prices never go below zero.
func (s *ShippingService) applyPricing(ctx context.Context, cart domain.Cart, options []domain.CarrierOption, region string) []domain.CarrierOption {
	var subsidy float64
	if config, err := s.config.Config(ctx); err == nil {
		subsidy = config.ShippingSubsidy
	} else {
		requestctx.Logger(ctx).Warn("store config unavailable, quoting without subsidy", zap.Error(err))
	}

	freeRegion := region != "" && cartHasFreeRegion(cart, region)

	priced := make([]domain.CarrierOption, len(options))
	for i, option := range options {
		option.ListPrice = option.Price
		switch {
		case freeRegion && isEconomyService(option.Name):
			option.Price = 0
			option.Free = true
		case freeRegion || subsidy > 0:
			discounted := math.Max(0, option.ListPrice-subsidy)
			option.Discounted = subsidy > 0 && discounted < option.ListPrice
			option.Price = discounted
		}
		priced[i] = option
	}
	return priced
}

// chooseOption restores a previously selected quote for the same postal
// code when an option still matches it, otherwise falls back to the
// default: the first option, with any zero-priced option preferred.
func (s *ShippingService) chooseOption(ctx context.Context, sessionID, postalCode string, options []domain.CarrierOption) domain.CarrierOption {
	if len(options) == 0 {
		return domain.CarrierOption{}
	}

	if stored, err := s.sessions.Quote(ctx, sessionID); err == nil && stored.PostalCode == postalCode {
		for _, option := range options {
			if option.Name == stored.Service && math.Abs(option.Price-stored.Price) < priceMatchTolerance {
				return option
			}
		}
	}

	preferred := options[0]
	for _, option := range options {
		if option.Price == 0 {
			preferred = option
		}
	}
	return preferred
}

func cartHasFreeRegion(cart domain.Cart, region string) bool {
	for _, item := range cart.Items {
		for _, candidate := range item.FreeShippingRegions {
			if strings.EqualFold(strings.TrimSpace(candidate), region) {
				return true
			}
		}
	}
	return false
}

// isEconomyService matches the economy tier by name, ignoring case and
// accents ("PAC", "Econômico").
func isEconomyService(name string) bool {
	return textutil.ContainsFold(name, "pac") || textutil.ContainsFold(name, "economico")
}

func orDefault(value, fallback float64) float64 {
	if value <= 0 {
		return fallback
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
