package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lojafacil/engine/internal/address"
	"github.com/lojafacil/engine/internal/domain"
)

type shippingFixture struct {
	svc    *ShippingService
	repo   *stubSessionRepo
	be     *stubBackend
	lookup *stubLookup
	config *stubConfigProvider
}

func newShippingFixture(t *testing.T) *shippingFixture {
	t.Helper()
	repo := newStubSessionRepo()
	be := &stubBackend{options: []domain.CarrierOption{
		{Name: "PAC", Price: 20, ListPrice: 20, DeadlineDays: 8},
		{Name: "SEDEX", Price: 35, ListPrice: 35, DeadlineDays: 3},
	}}
	lookup := &stubLookup{addr: address.Address{Region: "SP", City: "São Paulo"}}
	config := &stubConfigProvider{}
	finder := &stubProductFinder{products: map[string]domain.Product{
		"p1": {ID: "p1", Weight: 0.5, Height: 10, Width: 10, Length: 10},
	}}

	svc, err := NewShippingService(ShippingServiceDeps{
		Sessions: repo,
		Backend:  be,
		Catalog:  finder,
		Config:   config,
		Lookup:   lookup,
		Clock:    func() time.Time { return time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &shippingFixture{svc: svc, repo: repo, be: be, lookup: lookup, config: config}
}

func seedCart(repo *stubSessionRepo, sessionID string, items ...domain.CartItem) {
	repo.carts[sessionID] = domain.Cart{Items: items}
}

func TestShippingServiceCalculateValidation(t *testing.T) {
	f := newShippingFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Calculate(ctx, "s1", "123"); !errors.Is(err, address.ErrInvalidPostalCode) {
		t.Fatalf("expected invalid postal code, got %v", err)
	}
	if _, err := f.svc.Calculate(ctx, "s1", "01310-100"); !errors.Is(err, ErrShippingEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}
}

func TestShippingServiceCalculateSelectsDefault(t *testing.T) {
	f := newShippingFixture(t)
	seedCart(f.repo, "s1", domain.CartItem{Key: "p1_Único", ProductID: "p1", Quantity: 2})

	result, err := f.svc.Calculate(context.Background(), "s1", "01310-100")
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if len(result.Options) != 2 {
		t.Fatalf("expected two options, got %d", len(result.Options))
	}
	if result.Selected.Service != "PAC" {
		t.Fatalf("expected first option auto-selected, got %q", result.Selected.Service)
	}
	if result.Selected.PostalCode != "01310100" {
		t.Fatalf("expected normalised postal code, got %q", result.Selected.PostalCode)
	}
	if f.repo.quotes["s1"].Service != "PAC" {
		t.Fatalf("expected quote persisted")
	}
	if f.be.quoteReq.Weight != 1.0 {
		t.Fatalf("expected aggregated weight 1.0, got %v", f.be.quoteReq.Weight)
	}
	// Volume 2000 gives an edge below the minimums.
	if f.be.quoteReq.Height != 15 || f.be.quoteReq.Width != 15 || f.be.quoteReq.Length != 20 {
		t.Fatalf("expected minimum dimensions, got %+v", f.be.quoteReq)
	}
}

func TestShippingServiceFreeRegionZeroesEconomy(t *testing.T) {
	f := newShippingFixture(t)
	f.config.config = domain.StoreConfig{ShippingSubsidy: 10}
	seedCart(f.repo, "s1", domain.CartItem{
		Key: "p1_Único", ProductID: "p1", Quantity: 1,
		FreeShippingRegions: []string{"SP", "RJ"},
	})

	result, err := f.svc.Calculate(context.Background(), "s1", "01310100")
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	byName := map[string]domain.CarrierOption{}
	for _, option := range result.Options {
		byName[option.Name] = option
	}
	if got := byName["PAC"]; got.Price != 0 || !got.Free {
		t.Fatalf("expected economy option zeroed, got %+v", got)
	}
	if got := byName["SEDEX"]; got.Price != 25 || !got.Discounted {
		t.Fatalf("expected subsidised price 25, got %+v", got)
	}
	if result.Selected.Service != "PAC" || result.Selected.Price != 0 {
		t.Fatalf("expected zero-priced option preferred, got %+v", result.Selected)
	}
}

func TestShippingServiceSubsidyAppliesUniformly(t *testing.T) {
	f := newShippingFixture(t)
	f.config.config = domain.StoreConfig{ShippingSubsidy: 25}
	seedCart(f.repo, "s1", domain.CartItem{Key: "p1_Único", ProductID: "p1", Quantity: 1})

	result, err := f.svc.Calculate(context.Background(), "s1", "01310100")
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	for _, option := range result.Options {
		switch option.Name {
		case "PAC":
			// Never below zero.
			if option.Price != 0 {
				t.Fatalf("expected clamped price 0, got %v", option.Price)
			}
		case "SEDEX":
			if option.Price != 10 {
				t.Fatalf("expected price 10, got %v", option.Price)
			}
		}
	}
}

func TestShippingServiceLookupOutageDisablesFreeShipping(t *testing.T) {
	f := newShippingFixture(t)
	f.lookup.err = address.ErrUnavailable
	seedCart(f.repo, "s1", domain.CartItem{
		Key: "p1_Único", ProductID: "p1", Quantity: 1,
		FreeShippingRegions: []string{"SP"},
	})

	result, err := f.svc.Calculate(context.Background(), "s1", "01310100")
	if err != nil {
		t.Fatalf("expected lookup outage to be non-fatal, got %v", err)
	}
	for _, option := range result.Options {
		if option.Free {
			t.Fatalf("expected free-shipping detection disabled, got %+v", option)
		}
	}
}

func TestShippingServiceUnknownPostalCode(t *testing.T) {
	f := newShippingFixture(t)
	f.lookup.err = address.ErrNotFound
	seedCart(f.repo, "s1", domain.CartItem{
		Key: "p1_Único", ProductID: "p1", Quantity: 1,
		FreeShippingRegions: []string{"SP"},
	})

	result, err := f.svc.Calculate(context.Background(), "s1", "01310100")
	if err != nil {
		t.Fatalf("expected unknown postal code to be non-fatal, got %v", err)
	}
	if len(result.Options) == 0 {
		t.Fatalf("expected carrier options despite unknown postal code")
	}
	if result.Destination.Region != "" {
		t.Fatalf("expected empty region, got %q", result.Destination.Region)
	}
	for _, option := range result.Options {
		if option.Free {
			t.Fatalf("expected free-shipping detection disabled, got %+v", option)
		}
	}
}

func TestShippingServiceRestoresPreviousSelection(t *testing.T) {
	f := newShippingFixture(t)
	seedCart(f.repo, "s1", domain.CartItem{Key: "p1_Único", ProductID: "p1", Quantity: 1})
	f.repo.quotes["s1"] = domain.ShippingQuote{
		Service:    "SEDEX",
		Price:      35,
		PostalCode: "01310100",
	}

	result, err := f.svc.Calculate(context.Background(), "s1", "01310100")
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if result.Selected.Service != "SEDEX" {
		t.Fatalf("expected stored selection restored, got %q", result.Selected.Service)
	}
}

func TestShippingServiceSelectByName(t *testing.T) {
	f := newShippingFixture(t)
	seedCart(f.repo, "s1", domain.CartItem{Key: "p1_Único", ProductID: "p1", Quantity: 1})

	if _, err := f.svc.Select(context.Background(), "s1", "SEDEX"); !errors.Is(err, ErrQuoteNotSelected) {
		t.Fatalf("expected ErrQuoteNotSelected before any calculation, got %v", err)
	}

	if _, err := f.svc.Calculate(context.Background(), "s1", "01310100"); err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	quote, err := f.svc.Select(context.Background(), "s1", "sedex")
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if quote.Service != "SEDEX" || quote.Price != 35 {
		t.Fatalf("unexpected selection: %+v", quote)
	}

	if _, err := f.svc.Select(context.Background(), "s1", "Transportadora X"); !errors.Is(err, ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}
}

func TestShippingServiceSelectedDetectsStaleCart(t *testing.T) {
	f := newShippingFixture(t)
	seedCart(f.repo, "s1", domain.CartItem{Key: "p1_Único", ProductID: "p1", Quantity: 1})

	if _, err := f.svc.Calculate(context.Background(), "s1", "01310100"); err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if _, err := f.svc.Selected(context.Background(), "s1"); err != nil {
		t.Fatalf("expected valid selection, got %v", err)
	}

	// Mutating the cart invalidates the fingerprint.
	seedCart(f.repo, "s1", domain.CartItem{Key: "p1_Único", ProductID: "p1", Quantity: 3})
	if _, err := f.svc.Selected(context.Background(), "s1"); !errors.Is(err, ErrQuoteStale) {
		t.Fatalf("expected ErrQuoteStale, got %v", err)
	}
	if _, ok := f.repo.quotes["s1"]; ok {
		t.Fatalf("expected stale quote cleared")
	}
}

func TestShippingServiceFallbackParcelForUnknownProduct(t *testing.T) {
	f := newShippingFixture(t)
	seedCart(f.repo, "s1", domain.CartItem{Key: "ghost_Único", ProductID: "ghost", Quantity: 2})

	if _, err := f.svc.Calculate(context.Background(), "s1", "01310100"); err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if f.be.quoteReq.Weight != 1.8 {
		t.Fatalf("expected fallback weight 1.8, got %v", f.be.quoteReq.Weight)
	}
	// Volume 12000 has a cube-root edge of ~22.9.
	if f.be.quoteReq.Height != 23 || f.be.quoteReq.Length != 23 {
		t.Fatalf("expected edge-derived dimensions, got %+v", f.be.quoteReq)
	}
}
