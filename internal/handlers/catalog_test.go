package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/services"
)

type stubCatalogService struct {
	products   []domain.Product
	config     domain.StoreConfig
	err        error
	query      string
	attributes []string
	refreshed  bool
}

func (s *stubCatalogService) Products(context.Context) ([]domain.Product, error) {
	return s.products, s.err
}

func (s *stubCatalogService) Find(_ context.Context, productID string) (domain.Product, error) {
	if s.err != nil {
		return domain.Product{}, s.err
	}
	for _, product := range s.products {
		if product.ID == productID {
			return product, nil
		}
	}
	return domain.Product{}, services.ErrProductNotFound
}

func (s *stubCatalogService) Search(_ context.Context, query string, attributes []string) ([]domain.Product, error) {
	s.query = query
	s.attributes = attributes
	return s.products, s.err
}

func (s *stubCatalogService) Categories(context.Context) ([]string, error) {
	return []string{"Cozinha", "Vestuário"}, s.err
}

func (s *stubCatalogService) Config(context.Context) (domain.StoreConfig, error) {
	return s.config, s.err
}

func (s *stubCatalogService) Refresh(context.Context) ([]domain.Product, error) {
	s.refreshed = true
	return s.products, s.err
}

func catalogRouter(svc catalogService) chi.Router {
	r := chi.NewRouter()
	NewCatalogHandlers(svc).Routes(r)
	return r
}

func TestCatalogHandlersListProducts(t *testing.T) {
	svc := &stubCatalogService{products: []domain.Product{
		{ID: "p1", Name: "Caneca", Price: 32.44},
		{ID: "p2", Name: "Camiseta", Price: 59.9, Variants: []string{"P", "M", "G"}},
	}}

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	rr := httptest.NewRecorder()
	catalogRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body productListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(body.Products))
	}
	if body.Products[1].Variants[1] != "M" {
		t.Fatalf("expected variants carried through, got %+v", body.Products[1])
	}
}

func TestCatalogHandlersSearchForwardsQuery(t *testing.T) {
	svc := &stubCatalogService{}

	req := httptest.NewRequest(http.MethodGet, "/products?q=caneca", nil)
	rr := httptest.NewRecorder()
	catalogRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if svc.query != "caneca" {
		t.Fatalf("expected query forwarded, got %q", svc.query)
	}
}

func TestCatalogHandlersSearchForwardsAttributes(t *testing.T) {
	svc := &stubCatalogService{}

	req := httptest.NewRequest(http.MethodGet, "/products?attr=Algod%C3%A3o&attr=M", nil)
	rr := httptest.NewRecorder()
	catalogRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(svc.attributes) != 2 || svc.attributes[0] != "Algodão" || svc.attributes[1] != "M" {
		t.Fatalf("expected attribute filters forwarded, got %+v", svc.attributes)
	}
}

func TestCatalogHandlersGetProductNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products/ghost", nil)
	rr := httptest.NewRecorder()
	catalogRouter(&stubCatalogService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "product_not_found" {
		t.Fatalf("expected product_not_found, got %v", body["error"])
	}
}

func TestCatalogHandlersGetConfig(t *testing.T) {
	svc := &stubCatalogService{config: domain.StoreConfig{
		StoreName:       "Loja Teste",
		CheckoutChannel: domain.ChannelMessaging,
		ShippingSubsidy: 10,
		Version:         "v3",
	}}

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rr := httptest.NewRecorder()
	catalogRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body configPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.StoreName != "Loja Teste" || body.CheckoutChannel != "whatsapp" {
		t.Fatalf("unexpected config payload: %+v", body)
	}
	if body.ShippingSubsidy != 10 || body.Version != "v3" {
		t.Fatalf("unexpected config payload: %+v", body)
	}
}

func TestCatalogHandlersConfigUnavailable(t *testing.T) {
	svc := &stubCatalogService{err: services.ErrConfigUnavailable}

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rr := httptest.NewRecorder()
	catalogRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestCatalogHandlersRefresh(t *testing.T) {
	svc := &stubCatalogService{products: []domain.Product{{ID: "p1"}}}

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	rr := httptest.NewRecorder()
	catalogRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !svc.refreshed {
		t.Fatal("expected refresh to be invoked")
	}
}
