package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/lojafacil/engine/internal/domain"
)

func TestNewCatalogService(t *testing.T) {
	if _, err := NewCatalogService(CatalogServiceDeps{Backend: &stubBackend{}}); err == nil {
		t.Fatalf("expected error when repository missing")
	}
	if _, err := NewCatalogService(CatalogServiceDeps{Repository: &stubCatalogRepo{}}); err == nil {
		t.Fatalf("expected error when backend missing")
	}
}

func TestCatalogServiceRefreshSanitises(t *testing.T) {
	be := &stubBackend{products: []domain.Product{
		{ID: "p1", Name: "Caneca", Description: `<p>Linda caneca</p><script>alert(1)</script>`},
	}}
	repo := &stubCatalogRepo{}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: repo, Backend: be})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	products, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if strings.Contains(products[0].Description, "script") {
		t.Fatalf("expected script stripped, got %q", products[0].Description)
	}
	if strings.Contains(products[0].Summary, "<") {
		t.Fatalf("expected plain-text summary, got %q", products[0].Summary)
	}
	if repo.products == nil {
		t.Fatalf("expected snapshot cached")
	}
}

func TestCatalogServiceProductsFallsBackToRefresh(t *testing.T) {
	be := &stubBackend{products: []domain.Product{{ID: "p1", Name: "Caneca"}}}
	repo := &stubCatalogRepo{}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: repo, Backend: be})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	products, err := svc.Products(context.Background())
	if err != nil {
		t.Fatalf("products failed: %v", err)
	}
	if len(products) != 1 || products[0].ID != "p1" {
		t.Fatalf("unexpected products: %+v", products)
	}

	// Cached reads must not hit the backend again.
	be.productsErr = errors.New("down")
	if _, err := svc.Products(context.Background()); err != nil {
		t.Fatalf("cached read failed: %v", err)
	}
}

func TestCatalogServiceSearchFoldsAccents(t *testing.T) {
	repo := &stubCatalogRepo{products: []domain.Product{
		{ID: "p1", Name: "Caneca Mágica", Category: "Cozinha"},
		{ID: "p2", Name: "Camiseta", Category: "Vestuário", Attributes: []string{"Algodão"}},
		{ID: "p3", Name: "Garrafa", Description: "Mantém a bebida gelada por horas", Category: "Cozinha"},
	}}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: repo, Backend: &stubBackend{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matched, err := svc.Search(context.Background(), "magica", nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "p1" {
		t.Fatalf("expected accent-insensitive name match, got %+v", matched)
	}

	matched, err = svc.Search(context.Background(), "ALGODAO", nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "p2" {
		t.Fatalf("expected attribute match, got %+v", matched)
	}

	matched, err = svc.Search(context.Background(), "bebida gelada", nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "p3" {
		t.Fatalf("expected description match, got %+v", matched)
	}
}

func TestCatalogServiceSearchAttributeFilters(t *testing.T) {
	repo := &stubCatalogRepo{products: []domain.Product{
		{ID: "p1", Name: "Camiseta Lisa", Attributes: []string{"Algodão", "M"}},
		{ID: "p2", Name: "Camiseta Estampada", Attributes: []string{"Algodão"}},
		{ID: "p3", Name: "Caneca", Category: "Cozinha"},
	}}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: repo, Backend: &stubBackend{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every requested attribute must be present, folding accents.
	matched, err := svc.Search(context.Background(), "", []string{"algodao", "M"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "p1" {
		t.Fatalf("expected only fully matching product, got %+v", matched)
	}

	matched, err = svc.Search(context.Background(), "camiseta", []string{"M"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "p1" {
		t.Fatalf("expected query and filter combined, got %+v", matched)
	}

	matched, err = svc.Search(context.Background(), "", []string{"Couro"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matched) != 0 {
		t.Fatalf("expected no matches for absent attribute, got %+v", matched)
	}
}

func TestCatalogServiceCategories(t *testing.T) {
	repo := &stubCatalogRepo{products: []domain.Product{
		{ID: "p1", Category: "Cozinha"},
		{ID: "p2", Category: "cozinha"},
		{ID: "p3", Category: "Vestuário"},
		{ID: "p4"},
	}}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: repo, Backend: &stubBackend{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	categories, err := svc.Categories(context.Background())
	if err != nil {
		t.Fatalf("categories failed: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("expected deduplicated categories, got %#v", categories)
	}
}

func TestCatalogServiceConfigVersionChangeResets(t *testing.T) {
	be := &stubBackend{config: domain.StoreConfig{StoreName: "Loja", Version: "v2"}}
	repo := &stubCatalogRepo{
		products: []domain.Product{{ID: "p1"}},
		version:  "v1",
	}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: repo, Backend: be})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	config, err := svc.Config(context.Background())
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if config.StoreName != "Loja" {
		t.Fatalf("unexpected config: %+v", config)
	}
	if repo.resets != 1 {
		t.Fatalf("expected one snapshot reset, got %d", repo.resets)
	}
	if repo.version != "v2" {
		t.Fatalf("expected stored marker v2, got %q", repo.version)
	}
	if repo.products != nil {
		t.Fatalf("expected product snapshot dropped on version change")
	}
}

func TestCatalogServiceConfigSameVersionKeepsSnapshot(t *testing.T) {
	be := &stubBackend{config: domain.StoreConfig{Version: "v1"}}
	snapshot := []domain.Product{{ID: "p1"}}
	repo := &stubCatalogRepo{products: snapshot, version: "v1"}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: repo, Backend: be})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Config(context.Background()); err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if repo.resets != 0 {
		t.Fatalf("expected no reset, got %d", repo.resets)
	}
	if !reflect.DeepEqual(repo.products, snapshot) {
		t.Fatalf("expected snapshot untouched")
	}
}

func TestCatalogServiceConfigFallsBackToCache(t *testing.T) {
	cached := domain.StoreConfig{StoreName: "Loja Cache"}
	repo := &stubCatalogRepo{config: &cached}
	be := &stubBackend{configErr: errors.New("down")}
	svc, err := NewCatalogService(CatalogServiceDeps{Repository: repo, Backend: be})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	config, err := svc.Config(context.Background())
	if err != nil {
		t.Fatalf("expected cached fallback, got %v", err)
	}
	if config.StoreName != "Loja Cache" {
		t.Fatalf("unexpected config: %+v", config)
	}

	repo.config = nil
	if _, err := svc.Config(context.Background()); !errors.Is(err, ErrConfigUnavailable) {
		t.Fatalf("expected ErrConfigUnavailable, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("palavra ", 40)
	got := summarize(long, 40)
	if len([]rune(got)) > 41 {
		t.Fatalf("summary too long: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
	if short := summarize("curta", 40); short != "curta" {
		t.Fatalf("short text should pass through, got %q", short)
	}
}
