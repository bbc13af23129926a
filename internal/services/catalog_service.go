package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/requestctx"
	"github.com/lojafacil/engine/internal/platform/textutil"
	"github.com/lojafacil/engine/internal/repositories"
)

const summaryMaxRunes = 160

var (
	errCatalogRepositoryRequired = errors.New("catalog service: repository is required")
	errCatalogBackendRequired    = errors.New("catalog service: backend is required")
)

// ErrCatalogUnavailable indicates neither the cache nor the backend could
// serve the catalog.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// ErrProductNotFound indicates the product is not in the current snapshot.
var ErrProductNotFound = errors.New("catalog service: product not found")

// ErrConfigUnavailable indicates no store configuration could be obtained.
var ErrConfigUnavailable = errors.New("catalog service: config unavailable")

// CatalogServiceDeps wires the catalog cache dependencies.
type CatalogServiceDeps struct {
	Repository repositories.CatalogRepository
	Backend    CatalogBackend
	Clock      func() time.Time
}

// CatalogService serves the product snapshot and the store configuration,
// refreshing both from the order backend and enforcing the version-marker
// invalidation rule.
type CatalogService struct {
	repo    repositories.CatalogRepository
	backend CatalogBackend
	now     func() time.Time

	descPolicy    *bluemonday.Policy
	summaryPolicy *bluemonday.Policy
}

// NewCatalogService validates deps and builds the service.
func NewCatalogService(deps CatalogServiceDeps) (*CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
	}
	if deps.Backend == nil {
		return nil, errCatalogBackendRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CatalogService{
		repo:          deps.Repository,
		backend:       deps.Backend,
		now:           clock,
		descPolicy:    bluemonday.UGCPolicy(),
		summaryPolicy: bluemonday.StrictPolicy(),
	}, nil
}

// Refresh fetches the catalog from the backend, sanitises descriptions and
// replaces the cached snapshot wholesale.
func (s *CatalogService) Refresh(ctx context.Context) ([]domain.Product, error) {
	fetched, err := s.backend.FetchProducts(ctx)
	if err != nil {
		return nil, ErrCatalogUnavailable
	}

	products := make([]domain.Product, 0, len(fetched))
	for _, product := range fetched {
		product.Description = strings.TrimSpace(s.descPolicy.Sanitize(product.Description))
		product.Summary = summarize(s.summaryPolicy.Sanitize(product.Description), summaryMaxRunes)
		products = append(products, product)
	}

	if err := s.repo.SaveProducts(ctx, products); err != nil {
		requestctx.Logger(ctx).Warn("catalog snapshot not cached", zap.Error(err))
	}
	return products, nil
}

// Products returns the cached snapshot, refreshing from the backend when
// no snapshot exists. An empty snapshot is a valid state, not an error.
func (s *CatalogService) Products(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.Products(ctx)
	if err == nil {
		return products, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		requestctx.Logger(ctx).Warn("catalog cache read failed", zap.Error(err))
	}
	return s.Refresh(ctx)
}

// Find returns the product with the given identifier.
func (s *CatalogService) Find(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, ErrProductNotFound
	}
	products, err := s.Products(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	for _, product := range products {
		if product.ID == id {
			return product, nil
		}
	}
	return domain.Product{}, ErrProductNotFound
}

// Search filters the snapshot by an accent- and case-insensitive match
// over name, description, category and attributes. When attribute
// filters are given a product must carry every one of them. An empty
// query with no filters returns everything.
func (s *CatalogService) Search(ctx context.Context, query string, attributes []string) ([]domain.Product, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" && len(attributes) == 0 {
		return products, nil
	}

	matched := make([]domain.Product, 0, len(products))
	for _, product := range products {
		if query != "" && !productMatches(product, query) {
			continue
		}
		if !hasAttributes(product, attributes) {
			continue
		}
		matched = append(matched, product)
	}
	return matched, nil
}

// hasAttributes reports whether the product carries every requested
// attribute, folding accents and case.
func hasAttributes(product domain.Product, attributes []string) bool {
	for _, want := range attributes {
		folded := textutil.Fold(want)
		if folded == "" {
			continue
		}
		found := false
		for _, attribute := range product.Attributes {
			if textutil.Fold(attribute) == folded {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Categories returns the distinct category names, sorted.
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[string]string{}
	for _, product := range products {
		category := strings.TrimSpace(product.Category)
		if category == "" {
			continue
		}
		seen[textutil.Fold(category)] = category
	}

	categories := make([]string, 0, len(seen))
	for _, category := range seen {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories, nil
}

// Config returns the store configuration. The backend value wins; on a
// version-marker change the whole shared snapshot is reset before the new
// configuration is stored. Backend failures fall back to the cached copy.
func (s *CatalogService) Config(ctx context.Context) (domain.StoreConfig, error) {
	fetched, err := s.backend.FetchConfig(ctx)
	if err != nil {
		cached, cacheErr := s.repo.StoreConfig(ctx)
		if cacheErr != nil {
			return domain.StoreConfig{}, ErrConfigUnavailable
		}
		requestctx.Logger(ctx).Warn("config fetch failed, serving cached copy", zap.Error(err))
		return cached, nil
	}

	if err := s.applyVersionMarker(ctx, fetched.Version); err != nil {
		requestctx.Logger(ctx).Warn("config version marker not applied", zap.Error(err))
	}
	if err := s.repo.SaveStoreConfig(ctx, fetched); err != nil {
		requestctx.Logger(ctx).Warn("store config not cached", zap.Error(err))
	}
	return fetched, nil
}

// applyVersionMarker drops the shared snapshot when the published version
// differs from the stored marker, then records the new marker.
func (s *CatalogService) applyVersionMarker(ctx context.Context, version string) error {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil
	}

	stored, err := s.repo.ConfigVersion(ctx)
	if err != nil {
		return err
	}
	if stored == version {
		return nil
	}

	if stored != "" {
		if err := s.repo.Reset(ctx); err != nil {
			return err
		}
		requestctx.Logger(ctx).Info("catalog cache reset on version change",
			zap.String("previous", stored),
			zap.String("current", version),
		)
	}
	return s.repo.SaveConfigVersion(ctx, version)
}

func productMatches(product domain.Product, query string) bool {
	if textutil.ContainsFold(product.Name, query) {
		return true
	}
	if textutil.ContainsFold(product.Description, query) {
		return true
	}
	if textutil.ContainsFold(product.Category, query) {
		return true
	}
	for _, attribute := range product.Attributes {
		if textutil.ContainsFold(attribute, query) {
			return true
		}
	}
	return false
}

// summarize collapses whitespace and cuts at a word boundary.
func summarize(text string, maxRunes int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}

	cut := maxRunes
	for cut > 0 && runes[cut] != ' ' {
		cut--
	}
	if cut == 0 {
		cut = maxRunes
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}
