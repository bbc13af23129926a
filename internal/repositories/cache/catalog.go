package cacherepo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/cache"
	"github.com/lojafacil/engine/internal/repositories"
)

// CatalogRepositoryDeps lists the dependencies for the catalog repository.
type CatalogRepositoryDeps struct {
	Store cache.Store
	// SnapshotTTL bounds how long the catalog snapshot is served before
	// a refresh is forced. Zero keeps it until invalidated.
	SnapshotTTL time.Duration
}

// CatalogRepository stores the shared catalog snapshot under the global
// scope of the cache store.
type CatalogRepository struct {
	store       cache.Store
	snapshotTTL time.Duration
}

// NewCatalogRepository validates deps and builds the repository.
func NewCatalogRepository(deps CatalogRepositoryDeps) (*CatalogRepository, error) {
	if deps.Store == nil {
		return nil, errors.New("cacherepo: store is required")
	}
	return &CatalogRepository{store: deps.Store, snapshotTTL: deps.SnapshotTTL}, nil
}

// Products implements repositories.CatalogRepository.
func (r *CatalogRepository) Products(ctx context.Context) ([]domain.Product, error) {
	raw, err := r.store.Get(ctx, cache.GlobalScope, cache.KeyCatalog)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		_ = r.store.Delete(ctx, cache.GlobalScope, cache.KeyCatalog)
		return nil, repositories.ErrNotFound
	}
	return products, nil
}

// SaveProducts implements repositories.CatalogRepository.
func (r *CatalogRepository) SaveProducts(ctx context.Context, products []domain.Product) error {
	raw, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, cache.GlobalScope, cache.KeyCatalog, raw, r.snapshotTTL)
}

// StoreConfig implements repositories.CatalogRepository.
func (r *CatalogRepository) StoreConfig(ctx context.Context) (domain.StoreConfig, error) {
	raw, err := r.store.Get(ctx, cache.GlobalScope, cache.KeyStoreConfig)
	if err != nil {
		if cache.IsNotFound(err) {
			return domain.StoreConfig{}, repositories.ErrNotFound
		}
		return domain.StoreConfig{}, err
	}

	var config domain.StoreConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		_ = r.store.Delete(ctx, cache.GlobalScope, cache.KeyStoreConfig)
		return domain.StoreConfig{}, repositories.ErrNotFound
	}
	return config, nil
}

// SaveStoreConfig implements repositories.CatalogRepository.
func (r *CatalogRepository) SaveStoreConfig(ctx context.Context, config domain.StoreConfig) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, cache.GlobalScope, cache.KeyStoreConfig, raw, r.snapshotTTL)
}

// ConfigVersion implements repositories.CatalogRepository.
func (r *CatalogRepository) ConfigVersion(ctx context.Context) (string, error) {
	raw, err := r.store.Get(ctx, cache.GlobalScope, cache.KeyConfigVersion)
	if err != nil {
		if cache.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// SaveConfigVersion implements repositories.CatalogRepository.
func (r *CatalogRepository) SaveConfigVersion(ctx context.Context, version string) error {
	return r.store.Set(ctx, cache.GlobalScope, cache.KeyConfigVersion, []byte(strings.TrimSpace(version)), 0)
}

// Reset implements repositories.CatalogRepository.
func (r *CatalogRepository) Reset(ctx context.Context) error {
	return r.store.Purge(ctx, cache.GlobalScope)
}
