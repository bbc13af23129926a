package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/httpx"
	"github.com/lojafacil/engine/internal/services"
)

type catalogService interface {
	Products(ctx context.Context) ([]domain.Product, error)
	Find(ctx context.Context, productID string) (domain.Product, error)
	Search(ctx context.Context, query string, attributes []string) ([]domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Config(ctx context.Context) (domain.StoreConfig, error)
	Refresh(ctx context.Context) ([]domain.Product, error)
}

// CatalogHandlers exposes the read-only product catalog and the store
// configuration.
type CatalogHandlers struct {
	catalog catalogService
}

func NewCatalogHandlers(catalog catalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/config", h.getConfig)
	r.Post("/refresh", h.refresh)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	attributes := r.URL.Query()["attr"]
	var (
		products []domain.Product
		err      error
	)
	if query != "" || len(attributes) > 0 {
		products, err = h.catalog.Search(ctx, query, attributes)
	} else {
		products, err = h.catalog.Products(ctx)
	}
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]productPayload, 0, len(products))
	for _, product := range products {
		payload = append(payload, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{Products: payload})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.Find(ctx, productID)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.Categories(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string][]string{"categories": categories})
}

func (h *CatalogHandlers) getConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	config, err := h.catalog.Config(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, configPayload{
		StoreName:       config.StoreName,
		CheckoutChannel: string(config.Channel()),
		ShippingSubsidy: config.ShippingSubsidy,
		Version:         config.Version,
	})
}

func (h *CatalogHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	products, err := h.catalog.Refresh(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"products": len(products)})
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrConfigUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("config_unavailable", "store configuration is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type productListResponse struct {
	Products []productPayload `json:"products"`
}

type productPayload struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Category            string   `json:"category,omitempty"`
	Description         string   `json:"description,omitempty"`
	Summary             string   `json:"summary,omitempty"`
	Price               float64  `json:"price"`
	Variants            []string `json:"variants,omitempty"`
	Attributes          []string `json:"attributes,omitempty"`
	Image               string   `json:"image,omitempty"`
	ExtraImages         []string `json:"extra_images,omitempty"`
	FreeShippingRegions []string `json:"free_shipping_regions,omitempty"`
}

type configPayload struct {
	StoreName       string  `json:"store_name"`
	CheckoutChannel string  `json:"checkout_channel"`
	ShippingSubsidy float64 `json:"shipping_subsidy"`
	Version         string  `json:"version,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:                  product.ID,
		Name:                product.Name,
		Category:            product.Category,
		Description:         product.Description,
		Summary:             product.Summary,
		Price:               product.Price,
		Variants:            product.Variants,
		Attributes:          product.Attributes,
		Image:               product.Image,
		ExtraImages:         product.ExtraImages,
		FreeShippingRegions: product.FreeShippingRegions,
	}
}
