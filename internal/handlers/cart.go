package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/httpx"
	"github.com/lojafacil/engine/internal/services"
)

const maxCartBodySize = 16 * 1024

type cartService interface {
	Get(ctx context.Context, sessionID string) (domain.Cart, error)
	AddItem(ctx context.Context, cmd services.AddItemCommand) (domain.Cart, error)
	ChangeQuantity(ctx context.Context, sessionID, itemKey string, delta int) (domain.Cart, error)
	RemoveItem(ctx context.Context, sessionID, itemKey string) (domain.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

// CartHandlers exposes the session cart ledger.
type CartHandlers struct {
	carts cartService
}

func NewCartHandlers(carts cartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemKey}", h.changeQuantity)
	r.Delete("/items/{itemKey}", h.removeItem)
	r.Delete("/", h.clearCart)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.Get(ctx, sessionID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := decodeBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product_id is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddItemCommand{
		SessionID: sessionID,
		ProductID: req.ProductID,
		Variant:   req.Variant,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) changeQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	itemKey := strings.TrimSpace(chi.URLParam(r, "itemKey"))
	if itemKey == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item key is required", http.StatusBadRequest))
		return
	}

	var req changeQuantityRequest
	if err := decodeBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Delta == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delta must be non-zero", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.ChangeQuantity(ctx, sessionID, itemKey, req.Delta)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	itemKey := strings.TrimSpace(chi.URLParam(r, "itemKey"))
	if itemKey == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item key is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.RemoveItem(ctx, sessionID, itemKey)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	if err := h.carts.Clear(ctx, sessionID); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(domain.Cart{}))
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrVariantRequired):
		httpx.WriteError(ctx, w, httpx.NewError("variant_required", "a variant must be chosen for this product", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUnavailable), errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Variant   string `json:"variant"`
	Quantity  int    `json:"quantity"`
}

type changeQuantityRequest struct {
	Delta int `json:"delta"`
}

type cartResponse struct {
	Items     []cartItemPayload `json:"items"`
	Subtotal  float64           `json:"subtotal"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	Key       string  `json:"key"`
	ProductID string  `json:"product_id"`
	Variant   string  `json:"variant"`
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
}

func buildCartPayload(cart domain.Cart) cartResponse {
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemPayload{
			Key:       item.Key,
			ProductID: item.ProductID,
			Variant:   item.Variant,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	payload := cartResponse{Items: items, Subtotal: cart.Subtotal()}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = cart.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
