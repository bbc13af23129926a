package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/httpx"
	"github.com/lojafacil/engine/internal/services"
)

const maxCheckoutBodySize = 16 * 1024

type checkoutService interface {
	Confirm(ctx context.Context, sessionID string) (services.Summary, error)
	Submit(ctx context.Context, sessionID string, profile domain.CustomerProfile, returnTo string) (services.SubmitResult, error)
}

// CheckoutHandlers orchestrates the confirmation summary and the final
// order submission.
type CheckoutHandlers struct {
	checkout checkoutService
}

func NewCheckoutHandlers(checkout checkoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/summary", h.summary)
	r.Post("/submit", h.submit)
}

func (h *CheckoutHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	summary, err := h.checkout.Confirm(ctx, sessionID)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, summaryResponse{
		Subtotal: summary.Subtotal,
		Shipping: summary.Shipping,
		Total:    summary.Total,
		Service:  summary.Service,
	})
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := decodeBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.checkout.Submit(ctx, sessionID, req.Profile.toDomain(), req.ReturnTo)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, submitResponse{
		Channel:     string(result.Channel),
		RedirectURL: result.RedirectURL,
		OrderID:     result.OrderID,
		BackendID:   result.BackendID,
	})
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if writeBackendError(ctx, w, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrProfileIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("profile_incomplete", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "the cart is empty", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutQuoteRequired):
		httpx.WriteError(ctx, w, httpx.NewError("quote_required", "a shipping quote must be selected before checkout", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPostalCodeMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("postal_code_mismatch", "the delivery postal code differs from the quoted destination", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrQuoteStale):
		httpx.WriteError(ctx, w, httpx.NewError("quote_stale", "the cart changed since this quote, recalculate", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type submitRequest struct {
	Profile  profilePayload `json:"profile"`
	ReturnTo string         `json:"return_to"`
}

type summaryResponse struct {
	Subtotal float64 `json:"subtotal"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
	Service  string  `json:"service,omitempty"`
}

type submitResponse struct {
	Channel     string `json:"channel"`
	RedirectURL string `json:"redirect_url"`
	OrderID     string `json:"order_id"`
	BackendID   string `json:"backend_id,omitempty"`
}
