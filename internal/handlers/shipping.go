package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lojafacil/engine/internal/address"
	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/httpx"
	"github.com/lojafacil/engine/internal/services"
)

const maxShippingBodySize = 4 * 1024

type shippingService interface {
	Calculate(ctx context.Context, sessionID, postalCode string) (services.QuoteResult, error)
	Select(ctx context.Context, sessionID, serviceName string) (domain.ShippingQuote, error)
	Selected(ctx context.Context, sessionID string) (domain.ShippingQuote, error)
}

// ShippingHandlers drives the shipping-quote lifecycle for the session cart.
type ShippingHandlers struct {
	shipping shippingService
	limiter  rateLimiter
}

// NewShippingHandlers builds the quote endpoints. quotePerMinute caps
// quote calculations per session, since each one fans out to the carrier
// backend; zero or negative disables the cap.
func NewShippingHandlers(shipping shippingService, quotePerMinute int) *ShippingHandlers {
	var limiter rateLimiter
	if quotePerMinute > 0 {
		limiter = newSimpleRateLimiter(quotePerMinute, time.Minute)
	}
	return &ShippingHandlers{shipping: shipping, limiter: limiter}
}

// Routes wires the /shipping endpoints onto the provided router.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/quote", h.quote)
	r.Post("/select", h.selectOption)
	r.Get("/selected", h.selected)
}

func (h *ShippingHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(sessionID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many quote requests, slow down", http.StatusTooManyRequests))
		return
	}

	var req quoteRequest
	if err := decodeBody(r, maxShippingBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.shipping.Calculate(ctx, sessionID, req.PostalCode)
	if err != nil {
		h.writeShippingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildQuotePayload(result))
}

func (h *ShippingHandlers) selectOption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req selectRequest
	if err := decodeBody(r, maxShippingBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Service) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "service is required", http.StatusBadRequest))
		return
	}

	quote, err := h.shipping.Select(ctx, sessionID, req.Service)
	if err != nil {
		h.writeShippingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSelectedPayload(quote))
}

func (h *ShippingHandlers) selected(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	quote, err := h.shipping.Selected(ctx, sessionID)
	if err != nil {
		h.writeShippingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSelectedPayload(quote))
}

func (h *ShippingHandlers) writeShippingError(ctx context.Context, w http.ResponseWriter, err error) {
	if writeBackendError(ctx, w, err) {
		return
	}
	switch {
	case errors.Is(err, address.ErrInvalidPostalCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_postal_code", "postal code must have 8 digits", http.StatusBadRequest))
	case errors.Is(err, services.ErrShippingEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "the cart is empty", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrQuoteStale):
		httpx.WriteError(ctx, w, httpx.NewError("quote_stale", "the cart changed since this quote, recalculate", http.StatusConflict))
	case errors.Is(err, services.ErrQuoteNotSelected):
		httpx.WriteError(ctx, w, httpx.NewError("quote_not_selected", "no shipping quote is selected", http.StatusNotFound))
	case errors.Is(err, services.ErrOptionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("option_not_found", "shipping option not found", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping quotes are temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type quoteRequest struct {
	PostalCode string `json:"postal_code"`
}

type selectRequest struct {
	Service string `json:"service"`
}

type quoteResponse struct {
	Destination destinationPayload     `json:"destination"`
	Options     []carrierOptionPayload `json:"options"`
	Selected    selectedPayload        `json:"selected"`
}

type destinationPayload struct {
	PostalCode string `json:"postal_code"`
	Street     string `json:"street,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
}

type carrierOptionPayload struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	ListPrice    float64 `json:"list_price"`
	DeadlineDays int     `json:"deadline_days,omitempty"`
	Free         bool    `json:"free,omitempty"`
	Discounted   bool    `json:"discounted,omitempty"`
}

type selectedPayload struct {
	Service    string  `json:"service"`
	Price      float64 `json:"price"`
	PostalCode string  `json:"postal_code"`
	SelectedAt string  `json:"selected_at,omitempty"`
}

func buildQuotePayload(result services.QuoteResult) quoteResponse {
	options := make([]carrierOptionPayload, 0, len(result.Options))
	for _, option := range result.Options {
		options = append(options, carrierOptionPayload{
			Name:         option.Name,
			Price:        option.Price,
			ListPrice:    option.ListPrice,
			DeadlineDays: option.DeadlineDays,
			Free:         option.Free,
			Discounted:   option.Discounted,
		})
	}
	return quoteResponse{
		Destination: destinationPayload{
			PostalCode: result.Destination.PostalCode,
			Street:     result.Destination.Street,
			District:   result.Destination.District,
			City:       result.Destination.City,
			Region:     result.Destination.Region,
		},
		Options:  options,
		Selected: buildSelectedPayload(result.Selected),
	}
}

func buildSelectedPayload(quote domain.ShippingQuote) selectedPayload {
	payload := selectedPayload{
		Service:    quote.Service,
		Price:      quote.Price,
		PostalCode: quote.PostalCode,
	}
	if !quote.SelectedAt.IsZero() {
		payload.SelectedAt = quote.SelectedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
