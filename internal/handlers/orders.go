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

type orderHistoryService interface {
	List(ctx context.Context, sessionID string) ([]domain.OrderRecord, error)
	Logout(ctx context.Context, sessionID string) error
}

// OrderHandlers serves the identified shopper's order history.
type OrderHandlers struct {
	orders orderHistoryService
}

func NewOrderHandlers(orders orderHistoryService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.list)
	r.Post("/logout", h.logout)
}

func (h *OrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	records, err := h.orders.List(ctx, sessionID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := make([]orderRecordPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, orderRecordPayload{
			ID:           record.ID,
			Status:       record.Status,
			Date:         record.Date,
			ItemsText:    record.ItemsText,
			Total:        record.Total,
			PaymentLink:  record.PaymentLink,
			TrackingCode: record.TrackingCode,
		})
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Orders: payload})
}

func (h *OrderHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	if err := h.orders.Logout(ctx, sessionID); err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if writeBackendError(ctx, w, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrHistorySessionRequired):
		httpx.WriteError(ctx, w, httpx.NewError("identification_required", "identify yourself to view order history", http.StatusUnauthorized))
	case errors.Is(err, services.ErrHistoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order history is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type orderListResponse struct {
	Orders []orderRecordPayload `json:"orders"`
}

type orderRecordPayload struct {
	ID           string  `json:"id"`
	Status       string  `json:"status,omitempty"`
	Date         string  `json:"date,omitempty"`
	ItemsText    string  `json:"items_text,omitempty"`
	Total        float64 `json:"total"`
	PaymentLink  string  `json:"payment_link,omitempty"`
	TrackingCode string  `json:"tracking_code,omitempty"`
}
