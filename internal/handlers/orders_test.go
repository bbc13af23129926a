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

type stubOrderHistoryService struct {
	records   []domain.OrderRecord
	err       error
	loggedOut bool
}

func (s *stubOrderHistoryService) List(context.Context, string) ([]domain.OrderRecord, error) {
	return s.records, s.err
}

func (s *stubOrderHistoryService) Logout(context.Context, string) error {
	s.loggedOut = true
	return s.err
}

func orderRouter(svc orderHistoryService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(svc).Routes(r)
	return r
}

func TestOrderHandlersList(t *testing.T) {
	svc := &stubOrderHistoryService{records: []domain.OrderRecord{
		{ID: "o-1", Status: "pago", Date: "2026-02-10", Total: 170, TrackingCode: "BR123"},
		{ID: "o-2", Status: "aguardando pagamento", Total: 89.9, PaymentLink: "https://pay.example.com/o-2"},
	}}

	req := newSessionRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(body.Orders))
	}
	if body.Orders[0].TrackingCode != "BR123" || body.Orders[1].PaymentLink == "" {
		t.Fatalf("unexpected orders payload: %+v", body.Orders)
	}
}

func TestOrderHandlersListRequiresIdentification(t *testing.T) {
	svc := &stubOrderHistoryService{err: services.ErrHistorySessionRequired}

	req := newSessionRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "identification_required" {
		t.Fatalf("expected identification_required, got %v", body["error"])
	}
}

func TestOrderHandlersLogout(t *testing.T) {
	svc := &stubOrderHistoryService{}

	req := newSessionRequest(http.MethodPost, "/logout", nil)
	rr := httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !svc.loggedOut {
		t.Fatal("expected logout to be invoked")
	}
}
