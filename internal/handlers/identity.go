package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/httpx"
	"github.com/lojafacil/engine/internal/services"
)

const maxIdentityBodySize = 8 * 1024

type identityService interface {
	RequestCode(ctx context.Context, cmd services.RequestCodeCommand) (services.RequestCodeResult, error)
	ValidateCode(ctx context.Context, sessionID, code string) (domain.CustomerProfile, error)
	ManualFallback(ctx context.Context, sessionID string, profile domain.CustomerProfile) error
	Current(ctx context.Context, sessionID string) (domain.IdentificationSession, error)
}

// IdentityHandlers drives the one-time-code identification flow.
type IdentityHandlers struct {
	identity identityService
}

func NewIdentityHandlers(identity identityService) *IdentityHandlers {
	return &IdentityHandlers{identity: identity}
}

// Routes wires the /identity endpoints onto the provided router.
func (h *IdentityHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/code", h.requestCode)
	r.Post("/validate", h.validateCode)
	r.Post("/manual", h.manualFallback)
	r.Get("/", h.current)
}

func (h *IdentityHandlers) requestCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req codeRequest
	if err := decodeBody(r, maxIdentityBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.identity.RequestCode(ctx, services.RequestCodeCommand{
		SessionID: sessionID,
		TaxID:     req.TaxID,
		Consent:   req.Consent,
	})
	if err != nil {
		h.writeIdentityError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, codeRequestResponse{
		State:       string(result.State),
		Destination: result.Destination,
		Profile:     buildProfilePayload(result.Profile),
	})
}

func (h *IdentityHandlers) validateCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req validateRequest
	if err := decodeBody(r, maxIdentityBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	profile, err := h.identity.ValidateCode(ctx, sessionID, req.Code)
	if err != nil {
		h.writeIdentityError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, identityResponse{
		State:   string(domain.IdentificationResolved),
		Profile: buildProfilePayload(profile),
	})
}

func (h *IdentityHandlers) manualFallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req profilePayload
	if err := decodeBody(r, maxIdentityBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	if err := h.identity.ManualFallback(ctx, sessionID, req.toDomain()); err != nil {
		h.writeIdentityError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, identityResponse{
		State:   string(domain.IdentificationManualFallback),
		Profile: req,
	})
}

func (h *IdentityHandlers) current(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}

	session, err := h.identity.Current(ctx, sessionID)
	if err != nil {
		h.writeIdentityError(ctx, w, err)
		return
	}

	payload := identityResponse{
		State:       string(session.State),
		Method:      string(session.Method),
		Destination: session.DestinationHint,
	}
	if session.State == domain.IdentificationResolved || session.State == domain.IdentificationManualFallback {
		payload.Profile = buildProfilePayload(session.Profile)
	}
	if !session.ExpiresAt.IsZero() {
		payload.ExpiresAt = session.ExpiresAt.UTC().Format(time.RFC3339)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *IdentityHandlers) writeIdentityError(ctx context.Context, w http.ResponseWriter, err error) {
	if writeBackendError(ctx, w, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvalidTaxID):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_tax_id", "tax ID must have 11 digits", http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_code", "code must have 6 digits", http.StatusBadRequest))
	case errors.Is(err, services.ErrConsentRequired):
		httpx.WriteError(ctx, w, httpx.NewError("consent_required", "consent is required before requesting a code", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCodeRejected):
		httpx.WriteError(ctx, w, httpx.NewError("code_rejected", "the code was rejected, try again", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrNoPendingCode):
		httpx.WriteError(ctx, w, httpx.NewError("no_pending_code", "no pending code request for this session", http.StatusConflict))
	case errors.Is(err, services.ErrIdentificationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("identification_not_found", "no identification for this session", http.StatusNotFound))
	case errors.Is(err, services.ErrIdentityUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("identity_unavailable", "identification is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type codeRequest struct {
	TaxID   string `json:"tax_id"`
	Consent bool   `json:"consent"`
}

type validateRequest struct {
	Code string `json:"code"`
}

type codeRequestResponse struct {
	State       string         `json:"state"`
	Destination string         `json:"destination,omitempty"`
	Profile     profilePayload `json:"profile,omitempty"`
}

type identityResponse struct {
	State       string         `json:"state"`
	Method      string         `json:"method,omitempty"`
	Destination string         `json:"destination,omitempty"`
	ExpiresAt   string         `json:"expires_at,omitempty"`
	Profile     profilePayload `json:"profile,omitempty"`
}

type profilePayload struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	TaxID      string `json:"tax_id,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	Reference  string `json:"reference,omitempty"`
}

func (p profilePayload) toDomain() domain.CustomerProfile {
	return domain.CustomerProfile{
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		TaxID:      p.TaxID,
		Phone:      p.Phone,
		Email:      p.Email,
		PostalCode: p.PostalCode,
		Street:     p.Street,
		Number:     p.Number,
		Complement: p.Complement,
		District:   p.District,
		City:       p.City,
		Region:     p.Region,
		Reference:  p.Reference,
	}
}

func buildProfilePayload(profile domain.CustomerProfile) profilePayload {
	return profilePayload{
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		TaxID:      profile.TaxID,
		Phone:      profile.Phone,
		Email:      profile.Email,
		PostalCode: profile.PostalCode,
		Street:     profile.Street,
		Number:     profile.Number,
		Complement: profile.Complement,
		District:   profile.District,
		City:       profile.City,
		Region:     profile.Region,
		Reference:  profile.Reference,
	}
}
