// Package handlers exposes the storefront engine over HTTP. Handlers
// translate between JSON payloads and the service layer; all state is
// addressed by the shopper session carried on each request.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/lojafacil/engine/internal/backend"
	"github.com/lojafacil/engine/internal/platform/httpx"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

const defaultBodyLimit = 16 * 1024

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func decodeBody(r *http.Request, limit int64, target any) error {
	data, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errors.New("invalid JSON payload")
	}
	return nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeBackendError maps order-backend failures onto the response
// envelope. Business messages pass through where safe; transport
// failures get a generic upstream error. Returns false when err is not a
// backend failure.
func writeBackendError(ctx context.Context, w http.ResponseWriter, err error) bool {
	var businessErr *backend.BusinessError
	if errors.As(err, &businessErr) {
		httpx.WriteError(ctx, w, httpx.NewError("backend_rejected", businessErr.Message, http.StatusUnprocessableEntity))
		return true
	}
	if errors.Is(err, backend.ErrUnavailable) {
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "order backend is unavailable", http.StatusBadGateway))
		return true
	}
	return false
}
