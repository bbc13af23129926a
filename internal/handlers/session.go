package handlers

import (
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/lojafacil/engine/internal/platform/httpx"
	"github.com/lojafacil/engine/internal/platform/requestctx"
)

const (
	sessionHeader    = "X-Session-ID"
	sessionCookie    = "engine_session"
	sessionCookieAge = 30 * 24 * 60 * 60
)

// SessionMiddleware resolves the shopper session identifier from the
// X-Session-ID header or the session cookie, minting a fresh ULID when
// neither carries a valid one. The resolved identifier is stored on the
// request context and echoed back on the response so clients can adopt it.
func SessionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := sessionIDFromRequest(r)
			if sessionID == "" {
				sessionID = ulid.Make().String()
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookie,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   sessionCookieAge,
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(sessionHeader, sessionID)
			ctx := requestctx.WithSessionID(r.Context(), sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionIDFromRequest(r *http.Request) string {
	if candidate := strings.TrimSpace(r.Header.Get(sessionHeader)); candidate != "" {
		if id, err := ulid.ParseStrict(strings.ToUpper(candidate)); err == nil {
			return id.String()
		}
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if id, err := ulid.ParseStrict(strings.ToUpper(strings.TrimSpace(cookie.Value))); err == nil {
			return id.String()
		}
	}
	return ""
}

// requireSession extracts the session identifier placed on the context by
// SessionMiddleware, writing a 400 envelope when the route is reached
// without one.
func requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if strings.TrimSpace(sessionID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "a shopper session is required", http.StatusBadRequest))
		return "", false
	}
	return sessionID, true
}
