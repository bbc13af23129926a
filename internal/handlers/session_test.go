package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/lojafacil/engine/internal/platform/requestctx"
)

func sessionRecorder(t *testing.T) (http.Handler, *string) {
	t.Helper()
	var seen string
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.SessionID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return SessionMiddleware()(handler), &seen
}

func TestSessionMiddlewareMintsIdentifier(t *testing.T) {
	handler, seen := sessionRecorder(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if *seen == "" {
		t.Fatal("expected a session identifier on the context")
	}
	if _, err := ulid.ParseStrict(*seen); err != nil {
		t.Fatalf("expected a valid ULID, got %q: %v", *seen, err)
	}
	if rr.Header().Get(sessionHeader) != *seen {
		t.Fatalf("expected header echo %q, got %q", *seen, rr.Header().Get(sessionHeader))
	}

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != *seen {
		t.Fatalf("expected session cookie set, got %+v", cookie)
	}
	if !cookie.HttpOnly {
		t.Fatal("expected session cookie to be http-only")
	}
}

func TestSessionMiddlewareAdoptsHeader(t *testing.T) {
	handler, seen := sessionRecorder(t)
	existing := ulid.Make().String()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(sessionHeader, existing)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if *seen != existing {
		t.Fatalf("expected session %q adopted, got %q", existing, *seen)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("expected no new cookie for an existing session")
	}
}

func TestSessionMiddlewareFallsBackToCookie(t *testing.T) {
	handler, seen := sessionRecorder(t)
	existing := ulid.Make().String()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: existing})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if *seen != existing {
		t.Fatalf("expected session %q adopted from cookie, got %q", existing, *seen)
	}
}

func TestSessionMiddlewareRejectsMalformedIdentifier(t *testing.T) {
	handler, seen := sessionRecorder(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(sessionHeader, "not-a-ulid")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if *seen == "not-a-ulid" {
		t.Fatal("expected malformed identifier to be replaced")
	}
	if _, err := ulid.ParseStrict(*seen); err != nil {
		t.Fatalf("expected a fresh ULID, got %q: %v", *seen, err)
	}
}
