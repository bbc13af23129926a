package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lojafacil/engine/internal/domain"
)

func newHistoryFixture(t *testing.T, now *time.Time) (*OrderHistoryService, *stubSessionRepo, *stubBackend, *stubTokens) {
	t.Helper()
	repo := newStubSessionRepo()
	be := &stubBackend{}
	clock := func() time.Time { return *now }
	tokens := &stubTokens{ttl: 10 * time.Minute, now: clock}
	svc, err := NewOrderHistoryService(OrderHistoryServiceDeps{
		Sessions: repo,
		Backend:  be,
		Tokens:   tokens,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc, repo, be, tokens
}

func TestOrderHistoryListRequiresSession(t *testing.T) {
	now := time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
	svc, _, _, _ := newHistoryFixture(t, &now)

	if _, err := svc.List(context.Background(), "s1"); !errors.Is(err, ErrHistorySessionRequired) {
		t.Fatalf("expected ErrHistorySessionRequired, got %v", err)
	}
}

func TestOrderHistoryListRenewsSlidingWindow(t *testing.T) {
	now := time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
	svc, repo, be, _ := newHistoryFixture(t, &now)

	be.orders = []domain.OrderRecord{{ID: "42", Status: "Enviado", Total: 170}}
	repo.clientSessions["s1"] = domain.ClientSession{
		TaxID:     "52998224725",
		Token:     "token-52998224725",
		ExpiresAt: now.Add(2 * time.Minute),
	}

	// Access near the end of the window.
	now = now.Add(time.Minute)

	orders, err := svc.List(context.Background(), "s1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "42" {
		t.Fatalf("unexpected orders: %+v", orders)
	}

	renewed := repo.clientSessions["s1"]
	// The new expiry counts the full window from the access time, not
	// from the original expiry.
	if want := now.Add(10 * time.Minute); !renewed.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, renewed.ExpiresAt)
	}
}

func TestOrderHistoryListExpiredSessionForcesReidentification(t *testing.T) {
	now := time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newHistoryFixture(t, &now)

	repo.clientSessions["s1"] = domain.ClientSession{
		TaxID:     "52998224725",
		Token:     "token-52998224725",
		ExpiresAt: now.Add(-time.Second),
	}

	if _, err := svc.List(context.Background(), "s1"); !errors.Is(err, ErrHistorySessionRequired) {
		t.Fatalf("expected ErrHistorySessionRequired, got %v", err)
	}
	if _, ok := repo.clientSessions["s1"]; ok {
		t.Fatalf("expected expired session dropped")
	}
}

func TestOrderHistoryListInvalidTokenDropsSession(t *testing.T) {
	now := time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
	svc, repo, _, tokens := newHistoryFixture(t, &now)

	tokens.verifyErr = errors.New("bad signature")
	repo.clientSessions["s1"] = domain.ClientSession{
		TaxID:     "52998224725",
		Token:     "token-52998224725",
		ExpiresAt: now.Add(time.Minute),
	}

	if _, err := svc.List(context.Background(), "s1"); !errors.Is(err, ErrHistorySessionRequired) {
		t.Fatalf("expected ErrHistorySessionRequired, got %v", err)
	}
	if _, ok := repo.clientSessions["s1"]; ok {
		t.Fatalf("expected tampered session dropped")
	}
}

func TestOrderHistoryLogout(t *testing.T) {
	now := time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newHistoryFixture(t, &now)

	repo.clientSessions["s1"] = domain.ClientSession{TaxID: "52998224725"}
	if err := svc.Logout(context.Background(), "s1"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, ok := repo.clientSessions["s1"]; ok {
		t.Fatalf("expected session removed")
	}
}
