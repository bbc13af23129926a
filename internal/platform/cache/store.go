// Package cache provides the per-session state store that backs carts,
// shipping quotes, client sessions and the shared catalog snapshot.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Key identifies one slot of session state. Each slot is written as a
// whole value, never patched.
type Key string

const (
	// KeyCart holds the shopper's cart ledger.
	KeyCart Key = "cart"
	// KeyQuote holds the selected shipping quote with its cart fingerprint.
	KeyQuote Key = "shipping_quote"
	// KeyClientSession holds the identified-customer session token.
	KeyClientSession Key = "client_session"
	// KeyIdentification holds the in-flight identification flow state.
	KeyIdentification Key = "identification"
	// KeyCatalog holds the product catalog snapshot (global scope).
	KeyCatalog Key = "catalog"
	// KeyStoreConfig holds the store configuration snapshot (global scope).
	KeyStoreConfig Key = "store_config"
	// KeyConfigVersion holds the catalog version marker used to detect
	// stale snapshots.
	KeyConfigVersion Key = "config_version"
)

// GlobalScope is the scope identifier for state shared across sessions,
// such as the catalog snapshot and store configuration.
const GlobalScope = "global"

// Store persists session state by scope and key.
type Store interface {
	// Get returns the stored value. A missing or expired slot yields an
	// error whose IsNotFound reports true.
	Get(ctx context.Context, scope string, key Key) ([]byte, error)
	// Set replaces the slot's value. A non-positive ttl keeps the slot
	// until overwritten or purged.
	Set(ctx context.Context, scope string, key Key, value []byte, ttl time.Duration) error
	// Delete removes the slot. Deleting a missing slot is not an error.
	Delete(ctx context.Context, scope string, key Key) error
	// Purge removes every slot held by the scope.
	Purge(ctx context.Context, scope string) error
}

// Error carries store failure semantics so callers can distinguish
// missing slots from backend outages.
type Error struct {
	op          string
	err         error
	notFound    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the slot was missing or expired.
func (e *Error) IsNotFound() bool {
	return e != nil && e.notFound
}

// IsUnavailable reports whether the backend failed transiently.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.unavailable
}

// NotFoundError builds a missing-slot error for the given scope and key.
func NotFoundError(scope string, key Key) *Error {
	return &Error{
		op:       fmt.Sprintf("cache get %s/%s", scope, key),
		err:      fmt.Errorf("slot not found"),
		notFound: true,
	}
}

// WrapError annotates backend errors with store semantics based on the
// gRPC status code. Context cancellations pass through untouched.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	e := &Error{op: op, err: err}
	switch status.Code(err) {
	case codes.NotFound:
		e.notFound = true
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		e.unavailable = true
	}
	return e
}

// IsNotFound reports whether err represents a missing slot.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsNotFound()
}

// IsUnavailable reports whether err represents a transient backend outage.
func IsUnavailable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsUnavailable()
}
