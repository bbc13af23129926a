package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps session state in process memory. It backs tests and
// local development where no Firestore project is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// WithClock overrides the time source, used by expiry tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

func slotID(scope string, key Key) string {
	return strings.TrimSpace(scope) + "/" + string(key)
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, scope string, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.slots[slotID(scope, key)]
	s.mu.RUnlock()

	if !ok {
		return nil, NotFoundError(scope, key)
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		delete(s.slots, slotID(scope, key))
		s.mu.Unlock()
		return nil, NotFoundError(scope, key)
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, scope string, key Key, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.slots[slotID(scope, key)] = entry
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, scope string, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.slots, slotID(scope, key))
	s.mu.Unlock()
	return nil
}

// Purge implements Store.
func (s *MemoryStore) Purge(ctx context.Context, scope string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := strings.TrimSpace(scope) + "/"
	s.mu.Lock()
	for id := range s.slots {
		if strings.HasPrefix(id, prefix) {
			delete(s.slots, id)
		}
	}
	s.mu.Unlock()
	return nil
}
