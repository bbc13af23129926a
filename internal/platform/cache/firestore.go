package cache

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

const (
	defaultCollection  = "sessions"
	stateSubcollection = "state"
	purgeBatchSize     = 100
)

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the root collection holding session documents.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// FirestoreStore persists session state in Firestore, one document per
// slot under {collection}/{scope}/state/{key}.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreStore constructs a Firestore-backed session store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:     client,
		collection: defaultCollection,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type slotDocument struct {
	Value     []byte    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
	ExpiresAt time.Time `firestore:"expires_at,omitempty"`
}

func (s *FirestoreStore) slotRef(scope string, key Key) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(strings.TrimSpace(scope)).Collection(stateSubcollection).Doc(string(key))
}

// Get implements Store.
func (s *FirestoreStore) Get(ctx context.Context, scope string, key Key) ([]byte, error) {
	snap, err := s.slotRef(scope, key).Get(ctx)
	if err != nil {
		return nil, WrapError("cache get "+string(key), err)
	}

	var doc slotDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, WrapError("cache decode "+string(key), err)
	}
	if !doc.ExpiresAt.IsZero() && !s.now().Before(doc.ExpiresAt) {
		_, _ = s.slotRef(scope, key).Delete(ctx)
		return nil, NotFoundError(scope, key)
	}
	return doc.Value, nil
}

// Set implements Store.
func (s *FirestoreStore) Set(ctx context.Context, scope string, key Key, value []byte, ttl time.Duration) error {
	now := s.now().UTC()
	doc := slotDocument{
		Value:     append([]byte(nil), value...),
		UpdatedAt: now,
	}
	if ttl > 0 {
		doc.ExpiresAt = now.Add(ttl)
	}

	_, err := s.slotRef(scope, key).Set(ctx, doc)
	return WrapError("cache set "+string(key), err)
}

// Delete implements Store.
func (s *FirestoreStore) Delete(ctx context.Context, scope string, key Key) error {
	_, err := s.slotRef(scope, key).Delete(ctx)
	if err != nil && IsNotFound(WrapError("", err)) {
		return nil
	}
	return WrapError("cache delete "+string(key), err)
}

// Purge implements Store.
func (s *FirestoreStore) Purge(ctx context.Context, scope string) error {
	col := s.client.Collection(s.collection).Doc(strings.TrimSpace(scope)).Collection(stateSubcollection)

	for {
		iter := col.Limit(purgeBatchSize).Documents(ctx)
		deleted := 0
		batch := s.client.Batch()
		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				return WrapError("cache purge", err)
			}
			batch.Delete(snap.Ref)
			deleted++
		}
		iter.Stop()

		if deleted == 0 {
			return nil
		}
		if _, err := batch.Commit(ctx); err != nil {
			return WrapError("cache purge", err)
		}
		if deleted < purgeBatchSize {
			return nil
		}
	}
}
