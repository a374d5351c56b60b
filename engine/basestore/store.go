// Package basestore implements the authoritative memory-item store on
// top of the document database. Every write reaches it before any
// tiering copy is made; it is the fallback of last resort on reads.
package basestore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mnemora/mnemora/engine/docstore"
	"github.com/mnemora/mnemora/engine/memcore"
)

const defaultCollection = "memory_items"

// Store persists authoritative item copies in a docstore collection.
type Store struct {
	docs       docstore.Store
	collection string
}

// New builds a base store. An empty collection uses the default.
func New(docs docstore.Store, collection string) *Store {
	if collection == "" {
		collection = defaultCollection
	}
	return &Store{docs: docs, collection: collection}
}

// AddMemoryItem durably stores the item, minting an id and timestamp when
// missing, and returns the id.
func (s *Store) AddMemoryItem(ctx context.Context, item *memcore.Item) (string, error) {
	if item == nil {
		return "", memcore.NewValidationError("item", nil, "must not be nil")
	}
	if item.UserID == "" {
		return "", memcore.NewValidationError("user_id", "", "must not be empty")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}
	if err := s.docs.SetDocument(ctx, s.collection, item.ID, item.ToDocument(), false); err != nil {
		return "", err
	}
	return item.ID, nil
}

// GetMemoryItem returns the authoritative copy, or nil when absent.
func (s *Store) GetMemoryItem(ctx context.Context, id string) (*memcore.Item, error) {
	doc, err := s.docs.GetDocument(ctx, s.collection, id)
	if memcore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return memcore.ItemFromDocument(doc), nil
}

// DeleteMemoryItem removes the authoritative copy.
func (s *Store) DeleteMemoryItem(ctx context.Context, id string) error {
	return s.docs.DeleteDocument(ctx, s.collection, id)
}

// HealthCheck reports backing-store connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.docs.Health(ctx)
}
