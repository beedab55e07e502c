// Package memory provides in-process adapters for the document store and
// the identity provider. They back STORE_BACKEND=memory and the tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"

	"github.com/google/uuid"
)

// Store is a thread-safe in-memory port.DocumentStore.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string]map[string]map[string]any)}
}

func collectionKey(scope, collection string) string {
	return scope + "/" + collection
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *Store) ListAll(_ context.Context, scope, collection string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collectionKey(scope, collection)]
	out := make([]domain.Document, 0, len(docs))
	for id, fields := range docs {
		out = append(out, domain.Document{ID: id, Fields: copyFields(fields)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Get(_ context.Context, scope, collection, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collectionKey(scope, collection)][id]
	if !ok {
		return nil, nil
	}
	return &domain.Document{ID: id, Fields: copyFields(fields)}, nil
}

func (s *Store) Set(_ context.Context, scope, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bucket(scope, collection)[id] = copyFields(fields)
	return nil
}

func (s *Store) Update(_ context.Context, scope, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collectionKey(scope, collection)][id]
	if !ok {
		return &domain.ErrNotFound{Resource: collection, ID: id}
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (s *Store) Merge(_ context.Context, scope, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.bucket(scope, collection)
	doc, ok := bucket[id]
	if !ok {
		bucket[id] = copyFields(fields)
		return nil
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (s *Store) Delete(_ context.Context, scope, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collectionKey(scope, collection)], id)
	return nil
}

func (s *Store) Add(_ context.Context, scope, collection string, fields map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.bucket(scope, collection)[id] = copyFields(fields)
	return id, nil
}

// bucket returns the collection map, creating it. Caller holds the write lock.
func (s *Store) bucket(scope, collection string) map[string]map[string]any {
	key := collectionKey(scope, collection)
	b, ok := s.collections[key]
	if !ok {
		b = make(map[string]map[string]any)
		s.collections[key] = b
	}
	return b
}
