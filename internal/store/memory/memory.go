package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vovakirdan/meshchat/internal/store"
)

// MemoryStore implements store.Store in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[store.Table]map[int64][]byte
}

// New creates an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{tables: make(map[store.Table]map[int64][]byte)}
}

// GetByID retrieves a document by ID.
func (s *MemoryStore) GetByID(_ context.Context, table store.Table, id int64) (*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.tables[table][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Document{ID: id, Body: slices.Clone(body)}, nil
}

// GetAll lists every document of a table.
func (s *MemoryStore) GetAll(ctx context.Context, table store.Table) ([]*store.Document, error) {
	return s.Search(ctx, table, nil)
}

// Upsert inserts or replaces a document.
func (s *MemoryStore) Upsert(_ context.Context, table store.Table, doc *store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.tables[table]
	if !ok {
		docs = make(map[int64][]byte)
		s.tables[table] = docs
	}
	docs[doc.ID] = slices.Clone(doc.Body)
	return nil
}

// Remove deletes a document.
func (s *MemoryStore) Remove(_ context.Context, table store.Table, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables[table], id)
	return nil
}

// Search lists matching documents ordered by ID. A nil match selects all.
func (s *MemoryStore) Search(_ context.Context, table store.Table, match func(*store.Document) bool) ([]*store.Document, error) {
	s.mu.RLock()
	docs := make([]*store.Document, 0, len(s.tables[table]))
	for id, body := range s.tables[table] {
		docs = append(docs, &store.Document{ID: id, Body: slices.Clone(body)})
	}
	s.mu.RUnlock()

	slices.SortFunc(docs, func(a, b *store.Document) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	if match == nil {
		return docs, nil
	}
	return slices.DeleteFunc(docs, func(d *store.Document) bool { return !match(d) }), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
