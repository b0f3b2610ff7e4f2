package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Table names a collection of documents.
type Table string

const (
	TableUsers    Table = "users"
	TableChannels Table = "channels"
	TableMessages Table = "messages"
	TableAway     Table = "away_registry"
)

// Document is a stored record keyed by a numeric identifier. Body holds
// the JSON encoding of the record; the store never interprets it.
type Document struct {
	ID   int64
	Body []byte
}

// Store is a document store with one namespace of identifiers per table.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetByID retrieves a document, or returns ErrNotFound.
	GetByID(ctx context.Context, table Table, id int64) (*Document, error)

	// GetAll lists every document of a table ordered by identifier.
	GetAll(ctx context.Context, table Table) ([]*Document, error)

	// Upsert inserts the document or replaces the one with the same ID.
	Upsert(ctx context.Context, table Table, doc *Document) error

	// Remove deletes a document. Removing a missing document is not an error.
	Remove(ctx context.Context, table Table, id int64) error

	// Search lists the documents of a table for which match returns true.
	Search(ctx context.Context, table Table, match func(*Document) bool) ([]*Document, error)

	// Close releases the underlying resources.
	Close() error
}
