package utils

import (
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// NewID returns a random unique identifier for append-only records.
func NewID() string {
	return uuid.NewString()
}

// DocID derives the numeric document identifier for a natural key.
// The same key always maps to the same identifier, so upserting by key
// keeps exactly one record per key in a table.
func DocID(key string) int64 {
	// Drop the top bit so identifiers stay positive in signed columns.
	return int64(xxhash.Sum64String(key) >> 1)
}
