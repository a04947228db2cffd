package store

import (
	"context"
	"errors"
)

// Document is a schemaless record as held in a collection. Values are plain
// Go types (string, bool, float64, map[string]any, []any) regardless of the
// backing driver.
type Document map[string]any

// Entry pairs a document with the key it is stored under.
type Entry struct {
	Key string
	Doc Document
}

// ErrNotFound is returned by Update when no document exists at the key.
// Get reports an absent document as (nil, nil) instead, and Delete of an
// absent key is a no-op; repair passes depend on both behaviors.
var ErrNotFound = errors.New("document not found")

// Store is a collection-oriented document store keyed by string IDs.
type Store interface {
	// Get returns the document at key, or (nil, nil) if absent.
	Get(ctx context.Context, collection, key string) (Document, error)
	// Set upserts a full document at key, replacing any existing one.
	Set(ctx context.Context, collection, key string, doc Document) error
	// Update merges fields into an existing document. ErrNotFound if absent.
	Update(ctx context.Context, collection, key string, fields Document) error
	// Delete removes the document at key if present.
	Delete(ctx context.Context, collection, key string) error
	// Scan returns every document in the collection with its key.
	Scan(ctx context.Context, collection string) ([]Entry, error)
}
