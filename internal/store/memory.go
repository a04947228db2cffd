package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store used by tests. Scan returns entries in key
// order so repair passes behave deterministically.
type MemStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

func NewMemStore() *MemStore {
	return &MemStore{collections: make(map[string]map[string]Document)}
}

func (s *MemStore) Get(ctx context.Context, collection, key string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, nil
	}
	return cloneDoc(doc), nil
}

func (s *MemStore) Set(ctx context.Context, collection, key string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Document)
		s.collections[collection] = coll
	}
	coll[key] = cloneDoc(doc)
	return nil
}

func (s *MemStore) Update(ctx context.Context, collection, key string, fields Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][key]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		doc[k] = cloneValue(v)
	}
	return nil
}

func (s *MemStore) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], key)
	return nil
}

func (s *MemStore) Scan(ctx context.Context, collection string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll := s.collections[collection]
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: k, Doc: cloneDoc(coll[k])})
	}
	return entries, nil
}

func cloneDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(cloneDoc(t))
	case Document:
		return map[string]any(cloneDoc(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
