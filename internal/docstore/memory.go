package docstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// MemoryStore is an in-memory document store. It is the default backend for
// the monolith and for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	indices map[string]map[string]Document
}

// NewMemoryStore creates a new in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		indices: make(map[string]map[string]Document),
	}
}

// cloneDoc round-trips a document through JSON so stored documents carry the
// same value types as the file and Redis backends and callers cannot mutate
// stored state.
func cloneDoc(doc Document) (Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.StorageError("encoding document", err)
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.StorageError("decoding document", err)
	}
	return out, nil
}

func (m *MemoryStore) CreateIndexIfAbsent(ctx context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.indices[index]; !ok {
		m.indices[index] = make(map[string]Document)
	}
	return nil
}

func (m *MemoryStore) Put(ctx context.Context, index, docID string, doc Document, createOnly bool) error {
	clone, err := cloneDoc(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.indices[index]
	if !ok {
		return errIndexNotFound(index)
	}

	if createOnly {
		if _, exists := docs[docID]; exists {
			return errors.AlreadyExistsError("document " + docID)
		}
	}

	docs[docID] = clone
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, index, docID string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs, ok := m.indices[index]
	if !ok {
		return nil, errIndexNotFound(index)
	}

	doc, ok := docs[docID]
	if !ok {
		return nil, errDocNotFound(docID)
	}

	return cloneDoc(doc)
}

func (m *MemoryStore) Search(ctx context.Context, index string, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs, ok := m.indices[index]
	if !ok {
		return []Document{}, nil
	}

	results := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if !q.matches(doc) {
			continue
		}
		clone, err := cloneDoc(doc)
		if err != nil {
			return nil, err
		}
		results = append(results, clone)
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}

	return results, nil
}

func (m *MemoryStore) Delete(ctx context.Context, index, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.indices[index]
	if !ok {
		return errIndexNotFound(index)
	}

	if _, exists := docs[docID]; !exists {
		return errDocNotFound(docID)
	}

	delete(docs, docID)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
