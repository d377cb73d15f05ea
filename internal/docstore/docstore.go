// Package docstore provides the system index abstraction used to persist
// experiments, sub-experiments, query sets, judgments, and search
// configurations. Backends are pluggable: in-memory, file-based, and Redis.
package docstore

import (
	"context"

	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// Document is a free-form JSON-like document. Values are scalars, sequences,
// or nested mappings, exactly as produced by encoding/json.
type Document map[string]any

// Query selects documents within an index. A zero Query matches everything.
type Query struct {
	// Field is an optional top-level field to match for equality.
	Field string

	// Value is the value Field must equal (compared as a string).
	Value string

	// Limit bounds the number of returned documents. 0 means no limit.
	Limit int
}

// Store is the document store consumed by the evaluation core.
// All writes have immediate-visibility semantics: a write is observable by a
// subsequent read from the same process.
type Store interface {
	// CreateIndexIfAbsent creates an index. An existing index is not an error.
	CreateIndexIfAbsent(ctx context.Context, index string) error

	// Put writes a document. With createOnly set, writing an existing docID
	// fails with an ALREADY_EXISTS error instead of overwriting.
	Put(ctx context.Context, index, docID string, doc Document, createOnly bool) error

	// Get retrieves a document by ID. A missing document or index yields a
	// NOT_FOUND error.
	Get(ctx context.Context, index, docID string) (Document, error)

	// Search returns the documents matching q. A missing index yields an
	// empty result, never an error. Results are a finite snapshot; re-issue
	// the query to restart.
	Search(ctx context.Context, index string, q Query) ([]Document, error)

	// Delete removes a document by ID. A missing document yields a NOT_FOUND
	// error.
	Delete(ctx context.Context, index, docID string) error

	// Close releases backend resources.
	Close() error
}

// matches reports whether doc satisfies the query's field filter.
func (q Query) matches(doc Document) bool {
	if q.Field == "" {
		return true
	}
	v, ok := doc[q.Field]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s == q.Value
}

func errIndexNotFound(index string) error {
	return errors.NotFoundError("index " + index)
}

func errDocNotFound(docID string) error {
	return errors.NotFoundError("document " + docID)
}
