// Package judgments stores and resolves relevance judgments: per-query
// document grade maps used to score search results.
package judgments

import (
	"time"

	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// Judgment set types mirror how the grades were produced.
const (
	TypeImport = "IMPORT_JUDGMENT"
	TypeLLM    = "LLM_JUDGMENT"
	TypeUBI    = "UBI_JUDGMENT"
)

// Ratings maps document ID to relevance grade for one query.
type Ratings map[string]float64

// Set is a named collection of per-query ratings.
type Set struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Type      string             `json:"type"`
	Ratings   map[string]Ratings `json:"judgmentRatings"` // query text -> ratings
	Timestamp time.Time          `json:"timestamp"`
}

// ToDocument converts the set to its stored document form.
func (s *Set) ToDocument() docstore.Document {
	ratings := make(map[string]any, len(s.Ratings))
	for query, r := range s.Ratings {
		docRatings := make(map[string]any, len(r))
		for docID, grade := range r {
			docRatings[docID] = grade
		}
		ratings[query] = docRatings
	}

	return docstore.Document{
		"id":              s.ID,
		"name":            s.Name,
		"type":            s.Type,
		"judgmentRatings": ratings,
		"timestamp":       s.Timestamp.UTC().Format(time.RFC3339),
	}
}

// SetFromDocument converts a stored document back to a Set.
func SetFromDocument(doc docstore.Document) (*Set, error) {
	s := &Set{
		Ratings: make(map[string]Ratings),
	}

	var ok bool
	if s.ID, ok = doc["id"].(string); !ok {
		return nil, errors.StorageError("judgment set missing id", nil)
	}
	s.Name, _ = doc["name"].(string)
	s.Type, _ = doc["type"].(string)

	if ts, ok := doc["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			s.Timestamp = parsed
		}
	}

	rawRatings, ok := doc["judgmentRatings"].(map[string]any)
	if !ok {
		return s, nil
	}

	for query, raw := range rawRatings {
		docRatings, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		r := make(Ratings, len(docRatings))
		for docID, grade := range docRatings {
			if g, ok := grade.(float64); ok {
				r[docID] = g
			}
		}
		s.Ratings[query] = r
	}

	return s, nil
}
