package judgments

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/searcheval/search-eval/internal/bus"
	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/hash"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

// ImportEntry is one query's ratings in an import request. Grades may arrive
// as JSON numbers or numeric strings; both are accepted.
type ImportEntry struct {
	Query   string         `json:"query"`
	Ratings map[string]any `json:"ratings"`
}

// ImportRequest is a bulk judgment import.
type ImportRequest struct {
	Name    string        `json:"name"`
	Entries []ImportEntry `json:"judgmentRatings"`
}

// ImportResult reports the outcome of an import. Entries that fail to parse
// are skipped and reported; they never fail the whole import.
type ImportResult struct {
	ID       string   `json:"id"`
	Imported int      `json:"imported"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Importer normalizes external judgment data into stored judgment sets.
type Importer struct {
	store  docstore.Store
	events bus.Bus
	log    *logger.Logger
}

// NewImporter creates a new judgment importer.
func NewImporter(store docstore.Store, log *logger.Logger) *Importer {
	return &Importer{store: store, log: log}
}

// WithEvents enables lifecycle event publishing.
func (i *Importer) WithEvents(events bus.Bus) *Importer {
	i.events = events
	return i
}

// Import validates and persists a judgment set. Each entry is parsed
// independently: a malformed grade skips that query and the rest proceed.
func (i *Importer) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if req.Name == "" {
		return nil, errors.ValidationError("judgment set name is required")
	}
	if req.Entries == nil {
		return nil, errors.ValidationError("judgmentRatings is required")
	}

	set := &Set{
		ID:        hash.SHA256Short([]byte(req.Name), 16),
		Name:      req.Name,
		Type:      TypeImport,
		Ratings:   make(map[string]Ratings, len(req.Entries)),
		Timestamp: time.Now(),
	}

	result := &ImportResult{ID: set.ID}

	for _, entry := range req.Entries {
		if entry.Query == "" {
			result.Skipped = append(result.Skipped, "(missing query)")
			continue
		}

		ratings, err := parseRatings(entry.Ratings)
		if err != nil {
			i.log.Warn("skipping judgment entry", "query", entry.Query, "error", err)
			result.Skipped = append(result.Skipped, entry.Query)
			continue
		}

		set.Ratings[entry.Query] = ratings
		result.Imported++
	}

	if err := i.store.Put(ctx, docstore.IndexJudgments, set.ID, set.ToDocument(), false); err != nil {
		return nil, err
	}

	if i.events != nil {
		event := bus.NewEvent(bus.TopicJudgmentsImported, map[string]any{
			"judgmentId": set.ID,
			"name":       set.Name,
			"imported":   result.Imported,
			"skipped":    len(result.Skipped),
		})
		if err := i.events.Publish(ctx, bus.TopicJudgmentsImported, event); err != nil {
			i.log.Warn("failed to publish judgments imported event", "error", err)
		}
	}

	i.log.Info("imported judgment set",
		"judgment_id", set.ID,
		"name", set.Name,
		"imported", result.Imported,
		"skipped", len(result.Skipped),
	)

	return result, nil
}

// Get retrieves a judgment set by ID.
func (i *Importer) Get(ctx context.Context, id string) (*Set, error) {
	doc, err := i.store.Get(ctx, docstore.IndexJudgments, id)
	if err != nil {
		return nil, err
	}
	return SetFromDocument(doc)
}

// List returns all stored judgment sets.
func (i *Importer) List(ctx context.Context) ([]*Set, error) {
	docs, err := i.store.Search(ctx, docstore.IndexJudgments, docstore.Query{})
	if err != nil {
		return nil, err
	}

	sets := make([]*Set, 0, len(docs))
	for _, doc := range docs {
		set, err := SetFromDocument(doc)
		if err != nil {
			i.log.Warn("skipping malformed judgment document", "error", err)
			continue
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// Delete removes a judgment set by ID.
func (i *Importer) Delete(ctx context.Context, id string) error {
	return i.store.Delete(ctx, docstore.IndexJudgments, id)
}

// parseRatings converts raw grades into floats. A single bad grade fails the
// whole entry so a query is never stored with partial ratings.
func parseRatings(raw map[string]any) (Ratings, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no ratings")
	}

	ratings := make(Ratings, len(raw))
	for docID, v := range raw {
		switch g := v.(type) {
		case float64:
			ratings[docID] = g
		case string:
			parsed, err := strconv.ParseFloat(g, 64)
			if err != nil {
				return nil, fmt.Errorf("rating for %s is not numeric: %q", docID, g)
			}
			ratings[docID] = parsed
		default:
			return nil, fmt.Errorf("rating for %s has unsupported type %T", docID, v)
		}
	}

	return ratings, nil
}
