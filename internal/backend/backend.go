// Package backend executes evaluation queries against search backends.
// A SearchConfiguration names a backend collection and query parameters;
// the Executor runs exactly one search per task and returns ranked
// document IDs.
package backend

import (
	"context"
	"time"

	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/hash"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

// Searcher issues one search against one collection and returns ranked
// document IDs. Implementations wrap a concrete backend. A nil hybrid means
// a plain dense search.
type Searcher interface {
	Search(ctx context.Context, cfg *SearchConfiguration, queryText string, size int, hybrid *HybridParams) ([]string, error)
}

// HybridParams selects how a hybrid search normalizes and combines the
// scores of its dense and lexical sub-queries. Nil weights mean equal
// weighting.
type HybridParams struct {
	Normalization string
	Combination   string
	Weights       []float64
}

// SearchConfiguration describes how to query a backend collection.
type SearchConfiguration struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Collection     string    `json:"collection"`
	ScoreThreshold float64   `json:"scoreThreshold,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Registry stores search configurations in the document store.
type Registry struct {
	store docstore.Store
	log   *logger.Logger
}

// NewRegistry creates a new search configuration registry.
func NewRegistry(store docstore.Store, log *logger.Logger) *Registry {
	return &Registry{store: store, log: log}
}

// Put stores a search configuration.
func (r *Registry) Put(ctx context.Context, cfg *SearchConfiguration) (*SearchConfiguration, error) {
	if cfg.Name == "" {
		return nil, errors.ValidationError("search configuration name is required")
	}
	if cfg.Collection == "" {
		return nil, errors.ValidationError("search configuration collection is required")
	}

	if cfg.ID == "" {
		cfg.ID = hash.SHA256Short([]byte(cfg.Name), 16)
	}
	cfg.Timestamp = time.Now()

	doc := docstore.Document{
		"id":         cfg.ID,
		"name":       cfg.Name,
		"collection": cfg.Collection,
		"timestamp":  cfg.Timestamp.UTC().Format(time.RFC3339),
	}
	if cfg.ScoreThreshold > 0 {
		doc["scoreThreshold"] = cfg.ScoreThreshold
	}

	if err := r.store.Put(ctx, docstore.IndexSearchConfigs, cfg.ID, doc, false); err != nil {
		return nil, err
	}

	r.log.Info("stored search configuration", "config_id", cfg.ID, "name", cfg.Name)
	return cfg, nil
}

// Get retrieves a search configuration by ID.
func (r *Registry) Get(ctx context.Context, id string) (*SearchConfiguration, error) {
	doc, err := r.store.Get(ctx, docstore.IndexSearchConfigs, id)
	if err != nil {
		return nil, err
	}

	cfg := &SearchConfiguration{}
	cfg.ID, _ = doc["id"].(string)
	cfg.Name, _ = doc["name"].(string)
	cfg.Collection, _ = doc["collection"].(string)
	cfg.ScoreThreshold, _ = doc["scoreThreshold"].(float64)
	if ts, ok := doc["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			cfg.Timestamp = parsed
		}
	}
	return cfg, nil
}

// List returns all search configurations.
func (r *Registry) List(ctx context.Context) ([]*SearchConfiguration, error) {
	docs, err := r.store.Search(ctx, docstore.IndexSearchConfigs, docstore.Query{})
	if err != nil {
		return nil, err
	}

	configs := make([]*SearchConfiguration, 0, len(docs))
	for _, doc := range docs {
		cfg := &SearchConfiguration{}
		cfg.ID, _ = doc["id"].(string)
		cfg.Name, _ = doc["name"].(string)
		cfg.Collection, _ = doc["collection"].(string)
		cfg.ScoreThreshold, _ = doc["scoreThreshold"].(float64)
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Delete removes a search configuration by ID.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, docstore.IndexSearchConfigs, id)
}
