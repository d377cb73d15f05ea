package backend

import (
	"context"

	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

// Executor runs one search per evaluation task. It makes a single attempt:
// retries are the caller's decision, expressed as a fresh experiment, never
// an implicit re-issue here.
type Executor struct {
	registry *Registry
	searcher Searcher
	log      *logger.Logger
}

// NewExecutor creates a new query executor.
func NewExecutor(registry *Registry, searcher Searcher, log *logger.Logger) *Executor {
	return &Executor{
		registry: registry,
		searcher: searcher,
		log:      log,
	}
}

// Execute resolves the search configuration and issues one search, returning
// at most size ranked document IDs. Backend failures surface as BACKEND_ERROR.
// Hybrid parameters, when present, are forwarded to the searcher untouched.
func (e *Executor) Execute(ctx context.Context, queryText, configurationID string, size int, hybrid *HybridParams) ([]string, error) {
	if size < 1 {
		return nil, errors.ValidationError("size must be positive")
	}

	cfg, err := e.registry.Get(ctx, configurationID)
	if err != nil {
		return nil, err
	}

	docIDs, err := e.searcher.Search(ctx, cfg, queryText, size, hybrid)
	if err != nil {
		return nil, errors.BackendError("search failed", err).
			WithDetail("configuration", configurationID)
	}

	if len(docIDs) > size {
		docIDs = docIDs[:size]
	}

	e.log.Debug("executed query",
		"config_id", configurationID,
		"query", queryText,
		"results", len(docIDs),
	)

	return docIDs, nil
}
