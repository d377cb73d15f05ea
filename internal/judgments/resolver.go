package judgments

import (
	"context"
	"fmt"

	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

// Resolver looks up the document grade map for a query across one or more
// judgment sets.
type Resolver struct {
	store docstore.Store
	log   *logger.Logger
}

// NewResolver creates a new judgment resolver.
func NewResolver(store docstore.Store, log *logger.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// Resolve returns the merged document grade map for queryText across the
// judgment sets named by judgmentIDs. Sets are applied in list order with
// last-set-wins precedence per document. If no set yields any entry for the
// query, a JUDGMENT_ERROR is returned; callers treat this as a per-task
// failure, not a fatal one.
func (r *Resolver) Resolve(ctx context.Context, queryText string, judgmentIDs []string) (Ratings, error) {
	merged := make(Ratings)
	found := false

	for _, id := range judgmentIDs {
		doc, err := r.store.Get(ctx, docstore.IndexJudgments, id)
		if err != nil {
			if errors.IsNotFound(err) {
				r.log.Warn("judgment set not found", "judgment_id", id)
				continue
			}
			return nil, err
		}

		set, err := SetFromDocument(doc)
		if err != nil {
			return nil, err
		}

		ratings, ok := set.Ratings[queryText]
		if !ok || len(ratings) == 0 {
			continue
		}

		found = true
		for docID, grade := range ratings {
			merged[docID] = grade
		}
	}

	if !found {
		return nil, errors.JudgmentError(fmt.Sprintf("no judgments found for query %q", queryText))
	}

	return merged, nil
}
