package docstore

import (
	"context"
	"fmt"
)

// System index names.
const (
	IndexExperiments    = "seval-experiments"
	IndexSubExperiments = "seval-subexperiments"
	IndexQuerySets      = "seval-querysets"
	IndexJudgments      = "seval-judgments"
	IndexSearchConfigs  = "seval-search-configurations"
	IndexDashboard      = "seval-dashboard-results"
)

// SystemIndices lists every index the workbench owns.
var SystemIndices = []string{
	IndexExperiments,
	IndexSubExperiments,
	IndexQuerySets,
	IndexJudgments,
	IndexSearchConfigs,
	IndexDashboard,
}

// EnsureSystemIndices creates all system indices. Index creation is
// idempotent, so concurrent startup of multiple components is safe.
func EnsureSystemIndices(ctx context.Context, store Store) error {
	for _, index := range SystemIndices {
		if err := store.CreateIndexIfAbsent(ctx, index); err != nil {
			return fmt.Errorf("ensuring index %s: %w", index, err)
		}
	}
	return nil
}
