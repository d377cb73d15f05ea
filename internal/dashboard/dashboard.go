// Package dashboard writes flattened evaluation rows for visualization
// tooling. Each recorded sub-experiment is mirrored here with its metric map
// hoisted to the top level so dashboards can aggregate on metric fields
// directly.
package dashboard

import (
	"context"

	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/hash"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

// Writer persists dashboard rows to the dashboard-results index.
type Writer struct {
	store docstore.Store
	log   *logger.Logger
}

// NewWriter creates a new dashboard writer.
func NewWriter(store docstore.Store, log *logger.Logger) *Writer {
	return &Writer{store: store, log: log}
}

// WriteRow flattens a sub-experiment document and writes it keyed by the
// sub-experiment ID, so a rewrite overwrites rather than duplicates.
func (w *Writer) WriteRow(ctx context.Context, experimentID, subExperimentID string, doc docstore.Document) error {
	row := Flatten(doc)
	rowID := hash.RecordID(experimentID, subExperimentID)
	row["id"] = rowID
	row["experimentId"] = experimentID
	if err := w.store.Put(ctx, docstore.IndexDashboard, rowID, row, false); err != nil {
		return err
	}

	w.log.Debug("wrote dashboard row", "experiment_id", experimentID, "subexperiment_id", subExperimentID)
	return nil
}

// RowsForExperiment returns all dashboard rows belonging to an experiment.
func (w *Writer) RowsForExperiment(ctx context.Context, experimentID string) ([]docstore.Document, error) {
	return w.store.Search(ctx, docstore.IndexDashboard, docstore.Query{
		Field: "experimentId",
		Value: experimentID,
	})
}

// DeleteForExperiment removes all dashboard rows belonging to an experiment.
// Used by experiment cascade deletion.
func (w *Writer) DeleteForExperiment(ctx context.Context, experimentID string) error {
	rows, err := w.RowsForExperiment(ctx, experimentID)
	if err != nil {
		return err
	}

	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		if err := w.store.Delete(ctx, docstore.IndexDashboard, id); err != nil {
			w.log.Warn("failed to delete dashboard row", "experiment_id", experimentID, "row_id", id, "error", err)
		}
	}
	return nil
}

// Flatten hoists a nested "metrics" map to the top level of the document and
// removes the "metrics" key. All other fields pass through unchanged. The
// input document is not mutated.
func Flatten(doc docstore.Document) docstore.Document {
	out := make(docstore.Document, len(doc))
	for k, v := range doc {
		if k == "metrics" {
			continue
		}
		out[k] = v
	}

	if metrics, ok := doc["metrics"].(map[string]any); ok {
		for name, value := range metrics {
			out[name] = value
		}
	}

	return out
}
