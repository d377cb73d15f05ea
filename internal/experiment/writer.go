package experiment

import (
	"context"
	"time"

	"github.com/searcheval/search-eval/internal/dashboard"
	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/hash"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

// Writer persists sub-experiments and experiment records through the
// document store. All writes are idempotent with respect to document
// identity: writing the same sub-experiment twice overwrites, never
// duplicates.
type Writer struct {
	store     docstore.Store
	dashboard *dashboard.Writer
	log       *logger.Logger
}

// NewWriter creates a record writer. The dashboard writer is optional; when
// present every sub-experiment is additionally mirrored as a flattened
// dashboard row.
func NewWriter(store docstore.Store, dash *dashboard.Writer, log *logger.Logger) *Writer {
	return &Writer{store: store, dashboard: dash, log: log}
}

// WriteSubExperiment persists one task outcome as a sub-experiment owned by
// the experiment. Returns the sub-experiment document ID.
func (w *Writer) WriteSubExperiment(ctx context.Context, experimentID string, o *Outcome) (string, error) {
	id := hash.RecordID(experimentID, o.TaskID)
	doc := subExperimentDocument(id, experimentID, o)

	if err := w.store.Put(ctx, docstore.IndexSubExperiments, id, doc, false); err != nil {
		return "", err
	}

	if w.dashboard != nil {
		if err := w.dashboard.WriteRow(ctx, experimentID, id, doc); err != nil {
			// Dashboard rows are a derived view; failing to mirror one never
			// fails the task outcome itself.
			w.log.Warn("failed to write dashboard row", "experiment_id", experimentID, "subexperiment_id", id, "error", err)
		}
	}

	return id, nil
}

// WriteExperiment persists the full experiment record. When createOnly is
// set the write fails with a conflict if the experiment already exists.
func (w *Writer) WriteExperiment(ctx context.Context, e *Experiment, createOnly bool) error {
	return w.store.Put(ctx, docstore.IndexExperiments, e.ID, e.ToDocument(), createOnly)
}

// FinalizeExperiment writes the terminal experiment record: status, task
// tally, and the aggregate metric summary. Callers guarantee every
// sub-experiment write has returned before this is invoked.
func (w *Writer) FinalizeExperiment(ctx context.Context, e *Experiment) error {
	if err := w.WriteExperiment(ctx, e, false); err != nil {
		return err
	}

	w.log.WithExperiment(e.ID).Info("finalized experiment",
		"status", e.Status,
		"completed", e.Completed,
		"failed", e.Failed,
		"total", e.Total,
	)
	return nil
}

// SubExperiments returns all sub-experiments owned by an experiment, in no
// particular order.
func (w *Writer) SubExperiments(ctx context.Context, experimentID string) ([]docstore.Document, error) {
	return w.store.Search(ctx, docstore.IndexSubExperiments, docstore.Query{
		Field: "experimentId",
		Value: experimentID,
	})
}

// DeleteSubExperiments removes every sub-experiment owned by an experiment,
// along with its dashboard rows. Used by cascade deletion.
func (w *Writer) DeleteSubExperiments(ctx context.Context, experimentID string) error {
	docs, err := w.SubExperiments(ctx, experimentID)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		id, _ := doc["id"].(string)
		if id == "" {
			continue
		}
		if err := w.store.Delete(ctx, docstore.IndexSubExperiments, id); err != nil {
			w.log.Warn("failed to delete sub-experiment", "experiment_id", experimentID, "subexperiment_id", id, "error", err)
		}
	}

	if w.dashboard != nil {
		return w.dashboard.DeleteForExperiment(ctx, experimentID)
	}
	return nil
}

func subExperimentDocument(id, experimentID string, o *Outcome) docstore.Document {
	var doc docstore.Document

	if o.Imported != nil {
		// Import flow: the flattened record is the body.
		doc = make(docstore.Document, len(o.Imported)+4)
		for k, v := range o.Imported {
			doc[k] = v
		}
	} else {
		doc = docstore.Document{}
		if o.QueryText != "" {
			doc["queryText"] = o.QueryText
		}
		if o.ConfigurationID != "" {
			doc["searchConfigurationId"] = o.ConfigurationID
		}
		if len(o.Metrics) > 0 {
			metrics := make(map[string]any, len(o.Metrics))
			for name, value := range o.Metrics {
				metrics[name] = value
			}
			doc["metrics"] = metrics
		}
		if len(o.DocumentIDs) > 0 {
			ids := make([]any, len(o.DocumentIDs))
			for i, d := range o.DocumentIDs {
				ids[i] = d
			}
			doc["documentIds"] = ids
		}
		if len(o.JudgmentIDs) > 0 {
			ids := make([]any, len(o.JudgmentIDs))
			for i, j := range o.JudgmentIDs {
				ids[i] = j
			}
			doc["judgmentIds"] = ids
		}
		if o.Variant != nil {
			variant := map[string]any{
				"normalization": o.Variant.Normalization,
				"combination":   o.Variant.Combination,
			}
			if len(o.Variant.Weights) > 0 {
				weights := make([]any, len(o.Variant.Weights))
				for i, w := range o.Variant.Weights {
					weights[i] = w
				}
				variant["weights"] = weights
			}
			doc["hybridVariant"] = variant
		}
	}

	doc["id"] = id
	doc["experimentId"] = experimentID
	doc["taskId"] = o.TaskID
	doc["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	if o.Failed {
		doc["status"] = "FAILED"
		doc["reason"] = o.Reason
	} else {
		doc["status"] = "SUCCESS"
	}

	return doc
}
