// Package experiment orchestrates evaluation runs: it fans an experiment out
// into per-query evaluation tasks, scores them against judgments, and
// aggregates the outcomes into a single experiment record with a well-defined
// lifecycle.
package experiment

import (
	"fmt"
	"time"

	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// Experiment types.
const (
	TypePairwiseComparison        = "PAIRWISE_COMPARISON"
	TypePointwiseEvaluation       = "POINTWISE_EVALUATION"
	TypeHybridOptimizer           = "HYBRID_OPTIMIZER"
	TypePointwiseEvaluationImport = "POINTWISE_EVALUATION_IMPORT"
)

// Experiment lifecycle states. Terminal states are reached exactly once.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Spec is the immutable input describing one evaluation run. Exactly one of
// size-driven evaluation or imported results is active: the import type
// carries EvaluationResults (possibly empty) and no Size, every other type
// carries a positive Size and no EvaluationResults.
type Spec struct {
	Type                   string               `json:"type"`
	QuerySetID             string               `json:"querySetId,omitempty"`
	SearchConfigurationIDs []string             `json:"searchConfigurationList,omitempty"`
	JudgmentIDs            []string             `json:"judgmentList,omitempty"`
	Size                   int                  `json:"size,omitempty"`
	EvaluationResults      []docstore.Document  `json:"evaluationResultList,omitempty"`
	HybridOptions          *HybridOptions       `json:"hybridOptions,omitempty"`
}

// Validate checks the spec before any task is created. Validation failures
// are reported synchronously to the caller; nothing is persisted.
func (s *Spec) Validate() error {
	switch s.Type {
	case TypePointwiseEvaluation, TypeHybridOptimizer:
		if len(s.SearchConfigurationIDs) != 1 {
			return errors.ValidationError(fmt.Sprintf("%s requires exactly 1 search configuration, got %d", s.Type, len(s.SearchConfigurationIDs)))
		}
	case TypePairwiseComparison:
		if len(s.SearchConfigurationIDs) != 2 {
			return errors.ValidationError(fmt.Sprintf("%s requires exactly 2 search configurations, got %d", s.Type, len(s.SearchConfigurationIDs)))
		}
	case TypePointwiseEvaluationImport:
		if s.EvaluationResults == nil {
			return errors.ValidationError("evaluationResultList is required for import experiments")
		}
		if s.Size != 0 {
			return errors.ValidationError("size and evaluationResultList are mutually exclusive")
		}
		return nil
	default:
		return errors.ValidationError(fmt.Sprintf("unknown experiment type: %q", s.Type))
	}

	// Non-import types from here on.
	if s.EvaluationResults != nil {
		return errors.ValidationError("evaluationResultList is only valid for import experiments")
	}
	if s.Size < 1 {
		return errors.ValidationError("size must be positive")
	}
	if s.QuerySetID == "" {
		return errors.ValidationError("querySetId is required")
	}
	if len(s.JudgmentIDs) == 0 {
		return errors.ValidationError("judgmentList is required")
	}

	if s.Type == TypeHybridOptimizer {
		if s.HybridOptions == nil {
			return errors.ValidationError("hybridOptions is required for hybrid optimizer experiments")
		}
		if err := s.HybridOptions.Validate(); err != nil {
			return err
		}
	} else if s.HybridOptions != nil {
		return errors.ValidationError("hybridOptions is only valid for hybrid optimizer experiments")
	}

	return nil
}

// Experiment is the aggregate root for one evaluation run.
type Experiment struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Spec      Spec      `json:"spec"`
	Completed int64     `json:"completed"`
	Failed    int64     `json:"failed"`
	Total     int64     `json:"total"`
	// Summary holds aggregate metrics (mean per metric across successful
	// tasks), populated at finalization of completed experiments.
	Summary map[string]float64 `json:"summary,omitempty"`
	// Reason carries the precondition failure for FAILED experiments.
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is one (query, configuration) pair to be scored. Tasks are transient:
// only the distilled sub-experiment form is persisted.
type Task struct {
	ID              string
	QueryText       string
	ConfigurationID string
	JudgmentIDs     []string
	Variant         *HybridVariant
}

// Outcome is the result of one task, produced exactly once by either the
// evaluation pipeline or the import adapter.
type Outcome struct {
	TaskID          string
	QueryText       string
	ConfigurationID string
	Metrics         map[string]float64
	DocumentIDs     []string
	JudgmentIDs     []string
	Variant         *HybridVariant
	// Imported holds the flattened record for import-flow outcomes; when set
	// it becomes the sub-experiment body verbatim.
	Imported docstore.Document
	Failed   bool
	Reason   string
}

// ToDocument converts the experiment to its persisted form.
func (e *Experiment) ToDocument() docstore.Document {
	doc := docstore.Document{
		"id":        e.ID,
		"type":      e.Type,
		"status":    e.Status,
		"completed": e.Completed,
		"failed":    e.Failed,
		"total":     e.Total,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
		"querySetId": e.Spec.QuerySetID,
	}

	if len(e.Spec.SearchConfigurationIDs) > 0 {
		ids := make([]any, len(e.Spec.SearchConfigurationIDs))
		for i, id := range e.Spec.SearchConfigurationIDs {
			ids[i] = id
		}
		doc["searchConfigurationList"] = ids
	}
	if len(e.Spec.JudgmentIDs) > 0 {
		ids := make([]any, len(e.Spec.JudgmentIDs))
		for i, id := range e.Spec.JudgmentIDs {
			ids[i] = id
		}
		doc["judgmentList"] = ids
	}
	if e.Spec.Size > 0 {
		doc["size"] = e.Spec.Size
	}
	if len(e.Summary) > 0 {
		summary := make(map[string]any, len(e.Summary))
		for k, v := range e.Summary {
			summary[k] = v
		}
		doc["summary"] = summary
	}
	if e.Reason != "" {
		doc["reason"] = e.Reason
	}

	return doc
}

// FromDocument rebuilds an experiment from its persisted form.
func FromDocument(doc docstore.Document) (*Experiment, error) {
	e := &Experiment{}

	var ok bool
	if e.ID, ok = doc["id"].(string); !ok {
		return nil, errors.StorageError("experiment missing id", nil)
	}
	e.Type, _ = doc["type"].(string)
	e.Status, _ = doc["status"].(string)
	e.Completed = asInt64(doc["completed"])
	e.Failed = asInt64(doc["failed"])
	e.Total = asInt64(doc["total"])
	e.Reason, _ = doc["reason"].(string)

	e.Spec.Type = e.Type
	e.Spec.QuerySetID, _ = doc["querySetId"].(string)
	e.Spec.Size = int(asInt64(doc["size"]))
	e.Spec.SearchConfigurationIDs = asStrings(doc["searchConfigurationList"])
	e.Spec.JudgmentIDs = asStrings(doc["judgmentList"])

	if summary, ok := doc["summary"].(map[string]any); ok {
		e.Summary = make(map[string]float64, len(summary))
		for k, v := range summary {
			if f, ok := v.(float64); ok {
				e.Summary[k] = f
			}
		}
	}

	if ts, ok := doc["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Timestamp = parsed
		}
	}

	return e, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asStrings(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
