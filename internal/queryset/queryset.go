// Package queryset manages named collections of evaluation queries.
package queryset

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/searcheval/search-eval/internal/bus"
	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/hash"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

// Sampling strategies for building a query set from candidate queries.
const (
	SamplingManual = "manual"
	SamplingRandom = "random"
	SamplingTopN   = "topn"
)

// Query is one evaluation query, with an optional reference answer used by
// answer-aware search pipelines.
type Query struct {
	QueryText       string `json:"queryText"`
	ReferenceAnswer string `json:"referenceAnswer,omitempty"`
}

// QuerySet is a named, immutable collection of queries.
type QuerySet struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Sampling    string    `json:"sampling"`
	Queries     []Query   `json:"querySetQueries"`
	Timestamp   time.Time `json:"timestamp"`
}

// PutRequest creates a query set with explicitly listed queries.
type PutRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Queries     []Query `json:"querySetQueries"`
}

// SampleRequest builds a query set by sampling candidate queries.
// Candidates are expected in descending frequency order for topn sampling.
type SampleRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Sampling    string  `json:"sampling"`
	Size        int     `json:"size"`
	Candidates  []Query `json:"candidates"`
}

// Service provides query set management over the document store.
type Service struct {
	store  docstore.Store
	events bus.Bus
	log    *logger.Logger
}

// NewService creates a new query set service.
func NewService(store docstore.Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// WithEvents enables lifecycle event publishing.
func (s *Service) WithEvents(events bus.Bus) *Service {
	s.events = events
	return s
}

// Put stores a manually assembled query set.
func (s *Service) Put(ctx context.Context, req PutRequest) (*QuerySet, error) {
	if req.Name == "" {
		return nil, errors.ValidationError("query set name is required")
	}
	if req.Queries == nil {
		return nil, errors.ValidationError("querySetQueries is required")
	}

	qs := &QuerySet{
		ID:          hash.SHA256Short([]byte(req.Name), 16),
		Name:        req.Name,
		Description: req.Description,
		Sampling:    SamplingManual,
		Queries:     req.Queries,
		Timestamp:   time.Now(),
	}

	if err := s.save(ctx, qs); err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, qs)
	s.log.Info("stored query set", "queryset_id", qs.ID, "name", qs.Name, "queries", len(qs.Queries))
	return qs, nil
}

// Sample builds and stores a query set by sampling candidates. An unknown
// sampling strategy is a fatal validation error; nothing is persisted.
func (s *Service) Sample(ctx context.Context, req SampleRequest) (*QuerySet, error) {
	if req.Name == "" {
		return nil, errors.ValidationError("query set name is required")
	}
	if req.Size < 1 {
		return nil, errors.ValidationError("sample size must be positive")
	}

	var sampled []Query
	switch req.Sampling {
	case SamplingRandom:
		sampled = sampleRandom(req.Candidates, req.Size)
	case SamplingTopN:
		sampled = sampleTopN(req.Candidates, req.Size)
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown sampling strategy: %q", req.Sampling))
	}

	qs := &QuerySet{
		ID:          hash.SHA256Short([]byte(req.Name), 16),
		Name:        req.Name,
		Description: req.Description,
		Sampling:    req.Sampling,
		Queries:     sampled,
		Timestamp:   time.Now(),
	}

	if err := s.save(ctx, qs); err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, qs)
	s.log.Info("sampled query set",
		"queryset_id", qs.ID,
		"sampling", qs.Sampling,
		"candidates", len(req.Candidates),
		"queries", len(qs.Queries),
	)
	return qs, nil
}

// Get retrieves a query set by ID.
func (s *Service) Get(ctx context.Context, id string) (*QuerySet, error) {
	doc, err := s.store.Get(ctx, docstore.IndexQuerySets, id)
	if err != nil {
		return nil, err
	}
	return fromDocument(doc)
}

// List returns all query sets.
func (s *Service) List(ctx context.Context) ([]*QuerySet, error) {
	docs, err := s.store.Search(ctx, docstore.IndexQuerySets, docstore.Query{})
	if err != nil {
		return nil, err
	}

	sets := make([]*QuerySet, 0, len(docs))
	for _, doc := range docs {
		qs, err := fromDocument(doc)
		if err != nil {
			s.log.Warn("skipping malformed query set document", "error", err)
			continue
		}
		sets = append(sets, qs)
	}
	return sets, nil
}

// Delete removes a query set by ID.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, docstore.IndexQuerySets, id)
}

func (s *Service) save(ctx context.Context, qs *QuerySet) error {
	return s.store.Put(ctx, docstore.IndexQuerySets, qs.ID, toDocument(qs), false)
}

func (s *Service) publishUpdated(ctx context.Context, qs *QuerySet) {
	if s.events == nil {
		return
	}
	event := bus.NewEvent(bus.TopicQuerySetUpdated, map[string]any{
		"querySetId": qs.ID,
		"name":       qs.Name,
		"queries":    len(qs.Queries),
	})
	if err := s.events.Publish(ctx, bus.TopicQuerySetUpdated, event); err != nil {
		s.log.Warn("failed to publish query set event", "error", err)
	}
}

func sampleRandom(candidates []Query, size int) []Query {
	if size >= len(candidates) {
		out := make([]Query, len(candidates))
		copy(out, candidates)
		return out
	}

	perm := rand.Perm(len(candidates))
	out := make([]Query, 0, size)
	for _, idx := range perm[:size] {
		out = append(out, candidates[idx])
	}
	return out
}

func sampleTopN(candidates []Query, size int) []Query {
	if size > len(candidates) {
		size = len(candidates)
	}
	out := make([]Query, size)
	copy(out, candidates[:size])
	return out
}

func toDocument(qs *QuerySet) docstore.Document {
	queries := make([]any, len(qs.Queries))
	for i, q := range qs.Queries {
		entry := map[string]any{"queryText": q.QueryText}
		if q.ReferenceAnswer != "" {
			entry["referenceAnswer"] = q.ReferenceAnswer
		}
		queries[i] = entry
	}

	return docstore.Document{
		"id":              qs.ID,
		"name":            qs.Name,
		"description":     qs.Description,
		"sampling":        qs.Sampling,
		"querySetQueries": queries,
		"timestamp":       qs.Timestamp.UTC().Format(time.RFC3339),
	}
}

func fromDocument(doc docstore.Document) (*QuerySet, error) {
	qs := &QuerySet{}

	var ok bool
	if qs.ID, ok = doc["id"].(string); !ok {
		return nil, errors.StorageError("query set missing id", nil)
	}
	qs.Name, _ = doc["name"].(string)
	qs.Description, _ = doc["description"].(string)
	qs.Sampling, _ = doc["sampling"].(string)

	if ts, ok := doc["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			qs.Timestamp = parsed
		}
	}

	rawQueries, _ := doc["querySetQueries"].([]any)
	qs.Queries = make([]Query, 0, len(rawQueries))
	for _, raw := range rawQueries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		q := Query{}
		q.QueryText, _ = entry["queryText"].(string)
		q.ReferenceAnswer, _ = entry["referenceAnswer"].(string)
		if q.QueryText != "" {
			qs.Queries = append(qs.Queries, q)
		}
	}

	return qs, nil
}
