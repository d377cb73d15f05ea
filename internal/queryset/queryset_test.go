package queryset

import (
	"context"
	"fmt"
	"testing"

	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

func newService(t *testing.T) *Service {
	t.Helper()
	store := docstore.NewMemoryStore()
	if err := docstore.EnsureSystemIndices(context.Background(), store); err != nil {
		t.Fatalf("failed to create indices: %v", err)
	}
	return NewService(store, logger.Default())
}

func TestPutAndGet(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	qs, err := svc.Put(ctx, PutRequest{
		Name: "apparel queries",
		Queries: []Query{
			{QueryText: "red dress"},
			{QueryText: "blue jeans", ReferenceAnswer: "denim pants in blue"},
		},
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if qs.Sampling != SamplingManual {
		t.Errorf("expected manual sampling, got %s", qs.Sampling)
	}

	got, err := svc.Get(ctx, qs.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(got.Queries))
	}
	if got.Queries[1].ReferenceAnswer != "denim pants in blue" {
		t.Errorf("reference answer lost: %+v", got.Queries[1])
	}
}

func TestPutValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Put(ctx, PutRequest{Queries: []Query{}}); !errors.IsValidation(err) {
		t.Errorf("expected VALIDATION_ERROR for missing name, got %v", err)
	}
	if _, err := svc.Put(ctx, PutRequest{Name: "x"}); !errors.IsValidation(err) {
		t.Errorf("expected VALIDATION_ERROR for nil queries, got %v", err)
	}
}

func TestPutEmptyQueriesAllowed(t *testing.T) {
	svc := newService(t)

	qs, err := svc.Put(context.Background(), PutRequest{Name: "empty", Queries: []Query{}})
	if err != nil {
		t.Fatalf("Put with empty queries failed: %v", err)
	}
	if len(qs.Queries) != 0 {
		t.Errorf("expected 0 queries, got %d", len(qs.Queries))
	}
}

func candidates(n int) []Query {
	out := make([]Query, n)
	for i := range out {
		out[i] = Query{QueryText: fmt.Sprintf("query %d", i)}
	}
	return out
}

func TestSampleTopN(t *testing.T) {
	svc := newService(t)

	qs, err := svc.Sample(context.Background(), SampleRequest{
		Name:       "top queries",
		Sampling:   SamplingTopN,
		Size:       3,
		Candidates: candidates(10),
	})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	if len(qs.Queries) != 3 {
		t.Fatalf("expected 3 queries, got %d", len(qs.Queries))
	}
	// topn preserves candidate order
	for i, q := range qs.Queries {
		if q.QueryText != fmt.Sprintf("query %d", i) {
			t.Errorf("expected query %d at position %d, got %q", i, i, q.QueryText)
		}
	}
}

func TestSampleRandom(t *testing.T) {
	svc := newService(t)

	qs, err := svc.Sample(context.Background(), SampleRequest{
		Name:       "random queries",
		Sampling:   SamplingRandom,
		Size:       5,
		Candidates: candidates(20),
	})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(qs.Queries) != 5 {
		t.Errorf("expected 5 queries, got %d", len(qs.Queries))
	}

	// No duplicates
	seen := map[string]bool{}
	for _, q := range qs.Queries {
		if seen[q.QueryText] {
			t.Errorf("duplicate query sampled: %q", q.QueryText)
		}
		seen[q.QueryText] = true
	}
}

func TestSampleSizeExceedsCandidates(t *testing.T) {
	svc := newService(t)

	qs, err := svc.Sample(context.Background(), SampleRequest{
		Name:       "all of them",
		Sampling:   SamplingRandom,
		Size:       100,
		Candidates: candidates(4),
	})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(qs.Queries) != 4 {
		t.Errorf("expected all 4 candidates, got %d", len(qs.Queries))
	}
}

// An unknown sampling strategy is rejected outright: nothing is persisted.
func TestSampleInvalidStrategyIsFatal(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Sample(ctx, SampleRequest{
		Name:       "bad",
		Sampling:   "frequency",
		Size:       3,
		Candidates: candidates(10),
	})
	if !errors.IsValidation(err) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	sets, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sets) != 0 {
		t.Errorf("expected nothing persisted after fatal validation, got %d sets", len(sets))
	}
}

func TestListAndDelete(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	qs1, _ := svc.Put(ctx, PutRequest{Name: "a", Queries: []Query{{QueryText: "q"}}})
	svc.Put(ctx, PutRequest{Name: "b", Queries: []Query{{QueryText: "q"}}})

	sets, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sets) != 2 {
		t.Errorf("expected 2 sets, got %d", len(sets))
	}

	if err := svc.Delete(ctx, qs1.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, qs1.ID); !errors.IsNotFound(err) {
		t.Errorf("expected NOT_FOUND after delete, got %v", err)
	}
}
