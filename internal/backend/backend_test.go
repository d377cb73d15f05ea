package backend

import (
	"context"
	"fmt"
	"testing"

	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

type fakeSearcher struct {
	results    map[string][]string // queryText -> doc IDs
	err        error
	calls      int
	lastHybrid *HybridParams
}

func (f *fakeSearcher) Search(_ context.Context, _ *SearchConfiguration, queryText string, _ int, hybrid *HybridParams) ([]string, error) {
	f.calls++
	f.lastHybrid = hybrid
	if f.err != nil {
		return nil, f.err
	}
	return f.results[queryText], nil
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	store := docstore.NewMemoryStore()
	if err := docstore.EnsureSystemIndices(context.Background(), store); err != nil {
		t.Fatalf("failed to create indices: %v", err)
	}
	return NewRegistry(store, logger.Default())
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	cfg, err := reg.Put(ctx, &SearchConfiguration{
		Name:           "bm25 baseline",
		Collection:     "products",
		ScoreThreshold: 0.25,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if cfg.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := reg.Get(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Collection != "products" || got.ScoreThreshold != 0.25 {
		t.Errorf("configuration mangled: %+v", got)
	}

	configs, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(configs) != 1 {
		t.Errorf("expected 1 configuration, got %d", len(configs))
	}

	if err := reg.Delete(ctx, cfg.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := reg.Get(ctx, cfg.ID); !errors.IsNotFound(err) {
		t.Errorf("expected NOT_FOUND after delete, got %v", err)
	}
}

func TestRegistryValidation(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	if _, err := reg.Put(ctx, &SearchConfiguration{Collection: "c"}); !errors.IsValidation(err) {
		t.Errorf("expected VALIDATION_ERROR for missing name, got %v", err)
	}
	if _, err := reg.Put(ctx, &SearchConfiguration{Name: "n"}); !errors.IsValidation(err) {
		t.Errorf("expected VALIDATION_ERROR for missing collection, got %v", err)
	}
}

func TestExecutorTruncatesToSize(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	cfg, err := reg.Put(ctx, &SearchConfiguration{Name: "baseline", Collection: "docs"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	searcher := &fakeSearcher{results: map[string][]string{
		"laptop": {"d1", "d2", "d3", "d4", "d5"},
	}}
	exec := NewExecutor(reg, searcher, logger.Default())

	docIDs, err := exec.Execute(ctx, "laptop", cfg.ID, 3, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(docIDs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(docIDs))
	}
	if docIDs[0] != "d1" || docIDs[2] != "d3" {
		t.Errorf("truncation changed order: %v", docIDs)
	}
}

func TestExecutorSingleAttempt(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	cfg, err := reg.Put(ctx, &SearchConfiguration{Name: "flaky", Collection: "docs"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	searcher := &fakeSearcher{err: fmt.Errorf("connection refused")}
	exec := NewExecutor(reg, searcher, logger.Default())

	_, err = exec.Execute(ctx, "laptop", cfg.ID, 10, nil)
	if err == nil {
		t.Fatal("expected error from failed search")
	}

	appErr, ok := err.(*errors.AppError)
	if !ok || appErr.Code != errors.CodeBackend {
		t.Errorf("expected BACKEND_ERROR, got %v", err)
	}
	if searcher.calls != 1 {
		t.Errorf("expected exactly one search attempt, got %d", searcher.calls)
	}
}

func TestExecutorSizeValidation(t *testing.T) {
	reg := newRegistry(t)
	exec := NewExecutor(reg, &fakeSearcher{}, logger.Default())

	if _, err := exec.Execute(context.Background(), "q", "cfg", 0, nil); !errors.IsValidation(err) {
		t.Errorf("expected VALIDATION_ERROR for size 0, got %v", err)
	}
}

func TestExecutorUnknownConfiguration(t *testing.T) {
	reg := newRegistry(t)
	exec := NewExecutor(reg, &fakeSearcher{}, logger.Default())

	if _, err := exec.Execute(context.Background(), "q", "missing", 10, nil); !errors.IsNotFound(err) {
		t.Errorf("expected NOT_FOUND for unknown configuration, got %v", err)
	}
}

func TestExecutorForwardsHybridParams(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	cfg, err := reg.Put(ctx, &SearchConfiguration{Name: "hybrid", Collection: "docs"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	searcher := &fakeSearcher{results: map[string][]string{"laptop": {"d1"}}}
	exec := NewExecutor(reg, searcher, logger.Default())

	params := &HybridParams{
		Normalization: "z_score",
		Combination:   "geometric_mean",
		Weights:       []float64{0.3, 0.7},
	}
	if _, err := exec.Execute(ctx, "laptop", cfg.ID, 10, params); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if searcher.lastHybrid != params {
		t.Errorf("hybrid parameters not forwarded to the searcher: %+v", searcher.lastHybrid)
	}

	if _, err := exec.Execute(ctx, "laptop", cfg.ID, 10, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if searcher.lastHybrid != nil {
		t.Error("plain search must not carry hybrid parameters")
	}
}

func TestParseQdrantURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"default port", "http://localhost:6333", "localhost", 6334, false},
		{"no port", "http://qdrant.internal", "qdrant.internal", 6334, false},
		{"custom port", "https://qdrant:7333", "qdrant", 7334, false},
		{"bad port", "http://host:notaport", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := ParseQdrantURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQdrantURL failed: %v", err)
			}
			if host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got %s:%d, want %s:%d", host, port, tt.wantHost, tt.wantPort)
			}
		})
	}
}
