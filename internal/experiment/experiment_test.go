package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/searcheval/search-eval/internal/backend"
	"github.com/searcheval/search-eval/internal/config"
	"github.com/searcheval/search-eval/internal/dashboard"
	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/judgments"
	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/logger"
	"github.com/searcheval/search-eval/internal/queryset"
)

type fakeExecutor struct {
	calls atomic.Int64
	docs  []string
	fail  map[string]bool // queryText -> force failure

	mu     sync.Mutex
	hybrid []*backend.HybridParams
}

func (f *fakeExecutor) Execute(_ context.Context, queryText, _ string, size int, hybrid *backend.HybridParams) ([]string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.hybrid = append(f.hybrid, hybrid)
	f.mu.Unlock()
	if f.fail[queryText] {
		return nil, errors.BackendError("search failed", nil)
	}
	docs := f.docs
	if len(docs) > size {
		docs = docs[:size]
	}
	return docs, nil
}

func (f *fakeExecutor) hybridSeen() []*backend.HybridParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*backend.HybridParams, len(f.hybrid))
	copy(out, f.hybrid)
	return out
}

type fakeJudgments struct {
	calls   atomic.Int64
	ratings judgments.Ratings
	fail    map[string]bool // queryText -> judgment not found
}

func (f *fakeJudgments) Resolve(_ context.Context, queryText string, _ []string) (judgments.Ratings, error) {
	f.calls.Add(1)
	if f.fail[queryText] {
		return nil, errors.JudgmentError("no judgments found for query")
	}
	return f.ratings, nil
}

type fakeQuerySets struct {
	sets map[string]*queryset.QuerySet
}

func (f *fakeQuerySets) Get(_ context.Context, id string) (*queryset.QuerySet, error) {
	qs, ok := f.sets[id]
	if !ok {
		return nil, errors.NotFoundError("query set")
	}
	return qs, nil
}

type fakeConfigs struct {
	known map[string]bool
}

func (f *fakeConfigs) Get(_ context.Context, id string) (*backend.SearchConfiguration, error) {
	if !f.known[id] {
		return nil, errors.NotFoundError("search configuration")
	}
	return &backend.SearchConfiguration{ID: id, Collection: "docs"}, nil
}

// countingStore tracks terminal experiment writes and sub-experiment writes
// so tests can assert single finalization and causal ordering.
type countingStore struct {
	docstore.Store
	terminalWrites atomic.Int64
	subWrites      atomic.Int64
	subsAtFinalize atomic.Int64
}

func (c *countingStore) Put(ctx context.Context, index, docID string, doc docstore.Document, createOnly bool) error {
	if index == docstore.IndexSubExperiments {
		c.subWrites.Add(1)
	}
	if index == docstore.IndexExperiments {
		if status, _ := doc["status"].(string); status == StatusCompleted || status == StatusFailed {
			c.terminalWrites.Add(1)
			c.subsAtFinalize.Store(c.subWrites.Load())
		}
	}
	return c.Store.Put(ctx, index, docID, doc, createOnly)
}

type testEnv struct {
	store     *countingStore
	writer    *Writer
	executor  *fakeExecutor
	judgments *fakeJudgments
	querySets *fakeQuerySets
	configs   *fakeConfigs
	svc       *Service
	agg       *Aggregator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := docstore.NewMemoryStore()
	if err := docstore.EnsureSystemIndices(context.Background(), mem); err != nil {
		t.Fatalf("failed to create indices: %v", err)
	}
	store := &countingStore{Store: mem}

	log := logger.Default()
	dash := dashboard.NewWriter(store, log)
	writer := NewWriter(store, dash, log)

	executor := &fakeExecutor{docs: []string{"d1", "d2", "d3"}}
	source := &fakeJudgments{ratings: judgments.Ratings{"d1": 3, "d2": 0, "d3": 1, "d9": 2}}
	agg := NewAggregator(writer, executor, source, nil, []int{10}, log)

	querySets := &fakeQuerySets{sets: map[string]*queryset.QuerySet{}}
	configs := &fakeConfigs{known: map[string]bool{"cfg1": true, "cfg2": true}}

	svc := NewService(store, writer, agg, querySets, configs, nil,
		config.EvaluationConfig{DefaultKs: []int{10}, DefaultSize: 10, MaxSize: 1000}, log)

	return &testEnv{
		store:     store,
		writer:    writer,
		executor:  executor,
		judgments: source,
		querySets: querySets,
		configs:   configs,
		svc:       svc,
		agg:       agg,
	}
}

func (e *testEnv) addQuerySet(id string, n int) {
	queries := make([]queryset.Query, n)
	for i := range queries {
		queries[i] = queryset.Query{QueryText: fmt.Sprintf("query %d", i)}
	}
	e.querySets.sets[id] = &queryset.QuerySet{ID: id, Name: id, Queries: queries}
}

func waitForTerminal(t *testing.T, svc *Service, id string) *Experiment {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		exp, err := svc.Get(context.Background(), id)
		if err == nil && (exp.Status == StatusCompleted || exp.Status == StatusFailed) {
			return exp
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("experiment %s never reached a terminal state", id)
	return nil
}

func TestPointwiseEvaluationCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 5)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if exp.Status != StatusPending {
		t.Errorf("expected immediate PENDING acknowledgment, got %s", exp.Status)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", final.Status, final.Reason)
	}
	if final.Total != 5 || final.Completed != 5 || final.Failed != 0 {
		t.Errorf("unexpected tally: completed=%d failed=%d total=%d", final.Completed, final.Failed, final.Total)
	}

	results, err := env.svc.Results(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("expected 5 sub-experiments, got %d", len(results))
	}

	if _, ok := final.Summary["ndcg@10"]; !ok {
		t.Errorf("expected ndcg@10 in summary, got %v", final.Summary)
	}
}

func TestPairwiseProducesNxMTasks(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 3)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePairwiseComparison,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1", "cfg2"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", final.Status)
	}
	if final.Total != 6 {
		t.Errorf("expected 3x2=6 tasks, got %d", final.Total)
	}

	results, _ := env.svc.Results(context.Background(), exp.ID)
	if len(results) != 6 {
		t.Errorf("expected 6 sub-experiments, got %d", len(results))
	}
	if env.executor.calls.Load() != 6 {
		t.Errorf("expected 6 executor calls, got %d", env.executor.calls.Load())
	}
}

func TestPerTaskFailureStillCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 4)
	env.judgments.fail = map[string]bool{"query 1": true}
	env.executor.fail = map[string]bool{"query 2": true}

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("per-task failures must not fail the experiment, got %s", final.Status)
	}
	if final.Failed != 2 || final.Completed != 2 || final.Total != 4 {
		t.Errorf("unexpected tally: completed=%d failed=%d total=%d", final.Completed, final.Failed, final.Total)
	}

	results, _ := env.svc.Results(context.Background(), exp.ID)
	failed := 0
	for _, doc := range results {
		if doc["status"] == "FAILED" {
			failed++
			if reason, _ := doc["reason"].(string); reason == "" {
				t.Error("failed sub-experiment missing reason")
			}
		}
	}
	if failed != 2 {
		t.Errorf("expected 2 failed sub-experiments recorded, got %d", failed)
	}
}

func TestEmptyQuerySetCompletesImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("empty", 0)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "empty",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED for empty query set, got %s", final.Status)
	}
	if final.Total != 0 {
		t.Errorf("expected 0 tasks, got %d", final.Total)
	}

	results, _ := env.svc.Results(context.Background(), exp.ID)
	if len(results) != 0 {
		t.Errorf("expected 0 sub-experiments, got %d", len(results))
	}
	if env.executor.calls.Load() != 0 {
		t.Errorf("executor should not be touched, got %d calls", env.executor.calls.Load())
	}
}

func TestPreconditionFailureMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	// qs1 is never registered

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if final.Status != StatusFailed {
		t.Fatalf("expected FAILED for unresolvable query set, got %s", final.Status)
	}
	if final.Reason == "" {
		t.Error("FAILED experiment missing reason")
	}
	if env.executor.calls.Load() != 0 {
		t.Errorf("no task may be dispatched on precondition failure, got %d calls", env.executor.calls.Load())
	}
}

func TestUnresolvableConfigurationMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 2)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"missing"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if final.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", final.Status)
	}
}

func TestFinalizationHappensExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 50)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePairwiseComparison,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1", "cfg2"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	waitForTerminal(t, env.svc, exp.ID)

	if got := env.store.terminalWrites.Load(); got != 1 {
		t.Errorf("expected exactly 1 terminal write, got %d", got)
	}
	// Causal ordering: every sub-experiment was durably written before the
	// terminal status write.
	if subs := env.store.subsAtFinalize.Load(); subs != 100 {
		t.Errorf("expected 100 sub-experiment writes before finalization, got %d", subs)
	}
}

func TestImportProducesKSubExperiments(t *testing.T) {
	env := newTestEnv(t)

	results := []docstore.Document{
		{"searchText": "q1", "dcg@10": 0.8},
		{"searchText": "q2", "metrics": map[string]any{"ndcg@10": 0.85}, "judgmentIds": []any{"j1"}},
		{"queryText": "q3", "metrics": map[string]any{"dcg@10": 1.1}},
	}

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:              TypePointwiseEvaluationImport,
		EvaluationResults: results,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", final.Status)
	}
	if final.Total != 3 {
		t.Errorf("expected 3 sub-experiments, got %d", final.Total)
	}

	// Import flow never touches the evaluator pipeline
	if env.executor.calls.Load() != 0 || env.judgments.calls.Load() != 0 {
		t.Error("import flow must not touch executor or judgment resolver")
	}

	subs, _ := env.svc.Results(context.Background(), exp.ID)
	byQuery := map[string]docstore.Document{}
	for _, doc := range subs {
		if q, ok := doc["searchText"].(string); ok {
			byQuery[q] = doc
		}
		if q, ok := doc["queryText"].(string); ok {
			byQuery[q] = doc
		}
	}

	q1 := byQuery["q1"]
	if q1 == nil || q1["dcg@10"] != 0.8 {
		t.Errorf("q1 record mangled: %v", q1)
	}
	if q1["searchText"] != "q1" {
		t.Errorf("searchText not preserved under original key: %v", q1)
	}

	q2 := byQuery["q2"]
	if q2 == nil || q2["ndcg@10"] != 0.85 {
		t.Errorf("q2 metrics not hoisted: %v", q2)
	}
	if _, ok := q2["metrics"]; ok {
		t.Error("metrics key should be removed after flattening")
	}
	if ids, ok := q2["judgmentIds"].([]any); !ok || len(ids) != 1 || ids[0] != "j1" {
		t.Errorf("judgmentIds passthrough lost: %v", q2["judgmentIds"])
	}

	q3 := byQuery["q3"]
	if q3 == nil || q3["queryText"] != "q3" {
		t.Errorf("legacy queryText key not preserved: %v", q3)
	}
}

func TestImportEmptyListCompletes(t *testing.T) {
	env := newTestEnv(t)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:              TypePointwiseEvaluationImport,
		EvaluationResults: []docstore.Document{},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if final.Status != StatusCompleted || final.Total != 0 {
		t.Errorf("expected COMPLETED with 0 tasks, got %s total=%d", final.Status, final.Total)
	}
}

func TestImportBadRecordIsolated(t *testing.T) {
	env := newTestEnv(t)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type: TypePointwiseEvaluationImport,
		EvaluationResults: []docstore.Document{
			{"searchText": "good", "dcg@10": 0.5},
			{"unrelated": "no query field"},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("bad record must not fail the import, got %s", final.Status)
	}
	if final.Completed != 1 || final.Failed != 1 {
		t.Errorf("expected completed=1 failed=1, got completed=%d failed=%d", final.Completed, final.Failed)
	}
}

func TestFlattenRecordOrderIndependent(t *testing.T) {
	a := docstore.Document{"metrics": map[string]any{"a": 1.0, "b": 2.0}, "c": 3.0}
	b := docstore.Document{"c": 3.0, "metrics": map[string]any{"b": 2.0, "a": 1.0}}

	flatA := FlattenRecord(a)
	flatB := FlattenRecord(b)

	for _, flat := range []docstore.Document{flatA, flatB} {
		if flat["a"] != 1.0 || flat["b"] != 2.0 || flat["c"] != 3.0 {
			t.Errorf("unexpected flattened record: %v", flat)
		}
		if _, ok := flat["metrics"]; ok {
			t.Error("metrics key survived flattening")
		}
	}
}

func TestHybridOptimizerExpandsVariants(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 2)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypeHybridOptimizer,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
		HybridOptions: &HybridOptions{
			Normalizations: []string{NormalizationMinMax, NormalizationL2},
			Combinations:   []string{CombinationArithmeticMean},
			Weights:        [][]float64{{0.3, 0.7}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", final.Status)
	}
	// 2 queries x 1 config x (2 normalizations x 1 combination x 1 weights)
	if final.Total != 4 {
		t.Errorf("expected 4 variant tasks, got %d", final.Total)
	}

	subs, _ := env.svc.Results(context.Background(), exp.ID)
	withVariant := 0
	for _, doc := range subs {
		if _, ok := doc["hybridVariant"].(map[string]any); ok {
			withVariant++
		}
	}
	if withVariant != 4 {
		t.Errorf("expected variant recorded on all 4 sub-experiments, got %d", withVariant)
	}
}

func TestCreateAcknowledgmentIsDetached(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 20)

	ack, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Encoding the acknowledgment must be safe while the background run
	// mutates its own record.
	for i := 0; i < 100; i++ {
		if _, err := json.Marshal(ack); err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
	}

	final := waitForTerminal(t, env.svc, ack.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", final.Status)
	}
	if ack.Status != StatusPending || ack.Completed != 0 || ack.Summary != nil {
		t.Errorf("acknowledgment mutated by background run: %+v", ack)
	}
}

func TestHybridVariantReachesExecutor(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 1)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypeHybridOptimizer,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
		HybridOptions: &HybridOptions{
			Normalizations: []string{NormalizationMinMax, NormalizationZScore},
			Combinations:   []string{CombinationHarmonicMean},
			Weights:        [][]float64{{0.4, 0.6}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	waitForTerminal(t, env.svc, exp.ID)

	seen := map[string]bool{}
	for _, h := range env.executor.hybridSeen() {
		if h == nil {
			t.Fatal("hybrid optimizer task executed without its variant parameters")
		}
		seen[h.Normalization] = true
		if h.Combination != CombinationHarmonicMean {
			t.Errorf("combination lost in transit: %q", h.Combination)
		}
		if len(h.Weights) != 2 || h.Weights[0] != 0.4 {
			t.Errorf("weights lost in transit: %v", h.Weights)
		}
	}
	if !seen[NormalizationMinMax] || !seen[NormalizationZScore] {
		t.Errorf("expected both normalizations to reach the executor, saw %v", seen)
	}
}

func TestNonHybridTasksCarryNoVariant(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 2)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	waitForTerminal(t, env.svc, exp.ID)

	for _, h := range env.executor.hybridSeen() {
		if h != nil {
			t.Errorf("pointwise task carried hybrid parameters: %+v", h)
		}
	}
}

type fakeRuntimeDefaults struct {
	ks      []int
	maxSize int
}

func (f *fakeRuntimeDefaults) EvaluationDefaults() ([]int, int) {
	return f.ks, f.maxSize
}

func TestRuntimeDefaultsOverrideStatic(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 1)
	env.svc.WithRuntimeDefaults(&fakeRuntimeDefaults{ks: []int{3}, maxSize: 20})

	// The tightened runtime cap rejects what the static config allowed.
	_, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   50,
	})
	if !errors.IsValidation(err) {
		t.Errorf("expected VALIDATION_ERROR above runtime cap, got %v", err)
	}

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final := waitForTerminal(t, env.svc, exp.ID)
	if _, ok := final.Summary["ndcg@3"]; !ok {
		t.Errorf("expected runtime cutoff ndcg@3 in summary, got %v", final.Summary)
	}
	if _, ok := final.Summary["ndcg@10"]; ok {
		t.Errorf("static cutoff should be superseded, got %v", final.Summary)
	}
}

func TestCascadeDelete(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 3)

	exp, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	waitForTerminal(t, env.svc, exp.ID)

	if err := env.svc.Delete(context.Background(), exp.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := env.svc.Get(context.Background(), exp.ID); !errors.IsNotFound(err) {
		t.Errorf("expected NOT_FOUND after delete, got %v", err)
	}

	subs, err := env.writer.SubExperiments(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("SubExperiments failed: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expected cascade delete of sub-experiments, %d left", len(subs))
	}
}

func TestSpecValidation(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"unknown type", Spec{Type: "LISTWISE"}},
		{"pointwise needs one config", Spec{Type: TypePointwiseEvaluation, QuerySetID: "qs", JudgmentIDs: []string{"j"}, Size: 10}},
		{"pairwise needs two configs", Spec{Type: TypePairwiseComparison, QuerySetID: "qs", SearchConfigurationIDs: []string{"a"}, JudgmentIDs: []string{"j"}, Size: 10}},
		{"size and import are exclusive", Spec{Type: TypePointwiseEvaluationImport, Size: 10, EvaluationResults: []docstore.Document{}}},
		{"import requires result list", Spec{Type: TypePointwiseEvaluationImport}},
		{"missing size", Spec{Type: TypePointwiseEvaluation, QuerySetID: "qs", SearchConfigurationIDs: []string{"a"}, JudgmentIDs: []string{"j"}}},
		{"missing query set", Spec{Type: TypePointwiseEvaluation, SearchConfigurationIDs: []string{"a"}, JudgmentIDs: []string{"j"}, Size: 10}},
		{"missing judgments", Spec{Type: TypePointwiseEvaluation, QuerySetID: "qs", SearchConfigurationIDs: []string{"a"}, Size: 10}},
		{"results on non-import type", Spec{Type: TypePointwiseEvaluation, QuerySetID: "qs", SearchConfigurationIDs: []string{"a"}, JudgmentIDs: []string{"j"}, Size: 10, EvaluationResults: []docstore.Document{}}},
		{"hybrid without options", Spec{Type: TypeHybridOptimizer, QuerySetID: "qs", SearchConfigurationIDs: []string{"a"}, JudgmentIDs: []string{"j"}, Size: 10}},
		{"hybrid bad normalization", Spec{Type: TypeHybridOptimizer, QuerySetID: "qs", SearchConfigurationIDs: []string{"a"}, JudgmentIDs: []string{"j"}, Size: 10, HybridOptions: &HybridOptions{Normalizations: []string{"softmax"}, Combinations: []string{CombinationArithmeticMean}}}},
		{"hybrid bad weights", Spec{Type: TypeHybridOptimizer, QuerySetID: "qs", SearchConfigurationIDs: []string{"a"}, JudgmentIDs: []string{"j"}, Size: 10, HybridOptions: &HybridOptions{Normalizations: []string{NormalizationMinMax}, Combinations: []string{CombinationArithmeticMean}, Weights: [][]float64{{0.9, 0.9}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.spec.Validate(); !errors.IsValidation(err) {
				t.Errorf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestSpecValidationAccepts(t *testing.T) {
	valid := []Spec{
		{Type: TypePointwiseEvaluation, QuerySetID: "qs", SearchConfigurationIDs: []string{"a"}, JudgmentIDs: []string{"j"}, Size: 10},
		{Type: TypePairwiseComparison, QuerySetID: "qs", SearchConfigurationIDs: []string{"a", "b"}, JudgmentIDs: []string{"j"}, Size: 5},
		{Type: TypePointwiseEvaluationImport, EvaluationResults: []docstore.Document{}},
		{Type: TypeHybridOptimizer, QuerySetID: "qs", SearchConfigurationIDs: []string{"a"}, JudgmentIDs: []string{"j"}, Size: 10,
			HybridOptions: &HybridOptions{Normalizations: []string{NormalizationZScore}, Combinations: []string{CombinationGeometricMean}}},
	}

	for i, spec := range valid {
		if err := spec.Validate(); err != nil {
			t.Errorf("spec %d should be valid, got %v", i, err)
		}
	}
}

func TestSizeExceedsMaximum(t *testing.T) {
	env := newTestEnv(t)
	env.addQuerySet("qs1", 1)

	_, err := env.svc.Create(context.Background(), Spec{
		Type:                   TypePointwiseEvaluation,
		QuerySetID:             "qs1",
		SearchConfigurationIDs: []string{"cfg1"},
		JudgmentIDs:            []string{"j1"},
		Size:                   5000,
	})
	if !errors.IsValidation(err) {
		t.Errorf("expected VALIDATION_ERROR for oversized request, got %v", err)
	}
}

func TestExperimentDocumentRoundTrip(t *testing.T) {
	exp := &Experiment{
		ID:     "exp1",
		Type:   TypePairwiseComparison,
		Status: StatusCompleted,
		Spec: Spec{
			Type:                   TypePairwiseComparison,
			QuerySetID:             "qs1",
			SearchConfigurationIDs: []string{"a", "b"},
			JudgmentIDs:            []string{"j1"},
			Size:                   10,
		},
		Completed: 5,
		Failed:    1,
		Total:     6,
		Summary:   map[string]float64{"ndcg@10": 0.42},
		Timestamp: time.Now(),
	}

	got, err := FromDocument(exp.ToDocument())
	if err != nil {
		t.Fatalf("FromDocument failed: %v", err)
	}

	if got.ID != exp.ID || got.Status != exp.Status || got.Type != exp.Type {
		t.Errorf("identity fields mangled: %+v", got)
	}
	if got.Completed != 5 || got.Failed != 1 || got.Total != 6 {
		t.Errorf("tally mangled: %+v", got)
	}
	if got.Spec.QuerySetID != "qs1" || len(got.Spec.SearchConfigurationIDs) != 2 || got.Spec.Size != 10 {
		t.Errorf("spec mangled: %+v", got.Spec)
	}
	if got.Summary["ndcg@10"] != 0.42 {
		t.Errorf("summary mangled: %v", got.Summary)
	}
}

func TestHybridVariantsCartesian(t *testing.T) {
	opts := &HybridOptions{
		Normalizations: []string{NormalizationMinMax, NormalizationL2, NormalizationZScore},
		Combinations:   []string{CombinationArithmeticMean, CombinationHarmonicMean},
		Weights:        [][]float64{{0.5, 0.5}, {0.2, 0.8}},
	}

	variants := opts.Variants()
	if len(variants) != 12 {
		t.Fatalf("expected 3x2x2=12 variants, got %d", len(variants))
	}

	seen := map[string]bool{}
	for _, v := range variants {
		label := v.Label()
		if seen[label] {
			t.Errorf("duplicate variant: %s", label)
		}
		seen[label] = true
	}
}
