package experiment

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/searcheval/search-eval/internal/backend"
	"github.com/searcheval/search-eval/internal/bus"
	"github.com/searcheval/search-eval/internal/evaluation"
	"github.com/searcheval/search-eval/internal/judgments"
	"github.com/searcheval/search-eval/internal/pkg/hash"
	"github.com/searcheval/search-eval/internal/pkg/logger"
	"github.com/searcheval/search-eval/internal/queryset"
)

// QueryExecutor issues one search per task. Single attempt; failures surface
// as per-task failures, never retried here. Hybrid optimizer tasks carry the
// swept parameters, all other tasks pass nil.
type QueryExecutor interface {
	Execute(ctx context.Context, queryText, configurationID string, size int, hybrid *backend.HybridParams) ([]string, error)
}

// JudgmentSource resolves the document grade map for a query.
type JudgmentSource interface {
	Resolve(ctx context.Context, queryText string, judgmentIDs []string) (judgments.Ratings, error)
}

// Aggregator is the fan-out/fan-in state machine at the heart of an
// evaluation run. It enumerates tasks, dispatches them concurrently, streams
// outcomes into the record writer, and finalizes the experiment exactly once
// when every task is accounted for.
type Aggregator struct {
	writer    *Writer
	executor  QueryExecutor
	judgments JudgmentSource
	events    bus.Bus
	ks        []int
	log       *logger.Logger
}

// NewAggregator creates an aggregator. The event bus is optional.
func NewAggregator(writer *Writer, executor QueryExecutor, source JudgmentSource, events bus.Bus, ks []int, log *logger.Logger) *Aggregator {
	return &Aggregator{
		writer:    writer,
		executor:  executor,
		judgments: source,
		events:    events,
		ks:        ks,
		log:       log,
	}
}

// runState is the per-experiment aggregation context. Each run gets its own
// so concurrent experiments never share counters.
type runState struct {
	pending   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	finalized atomic.Bool

	mu     sync.Mutex
	sums   map[string]float64
	counts map[string]int64
}

func newRunState(total int64) *runState {
	s := &runState{
		sums:   make(map[string]float64),
		counts: make(map[string]int64),
	}
	s.pending.Store(total)
	return s
}

func (s *runState) accumulate(metrics map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range metrics {
		s.sums[name] += value
		s.counts[name]++
	}
}

// summary returns the mean of each metric across successful tasks.
func (s *runState) summary() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.counts) == 0 {
		return nil
	}
	out := make(map[string]float64, len(s.counts))
	for name, count := range s.counts {
		out[name] = s.sums[name] / float64(count)
	}
	return out
}

// Run executes the experiment to its terminal state. It blocks until
// finalization; callers wanting the immediate-acknowledgment contract run it
// on their own goroutine. Per-task failures are recorded as failed
// sub-experiments and never abort the run. An empty ks falls back to the
// aggregator's configured cutoffs.
func (a *Aggregator) Run(ctx context.Context, exp *Experiment, queries []queryset.Query, ks []int) error {
	log := a.log.WithExperiment(exp.ID)

	if exp.Type == TypePointwiseEvaluationImport {
		return a.runImport(ctx, exp)
	}
	if len(ks) == 0 {
		ks = a.ks
	}

	tasks := enumerateTasks(&exp.Spec, queries)
	total := int64(len(tasks))

	// A query set with zero queries finalizes immediately as COMPLETED with
	// zero sub-experiments.
	if total == 0 {
		return a.finalize(ctx, exp, newRunState(0))
	}

	exp.Status = StatusProcessing
	exp.Total = total
	if err := a.writer.WriteExperiment(ctx, exp, false); err != nil {
		return err
	}
	log.Info("dispatching evaluation tasks", "tasks", total)

	state := newRunState(total)
	var wg sync.WaitGroup
	var finalizeErr error
	var finalizeOnce sync.Once

	for _, task := range tasks {
		wg.Add(1)
		go func(task *Task) {
			defer wg.Done()
			outcome := a.runTask(ctx, &exp.Spec, task, ks)
			if err := a.complete(ctx, exp, state, outcome); err != nil {
				finalizeOnce.Do(func() { finalizeErr = err })
			}
		}(task)
	}

	wg.Wait()
	return finalizeErr
}

// runImport feeds pre-computed results through the same accounting as live
// tasks. The evaluator and executor are never touched.
func (a *Aggregator) runImport(ctx context.Context, exp *Experiment) error {
	outcomes := ImportOutcomes(exp.Spec.EvaluationResults)
	total := int64(len(outcomes))

	if total == 0 {
		return a.finalize(ctx, exp, newRunState(0))
	}

	exp.Status = StatusProcessing
	exp.Total = total
	if err := a.writer.WriteExperiment(ctx, exp, false); err != nil {
		return err
	}

	state := newRunState(total)
	var wg sync.WaitGroup
	var finalizeErr error
	var finalizeOnce sync.Once

	for _, outcome := range outcomes {
		wg.Add(1)
		go func(o *Outcome) {
			defer wg.Done()
			if err := a.complete(ctx, exp, state, o); err != nil {
				finalizeOnce.Do(func() { finalizeErr = err })
			}
		}(outcome)
	}

	wg.Wait()
	return finalizeErr
}

// runTask scores one (query, configuration) pair: resolve judgments, execute
// the search, evaluate the ranking. Any step failing yields a failed outcome.
func (a *Aggregator) runTask(ctx context.Context, spec *Spec, task *Task, ks []int) *Outcome {
	outcome := &Outcome{
		TaskID:          task.ID,
		QueryText:       task.QueryText,
		ConfigurationID: task.ConfigurationID,
		JudgmentIDs:     task.JudgmentIDs,
		Variant:         task.Variant,
	}

	ratings, err := a.judgments.Resolve(ctx, task.QueryText, task.JudgmentIDs)
	if err != nil {
		outcome.Failed = true
		outcome.Reason = err.Error()
		return outcome
	}

	var hybrid *backend.HybridParams
	if task.Variant != nil {
		hybrid = &backend.HybridParams{
			Normalization: task.Variant.Normalization,
			Combination:   task.Variant.Combination,
			Weights:       task.Variant.Weights,
		}
	}

	docIDs, err := a.executor.Execute(ctx, task.QueryText, task.ConfigurationID, spec.Size, hybrid)
	if err != nil {
		outcome.Failed = true
		outcome.Reason = err.Error()
		return outcome
	}

	outcome.DocumentIDs = docIDs
	outcome.Metrics = evaluation.Evaluate(docIDs, ratings, ks)
	return outcome
}

// complete records one outcome: write the sub-experiment, update the
// counters, and finalize if this was the last pending task.
func (a *Aggregator) complete(ctx context.Context, exp *Experiment, state *runState, outcome *Outcome) error {
	id, err := a.writer.WriteSubExperiment(ctx, exp.ID, outcome)
	if err != nil {
		// One retry at the write call site; a second failure downgrades the
		// outcome to a recorded failure so accounting still drains.
		if id, err = a.writer.WriteSubExperiment(ctx, exp.ID, outcome); err != nil {
			a.log.WithExperiment(exp.ID).Error("failed to persist sub-experiment", "task_id", outcome.TaskID, "error", err)
			outcome.Failed = true
			outcome.Reason = "failed to persist outcome: " + err.Error()
		}
	}

	if a.events != nil && err == nil {
		a.publish(ctx, bus.TopicSubExperimentRecorded, map[string]any{
			"experimentId":    exp.ID,
			"subExperimentId": id,
			"failed":          outcome.Failed,
		})
	}

	if outcome.Failed {
		state.failed.Add(1)
	} else {
		state.completed.Add(1)
		state.accumulate(outcome.Metrics)
	}

	if state.pending.Add(-1) == 0 {
		return a.finalize(ctx, exp, state)
	}
	return nil
}

// finalize performs the terminal write exactly once, guarded so concurrent
// completions from the last two tasks cannot both trigger it.
func (a *Aggregator) finalize(ctx context.Context, exp *Experiment, state *runState) error {
	if !state.finalized.CompareAndSwap(false, true) {
		return nil
	}

	exp.Status = StatusCompleted
	exp.Completed = state.completed.Load()
	exp.Failed = state.failed.Load()
	exp.Summary = state.summary()

	if err := a.writer.FinalizeExperiment(ctx, exp); err != nil {
		return err
	}

	if a.events != nil {
		a.publish(ctx, bus.TopicExperimentCompleted, map[string]any{
			"experimentId": exp.ID,
			"completed":    exp.Completed,
			"failed":       exp.Failed,
			"total":        exp.Total,
		})
	}
	return nil
}

func (a *Aggregator) publish(ctx context.Context, topic string, payload map[string]any) {
	if err := a.events.Publish(ctx, topic, bus.NewEvent(topic, payload)); err != nil {
		a.log.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// enumerateTasks expands the spec into the Cartesian product of queries and
// search configurations, and for hybrid optimizer experiments additionally
// by parameter variant.
func enumerateTasks(spec *Spec, queries []queryset.Query) []*Task {
	var variants []HybridVariant
	if spec.Type == TypeHybridOptimizer && spec.HybridOptions != nil {
		variants = spec.HybridOptions.Variants()
	}

	tasks := make([]*Task, 0, len(queries)*len(spec.SearchConfigurationIDs))
	for _, q := range queries {
		for _, configID := range spec.SearchConfigurationIDs {
			if len(variants) == 0 {
				tasks = append(tasks, &Task{
					ID:              hash.TaskID(q.QueryText, configID),
					QueryText:       q.QueryText,
					ConfigurationID: configID,
					JudgmentIDs:     spec.JudgmentIDs,
				})
				continue
			}

			for i := range variants {
				variant := variants[i]
				tasks = append(tasks, &Task{
					ID:              hash.TaskID(q.QueryText, configID+"|"+variant.Label()),
					QueryText:       q.QueryText,
					ConfigurationID: configID,
					JudgmentIDs:     spec.JudgmentIDs,
					Variant:         &variant,
				})
			}
		}
	}
	return tasks
}
