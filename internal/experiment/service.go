package experiment

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/searcheval/search-eval/internal/backend"
	"github.com/searcheval/search-eval/internal/bus"
	"github.com/searcheval/search-eval/internal/config"
	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/hash"
	"github.com/searcheval/search-eval/internal/pkg/logger"
	"github.com/searcheval/search-eval/internal/queryset"
)

// QuerySource loads query sets for precondition checks.
type QuerySource interface {
	Get(ctx context.Context, id string) (*queryset.QuerySet, error)
}

// ConfigurationSource resolves search configurations for precondition checks.
type ConfigurationSource interface {
	Get(ctx context.Context, id string) (*backend.SearchConfiguration, error)
}

// RuntimeDefaults supplies operator-tunable evaluation parameters. Zero
// values fall back to the static configuration.
type RuntimeDefaults interface {
	EvaluationDefaults() (ks []int, maxSize int)
}

// Service is the experiment API: it validates incoming specs, acknowledges
// them immediately with a PENDING experiment, and drives each run to its
// terminal state in the background. Callers poll the experiment record for
// progress.
type Service struct {
	store      docstore.Store
	writer     *Writer
	aggregator *Aggregator
	querySets  QuerySource
	configs    ConfigurationSource
	events     bus.Bus
	evalCfg    config.EvaluationConfig
	runtime    RuntimeDefaults
	log        *logger.Logger
}

// NewService creates the experiment service.
func NewService(
	store docstore.Store,
	writer *Writer,
	aggregator *Aggregator,
	querySets QuerySource,
	configs ConfigurationSource,
	events bus.Bus,
	evalCfg config.EvaluationConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		store:      store,
		writer:     writer,
		aggregator: aggregator,
		querySets:  querySets,
		configs:    configs,
		events:     events,
		evalCfg:    evalCfg,
		log:        log,
	}
}

// WithRuntimeDefaults attaches a live settings source consulted on every
// Create, so operator changes apply without a restart.
func (s *Service) WithRuntimeDefaults(runtime RuntimeDefaults) *Service {
	s.runtime = runtime
	return s
}

// evaluationParams resolves the metric cutoffs and size cap, preferring the
// runtime settings over the static configuration.
func (s *Service) evaluationParams() (ks []int, maxSize int) {
	ks, maxSize = s.evalCfg.DefaultKs, s.evalCfg.MaxSize
	if s.runtime == nil {
		return ks, maxSize
	}
	rks, rmax := s.runtime.EvaluationDefaults()
	if len(rks) > 0 {
		ks = rks
	}
	if rmax > 0 {
		maxSize = rmax
	}
	return ks, maxSize
}

// Create validates the spec, persists the experiment in PENDING state, and
// starts the run in the background. The returned experiment is the immediate
// acknowledgment; its terminal state arrives asynchronously.
func (s *Service) Create(ctx context.Context, spec Spec) (*Experiment, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	ks, maxSize := s.evaluationParams()
	if maxSize > 0 && spec.Size > maxSize {
		return nil, errors.ValidationError(fmt.Sprintf("size %d exceeds maximum %d", spec.Size, maxSize))
	}

	now := time.Now()
	exp := &Experiment{
		ID:        hash.SHA256Short([]byte(fmt.Sprintf("%s|%s|%d", spec.Type, spec.QuerySetID, now.UnixNano())), 16),
		Type:      spec.Type,
		Status:    StatusPending,
		Spec:      spec,
		Timestamp: now,
	}

	if err := s.writer.WriteExperiment(ctx, exp, true); err != nil {
		return nil, err
	}

	s.publish(ctx, bus.TopicExperimentCreated, map[string]any{
		"experimentId": exp.ID,
		"type":         exp.Type,
	})
	s.log.WithExperiment(exp.ID).Info("created experiment", "type", exp.Type)

	// The run outlives the request context and owns exp from here on; the
	// caller gets a detached snapshot so encoding it never races the run.
	ack := *exp
	go s.run(context.Background(), exp, ks)

	return &ack, nil
}

// run checks preconditions and hands the experiment to the aggregator. A
// precondition failure before any task is dispatched is the only path to
// FAILED; everything after dispatch ends COMPLETED.
func (s *Service) run(ctx context.Context, exp *Experiment, ks []int) {
	log := s.log.WithExperiment(exp.ID)

	if exp.Type == TypePointwiseEvaluationImport {
		if err := s.aggregator.Run(ctx, exp, nil, nil); err != nil {
			log.WithError(err).Error("experiment run failed")
		}
		return
	}

	queries, err := s.loadPreconditions(ctx, exp)
	if err != nil {
		log.WithError(err).Warn("experiment precondition failed")
		s.fail(ctx, exp, err)
		return
	}

	if err := s.aggregator.Run(ctx, exp, queries, ks); err != nil {
		log.WithError(err).Error("experiment run failed")
	}
}

// loadPreconditions fetches the query set and verifies every search
// configuration concurrently. Any miss fails the experiment before dispatch.
func (s *Service) loadPreconditions(ctx context.Context, exp *Experiment) ([]queryset.Query, error) {
	g, gctx := errgroup.WithContext(ctx)

	var qs *queryset.QuerySet
	g.Go(func() error {
		var err error
		qs, err = s.querySets.Get(gctx, exp.Spec.QuerySetID)
		if err != nil {
			return errors.Wrap(errors.CodeValidation, fmt.Sprintf("query set %q unresolvable", exp.Spec.QuerySetID), err)
		}
		return nil
	})

	for _, configID := range exp.Spec.SearchConfigurationIDs {
		g.Go(func() error {
			if _, err := s.configs.Get(gctx, configID); err != nil {
				return errors.Wrap(errors.CodeValidation, fmt.Sprintf("search configuration %q unresolvable", configID), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return qs.Queries, nil
}

// fail writes the terminal FAILED record for a precondition failure.
func (s *Service) fail(ctx context.Context, exp *Experiment, cause error) {
	exp.Status = StatusFailed
	exp.Reason = cause.Error()

	if err := s.writer.FinalizeExperiment(ctx, exp); err != nil {
		s.log.WithExperiment(exp.ID).WithError(err).Error("failed to persist FAILED experiment")
		return
	}

	s.publish(ctx, bus.TopicExperimentFailed, map[string]any{
		"experimentId": exp.ID,
		"reason":       exp.Reason,
	})
}

// Get retrieves an experiment by ID.
func (s *Service) Get(ctx context.Context, id string) (*Experiment, error) {
	doc, err := s.store.Get(ctx, docstore.IndexExperiments, id)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// List returns all experiments.
func (s *Service) List(ctx context.Context) ([]*Experiment, error) {
	docs, err := s.store.Search(ctx, docstore.IndexExperiments, docstore.Query{})
	if err != nil {
		return nil, err
	}

	experiments := make([]*Experiment, 0, len(docs))
	for _, doc := range docs {
		exp, err := FromDocument(doc)
		if err != nil {
			s.log.Warn("skipping malformed experiment document", "error", err)
			continue
		}
		experiments = append(experiments, exp)
	}
	return experiments, nil
}

// Results returns the sub-experiments owned by an experiment.
func (s *Service) Results(ctx context.Context, id string) ([]docstore.Document, error) {
	if _, err := s.store.Get(ctx, docstore.IndexExperiments, id); err != nil {
		return nil, err
	}
	return s.writer.SubExperiments(ctx, id)
}

// Delete removes an experiment and cascades to its sub-experiments and
// dashboard rows.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, docstore.IndexExperiments, id); err != nil {
		return err
	}

	if err := s.writer.DeleteSubExperiments(ctx, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, docstore.IndexExperiments, id)
}

func (s *Service) publish(ctx context.Context, topic string, payload map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, topic, bus.NewEvent(topic, payload)); err != nil {
		s.log.Warn("failed to publish event", "topic", topic, "error", err)
	}
}
