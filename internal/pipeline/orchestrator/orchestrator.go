// Package orchestrator drives one end-to-end pass over a pipeline: gate
// checks, collection, evaluation, ranking and writing, delivery, and the
// append-only PipelineRun record of what happened. It is the one place
// that calls every other pipeline/* package in sequence.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/internal/metrics"
	"github.com/originpress/inkwell/internal/pipeline/collector"
	"github.com/originpress/inkwell/internal/pipeline/delivery"
	"github.com/originpress/inkwell/internal/pipeline/evaluator"
	"github.com/originpress/inkwell/internal/pipeline/ranker"
	"github.com/originpress/inkwell/internal/pipeline/selection"
	"github.com/originpress/inkwell/internal/pipeline/writer"
	"github.com/originpress/inkwell/internal/weekday"
	"github.com/originpress/inkwell/pkg/logger"
)

// Status values recorded on a PipelineRun. Prefixes group related outcomes
// so a dashboard can bucket "skipped:*" separately from "failed:*".
const (
	StatusSuccess         = "success"
	StatusPartial         = "partial"
	StatusSkippedWeekday  = "skipped:weekday"
	StatusSkippedDebug    = "skipped:debug"
	StatusSkippedDisabled = "skipped:disabled"
	StatusSkippedInFlight = "skipped:in-flight"
	StatusFailedConfig    = "failed:config"
	StatusFailedInternal  = "failed:internal"
)

// RunOptions carries the per-invocation flags an operator passes on the
// command line; they never live on the Pipeline itself.
type RunOptions struct {
	IgnoreWeekday bool // --ignore-weekday: bypass the weekday gate
	DebugMode     bool // --debug: allow debug_enabled pipelines to run
}

// Orchestrator wires the collection, evaluation, ranking/writing and
// delivery stages together against one catalogue store.
type Orchestrator struct {
	store     catalogue.Store
	collector *collector.Collector
	evaluator *evaluator.Evaluator
	delivery  *delivery.Driver
	outputDir string
	log       *logger.Logger
	tz        *time.Location

	inFlightMu sync.Mutex
	inFlight   map[int64]struct{}
}

// New builds an Orchestrator. log is optional; a default logger is used
// when nil. tz is the time zone the weekday gate is evaluated in; UTC is
// used when nil.
func New(store catalogue.Store, c *collector.Collector, e *evaluator.Evaluator, d *delivery.Driver, outputDir string, log *logger.Logger, tz *time.Location) *Orchestrator {
	if log == nil {
		log = logger.NewDefault()
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Orchestrator{
		store: store, collector: c, evaluator: e, delivery: d, outputDir: outputDir, log: log, tz: tz,
		inFlight: make(map[int64]struct{}),
	}
}

// tryAcquire marks pipelineID as in-flight and reports whether it was
// acquired. It fails if a run for the same pipeline is already in progress,
// whether started by the scheduler's sweep or a manual push — both paths
// call through Run, so a single guard here covers both.
func (o *Orchestrator) tryAcquire(pipelineID int64) bool {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	if _, busy := o.inFlight[pipelineID]; busy {
		return false
	}
	o.inFlight[pipelineID] = struct{}{}
	return true
}

func (o *Orchestrator) release(pipelineID int64) {
	o.inFlightMu.Lock()
	delete(o.inFlight, pipelineID)
	o.inFlightMu.Unlock()
}

// Run executes one pass over the pipeline identified by pipelineID at
// instant now, recording and returning the resulting PipelineRun. A
// non-nil error is only returned when the run could not be recorded at
// all (the pipeline doesn't exist, or the store rejected the record);
// every other failure mode is captured in the returned run's Status.
func (o *Orchestrator) Run(ctx context.Context, pipelineID int64, now time.Time, opts RunOptions) (domain.PipelineRun, error) {
	startedAt := now

	p, err := o.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return domain.PipelineRun{}, fmt.Errorf("orchestrator: load pipeline %d: %w", pipelineID, err)
	}
	log := o.log.WithField("pipeline_id", p.ID).WithField("pipeline_name", p.Name)

	if !o.tryAcquire(p.ID) {
		log.Warn("skipping run: a run for this pipeline is already in flight")
		return o.record(ctx, p, startedAt, now, StatusSkippedInFlight, "a run for this pipeline is already in flight")
	}
	defer o.release(p.ID)

	if !p.Enabled {
		return o.record(ctx, p, startedAt, now, StatusSkippedDisabled, "pipeline is disabled")
	}
	if !opts.IgnoreWeekday && !weekday.IsAllowed(p.Weekdays, now, o.tz) {
		log.Info("skipping run: outside configured weekdays")
		return o.record(ctx, p, startedAt, now, StatusSkippedWeekday, "not a configured weekday")
	}
	if p.DebugEnabled && !opts.DebugMode {
		log.Info("skipping run: debug pipeline without --debug")
		return o.record(ctx, p, startedAt, now, StatusSkippedDebug, "debug pipeline requires --debug")
	}

	class, err := o.store.GetPipelineClassByID(ctx, p.PipelineClassID)
	if err != nil {
		return o.record(ctx, p, startedAt, now, StatusFailedConfig, fmt.Sprintf("load pipeline class: %v", err))
	}
	if !class.Enabled {
		return o.record(ctx, p, startedAt, now, StatusFailedConfig, fmt.Sprintf("pipeline class %q is disabled", class.Key))
	}
	if !p.Filter.AllCategories {
		for _, cat := range p.Filter.Categories {
			if !class.AllowsCategory(cat) {
				return o.record(ctx, p, startedAt, now, StatusFailedConfig, fmt.Sprintf("category %q not allowed by pipeline class %q", cat, class.Key))
			}
		}
	}
	if !class.AllowsEvaluator(p.EvaluatorKey) {
		return o.record(ctx, p, startedAt, now, StatusFailedConfig, fmt.Sprintf("evaluator %q not allowed by pipeline class %q", p.EvaluatorKey, class.Key))
	}
	if !class.AllowsWriter(p.Writer.Type) {
		return o.record(ctx, p, startedAt, now, StatusFailedConfig, fmt.Sprintf("writer type %q not allowed by pipeline class %q", p.Writer.Type, class.Key))
	}

	sources, err := selection.Sources(ctx, o.store, p, class)
	if err != nil {
		return o.record(ctx, p, startedAt, now, StatusFailedInternal, fmt.Sprintf("compute selection set: %v", err))
	}
	sourceKeys := make([]string, len(sources))
	for i, s := range sources {
		sourceKeys[i] = s.Key
	}

	collectOutcomes := o.collector.Run(ctx, sources)
	var inserted, backfilled, collectErrs int
	for _, oc := range collectOutcomes {
		inserted += oc.ArticlesInserted
		backfilled += oc.DetailsBackfilled
		if oc.Err != nil {
			collectErrs++
			log.WithError(oc.Err).WithField("source", oc.SourceKey).Warn("source collection failed")
		}
		metrics.RecordSourceCollection(oc.SourceKey, oc.ArticlesInserted, oc.DetailsBackfilled, oc.Err)
	}

	ev, err := o.store.GetEvaluatorByKey(ctx, p.EvaluatorKey)
	if err != nil {
		return o.record(ctx, p, startedAt, now, StatusFailedConfig, fmt.Sprintf("load evaluator %q: %v", p.EvaluatorKey, err))
	}
	windowed, err := ranker.WindowArticles(ctx, o.store, sourceKeys, p.Writer.Hours, now)
	if err != nil {
		return o.record(ctx, p, startedAt, now, StatusFailedConfig, fmt.Sprintf("window articles: %v", err))
	}
	evalOutcomes, err := o.evaluator.Run(ctx, p, ev, windowed)
	if err != nil {
		return o.record(ctx, p, startedAt, now, StatusFailedInternal, fmt.Sprintf("evaluation run: %v", err))
	}
	var evaluated, evalErrs int
	for _, oc := range evalOutcomes {
		if oc.Err != nil {
			evalErrs++
			log.WithError(oc.Err).WithField("article_id", oc.ArticleID).Warn("article evaluation failed")
			metrics.RecordArticleEvaluation("error")
			continue
		}
		if oc.Skipped {
			metrics.RecordArticleEvaluation("skipped")
			continue
		}
		evaluated++
		metrics.RecordArticleEvaluation("scored")
	}

	groups, err := ranker.Rank(ctx, o.store, p, sourceKeys, now)
	if err != nil {
		return o.record(ctx, p, startedAt, now, StatusFailedInternal, fmt.Sprintf("rank: %v", err))
	}
	artifact, err := writer.Write(ctx, o.store, p, groups, now, o.outputDir)
	if err != nil {
		return o.record(ctx, p, startedAt, now, StatusFailedInternal, fmt.Sprintf("write artifact: %v", err))
	}

	outcome := o.delivery.Deliver(ctx, p, artifact, now)
	metrics.RecordDelivery(deliveryChannel(p), outcome.Status)

	summary := fmt.Sprintf(
		"%d sources collected (%d new articles, %d details backfilled, %d source errors); %d articles evaluated (%d errors); delivery %s: %s",
		len(sources), inserted, backfilled, collectErrs, evaluated, evalErrs, outcome.Status, outcome.Detail,
	)

	return o.record(ctx, p, startedAt, now, outcome.Status, summary)
}

func (o *Orchestrator) record(ctx context.Context, p domain.Pipeline, startedAt, finishedAt time.Time, status, summary string) (domain.PipelineRun, error) {
	metrics.RecordPipelineRun(status, finishedAt.Sub(startedAt))
	run := domain.PipelineRun{
		PipelineID: p.ID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Status:     status,
		Summary:    summary,
	}
	recorded, err := o.store.RecordPipelineRun(ctx, run)
	if err != nil {
		return domain.PipelineRun{}, fmt.Errorf("orchestrator: record run for pipeline %d: %w", p.ID, err)
	}
	return recorded, nil
}

// deliveryChannel names which channel a pipeline is configured to deliver
// through, for metric labeling.
func deliveryChannel(p domain.Pipeline) string {
	switch {
	case p.Email != nil:
		return "email"
	case p.Chat != nil:
		return "chat"
	default:
		return "none"
	}
}

// RunAll sweeps every enabled pipeline in ascending ID order, running each
// to completion before starting the next. One pipeline's error does not
// stop the sweep; its slot in the returned slice holds the zero value and
// the error is appended to errs in the same position. only, when non-nil,
// restricts the sweep to pipelines it returns true for — the CLI's
// --debug-only uses this to sweep just debug_enabled pipelines without
// the orchestrator needing to know about command-line flags.
func (o *Orchestrator) RunAll(ctx context.Context, now time.Time, opts RunOptions, only func(domain.Pipeline) bool) ([]domain.PipelineRun, []error) {
	pipelines, err := o.store.ListEnabledPipelines(ctx)
	if err != nil {
		return nil, []error{fmt.Errorf("orchestrator: list enabled pipelines: %w", err)}
	}
	if only != nil {
		filtered := pipelines[:0]
		for _, p := range pipelines {
			if only(p) {
				filtered = append(filtered, p)
			}
		}
		pipelines = filtered
	}

	runs := make([]domain.PipelineRun, len(pipelines))
	errs := make([]error, len(pipelines))
	for i, p := range pipelines {
		runs[i], errs[i] = o.Run(ctx, p.ID, now, opts)
	}
	return runs, errs
}
