package orchestrator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/originpress/inkwell/internal/catalogue/memory"
	"github.com/originpress/inkwell/internal/deliveryclient"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/internal/fetch"
	"github.com/originpress/inkwell/internal/llm"
	"github.com/originpress/inkwell/internal/pipeline/collector"
	"github.com/originpress/inkwell/internal/pipeline/delivery"
	"github.com/originpress/inkwell/internal/pipeline/evaluator"
	"github.com/originpress/inkwell/internal/scraper"
)

type fakeEmailSender struct {
	sent []deliveryclient.EmailMessage
}

func (f *fakeEmailSender) Send(_ context.Context, msg deliveryclient.EmailMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fakeScraper struct {
	listings []scraper.Listing
}

func (f *fakeScraper) List(ctx context.Context, fetcher *fetch.Fetcher) ([]scraper.Listing, error) {
	return f.listings, nil
}

func (f *fakeScraper) FetchDetail(ctx context.Context, fetcher *fetch.Fetcher, link string) (string, error) {
	return "body", nil
}

// testRig bundles a fully wired Orchestrator over an in-memory store, a
// single "tech" source, a pipeline class that allows it, and one pipeline
// configured to email its digest.
type testRig struct {
	store  *memory.Store
	orch   *Orchestrator
	p      domain.Pipeline
	sender *fakeEmailSender
}

func newTestRig(t *testing.T, now time.Time, mutate func(*domain.Pipeline)) testRig {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	src, err := store.CreateSource(ctx, domain.Source{Key: "blog-a", CategoryKey: "tech", Enabled: true, ScriptPath: "scrapers/blog_a"})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	reg := scraper.NewRegistry()
	reg.Register(src.ScriptPath, &fakeScraper{listings: []scraper.Listing{
		{Title: "Go 2.0 Announced", Link: "https://a/1", Publish: now.Add(-1 * time.Hour).Format(time.RFC3339)},
	}})

	metric, err := store.CreateMetric(ctx, domain.Metric{Key: "timeliness", Label: "Timeliness", RateGuide: "how timely", Active: true})
	if err != nil {
		t.Fatalf("CreateMetric: %v", err)
	}
	ev, err := store.CreateEvaluator(ctx, domain.Evaluator{
		Key: "default", PromptTemplate: "Title: {{title}}\n{{metrics_block}}\n{{schema_example}}",
		AllowedMetricIDs: []int64{metric.ID},
	})
	if err != nil {
		t.Fatalf("CreateEvaluator: %v", err)
	}

	class, err := store.CreatePipelineClass(ctx, domain.PipelineClass{
		Key: "default", Enabled: true,
		AllowedCategories: []string{"tech"},
		AllowedEvaluators: []string{ev.Key},
		AllowedWriters:    []string{"weekly_digest"},
	})
	if err != nil {
		t.Fatalf("CreatePipelineClass: %v", err)
	}

	uniform := 10
	p := domain.Pipeline{
		Enabled:         true,
		Name:            "Weekly Tech Digest",
		PipelineClassID: class.ID,
		EvaluatorKey:    ev.Key,
		Filter:          domain.PipelineFilter{AllCategories: true, AllSources: true},
		Writer: domain.PipelineWriter{
			Type: "weekly_digest", Hours: 24,
			Weights:          map[string]float64{"timeliness": 1.0},
			LimitPerCategory: domain.LimitPerCategory{Uniform: &uniform},
		},
		Email: &domain.EmailDelivery{Email: "reader@example.com", SubjectTemplate: "Digest ${date_zh}"},
	}
	if mutate != nil {
		mutate(&p)
	}
	p, err = store.CreatePipeline(ctx, p)
	if err != nil {
		t.Fatalf("CreatePipeline: %v", err)
	}

	mockLLM := llm.NewMockClient(llm.ScoreEnvelope{
		DimensionScores: map[string]int{"timeliness": 5},
		Comment:         "timely piece",
		Summary:         "a quick summary",
	})

	c := collector.New(store, reg, fetch.New(fetch.Config{}, nil, nil), nil)
	e := evaluator.New(store, mockLLM, nil, evaluator.WithMinInterval(0))
	sender := &fakeEmailSender{}
	d := delivery.New(sender, nil, nil, delivery.Config{})

	outputDir := t.TempDir()
	orch := New(store, c, e, d, outputDir, nil, time.UTC)

	return testRig{store: store, orch: orch, p: p, sender: sender}
}

func TestRun_EndToEndSuccess(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) // Saturday
	rig := newTestRig(t, now, nil)

	run, err := rig.orch.Run(context.Background(), rig.p.ID, now, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success; summary=%s", run.Status, run.Summary)
	}
	if len(rig.sender.sent) != 1 {
		t.Fatalf("expected one email to be sent, got %d", len(rig.sender.sent))
	}
	if run.ID == 0 {
		t.Fatalf("expected RecordPipelineRun to assign an ID")
	}
}

func TestRun_SkippedWhenDisabled(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, func(p *domain.Pipeline) { p.Enabled = false })

	run, err := rig.orch.Run(context.Background(), rig.p.ID, now, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusSkippedDisabled {
		t.Fatalf("Status = %q, want %q", run.Status, StatusSkippedDisabled)
	}
	if len(rig.sender.sent) != 0 {
		t.Fatalf("expected no email for a disabled pipeline")
	}
}

func TestRun_SkippedWeekdayWhenNeverConfigured(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	never := []int{}
	rig := newTestRig(t, now, func(p *domain.Pipeline) { p.Weekdays = &never })

	run, err := rig.orch.Run(context.Background(), rig.p.ID, now, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusSkippedWeekday {
		t.Fatalf("Status = %q, want %q", run.Status, StatusSkippedWeekday)
	}
	if len(rig.sender.sent) != 0 {
		t.Fatalf("expected no email, no fetch for a weekday-paused pipeline")
	}
}

func TestRun_IgnoreWeekdayBypassesGate(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	never := []int{}
	rig := newTestRig(t, now, func(p *domain.Pipeline) { p.Weekdays = &never })

	run, err := rig.orch.Run(context.Background(), rig.p.ID, now, RunOptions{IgnoreWeekday: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success with --ignore-weekday", run.Status)
	}
}

func TestRun_SkippedDebugPipelineWithoutDebugFlag(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, func(p *domain.Pipeline) { p.DebugEnabled = true })

	run, err := rig.orch.Run(context.Background(), rig.p.ID, now, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusSkippedDebug {
		t.Fatalf("Status = %q, want %q", run.Status, StatusSkippedDebug)
	}

	run, err = rig.orch.Run(context.Background(), rig.p.ID, now, RunOptions{DebugMode: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success with --debug", run.Status)
	}
}

// The catalogue store validates a pipeline's category/evaluator/writer
// triple against its class at write time, so the only way a stored
// pipeline can still violate its class by the time the orchestrator runs
// it is for the class's allow-lists to have narrowed afterward. These two
// tests simulate that drift by creating a valid pipeline and then editing
// its class, rather than trying to write an already-invalid pipeline.
func TestRun_FailedConfigWhenCategoryNotInClass(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, func(p *domain.Pipeline) {
		p.Filter = domain.PipelineFilter{AllCategories: false, Categories: []string{"tech"}, AllSources: true}
	})

	ctx := context.Background()
	class, err := rig.store.GetPipelineClassByID(ctx, rig.p.PipelineClassID)
	if err != nil {
		t.Fatalf("GetPipelineClassByID: %v", err)
	}
	class.AllowedCategories = nil
	if _, err := rig.store.UpdatePipelineClass(ctx, class); err != nil {
		t.Fatalf("UpdatePipelineClass: %v", err)
	}

	run, err := rig.orch.Run(ctx, rig.p.ID, now, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusFailedConfig {
		t.Fatalf("Status = %q, want %q", run.Status, StatusFailedConfig)
	}
}

func TestRun_FailedConfigWhenWriterTypeNotInClass(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, nil)

	ctx := context.Background()
	class, err := rig.store.GetPipelineClassByID(ctx, rig.p.PipelineClassID)
	if err != nil {
		t.Fatalf("GetPipelineClassByID: %v", err)
	}
	class.AllowedWriters = nil
	if _, err := rig.store.UpdatePipelineClass(ctx, class); err != nil {
		t.Fatalf("UpdatePipelineClass: %v", err)
	}

	run, err := rig.orch.Run(ctx, rig.p.ID, now, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusFailedConfig {
		t.Fatalf("Status = %q, want %q", run.Status, StatusFailedConfig)
	}
}

func TestTryAcquire_PreventsConcurrentRunsForSamePipeline(t *testing.T) {
	rig := newTestRig(t, time.Now(), nil)
	if !rig.orch.tryAcquire(rig.p.ID) {
		t.Fatalf("expected the first acquire to succeed")
	}
	if rig.orch.tryAcquire(rig.p.ID) {
		t.Fatalf("expected a second acquire for the same pipeline to fail while the first is in flight")
	}
	rig.orch.release(rig.p.ID)
	if !rig.orch.tryAcquire(rig.p.ID) {
		t.Fatalf("expected acquire to succeed again after release")
	}
}

// A scheduled sweep and a manual push both call Orchestrator.Run for the
// same pipeline ID with no other coordination between them; this guard is
// what keeps them from producing duplicate PipelineRun rows and deliveries.
func TestRun_SkippedInFlightWhenAlreadyRunning(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, nil)

	if !rig.orch.tryAcquire(rig.p.ID) {
		t.Fatalf("expected to acquire the in-flight slot")
	}
	defer rig.orch.release(rig.p.ID)

	run, err := rig.orch.Run(context.Background(), rig.p.ID, now, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusSkippedInFlight {
		t.Fatalf("Status = %q, want %q", run.Status, StatusSkippedInFlight)
	}
	if len(rig.sender.sent) != 0 {
		t.Fatalf("expected no email to be sent for a run skipped as already in-flight")
	}
}

func TestRun_UnknownPipelineReturnsError(t *testing.T) {
	rig := newTestRig(t, time.Now(), nil)
	_, err := rig.orch.Run(context.Background(), rig.p.ID+999, time.Now(), RunOptions{})
	if err == nil {
		t.Fatalf("expected an error for an unknown pipeline id")
	}
}

func TestRunAll_SweepsEnabledPipelines(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, nil)

	runs, errs := rig.orch.RunAll(context.Background(), now, RunOptions{}, nil)
	if len(runs) != 1 || len(errs) != 1 {
		t.Fatalf("runs=%v errs=%v, want one of each", runs, errs)
	}
	if errs[0] != nil {
		t.Fatalf("unexpected error: %v", errs[0])
	}
	if runs[0].Status != StatusSuccess {
		t.Fatalf("Status = %q, want success", runs[0].Status)
	}
}

func TestRunAll_FilterRestrictsSweepToDebugPipelines(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, func(p *domain.Pipeline) { p.DebugEnabled = false })

	runs, errs := rig.orch.RunAll(context.Background(), now, RunOptions{DebugMode: true}, func(p domain.Pipeline) bool {
		return p.DebugEnabled
	})
	if len(runs) != 0 || len(errs) != 0 {
		t.Fatalf("runs=%v errs=%v, want an empty sweep when no pipeline matches the filter", runs, errs)
	}
}

func TestRun_WritesArtifactToOutputDir(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	rig := newTestRig(t, now, nil)

	if _, err := rig.orch.Run(context.Background(), rig.p.ID, now, RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rig.sender.sent) != 1 {
		t.Fatalf("expected an email to have been sent")
	}
	if rig.sender.sent[0].HTMLBody == "" {
		t.Fatalf("expected a non-empty HTML body")
	}

	entries, err := os.ReadDir(rig.orch.outputDir)
	if err != nil {
		t.Fatalf("ReadDir output dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected the output dir to contain a pipeline-<id> subdirectory")
	}
}
