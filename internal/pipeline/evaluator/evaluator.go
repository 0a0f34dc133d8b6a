// Package evaluator scores articles with an LLM against a pipeline's
// evaluator configuration: it renders a prompt per article, invokes the
// LLM client with bounded retry and a minimum inter-request interval,
// validates the response, and upserts Score and Review rows.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/internal/llm"
	"github.com/originpress/inkwell/pkg/apierr"
	"github.com/originpress/inkwell/pkg/logger"
	"github.com/originpress/inkwell/pkg/resilience"
)

// DefaultCompletionTimeout bounds a single LLM call.
const DefaultCompletionTimeout = 30 * time.Second

// DefaultMinInterval is the minimum spacing between two LLM calls made by
// one Evaluator, regardless of which article they're scoring.
const DefaultMinInterval = 1 * time.Second

// Evaluator scores articles against one evaluator configuration.
type Evaluator struct {
	store   catalogue.Store
	client  llm.Client
	log     *logger.Logger
	timeout time.Duration
	retry   resilience.Config

	rateMu      sync.Mutex
	minInterval time.Duration
	lastCallAt  time.Time
}

// Option configures an Evaluator at construction time.
type Option func(*Evaluator)

// WithCompletionTimeout overrides DefaultCompletionTimeout.
func WithCompletionTimeout(d time.Duration) Option {
	return func(e *Evaluator) { e.timeout = d }
}

// WithMinInterval overrides DefaultMinInterval.
func WithMinInterval(d time.Duration) Option {
	return func(e *Evaluator) { e.minInterval = d }
}

// WithRetryConfig overrides the resilience.Retry configuration used around
// each LLM call.
func WithRetryConfig(cfg resilience.Config) Option {
	return func(e *Evaluator) { e.retry = cfg }
}

// New builds an Evaluator. log is optional; a default logger is used when nil.
func New(store catalogue.Store, client llm.Client, log *logger.Logger, opts ...Option) *Evaluator {
	if log == nil {
		log = logger.NewDefault()
	}
	e := &Evaluator{
		store:       store,
		client:      client,
		log:         log,
		timeout:     DefaultCompletionTimeout,
		retry:       resilience.DefaultConfig(),
		minInterval: DefaultMinInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ArticleOutcome summarizes one article's evaluation attempt.
type ArticleOutcome struct {
	ArticleID int64
	Skipped   bool // a Review already exists for this (article, evaluator)
	Err       error
}

// Run evaluates every article in articles against ev, skipping any that
// already carry a Review for ev.Key.
func (e *Evaluator) Run(ctx context.Context, p domain.Pipeline, ev domain.Evaluator, articles []domain.Article) ([]ArticleOutcome, error) {
	metrics, err := e.allowedMetrics(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("evaluator: load metrics: %w", err)
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("evaluator: evaluator %q has no active permitted metrics", ev.Key)
	}
	metricsBlock := renderMetricsBlock(metrics)
	schemaExample := renderSchemaExample(metrics)

	outcomes := make([]ArticleOutcome, 0, len(articles))
	for _, a := range articles {
		outcomes = append(outcomes, e.evaluateArticle(ctx, ev, metrics, metricsBlock, schemaExample, a))
	}
	return outcomes, nil
}

func (e *Evaluator) allowedMetrics(ctx context.Context, ev domain.Evaluator) ([]domain.Metric, error) {
	active, err := e.store.ListActiveMetrics(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Metric, 0, len(active))
	for _, m := range active {
		if ev.Allows(m.ID) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func renderMetricsBlock(metrics []domain.Metric) string {
	lines := make([]string, len(metrics))
	for i, m := range metrics {
		lines[i] = fmt.Sprintf("%s — %s", m.Key, m.RateGuide)
	}
	return strings.Join(lines, "\n")
}

func renderSchemaExample(metrics []domain.Metric) string {
	dims := make(map[string]int, len(metrics))
	for _, m := range metrics {
		dims[m.Key] = 5
	}
	example := llm.ScoreEnvelope{
		DimensionScores: dims,
		Comment:         "one sentence on why this article matters",
		Summary:         "a short summary of the article",
		KeyConcepts:     []string{"concept one", "concept two"},
		SummaryLong:     "a longer summary, up to 50 characters",
	}
	raw, _ := json.Marshal(example)
	return string(raw)
}

func renderPrompt(template string, a domain.Article, metricsBlock, schemaExample string) string {
	replacer := strings.NewReplacer(
		"{{title}}", a.Title,
		"{{source}}", a.Source,
		"{{publish}}", a.Publish,
		"{{detail}}", a.Detail,
		"{{metrics_block}}", metricsBlock,
		"{{schema_example}}", schemaExample,
	)
	return replacer.Replace(template)
}

func (e *Evaluator) evaluateArticle(ctx context.Context, ev domain.Evaluator, metrics []domain.Metric, metricsBlock, schemaExample string, a domain.Article) ArticleOutcome {
	outcome := ArticleOutcome{ArticleID: a.ID}

	if _, err := e.store.GetReview(ctx, a.ID, ev.Key); err == nil {
		outcome.Skipped = true
		return outcome
	} else if err != catalogue.ErrNotFound {
		outcome.Err = err
		return outcome
	}

	prompt := renderPrompt(ev.PromptTemplate, a, metricsBlock, schemaExample)

	resp, err := e.complete(ctx, prompt)
	if err != nil {
		outcome.Err = fmt.Errorf("evaluator: complete article %d: %w", a.ID, err)
		e.log.WithError(err).WithField("article_id", a.ID).Warn("llm completion failed")
		return outcome
	}

	var envelope llm.ScoreEnvelope
	if err := json.Unmarshal([]byte(resp.Text), &envelope); err != nil {
		outcome.Err = fmt.Errorf("evaluator: article %d: response is not valid JSON: %w", a.ID, err)
		e.log.WithField("article_id", a.ID).Warn("evaluator response was not valid JSON, skipping")
		return outcome
	}
	if err := validateEnvelope(envelope, metrics); err != nil {
		outcome.Err = fmt.Errorf("evaluator: article %d: %w", a.ID, err)
		e.log.WithField("article_id", a.ID).Warn("evaluator response failed validation, skipping")
		return outcome
	}

	allowedKeys := make(map[string]int64, len(metrics))
	for _, m := range metrics {
		allowedKeys[m.Key] = m.ID
	}
	for key, value := range envelope.DimensionScores {
		metricID, ok := allowedKeys[key]
		if !ok {
			e.log.WithField("article_id", a.ID).WithField("metric", key).Warn("dropping score for metric outside evaluator's allow-list")
			continue
		}
		if err := e.store.UpsertScore(ctx, domain.Score{ArticleID: a.ID, MetricID: metricID, Value: value}); err != nil {
			outcome.Err = fmt.Errorf("evaluator: upsert score for article %d metric %q: %w", a.ID, key, err)
			return outcome
		}
	}

	summaryLong := envelope.SummaryLong
	if len(summaryLong) > 50 {
		summaryLong = summaryLong[:50]
	}
	review := domain.Review{
		ArticleID:     a.ID,
		EvaluatorKey:  ev.Key,
		FinalScore:    0, // recomputed by the ranker at write time
		AIComment:     envelope.Comment,
		AISummary:     envelope.Summary,
		AIKeyConcepts: envelope.KeyConcepts,
		AISummaryLong: summaryLong,
		RawResponse:   resp.Raw,
	}
	if err := e.store.UpsertReview(ctx, review); err != nil {
		outcome.Err = fmt.Errorf("evaluator: upsert review for article %d: %w", a.ID, err)
	}
	return outcome
}

// validateEnvelope checks that every allow-listed metric is present with an
// in-range score. Extra, non-allow-listed keys are not an error here: the
// caller drops them individually (with a warning) rather than rejecting
// the whole response, so one unauthorized metric key doesn't cost the
// article its evaluation.
func validateEnvelope(env llm.ScoreEnvelope, metrics []domain.Metric) error {
	for _, m := range metrics {
		v, ok := env.DimensionScores[m.Key]
		if !ok {
			return fmt.Errorf("dimension_scores missing key %q", m.Key)
		}
		if v < 1 || v > 5 {
			return fmt.Errorf("dimension_scores[%q] = %d, want 1..5", m.Key, v)
		}
	}
	if env.Comment == "" {
		return fmt.Errorf("comment must be non-empty")
	}
	if env.Summary == "" {
		return fmt.Errorf("summary must be non-empty")
	}
	return nil
}

// complete enforces the configured minimum inter-request interval and
// wraps the call with bounded retry.
func (e *Evaluator) complete(ctx context.Context, prompt string) (llm.Response, error) {
	if err := e.waitForSlot(ctx); err != nil {
		return llm.Response{}, err
	}

	var resp llm.Response
	err := resilience.Retry(ctx, e.retry, func() error {
		var err error
		resp, err = e.client.Complete(ctx, prompt, e.timeout)
		return err
	})
	if err != nil {
		if apierr.Is(err, apierr.KindThrottled) {
			e.log.Warn("llm rate limited, backed off per retry policy")
		}
		return llm.Response{}, err
	}
	return resp, nil
}

func (e *Evaluator) waitForSlot(ctx context.Context) error {
	e.rateMu.Lock()
	wait := e.minInterval - time.Since(e.lastCallAt)
	if wait < 0 {
		wait = 0
	}
	e.lastCallAt = time.Now().Add(wait)
	e.rateMu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return apierr.Cancelled("evaluator:rate_wait", ctx.Err())
	}
}
