package ranker

import (
	"context"
	"testing"
	"time"

	"github.com/originpress/inkwell/internal/catalogue/memory"
	"github.com/originpress/inkwell/internal/domain"
)

func setupScoredArticle(t *testing.T, store *memory.Store, link, source, category, evaluatorKey string, publish time.Time, metricValues map[int64]int) domain.Article {
	t.Helper()
	ctx := context.Background()
	a, _, err := store.UpsertArticle(ctx, domain.Article{
		Title: link, Link: link, Source: source, Category: category, Publish: publish.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	for metricID, value := range metricValues {
		if err := store.UpsertScore(ctx, domain.Score{ArticleID: a.ID, MetricID: metricID, Value: value}); err != nil {
			t.Fatalf("UpsertScore: %v", err)
		}
	}
	if err := store.UpsertReview(ctx, domain.Review{ArticleID: a.ID, EvaluatorKey: evaluatorKey}); err != nil {
		t.Fatalf("UpsertReview: %v", err)
	}
	return a
}

func TestRank_WeightedMeanAndBonusOrdering(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	relevance, _ := store.CreateMetric(ctx, domain.Metric{Key: "relevance", Active: true})
	clarity, _ := store.CreateMetric(ctx, domain.Metric{Key: "clarity", Active: true})

	now := time.Now().UTC()
	setupScoredArticle(t, store, "https://a/1", "src-a", "tech", "default", now.Add(-time.Hour),
		map[int64]int{relevance.ID: 5, clarity.ID: 3})
	setupScoredArticle(t, store, "https://a/2", "src-b", "tech", "default", now.Add(-2*time.Hour),
		map[int64]int{relevance.ID: 4, clarity.ID: 4})

	p := domain.Pipeline{
		EvaluatorKey: "default",
		Writer: domain.PipelineWriter{
			Hours:   24,
			Weights: map[string]float64{"relevance": 0.5, "clarity": 0.5},
			Bonus:   map[string]float64{"src-b": 1.0},
		},
	}

	groups, err := Rank(ctx, store, p, []string{"src-a", "src-b"}, now)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(groups) != 1 || groups[0].CategoryKey != "tech" {
		t.Fatalf("groups = %+v", groups)
	}
	cands := groups[0].Candidates
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	// src-a: (5*0.5 + 3*0.5) = 4.0, no bonus -> sort 4.0
	// src-b: (4*0.5 + 4*0.5) = 4.0, +1.0 bonus -> sort 5.0
	if cands[0].Article.Source != "src-b" {
		t.Fatalf("expected the bonused article to sort first, got %+v", cands)
	}
	if cands[0].Score != 4.0 {
		t.Fatalf("Score (un-bonused, displayed) = %v, want 4.0", cands[0].Score)
	}
	if cands[0].SortScore != 5.0 {
		t.Fatalf("SortScore (bonus-inclusive) = %v, want 5.0", cands[0].SortScore)
	}

	review, err := store.GetReview(ctx, cands[0].Article.ID, "default")
	if err != nil || review.FinalScore != 4.0 {
		t.Fatalf("GetReview() = %+v, %v, want FinalScore 4.0", review, err)
	}
}

func TestRank_MetricWeightOverrideTakesPrecedence(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	relevance, _ := store.CreateMetric(ctx, domain.Metric{Key: "relevance", Active: true})
	defaultWeight := 0.1
	relevance.DefaultWeight = &defaultWeight
	store.UpdateMetric(ctx, relevance)
	clarity, _ := store.CreateMetric(ctx, domain.Metric{Key: "clarity", Active: true})

	now := time.Now().UTC()
	a := setupScoredArticle(t, store, "https://a/1", "src-a", "tech", "default", now.Add(-time.Hour),
		map[int64]int{relevance.ID: 5, clarity.ID: 1})

	// override: (5*1.0 + 1*1)/2 = 3.0; default weight 0.1 would give 1.36
	p := domain.Pipeline{
		EvaluatorKey: "default",
		Writer:       domain.PipelineWriter{Hours: 24, Weights: map[string]float64{"clarity": 1}},
		Weights:      []domain.PipelineWriterMetricWeight{{MetricID: relevance.ID, Weight: 1.0, Enabled: true}},
	}

	groups, err := Rank(ctx, store, p, []string{"src-a"}, now)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Candidates) != 1 {
		t.Fatalf("groups = %+v", groups)
	}
	if groups[0].Candidates[0].Article.ID != a.ID || groups[0].Candidates[0].Score != 3.0 {
		t.Fatalf("candidate = %+v, want score 3.0 (override weight used)", groups[0].Candidates[0])
	}
}

func TestRank_ArticlesOutsideWindowAreExcluded(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	relevance, _ := store.CreateMetric(ctx, domain.Metric{Key: "relevance", Active: true})
	now := time.Now().UTC()
	setupScoredArticle(t, store, "https://a/old", "src-a", "tech", "default", now.Add(-48*time.Hour), map[int64]int{relevance.ID: 5})
	setupScoredArticle(t, store, "https://a/new", "src-a", "tech", "default", now.Add(-1*time.Hour), map[int64]int{relevance.ID: 5})

	p := domain.Pipeline{EvaluatorKey: "default", Writer: domain.PipelineWriter{Hours: 24, Weights: map[string]float64{"relevance": 1}}}
	groups, err := Rank(ctx, store, p, []string{"src-a"}, now)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(groups[0].Candidates) != 1 || groups[0].Candidates[0].Article.Link != "https://a/new" {
		t.Fatalf("expected only the article inside the window, got %+v", groups[0].Candidates)
	}
}

func TestRank_PerSourceCapAppliedBeforeCategoryCap(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	relevance, _ := store.CreateMetric(ctx, domain.Metric{Key: "relevance", Active: true})
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		setupScoredArticle(t, store, "https://a/"+string(rune('a'+i)), "src-a", "tech", "default", now.Add(-time.Duration(i)*time.Minute), map[int64]int{relevance.ID: 5})
	}
	setupScoredArticle(t, store, "https://a/other", "src-b", "tech", "default", now.Add(-10*time.Minute), map[int64]int{relevance.ID: 5})

	// Sorted: a/a, a/b, a/c, other. Per-source cap first leaves a/a and other;
	// applying the category limit of 2 first would leave only a/a.
	uniform := 2
	p := domain.Pipeline{
		EvaluatorKey: "default",
		Writer: domain.PipelineWriter{
			Hours: 24, Weights: map[string]float64{"relevance": 1}, PerSourceCap: 1,
			LimitPerCategory: domain.LimitPerCategory{Uniform: &uniform},
		},
	}
	groups, err := Rank(ctx, store, p, []string{"src-a", "src-b"}, now)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(groups[0].Candidates) != 2 {
		t.Fatalf("expected per-source cap of 1 to leave 2 candidates (one per source), got %+v", groups[0].Candidates)
	}
}

func TestRank_CategoryLimitTruncates(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	relevance, _ := store.CreateMetric(ctx, domain.Metric{Key: "relevance", Active: true})
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		setupScoredArticle(t, store, "https://a/"+string(rune('a'+i)), "src-a", "tech", "default", now.Add(-time.Duration(i)*time.Minute), map[int64]int{relevance.ID: 5})
	}

	uniform := 2
	p := domain.Pipeline{
		EvaluatorKey: "default",
		Writer: domain.PipelineWriter{
			Hours: 24, Weights: map[string]float64{"relevance": 1},
			LimitPerCategory: domain.LimitPerCategory{Uniform: &uniform},
		},
	}
	groups, err := Rank(ctx, store, p, []string{"src-a"}, now)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(groups[0].Candidates) != 2 {
		t.Fatalf("expected category cap of 2, got %d candidates", len(groups[0].Candidates))
	}
}

func TestRank_UnevaluatedArticleScoresZero(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	store.CreateMetric(ctx, domain.Metric{Key: "relevance", Active: true})
	now := time.Now().UTC()
	// no score, no review at all
	if _, _, err := store.UpsertArticle(ctx, domain.Article{
		Title: "unreviewed", Link: "https://a/unreviewed", Source: "src-a", Category: "tech",
		Publish: now.Add(-time.Hour).Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}

	p := domain.Pipeline{EvaluatorKey: "default", Writer: domain.PipelineWriter{Hours: 24, Weights: map[string]float64{"relevance": 1}}}
	groups, err := Rank(ctx, store, p, []string{"src-a"}, now)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(groups[0].Candidates) != 1 || groups[0].Candidates[0].Score != 0 {
		t.Fatalf("expected the unevaluated article to score 0, got %+v", groups[0].Candidates)
	}
}
