// Package ranker selects, scores, groups and caps the candidate articles
// for a pipeline's write pass. It owns the one piece of scoring state
// that's allowed to mutate after the evaluator runs: a Review's
// FinalScore, recomputed here each time a pipeline writes so the
// persisted value always matches what was last displayed.
package ranker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
)

// Candidate is one article positioned for emission. Score is the
// un-bonused weighted mean, clamped to [1,5] — this is the value
// persisted to Review.FinalScore and shown to readers. SortScore is
// Score plus the source bonus and is used for ordering only; it may
// exceed 5.
type Candidate struct {
	Article   domain.Article
	Score     float64
	SortScore float64
}

// Group is one category's ordered, capped candidate list.
type Group struct {
	CategoryKey string
	Candidates  []Candidate
}

// WindowArticles resolves the same write-pass candidate window the ranker
// scores over: articles from sourceKeys published within the last hours,
// discarding rows whose publish timestamp doesn't parse. The evaluator
// runs over this same window ahead of Rank so nothing reaches the writer
// unevaluated.
func WindowArticles(ctx context.Context, store catalogue.Store, sourceKeys []string, hours int, now time.Time) ([]domain.Article, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("ranker: writer.hours must be > 0, got %d", hours)
	}
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	windowed, err := store.ListArticlesInWindow(ctx, catalogue.ArticleWindow{SourceKeys: sourceKeys, Since: cutoff})
	if err != nil {
		return nil, fmt.Errorf("ranker: list articles in window: %w", err)
	}
	articles := make([]domain.Article, 0, len(windowed))
	for _, a := range windowed {
		published, perr := time.Parse(time.RFC3339, a.Publish)
		if perr != nil {
			continue // unparseable publish excludes the row
		}
		if published.Before(cutoff) {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// Rank runs steps 2-5 of the ranking algorithm: it windows articles from
// sourceKeys by the writer's hours, scores each by the pipeline's
// effective metric weights, and groups/caps the result by category.
func Rank(ctx context.Context, store catalogue.Store, p domain.Pipeline, sourceKeys []string, now time.Time) ([]Group, error) {
	articles, err := WindowArticles(ctx, store, sourceKeys, p.Writer.Hours, now)
	if err != nil {
		return nil, err
	}

	metrics, err := store.ListActiveMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("ranker: list active metrics: %w", err)
	}
	weights := effectiveWeights(p, metrics)

	candidates, err := buildCandidates(ctx, store, p, weights, articles)
	if err != nil {
		return nil, err
	}

	return groupAndCap(candidates, p.Writer.PerSourceCap, p.Writer.LimitPerCategory), nil
}

// effectiveWeights resolves the per-metric weight precedence: an enabled
// PipelineWriterMetricWeight override, else writer.weights_json by metric
// key, else the metric's own default weight (0 when unset).
func effectiveWeights(p domain.Pipeline, metrics []domain.Metric) map[int64]float64 {
	overrides := make(map[int64]float64, len(p.Weights))
	for _, w := range p.Weights {
		if w.Enabled {
			overrides[w.MetricID] = w.Weight
		}
	}
	weights := make(map[int64]float64, len(metrics))
	for _, m := range metrics {
		if w, ok := overrides[m.ID]; ok {
			weights[m.ID] = w
			continue
		}
		if w, ok := p.Writer.Weights[m.Key]; ok {
			weights[m.ID] = w
			continue
		}
		weights[m.ID] = m.EffectiveDefaultWeight()
	}
	return weights
}

func buildCandidates(ctx context.Context, store catalogue.Store, p domain.Pipeline, weights map[int64]float64, articles []domain.Article) ([]Candidate, error) {
	out := make([]Candidate, 0, len(articles))
	for _, a := range articles {
		scores, err := store.ListScores(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("ranker: list scores for article %d: %w", a.ID, err)
		}
		score := weightedMean(scores, weights)

		review, err := store.GetReview(ctx, a.ID, p.EvaluatorKey)
		switch err {
		case nil:
			review.FinalScore = score
			if uerr := store.UpsertReview(ctx, review); uerr != nil {
				return nil, fmt.Errorf("ranker: persist final score for article %d: %w", a.ID, uerr)
			}
		case catalogue.ErrNotFound:
			score = 0
			// article not yet evaluated by this pipeline's evaluator; it
			// contributes no score and ranks at the bottom of its group.
		default:
			return nil, fmt.Errorf("ranker: load review for article %d: %w", a.ID, err)
		}

		bonus := p.Writer.Bonus[a.Source]
		out = append(out, Candidate{Article: a, Score: score, SortScore: score + bonus})
	}
	return out, nil
}

func weightedMean(scores []domain.Score, weights map[int64]float64) float64 {
	var sumWeight, sumWeightedValue float64
	for _, sc := range scores {
		w, ok := weights[sc.MetricID]
		if !ok || w <= 0 {
			continue
		}
		sumWeight += w
		sumWeightedValue += w * float64(sc.Value)
	}
	if sumWeight == 0 {
		return 0
	}
	mean := sumWeightedValue / sumWeight
	if mean < 1 {
		mean = 1
	}
	if mean > 5 {
		mean = 5
	}
	return math.Round(mean*100) / 100
}

func groupAndCap(candidates []Candidate, perSourceCap int, limitPerCategory domain.LimitPerCategory) []Group {
	order := make([]string, 0)
	byCategory := make(map[string][]Candidate)
	for _, c := range candidates {
		cat := c.Article.Category
		if _, seen := byCategory[cat]; !seen {
			order = append(order, cat)
		}
		byCategory[cat] = append(byCategory[cat], c)
	}

	groups := make([]Group, 0, len(order))
	for _, cat := range order {
		list := byCategory[cat]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].SortScore != list[j].SortScore {
				return list[i].SortScore > list[j].SortScore
			}
			if list[i].Article.Publish != list[j].Article.Publish {
				return list[i].Article.Publish > list[j].Article.Publish
			}
			return list[i].Article.ID > list[j].Article.ID
		})

		capped := make([]Candidate, 0, len(list))
		perSourceCount := make(map[string]int)
		for _, c := range list {
			if perSourceCap > 0 {
				if perSourceCount[c.Article.Source] >= perSourceCap {
					continue
				}
				perSourceCount[c.Article.Source]++
			}
			capped = append(capped, c)
		}

		catCap := limitPerCategory.LimitFor(cat)
		if catCap > 0 && len(capped) > catCap {
			capped = capped[:catCap]
		}
		groups = append(groups, Group{CategoryKey: cat, Candidates: capped})
	}
	return groups
}
