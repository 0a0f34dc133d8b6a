// Package catalogue defines the storage boundary every pipeline stage and
// the admin API depend on. Two implementations satisfy Store: an
// in-memory one for tests and a single-writer SQLite one for production.
package catalogue

import (
	"context"
	"fmt"
	"time"

	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/pkg/apierr"
)

// ArticleWindow scopes a candidate query to a set of sources, a set of
// categories (empty meaning "all"), and an absolute Since cutoff (zero
// meaning no cutoff).
type ArticleWindow struct {
	SourceKeys   []string
	CategoryKeys []string
	Since        time.Time
}

// Store is the full persistence surface. A single embedded database
// backs every method; writers serialize through one connection while
// reads may run concurrently, per the single-writer/multi-reader
// discipline the orchestrator and admin API both rely on.
type Store interface {
	CategoryStore
	SourceStore
	ArticleStore
	MetricStore
	EvaluatorStore
	UserStore
	PipelineClassStore
	PipelineStore

	Close() error
}

// CategoryStore persists content categories.
type CategoryStore interface {
	CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error)
	UpdateCategory(ctx context.Context, c domain.Category) (domain.Category, error)
	GetCategoryByKey(ctx context.Context, key string) (domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// SourceStore persists content sources and their freshness state.
type SourceStore interface {
	CreateSource(ctx context.Context, s domain.Source) (domain.Source, error)
	UpdateSource(ctx context.Context, s domain.Source) (domain.Source, error)
	GetSourceByKey(ctx context.Context, key string) (domain.Source, error)
	ListSources(ctx context.Context) ([]domain.Source, error)
	ListEnabledSources(ctx context.Context) ([]domain.Source, error)

	GetSourceRun(ctx context.Context, sourceID int64) (domain.SourceRun, error)
	UpdateSourceRun(ctx context.Context, sourceID int64, ranAt time.Time) error
}

// ArticleStore persists articles and their AI scoring state.
type ArticleStore interface {
	// UpsertArticle inserts a new article or, if Link already exists,
	// leaves the stored row untouched and returns it (articles are
	// write-once by link; only detail backfill mutates an existing row).
	UpsertArticle(ctx context.Context, a domain.Article) (domain.Article, bool, error)
	GetArticle(ctx context.Context, id int64) (domain.Article, error)
	GetArticleByLink(ctx context.Context, link string) (domain.Article, error)
	SetArticleDetail(ctx context.Context, id int64, detail string) error
	ListArticlesInWindow(ctx context.Context, w ArticleWindow) ([]domain.Article, error)
	ListArticlesMissingDetail(ctx context.Context, w ArticleWindow) ([]domain.Article, error)

	UpsertScore(ctx context.Context, s domain.Score) error
	ListScores(ctx context.Context, articleID int64) ([]domain.Score, error)
	UpsertReview(ctx context.Context, r domain.Review) error
	GetReview(ctx context.Context, articleID int64, evaluatorKey string) (domain.Review, error)
}

// MetricStore persists scoring metrics.
type MetricStore interface {
	CreateMetric(ctx context.Context, m domain.Metric) (domain.Metric, error)
	UpdateMetric(ctx context.Context, m domain.Metric) (domain.Metric, error)
	GetMetricByKey(ctx context.Context, key string) (domain.Metric, error)
	ListMetrics(ctx context.Context) ([]domain.Metric, error)
	ListActiveMetrics(ctx context.Context) ([]domain.Metric, error)
}

// EvaluatorStore persists evaluator prompt configurations.
type EvaluatorStore interface {
	CreateEvaluator(ctx context.Context, e domain.Evaluator) (domain.Evaluator, error)
	UpdateEvaluator(ctx context.Context, e domain.Evaluator) (domain.Evaluator, error)
	GetEvaluatorByKey(ctx context.Context, key string) (domain.Evaluator, error)
	ListEvaluators(ctx context.Context) ([]domain.Evaluator, error)
}

// UserStore persists users and their manual-push counters.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateUserManualPushState(ctx context.Context, u domain.User) error
}

// PipelineClassStore persists allow-listed pipeline classes.
type PipelineClassStore interface {
	CreatePipelineClass(ctx context.Context, c domain.PipelineClass) (domain.PipelineClass, error)
	UpdatePipelineClass(ctx context.Context, c domain.PipelineClass) (domain.PipelineClass, error)
	GetPipelineClassByKey(ctx context.Context, key string) (domain.PipelineClass, error)
	GetPipelineClassByID(ctx context.Context, id int64) (domain.PipelineClass, error)
	ListPipelineClasses(ctx context.Context) ([]domain.PipelineClass, error)
}

// PipelineStore persists pipelines and their run history.
type PipelineStore interface {
	CreatePipeline(ctx context.Context, p domain.Pipeline) (domain.Pipeline, error)
	UpdatePipeline(ctx context.Context, p domain.Pipeline) (domain.Pipeline, error)
	DeletePipeline(ctx context.Context, id int64) error
	GetPipeline(ctx context.Context, id int64) (domain.Pipeline, error)
	ListPipelines(ctx context.Context) ([]domain.Pipeline, error)
	ListEnabledPipelines(ctx context.Context) ([]domain.Pipeline, error)

	RecordPipelineRun(ctx context.Context, run domain.PipelineRun) (domain.PipelineRun, error)
	ListPipelineRuns(ctx context.Context, pipelineID int64, limit int) ([]domain.PipelineRun, error)
}

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "catalogue: not found" }

// ErrConflict is returned when a uniqueness invariant would be violated.
var ErrConflict = conflictError{}

type conflictError struct{}

func (conflictError) Error() string { return "catalogue: conflict" }

// ValidatePipelineClassTriple checks p's categories, evaluator_key and
// writer.type against class's allow-lists, returning an
// apierr.InvalidCatalogueWrite error on the first violation. Both store
// backends call this from CreatePipeline and UpdatePipeline so a
// class-violating write is rejected at the catalogue boundary rather than
// only discovered later, at run time.
func ValidatePipelineClassTriple(class domain.PipelineClass, p domain.Pipeline) error {
	if !class.Enabled {
		return apierr.InvalidCatalogueWrite("pipeline_class_id", fmt.Sprintf("pipeline class %q is disabled", class.Key))
	}
	if !p.Filter.AllCategories {
		for _, cat := range p.Filter.Categories {
			if !class.AllowsCategory(cat) {
				return apierr.InvalidCatalogueWrite("filter.categories", fmt.Sprintf("category %q not allowed by pipeline class %q", cat, class.Key))
			}
		}
	}
	if !class.AllowsEvaluator(p.EvaluatorKey) {
		return apierr.InvalidCatalogueWrite("evaluator_key", fmt.Sprintf("evaluator %q not allowed by pipeline class %q", p.EvaluatorKey, class.Key))
	}
	if !class.AllowsWriter(p.Writer.Type) {
		return apierr.InvalidCatalogueWrite("writer.type", fmt.Sprintf("writer type %q not allowed by pipeline class %q", p.Writer.Type, class.Key))
	}
	return nil
}
