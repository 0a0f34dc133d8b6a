// Package memory is a thread-safe in-memory implementation of
// catalogue.Store, for tests and local development. It deliberately
// keeps the implementation simple: every read and write takes the same
// mutex, there is no query planner, filtering happens in Go.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
)

// Store is an in-memory catalogue.Store.
type Store struct {
	mu sync.RWMutex

	nextID int64

	categories map[string]domain.Category // by key
	sources    map[string]domain.Source   // by key
	sourceRuns map[int64]domain.SourceRun // by source id

	articles      map[int64]domain.Article
	articlesByKey map[string]int64 // link -> id
	scores        map[int64]map[int64]domain.Score            // articleID -> metricID -> score
	reviews       map[int64]map[string]domain.Review           // articleID -> evaluatorKey -> review
	metrics       map[string]domain.Metric                     // by key
	evaluators    map[string]domain.Evaluator                  // by key
	users         map[int64]domain.User
	usersByEmail  map[string]int64
	pipeClasses   map[string]domain.PipelineClass // by key
	pipelines     map[int64]domain.Pipeline
	pipelineRuns  map[int64][]domain.PipelineRun // pipelineID -> runs, oldest first
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		nextID:        1,
		categories:    make(map[string]domain.Category),
		sources:       make(map[string]domain.Source),
		sourceRuns:    make(map[int64]domain.SourceRun),
		articles:      make(map[int64]domain.Article),
		articlesByKey: make(map[string]int64),
		scores:        make(map[int64]map[int64]domain.Score),
		reviews:       make(map[int64]map[string]domain.Review),
		metrics:       make(map[string]domain.Metric),
		evaluators:    make(map[string]domain.Evaluator),
		users:         make(map[int64]domain.User),
		usersByEmail:  make(map[string]int64),
		pipeClasses:   make(map[string]domain.PipelineClass),
		pipelines:     make(map[int64]domain.Pipeline),
		pipelineRuns:  make(map[int64][]domain.PipelineRun),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) nextIDLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// Categories ------------------------------------------------------------

func (s *Store) CreateCategory(_ context.Context, c domain.Category) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.categories[c.Key]; exists {
		return domain.Category{}, catalogue.ErrConflict
	}
	if c.ID == 0 {
		c.ID = s.nextIDLocked()
	}
	s.categories[c.Key] = c
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, c domain.Category) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.categories[c.Key]; !exists {
		return domain.Category{}, catalogue.ErrNotFound
	}
	s.categories[c.Key] = c
	return c, nil
}

func (s *Store) GetCategoryByKey(_ context.Context, key string) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[key]
	if !ok {
		return domain.Category{}, catalogue.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Sources -----------------------------------------------------------------

func (s *Store) CreateSource(_ context.Context, src domain.Source) (domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sources[src.Key]; exists {
		return domain.Source{}, catalogue.ErrConflict
	}
	if src.ID == 0 {
		src.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	src.CreatedAt, src.UpdatedAt = now, now
	s.sources[src.Key] = src
	return src, nil
}

func (s *Store) UpdateSource(_ context.Context, src domain.Source) (domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.sources[src.Key]
	if !exists {
		return domain.Source{}, catalogue.ErrNotFound
	}
	src.ID = existing.ID
	src.CreatedAt = existing.CreatedAt
	src.UpdatedAt = time.Now().UTC()
	s.sources[src.Key] = src
	return src, nil
}

func (s *Store) GetSourceByKey(_ context.Context, key string) (domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[key]
	if !ok {
		return domain.Source{}, catalogue.ErrNotFound
	}
	return src, nil
}

func (s *Store) ListSources(_ context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) ListEnabledSources(ctx context.Context) ([]domain.Source, error) {
	all, _ := s.ListSources(ctx)
	out := make([]domain.Source, 0, len(all))
	for _, src := range all {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *Store) GetSourceRun(_ context.Context, sourceID int64) (domain.SourceRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.sourceRuns[sourceID]
	if !ok {
		return domain.SourceRun{SourceID: sourceID}, nil
	}
	return run, nil
}

func (s *Store) UpdateSourceRun(_ context.Context, sourceID int64, ranAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceRuns[sourceID] = domain.SourceRun{SourceID: sourceID, LastRunAt: ranAt}
	return nil
}

// Articles ------------------------------------------------------------------

func (s *Store) UpsertArticle(_ context.Context, a domain.Article) (domain.Article, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, exists := s.articlesByKey[a.Link]; exists {
		return s.articles[id], false, nil
	}
	a.ID = s.nextIDLocked()
	s.articles[a.ID] = a
	s.articlesByKey[a.Link] = a.ID
	return a, true, nil
}

func (s *Store) GetArticle(_ context.Context, id int64) (domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return domain.Article{}, catalogue.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetArticleByLink(_ context.Context, link string) (domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.articlesByKey[link]
	if !ok {
		return domain.Article{}, catalogue.ErrNotFound
	}
	return s.articles[id], nil
}

func (s *Store) SetArticleDetail(_ context.Context, id int64, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return catalogue.ErrNotFound
	}
	a.Detail = detail
	s.articles[id] = a
	return nil
}

func matchesWindow(a domain.Article, w catalogue.ArticleWindow) bool {
	if len(w.SourceKeys) > 0 && !containsFold(w.SourceKeys, a.Source) {
		return false
	}
	if len(w.CategoryKeys) > 0 && !containsFold(w.CategoryKeys, a.Category) {
		return false
	}
	if !w.Since.IsZero() {
		published, err := time.Parse(time.RFC3339, a.Publish)
		if err == nil && published.Before(w.Since) {
			return false
		}
	}
	return true
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func (s *Store) ListArticlesInWindow(_ context.Context, w catalogue.ArticleWindow) ([]domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Article, 0)
	for _, a := range s.articles {
		if matchesWindow(a, w) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Publish > out[j].Publish })
	return out, nil
}

func (s *Store) ListArticlesMissingDetail(ctx context.Context, w catalogue.ArticleWindow) ([]domain.Article, error) {
	matches, err := s.ListArticlesInWindow(ctx, w)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Article, 0)
	for _, a := range matches {
		if a.NeedsDetail() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) UpsertScore(_ context.Context, sc domain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMetric, ok := s.scores[sc.ArticleID]
	if !ok {
		byMetric = make(map[int64]domain.Score)
		s.scores[sc.ArticleID] = byMetric
	}
	byMetric[sc.MetricID] = sc
	return nil
}

func (s *Store) ListScores(_ context.Context, articleID int64) ([]domain.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byMetric := s.scores[articleID]
	out := make([]domain.Score, 0, len(byMetric))
	for _, sc := range byMetric {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MetricID < out[j].MetricID })
	return out, nil
}

func (s *Store) UpsertReview(_ context.Context, r domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byEvaluator, ok := s.reviews[r.ArticleID]
	if !ok {
		byEvaluator = make(map[string]domain.Review)
		s.reviews[r.ArticleID] = byEvaluator
	}
	byEvaluator[r.EvaluatorKey] = r
	return nil
}

func (s *Store) GetReview(_ context.Context, articleID int64, evaluatorKey string) (domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byEvaluator, ok := s.reviews[articleID]
	if !ok {
		return domain.Review{}, catalogue.ErrNotFound
	}
	r, ok := byEvaluator[evaluatorKey]
	if !ok {
		return domain.Review{}, catalogue.ErrNotFound
	}
	return r, nil
}

// Metrics -------------------------------------------------------------------

func (s *Store) CreateMetric(_ context.Context, m domain.Metric) (domain.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.metrics[m.Key]; exists {
		return domain.Metric{}, catalogue.ErrConflict
	}
	if m.ID == 0 {
		m.ID = s.nextIDLocked()
	}
	s.metrics[m.Key] = m
	return m, nil
}

func (s *Store) UpdateMetric(_ context.Context, m domain.Metric) (domain.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.metrics[m.Key]
	if !exists {
		return domain.Metric{}, catalogue.ErrNotFound
	}
	m.ID = existing.ID
	s.metrics[m.Key] = m
	return m, nil
}

func (s *Store) GetMetricByKey(_ context.Context, key string) (domain.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[key]
	if !ok {
		return domain.Metric{}, catalogue.ErrNotFound
	}
	return m, nil
}

func (s *Store) ListMetrics(_ context.Context) ([]domain.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Metric, 0, len(s.metrics))
	for _, m := range s.metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (s *Store) ListActiveMetrics(ctx context.Context) ([]domain.Metric, error) {
	all, _ := s.ListMetrics(ctx)
	out := make([]domain.Metric, 0, len(all))
	for _, m := range all {
		if m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

// Evaluators ------------------------------------------------------------------

func (s *Store) CreateEvaluator(_ context.Context, e domain.Evaluator) (domain.Evaluator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.evaluators[e.Key]; exists {
		return domain.Evaluator{}, catalogue.ErrConflict
	}
	if e.ID == 0 {
		e.ID = s.nextIDLocked()
	}
	s.evaluators[e.Key] = e
	return e, nil
}

func (s *Store) UpdateEvaluator(_ context.Context, e domain.Evaluator) (domain.Evaluator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.evaluators[e.Key]
	if !exists {
		return domain.Evaluator{}, catalogue.ErrNotFound
	}
	e.ID = existing.ID
	s.evaluators[e.Key] = e
	return e, nil
}

func (s *Store) GetEvaluatorByKey(_ context.Context, key string) (domain.Evaluator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.evaluators[key]
	if !ok {
		return domain.Evaluator{}, catalogue.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListEvaluators(_ context.Context) ([]domain.Evaluator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Evaluator, 0, len(s.evaluators))
	for _, e := range s.evaluators {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Users -----------------------------------------------------------------------

func (s *Store) GetUser(_ context.Context, id int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, catalogue.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return domain.User{}, catalogue.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) UpdateUserManualPushState(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextIDLocked()
	}
	s.users[u.ID] = u
	s.usersByEmail[strings.ToLower(u.Email)] = u.ID
	return nil
}

// PipelineClasses ---------------------------------------------------------

func (s *Store) CreatePipelineClass(_ context.Context, c domain.PipelineClass) (domain.PipelineClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pipeClasses[c.Key]; exists {
		return domain.PipelineClass{}, catalogue.ErrConflict
	}
	if c.ID == 0 {
		c.ID = s.nextIDLocked()
	}
	s.pipeClasses[c.Key] = c
	return c, nil
}

func (s *Store) UpdatePipelineClass(_ context.Context, c domain.PipelineClass) (domain.PipelineClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.pipeClasses[c.Key]
	if !exists {
		return domain.PipelineClass{}, catalogue.ErrNotFound
	}
	c.ID = existing.ID
	s.pipeClasses[c.Key] = c
	return c, nil
}

func (s *Store) GetPipelineClassByKey(_ context.Context, key string) (domain.PipelineClass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.pipeClasses[key]
	if !ok {
		return domain.PipelineClass{}, catalogue.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetPipelineClassByID(_ context.Context, id int64) (domain.PipelineClass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.pipeClasses {
		if c.ID == id {
			return c, nil
		}
	}
	return domain.PipelineClass{}, catalogue.ErrNotFound
}

func (s *Store) ListPipelineClasses(_ context.Context) ([]domain.PipelineClass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PipelineClass, 0, len(s.pipeClasses))
	for _, c := range s.pipeClasses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Pipelines -----------------------------------------------------------------

func (s *Store) CreatePipeline(_ context.Context, p domain.Pipeline) (domain.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validatePipelineClassTripleLocked(p); err != nil {
		return domain.Pipeline{}, err
	}
	if p.ID == 0 {
		p.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.pipelines[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePipeline(_ context.Context, p domain.Pipeline) (domain.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.pipelines[p.ID]
	if !exists {
		return domain.Pipeline{}, catalogue.ErrNotFound
	}
	if err := s.validatePipelineClassTripleLocked(p); err != nil {
		return domain.Pipeline{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.pipelines[p.ID] = p
	return p, nil
}

// validatePipelineClassTripleLocked enforces the same class-allow-list
// check the sqlite backend applies, against the in-memory class index.
// Callers must already hold s.mu.
func (s *Store) validatePipelineClassTripleLocked(p domain.Pipeline) error {
	for _, c := range s.pipeClasses {
		if c.ID == p.PipelineClassID {
			return catalogue.ValidatePipelineClassTriple(c, p)
		}
	}
	return catalogue.ErrNotFound
}

func (s *Store) DeletePipeline(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pipelines[id]; !exists {
		return catalogue.ErrNotFound
	}
	delete(s.pipelines, id)
	delete(s.pipelineRuns, id)
	return nil
}

func (s *Store) GetPipeline(_ context.Context, id int64) (domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[id]
	if !ok {
		return domain.Pipeline{}, catalogue.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPipelines(_ context.Context) ([]domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListEnabledPipelines(ctx context.Context) ([]domain.Pipeline, error) {
	all, _ := s.ListPipelines(ctx)
	out := make([]domain.Pipeline, 0, len(all))
	for _, p := range all {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) RecordPipelineRun(_ context.Context, run domain.PipelineRun) (domain.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == 0 {
		run.ID = s.nextIDLocked()
	}
	s.pipelineRuns[run.PipelineID] = append(s.pipelineRuns[run.PipelineID], run)
	return run, nil
}

func (s *Store) ListPipelineRuns(_ context.Context, pipelineID int64, limit int) ([]domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := s.pipelineRuns[pipelineID]
	out := make([]domain.PipelineRun, len(runs))
	copy(out, runs)
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ catalogue.Store = (*Store)(nil)
