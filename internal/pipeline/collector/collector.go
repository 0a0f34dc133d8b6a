// Package collector drives one pass of article collection: for each
// source in a pipeline's selection set, it fetches the current listing,
// upserts new articles, backfills detail bodies for a bounded batch of
// articles still missing one, and records the source's last-run time.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/internal/fetch"
	"github.com/originpress/inkwell/internal/scraper"
	"github.com/originpress/inkwell/pkg/logger"
)

// DefaultFreshnessWindow is the minimum time between two collections of
// the same source, so pipelines sharing a source don't duplicate work.
const DefaultFreshnessWindow = 2 * time.Hour

// DefaultDetailBatchSize bounds how many missing-detail articles a single
// collection pass backfills per source.
const DefaultDetailBatchSize = 20

// DefaultSourceConcurrency bounds how many sources Run processes at once.
// Each source itself is still collected sequentially (list, then detail
// backfill one article at a time).
const DefaultSourceConcurrency = 10

// Collector runs the collection step described above.
type Collector struct {
	store             catalogue.Store
	registry          *scraper.Registry
	fetcher           *fetch.Fetcher
	log               *logger.Logger
	freshnessWindow   time.Duration
	detailBatchSize   int
	sourceConcurrency int
}

// Option configures a Collector at construction time.
type Option func(*Collector)

// WithFreshnessWindow overrides DefaultFreshnessWindow.
func WithFreshnessWindow(d time.Duration) Option {
	return func(c *Collector) { c.freshnessWindow = d }
}

// WithDetailBatchSize overrides DefaultDetailBatchSize.
func WithDetailBatchSize(n int) Option {
	return func(c *Collector) { c.detailBatchSize = n }
}

// WithSourceConcurrency overrides DefaultSourceConcurrency.
func WithSourceConcurrency(n int) Option {
	return func(c *Collector) { c.sourceConcurrency = n }
}

// New builds a Collector. log is optional; a default logger is used when nil.
func New(store catalogue.Store, registry *scraper.Registry, fetcher *fetch.Fetcher, log *logger.Logger, opts ...Option) *Collector {
	if log == nil {
		log = logger.NewDefault()
	}
	c := &Collector{
		store:             store,
		registry:          registry,
		fetcher:           fetcher,
		log:               log,
		freshnessWindow:   DefaultFreshnessWindow,
		detailBatchSize:   DefaultDetailBatchSize,
		sourceConcurrency: DefaultSourceConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SourceOutcome summarizes one source's collection pass.
type SourceOutcome struct {
	SourceKey         string
	Skipped           bool
	SkipReason        string
	ArticlesInserted  int
	DetailsBackfilled int
	Err               error
}

// Run collects every source in sources, up to sourceConcurrency at once,
// never aborting on a single source's failure — each outcome carries its
// own error, if any. Result order matches the input source order
// regardless of which source finished first.
func (c *Collector) Run(ctx context.Context, sources []domain.Source) []SourceOutcome {
	outcomes := make([]SourceOutcome, len(sources))

	limit := c.sourceConcurrency
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, src := range sources {
		i, src := i, src
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = c.collectSource(ctx, src)
		}()
	}
	wg.Wait()
	return outcomes
}

func (c *Collector) collectSource(ctx context.Context, src domain.Source) SourceOutcome {
	outcome := SourceOutcome{SourceKey: src.Key}

	run, err := c.store.GetSourceRun(ctx, src.ID)
	if err != nil {
		outcome.Err = fmt.Errorf("collector: load source run for %q: %w", src.Key, err)
		return outcome
	}
	if run.WithinFreshnessWindow(time.Now().UTC(), c.freshnessWindow) {
		outcome.Skipped = true
		outcome.SkipReason = "reused within freshness window"
		c.log.WithField("source", src.Key).Info("skipping collection: reused within freshness window")
		return outcome
	}

	scr, ok := c.registry.Lookup(src.ScriptPath)
	if !ok {
		outcome.Err = fmt.Errorf("collector: no scraper registered for script_path %q", src.ScriptPath)
		c.log.WithField("source", src.Key).WithField("script_path", src.ScriptPath).Warn("scraper module failed to load")
		return outcome
	}

	listings, err := scr.List(ctx, c.fetcher)
	if err != nil {
		outcome.Err = fmt.Errorf("collector: list %q: %w", src.Key, err)
		c.log.WithError(err).WithField("source", src.Key).Warn("scraper list failed")
		return outcome
	}

	for _, l := range listings {
		a := domain.Article{
			Source:   src.Key,
			Category: src.CategoryKey,
			Title:    l.Title,
			Link:     l.Link,
			Publish:  l.Publish,
			ImgLink:  l.ImgLink,
		}
		if !a.Valid() {
			continue
		}
		_, created, err := c.store.UpsertArticle(ctx, a)
		if err != nil {
			c.log.WithError(err).WithField("link", a.Link).Warn("article upsert failed")
			continue
		}
		if created {
			outcome.ArticlesInserted++
		}
	}

	missing, err := c.store.ListArticlesMissingDetail(ctx, catalogue.ArticleWindow{SourceKeys: []string{src.Key}})
	if err != nil {
		c.log.WithError(err).WithField("source", src.Key).Warn("listing articles missing detail failed")
	} else {
		if len(missing) > c.detailBatchSize {
			missing = missing[:c.detailBatchSize]
		}
		for _, a := range missing {
			detail, err := scr.FetchDetail(ctx, c.fetcher, a.Link)
			if err != nil {
				c.log.WithError(err).WithField("article_id", a.ID).Warn("detail fetch failed")
				continue
			}
			if detail == "" {
				continue
			}
			if err := c.store.SetArticleDetail(ctx, a.ID, detail); err != nil {
				c.log.WithError(err).WithField("article_id", a.ID).Warn("detail backfill write failed")
				continue
			}
			outcome.DetailsBackfilled++
		}
	}

	if err := c.store.UpdateSourceRun(ctx, src.ID, time.Now().UTC()); err != nil {
		outcome.Err = fmt.Errorf("collector: update source run for %q: %w", src.Key, err)
	}
	return outcome
}
