package collector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/catalogue/memory"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/internal/fetch"
	"github.com/originpress/inkwell/internal/scraper"
)

type fakeScraper struct {
	listings    []scraper.Listing
	listErr     error
	details     map[string]string
	detailCalls []string
}

func (f *fakeScraper) List(ctx context.Context, fetcher *fetch.Fetcher) ([]scraper.Listing, error) {
	return f.listings, f.listErr
}

func (f *fakeScraper) FetchDetail(ctx context.Context, fetcher *fetch.Fetcher, link string) (string, error) {
	f.detailCalls = append(f.detailCalls, link)
	return f.details[link], nil
}

func newTestCollector(t *testing.T, store catalogue.Store, reg *scraper.Registry, opts ...Option) *Collector {
	t.Helper()
	return New(store, reg, fetch.New(fetch.Config{}, nil, nil), nil, opts...)
}

func TestCollector_InsertsListingsAndBackfillsDetail(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	src, err := store.CreateSource(ctx, domain.Source{Key: "blog-a", CategoryKey: "tech", Enabled: true, ScriptPath: "scrapers/blog_a"})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	fake := &fakeScraper{
		listings: []scraper.Listing{
			{Title: "One", Link: "https://a/1", Publish: "2026-07-01T00:00:00Z"},
			{Title: "Two", Link: "https://a/2", Publish: "2026-07-02T00:00:00Z"},
			{Title: "", Link: "https://a/bad"}, // invalid, dropped
		},
		details: map[string]string{"https://a/1": "body one", "https://a/2": "body two"},
	}
	reg := scraper.NewRegistry()
	reg.Register("scrapers/blog_a", fake)

	c := newTestCollector(t, store, reg)
	outcomes := c.Run(ctx, []domain.Source{src})
	if len(outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(outcomes))
	}
	o := outcomes[0]
	if o.Err != nil {
		t.Fatalf("unexpected error: %v", o.Err)
	}
	if o.ArticlesInserted != 2 {
		t.Fatalf("ArticlesInserted = %d, want 2", o.ArticlesInserted)
	}
	if o.DetailsBackfilled != 2 {
		t.Fatalf("DetailsBackfilled = %d, want 2", o.DetailsBackfilled)
	}

	a, err := store.GetArticleByLink(ctx, "https://a/1")
	if err != nil || a.Detail != "body one" {
		t.Fatalf("GetArticleByLink() = %+v, %v", a, err)
	}

	run, err := store.GetSourceRun(ctx, src.ID)
	if err != nil || run.LastRunAt.IsZero() {
		t.Fatalf("GetSourceRun() = %+v, %v, want a non-zero LastRunAt", run, err)
	}
}

func TestCollector_SkipsSourceWithinFreshnessWindow(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	src, _ := store.CreateSource(ctx, domain.Source{Key: "blog-a", CategoryKey: "tech", ScriptPath: "scrapers/blog_a"})
	store.UpdateSourceRun(ctx, src.ID, time.Now().UTC())

	fake := &fakeScraper{listings: []scraper.Listing{{Title: "Should not be seen", Link: "https://a/x"}}}
	reg := scraper.NewRegistry()
	reg.Register("scrapers/blog_a", fake)

	c := newTestCollector(t, store, reg)
	outcomes := c.Run(ctx, []domain.Source{src})
	if !outcomes[0].Skipped {
		t.Fatalf("expected the source to be skipped, got %+v", outcomes[0])
	}
	if _, err := store.GetArticleByLink(ctx, "https://a/x"); err != catalogue.ErrNotFound {
		t.Fatalf("expected no article to be collected, got err=%v", err)
	}
}

func TestCollector_MissingScraperIsSoftError(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	src, _ := store.CreateSource(ctx, domain.Source{Key: "blog-a", CategoryKey: "tech", ScriptPath: "scrapers/unregistered"})

	c := newTestCollector(t, store, scraper.NewRegistry())
	outcomes := c.Run(ctx, []domain.Source{src})
	if outcomes[0].Err == nil {
		t.Fatalf("expected an error for an unregistered scraper")
	}
}

type concurrencyTrackingScraper struct {
	inFlight  *int32
	maxSeen   *int32
	unblock   chan struct{}
}

func (s *concurrencyTrackingScraper) List(ctx context.Context, fetcher *fetch.Fetcher) ([]scraper.Listing, error) {
	n := atomic.AddInt32(s.inFlight, 1)
	for {
		old := atomic.LoadInt32(s.maxSeen)
		if n <= old || atomic.CompareAndSwapInt32(s.maxSeen, old, n) {
			break
		}
	}
	<-s.unblock
	atomic.AddInt32(s.inFlight, -1)
	return nil, nil
}

func (s *concurrencyTrackingScraper) FetchDetail(ctx context.Context, fetcher *fetch.Fetcher, link string) (string, error) {
	return "", nil
}

func TestCollector_RunBoundsSourceConcurrency(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	reg := scraper.NewRegistry()

	var inFlight, maxSeen int32
	unblock := make(chan struct{})
	sources := make([]domain.Source, 0, 6)
	for i := 0; i < 6; i++ {
		scriptPath := "scrapers/concurrent" + string(rune('a'+i))
		src, _ := store.CreateSource(ctx, domain.Source{Key: scriptPath, CategoryKey: "tech", ScriptPath: scriptPath})
		reg.Register(scriptPath, &concurrencyTrackingScraper{inFlight: &inFlight, maxSeen: &maxSeen, unblock: unblock})
		sources = append(sources, src)
	}

	c := newTestCollector(t, store, reg, WithSourceConcurrency(2))
	done := make(chan []SourceOutcome)
	go func() { done <- c.Run(ctx, sources) }()

	time.Sleep(20 * time.Millisecond)
	close(unblock)
	<-done

	if got := atomic.LoadInt32(&maxSeen); got > 2 {
		t.Fatalf("max concurrent sources in flight = %d, want <= 2", got)
	}
}

func TestCollector_ContinuesAfterOneSourceFails(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	good, _ := store.CreateSource(ctx, domain.Source{Key: "good", CategoryKey: "tech", ScriptPath: "scrapers/good"})
	bad, _ := store.CreateSource(ctx, domain.Source{Key: "bad", CategoryKey: "tech", ScriptPath: "scrapers/bad"})

	reg := scraper.NewRegistry()
	reg.Register("scrapers/good", &fakeScraper{listings: []scraper.Listing{{Title: "T", Link: "https://good/1"}}})
	reg.Register("scrapers/bad", &fakeScraper{listErr: errors.New("boom")})

	c := newTestCollector(t, store, reg)
	outcomes := c.Run(ctx, []domain.Source{bad, good})
	if outcomes[0].Err == nil {
		t.Fatalf("expected the bad source to report an error")
	}
	if outcomes[1].ArticlesInserted != 1 {
		t.Fatalf("expected the good source to still be collected, got %+v", outcomes[1])
	}
}
