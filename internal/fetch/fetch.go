// Package fetch implements the Rate-Limited Fetcher: global HTTP
// concurrency capping, per-host minimum-interval throttling, and bounded
// retry with exponential backoff.
package fetch

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/originpress/inkwell/internal/ratelimit"
	"github.com/originpress/inkwell/pkg/apierr"
	"github.com/originpress/inkwell/pkg/logger"
)

// Config tunes the fetcher. Zero values are replaced by the documented
// defaults in New.
type Config struct {
	GlobalConcurrency int           // G, default 16
	HostInterval      time.Duration // I, default 500ms
	HostJitter        time.Duration // default 100ms
	ConnectTimeout    time.Duration // default 5s
	ReadTimeout       time.Duration // default 10s
	MaxRetries        int           // R, default 3
	BackoffBase       time.Duration // B, default 2s
}

func (c Config) withDefaults() Config {
	if c.GlobalConcurrency <= 0 {
		c.GlobalConcurrency = 16
	}
	if c.HostInterval <= 0 {
		c.HostInterval = 500 * time.Millisecond
	}
	if c.HostJitter <= 0 {
		c.HostJitter = 100 * time.Millisecond
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	return c
}

// Fetcher executes rate-limited, retried HTTP GETs. It owns the two
// process-wide pieces of mutable state: the global semaphore and the
// per-host interval map.
type Fetcher struct {
	cfg      Config
	sem      *ratelimit.Semaphore
	throttle *ratelimit.HostThrottle
	client   *http.Client
	log      *logger.Logger
}

// New builds a Fetcher. client is optional; a client with the configured
// connect/read timeouts is constructed when nil.
func New(cfg Config, client *http.Client, log *logger.Logger) *Fetcher {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{
			Timeout: cfg.ConnectTimeout + cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Fetcher{
		cfg:      cfg,
		sem:      ratelimit.NewSemaphore(cfg.GlobalConcurrency),
		throttle: ratelimit.NewHostThrottle(cfg.HostInterval, cfg.HostJitter),
		client:   client,
		log:      log,
	}
}

// Get performs a rate-limited, retried GET against url. host is the
// throttling key (normally the request's hostname); it is passed
// separately so callers that already parsed the URL avoid re-parsing it.
func (f *Fetcher) Get(ctx context.Context, host, url string) ([]byte, error) {
	if err := f.sem.Acquire(ctx); err != nil {
		return nil, apierr.Cancelled("fetch:acquire_global_permit", err)
	}
	defer f.sem.Release()

	if err := f.throttle.Wait(ctx, host); err != nil {
		return nil, apierr.Cancelled("fetch:host_throttle", err)
	}

	attempt := 0
	for {
		attempt++
		b, err := f.doOnce(ctx, url)
		if err == nil {
			return b, nil
		}
		if !isRetryable(err) || attempt > f.cfg.MaxRetries {
			return nil, err
		}
		backoff := backoffFor(f.cfg.BackoffBase, attempt)
		f.log.WithFields(map[string]interface{}{"url": url, "attempt": attempt, "backoff": backoff}).
			Warn("retrying fetch after transient failure")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, apierr.Cancelled("fetch:backoff_wait", ctx.Err())
		}
	}
}

func (f *Fetcher) doOnce(ctx context.Context, url string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout+f.cfg.ReadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apierr.Permanent(url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.Canceled) {
			if ctx.Err() != nil {
				return nil, apierr.Cancelled(url, ctx.Err())
			}
		}
		return nil, apierr.Transient(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, apierr.Transient(url, errHTTPStatus(resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, apierr.Permanent(url, errHTTPStatus(resp.StatusCode))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Transient(url, err)
	}
	return b, nil
}

func isRetryable(err error) bool {
	return apierr.Is(err, apierr.KindTransientNetwork)
}

// backoffFor implements B * 2^(attempt-1) plus a uniform(0, B) jitter term.
func backoffFor(base time.Duration, attempt int) time.Duration {
	multiplier := 1 << uint(attempt-1)
	jitter := time.Duration(0)
	if base > 0 {
		jitter = time.Duration(rand.Int63n(int64(base)))
	}
	return time.Duration(multiplier)*base + jitter
}

type errHTTPStatus int

func (e errHTTPStatus) Error() string {
	return "unexpected HTTP status " + http.StatusText(int(e))
}
