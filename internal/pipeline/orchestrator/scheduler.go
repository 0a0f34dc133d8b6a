package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/originpress/inkwell/internal/core"
	"github.com/originpress/inkwell/internal/system"
	"github.com/originpress/inkwell/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// Scheduler drives the orchestrator on a fixed tick, sweeping every
// enabled pipeline via RunAll. It is the long-running counterpart to
// cmd/pipeline's one-shot CLI invocation, meant for a process that stays
// up and lets the weekday/debug gates decide which pipelines actually run
// on a given tick.
type Scheduler struct {
	orch     *Orchestrator
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler builds a Scheduler over orch. interval defaults to one hour
// when non-positive; spec.md's pipelines are sized in days/weeks, not
// minutes, so a coarse tick is the right default.
func NewScheduler(orch *Orchestrator, interval time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{orch: orch, log: log, interval: interval}
}

func (s *Scheduler) Name() string { return "pipeline-scheduler" }

func (s *Scheduler) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         s.Name(),
		Domain:       "pipeline",
		Layer:        core.LayerEngine,
		Capabilities: []string{"collect", "evaluate", "rank", "deliver"},
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.WithField("interval", s.interval).Info("pipeline scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("pipeline scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	_, errs := s.orch.RunAll(ctx, time.Now(), RunOptions{}, nil)
	for _, err := range errs {
		if err != nil {
			s.log.WithError(err).Warn("pipeline sweep: one pipeline failed to run")
		}
	}
}
