// Package httpapi exposes the admin REST surface: CRUD over the reference
// catalogue (sources, categories, metrics, evaluators, pipeline classes),
// full lifecycle management of pipelines, the manual-push endpoint, and the
// public unsubscribe link that ships in every delivered email.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/pipeline/manualpush"
	"github.com/originpress/inkwell/internal/pipeline/orchestrator"
	"github.com/originpress/inkwell/pkg/logger"
)

// Service exposes the admin HTTP API and fits into a process's start/stop
// lifecycle alongside the scheduler that drives cmd/pipeline sweeps.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logger.Logger
}

// Option configures a Service at construction time.
type Option func(*options)

type options struct {
	instrument func(http.Handler) http.Handler
}

// WithInstrumentation wraps the final handler (after auth and CORS) with a
// metrics middleware, e.g. internal/metrics.InstrumentHandler. Omitted
// by default so this package carries no hard dependency on a metrics
// registry.
func WithInstrumentation(wrap func(http.Handler) http.Handler) Option {
	return func(o *options) { o.instrument = wrap }
}

// NewService wires a Service over store, using orch to run pipelines
// on-demand from POST /pipelines/{id}/push and pushGate to enforce the
// manual-push cooldown/daily-limit preconditions. tokens authenticates every
// non-public route via a bearer token; tz is the zone the manual-push day
// rollover is evaluated in.
func NewService(store catalogue.Store, orch *orchestrator.Orchestrator, pushGate *manualpush.Gate, addr string, tokens []string, tz *time.Location, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault()
	}
	if tz == nil {
		tz = time.UTC
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h := NewHandler(store, orch, pushGate, tz, log)
	// Order matters: CORS must short-circuit a preflight OPTIONS request
	// before auth runs (preflights carry no Authorization header), and
	// instrumentation wraps everything so it times auth rejections too.
	// The request-id wrapper sits outermost so even a CORS/auth rejection
	// gets a correlation id in its log line and response header.
	wrapped := wrapWithCORS(wrapWithAuth(h, tokens, log))
	if o.instrument != nil {
		wrapped = o.instrument(wrapped)
	}
	wrapped = wrapWithRequestID(wrapped, log)

	return &Service{addr: addr, handler: wrapped, log: log}
}

func (s *Service) Name() string { return "httpapi" }

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("admin http server stopped unexpectedly")
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type requestIDKey struct{}

// RequestIDFromContext returns the id wrapWithRequestID attached to ctx, or
// "" if the request never passed through that middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// wrapWithRequestID assigns every request a correlation id, echoed back on
// the X-Request-Id response header and attached to the log line emitted
// once the handler returns, so a single admin API request can be traced
// across its log entries without a tracing backend.
func wrapWithRequestID(next http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		log.WithFields(map[string]interface{}{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start).String(),
		}).Debug("admin api request handled")
	})
}

// wrapWithCORS allows the admin dashboard to call this API from a different
// origin and short-circuits preflight requests before auth runs.
func wrapWithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
