// Package metrics exposes the Prometheus collectors for Inkwell's HTTP
// surface and pipeline runs. Metrics are package-level and registered once
// in init, matching how the rest of a process calls into this package
// without threading a registry through every constructor.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every collector this package registers. cmd/adminserver
	// mounts Handler() on its own /metrics route.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "inkwell",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight admin API requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkwell",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of admin API requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inkwell",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of admin API requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	pipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkwell",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Total number of pipeline runs by terminal status.",
	}, []string{"status"})

	pipelineRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inkwell",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Duration of a full pipeline run, from gate checks through delivery.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~14min
	}, []string{"status"})

	sourceCollections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkwell",
		Subsystem: "collector",
		Name:      "source_runs_total",
		Help:      "Total number of per-source collection attempts.",
	}, []string{"source", "result"})

	articlesCollected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkwell",
		Subsystem: "collector",
		Name:      "articles_total",
		Help:      "Articles inserted or backfilled during collection.",
	}, []string{"source", "kind"})

	articleEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkwell",
		Subsystem: "evaluator",
		Name:      "evaluations_total",
		Help:      "Total number of article evaluation attempts.",
	}, []string{"result"})

	deliveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkwell",
		Subsystem: "delivery",
		Name:      "attempts_total",
		Help:      "Total number of pipeline delivery attempts by channel and outcome.",
	}, []string{"channel", "status"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		pipelineRuns,
		pipelineRunDuration,
		sourceCollections,
		articlesCollected,
		articleEvaluations,
		deliveryAttempts,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with request-count/duration/in-flight
// collection. Pass it to httpapi.WithInstrumentation.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordPipelineRun records a completed orchestrator pass. status is one
// of the orchestrator.Status* constants.
func RecordPipelineRun(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	pipelineRuns.WithLabelValues(status).Inc()
	pipelineRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordSourceCollection records one source's collection outcome and the
// articles it produced.
func RecordSourceCollection(sourceKey string, inserted, backfilled int, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	sourceCollections.WithLabelValues(sourceKey, result).Inc()
	if inserted > 0 {
		articlesCollected.WithLabelValues(sourceKey, "inserted").Add(float64(inserted))
	}
	if backfilled > 0 {
		articlesCollected.WithLabelValues(sourceKey, "backfilled").Add(float64(backfilled))
	}
}

// RecordArticleEvaluation records one article's evaluation outcome.
// result is "scored", "skipped" or "error".
func RecordArticleEvaluation(result string) {
	articleEvaluations.WithLabelValues(result).Inc()
}

// RecordDelivery records one delivery attempt for a pipeline.
func RecordDelivery(channel, status string) {
	deliveryAttempts.WithLabelValues(channel, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters (numeric pipeline IDs, resource
// keys) so requests to different pipelines don't each get their own
// high-cardinality label series.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "pipelines" {
		return "/" + parts[0]
	}
	switch len(parts) {
	case 1:
		return "/pipelines"
	case 2:
		return "/pipelines/:id"
	default:
		return "/pipelines/:id/" + parts[2]
	}
}
