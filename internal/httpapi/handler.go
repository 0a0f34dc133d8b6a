package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/pipeline/manualpush"
	"github.com/originpress/inkwell/internal/pipeline/orchestrator"
	"github.com/originpress/inkwell/pkg/logger"
)

// handler bundles every admin route over one catalogue store.
type handler struct {
	store    catalogue.Store
	orch     *orchestrator.Orchestrator
	pushGate *manualpush.Gate
	tz       *time.Location
	log      *logger.Logger
}

// NewHandler builds the full admin route table on a gorilla/mux router.
func NewHandler(store catalogue.Store, orch *orchestrator.Orchestrator, pushGate *manualpush.Gate, tz *time.Location, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault()
	}
	h := &handler{store: store, orch: orch, pushGate: pushGate, tz: tz, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/unsubscribe", h.unsubscribe).Methods(http.MethodGet)

	r.HandleFunc("/pipelines", h.listPipelines).Methods(http.MethodGet)
	r.HandleFunc("/pipelines", h.createPipeline).Methods(http.MethodPost)
	r.HandleFunc("/pipelines/{id}", h.getPipeline).Methods(http.MethodGet)
	r.HandleFunc("/pipelines/{id}", h.updatePipeline).Methods(http.MethodPatch)
	r.HandleFunc("/pipelines/{id}", h.deletePipeline).Methods(http.MethodDelete)
	r.HandleFunc("/pipelines/{id}/push", h.pushPipeline).Methods(http.MethodPost)
	r.HandleFunc("/pipelines/{id}/runs", h.listPipelineRuns).Methods(http.MethodGet)

	r.HandleFunc("/categories", h.listCategories).Methods(http.MethodGet)
	r.HandleFunc("/categories", h.createCategory).Methods(http.MethodPost)
	r.HandleFunc("/categories/{key}", h.updateCategory).Methods(http.MethodPatch)

	r.HandleFunc("/sources", h.listSources).Methods(http.MethodGet)
	r.HandleFunc("/sources", h.createSource).Methods(http.MethodPost)
	r.HandleFunc("/sources/{key}", h.updateSource).Methods(http.MethodPatch)

	r.HandleFunc("/metrics-catalogue", h.listMetrics).Methods(http.MethodGet)
	r.HandleFunc("/metrics-catalogue", h.createMetric).Methods(http.MethodPost)
	r.HandleFunc("/metrics-catalogue/{key}", h.updateMetric).Methods(http.MethodPatch)

	r.HandleFunc("/evaluators", h.listEvaluators).Methods(http.MethodGet)
	r.HandleFunc("/evaluators", h.createEvaluator).Methods(http.MethodPost)
	r.HandleFunc("/evaluators/{key}", h.updateEvaluator).Methods(http.MethodPatch)

	r.HandleFunc("/pipeline-classes", h.listPipelineClasses).Methods(http.MethodGet)
	r.HandleFunc("/pipeline-classes", h.createPipelineClass).Methods(http.MethodPost)
	r.HandleFunc("/pipeline-classes/{key}", h.updatePipelineClass).Methods(http.MethodPatch)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
