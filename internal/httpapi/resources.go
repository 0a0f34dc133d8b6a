// Resource handlers for the reference catalogue: categories, sources,
// scoring metrics, evaluators and pipeline classes. Every entity here is
// addressed by its stable Key, never its numeric ID, matching how
// internal/catalogue's store implementations key their Update queries —
// these rows are foreign-key targets for pipelines and articles, so there
// is deliberately no delete endpoint; retiring one is done with
// enabled=false instead of removing the row and orphaning references.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/pkg/apierr"
)

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSON(r.Body, dst); err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidationFailed, "invalid request body", http.StatusBadRequest, err))
		return false
	}
	return true
}

// --- categories ---

type categoryPayload struct {
	Key           *string `json:"key"`
	Label         *string `json:"label"`
	Enabled       *bool   `json:"enabled"`
	AllowParallel *bool   `json:"allow_parallel"`
}

func (p *categoryPayload) applyTo(dst *domain.Category) {
	if p.Key != nil {
		dst.Key = *p.Key
	}
	if p.Label != nil {
		dst.Label = *p.Label
	}
	if p.Enabled != nil {
		dst.Enabled = *p.Enabled
	}
	if p.AllowParallel != nil {
		dst.AllowParallel = *p.AllowParallel
	}
}

func (h *handler) listCategories(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var payload categoryPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	var c domain.Category
	payload.applyTo(&c)
	created, err := h.store.CreateCategory(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	existing, err := h.store.GetCategoryByKey(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload categoryPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	payload.applyTo(&existing)
	updated, err := h.store.UpdateCategory(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- sources ---

type sourcePayload struct {
	Key         *string   `json:"key"`
	Label       *string   `json:"label"`
	CategoryKey *string   `json:"category_key"`
	Enabled     *bool     `json:"enabled"`
	ScriptPath  *string   `json:"script_path"`
	Addresses   *[]string `json:"addresses"`
}

func (p *sourcePayload) applyTo(dst *domain.Source) {
	if p.Key != nil {
		dst.Key = *p.Key
	}
	if p.Label != nil {
		dst.Label = *p.Label
	}
	if p.CategoryKey != nil {
		dst.CategoryKey = *p.CategoryKey
	}
	if p.Enabled != nil {
		dst.Enabled = *p.Enabled
	}
	if p.ScriptPath != nil {
		dst.ScriptPath = *p.ScriptPath
	}
	if p.Addresses != nil {
		dst.Addresses = *p.Addresses
	}
}

func (h *handler) listSources(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListSources(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) createSource(w http.ResponseWriter, r *http.Request) {
	var payload sourcePayload
	if !decodeBody(w, r, &payload) {
		return
	}
	var s domain.Source
	payload.applyTo(&s)
	if !s.Valid() {
		writeError(w, apierr.Validation("addresses", "an enabled source needs at least one address"))
		return
	}
	created, err := h.store.CreateSource(r.Context(), s)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updateSource(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	existing, err := h.store.GetSourceByKey(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload sourcePayload
	if !decodeBody(w, r, &payload) {
		return
	}
	payload.applyTo(&existing)
	if !existing.Valid() {
		writeError(w, apierr.Validation("addresses", "an enabled source needs at least one address"))
		return
	}
	updated, err := h.store.UpdateSource(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- metrics ---

type metricPayload struct {
	Key           *string  `json:"key"`
	Label         *string  `json:"label"`
	RateGuide     *string  `json:"rate_guide"`
	DefaultWeight *float64 `json:"default_weight"`
	Active        *bool    `json:"active"`
	SortOrder     *int     `json:"sort_order"`
}

func (p *metricPayload) applyTo(dst *domain.Metric) {
	if p.Key != nil {
		dst.Key = *p.Key
	}
	if p.Label != nil {
		dst.Label = *p.Label
	}
	if p.RateGuide != nil {
		dst.RateGuide = *p.RateGuide
	}
	if p.DefaultWeight != nil {
		dst.DefaultWeight = p.DefaultWeight
	}
	if p.Active != nil {
		dst.Active = *p.Active
	}
	if p.SortOrder != nil {
		dst.SortOrder = *p.SortOrder
	}
}

func (h *handler) listMetrics(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListMetrics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) createMetric(w http.ResponseWriter, r *http.Request) {
	var payload metricPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	var m domain.Metric
	payload.applyTo(&m)
	created, err := h.store.CreateMetric(r.Context(), m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updateMetric(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	existing, err := h.store.GetMetricByKey(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload metricPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	payload.applyTo(&existing)
	updated, err := h.store.UpdateMetric(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- evaluators ---

type evaluatorPayload struct {
	Key              *string  `json:"key"`
	Label            *string  `json:"label"`
	Description      *string  `json:"description"`
	PromptTemplate   *string  `json:"prompt_template"`
	Active           *bool    `json:"active"`
	AllowedMetricIDs *[]int64 `json:"allowed_metric_ids"`
}

func (p *evaluatorPayload) applyTo(dst *domain.Evaluator) {
	if p.Key != nil {
		dst.Key = *p.Key
	}
	if p.Label != nil {
		dst.Label = *p.Label
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.PromptTemplate != nil {
		dst.PromptTemplate = *p.PromptTemplate
	}
	if p.Active != nil {
		dst.Active = *p.Active
	}
	if p.AllowedMetricIDs != nil {
		dst.AllowedMetricIDs = *p.AllowedMetricIDs
	}
}

func (h *handler) listEvaluators(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListEvaluators(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) createEvaluator(w http.ResponseWriter, r *http.Request) {
	var payload evaluatorPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	var e domain.Evaluator
	payload.applyTo(&e)
	created, err := h.store.CreateEvaluator(r.Context(), e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updateEvaluator(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	existing, err := h.store.GetEvaluatorByKey(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload evaluatorPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	payload.applyTo(&existing)
	updated, err := h.store.UpdateEvaluator(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- pipeline classes ---

type pipelineClassPayload struct {
	Key               *string   `json:"key"`
	Enabled           *bool     `json:"enabled"`
	AllowedCategories *[]string `json:"allowed_categories"`
	AllowedEvaluators *[]string `json:"allowed_evaluators"`
	AllowedWriters    *[]string `json:"allowed_writers"`
}

func (p *pipelineClassPayload) applyTo(dst *domain.PipelineClass) {
	if p.Key != nil {
		dst.Key = *p.Key
	}
	if p.Enabled != nil {
		dst.Enabled = *p.Enabled
	}
	if p.AllowedCategories != nil {
		dst.AllowedCategories = *p.AllowedCategories
	}
	if p.AllowedEvaluators != nil {
		dst.AllowedEvaluators = *p.AllowedEvaluators
	}
	if p.AllowedWriters != nil {
		dst.AllowedWriters = *p.AllowedWriters
	}
}

func (h *handler) listPipelineClasses(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListPipelineClasses(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) createPipelineClass(w http.ResponseWriter, r *http.Request) {
	var payload pipelineClassPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	var c domain.PipelineClass
	payload.applyTo(&c)
	created, err := h.store.CreatePipelineClass(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updatePipelineClass(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	existing, err := h.store.GetPipelineClassByKey(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload pipelineClassPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	payload.applyTo(&existing)
	updated, err := h.store.UpdatePipelineClass(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
