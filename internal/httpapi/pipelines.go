package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/internal/pipeline/orchestrator"
	"github.com/originpress/inkwell/pkg/apierr"
)

func pipelineIDFromPath(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apierr.Validation("id", "must be a positive integer")
	}
	return id, nil
}

func (h *handler) listPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.store.ListPipelines(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pipelines)
}

func (h *handler) getPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := pipelineIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.store.GetPipeline(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// pipelinePayload is the wire shape for create/update; every field is a
// pointer on update so a PATCH only touches what the caller sent.
type pipelinePayload struct {
	Name            *string                               `json:"name"`
	Enabled         *bool                                 `json:"enabled"`
	DebugEnabled    *bool                                 `json:"debug_enabled"`
	Description     *string                               `json:"description"`
	PipelineClassID *int64                                `json:"pipeline_class_id"`
	EvaluatorKey    *string                               `json:"evaluator_key"`
	Weekdays        *[]int                                `json:"weekdays"`
	OwnerUserID     *int64                                `json:"owner_user_id"`
	Filter          *domain.PipelineFilter                `json:"filter"`
	Writer          *domain.PipelineWriter                `json:"writer"`
	Email           *domain.EmailDelivery                 `json:"email"`
	Chat            *domain.ChatDelivery                  `json:"chat"`
	Weights         *[]domain.PipelineWriterMetricWeight  `json:"weights"`
}

func (h *handler) createPipeline(w http.ResponseWriter, r *http.Request) {
	var payload pipelinePayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidationFailed, "invalid request body", http.StatusBadRequest, err))
		return
	}
	if payload.Email != nil && payload.Chat != nil {
		writeError(w, apierr.Validation("delivery", "exactly one of email or chat must be configured"))
		return
	}

	var p domain.Pipeline
	payload.applyTo(&p)
	if !p.HasExactlyOneDelivery() {
		writeError(w, apierr.Validation("delivery", "exactly one of email or chat must be configured"))
		return
	}

	created, err := h.store.CreatePipeline(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updatePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := pipelineIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	existing, err := h.store.GetPipeline(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload pipelinePayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidationFailed, "invalid request body", http.StatusBadRequest, err))
		return
	}
	payload.applyTo(&existing)
	if !existing.HasExactlyOneDelivery() {
		writeError(w, apierr.Validation("delivery", "exactly one of email or chat must be configured"))
		return
	}

	updated, err := h.store.UpdatePipeline(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (p *pipelinePayload) applyTo(dst *domain.Pipeline) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Enabled != nil {
		dst.Enabled = *p.Enabled
	}
	if p.DebugEnabled != nil {
		dst.DebugEnabled = *p.DebugEnabled
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.PipelineClassID != nil {
		dst.PipelineClassID = *p.PipelineClassID
	}
	if p.EvaluatorKey != nil {
		dst.EvaluatorKey = *p.EvaluatorKey
	}
	if p.Weekdays != nil {
		dst.Weekdays = p.Weekdays
	}
	if p.OwnerUserID != nil {
		dst.OwnerUserID = *p.OwnerUserID
	}
	if p.Filter != nil {
		dst.Filter = *p.Filter
	}
	if p.Writer != nil {
		dst.Writer = *p.Writer
	}
	if p.Email != nil {
		dst.Email = p.Email
		dst.Chat = nil
	}
	if p.Chat != nil {
		dst.Chat = p.Chat
		dst.Email = nil
	}
	if p.Weights != nil {
		dst.Weights = *p.Weights
	}
}

func (h *handler) deletePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := pipelineIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.DeletePipeline(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listPipelineRuns(w http.ResponseWriter, r *http.Request) {
	id, err := pipelineIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n <= 0 {
			writeError(w, apierr.Validation("limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	runs, err := h.store.ListPipelineRuns(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// pushRequest names the acting user; a production deployment would derive
// this from the authenticated session instead of a request field.
type pushRequest struct {
	UserID int64 `json:"user_id"`
}

// pushPipeline enforces the manual-push gate synchronously and, once
// admitted, runs the pipeline in the background: the HTTP response reports
// whether the push was admitted, not how the run itself turned out. Callers
// poll GET /pipelines/{id}/runs for the outcome.
func (h *handler) pushPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := pipelineIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload pushRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidationFailed, "invalid request body", http.StatusBadRequest, err))
		return
	}

	p, err := h.store.GetPipeline(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := h.store.GetUser(r.Context(), payload.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	if err := h.pushGate.Allow(r.Context(), user, p, now, h.tz); err != nil {
		writeError(w, err)
		return
	}

	// A manual push is an explicit operator action: it bypasses the
	// weekday gate and the debug-mode gate the way --ignore-weekday and
	// --debug do for cmd/pipeline.
	pushOpts := orchestrator.RunOptions{IgnoreWeekday: true, DebugMode: true}
	go func() {
		ctx := context.Background()
		if _, runErr := h.orch.Run(ctx, p.ID, time.Now(), pushOpts); runErr != nil {
			h.log.WithError(runErr).WithField("pipeline_id", p.ID).Error("manual push run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "admitted"})
}
