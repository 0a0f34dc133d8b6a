package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/originpress/inkwell/pkg/apierr"
)

// unsubscribe is the public, unauthenticated link every delivered email
// carries: it disables the named pipeline for the reader whose email
// matches, with no further confirmation step. Getting the pipeline ID or
// email wrong just 404s or 403s; it never silently disables someone else's
// pipeline.
func (h *handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		writeError(w, apierr.Validation("email", "required"))
		return
	}
	rawID := strings.TrimSpace(r.URL.Query().Get("pipeline_id"))
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apierr.Validation("pipeline_id", "must be a positive integer"))
		return
	}

	p, err := h.store.GetPipeline(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if p.Email == nil || strings.ToLower(strings.TrimSpace(p.Email.Email)) != email {
		writeError(w, apierr.New(apierr.KindValidationFailed, "email does not match this pipeline's subscriber", http.StatusForbidden))
		return
	}

	p.Enabled = false
	if _, err := h.store.UpdatePipeline(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}
