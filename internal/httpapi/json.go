package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/pkg/apierr"
)

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders err as a JSON body shaped like apierr.Error when the
// chain carries one, falling back to a generic 500 otherwise. A
// catalogue.ErrNotFound anywhere in the chain always reports 404 regardless
// of what produced it.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalogue.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if errors.Is(err, catalogue.ErrConflict) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict"})
		return
	}

	status := apierr.HTTPStatus(err)
	body := map[string]interface{}{"error": err.Error()}
	if e := apierr.As(err); e != nil {
		body["kind"] = string(e.Kind)
		if len(e.Details) > 0 {
			body["details"] = e.Details
		}
	}
	writeJSON(w, status, body)
}
