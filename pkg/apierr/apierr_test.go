package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error without underlying cause",
			err:  New(KindValidationFailed, "test message", http.StatusBadRequest),
			want: "[validation_failed] test message",
		},
		{
			name: "error with underlying cause",
			err:  Wrap(KindTransientNetwork, "fetch failed", http.StatusBadGateway, errors.New("dial tcp: timeout")),
			want: "[transient_network] fetch failed: dial tcp: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	err := Wrap(KindTransientNetwork, "test", http.StatusBadGateway, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestError_WithDetails(t *testing.T) {
	err := New(KindValidationFailed, "test", http.StatusBadRequest)
	err.WithDetails("field", "weekdays_json").WithDetails("reason", "invalid weekday name")

	if len(err.Details) != 2 {
		t.Fatalf("Details length = %d, want 2", len(err.Details))
	}
	if err.Details["field"] != "weekdays_json" {
		t.Errorf("Details[field] = %v, want weekdays_json", err.Details["field"])
	}
}

func TestTransient(t *testing.T) {
	underlying := errors.New("read timeout")
	err := Transient("fetch_source", underlying)

	if err.Kind != KindTransientNetwork {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTransientNetwork)
	}
	if err.Details["operation"] != "fetch_source" {
		t.Errorf("Details[operation] = %v, want fetch_source", err.Details["operation"])
	}
}

func TestPermanent(t *testing.T) {
	err := Permanent("evaluate_article", errors.New("404"))
	if err.Kind != KindPermanentUpstream {
		t.Errorf("Kind = %v, want %v", err.Kind, KindPermanentUpstream)
	}
}

func TestValidation(t *testing.T) {
	err := Validation("weekdays_json", "unknown weekday name")
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestConflict(t *testing.T) {
	err := Conflict("article", "duplicate link")
	if err.Kind != KindCatalogueConflict {
		t.Errorf("Kind = %v, want %v", err.Kind, KindCatalogueConflict)
	}
	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}
}

func TestConfiguration(t *testing.T) {
	err := Configuration("evaluator.prompt_template", "missing {{.Article.Title}} placeholder")
	if err.Kind != KindConfigurationInvalid {
		t.Errorf("Kind = %v, want %v", err.Kind, KindConfigurationInvalid)
	}
}

func TestThrottledErr(t *testing.T) {
	err := ThrottledErr("per-host minimum interval not elapsed")
	if err.HTTPStatus != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusTooManyRequests)
	}
}

func TestCancelled(t *testing.T) {
	err := Cancelled("collect_source", errors.New("context canceled"))
	if err.Kind != KindCancelled {
		t.Errorf("Kind = %v, want %v", err.Kind, KindCancelled)
	}
}

func TestAs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "pipeline error", err: New(KindValidationFailed, "test", http.StatusBadRequest), want: true},
		{name: "standard error", err: errors.New("standard error"), want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := As(tt.err) != nil; got != tt.want {
				t.Errorf("As() present = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(KindThrottled, "too many requests", http.StatusTooManyRequests)
	if !Is(err, KindThrottled) {
		t.Errorf("expected Is to match KindThrottled")
	}
	if Is(err, KindValidationFailed) {
		t.Errorf("expected Is not to match KindValidationFailed")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "pipeline error", err: New(KindCatalogueConflict, "test", http.StatusConflict), want: http.StatusConflict},
		{name: "standard error", err: errors.New("standard error"), want: http.StatusInternalServerError},
		{name: "nil error", err: nil, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
