package metrics

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                       "/",
		"/":                      "/",
		"/healthz":               "/healthz",
		"/pipelines":             "/pipelines",
		"/pipelines/42":          "/pipelines/:id",
		"/pipelines/42/push":     "/pipelines/:id/push",
		"/pipelines/42/runs":     "/pipelines/:id/runs",
		"/categories":            "/categories",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordHelpers_DoNotPanic(t *testing.T) {
	RecordPipelineRun("success", 0)
	RecordSourceCollection("hn", 3, 1, nil)
	RecordArticleEvaluation("scored")
	RecordDelivery("email", "success")
}
