package domain

import (
	"testing"
	"time"
)

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}

func TestSourceValid(t *testing.T) {
	enabledNoAddr := Source{Enabled: true}
	if enabledNoAddr.Valid() {
		t.Fatalf("expected an enabled source with no addresses to be invalid")
	}

	disabledNoAddr := Source{Enabled: false}
	if !disabledNoAddr.Valid() {
		t.Fatalf("expected a disabled source with no addresses to be valid")
	}

	enabledWithAddr := Source{Enabled: true, Addresses: []string{"https://example.com/feed"}}
	if !enabledWithAddr.Valid() {
		t.Fatalf("expected an enabled source with an address to be valid")
	}
}

func TestSourceRunWithinFreshnessWindow(t *testing.T) {
	run := SourceRun{}
	now := mustParseTime(t, "2026-08-01T12:00:00Z")
	if run.WithinFreshnessWindow(now, hours(2)) {
		t.Fatalf("a zero-value SourceRun must never be considered fresh")
	}
}

func TestArticleValid(t *testing.T) {
	tests := []struct {
		name string
		a    Article
		want bool
	}{
		{name: "missing title", a: Article{Link: "https://x"}, want: false},
		{name: "missing link", a: Article{Title: "x"}, want: false},
		{name: "complete", a: Article{Title: "x", Link: "https://x"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetricEffectiveDefaultWeight(t *testing.T) {
	if (Metric{}).EffectiveDefaultWeight() != 0 {
		t.Fatalf("expected nil DefaultWeight to behave as 0")
	}
	w := 0.4
	if (Metric{DefaultWeight: &w}).EffectiveDefaultWeight() != 0.4 {
		t.Fatalf("expected explicit DefaultWeight to be returned")
	}
}

func TestPipelineHasExactlyOneDelivery(t *testing.T) {
	email := &EmailDelivery{}
	chat := &ChatDelivery{}

	tests := []struct {
		name string
		p    Pipeline
		want bool
	}{
		{name: "neither", p: Pipeline{}, want: false},
		{name: "both", p: Pipeline{Email: email, Chat: chat}, want: false},
		{name: "email only", p: Pipeline{Email: email}, want: true},
		{name: "chat only", p: Pipeline{Chat: chat}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.HasExactlyOneDelivery(); got != tt.want {
				t.Errorf("HasExactlyOneDelivery() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimitPerCategoryLimitFor(t *testing.T) {
	uniform := 4
	l := LimitPerCategory{Uniform: &uniform}
	if l.LimitFor("sports") != 4 {
		t.Fatalf("expected uniform limit to apply regardless of category")
	}

	perCategory := LimitPerCategory{PerCategory: map[string]int{"default": 10, "sports": 6}}
	if perCategory.LimitFor("sports") != 6 {
		t.Fatalf("expected category-specific limit to apply")
	}
	if perCategory.LimitFor("tech") != 10 {
		t.Fatalf("expected default fallback for unlisted category")
	}

	empty := LimitPerCategory{}
	if empty.LimitFor("tech") != 10 {
		t.Fatalf("expected hardcoded fallback of 10 when nothing configured")
	}
}

func TestPipelineClassAllowLists(t *testing.T) {
	class := PipelineClass{
		AllowedCategories: []string{"sports"},
		AllowedEvaluators: []string{"editorial"},
		AllowedWriters:    []string{"email"},
	}
	if !class.AllowsCategory("sports") || class.AllowsCategory("tech") {
		t.Fatalf("unexpected category allow-list result")
	}
	if !class.AllowsEvaluator("editorial") || class.AllowsEvaluator("other") {
		t.Fatalf("unexpected evaluator allow-list result")
	}
	if !class.AllowsWriter("email") || class.AllowsWriter("chat") {
		t.Fatalf("unexpected writer allow-list result")
	}
}

func TestUserOwns(t *testing.T) {
	owner := User{ID: 1}
	if !owner.Owns(1) {
		t.Fatalf("expected owner to own their own pipeline")
	}
	if owner.Owns(2) {
		t.Fatalf("expected non-owner non-admin to not own the pipeline")
	}
	admin := User{ID: 99, IsAdmin: true}
	if !admin.Owns(2) {
		t.Fatalf("expected admin to own any pipeline")
	}
}
