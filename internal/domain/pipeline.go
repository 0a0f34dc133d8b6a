package domain

import "time"

// Pipeline is one end-to-end configured unit: it selects sources, collects
// articles, evaluates them, writes an artifact and delivers it.
//
// Weekdays carries the three-valued weekday gate payload: nil means "no
// restriction", a non-nil empty slice means "never run" (soft pause), and a
// non-nil non-empty slice restricts runs to those ISO weekdays (1-7). See
// internal/weekday for the parsing and evaluation logic; this field is
// never reinterpreted elsewhere.
type Pipeline struct {
	ID              int64
	Name            string
	Enabled         bool
	DebugEnabled    bool
	Description     string
	PipelineClassID int64
	EvaluatorKey    string
	Weekdays        *[]int
	OwnerUserID     int64
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Filter   PipelineFilter
	Writer   PipelineWriter
	Email    *EmailDelivery
	Chat     *ChatDelivery
	Weights  []PipelineWriterMetricWeight
}

// HasExactlyOneDelivery reports whether a pipeline configures exactly one
// delivery channel: an EmailDelivery or a ChatDelivery, never both and
// never neither.
func (p Pipeline) HasExactlyOneDelivery() bool {
	return (p.Email != nil) != (p.Chat != nil)
}

// PipelineFilter selects which categories and sources feed a pipeline.
type PipelineFilter struct {
	PipelineID     int64
	AllCategories  bool
	Categories     []string // used when AllCategories == false
	AllSources     bool
	IncludeSources []string // used when AllSources == false
}

// PipelineWriter configures ranking and rendering for a pipeline.
type PipelineWriter struct {
	PipelineID        int64
	Type              string
	Hours             int // candidate window, must be > 0
	Weights           map[string]float64 // metric key -> weight, fallback tier
	Bonus             map[string]float64 // source key -> additive bonus
	LimitPerCategory  LimitPerCategory
	PerSourceCap      int // 0 or negative means unlimited
}

// LimitPerCategory models the writer.limit_per_category field, which may be
// configured as either a single uniform integer or a per-category map with
// a "default" fallback.
type LimitPerCategory struct {
	Uniform      *int
	PerCategory  map[string]int
	DefaultLimit int // used when PerCategory lacks the category and Uniform is nil
}

// LimitFor returns the cap that applies to the given category key.
func (l LimitPerCategory) LimitFor(category string) int {
	if l.Uniform != nil {
		return *l.Uniform
	}
	if n, ok := l.PerCategory[category]; ok {
		return n
	}
	if n, ok := l.PerCategory["default"]; ok {
		return n
	}
	if l.DefaultLimit > 0 {
		return l.DefaultLimit
	}
	return 10
}

// EmailDelivery is a pipeline's email delivery configuration.
type EmailDelivery struct {
	PipelineID      int64
	Email           string
	SubjectTemplate string
}

// ChatDelivery is a pipeline's chat-platform delivery configuration.
type ChatDelivery struct {
	PipelineID    int64
	AppID         string
	AppSecret     string
	ToAllChat     bool
	ChatID        string // used when ToAllChat == false
	TitleTemplate string
}

// PipelineWriterMetricWeight is a normalized per-pipeline metric weight
// override. Its presence for a given (PipelineID, MetricID) takes
// precedence over PipelineWriter.Weights and Metric.DefaultWeight.
type PipelineWriterMetricWeight struct {
	PipelineID int64
	MetricID   int64
	Weight     float64
	Enabled    bool
}

// PipelineRun is an append-only execution record for one orchestrator pass
// over a pipeline.
type PipelineRun struct {
	ID         int64
	PipelineID int64
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string // e.g. "success", "partial", "failed:config", "skipped:weekday"
	Summary    string
}
