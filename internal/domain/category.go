// Package domain holds the plain entity types of the content catalogue:
// categories, sources, articles, metrics, scores, evaluators, reviews,
// users and pipelines. Types here carry no persistence or transport
// concerns; those live in internal/catalogue and internal/httpapi.
package domain

// Category groups sources and constrains which pipelines may select them.
// Key is the cross-component stable identifier; it never changes once
// sources reference it.
type Category struct {
	ID            int64
	Key           string
	Label         string
	Enabled       bool
	AllowParallel bool
}
