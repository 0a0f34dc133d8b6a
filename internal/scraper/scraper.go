// Package scraper defines the interface the collector uses to pull article
// listings and details from a source, and an in-process registry keyed by
// the catalogue's script_path string. Scrapers are registered in-process
// rather than loaded dynamically from a file path; the catalogue remains
// the source of truth for which sources exist.
package scraper

import (
	"context"

	"github.com/originpress/inkwell/internal/fetch"
)

// Listing is one article record returned by a scraper's list operation,
// sorted by Publish descending.
type Listing struct {
	Title   string
	Link    string
	Publish string
	ImgLink string
}

// Scraper is implemented by every registered source. Neither List nor
// FetchDetail may perform network I/O except through the Fetcher passed to
// them, so every outbound request flows through the global rate limits.
type Scraper interface {
	// List returns the source's current article listing.
	List(ctx context.Context, f *fetch.Fetcher) ([]Listing, error)
	// FetchDetail returns the plain-text detail body for link. Scrapers
	// that don't support a detail pass may return ("", nil).
	FetchDetail(ctx context.Context, f *fetch.Fetcher, link string) (string, error)
}

// Registry maps a catalogue Source.ScriptPath to its Scraper implementation.
// It is populated once at process startup; registration is a plain map
// write with no filesystem interaction.
type Registry struct {
	scrapers map[string]Scraper
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[string]Scraper)}
}

// Register binds scriptPath to s. Registering the same scriptPath twice
// overwrites the previous binding.
func (r *Registry) Register(scriptPath string, s Scraper) {
	r.scrapers[scriptPath] = s
}

// Lookup returns the scraper bound to scriptPath, or false when no scraper
// has been registered for it. A collector treats a missing scraper as a
// soft "module failed to load" error rather than aborting the whole run.
func (r *Registry) Lookup(scriptPath string) (Scraper, bool) {
	s, ok := r.scrapers[scriptPath]
	return s, ok
}
