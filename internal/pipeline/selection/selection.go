// Package selection computes the set of sources a pipeline draws from.
// It is shared by the collector (which needs to know what to scrape) and
// the ranker (which needs to know what to rank over), so the two stages
// never disagree about which sources are in scope.
package selection

import (
	"context"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
)

// Sources resolves the pipeline's selection set: the enabled sources whose
// category is in scope, further narrowed to an explicit include-list when
// the pipeline does not draw from every source in those categories.
func Sources(ctx context.Context, store catalogue.Store, p domain.Pipeline, class domain.PipelineClass) ([]domain.Source, error) {
	categories := class.AllowedCategories
	if !p.Filter.AllCategories {
		categories = p.Filter.Categories
	}
	inCategory := make(map[string]bool, len(categories))
	for _, c := range categories {
		inCategory[c] = true
	}

	all, err := store.ListEnabledSources(ctx)
	if err != nil {
		return nil, err
	}

	if p.Filter.AllSources {
		out := make([]domain.Source, 0, len(all))
		for _, s := range all {
			if inCategory[s.CategoryKey] {
				out = append(out, s)
			}
		}
		return out, nil
	}

	included := make(map[string]bool, len(p.Filter.IncludeSources))
	for _, key := range p.Filter.IncludeSources {
		included[key] = true
	}
	out := make([]domain.Source, 0, len(p.Filter.IncludeSources))
	for _, s := range all {
		if inCategory[s.CategoryKey] && included[s.Key] {
			out = append(out, s)
		}
	}
	return out, nil
}

// CategoryKeys returns the category keys a pipeline is scoped to, applying
// the same all_categories precedence as Sources.
func CategoryKeys(p domain.Pipeline, class domain.PipelineClass) []string {
	if p.Filter.AllCategories {
		return class.AllowedCategories
	}
	return p.Filter.Categories
}
