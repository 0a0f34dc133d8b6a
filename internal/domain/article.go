package domain

// Article is an insert-only catalogue row keyed by its globally unique
// Link. Only Detail is ever backfilled after insert; the row is never
// re-keyed.
type Article struct {
	ID       int64
	Source   string
	Publish  string // ISO-8601 or coarser; parsed on demand by the ranker
	Title    string
	Link     string
	Category string // Category.Key, may be empty
	Detail   string // backfilled by the collector's detail pass
	ImgLink  string
}

// NeedsDetail reports whether this article is eligible for a detail
// backfill pass.
func (a Article) NeedsDetail() bool {
	return a.Detail == ""
}

// Valid reports whether the article carries the two fields a scraper must
// always provide. Violations are dropped by the collector as
// ValidationFailed rather than propagated.
func (a Article) Valid() bool {
	return a.Title != "" && a.Link != ""
}
