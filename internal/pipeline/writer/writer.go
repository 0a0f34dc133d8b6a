// Package writer renders a ranker result into the artifact a pipeline
// delivers: an HTML digest (with a plain-text fallback) for email
// pipelines, or a Markdown digest for chat pipelines. Templates only
// format; the ranker has already decided what goes in and in what order.
package writer

import (
	"context"
	"fmt"
	htmltemplate "html/template"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/internal/pipeline/ranker"
)

// FormatHTML and FormatMarkdown identify the two artifact kinds.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// Artifact is the rendered output of one writer pass.
type Artifact struct {
	Path     string // filesystem path the artifact was written to
	Format   string // FormatHTML or FormatMarkdown
	HTMLBody string // populated when Format == FormatHTML
	TextBody string // plain-text fallback, populated when Format == FormatHTML
	Markdown string // populated when Format == FormatMarkdown
}

// articleView is one rendered article, enriched with its review text
// when one exists.
type articleView struct {
	Article   domain.Article
	Score     float64
	HasReview bool
	Comment   string
	Summary   string
}

type categoryView struct {
	CategoryKey string
	Articles    []articleView
}

// Write renders groups for pipeline p and saves the result under
// outputDir/pipeline-<id>/<timestamp>.{html|md}. p must carry exactly one
// delivery channel; the channel determines the rendered format.
func Write(ctx context.Context, store catalogue.Store, p domain.Pipeline, groups []ranker.Group, now time.Time, outputDir string) (Artifact, error) {
	if !p.HasExactlyOneDelivery() {
		return Artifact{}, fmt.Errorf("writer: pipeline %d must have exactly one delivery channel configured", p.ID)
	}

	categories, err := buildCategoryViews(ctx, store, p, groups)
	if err != nil {
		return Artifact{}, err
	}

	dir := filepath.Join(outputDir, fmt.Sprintf("pipeline-%d", p.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("writer: create output dir %q: %w", dir, err)
	}
	stamp := now.Format("20060102-150405")

	if p.Email != nil {
		htmlBody, err := renderHTML(categories)
		if err != nil {
			return Artifact{}, fmt.Errorf("writer: render html: %w", err)
		}
		textBody := renderPlainText(categories)
		path := filepath.Join(dir, stamp+".html")
		if err := os.WriteFile(path, []byte(htmlBody), 0o644); err != nil {
			return Artifact{}, fmt.Errorf("writer: write artifact %q: %w", path, err)
		}
		return Artifact{Path: path, Format: FormatHTML, HTMLBody: htmlBody, TextBody: textBody}, nil
	}

	markdown, err := renderMarkdown(categories)
	if err != nil {
		return Artifact{}, fmt.Errorf("writer: render markdown: %w", err)
	}
	path := filepath.Join(dir, stamp+".md")
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return Artifact{}, fmt.Errorf("writer: write artifact %q: %w", path, err)
	}
	return Artifact{Path: path, Format: FormatMarkdown, Markdown: markdown}, nil
}

func buildCategoryViews(ctx context.Context, store catalogue.Store, p domain.Pipeline, groups []ranker.Group) ([]categoryView, error) {
	views := make([]categoryView, 0, len(groups))
	for _, g := range groups {
		articles := make([]articleView, 0, len(g.Candidates))
		for _, c := range g.Candidates {
			av := articleView{Article: c.Article, Score: c.Score}
			review, err := store.GetReview(ctx, c.Article.ID, p.EvaluatorKey)
			switch err {
			case nil:
				av.HasReview = true
				av.Comment = review.AIComment
				av.Summary = review.AISummary
			case catalogue.ErrNotFound:
				// no review yet; the digest shows the article with no commentary
			default:
				return nil, fmt.Errorf("writer: load review for article %d: %w", c.Article.ID, err)
			}
			articles = append(articles, av)
		}
		views = append(views, categoryView{CategoryKey: g.CategoryKey, Articles: articles})
	}
	return views, nil
}

var htmlDigestTemplate = htmltemplate.Must(htmltemplate.New("digest.html").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body>
{{range .}}<h2>{{.CategoryKey}}</h2>
<ul>
{{range .Articles}}<li>
<a href="{{.Article.Link}}">{{.Article.Title}}</a>
<span>({{.Article.Source}}, score {{printf "%.2f" .Score}})</span>
{{if .HasReview}}<p>{{.Comment}}</p>
<p>{{.Summary}}</p>{{end}}
</li>
{{end}}</ul>
{{end}}</body>
</html>
`))

func renderHTML(categories []categoryView) (string, error) {
	var buf strings.Builder
	if err := htmlDigestTemplate.Execute(&buf, categories); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var plainDigestTemplate = texttemplate.Must(texttemplate.New("digest.txt").Parse(`{{range .}}{{.CategoryKey}}
{{range .Articles}}- {{.Article.Title}} ({{.Article.Source}}, score {{printf "%.2f" .Score}}) {{.Article.Link}}
{{if .HasReview}}  {{.Comment}}
{{end}}{{end}}
{{end}}`))

func renderPlainText(categories []categoryView) string {
	var buf strings.Builder
	// text/template.Execute only errors on an undefined map key or a
	// template bug, neither possible with this fixed struct shape.
	_ = plainDigestTemplate.Execute(&buf, categories)
	return buf.String()
}

var markdownDigestTemplate = texttemplate.Must(texttemplate.New("digest.md").Parse(`{{range .}}## {{.CategoryKey}}

{{range .Articles}}- [{{.Article.Title}}]({{.Article.Link}}) — {{.Article.Source}}, score {{printf "%.2f" .Score}}
{{if .HasReview}}  {{.Comment}}
{{end}}{{end}}
{{end}}`))

func renderMarkdown(categories []categoryView) (string, error) {
	var buf strings.Builder
	if err := markdownDigestTemplate.Execute(&buf, categories); err != nil {
		return "", err
	}
	return buf.String(), nil
}
