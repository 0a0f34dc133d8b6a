package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
)

func scanArticle(row interface{ Scan(...interface{}) error }) (domain.Article, error) {
	var a domain.Article
	if err := row.Scan(&a.ID, &a.Source, &a.Publish, &a.Title, &a.Link, &a.Category, &a.Detail, &a.ImgLink); err != nil {
		return domain.Article{}, err
	}
	return a, nil
}

const articleColumns = `id, source, publish, title, link, category, detail, img_link`

func (s *Store) UpsertArticle(ctx context.Context, a domain.Article) (domain.Article, bool, error) {
	var result domain.Article
	var created bool
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		if existing, err := s.GetArticleByLink(ctx, a.Link); err == nil {
			result = existing
			created = false
			return nil
		} else if !errors.Is(err, catalogue.ErrNotFound) {
			return err
		}

		res, err := s.db.ExecContext(ctx, `
			INSERT INTO articles (source, publish, title, link, category, detail, img_link)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, a.Source, a.Publish, a.Title, a.Link, a.Category, a.Detail, a.ImgLink)
		if err != nil {
			if isUniqueConstraintErr(err) {
				existing, getErr := s.GetArticleByLink(ctx, a.Link)
				if getErr != nil {
					return getErr
				}
				result = existing
				created = false
				return nil
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		a.ID = id
		result = a
		created = true
		return nil
	})
	return result, created, err
}

func (s *Store) GetArticle(ctx context.Context, id int64) (domain.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, catalogue.ErrNotFound
	}
	return a, err
}

func (s *Store) GetArticleByLink(ctx context.Context, link string) (domain.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE link = ?`, link)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, catalogue.ErrNotFound
	}
	return a, err
}

func (s *Store) SetArticleDetail(ctx context.Context, id int64, detail string) error {
	return s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `UPDATE articles SET detail = ? WHERE id = ?`, detail, id)
		if err != nil {
			return err
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			return catalogue.ErrNotFound
		}
		return nil
	})
}

func buildWindowQuery(w catalogue.ArticleWindow, extra string) (string, []interface{}) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE 1=1`
	var args []interface{}

	if len(w.SourceKeys) > 0 {
		placeholders := make([]string, len(w.SourceKeys))
		for i, key := range w.SourceKeys {
			placeholders[i] = "?"
			args = append(args, key)
		}
		query += ` AND source IN (` + strings.Join(placeholders, ",") + `)`
	}
	if len(w.CategoryKeys) > 0 {
		placeholders := make([]string, len(w.CategoryKeys))
		for i, key := range w.CategoryKeys {
			placeholders[i] = "?"
			args = append(args, key)
		}
		query += ` AND category IN (` + strings.Join(placeholders, ",") + `)`
	}
	if !w.Since.IsZero() {
		query += ` AND publish >= ?`
		args = append(args, w.Since.UTC().Format("2006-01-02T15:04:05Z07:00"))
	}
	if extra != "" {
		query += " " + extra
	}
	query += ` ORDER BY publish DESC`
	return query, args
}

func (s *Store) ListArticlesInWindow(ctx context.Context, w catalogue.ArticleWindow) ([]domain.Article, error) {
	query, args := buildWindowQuery(w, "")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListArticlesMissingDetail(ctx context.Context, w catalogue.ArticleWindow) ([]domain.Article, error) {
	query, args := buildWindowQuery(w, "AND detail = ''")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpsertScore(ctx context.Context, sc domain.Score) error {
	return s.withWriteLock(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO scores (article_id, metric_id, value) VALUES (?, ?, ?)
			ON CONFLICT(article_id, metric_id) DO UPDATE SET value = excluded.value
		`, sc.ArticleID, sc.MetricID, sc.Value)
		return err
	})
}

func (s *Store) ListScores(ctx context.Context, articleID int64) ([]domain.Score, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT article_id, metric_id, value FROM scores WHERE article_id = ? ORDER BY metric_id
	`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Score
	for rows.Next() {
		var sc domain.Score
		if err := rows.Scan(&sc.ArticleID, &sc.MetricID, &sc.Value); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) UpsertReview(ctx context.Context, r domain.Review) error {
	return s.withWriteLock(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO reviews (article_id, evaluator_key, final_score, ai_comment, ai_summary, ai_key_concepts_json, ai_summary_long, raw_response)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(article_id, evaluator_key) DO UPDATE SET
				final_score = excluded.final_score,
				ai_comment = excluded.ai_comment,
				ai_summary = excluded.ai_summary,
				ai_key_concepts_json = excluded.ai_key_concepts_json,
				ai_summary_long = excluded.ai_summary_long,
				raw_response = excluded.raw_response
		`, r.ArticleID, r.EvaluatorKey, r.FinalScore, r.AIComment, r.AISummary, marshalJSON(r.AIKeyConcepts), r.AISummaryLong, r.RawResponse)
		return err
	})
}

func (s *Store) GetReview(ctx context.Context, articleID int64, evaluatorKey string) (domain.Review, error) {
	var r domain.Review
	var keyConceptsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT article_id, evaluator_key, final_score, ai_comment, ai_summary, ai_key_concepts_json, ai_summary_long, raw_response
		FROM reviews WHERE article_id = ? AND evaluator_key = ?
	`, articleID, evaluatorKey).Scan(&r.ArticleID, &r.EvaluatorKey, &r.FinalScore, &r.AIComment, &r.AISummary, &keyConceptsJSON, &r.AISummaryLong, &r.RawResponse)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, catalogue.ErrNotFound
	}
	if err != nil {
		return domain.Review{}, err
	}
	r.AIKeyConcepts = unmarshalStrings(keyConceptsJSON)
	return r, nil
}
