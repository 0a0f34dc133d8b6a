package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
)

func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// Categories ----------------------------------------------------------------

func (s *Store) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	var result domain.Category
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO categories (key, label, enabled, allow_parallel) VALUES (?, ?, ?, ?)
		`, c.Key, c.Label, c.Enabled, c.AllowParallel)
		if err != nil {
			if isUniqueConstraintErr(err) {
				return catalogue.ErrConflict
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		c.ID = id
		result = c
		return nil
	})
	return result, err
}

func (s *Store) UpdateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE categories SET label = ?, enabled = ?, allow_parallel = ? WHERE key = ?
		`, c.Label, c.Enabled, c.AllowParallel, c.Key)
		if err != nil {
			return err
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			return catalogue.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return s.GetCategoryByKey(ctx, c.Key)
}

func (s *Store) GetCategoryByKey(ctx context.Context, key string) (domain.Category, error) {
	var c domain.Category
	row := s.db.QueryRowContext(ctx, `SELECT id, key, label, enabled, allow_parallel FROM categories WHERE key = ?`, key)
	if err := row.Scan(&c.ID, &c.Key, &c.Label, &c.Enabled, &c.AllowParallel); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, catalogue.ErrNotFound
		}
		return domain.Category{}, err
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, key, label, enabled, allow_parallel FROM categories ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Key, &c.Label, &c.Enabled, &c.AllowParallel); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Sources ---------------------------------------------------------------

func (s *Store) CreateSource(ctx context.Context, src domain.Source) (domain.Source, error) {
	var result domain.Source
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO sources (key, label, category_key, enabled, script_path, addresses_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, src.Key, src.Label, src.CategoryKey, src.Enabled, src.ScriptPath, marshalJSON(src.Addresses), now, now)
		if err != nil {
			if isUniqueConstraintErr(err) {
				return catalogue.ErrConflict
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		src.ID = id
		src.CreatedAt, src.UpdatedAt = now, now
		result = src
		return nil
	})
	return result, err
}

func (s *Store) UpdateSource(ctx context.Context, src domain.Source) (domain.Source, error) {
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx, `
			UPDATE sources SET label = ?, category_key = ?, enabled = ?, script_path = ?, addresses_json = ?, updated_at = ?
			WHERE key = ?
		`, src.Label, src.CategoryKey, src.Enabled, src.ScriptPath, marshalJSON(src.Addresses), now, src.Key)
		if err != nil {
			return err
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			return catalogue.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return domain.Source{}, err
	}
	return s.GetSourceByKey(ctx, src.Key)
}

func scanSource(row interface{ Scan(...interface{}) error }) (domain.Source, error) {
	var src domain.Source
	var addressesJSON string
	if err := row.Scan(&src.ID, &src.Key, &src.Label, &src.CategoryKey, &src.Enabled, &src.ScriptPath, &addressesJSON, &src.CreatedAt, &src.UpdatedAt); err != nil {
		return domain.Source{}, err
	}
	src.Addresses = unmarshalStrings(addressesJSON)
	return src, nil
}

func (s *Store) GetSourceByKey(ctx context.Context, key string) (domain.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, key, label, category_key, enabled, script_path, addresses_json, created_at, updated_at
		FROM sources WHERE key = ?
	`, key)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, catalogue.ErrNotFound
	}
	return src, err
}

func (s *Store) listSources(ctx context.Context, where string, args ...interface{}) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, label, category_key, enabled, script_path, addresses_json, created_at, updated_at
		FROM sources `+where+` ORDER BY key
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	return s.listSources(ctx, "")
}

func (s *Store) ListEnabledSources(ctx context.Context) ([]domain.Source, error) {
	return s.listSources(ctx, "WHERE enabled = 1")
}

func (s *Store) GetSourceRun(ctx context.Context, sourceID int64) (domain.SourceRun, error) {
	var run domain.SourceRun
	var lastRun sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT last_run_at FROM source_runs WHERE source_id = ?`, sourceID).Scan(&lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SourceRun{SourceID: sourceID}, nil
	}
	if err != nil {
		return domain.SourceRun{}, err
	}
	run.SourceID = sourceID
	if lastRun.Valid {
		run.LastRunAt = lastRun.Time.UTC()
	}
	return run, nil
}

func (s *Store) UpdateSourceRun(ctx context.Context, sourceID int64, ranAt time.Time) error {
	return s.withWriteLock(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO source_runs (source_id, last_run_at) VALUES (?, ?)
			ON CONFLICT(source_id) DO UPDATE SET last_run_at = excluded.last_run_at
		`, sourceID, ranAt)
		return err
	})
}
