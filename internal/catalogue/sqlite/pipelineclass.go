package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
)

const pipelineClassColumns = `id, key, enabled, allowed_categories_json, allowed_evaluators_json, allowed_writers_json`

func scanPipelineClass(row interface{ Scan(...interface{}) error }) (domain.PipelineClass, error) {
	var c domain.PipelineClass
	var categoriesJSON, evaluatorsJSON, writersJSON string
	if err := row.Scan(&c.ID, &c.Key, &c.Enabled, &categoriesJSON, &evaluatorsJSON, &writersJSON); err != nil {
		return domain.PipelineClass{}, err
	}
	c.AllowedCategories = unmarshalStrings(categoriesJSON)
	c.AllowedEvaluators = unmarshalStrings(evaluatorsJSON)
	c.AllowedWriters = unmarshalStrings(writersJSON)
	return c, nil
}

func (s *Store) CreatePipelineClass(ctx context.Context, c domain.PipelineClass) (domain.PipelineClass, error) {
	var result domain.PipelineClass
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO pipeline_classes (key, enabled, allowed_categories_json, allowed_evaluators_json, allowed_writers_json)
			VALUES (?, ?, ?, ?, ?)
		`, c.Key, c.Enabled, marshalJSON(c.AllowedCategories), marshalJSON(c.AllowedEvaluators), marshalJSON(c.AllowedWriters))
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

func (s *Store) UpdatePipelineClass(ctx context.Context, c domain.PipelineClass) (domain.PipelineClass, error) {
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE pipeline_classes SET enabled = ?, allowed_categories_json = ?, allowed_evaluators_json = ?, allowed_writers_json = ?
			WHERE key = ?
		`, c.Enabled, marshalJSON(c.AllowedCategories), marshalJSON(c.AllowedEvaluators), marshalJSON(c.AllowedWriters), c.Key)
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
		return domain.PipelineClass{}, err
	}
	return s.GetPipelineClassByKey(ctx, c.Key)
}

func (s *Store) GetPipelineClassByKey(ctx context.Context, key string) (domain.PipelineClass, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pipelineClassColumns+` FROM pipeline_classes WHERE key = ?`, key)
	c, err := scanPipelineClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PipelineClass{}, catalogue.ErrNotFound
	}
	return c, err
}

func (s *Store) GetPipelineClassByID(ctx context.Context, id int64) (domain.PipelineClass, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pipelineClassColumns+` FROM pipeline_classes WHERE id = ?`, id)
	c, err := scanPipelineClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PipelineClass{}, catalogue.ErrNotFound
	}
	return c, err
}

func (s *Store) ListPipelineClasses(ctx context.Context) ([]domain.PipelineClass, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pipelineClassColumns+` FROM pipeline_classes ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PipelineClass
	for rows.Next() {
		c, err := scanPipelineClass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
