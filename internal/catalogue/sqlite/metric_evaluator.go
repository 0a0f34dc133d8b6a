package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
)

// Metrics ---------------------------------------------------------------

func (s *Store) CreateMetric(ctx context.Context, m domain.Metric) (domain.Metric, error) {
	var result domain.Metric
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO metrics (key, label, rate_guide, default_weight, active, sort_order)
			VALUES (?, ?, ?, ?, ?, ?)
		`, m.Key, m.Label, m.RateGuide, m.DefaultWeight, m.Active, m.SortOrder)
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
		m.ID = id
		result = m
		return nil
	})
	return result, err
}

func (s *Store) UpdateMetric(ctx context.Context, m domain.Metric) (domain.Metric, error) {
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE metrics SET label = ?, rate_guide = ?, default_weight = ?, active = ?, sort_order = ?
			WHERE key = ?
		`, m.Label, m.RateGuide, m.DefaultWeight, m.Active, m.SortOrder, m.Key)
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
		return domain.Metric{}, err
	}
	return s.GetMetricByKey(ctx, m.Key)
}

func scanMetric(row interface{ Scan(...interface{}) error }) (domain.Metric, error) {
	var m domain.Metric
	var defaultWeight sql.NullFloat64
	if err := row.Scan(&m.ID, &m.Key, &m.Label, &m.RateGuide, &defaultWeight, &m.Active, &m.SortOrder); err != nil {
		return domain.Metric{}, err
	}
	if defaultWeight.Valid {
		w := defaultWeight.Float64
		m.DefaultWeight = &w
	}
	return m, nil
}

const metricColumns = `id, key, label, rate_guide, default_weight, active, sort_order`

func (s *Store) GetMetricByKey(ctx context.Context, key string) (domain.Metric, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+metricColumns+` FROM metrics WHERE key = ?`, key)
	m, err := scanMetric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Metric{}, catalogue.ErrNotFound
	}
	return m, err
}

func (s *Store) listMetrics(ctx context.Context, where string) ([]domain.Metric, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+metricColumns+` FROM metrics `+where+` ORDER BY sort_order, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListMetrics(ctx context.Context) ([]domain.Metric, error) {
	return s.listMetrics(ctx, "")
}

func (s *Store) ListActiveMetrics(ctx context.Context) ([]domain.Metric, error) {
	return s.listMetrics(ctx, "WHERE active = 1")
}

// Evaluators ------------------------------------------------------------

func (s *Store) CreateEvaluator(ctx context.Context, e domain.Evaluator) (domain.Evaluator, error) {
	var result domain.Evaluator
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO evaluators (key, label, description, prompt_template, active, allowed_metric_ids_json)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.Key, e.Label, e.Description, e.PromptTemplate, e.Active, marshalJSON(e.AllowedMetricIDs))
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
		e.ID = id
		result = e
		return nil
	})
	return result, err
}

func (s *Store) UpdateEvaluator(ctx context.Context, e domain.Evaluator) (domain.Evaluator, error) {
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE evaluators SET label = ?, description = ?, prompt_template = ?, active = ?, allowed_metric_ids_json = ?
			WHERE key = ?
		`, e.Label, e.Description, e.PromptTemplate, e.Active, marshalJSON(e.AllowedMetricIDs), e.Key)
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
		return domain.Evaluator{}, err
	}
	return s.GetEvaluatorByKey(ctx, e.Key)
}

func scanEvaluator(row interface{ Scan(...interface{}) error }) (domain.Evaluator, error) {
	var e domain.Evaluator
	var allowedJSON string
	if err := row.Scan(&e.ID, &e.Key, &e.Label, &e.Description, &e.PromptTemplate, &e.Active, &allowedJSON); err != nil {
		return domain.Evaluator{}, err
	}
	e.AllowedMetricIDs = unmarshalInt64s(allowedJSON)
	return e, nil
}

const evaluatorColumns = `id, key, label, description, prompt_template, active, allowed_metric_ids_json`

func (s *Store) GetEvaluatorByKey(ctx context.Context, key string) (domain.Evaluator, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+evaluatorColumns+` FROM evaluators WHERE key = ?`, key)
	e, err := scanEvaluator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Evaluator{}, catalogue.ErrNotFound
	}
	return e, err
}

func (s *Store) ListEvaluators(ctx context.Context) ([]domain.Evaluator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+evaluatorColumns+` FROM evaluators ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Evaluator
	for rows.Next() {
		e, err := scanEvaluator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
