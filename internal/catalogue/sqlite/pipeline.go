package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
)

func (s *Store) CreatePipeline(ctx context.Context, p domain.Pipeline) (domain.Pipeline, error) {
	class, err := s.GetPipelineClassByID(ctx, p.PipelineClassID)
	if err != nil {
		return domain.Pipeline{}, err
	}
	if err := catalogue.ValidatePipelineClassTriple(class, p); err != nil {
		return domain.Pipeline{}, err
	}

	var result domain.Pipeline
	err = s.withWriteLock(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO pipelines (name, enabled, debug_enabled, description, pipeline_class_id, evaluator_key, weekdays_json, owner_user_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.Name, p.Enabled, p.DebugEnabled, p.Description, p.PipelineClassID, p.EvaluatorKey, marshalWeekdays(p.Weekdays), p.OwnerUserID, now, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		p.ID = id
		p.CreatedAt, p.UpdatedAt = now, now

		if err := writePipelineChildren(ctx, tx, p); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		result = p
		return nil
	})
	return result, err
}

func (s *Store) UpdatePipeline(ctx context.Context, p domain.Pipeline) (domain.Pipeline, error) {
	class, err := s.GetPipelineClassByID(ctx, p.PipelineClassID)
	if err != nil {
		return domain.Pipeline{}, err
	}
	if err := catalogue.ValidatePipelineClassTriple(class, p); err != nil {
		return domain.Pipeline{}, err
	}

	err = s.withWriteLock(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE pipelines SET name = ?, enabled = ?, debug_enabled = ?, description = ?, pipeline_class_id = ?,
				evaluator_key = ?, weekdays_json = ?, owner_user_id = ?, updated_at = ?
			WHERE id = ?
		`, p.Name, p.Enabled, p.DebugEnabled, p.Description, p.PipelineClassID, p.EvaluatorKey, marshalWeekdays(p.Weekdays), p.OwnerUserID, now, p.ID)
		if err != nil {
			return err
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			return catalogue.ErrNotFound
		}
		p.UpdatedAt = now

		if err := clearPipelineChildren(ctx, tx, p.ID); err != nil {
			return err
		}
		if err := writePipelineChildren(ctx, tx, p); err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return domain.Pipeline{}, err
	}
	return s.GetPipeline(ctx, p.ID)
}

func clearPipelineChildren(ctx context.Context, tx *sql.Tx, pipelineID int64) error {
	for _, table := range []string{"pipeline_filters", "pipeline_writers", "email_deliveries", "chat_deliveries", "pipeline_writer_metric_weights"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE pipeline_id = ?`, pipelineID); err != nil {
			return err
		}
	}
	return nil
}

func writePipelineChildren(ctx context.Context, tx *sql.Tx, p domain.Pipeline) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pipeline_filters (pipeline_id, all_categories, categories_json, all_sources, include_sources_json)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Filter.AllCategories, marshalJSON(p.Filter.Categories), p.Filter.AllSources, marshalJSON(p.Filter.IncludeSources))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_writers (pipeline_id, type, hours, weights_json, bonus_json, limit_per_category_json, per_source_cap)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Writer.Type, p.Writer.Hours, marshalJSON(p.Writer.Weights), marshalJSON(p.Writer.Bonus), marshalLimitPerCategory(p.Writer.LimitPerCategory), p.Writer.PerSourceCap)
	if err != nil {
		return err
	}

	if p.Email != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO email_deliveries (pipeline_id, email, subject_template) VALUES (?, ?, ?)
		`, p.ID, p.Email.Email, p.Email.SubjectTemplate); err != nil {
			return err
		}
	}
	if p.Chat != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_deliveries (pipeline_id, app_id, app_secret, to_all_chat, chat_id, title_template)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.ID, p.Chat.AppID, p.Chat.AppSecret, p.Chat.ToAllChat, p.Chat.ChatID, p.Chat.TitleTemplate); err != nil {
			return err
		}
	}

	for _, w := range p.Weights {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pipeline_writer_metric_weights (pipeline_id, metric_id, weight, enabled) VALUES (?, ?, ?, ?)
		`, p.ID, w.MetricID, w.Weight, w.Enabled); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) DeletePipeline(ctx context.Context, id int64) error {
	return s.withWriteLock(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := clearPipelineChildren(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE pipeline_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM pipelines WHERE id = ?`, id)
		if err != nil {
			return err
		}
		rows, _ := res.RowsAffected()
		if rows == 0 {
			return catalogue.ErrNotFound
		}
		return tx.Commit()
	})
}

func (s *Store) getPipeline(ctx context.Context, where string, arg interface{}) (domain.Pipeline, error) {
	var p domain.Pipeline
	var weekdaysJSON sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, enabled, debug_enabled, description, pipeline_class_id, evaluator_key, weekdays_json, owner_user_id, created_at, updated_at
		FROM pipelines WHERE `+where, arg).Scan(&p.ID, &p.Name, &p.Enabled, &p.DebugEnabled, &p.Description, &p.PipelineClassID, &p.EvaluatorKey, &weekdaysJSON, &p.OwnerUserID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Pipeline{}, catalogue.ErrNotFound
	}
	if err != nil {
		return domain.Pipeline{}, err
	}
	p.Weekdays = unmarshalWeekdays(weekdaysJSON)

	if err := s.loadPipelineChildren(ctx, &p); err != nil {
		return domain.Pipeline{}, err
	}
	return p, nil
}

func (s *Store) loadPipelineChildren(ctx context.Context, p *domain.Pipeline) error {
	var categoriesJSON, includeSourcesJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT all_categories, categories_json, all_sources, include_sources_json FROM pipeline_filters WHERE pipeline_id = ?
	`, p.ID).Scan(&p.Filter.AllCategories, &categoriesJSON, &p.Filter.AllSources, &includeSourcesJSON)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	p.Filter.PipelineID = p.ID
	p.Filter.Categories = unmarshalStrings(categoriesJSON)
	p.Filter.IncludeSources = unmarshalStrings(includeSourcesJSON)

	var weightsJSON, bonusJSON, limitJSON string
	err = s.db.QueryRowContext(ctx, `
		SELECT type, hours, weights_json, bonus_json, limit_per_category_json, per_source_cap FROM pipeline_writers WHERE pipeline_id = ?
	`, p.ID).Scan(&p.Writer.Type, &p.Writer.Hours, &weightsJSON, &bonusJSON, &limitJSON, &p.Writer.PerSourceCap)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	p.Writer.PipelineID = p.ID
	p.Writer.Weights = unmarshalFloatMap(weightsJSON)
	p.Writer.Bonus = unmarshalFloatMap(bonusJSON)
	p.Writer.LimitPerCategory = unmarshalLimitPerCategory(limitJSON)

	var email domain.EmailDelivery
	err = s.db.QueryRowContext(ctx, `SELECT email, subject_template FROM email_deliveries WHERE pipeline_id = ?`, p.ID).Scan(&email.Email, &email.SubjectTemplate)
	if err == nil {
		email.PipelineID = p.ID
		p.Email = &email
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var chat domain.ChatDelivery
	err = s.db.QueryRowContext(ctx, `
		SELECT app_id, app_secret, to_all_chat, chat_id, title_template FROM chat_deliveries WHERE pipeline_id = ?
	`, p.ID).Scan(&chat.AppID, &chat.AppSecret, &chat.ToAllChat, &chat.ChatID, &chat.TitleTemplate)
	if err == nil {
		chat.PipelineID = p.ID
		p.Chat = &chat
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT metric_id, weight, enabled FROM pipeline_writer_metric_weights WHERE pipeline_id = ?
	`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	p.Weights = nil
	for rows.Next() {
		var w domain.PipelineWriterMetricWeight
		if err := rows.Scan(&w.MetricID, &w.Weight, &w.Enabled); err != nil {
			return err
		}
		w.PipelineID = p.ID
		p.Weights = append(p.Weights, w)
	}
	return rows.Err()
}

func (s *Store) GetPipeline(ctx context.Context, id int64) (domain.Pipeline, error) {
	return s.getPipeline(ctx, "id = ?", id)
}

func (s *Store) listPipelines(ctx context.Context, where string) ([]domain.Pipeline, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM pipelines `+where+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Pipeline, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetPipeline(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) ListPipelines(ctx context.Context) ([]domain.Pipeline, error) {
	return s.listPipelines(ctx, "")
}

func (s *Store) ListEnabledPipelines(ctx context.Context) ([]domain.Pipeline, error) {
	return s.listPipelines(ctx, "WHERE enabled = 1")
}

func (s *Store) RecordPipelineRun(ctx context.Context, run domain.PipelineRun) (domain.PipelineRun, error) {
	var result domain.PipelineRun
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO pipeline_runs (pipeline_id, started_at, finished_at, status, summary)
			VALUES (?, ?, ?, ?, ?)
		`, run.PipelineID, run.StartedAt, toNullTime(run.FinishedAt), run.Status, run.Summary)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		run.ID = id
		result = run
		return nil
	})
	return result, err
}

func (s *Store) ListPipelineRuns(ctx context.Context, pipelineID int64, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pipeline_id, started_at, finished_at, status, summary
		FROM pipeline_runs WHERE pipeline_id = ? ORDER BY started_at DESC LIMIT ?
	`, pipelineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PipelineRun
	for rows.Next() {
		var run domain.PipelineRun
		var finishedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.PipelineID, &run.StartedAt, &finishedAt, &run.Status, &run.Summary); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			run.FinishedAt = finishedAt.Time.UTC()
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
