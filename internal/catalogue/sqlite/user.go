package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/domain"
)

const userColumns = `id, email, name, is_admin, enabled, manual_push_count, manual_push_date, manual_push_last_at`

func scanUser(row interface{ Scan(...interface{}) error }) (domain.User, error) {
	var u domain.User
	var lastAt sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.IsAdmin, &u.Enabled, &u.ManualPushCount, &u.ManualPushDate, &lastAt); err != nil {
		return domain.User{}, err
	}
	if lastAt.Valid {
		u.ManualPushLastAt = lastAt.Time.UTC()
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, catalogue.ErrNotFound
	}
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, catalogue.ErrNotFound
	}
	return u, err
}

func (s *Store) UpdateUserManualPushState(ctx context.Context, u domain.User) error {
	return s.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE users SET manual_push_count = ?, manual_push_date = ?, manual_push_last_at = ?
			WHERE id = ?
		`, u.ManualPushCount, u.ManualPushDate, u.ManualPushLastAt, u.ID)
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
