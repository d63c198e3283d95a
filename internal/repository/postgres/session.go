package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
)

var _ repository.SessionRepository = (*SessionDB)(nil)

type SessionDB struct {
	conn *sql.DB
}

func (db *SessionDB) Create(ctx context.Context, sess *model.Session) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.UserID, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("session", sess.ID)
		}
		return fmt.Errorf("postgres: creating session: %w", err)
	}
	return nil
}

func (db *SessionDB) Get(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("postgres: getting session: %w", err)
	}
	return &s, nil
}

func (db *SessionDB) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: deleting session: %w", err)
	}
	return nil
}

func (db *SessionDB) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: sweeping sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	return n, nil
}
