package sqlite

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

// compile-time check that *SessionDB implements repository.SessionRepository
var _ repository.SessionRepository = (*SessionDB)(nil)

// SessionDB stores login sessions in the sessions table.
type SessionDB struct {
	conn *sql.DB
}

func (db *SessionDB) Create(ctx context.Context, sess *model.Session) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID,
		sess.UserID,
		sess.CreatedAt.UnixNano(),
		sess.ExpiresAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("session", sess.ID)
		}
		return fmt.Errorf("sqlite: creating session: %w", err)
	}
	return nil
}

// Get returns the session with the given id, expired or not; expiry is
// the resolver's decision.
func (db *SessionDB) Get(ctx context.Context, id string) (*model.Session, error) {
	var (
		s                  model.Session
		created, expiresAt int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &created, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session: %w", err)
	}
	s.CreatedAt = time.Unix(0, created).UTC()
	s.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return &s, nil
}

// Delete destroys a session. Deleting an unknown id is not an error, so
// logging out twice is harmless.
func (db *SessionDB) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session: %w", err)
	}
	return nil
}

func (db *SessionDB) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, before.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweeping sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
