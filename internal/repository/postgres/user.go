package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

type UserDB struct {
	conn *sql.DB
}

func (db *UserDB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.Email = model.NormalizeEmail(user.Email)
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("postgres: inserting user %s: %w", user.Email, err)
	}
	return nil
}

func (db *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getOne(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at FROM users WHERE id = $1`, id)
}

func (db *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getOne(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at FROM users WHERE email = $1`,
		model.NormalizeEmail(email))
}

func (db *UserDB) getOne(ctx context.Context, query, key string) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx, query, key).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", key, err)
	}
	return &u, nil
}
