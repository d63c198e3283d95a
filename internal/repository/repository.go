// Package repository declares the storage contracts used by the service
// layer. Implementations live in the sqlite, postgres, memory and redis
// subpackages; services only ever see these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/sakif/platidea/internal/model"
)

type ListOptions struct {
	Limit    int
	Offset   int
	Category string // optional exact-match filter
}

// IdeaRepository persists ideas and their voter sets.
//
// Lists are ranked by vote count (descending), newest first on ties.
// Update rewrites only the editable fields; the voter set is changed
// exclusively through ToggleVoter.
type IdeaRepository interface {
	Create(ctx context.Context, idea *model.Idea) error
	GetByID(ctx context.Context, id string) (*model.Idea, error)
	List(ctx context.Context, opts ListOptions) ([]model.Idea, error)
	Update(ctx context.Context, id string, fields model.IdeaFields) (*model.Idea, error)
	Delete(ctx context.Context, id string) error

	// ToggleVoter flips userID's membership in the idea's voter set and
	// returns the resulting count and membership. The existence check, the
	// flip and the count are one atomic unit: concurrent toggles on the same
	// (idea, user) pair are serialised, and toggles by different users never
	// overwrite each other. Returns apperror.ErrNotFound if the idea does
	// not exist, in which case nothing is written.
	ToggleVoter(ctx context.Context, ideaID, userID string) (model.VoteTally, error)
}

// UserRepository persists accounts. Emails are compared in normalised form.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// SessionRepository is the server-side session store.
type SessionRepository interface {
	Create(ctx context.Context, sess *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions whose expiry is at or before the given
	// instant and reports how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Store bundles the repositories of one backend.
type Store interface {
	Ideas() IdeaRepository
	Users() UserRepository
	Sessions() SessionRepository
	Ping(ctx context.Context) error
	Close() error
}
