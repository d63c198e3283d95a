// Package memory is a process-local implementation of the repositories.
// It backs the "memory" database driver (demos, local runs) and the
// service-layer tests. Everything is guarded by one mutex per entity, and
// records are copied on the way in and out so callers never share state
// with the store.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
)

var (
	_ repository.Store             = (*Store)(nil)
	_ repository.IdeaRepository    = (*IdeaStore)(nil)
	_ repository.UserRepository    = (*UserStore)(nil)
	_ repository.SessionRepository = (*SessionStore)(nil)
)

// Store bundles the in-memory repositories.
type Store struct {
	ideas    *IdeaStore
	users    *UserStore
	sessions *SessionStore
}

func New() *Store {
	return &Store{
		ideas:    NewIdeaStore(),
		users:    NewUserStore(),
		sessions: NewSessionStore(),
	}
}

func (s *Store) Ideas() repository.IdeaRepository       { return s.ideas }
func (s *Store) Users() repository.UserRepository       { return s.users }
func (s *Store) Sessions() repository.SessionRepository { return s.sessions }
func (s *Store) Ping(context.Context) error             { return nil }
func (s *Store) Close() error                           { return nil }

// =========================================================================
// IDEAS
// =========================================================================

type IdeaStore struct {
	mu    sync.Mutex
	ideas map[string]*model.Idea
}

func NewIdeaStore() *IdeaStore {
	return &IdeaStore{ideas: make(map[string]*model.Idea)}
}

func cloneIdea(i *model.Idea) *model.Idea {
	c := *i
	c.Voters = slices.Clone(i.Voters)
	if c.Voters == nil {
		c.Voters = []string{}
	}
	return &c
}

func (s *IdeaStore) Create(ctx context.Context, idea *model.Idea) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idea.ID = xid.New().String()
	now := time.Now().UTC()
	idea.CreatedAt = now
	idea.UpdatedAt = now
	idea.Voters = []string{}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ideas[idea.ID] = cloneIdea(idea)
	return nil
}

func (s *IdeaStore) GetByID(ctx context.Context, id string) (*model.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idea, ok := s.ideas[id]
	if !ok {
		return nil, apperror.NotFound("idea", id)
	}
	return cloneIdea(idea), nil
}

func (s *IdeaStore) List(ctx context.Context, opts repository.ListOptions) ([]model.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]model.Idea, 0, len(s.ideas))
	for _, idea := range s.ideas {
		if opts.Category != "" && idea.Category != opts.Category {
			continue
		}
		out = append(out, *cloneIdea(idea))
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b model.Idea) int {
		if c := cmp.Compare(b.VoteCount(), a.VoteCount()); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(opts.Offset, 0)
	if offset >= len(out) {
		return []model.Idea{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *IdeaStore) Update(ctx context.Context, id string, fields model.IdeaFields) (*model.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idea, ok := s.ideas[id]
	if !ok {
		return nil, apperror.NotFound("idea", id)
	}
	idea.Title = fields.Title
	idea.Description = fields.Description
	idea.Category = fields.Category
	idea.UpdatedAt = time.Now().UTC()
	return cloneIdea(idea), nil
}

func (s *IdeaStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ideas[id]; !ok {
		return apperror.NotFound("idea", id)
	}
	delete(s.ideas, id)
	return nil
}

// ToggleVoter flips membership while holding the store lock, so the
// check, the flip and the count form one step.
func (s *IdeaStore) ToggleVoter(ctx context.Context, ideaID, userID string) (model.VoteTally, error) {
	if err := ctx.Err(); err != nil {
		return model.VoteTally{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idea, ok := s.ideas[ideaID]
	if !ok {
		return model.VoteTally{}, apperror.NotFound("idea", ideaID)
	}

	voting := false
	if i := slices.Index(idea.Voters, userID); i >= 0 {
		idea.Voters = slices.Delete(idea.Voters, i, i+1)
	} else {
		idea.Voters = append(idea.Voters, userID)
		voting = true
	}
	return model.VoteTally{Count: len(idea.Voters), Voting: voting}, nil
}

// =========================================================================
// USERS
// =========================================================================

type UserStore struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{byID: make(map[string]*model.User), byEmail: make(map[string]string)}
}

func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := model.NormalizeEmail(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return apperror.Conflict("user", email)
	}

	user.ID = xid.New().String()
	user.Email = email
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	s.byID[user.ID] = &stored
	s.byEmail[email] = user.ID
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	s.mu.Lock()
	id, ok := s.byEmail[email]
	s.mu.Unlock()
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	return s.GetByID(ctx, id)
}

// =========================================================================
// SESSIONS
// =========================================================================

type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]model.Session)}
}

func (s *SessionStore) Create(ctx context.Context, sess *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return apperror.Conflict("session", sess.ID)
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.Expired(before) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
