package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
)

const (
	MaxNameLength     = 80
	MinPasswordLength = 8

	// DefaultSessionTTL matches the lifetime of the session cookie.
	DefaultSessionTTL = 24 * time.Hour
)

// invalidCredentials is the single message for every failed login, so the
// response does not reveal whether the email is registered.
const invalidCredentials = "invalid email or password"

// AccountOptions tunes an AccountService. Zero values select defaults.
type AccountOptions struct {
	SessionTTL   time.Duration
	StoreTimeout time.Duration
	Now          func() time.Time // clock for session timestamps; nil means time.Now
}

// AccountService handles registration, login, logout and GitHub sign-in.
//
// DEPENDENCIES (injected via NewAccountService):
//   - users      repository.UserRepository     → account records
//   - sessions   repository.SessionRepository  → server-side session records
//   - tokens     *auth.TokenService            → signs the session cookie
//   - passwords  *auth.PasswordService         → bcrypt
type AccountService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	opts      AccountOptions
	logger    *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	opts AccountOptions,
	logger *slog.Logger,
) *AccountService {
	if users == nil || sessions == nil || tokens == nil || passwords == nil {
		panic("service: NewAccountService requires every dependency")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AccountService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		passwords: passwords,
		opts:      opts,
		logger:    logger,
	}
}

// LoginResult bundles what the handler needs to finish a login: the user
// for the response body, and the session plus its signed reference for the
// cookie.
type LoginResult struct {
	User    *model.User
	Session *model.Session
	Token   string
}

func validateEmail(email string) (string, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email is not a valid address")
	}
	return email, nil
}

// Register creates a password account. A duplicate email yields Conflict.
func (s *AccountService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}

	email, err := validateEmail(email)
	if err != nil {
		return nil, err
	}

	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	user := &model.User{Name: name, Email: email, PasswordHash: hash}

	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "an account with this email already exists",
				Field:   "email",
			}
		}
		s.logger.Error("failed to register user", slog.String("error", err.Error()))
		return nil, storeErr("registering the account", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Login checks the password and opens a new session.
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		s.logger.Error("failed to look up user for login", slog.String("error", err.Error()))
		return nil, storeErr("logging in", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("login rejected", slog.String("userID", user.ID))
		return nil, apperror.Unauthenticated(invalidCredentials)
	}

	return s.openSession(ctx, user)
}

func (s *AccountService) openSession(ctx context.Context, user *model.User) (*LoginResult, error) {
	now := s.opts.Now().UTC()
	sess := &model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.SessionTTL),
	}

	token, err := s.tokens.Generate(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("service/account: signing session: %w", err)
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		s.logger.Error("failed to store session", slog.String("userID", user.ID), slog.String("error", err.Error()))
		return nil, storeErr("opening the session", err)
	}

	s.logger.Info("session opened", slog.String("userID", user.ID))
	return &LoginResult{User: user, Session: sess, Token: token}, nil
}

// Logout destroys the session. An unknown or empty id is not an error.
func (s *AccountService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Error("failed to destroy session", slog.String("error", err.Error()))
		return storeErr("logging out", err)
	}
	return nil
}

// Me returns the account of the calling principal.
func (s *AccountService) Me(ctx context.Context, p auth.Principal) (*model.User, error) {
	if p.IsAnonymous() {
		return nil, apperror.Unauthenticated("you are not logged in")
	}

	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, p.ID())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// The session outlived its account.
			return nil, apperror.Unauthenticated("you are not logged in")
		}
		return nil, storeErr("loading the account", err)
	}
	return user, nil
}

// LoginWithGitHub signs in the account whose email matches the GitHub
// profile, creating a password-less account on first use.
func (s *AccountService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*LoginResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/account: GitHub user must not be nil")
	}
	email, err := validateEmail(gh.Email)
	if err != nil {
		return nil, apperror.ValidationFailed("email", "your GitHub account has no verified email address")
	}

	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		user = &model.User{Name: gh.DisplayName(), Email: email}
		if err := s.users.Create(ctx, user); err != nil {
			s.logger.Error("failed to create GitHub user", slog.String("login", gh.Login), slog.String("error", err.Error()))
			return nil, storeErr("creating the account", err)
		}
		s.logger.Info("user registered via GitHub", slog.String("userID", user.ID), slog.String("login", gh.Login))
	default:
		return nil, storeErr("logging in", err)
	}

	return s.openSession(ctx, user)
}

// SweepSessions deletes every session that has expired by now.
func (s *AccountService) SweepSessions(ctx context.Context) (int64, error) {
	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	n, err := s.sessions.DeleteExpired(ctx, s.opts.Now().UTC())
	if err != nil {
		return 0, storeErr("sweeping sessions", err)
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", slog.Int64("count", n))
	}
	return n, nil
}

// SessionTTL is the lifetime of sessions opened by this service.
func (s *AccountService) SessionTTL() time.Duration {
	return s.opts.SessionTTL
}
