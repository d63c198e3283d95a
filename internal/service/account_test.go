package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository/memory"
)

type accountFixture struct {
	svc    *AccountService
	store  *memory.Store
	tokens *auth.TokenService
	now    time.Time
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16", time.Hour)
	require.NoError(t, err)

	f := &accountFixture{
		store:  newStores(),
		tokens: tokens,
		now:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewAccountService(
		f.store.Users(), f.store.Sessions(), tokens,
		auth.NewPasswordService(bcrypt.MinCost),
		AccountOptions{SessionTTL: time.Hour, Now: func() time.Time { return f.now }},
		quietLogger(),
	)
	return f
}

// =========================================================================
// REGISTER
// =========================================================================

func TestRegister(t *testing.T) {
	f := newAccountFixture(t)

	user, err := f.svc.Register(context.Background(), " Ana ", " Ana@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.NotEqual(t, "correct horse", user.PasswordHash)
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$2"))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Ana", "ana@example.com", "password1")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "Other Ana", "ANA@example.com", "password2")
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)
}

func TestRegister_Validation(t *testing.T) {
	f := newAccountFixture(t)

	tests := []struct {
		name, user, email, password, field string
	}{
		{"missing name", " ", "a@example.com", "password1", "name"},
		{"long name", strings.Repeat("n", MaxNameLength+1), "a@example.com", "password1", "name"},
		{"missing email", "Ana", "", "password1", "email"},
		{"malformed email", "Ana", "not-an-email", "password1", "email"},
		{"display-name email", "Ana", "Ana <a@example.com>", "password1", "email"},
		{"short password", "Ana", "a@example.com", "short", "password"},
		{"overlong password", "Ana", "a@example.com", strings.Repeat("p", 73), "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.user, tt.email, tt.password)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr), "got %v", err)
			assert.Equal(t, apperror.KindInvalid, apperror.KindOf(err))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

// =========================================================================
// LOGIN / LOGOUT / ME
// =========================================================================

func TestLogin_OpensSession(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	user, err := f.svc.Register(ctx, "Ana", "ana@example.com", "password1")
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "ANA@example.com ", "password1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)
	assert.Equal(t, user.ID, res.Session.UserID)
	assert.Equal(t, f.now.Add(time.Hour), res.Session.ExpiresAt)

	// the cookie token references the session, not the user
	subject, err := f.tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Session.ID, subject)

	stored, err := f.store.Sessions().Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, auth.Resolve(stored, f.now).ID())
}

func TestLogin_FailuresShareOneMessage(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "Ana", "ana@example.com", "password1")
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "ana@example.com", "password2")
	_, unknownEmail := f.svc.Login(ctx, "nobody@example.com", "password1")

	for _, err := range []error{wrongPassword, unknownEmail} {
		assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
	}
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogout_DestroysSession(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "Ana", "ana@example.com", "password1")
	require.NoError(t, err)
	res, err := f.svc.Login(ctx, "ana@example.com", "password1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, res.Session.ID))
	_, err = f.store.Sessions().Get(ctx, res.Session.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	// idempotent
	assert.NoError(t, f.svc.Logout(ctx, res.Session.ID))
	assert.NoError(t, f.svc.Logout(ctx, ""))
}

func TestMe(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	user, err := f.svc.Register(ctx, "Ana", "ana@example.com", "password1")
	require.NoError(t, err)

	got, err := f.svc.Me(ctx, auth.NewPrincipal(user.ID))
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.Email)

	_, err = f.svc.Me(ctx, auth.Anonymous())
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))

	_, err = f.svc.Me(ctx, auth.NewPrincipal("deleted-user"))
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

// =========================================================================
// GITHUB SIGN-IN
// =========================================================================

func TestLoginWithGitHub_CreatesThenReuses(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	gh := &auth.GitHubUser{ID: 42, Login: "octocat", Email: "Octo@Example.com"}

	first, err := f.svc.LoginWithGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, "octocat", first.User.Name)
	assert.Empty(t, first.User.PasswordHash)

	second, err := f.svc.LoginWithGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)

	// a password-less account cannot log in with any password
	_, err = f.svc.Login(ctx, "octo@example.com", "")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

func TestLoginWithGitHub_LinksExistingAccount(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	user, err := f.svc.Register(ctx, "Ana", "ana@example.com", "password1")
	require.NoError(t, err)

	res, err := f.svc.LoginWithGitHub(ctx, &auth.GitHubUser{Login: "ana-gh", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)
}

func TestLoginWithGitHub_NoEmail(t *testing.T) {
	f := newAccountFixture(t)

	_, err := f.svc.LoginWithGitHub(context.Background(), &auth.GitHubUser{Login: "ghost"})
	assert.Equal(t, apperror.KindInvalid, apperror.KindOf(err))
}

// =========================================================================
// SWEEPER
// =========================================================================

func TestSweepSessions(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Sessions().Create(ctx, &model.Session{ID: "stale", UserID: "u", ExpiresAt: f.now.Add(-time.Second)}))
	require.NoError(t, f.store.Sessions().Create(ctx, &model.Session{ID: "live", UserID: "u", ExpiresAt: f.now.Add(time.Minute)}))

	n, err := f.svc.SweepSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.store.Sessions().Get(ctx, "live")
	assert.NoError(t, err)
}
