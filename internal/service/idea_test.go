package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
)

var (
	alice = auth.NewPrincipal("user-alice")
	bob   = auth.NewPrincipal("user-bob")
	carol = auth.NewPrincipal("user-carol")
)

func validFields() model.IdeaFields {
	return model.IdeaFields{Title: "Bike racks", Description: "More racks near the station", Category: "city"}
}

func newTestIdeaService(t *testing.T) (*IdeaService, repository.IdeaRepository) {
	t.Helper()
	repo := newStores().Ideas()
	return NewIdeaService(repo, 0, quietLogger()), repo
}

// =========================================================================
// CREATE
// =========================================================================

func TestIdeaCreate_SetsAuthorFromPrincipal(t *testing.T) {
	svc, _ := newTestIdeaService(t)

	idea, err := svc.Create(context.Background(), alice, model.IdeaFields{
		Title:       "  Bike racks ",
		Description: "More racks",
		Category:    " city ",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, idea.ID)
	assert.Equal(t, alice.ID(), idea.AuthorID)
	assert.Equal(t, "Bike racks", idea.Title)
	assert.Equal(t, "city", idea.Category)
	assert.Empty(t, idea.Voters)
	assert.Equal(t, 0, idea.VoteCount())
}

func TestIdeaCreate_RequiresLogin(t *testing.T) {
	svc, _ := newTestIdeaService(t)

	_, err := svc.Create(context.Background(), auth.Anonymous(), validFields())
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated), "got %v", err)
}

func TestIdeaCreate_Validation(t *testing.T) {
	svc, _ := newTestIdeaService(t)

	tests := []struct {
		name  string
		edit  func(*model.IdeaFields)
		field string
	}{
		{"missing title", func(f *model.IdeaFields) { f.Title = "   " }, "title"},
		{"missing description", func(f *model.IdeaFields) { f.Description = "" }, "description"},
		{"missing category", func(f *model.IdeaFields) { f.Category = "" }, "category"},
		{"long title", func(f *model.IdeaFields) { f.Title = strings.Repeat("t", MaxTitleLength+1) }, "title"},
		{"long category", func(f *model.IdeaFields) { f.Category = strings.Repeat("c", MaxCategoryLength+1) }, "category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validFields()
			tt.edit(&in)

			_, err := svc.Create(context.Background(), alice, in)
			require.Error(t, err)
			assert.Equal(t, apperror.KindInvalid, apperror.KindOf(err))

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestIdeaCreate_MultibyteTitleAtLimit(t *testing.T) {
	svc, _ := newTestIdeaService(t)
	in := validFields()
	in.Title = strings.Repeat("é", MaxTitleLength)

	_, err := svc.Create(context.Background(), alice, in)
	assert.NoError(t, err)
}

func TestIdeaCreate_StoreFailureIsUnavailable(t *testing.T) {
	repo := &brokenIdeaRepo{IdeaRepository: newStores().Ideas(), err: errDiskGone}
	svc := NewIdeaService(repo, 0, quietLogger())

	_, err := svc.Create(context.Background(), alice, validFields())
	assert.True(t, errors.Is(err, apperror.ErrUnavailable))
	assert.True(t, errors.Is(err, errDiskGone))
	assert.True(t, apperror.Retryable(err))
}

// =========================================================================
// READ
// =========================================================================

func TestIdeaGet(t *testing.T) {
	svc, _ := newTestIdeaService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, alice, validFields())
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)

	_, err = svc.Get(ctx, "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = svc.Get(ctx, " ")
	assert.Equal(t, apperror.KindInvalid, apperror.KindOf(err))
}

func TestIdeaList_ClampsLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultListLimit},
		{-3, DefaultListLimit},
		{7, 7},
		{MaxListLimit + 50, MaxListLimit},
	}
	for _, tt := range tests {
		rec := &recordingListRepo{IdeaRepository: newStores().Ideas()}
		svc := NewIdeaService(rec, 0, quietLogger())

		_, err := svc.List(context.Background(), repository.ListOptions{Limit: tt.in, Offset: -1})
		require.NoError(t, err)
		assert.Equal(t, tt.want, rec.got.Limit, "limit %d", tt.in)
		assert.Equal(t, 0, rec.got.Offset)
	}
}

func TestIdeaList_RankedByVotes(t *testing.T) {
	svc, repo := newTestIdeaService(t)
	ctx := context.Background()

	quiet, err := svc.Create(ctx, alice, validFields())
	require.NoError(t, err)
	popular, err := svc.Create(ctx, bob, validFields())
	require.NoError(t, err)
	_, err = repo.ToggleVoter(ctx, popular.ID, carol.ID())
	require.NoError(t, err)

	ideas, err := svc.List(ctx, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, ideas, 2)
	assert.Equal(t, popular.ID, ideas[0].ID)
	assert.Equal(t, quiet.ID, ideas[1].ID)
}

// =========================================================================
// UPDATE AND DELETE
// =========================================================================

func TestIdeaUpdate_NonAuthorForbidden(t *testing.T) {
	svc, _ := newTestIdeaService(t)
	ctx := context.Background()
	idea, err := svc.Create(ctx, alice, validFields())
	require.NoError(t, err)

	_, err = svc.Update(ctx, carol, idea.ID, model.IdeaFields{Title: "x", Description: "y", Category: "z"})
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "got %v", err)

	got, err := svc.Get(ctx, idea.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bike racks", got.Title)
}

func TestIdeaUpdate_AuthorAllowed(t *testing.T) {
	svc, repo := newTestIdeaService(t)
	ctx := context.Background()
	idea, err := svc.Create(ctx, alice, validFields())
	require.NoError(t, err)
	_, err = repo.ToggleVoter(ctx, idea.ID, bob.ID())
	require.NoError(t, err)

	updated, err := svc.Update(ctx, alice, idea.ID, model.IdeaFields{
		Title: "Covered bike racks", Description: "With a roof", Category: "transport",
	})
	require.NoError(t, err)
	assert.Equal(t, "Covered bike racks", updated.Title)
	assert.Equal(t, "transport", updated.Category)
	assert.Equal(t, alice.ID(), updated.AuthorID)
	assert.Equal(t, []string{bob.ID()}, updated.Voters)
	assert.True(t, updated.CreatedAt.Equal(idea.CreatedAt))
}

func TestIdeaUpdate_AuthorMatchIsCanonical(t *testing.T) {
	svc, _ := newTestIdeaService(t)
	ctx := context.Background()
	idea, err := svc.Create(ctx, alice, validFields())
	require.NoError(t, err)

	_, err = svc.Update(ctx, auth.NewPrincipal(" USER-ALICE "), idea.ID, validFields())
	assert.NoError(t, err)
}

func TestIdeaUpdate_DecisionOrder(t *testing.T) {
	svc, _ := newTestIdeaService(t)
	ctx := context.Background()
	idea, err := svc.Create(ctx, alice, validFields())
	require.NoError(t, err)

	tests := []struct {
		name string
		p    auth.Principal
		id   string
		in   model.IdeaFields
		want apperror.Kind
	}{
		{"anonymous on missing idea", auth.Anonymous(), "missing", validFields(), apperror.KindUnauthenticated},
		{"anonymous on existing idea", auth.Anonymous(), idea.ID, validFields(), apperror.KindUnauthenticated},
		{"member on missing idea", bob, "missing", validFields(), apperror.KindNotFound},
		{"non-author with invalid input", bob, idea.ID, model.IdeaFields{}, apperror.KindForbidden},
		{"author with invalid input", alice, idea.ID, model.IdeaFields{}, apperror.KindInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, tt.p, tt.id, tt.in)
			assert.Equal(t, tt.want, apperror.KindOf(err), "got %v", err)
		})
	}
}

func TestIdeaDelete(t *testing.T) {
	svc, _ := newTestIdeaService(t)
	ctx := context.Background()
	idea, err := svc.Create(ctx, alice, validFields())
	require.NoError(t, err)

	err = svc.Delete(ctx, bob, idea.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	err = svc.Delete(ctx, auth.Anonymous(), idea.ID)
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))

	require.NoError(t, svc.Delete(ctx, alice, idea.ID))

	_, err = svc.Get(ctx, idea.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	err = svc.Delete(ctx, alice, idea.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestIdeaDelete_AnonymousNeverTouchesStore(t *testing.T) {
	repo := &brokenIdeaRepo{IdeaRepository: newStores().Ideas()}
	svc := NewIdeaService(repo, 0, quietLogger())

	err := svc.Delete(context.Background(), auth.Anonymous(), "whatever")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
	assert.Zero(t, repo.calls.Load())
}
