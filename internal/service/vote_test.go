package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
)

// newVoteFixture returns a vote service and one idea authored by alice.
func newVoteFixture(t *testing.T) (*VoteService, repository.IdeaRepository, *model.Idea) {
	t.Helper()
	repo := newStores().Ideas()
	idea := &model.Idea{Title: "Bike racks", Description: "d", Category: "city", AuthorID: alice.ID()}
	require.NoError(t, repo.Create(context.Background(), idea))
	return NewVoteService(repo, 0, quietLogger()), repo, idea
}

// =========================================================================
// TOGGLE STATE MACHINE
// =========================================================================

func TestToggle_OnThenOff(t *testing.T) {
	svc, repo, idea := newVoteFixture(t)
	ctx := context.Background()

	res, err := svc.Toggle(ctx, idea.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 1, Voting: true}, *res)

	stored, err := repo.GetByID(ctx, idea.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID()}, stored.Voters)

	res, err = svc.Toggle(ctx, idea.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 0, Voting: false}, *res)

	stored, err = repo.GetByID(ctx, idea.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Voters)
}

func TestToggle_UsersAreIndependent(t *testing.T) {
	svc, _, idea := newVoteFixture(t)
	ctx := context.Background()

	_, err := svc.Toggle(ctx, idea.ID, bob)
	require.NoError(t, err)
	res, err := svc.Toggle(ctx, idea.ID, carol)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Votes)

	// carol leaving must not affect bob
	res, err = svc.Toggle(ctx, idea.ID, carol)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 1, Voting: false}, *res)

	status, err := svc.Status(ctx, idea.ID, bob)
	require.NoError(t, err)
	assert.True(t, status.Voting)
}

func TestToggle_AuthorMayVote(t *testing.T) {
	svc, _, idea := newVoteFixture(t)

	res, err := svc.Toggle(context.Background(), idea.ID, alice)
	require.NoError(t, err)
	assert.True(t, res.Voting)
}

func TestToggle_AnonymousRejectedWithoutStoreAccess(t *testing.T) {
	_, inner, idea := newVoteFixture(t)
	repo := &brokenIdeaRepo{IdeaRepository: inner}
	svc := NewVoteService(repo, 0, quietLogger())

	_, err := svc.Toggle(context.Background(), idea.ID, auth.Anonymous())
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
	assert.Zero(t, repo.calls.Load())

	stored, err := inner.GetByID(context.Background(), idea.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Voters)
}

func TestToggle_MissingIdea(t *testing.T) {
	svc, repo, _ := newVoteFixture(t)
	ctx := context.Background()

	_, err := svc.Toggle(ctx, "does-not-exist", bob)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = repo.GetByID(ctx, "does-not-exist")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "toggle must not create the idea")
}

func TestToggle_BlankID(t *testing.T) {
	svc, _, _ := newVoteFixture(t)

	_, err := svc.Toggle(context.Background(), "  ", bob)
	assert.Equal(t, apperror.KindInvalid, apperror.KindOf(err))
}

func TestToggle_StoreFailureIsUnavailable(t *testing.T) {
	_, inner, idea := newVoteFixture(t)
	svc := NewVoteService(&brokenIdeaRepo{IdeaRepository: inner, err: errDiskGone}, 0, quietLogger())

	_, err := svc.Toggle(context.Background(), idea.ID, bob)
	assert.True(t, errors.Is(err, apperror.ErrUnavailable))
	assert.True(t, apperror.Retryable(err))
}

func TestToggle_TimeoutIsUnavailable(t *testing.T) {
	_, inner, idea := newVoteFixture(t)
	svc := NewVoteService(&brokenIdeaRepo{IdeaRepository: inner, stall: true}, shortTimeout, quietLogger())

	_, err := svc.Toggle(context.Background(), idea.ID, bob)
	assert.True(t, errors.Is(err, apperror.ErrUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// =========================================================================
// CONCURRENCY
// =========================================================================

func TestToggle_ConcurrentSameUserParity(t *testing.T) {
	for _, n := range []int{1, 2, 7, 16, 33} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			svc, _, idea := newVoteFixture(t)
			ctx := context.Background()

			var g errgroup.Group
			for range n {
				g.Go(func() error {
					_, err := svc.Toggle(ctx, idea.ID, bob)
					return err
				})
			}
			require.NoError(t, g.Wait())

			status, err := svc.Status(ctx, idea.ID, bob)
			require.NoError(t, err)
			assert.Equal(t, n%2 == 1, status.Voting)
			if n%2 == 1 {
				assert.Equal(t, 1, status.Votes)
			} else {
				assert.Equal(t, 0, status.Votes)
			}
		})
	}
}

func TestToggle_ConcurrentDistinctUsers(t *testing.T) {
	svc, _, idea := newVoteFixture(t)
	ctx := context.Background()

	const voters = 40
	var g errgroup.Group
	for i := range voters {
		p := auth.NewPrincipal(fmt.Sprintf("user-%02d", i))
		g.Go(func() error {
			_, err := svc.Toggle(ctx, idea.ID, p)
			return err
		})
	}
	require.NoError(t, g.Wait())

	status, err := svc.Status(ctx, idea.ID, auth.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, voters, status.Votes)
	assert.False(t, status.Voting)
}

// =========================================================================
// STATUS
// =========================================================================

func TestStatus(t *testing.T) {
	svc, _, idea := newVoteFixture(t)
	ctx := context.Background()

	_, err := svc.Toggle(ctx, idea.ID, bob)
	require.NoError(t, err)

	res, err := svc.Status(ctx, idea.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 1, Voting: true}, *res)

	res, err = svc.Status(ctx, idea.ID, carol)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 1, Voting: false}, *res)

	_, err = svc.Status(ctx, "missing", bob)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestToggleAndStatus_AgreeOnIdentityForm(t *testing.T) {
	svc, repo, idea := newVoteFixture(t)
	ctx := context.Background()
	bobShouting := auth.NewPrincipal("  USER-BOB ")

	res, err := svc.Toggle(ctx, idea.ID, bobShouting)
	require.NoError(t, err)
	assert.True(t, res.Voting)

	stored, err := repo.GetByID(ctx, idea.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID()}, stored.Voters, "voter ids are stored canonically")

	res, err = svc.Status(ctx, idea.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 1, Voting: true}, *res)

	// the same user written differently withdraws the vote instead of adding a second
	res, err = svc.Toggle(ctx, idea.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 0, Voting: false}, *res)

	res, err = svc.Status(ctx, idea.ID, bobShouting)
	require.NoError(t, err)
	assert.False(t, res.Voting)
}
