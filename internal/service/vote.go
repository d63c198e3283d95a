package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/repository"
)

// VoteResult is what a caller sees after a toggle or a status read.
type VoteResult struct {
	Votes  int  `json:"votes"`
	Voting bool `json:"voting"`
}

// VoteService records toggle-votes.
//
// Each (user, idea) pair is either "voting" or "not voting":
//
//	not voting --toggle--> voting      (count +1)
//	voting     --toggle--> not voting  (count -1)
//
// The flip happens inside IdeaRepository.ToggleVoter, which is atomic per
// idea. N concurrent toggles by one user therefore end in "voting" exactly
// when N is odd, and toggles by different users never cancel each other.
type VoteService struct {
	repo    repository.IdeaRepository
	timeout time.Duration
	logger  *slog.Logger
}

func NewVoteService(repo repository.IdeaRepository, storeTimeout time.Duration, logger *slog.Logger) *VoteService {
	if repo == nil {
		panic("service: NewVoteService requires an idea repository")
	}
	return &VoteService{repo: repo, timeout: storeTimeout, logger: logger}
}

// Toggle flips p's vote on ideaID and returns the count after the flip.
//
// An anonymous caller is rejected before any storage access. If the call
// fails with ErrUnavailable the flip may or may not have been applied;
// callers should read Status rather than toggling again.
func (s *VoteService) Toggle(ctx context.Context, ideaID string, p auth.Principal) (*VoteResult, error) {
	if p.IsAnonymous() {
		return nil, apperror.Unauthenticated("you must be logged in to vote")
	}
	ideaID = strings.TrimSpace(ideaID)
	if ideaID == "" {
		return nil, apperror.ValidationFailed("id", "idea ID is required")
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	tally, err := s.repo.ToggleVoter(ctx, ideaID, p.ID())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("vote toggle failed",
			slog.String("ideaID", ideaID),
			slog.String("voter", p.ID()),
			slog.String("error", err.Error()),
		)
		return nil, storeErr("recording the vote", err)
	}

	s.logger.Info("vote toggled",
		slog.String("ideaID", ideaID),
		slog.String("voter", p.ID()),
		slog.Bool("voting", tally.Voting),
		slog.Int("votes", tally.Count),
	)
	return &VoteResult{Votes: tally.Count, Voting: tally.Voting}, nil
}

// Status reports the current count and whether p is among the voters.
// Anonymous callers get the count with Voting false.
func (s *VoteService) Status(ctx context.Context, ideaID string, p auth.Principal) (*VoteResult, error) {
	ideaID = strings.TrimSpace(ideaID)
	if ideaID == "" {
		return nil, apperror.ValidationFailed("id", "idea ID is required")
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	idea, err := s.repo.GetByID(ctx, ideaID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("vote status failed", slog.String("ideaID", ideaID), slog.String("error", err.Error()))
		}
		return nil, storeErr("reading votes", err)
	}

	// p.ID() is canonical, the same form ToggleVoter stored.
	voting := !p.IsAnonymous() && idea.HasVoter(p.ID())
	return &VoteResult{Votes: idea.VoteCount(), Voting: voting}, nil
}
