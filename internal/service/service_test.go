package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
	"github.com/sakif/platidea/internal/repository/memory"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// brokenIdeaRepo wraps a real repository and can fail or stall each call.
// calls counts every method invocation, so tests can assert that a rule
// rejected a request before touching storage.
type brokenIdeaRepo struct {
	repository.IdeaRepository
	err   error // returned by every call when set
	stall bool  // block until the context is done
	calls atomic.Int32
}

func (b *brokenIdeaRepo) fail(ctx context.Context) error {
	b.calls.Add(1)
	if b.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	return b.err
}

func (b *brokenIdeaRepo) Create(ctx context.Context, idea *model.Idea) error {
	if err := b.fail(ctx); err != nil {
		return err
	}
	return b.IdeaRepository.Create(ctx, idea)
}

func (b *brokenIdeaRepo) GetByID(ctx context.Context, id string) (*model.Idea, error) {
	if err := b.fail(ctx); err != nil {
		return nil, err
	}
	return b.IdeaRepository.GetByID(ctx, id)
}

func (b *brokenIdeaRepo) List(ctx context.Context, opts repository.ListOptions) ([]model.Idea, error) {
	if err := b.fail(ctx); err != nil {
		return nil, err
	}
	return b.IdeaRepository.List(ctx, opts)
}

func (b *brokenIdeaRepo) ToggleVoter(ctx context.Context, ideaID, userID string) (model.VoteTally, error) {
	if err := b.fail(ctx); err != nil {
		return model.VoteTally{}, err
	}
	return b.IdeaRepository.ToggleVoter(ctx, ideaID, userID)
}

// recordingListRepo captures the options List was called with.
type recordingListRepo struct {
	repository.IdeaRepository
	got repository.ListOptions
}

func (r *recordingListRepo) List(ctx context.Context, opts repository.ListOptions) ([]model.Idea, error) {
	r.got = opts
	return []model.Idea{}, nil
}

var errDiskGone = errors.New("disk I/O error")

const shortTimeout = 20 * time.Millisecond

func newStores() *memory.Store {
	return memory.New()
}
