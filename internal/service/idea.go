package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/repository"
)

// Validation limits, counted in characters.
const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 5000
	MaxCategoryLength    = 60
	DefaultListLimit     = 20
	MaxListLimit         = 100
)

// IdeaService creates, reads, edits and deletes ideas.
//
// Edit and delete follow the same sequence:
//
//	anonymous? → Unauthenticated
//	load       → NotFound
//	guard      → Forbidden unless the caller is the author
//	validate   → Invalid
//	write
type IdeaService struct {
	repo    repository.IdeaRepository
	timeout time.Duration
	logger  *slog.Logger
}

// NewIdeaService creates an IdeaService. storeTimeout bounds each storage
// call; zero means DefaultStoreTimeout.
func NewIdeaService(repo repository.IdeaRepository, storeTimeout time.Duration, logger *slog.Logger) *IdeaService {
	if repo == nil {
		panic("service: NewIdeaService requires an idea repository")
	}
	return &IdeaService{repo: repo, timeout: storeTimeout, logger: logger}
}

// normalizeFields trims every field and enforces the required/length rules.
func normalizeFields(in model.IdeaFields) (model.IdeaFields, error) {
	out := model.IdeaFields{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
	}

	checks := []struct {
		field, value string
		max          int
	}{
		{"title", out.Title, MaxTitleLength},
		{"description", out.Description, MaxDescriptionLength},
		{"category", out.Category, MaxCategoryLength},
	}
	for _, c := range checks {
		if c.value == "" {
			return model.IdeaFields{}, apperror.ValidationFailed(c.field, c.field+" is required")
		}
		if utf8.RuneCountInString(c.value) > c.max {
			return model.IdeaFields{}, apperror.ValidationFailed(c.field,
				fmt.Sprintf("%s must be %d characters or less", c.field, c.max))
		}
	}
	return out, nil
}

// Create stores a new idea authored by p.
//
// Any authenticated principal may create. The author is always taken from
// p, never from the input.
func (s *IdeaService) Create(ctx context.Context, p auth.Principal, in model.IdeaFields) (*model.Idea, error) {
	if p.IsAnonymous() {
		return nil, apperror.Unauthenticated("you must be logged in to create an idea")
	}

	fields, err := normalizeFields(in)
	if err != nil {
		return nil, err
	}

	idea := &model.Idea{
		Title:       fields.Title,
		Description: fields.Description,
		Category:    fields.Category,
		AuthorID:    p.ID(),
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Create(ctx, idea); err != nil {
		s.logger.Error("failed to create idea",
			slog.String("author", p.ID()),
			slog.String("error", err.Error()),
		)
		return nil, storeErr("creating the idea", err)
	}

	s.logger.Info("idea created",
		slog.String("ideaID", idea.ID),
		slog.String("author", idea.AuthorID),
	)
	return idea, nil
}

// Get returns one idea. Reading is public.
func (s *IdeaService) Get(ctx context.Context, id string) (*model.Idea, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "idea ID is required")
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	idea, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to load idea", slog.String("ideaID", id), slog.String("error", err.Error()))
		}
		return nil, storeErr("loading the idea", err)
	}
	return idea, nil
}

// List returns ideas ranked by vote count, newest first on ties.
// The limit is clamped to 1..MaxListLimit and defaults to DefaultListLimit.
func (s *IdeaService) List(ctx context.Context, opts repository.ListOptions) ([]model.Idea, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	opts.Category = strings.TrimSpace(opts.Category)

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	ideas, err := s.repo.List(ctx, opts)
	if err != nil {
		s.logger.Error("failed to list ideas", slog.String("error", err.Error()))
		return nil, storeErr("listing ideas", err)
	}
	return ideas, nil
}

// loadForChange runs the shared prelude of Update and Delete.
func (s *IdeaService) loadForChange(ctx context.Context, p auth.Principal, id, action string) (*model.Idea, error) {
	if p.IsAnonymous() {
		return nil, apperror.Unauthenticated("you must be logged in to " + action + " an idea")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "idea ID is required")
	}

	idea, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to load idea", slog.String("ideaID", id), slog.String("error", err.Error()))
		return nil, storeErr("loading the idea", err)
	}

	if err := auth.Authorize(p, idea); err != nil {
		s.logger.Warn("idea change denied",
			slog.String("action", action),
			slog.String("ideaID", id),
			slog.String("principal", p.String()),
		)
		return nil, err
	}
	return idea, nil
}

// Update rewrites the title, description and category of an idea owned by
// p. Votes, author and creation time are left untouched.
func (s *IdeaService) Update(ctx context.Context, p auth.Principal, id string, in model.IdeaFields) (*model.Idea, error) {
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	idea, err := s.loadForChange(ctx, p, id, "edit")
	if err != nil {
		return nil, err
	}

	fields, err := normalizeFields(in)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, idea.ID, fields)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to update idea", slog.String("ideaID", idea.ID), slog.String("error", err.Error()))
		}
		return nil, storeErr("updating the idea", err)
	}

	s.logger.Info("idea updated", slog.String("ideaID", updated.ID))
	return updated, nil
}

// Delete removes an idea owned by p together with its votes.
func (s *IdeaService) Delete(ctx context.Context, p auth.Principal, id string) error {
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	idea, err := s.loadForChange(ctx, p, id, "delete")
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, idea.ID); err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to delete idea", slog.String("ideaID", idea.ID), slog.String("error", err.Error()))
		}
		return storeErr("deleting the idea", err)
	}

	s.logger.Info("idea deleted", slog.String("ideaID", idea.ID))
	return nil
}
