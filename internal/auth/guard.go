package auth

import (
	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/model"
)

// Authorize decides whether p may edit or delete idea. A nil error means allow.
//
// DECISION ORDER:
//  1. anonymous caller        → Unauthenticated
//  2. idea does not exist     → NotFound
//  3. caller is not the author → Forbidden
//
// Anonymous callers are rejected before existence is considered, so they
// cannot probe which idea ids exist. Creation is not guarded: any
// authenticated principal may create.
func Authorize(p Principal, idea *model.Idea) error {
	if p.IsAnonymous() {
		return apperror.Unauthenticated("you must be logged in to modify an idea")
	}
	if idea == nil {
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: "idea not found"}
	}
	if !p.Owns(idea.AuthorID) {
		return apperror.Forbidden("only the author can modify this idea")
	}
	return nil
}
