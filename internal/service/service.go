// Package service contains the business rules of the idea board.
//
// THE LAYERS:
//
//	Handler (HTTP)    → parses requests, picks JSON or redirect rendering
//	Service (rules)   → identity checks, validation, ownership, vote toggling
//	Repository (data) → sqlite / postgres / memory / redis
//
// Services take the caller's auth.Principal as an explicit argument. They
// never read it from a request context, so every rule here can be exercised
// with plain function calls in tests.
//
// ERRORS:
// Every error a service returns is an *apperror.AppError. Domain outcomes
// (NotFound, Conflict, Forbidden, ...) pass through unchanged; any other
// storage failure, including a timeout, becomes apperror.ErrUnavailable.
package service

import (
	"context"
	"time"

	"github.com/sakif/platidea/internal/apperror"
)

// DefaultStoreTimeout bounds a single storage call when none is configured.
const DefaultStoreTimeout = 5 * time.Second

// withStoreTimeout derives the context for one storage call.
func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}

// storeErr classifies a repository error for op.
func storeErr(op string, err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.Unavailable(op, err)
}
