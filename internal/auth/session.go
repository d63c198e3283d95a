package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/model"
)

// SessionCookieName is the cookie holding the signed session reference.
const SessionCookieName = "session"

// SessionLookup is the read side of the session store.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*model.Session, error)
}

// contextKey is unexported so only this package can read or write the
// principal stored in a request context.
type contextKey string

const principalKey contextKey = "principal"

// DefaultLookupTimeout bounds a session store read when the resolver is
// built without an explicit timeout.
const DefaultLookupTimeout = 5 * time.Second

// SessionResolver turns an incoming request into a Principal.
type SessionResolver struct {
	tokens   *TokenService
	sessions SessionLookup
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionResolver creates a resolver. timeout bounds every session store
// read (zero means DefaultLookupTimeout). now is the clock used for expiry
// checks; pass nil for time.Now.
func NewSessionResolver(tokens *TokenService, sessions SessionLookup, timeout time.Duration, now func() time.Time, logger *slog.Logger) *SessionResolver {
	if tokens == nil || sessions == nil {
		panic("auth: NewSessionResolver requires a token service and a session store")
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &SessionResolver{tokens: tokens, sessions: sessions, timeout: timeout, now: now, logger: logger}
}

// ResolveRequest returns the caller's principal.
//
// A missing, forged, expired or revoked cookie is not an error: the caller is
// simply anonymous. Only a session store failure is returned as an error
// (apperror.ErrUnavailable), because treating an unreachable store as
// "logged out" would silently drop the caller's identity.
func (sr *SessionResolver) ResolveRequest(r *http.Request) (Principal, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return Anonymous(), nil
	}

	sessionID, err := sr.tokens.Validate(cookie.Value)
	if err != nil {
		sr.logger.Debug("ignoring invalid session cookie", slog.String("error", err.Error()))
		return Anonymous(), nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), sr.timeout)
	defer cancel()

	sess, err := sr.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return Anonymous(), nil
		}
		sr.logger.Error("failed to load session", slog.String("error", err.Error()))
		return Anonymous(), apperror.Unavailable("session lookup", fmt.Errorf("loading session: %w", err))
	}

	return Resolve(sess, sr.now()), nil
}

// SessionID returns the id referenced by the request's session cookie,
// or "" if there is no valid cookie. Logout uses it to destroy the record.
func (sr *SessionResolver) SessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	id, err := sr.tokens.Validate(cookie.Value)
	if err != nil {
		return ""
	}
	return id
}

// ErrorRenderer writes the response for a request whose identity could not
// be resolved.
type ErrorRenderer func(w http.ResponseWriter, r *http.Request, err error)

// Identify is a middleware that resolves the principal for every request
// and stores it in the request context. Anonymous requests continue; each
// operation decides for itself whether it needs an identity.
//
// When the session store fails, onError renders the failure and the request
// stops there. A nil onError writes a plain JSON 503.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func Identify(sr *SessionResolver, onError ErrorRenderer) func(http.Handler) http.Handler {
	if onError == nil {
		onError = writeUnavailable
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := sr.ResolveRequest(r)
			if err != nil {
				sr.logger.Warn("rejecting request: session store unavailable",
					slog.String("path", r.URL.Path),
				)
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func writeUnavailable(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`{"error":"Unavailable","message":"session store is temporarily unavailable, please retry"}`))
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by Identify,
// or Anonymous if there is none.
func PrincipalFromContext(ctx context.Context) Principal {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Anonymous()
	}
	return p
}

// SetSessionCookie writes the signed session reference to the response.
//
// The cookie is:
//   - HttpOnly: JavaScript cannot read it
//   - SameSite=Lax: not sent on cross-site POSTs
//   - Expires with the session record
func SetSessionCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to delete the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
