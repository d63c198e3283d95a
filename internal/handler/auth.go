package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/service"
)

const oauthStateCookie = "oauth_state"

// GitHubExchanger turns an OAuth authorization code into a GitHub profile.
// *auth.GitHubProvider implements it.
type GitHubExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler manages the optional GitHub sign-in flow.
//
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → verify state, exchange the code, open a session
//
// The session opened here is the same kind of server-side record that
// password login creates; GitHub only vouches for the email address.
type AuthHandler struct {
	github        GitHubExchanger
	accounts      *service.AccountService
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(github GitHubExchanger, accounts *service.AccountService, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		github:        github,
		accounts:      accounts,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// HandleGitHubLogin redirects the user to GitHub.
//
// HTTP: GET /auth/github/login
//
// A random state value is stored in a short-lived cookie and echoed back by
// GitHub; the callback rejects any request where the two differ.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		redirectWithFlash(w, r, "/users/login", "GitHub sign-in was cancelled")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		redirectWithFlash(w, r, "/users/login", "GitHub sign-in failed")
		return
	}

	res, err := h.accounts.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		respondError(w, r, err, "/users/login")
		return
	}

	auth.SetSessionCookie(w, res.Token, res.Session.ExpiresAt, h.secureCookies)
	redirectWithFlash(w, r, "/ideas", "Logged in with GitHub")
}
