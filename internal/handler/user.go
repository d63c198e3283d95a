package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/model"
	"github.com/sakif/platidea/internal/service"
)

// UserHandler serves registration, login, logout and the profile.
//
// HTTP:
//
//	POST /users/register  → 201 {"user": ...}        | 303 /users/login
//	POST /users/login     → 200 {"user": ...} + cookie | 303 /ideas
//	POST /users/logout    → 200 {"message": ...}     | 303 /users/login
//	GET  /users/me        → 200 {"user": ...}
type UserHandler struct {
	accounts      *service.AccountService
	sessions      *auth.SessionResolver
	secureCookies bool
	logger        *slog.Logger
}

func NewUserHandler(accounts *service.AccountService, sessions *auth.SessionResolver, secureCookies bool, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		accounts:      accounts,
		sessions:      sessions,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// UserResponse wraps a user record. PasswordHash is never serialised.
type UserResponse struct {
	User *model.User `json:"user"`
}

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *credentials) fromForm(form url.Values) {
	c.Name = form.Get("name")
	c.Email = form.Get("email")
	c.Password = form.Get("password")
}

func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeBody(w, r, &in, in.fromForm); err != nil {
		respondError(w, r, err, "/users/register")
		return
	}

	user, err := h.accounts.Register(r.Context(), in.Name, in.Email, in.Password)
	if err != nil {
		respondError(w, r, err, "/users/register")
		return
	}

	respond(w, r, http.StatusCreated, UserResponse{User: user},
		"/users/login", "Registration successful, you can now log in")
}

func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeBody(w, r, &in, in.fromForm); err != nil {
		respondError(w, r, err, "/users/login")
		return
	}

	res, err := h.accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		respondError(w, r, err, "/users/login")
		return
	}

	auth.SetSessionCookie(w, res.Token, res.Session.ExpiresAt, h.secureCookies)
	respond(w, r, http.StatusOK, UserResponse{User: res.User}, "/ideas", "Logged in")
}

// HandleLogout destroys the server-side session and clears the cookie.
// Logging out without a session succeeds.
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), h.sessions.SessionID(r)); err != nil {
		respondError(w, r, err, "/ideas")
		return
	}

	auth.ClearSessionCookie(w, h.secureCookies)
	respond(w, r, http.StatusOK, MessageResponse{Message: "logged out"}, "/users/login", "Logged out")
}

func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Me(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}
