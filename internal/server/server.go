// Package server is the composition root: it opens the stores, builds the
// services and handlers, mounts the routes and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	config → stores (sqlite | postgres | memory, + redis sessions)
//	       → services (IdeaService, VoteService, AccountService)
//	       → handlers → chi router
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/platidea/internal/auth"
	"github.com/sakif/platidea/internal/config"
	"github.com/sakif/platidea/internal/handler"
	"github.com/sakif/platidea/internal/middleware"
	"github.com/sakif/platidea/internal/repository"
	"github.com/sakif/platidea/internal/repository/memory"
	"github.com/sakif/platidea/internal/repository/postgres"
	"github.com/sakif/platidea/internal/repository/redisstore"
	sqliteRepo "github.com/sakif/platidea/internal/repository/sqlite"
	"github.com/sakif/platidea/internal/service"
)

// Stores groups the storage backends the server runs on.
type Stores struct {
	Data     repository.Store             // ideas and users (and sessions unless overridden)
	Sessions repository.SessionRepository // nil means Data.Sessions()
	// Probes are pinged by /healthz, keyed by name.
	Probes map[string]handler.Pinger
	// Closers are closed on shutdown, in order.
	Closers []io.Closer
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	stores   Stores
	accounts *service.AccountService
}

// New opens the configured stores and builds the server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s, err := NewWithStores(cfg, stores, logger)
	if err != nil {
		closeAll(stores.Closers, logger)
		return nil, err
	}
	return s, nil
}

// OpenStores connects to the backends named in cfg.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Stores, error) {
	var st Stores

	switch cfg.Database.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return Stores{}, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.Database.Path)
		if err != nil {
			return Stores{}, fmt.Errorf("opening sqlite database: %w", err)
		}
		st.Data = db
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return Stores{}, fmt.Errorf("opening postgres database: %w", err)
		}
		st.Data = db
	case config.DriverMemory:
		logger.Warn("using the in-memory store; all data is lost on restart")
		st.Data = memory.New()
	default:
		return Stores{}, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	st.Closers = append(st.Closers, st.Data)
	st.Probes = map[string]handler.Pinger{"database": st.Data}

	if cfg.Session.Store == config.SessionStoreRedis {
		rs, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			closeAll(st.Closers, logger)
			return Stores{}, fmt.Errorf("opening redis session store: %w", err)
		}
		st.Sessions = rs
		st.Closers = append(st.Closers, rs)
		st.Probes["sessions"] = rs
	}

	return st, nil
}

// NewWithStores builds the server on already-open stores. The server takes
// ownership of stores.Closers.
func NewWithStores(cfg *config.Config, stores Stores, logger *slog.Logger) (*Server, error) {
	if stores.Sessions == nil {
		stores.Sessions = stores.Data.Sessions()
	}
	if stores.Probes == nil {
		stores.Probes = map[string]handler.Pinger{"database": stores.Data}
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		stores: stores,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// setupRoutes configures middleware and routes.
//
// MIDDLEWARE ORDER:
//  1. RequestID: unique id per request, echoed in logs
//  2. RealIP: client address from proxy headers
//  3. Recoverer: a panic becomes a 500 instead of killing the process
//  4. Logger: one line per request
//  5. Identify: resolves the session cookie into a Principal
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.Session.Secret, s.config.Session.TTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	timeout := s.config.Store.Timeout
	resolver := auth.NewSessionResolver(tokens, s.stores.Sessions, timeout, nil, s.logger)

	ideaService := service.NewIdeaService(s.stores.Data.Ideas(), timeout, s.logger)
	voteService := service.NewVoteService(s.stores.Data.Ideas(), timeout, s.logger)
	s.accounts = service.NewAccountService(
		s.stores.Data.Users(), s.stores.Sessions, tokens,
		auth.NewPasswordService(s.config.Security.BcryptCost),
		service.AccountOptions{SessionTTL: s.config.Session.TTL, StoreTimeout: timeout},
		s.logger,
	)

	secure := s.config.Server.SecureCookies
	users := handler.NewUserHandler(s.accounts, resolver, secure, s.logger)
	ideas := handler.NewIdeaHandler(ideaService, s.logger)
	votes := handler.NewVoteHandler(voteService, s.logger)
	health := handler.NewHealthHandler(s.stores.Probes, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// health checks bypass session resolution so they stay cheap
	s.router.Get("/healthz", health.HandleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.Identify(resolver, handler.IdentifyFailed))

		r.Route("/users", func(r chi.Router) {
			r.Post("/register", users.HandleRegister)
			r.Post("/login", users.HandleLogin)
			r.Post("/logout", users.HandleLogout)
			r.Get("/logout", users.HandleLogout)
			r.Get("/me", users.HandleMe)
			r.Get("/profile", users.HandleMe)
		})

		r.Route("/ideas", func(r chi.Router) {
			r.Get("/", ideas.HandleList)
			r.Post("/", ideas.HandleCreate)
			r.Post("/create", ideas.HandleCreate)
			r.Get("/{id}", ideas.HandleGet)
			r.Put("/{id}", ideas.HandleUpdate)
			r.Post("/{id}/edit", ideas.HandleUpdate)
			r.Delete("/{id}", ideas.HandleDelete)
			r.Post("/{id}/delete", ideas.HandleDelete)
		})

		r.Route("/votes", func(r chi.Router) {
			r.Post("/{id}", votes.HandleToggle)
			r.Get("/{id}", votes.HandleStatus)
		})

		if s.config.GitHub.Enabled() {
			gh := auth.NewGitHubProvider(s.config.GitHub.ClientID, s.config.GitHub.ClientSecret, s.config.GitHub.CallbackURL)
			authHandler := handler.NewAuthHandler(gh, s.accounts, secure, s.logger)
			r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
			r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
			s.logger.Info("GitHub sign-in enabled")
		}
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// runSweeper deletes expired sessions every interval until ctx is done.
// Redis expires keys itself, so there the sweep is a cheap no-op.
func (s *Server) runSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.accounts.SweepSessions(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("session sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, give in-flight requests 30 seconds, stop the
// sweeper and close the stores.
func (s *Server) Start() error {
	defer closeAll(s.stores.Closers, s.logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go s.runSweeper(sweepCtx, s.config.Session.SweepInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Driver),
			slog.String("sessions", s.config.Session.Store),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("failed to close store", slog.String("error", err.Error()))
		}
	}
}
