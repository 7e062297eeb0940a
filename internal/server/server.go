package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jjudge-oj/judgeserver/config"
	"github.com/jjudge-oj/judgeserver/internal/handlers"
	"github.com/jjudge-oj/judgeserver/internal/judge"
	"github.com/jjudge-oj/judgeserver/internal/services"
	"github.com/sirupsen/logrus"
)

// Options adjust how New assembles the server.
type Options struct {
	// Memory keeps problems, contests, submissions and testcase bundles in
	// process memory instead of PostgreSQL and object storage.
	Memory bool
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	deps       *Dependencies
	log        logrus.FieldLogger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger, opts Options) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	deps, err := NewDependencies(ctx, cfg, log, opts)
	if err != nil {
		return nil, err
	}

	router := NewRouter(deps.Services, cfg.JWTSecret, log)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	// Submissions are judged inside the request, so writes must outlast
	// every judge attempt.
	judgeTimeout := cfg.Judge.Timeout
	if judgeTimeout <= 0 {
		judgeTimeout = judge.DefaultTimeout
	}
	judgeBudget := judgeTimeout * time.Duration(cfg.Judge.Retries+1)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: judgeBudget + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		deps:       deps,
		log:        log,
	}, nil
}

// NewRouter builds the HTTP routes over svc.
func NewRouter(svc Services, jwtSecret string, log logrus.FieldLogger) *chi.Mux {
	authMiddleware := handlers.RequireAuth(jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/problems", func(r chi.Router) {
		handlers.ProblemRouter(r, svc.Problems, svc.Submissions, authMiddleware, log)
	})
	router.Route("/submissions", func(r chi.Router) {
		handlers.SubmissionRouter(r, svc.Submissions, authMiddleware, log)
	})
	router.Route("/contests", func(r chi.Router) {
		handlers.ContestRouter(r, svc.Contests, svc.Submissions, authMiddleware, log)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("judge server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight submissions to
// finish and releases backend connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.deps.Close())
}

// Services groups the application services behind the HTTP surface.
type Services struct {
	Problems    *services.ProblemService
	Submissions *services.SubmissionService
	Contests    *services.ContestService
}
