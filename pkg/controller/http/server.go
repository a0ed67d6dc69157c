package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// config holds internal HTTP server configuration
type config struct {
	addr          string
	repos         []model.RepositoryRef
	webhookSecret string
	webhookUC     interfaces.WebhookUseCase
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithRepositories sets the list served by GET /api/repos
func WithRepositories(repos []model.RepositoryRef) Option {
	return func(c *config) {
		c.repos = repos
	}
}

// WithWebhook enables the GitHub webhook endpoint
func WithWebhook(secret string, uc interfaces.WebhookUseCase) Option {
	return func(c *config) {
		c.webhookSecret = secret
		c.webhookUC = uc
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	ctx context.Context,
	dashboardUC interfaces.DashboardUseCase,
	accessUC interfaces.AccessUseCase,
	opts ...Option,
) (*Server, error) {
	cfg := &config{
		addr: "localhost:8080",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if dashboardUC == nil || accessUC == nil {
		return nil, goerr.New("dashboard and access use cases are required")
	}
	if cfg.webhookUC != nil && cfg.webhookSecret == "" {
		return nil, goerr.New("webhook secret is required to enable the webhook endpoint")
	}

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(middleware.Recoverer)

	router.Get("/health", handleHealth)

	repos := &RepositoryHandler{dashboardUC: dashboardUC, configured: cfg.repos}
	router.Get("/api/usage", repos.Usage)

	router.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(accessUC))
		r.Get("/api/auth/me", handleMe)
		r.Get("/api/repos", repos.Configured)
		r.Post("/api/repos/batch", repos.Batch)
		r.Get("/api/repo/{owner}/{repo}", repos.Single)
	})

	if cfg.webhookUC != nil {
		webhookHandler := NewWebhookHandler(cfg.webhookSecret, cfg.webhookUC)
		router.Post("/hooks/github", webhookHandler.Handle)
	}

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}

	return server, nil
}
