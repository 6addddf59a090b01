// Package web exposes the gateway's request/response HTTP surface.
// It is boundary plumbing only: handlers decode the wire shapes from
// pipeline.Request/Result and map errors to status codes; all
// orchestration lives in pkg/pipeline.
package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicetalk/voicegate/pkg/pipeline"
	"github.com/voicetalk/voicegate/pkg/provider"
)

// Server is the gateway HTTP server.
type Server struct {
	app      *fiber.App
	orch     *pipeline.Orchestrator
	registry *provider.Registry
	logger   *slog.Logger
}

// NewServer builds the HTTP server around an orchestrator and the
// provider health registry.
func NewServer(orch *pipeline.Orchestrator, registry *provider.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		orch:     orch,
		registry: registry,
		logger:   logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicegate",
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024, // audio payloads
	})
	app.Use(cors.New())

	v1 := app.Group("/v1")
	v1.Post("/turn", s.handleTurn)
	v1.Get("/providers", s.handleProviders)

	app.Get("/healthz", s.handleHealthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.app = app
	return s
}

// App returns the underlying fiber app, used by tests.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on addr and blocks until shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
