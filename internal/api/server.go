package api

import (
	"context"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/webpackbridge/internal/assets"
	"github.com/fluxbase-eu/webpackbridge/internal/bundleinfo"
	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
	"github.com/fluxbase-eu/webpackbridge/internal/config"
	"github.com/fluxbase-eu/webpackbridge/internal/middleware"
	"github.com/fluxbase-eu/webpackbridge/internal/observability"
	"github.com/fluxbase-eu/webpackbridge/internal/state"
)

// Dependencies are the services the HTTP server exposes
type Dependencies struct {
	Config   *config.Config
	Catalog  *catalog.Catalog
	Rewriter *assets.Rewriter
	Info     *bundleinfo.Store
	State    state.Store
	Probe    *assets.DevProbe
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Version  string
}

// Server represents the HTTP server
type Server struct {
	app       *fiber.App
	config    *config.Config
	deps      Dependencies
	startTime time.Time
}

// NewServer creates a new HTTP server
func NewServer(deps Dependencies) *Server {
	cfg := deps.Config
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	app := fiber.New(fiber.Config{
		ServerHeader:          "webpackbridge",
		AppName:               "webpackbridge " + version,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	if deps.Probe == nil {
		deps.Probe = assets.NewDevProbe(assets.ProbeOptions{
			Timeout:        cfg.Dev.ProbeTimeout,
			VerifyLiveness: cfg.Dev.VerifyLiveness,
		})
	}

	s := &Server{
		app:       app,
		config:    cfg,
		deps:      deps,
		startTime: time.Now(),
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	s.app.Use(requestid.New())

	if s.config.Tracing.Enabled && s.deps.Tracer != nil && s.deps.Tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.Tracing(middleware.DefaultTracingConfig()))
	}

	s.app.Use(middleware.StructuredLogger())

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	// pages on other origins fetch asset lists
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,HEAD,OPTIONS",
	}))

	if s.config.Metrics.Enabled && s.deps.Metrics != nil {
		s.app.Use(s.deps.Metrics.MetricsMiddleware())
	}

	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))

	s.app.Use(middleware.ETag(middleware.DefaultETagConfig()))
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.config.Metrics.Enabled && s.deps.Metrics != nil {
		s.app.Get("/metrics", s.deps.Metrics.Handler())
	}

	nets, err := middleware.ParseNetworks(s.config.Server.AllowedNetworks)
	if err != nil {
		// Validate rejects these; fall back to loopback only
		log.Error().Err(err).Msg("Invalid server.allowed_networks, only loopback is allowed")
		nets = []*net.IPNet{{IP: net.IPv4(127, 0, 0, 1), Mask: net.CIDRMask(32, 32)}}
	}

	v1 := s.app.Group("/api/v1", middleware.AllowNetworks(nets))

	v1.Get("/assets/js", s.handleJSAssets)
	v1.Get("/assets/css", s.handleCSSAssets)

	v1.Get("/libraries", s.handleLibraries)
	v1.Get("/libraries/entrypoints", s.handleEntryPoints)

	v1.Get("/bundle/mapping", s.handleBundleMapping)
	v1.Get("/bundle/dev-server", s.handleDevServer)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	stateHealthy := true
	if err := s.deps.State.Ping(ctx); err != nil {
		stateHealthy = false
		log.Error().Err(err).Msg("State store health check failed")
	}

	devServer := "stopped"
	if info, err := s.deps.Info.DevServer(ctx); err == nil && info.Address != "" {
		devServer = "unreachable"
		if s.deps.Probe.Available(ctx, info) {
			devServer = "running"
		}
	}

	s.deps.Metrics.UpdateUptime(s.startTime)

	status := "ok"
	httpStatus := fiber.StatusOK
	if !stateHealthy {
		status = "degraded"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"services": fiber.Map{
			"state":      stateHealthy,
			"dev_server": devServer,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.Tracer != nil {
		if err := s.deps.Tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown OpenTelemetry tracer")
		}
	}

	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
