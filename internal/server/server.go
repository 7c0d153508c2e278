package server

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/template/html/v3"

	"backlinks/internal/config"
)

// Server wraps the Fiber app and configuration.
type Server struct {
	App *fiber.App
	Cfg *config.Config
}

// New creates a new server with middleware configured. limiterStorage may be
// nil, in which case rate-limit counters are kept in memory.
func New(cfg *config.Config, limiterStorage fiber.Storage) *Server {
	// Setup template engine
	engine := html.New(cfg.ViewsDir, ".html")
	engine.Reload(cfg.IsDev())

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		Views:        engine,
		ViewsLayout:  "layouts/main",
		ErrorHandler: errorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// CORS middleware
	if origins := cfg.Origins(); len(origins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
			MaxAge:       86400,
		}))
	}

	// Rate limiting middleware for the JSON API
	if cfg.RateLimitMax > 0 {
		limiterCfg := limiter.Config{
			Max:        cfg.RateLimitMax,
			Expiration: 1 * time.Minute,
			Next: func(c fiber.Ctx) bool {
				return !strings.HasPrefix(c.Path(), "/api/")
			},
			KeyGenerator: func(c fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"status": "error",
					"error":  "Rate limit exceeded. Please try again later.",
				})
			},
		}
		if limiterStorage != nil {
			limiterCfg.Storage = limiterStorage
		}
		app.Use(limiter.New(limiterCfg))
	}

	return &Server{
		App: app,
		Cfg: cfg,
	}
}

// errorHandler answers API paths with the JSON envelope and everything else
// with the error page.
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	} else {
		slog.Error("unhandled request error", "path", c.Path(), "error", err)
	}

	if strings.HasPrefix(c.Path(), "/api/") {
		return c.Status(code).JSON(fiber.Map{
			"status": "error",
			"error":  message,
		})
	}
	return c.Status(code).Render("error", fiber.Map{
		"Title":   "Error",
		"Message": message,
	})
}

// Start starts the server on the configured address.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.Cfg.ServerAddr)
	return s.App.Listen(s.Cfg.ServerAddr, fiber.ListenConfig{DisableStartupMessage: !s.Cfg.IsDev()})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}
