package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/handler"
	"github.com/SinaHo/phone-referral-auth/internal/middleware"
	"github.com/SinaHo/phone-referral-auth/internal/service"
)

// HTTPDeps is everything the HTTP surface needs.
type HTTPDeps struct {
	Auth         service.AuthService
	Profiles     service.ProfileService
	Tokens       middleware.TokenParser
	Ping         func(ctx context.Context) error
	AllowOrigins string
	Logger       *zap.SugaredLogger
}

// NewHTTPApp assembles the fiber application with middleware and routes.
func NewHTTPApp(d HTTPDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "phone-referral-auth",
		ErrorHandler: handler.ErrorHandler(d.Logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	origins := d.AllowOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(
		recover.New(recover.Config{EnableStackTrace: true}),
		requestid.New(),
		cors.New(cors.Config{
			AllowOrigins: origins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		}),
		middleware.RequestLogger(d.Logger),
		middleware.Metrics(),
	)

	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.Ping != nil {
			if err := d.Ping(ctx); err != nil {
				d.Logger.Warnw("health check failed", "error", err)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unavailable",
				})
			}
		}
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handler.RegisterRoutes(app,
		handler.NewAuthHandler(d.Auth, d.Logger),
		handler.NewProfileHandler(d.Profiles, d.Logger),
		middleware.Authenticate(d.Logger, d.Tokens),
	)
	return app
}
