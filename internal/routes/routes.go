package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/order_stake/internal/config"
	"github.com/congo-pay/order_stake/internal/escrow"
	"github.com/congo-pay/order_stake/internal/infra"
	"github.com/congo-pay/order_stake/internal/metrics"
	"github.com/congo-pay/order_stake/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	Service *escrow.Service
	Storage *infra.Storage
	Cache   *redis.Client
	Logger  *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Service == nil {
		return fmt.Errorf("escrow service is required")
	}
	if !isDev(d.Cfg.AppEnv) && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.HTTPMetrics())
	app.Use(middleware.Audit(d.Logger, "/healthz", "/metrics"))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, middleware.IdempotencyOptions{
			TTL:      d.Cfg.IdempotencyTTL,
			Logger:   d.Logger,
			Required: !isDev(d.Cfg.AppEnv),
		}))
	}

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.HTTPHandler()))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	enrollLimiter := middleware.EnrollRateLimit(d.Cache, d.Cfg.EnrollRateLimitMin, d.Logger)
	RegisterLockRoutes(api, escrow.NewHandler(d.Service), enrollLimiter)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "", "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
