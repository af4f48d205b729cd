package bootstrap

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"complaint_server/adapter/in/http"
	"complaint_server/infra/middleware"
	"complaint_server/pkg/logger"
)

// NewAPI builds the read API over shared dependencies.
func NewAPI(deps *Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
		ServerHeader:          "",
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	// AllowCredentials:true requires explicit origins (not "*")
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,Retry-After",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health check (no auth required)
	http.NewHealthHandler(healthChecks(deps), prometheus.DefaultGatherer).Register(app)

	authDisabled := cfg.JWTSecret == "" && !cfg.IsProduction()
	if authDisabled {
		logger.Warn("[API] JWT_SECRET not set, API authentication is disabled")
	}

	api := app.Group("/api",
		middleware.NewRateLimiter(cfg.APIRatePerSec, cfg.APIRateBurst).Handler(),
		middleware.JWTAuth(middleware.AuthConfig{
			Secret:    cfg.JWTSecret,
			Blacklist: deps.TokenBlacklist,
			Disabled:  authDisabled,
		}),
	)

	http.NewComplaintHandler(deps.Query).Register(api)
	if deps.Scheduler != nil {
		http.NewSyncHandler(deps.Scheduler).Register(api)
	}

	return app
}

// healthChecks lists every store the process depends on. Stores that are not
// configured are reported as such instead of failing readiness.
func healthChecks(deps *Dependencies) map[string]http.HealthChecker {
	checks := map[string]http.HealthChecker{
		"postgres": http.PingFunc(deps.DB.Ping),
		"redis":    nil,
		"mongodb":  nil,
	}
	if deps.RedisCache != nil {
		checks["redis"] = deps.RedisCache
	}
	if deps.MongoDB != nil {
		client := deps.MongoDB
		checks["mongodb"] = http.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		})
	}
	return checks
}
