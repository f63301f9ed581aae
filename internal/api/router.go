package api

import (
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dtsoden/pmo-sub002/internal/api/handler"
	"github.com/dtsoden/pmo-sub002/internal/api/middleware"
	"github.com/dtsoden/pmo-sub002/internal/core/ports"
	"github.com/dtsoden/pmo-sub002/internal/core/service"
	mongodb "github.com/dtsoden/pmo-sub002/internal/infrastructure/db/mongo"
	"github.com/dtsoden/pmo-sub002/internal/realtime"
)

// NewRouter builds and returns the Echo instance with all routes registered.
// bus is the event pipeline mutations publish into (dispatcher → hub →
// Redis bridge); hub is the local room router realtime connections join.
func NewRouter(db *mongo.Database, rdb *redis.Client, bus ports.EventBus, hub *realtime.Hub, pollHandler *realtime.PollHandler, jwtSecret string, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())

	// --- Dependencies ---
	authRepo := mongodb.NewAuthRepository(db)
	authService := service.NewAuthService(authRepo, jwtSecret, 24*time.Hour)
	authHandler := handler.NewAuthHandler(authService)
	authMiddleware := middleware.Auth(jwtSecret)

	taskRepo := mongodb.NewTaskRepository(db)
	timerService := service.NewTimerService(mongodb.NewTimerRepository(db), taskRepo, bus, log)
	timerHandler := handler.NewTimerHandler(timerService)

	shortcutService := service.NewShortcutService(mongodb.NewShortcutRepository(db), taskRepo, bus, log)
	shortcutHandler := handler.NewShortcutHandler(shortcutService)

	wsHandler := realtime.NewWSHandler(hub, log)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)

	// --- Timer routes ---
	timer := e.Group("/v1/timer", authMiddleware)
	timer.POST("/start", timerHandler.Start)
	timer.POST("/stop", timerHandler.Stop)
	timer.GET("/active", timerHandler.Active)
	timer.PUT("/active", timerHandler.Update)
	timer.DELETE("/active", timerHandler.Discard)

	// --- Shortcut routes ---
	shortcuts := e.Group("/v1/shortcuts", authMiddleware)
	shortcuts.GET("", shortcutHandler.List)
	shortcuts.POST("", shortcutHandler.Create)
	shortcuts.PUT("/reorder", shortcutHandler.Reorder)
	shortcuts.PUT("/:id", shortcutHandler.Update)
	shortcuts.DELETE("/:id", shortcutHandler.Delete)

	// --- Realtime routes ---
	rt := e.Group("/v1/realtime", authMiddleware)
	rt.GET("/ws", wsHandler.Serve)
	rt.POST("/poll", pollHandler.Create)
	rt.GET("/poll/:id", pollHandler.Poll)
	rt.DELETE("/poll/:id", pollHandler.Close)

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)           // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}
