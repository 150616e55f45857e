package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/geotask/task-service/docs"
	"github.com/geotask/task-service/internal/api/handler"
	"github.com/geotask/task-service/internal/api/middleware"
	"github.com/geotask/task-service/internal/core/ports"
)

// Dependencies carries everything the HTTP layer needs.
type Dependencies struct {
	Auth          ports.AuthService
	Users         ports.UserService
	Tasks         ports.TaskService
	Geofences     ports.GeofenceService
	Notifications ports.NotificationService
	Devices       ports.DeviceService
	Locations     handler.LocationQueue
	Revocations   middleware.RevocationChecker
	Readiness     []handler.DependencyCheck
	JWTSecret     string
	Logger        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Logger))
	e.Use(echoprometheus.NewMiddleware("geotask"))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	taskHandler := handler.NewTaskHandler(deps.Tasks)
	userHandler := handler.NewUserHandler(deps.Users)
	geofenceHandler := handler.NewGeofenceHandler(deps.Geofences)
	locationHandler := handler.NewLocationHandler(deps.Locations)
	notificationHandler := handler.NewNotificationHandler(deps.Notifications)
	deviceHandler := handler.NewDeviceHandler(deps.Devices)

	authenticated := middleware.Auth(deps.JWTSecret, deps.Revocations)
	adminOnly := middleware.AdminOnly()

	// --- Health probes, metrics and docs (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Readiness...)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")

	// --- Auth ---
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/me", authHandler.Me, authenticated)
	api.POST("/auth/refresh", authHandler.Refresh, authenticated)
	api.POST("/auth/logout", authHandler.Logout, authenticated)

	// --- Tasks ---
	tasks := api.Group("/tasks", authenticated)
	tasks.GET("/me", taskHandler.Mine)
	tasks.GET("/map", taskHandler.Map)
	tasks.GET("/stats", taskHandler.Stats)
	tasks.GET("/:id", taskHandler.Get)
	tasks.POST("/:id/ack", taskHandler.Acknowledge)
	tasks.GET("", taskHandler.List, adminOnly)
	tasks.POST("", taskHandler.Create, adminOnly)
	tasks.PUT("/:id", taskHandler.Update, adminOnly)
	tasks.DELETE("/:id", taskHandler.Delete, adminOnly)
	tasks.PUT("/:id/status", taskHandler.UpdateStatus, adminOnly)

	// --- Users (admin) ---
	users := api.Group("/users", authenticated, adminOnly)
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete)

	// --- Geofence registry ---
	geofences := api.Group("/geofences", authenticated)
	geofences.GET("", geofenceHandler.List)
	geofences.POST("", geofenceHandler.Create)
	geofences.GET("/status", geofenceHandler.Status)
	geofences.PUT("/:id", geofenceHandler.Update)
	geofences.DELETE("/:id", geofenceHandler.Delete)

	// --- Location ingestion ---
	locations := api.Group("/locations", authenticated)
	locations.POST("", locationHandler.Receive)
	locations.POST("/batch", locationHandler.ReceiveBatch)

	// --- Notifications ---
	notifications := api.Group("/notifications", authenticated)
	notifications.GET("", notificationHandler.List)
	notifications.GET("/unread-count", notificationHandler.UnreadCount)
	notifications.POST("/:id/read", notificationHandler.MarkRead)
	notifications.POST("/mark-all-read", notificationHandler.MarkAllRead)
	notifications.POST("/test", notificationHandler.SendTest, adminOnly)

	// --- Devices ---
	devices := api.Group("/devices", authenticated)
	devices.POST("/register", deviceHandler.Register)
	devices.DELETE("/unregister", deviceHandler.Unregister)
	devices.GET("/tokens", deviceHandler.Tokens)

	return e
}

// requestLogger writes one structured line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Status >= 500 {
				evt = log.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
