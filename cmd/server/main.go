// @title                       geotask API
// @version                     1.0
// @description                 Geofenced task assignment, location ingestion and notifications.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/api"
	"github.com/geotask/task-service/internal/api/handler"
	"github.com/geotask/task-service/internal/core/ports"
	"github.com/geotask/task-service/internal/core/service"
	mongodb "github.com/geotask/task-service/internal/infrastructure/db/mongo"
	redisdb "github.com/geotask/task-service/internal/infrastructure/db/redis"
	"github.com/geotask/task-service/internal/infrastructure/mqtt"
	natsbus "github.com/geotask/task-service/internal/infrastructure/nats"
	"github.com/geotask/task-service/internal/infrastructure/queue"
	"github.com/geotask/task-service/internal/pkg/config"
	"github.com/geotask/task-service/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "geotask-api",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(shutdownCtx)
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer rdb.Close()

	userRepo := mongodb.NewUserRepository(db)
	taskRepo := mongodb.NewTaskRepository(db)
	geofenceRepo := mongodb.NewGeofenceRepository(db)
	notificationRepo := mongodb.NewNotificationRepository(db)
	deviceRepo := mongodb.NewDeviceRepository(db)
	if err := mongodb.EnsureIndexes(ctx, userRepo, taskRepo, geofenceRepo, notificationRepo, deviceRepo); err != nil {
		return err
	}

	locationStore := redisdb.NewLocationStore(rdb, cfg.Geo.LocationTTL)
	presenceStore := redisdb.NewPresenceStore(rdb, cfg.Geo.PresenceTTL)
	revoker := redisdb.NewTokenRevoker(rdb)

	readiness := []handler.DependencyCheck{handler.MongoCheck(db), handler.RedisCheck(rdb)}

	// --- Event bus (optional) ---
	var publisher ports.EventPublisher
	if cfg.NATS.Enabled() {
		p, err := natsbus.NewPublisher(cfg.NATS.URL, cfg.NATS.StreamMaxAge)
		if err != nil {
			log.Warn().Err(err).Msg("nats unavailable, domain events disabled")
		} else {
			defer p.Close()
			publisher = p
			readiness = append(readiness, handler.DependencyCheck{Name: "nats", Optional: true, Check: connectedCheck(p.Connected)})
		}
	}

	// --- Use cases ---
	notificationSvc := service.NewNotificationService(notificationRepo, log)
	deviceSvc := service.NewDeviceService(deviceRepo, log)
	locationSvc := service.NewLocationService(locationStore, presenceStore, geofenceRepo, taskRepo, notificationSvc, publisher, cfg.Geo.LocationMaxAge, log)
	authSvc := service.NewAuthService(userRepo, revoker, cfg.JWTSecret, cfg.JWTTTL)
	userSvc := service.NewUserService(userRepo, log)
	geofenceSvc := service.NewGeofenceService(geofenceRepo, locationSvc, log)
	taskSvc := service.NewTaskService(taskRepo, userRepo, locationSvc, notificationSvc, publisher, service.TaskServiceConfig{
		MapPadding:    cfg.Geo.MapPadding,
		DefaultRegion: cfg.Geo.DefaultRegion(),
	}, log)

	// --- Location pipeline ---
	dispatcher := queue.NewDispatcher(cfg.Queue.Workers, locationSvc, log)
	dispatcher.Start(ctx)

	if cfg.MQTT.Enabled() {
		sub := mqtt.NewSubscriber(mqtt.Config{
			BrokerURL: cfg.MQTT.BrokerURL,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			QoS:       byte(cfg.MQTT.QoS),
		}, dispatcher, deviceSvc, log)
		if err := sub.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("mqtt unavailable, device ingestion disabled")
		} else {
			defer sub.Stop()
			readiness = append(readiness, handler.DependencyCheck{Name: "mqtt", Optional: true, Check: connectedCheck(sub.Connected)})
		}
	}

	// --- HTTP ---
	e := api.NewRouter(api.Dependencies{
		Auth:          authSvc,
		Users:         userSvc,
		Tasks:         taskSvc,
		Geofences:     geofenceSvc,
		Notifications: notificationSvc,
		Devices:       deviceSvc,
		Locations:     dispatcher,
		Revocations:   revoker,
		Readiness:     readiness,
		JWTSecret:     cfg.JWTSecret,
		Logger:        log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
	return nil
}

func connectedCheck(connected func() bool) func(context.Context) error {
	return func(context.Context) error {
		if !connected() {
			return errors.New("not connected")
		}
		return nil
	}
}
