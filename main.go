package main

import (
	api "anoapp-backend/cmd/api"
	devicedomain "anoapp-backend/internal/device/domain"
	deviceRepo "anoapp-backend/internal/device/repository"
	deviceUsecase "anoapp-backend/internal/device/usecase"
	"anoapp-backend/internal/dispatch"
	feeddomain "anoapp-backend/internal/feed/domain"
	feedRepo "anoapp-backend/internal/feed/repository"
	feedUsecase "anoapp-backend/internal/feed/usecase"
	"anoapp-backend/pkg/cache"
	"anoapp-backend/pkg/config"
	"anoapp-backend/pkg/credential"
	"anoapp-backend/pkg/database"
	"anoapp-backend/pkg/fcm"
	"anoapp-backend/pkg/restkey"

	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&devicedomain.Device{},
		&devicedomain.Topic{},
		&feeddomain.Notification{},
		&feeddomain.NotificationRead{},
		&feeddomain.ReadState{},
	); err != nil {
		logrus.WithError(err).Fatal("Failed to migrate database")
	}

	// Initialize cache (optional, everything degrades to the database)
	var cacheClient *cache.Cache
	if cfg.RedisAddr != "" {
		cacheClient, err = cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logrus.WithError(err).Warn("Redis unavailable, running without cache")
			cacheClient = nil
		}
	}

	// Initialize FCM credentials and client
	var fcmClient *fcm.Client
	if cfg.FirebaseCredentials != "" {
		provider, err := credential.NewProvider(cfg.FirebaseCredentials)
		if err != nil {
			logrus.WithError(err).Warn("Failed to load Firebase credentials, push disabled")
		} else {
			projectID := cfg.FirebaseProjectID
			if projectID == "" {
				projectID = provider.ProjectID()
			}
			fcmClient = fcm.NewClient(projectID, provider, cfg.HTTPTimeout)
			logrus.WithField("project_id", projectID).Info("FCM client initialized")
		}
	} else {
		logrus.Warn("No Firebase credentials configured, push disabled")
	}

	// Generate a REST API key on first run so the registry is never open
	if cfg.RestAPIKey == "" {
		cfg.RestAPIKey = restkey.Generate()
		logrus.WithField("rest_api_key", cfg.RestAPIKey).
			Warn("REST_API_KEY not set, generated one for this run")
	}

	// Initialize repositories (dependency injection)
	deviceRepository := deviceRepo.NewDeviceRepository(db)
	notificationRepository := feedRepo.NewNotificationRepository(db)

	// Initialize use cases
	deviceUsecaseInstance := deviceUsecase.NewDeviceUsecase(deviceRepository, cacheClient)
	feedUsecaseInstance := feedUsecase.NewFeedUsecase(notificationRepository, cacheClient)

	// Initialize dispatcher
	var sender dispatch.Sender
	if fcmClient != nil {
		sender = fcmClient
	}
	dispatcher := dispatch.NewService(deviceRepository, feedUsecaseInstance, sender, cfg.DispatchWorkers)

	// Initialize HTTP handler
	handler := api.NewHandler(deviceUsecaseInstance, feedUsecaseInstance, dispatcher, cfg)

	logrus.WithField("port", cfg.Port).Info("Server starting")
	if err := handler.Start(":" + cfg.Port); err != nil {
		logrus.WithError(err).Fatal("Failed to start server")
	}
}
