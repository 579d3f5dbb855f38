package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"civicsync/config"
	"civicsync/controllers"
	"civicsync/events"
	"civicsync/jobs"
	"civicsync/middlewares"
	"civicsync/moderation"
	"civicsync/routes"
	"civicsync/storage"
	"civicsync/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var configFile string
	flag.StringVar(&configFile, "c", "./config.yaml", "[optional] path of configuration file")
	flag.Parse()

	settings := config.LoadSettings(configFile)
	config.InitLog(settings.LogLevel)
	initLog := log.WithField("prefix", "init")

	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if settings.JWTSecret == "" {
		initLog.Fatal("JWT_SECRET is not set")
	}

	if settings.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              settings.SentryDSN,
			AttachStacktrace: true,
			Environment:      settings.Environment,
		}); err != nil {
			initLog.Error(err)
		} else {
			initLog.Info("Initialized sentry")
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx := context.Background()

	mongoClient, err := config.ConnectDB(ctx, settings.MongoURI)
	if err != nil {
		initLog.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer config.DisconnectDB(mongoClient)

	db := store.NewMongoStore(mongoClient, settings.MongoDatabase)
	if err := db.EnsureIndexes(ctx); err != nil {
		initLog.Fatalf("Failed to create indexes: %v", err)
	}
	if err := controllers.SeedAdmin(ctx, db, settings.AdminEmail, settings.AdminPassword); err != nil {
		initLog.Errorf("Failed to seed admin account: %v", err)
	}

	redisClient, err := config.ConnectRedis(ctx, settings.RedisAddress, settings.RedisPassword)
	if err != nil {
		initLog.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	bus := events.NewRedisBus(redisClient, settings.ChangesChannel)

	var classifier moderation.Classifier
	gemini, err := moderation.NewGeminiClassifier(ctx, moderation.GeminiConfig{
		APIKey:  settings.GeminiAPIKey,
		Model:   settings.GeminiModel,
		BaseURL: settings.GeminiBaseURL,
	})
	if err != nil {
		initLog.Warnf("Image moderation runs in fallback mode: %v", err)
	} else {
		classifier = gemini
	}
	gate := moderation.NewGate(classifier, moderation.RetryPolicy{
		MaxRetries: settings.ModerationMaxRetries,
		BaseDelay:  settings.ModerationBaseDelay,
	}, moderation.NewMetrics(prometheus.DefaultRegisterer))

	var images storage.ImageStore
	uploader, err := storage.NewGCSUploader(ctx, settings.GCSBucket)
	if err != nil {
		initLog.Warnf("Photo uploads are disabled: %v", err)
	} else {
		images = uploader
		defer uploader.Close()
	}

	scheduler, err := jobs.Start(settings.PrioritySchedule, jobs.NewPriorityJob(db, bus))
	if err != nil {
		initLog.Fatalf("Failed to schedule priority job: %v", err)
	}

	router := routes.SetupRouter(routes.Handlers{
		Auth:       controllers.NewAuthController(db, settings.JWTSecret, settings.Domain, settings.IsProduction()),
		Issues:     controllers.NewIssueController(db, bus, gate, images),
		Admin:      controllers.NewAdminController(db, bus),
		Moderation: controllers.NewModerationController(gate),
		Changes:    controllers.NewChangesController(bus),
		Health: controllers.NewHealthController(map[string]controllers.Check{
			"mongo": db.Ping,
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
	}, routes.Options{
		JWTSecret:     settings.JWTSecret,
		IssueLimitKey: settings.IssueLimitKey,
		IssueDailyCap: settings.IssueDailyCap,
		ImageLimitKey: settings.ImageLimitKey,
		ImageDailyCap: settings.ImageDailyCap,
		MaxImageBytes: settings.MaxImageBytes,
		RateCounter:   middlewares.NewRedisCounter(redisClient),
		Sentry:        settings.SentryDSN != "",
		Gatherer:      prometheus.DefaultGatherer,
	})

	// cancelled on shutdown so open change streams end
	baseCtx, cancelBase := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:        ":" + settings.Port,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelBase)

	go func() {
		initLog.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			initLog.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 2)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("Server is preparing to shutdown")

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server Shutdown:", err)
	}
}
