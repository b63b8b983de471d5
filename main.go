package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"simpleautomate/automation"
	"simpleautomate/config"
	controller "simpleautomate/controllers"
	"simpleautomate/metrics"
	"simpleautomate/middleware"
	"simpleautomate/repository"
	"simpleautomate/routes"
	"simpleautomate/services"
	"simpleautomate/utils"
	"simpleautomate/worker"
)

// errorHandler renders errors returned by handlers, mostly *fiber.Error from
// parameter parsing and lookups, in the same envelope as utils.ErrorResponse
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	} else {
		utils.LogError("unhandled", err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	utils.InitLogger(cfg.LogLevel, cfg.Environment)
	flush, err := utils.InitSentry(cfg.SentryDSN, cfg.Environment)
	if err != nil {
		logrus.WithError(err).Warn("Sentry disabled")
	}
	defer flush()

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	db := config.DB

	var (
		limiterStorage fiber.Storage
		locker         services.Locker
	)
	if cfg.Redis.Enabled {
		client := config.NewRedisClient(cfg.Redis)
		defer client.Close()
		limiterStorage = middleware.NewRedisStorage(client)
		locker = services.NewRedisLocker(client)
		logrus.WithField("address", cfg.Redis.Address).Info("Redis enabled for rate limiting and sweep locking")
	}

	mailer := utils.NewMailer(utils.MailerSettings{
		From:         cfg.FromEmail,
		ResendAPIKey: cfg.ResendAPIKey,
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUsername: cfg.SMTPUsername,
		SMTPPassword: cfg.SMTPPassword,
	}, utils.Component("mailer"))

	activity := controller.NewActivityHub()
	engine := automation.NewEngine(automation.Deps{
		Store:     repository.NewAutomationRepository(db),
		Contacts:  repository.NewContactRepository(db),
		Templates: repository.NewTemplateRepository(db),
		Users:     repository.NewUserRepository(db),
		Mailer:    mailer,
	}, automation.Config{
		BatchSize:         cfg.Automation.BatchSize,
		MaxAttempts:       cfg.Automation.MaxAttempts,
		RetryBaseDelay:    cfg.Automation.RetryBaseDelay,
		VisibilityTimeout: cfg.Automation.VisibilityTimeout,
		DateTriggerDedup:  cfg.Automation.DateTriggerDedup,
	},
		automation.WithLogger(utils.Component("automation")),
		automation.WithEventHook(metrics.RecordQueueEvent),
		automation.WithEventHook(activity.Publish),
	)

	campaigns := services.NewCampaignDispatcher(db, mailer, cfg.CampaignSendRate)
	if cfg.APIBaseURL != "" {
		campaigns.TrackingURL = strings.TrimRight(cfg.APIBaseURL, "/") + "/api/track"
	}
	reminders := services.NewTaskReminder(db, mailer)
	sweeper := services.NewSweeper(engine, campaigns, reminders, locker)

	deps := routes.Dependencies{
		DB:             db,
		Config:         cfg,
		Triggers:       engine,
		Sweeper:        sweeper,
		Campaigns:      campaigns,
		Accounts:       services.NewAccountService(db, mailer, cfg.AppBaseURL, cfg.TrialDays),
		Sessions:       services.NewSessionService(db, cfg.RefreshTokenTTL),
		Subscriptions:  services.NewSubscriptionService(db, cfg.StripeSecretKey != ""),
		Mailer:         mailer,
		Activity:       activity,
		LimiterStorage: limiterStorage,
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "SimpleAutomate",
		ErrorHandler: errorHandler,
		BodyLimit:    2 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.FrontendURLs
	app.Use(middleware.CORS(corsConfig))
	app.Use(metrics.Middleware())

	routes.SetupRoutes(app, deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go worker.NewSweepWorker(sweeper, cfg.SweepInterval).Start(ctx)

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start server
	logrus.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logrus.Fatalf("Failed to start server: %v", err)
	}
}
