package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"simpleautomate/config"
	controller "simpleautomate/controllers"
	"simpleautomate/middleware"
	"simpleautomate/services"
	"simpleautomate/utils"
)

// Dependencies are the long-lived collaborators the handlers share
type Dependencies struct {
	DB            *gorm.DB
	Config        config.Config
	Triggers      controller.Triggerer
	Sweeper       controller.SweepRunner
	Campaigns     controller.CampaignSender
	Accounts      *services.AccountService
	Sessions      *services.SessionService
	Subscriptions *services.SubscriptionService
	Mailer        utils.Mailer
	Activity      *controller.ActivityHub
	// LimiterStorage backs the rate limiters; nil keeps counters in memory
	LimiterStorage fiber.Storage
}

func SetupAuthRoutes(app *fiber.App, deps Dependencies) {
	cfg := deps.Config
	authController := controller.NewAuthController(deps.DB, deps.Accounts, deps.Sessions, deps.Subscriptions, controller.AuthConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		SecureCookies: cfg.Environment == "production",
	})

	auth := app.Group("/api/auth", middleware.RateLimiter(cfg.AuthRateLimitMax, time.Minute, deps.LimiterStorage))
	auth.Post("/signup", authController.Signup)
	auth.Post("/login", authController.Login)
	auth.Post("/refresh", authController.Refresh)
	auth.Post("/logout", authController.Logout)
	auth.Post("/verify-request", authController.RequestVerification)
	auth.Post("/verify", authController.VerifyEmail)
	auth.Get("/me", middleware.Protected(cfg.JWTAccessSecret, deps.DB), authController.GetCurrentUser)
}

func SetupAPIRoutes(app *fiber.App, deps Dependencies) {
	cfg := deps.Config

	contactController := controller.NewContactController(deps.DB, deps.Triggers)
	pipelineController := controller.NewPipelineController(deps.DB)
	noteController := controller.NewNoteController(deps.DB)
	taskController := controller.NewTaskController(deps.DB)
	templateController := controller.NewTemplateController(deps.DB)
	automationController := controller.NewAutomationController(deps.DB)
	campaignController := controller.NewCampaignController(deps.DB, deps.Campaigns)
	dashboardController := controller.NewDashboardController(deps.DB)

	protected := []fiber.Handler{
		middleware.Protected(cfg.JWTAccessSecret, deps.DB),
		middleware.RateLimiter(cfg.RateLimitMax, time.Minute, deps.LimiterStorage),
	}
	paid := append(protected[:len(protected):len(protected)], middleware.RequireSubscription())

	contacts := app.Group("/api/contacts", protected...)
	contacts.Get("/", contactController.GetContacts)
	contacts.Post("/", contactController.CreateContact)
	contacts.Get("/:id", contactController.GetContact)
	contacts.Put("/:id", contactController.UpdateContact)
	contacts.Delete("/:id", contactController.DeleteContact)
	contacts.Post("/:id/stage", contactController.ChangeStage)

	pipelines := app.Group("/api/pipelines", protected...)
	pipelines.Get("/", pipelineController.GetPipelines)
	pipelines.Get("/board", pipelineController.GetBoard)
	pipelines.Post("/", pipelineController.CreatePipeline)
	pipelines.Post("/:id/stages", pipelineController.AddStage)
	pipelines.Put("/:id/stages/reorder", pipelineController.ReorderStages)

	notes := app.Group("/api/notes", protected...)
	notes.Get("/contacts/:contactId", noteController.GetContactNotes)
	notes.Post("/contacts/:contactId", noteController.CreateNote)
	notes.Put("/:id", noteController.UpdateNote)
	notes.Get("/:id/revisions", noteController.GetRevisions)
	notes.Delete("/:id", noteController.DeleteNote)

	tasks := app.Group("/api/tasks", protected...)
	tasks.Get("/", taskController.GetTasks)
	tasks.Post("/", taskController.CreateTask)
	tasks.Put("/:id", taskController.UpdateTask)
	tasks.Post("/:id/complete", taskController.CompleteTask)
	tasks.Delete("/:id", taskController.DeleteTask)

	templates := app.Group("/api/templates", protected...)
	templates.Get("/", templateController.GetTemplates)
	templates.Post("/", templateController.CreateTemplate)
	templates.Put("/:id", templateController.UpdateTemplate)
	templates.Delete("/:id", templateController.DeleteTemplate)

	dashboard := app.Group("/api/dashboard", protected...)
	dashboard.Get("/", dashboardController.GetDashboardStats)

	automations := app.Group("/api/automations", paid...)
	if deps.Activity != nil {
		automations.Get("/activity", controller.RequireUpgrade, deps.Activity.Handler())
	}
	automations.Get("/", automationController.GetAutomations)
	automations.Post("/", automationController.CreateAutomation)
	automations.Get("/:id", automationController.GetAutomation)
	automations.Put("/:id", automationController.UpdateAutomation)
	automations.Put("/:id/steps", automationController.ReplaceSteps)
	automations.Get("/:id/logs", automationController.GetLogs)
	automations.Delete("/:id", automationController.DeleteAutomation)

	// the pixel is fetched by mail clients without credentials
	app.Get("/api/track/:token/open.gif", campaignController.HandleOpenTracking)

	campaigns := app.Group("/api/campaigns", paid...)
	campaigns.Get("/", campaignController.GetCampaigns)
	campaigns.Post("/", campaignController.CreateCampaign)
	campaigns.Get("/:id", campaignController.GetCampaign)
	campaigns.Get("/:id/stats", campaignController.GetCampaignStats)
	campaigns.Delete("/:id", campaignController.DeleteCampaign)
}

// SetupSystemRoutes registers the endpoints called by machines rather than
// the frontend
func SetupSystemRoutes(app *fiber.App, deps Dependencies) {
	cfg := deps.Config

	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	cronController := controller.NewCronController(deps.Sweeper, cfg.CronSecret)
	app.Post("/api/cron/run", cronController.Run)

	billingController := controller.NewBillingController(deps.Subscriptions, cfg.StripeWebhookSecret)
	app.Post("/api/billing/webhook", billingController.HandleStripeWebhook)

	supportController := controller.NewSupportController(deps.Mailer, cfg.FromEmail)
	app.Post("/api/support/contact",
		middleware.RateLimiter(cfg.AuthRateLimitMax, time.Minute, deps.LimiterStorage),
		supportController.SubmitContactForm)
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	controller.InitStripe()

	SetupSystemRoutes(app, deps)

	SetupAuthRoutes(app, deps)

	SetupAPIRoutes(app, deps)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
