package main

import (
	"context"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"buscacliente/config"
	"buscacliente/middleware"
	"buscacliente/routes"
	"buscacliente/utils"
	"buscacliente/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "ENGINE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Channel providers share one credential resolver; tenant integrations
	// take precedence, the configured defaults back them up.
	resolver := utils.NewCredentialResolver(config.DB, map[string]utils.Credential{
		"email": {
			APIKey:        config.AppConfig.SMTPPassword,
			InstanceID:    config.AppConfig.SMTPUsername,
			SenderAddress: config.AppConfig.FromEmail,
		},
		"whatsapp": {
			APIKey:        config.AppConfig.TwilioAuthToken,
			InstanceID:    config.AppConfig.TwilioAccountSID,
			SenderAddress: config.AppConfig.TwilioFromWhatsApp,
		},
	})
	providers := map[string]utils.Provider{
		"email":    utils.NewEmailProvider(resolver, config.AppConfig.SMTPHost, config.AppConfig.SMTPPort),
		"whatsapp": utils.NewWhatsAppProvider(resolver),
	}

	limiter := utils.NewSendRateLimiter(config.DB, config.AppConfig.DailySendLimit, config.AppConfig.SendCapScope)

	// Initialize and start the scheduler worker
	schedulerWorker := worker.NewSchedulerWorker(
		config.DB,
		limiter,
		providers,
		config.AppConfig.SchedulerBatchSize,
		config.AppConfig.SchedulerInterval,
		log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go schedulerWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, schedulerWorker)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
