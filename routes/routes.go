package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	controller "buscacliente/controllers"
	"buscacliente/middleware"
	"buscacliente/worker"
)

// SetupRoutes wires the management API and the provider webhook surface.
func SetupRoutes(app *fiber.App, db *gorm.DB, schedulerWorker *worker.SchedulerWorker) {
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	enrollmentController := controller.NewEnrollmentController(db, log.New(os.Stdout, "ENROLLMENT: ", log.LstdFlags))
	messageController := controller.NewMessageController(db, log.New(os.Stdout, "MESSAGE: ", log.LstdFlags))
	integrationController := controller.NewIntegrationController(db, log.New(os.Stdout, "INTEGRATION: ", log.LstdFlags))
	webhookController := controller.NewWebhookController(db, log.New(os.Stdout, "WEBHOOK: ", log.LstdFlags))
	schedulerController := controller.NewSchedulerController(schedulerWorker, log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Sequence routes
	sequences := api.Group("/sequences")
	sequences.Post("/", sequenceController.CreateSequence)
	sequences.Get("/", sequenceController.ListSequences)
	sequences.Get("/:id", sequenceController.GetSequence)
	sequences.Put("/:id", sequenceController.UpdateSequence)
	sequences.Delete("/:id", sequenceController.DeleteSequence)

	// Enrollment routes
	enrollments := api.Group("/enrollments")
	enrollments.Post("/", enrollmentController.Enroll)
	enrollments.Get("/", enrollmentController.ListEnrollments)
	enrollments.Post("/:id/pause", enrollmentController.PauseEnrollment)
	enrollments.Post("/:id/resume", enrollmentController.ResumeEnrollment)
	enrollments.Post("/:id/cancel", enrollmentController.CancelEnrollment)
	enrollments.Get("/:id/messages", messageController.ListEnrollmentMessages)

	// Ledger routes
	api.Get("/leads/:id/messages", messageController.ListLeadMessages)

	// Integration routes
	integrations := api.Group("/integrations")
	integrations.Post("/", integrationController.CreateIntegration)
	integrations.Get("/", integrationController.ListIntegrations)
	integrations.Patch("/:id", integrationController.UpdateIntegration)

	// Scheduler trigger
	api.Post("/scheduler/tick", schedulerController.TriggerTick)

	// Provider webhooks are authenticated by their credential payload, not
	// by the internal token, so they live outside the protected group.
	webhooks := app.Group("/webhooks", middleware.WebhookRateLimiter())
	webhooks.Post("/provider", webhookController.HandleProviderWebhook)
}
