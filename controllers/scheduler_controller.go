package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"buscacliente/utils"
	"buscacliente/worker"
)

// SchedulerController exposes a manual trigger for the send scheduler.
// Operators use it to drain due enrollments on demand instead of waiting
// for the next interval tick.
type SchedulerController struct {
	Worker *worker.SchedulerWorker
	Logger *log.Logger
}

func NewSchedulerController(w *worker.SchedulerWorker, logger *log.Logger) *SchedulerController {
	return &SchedulerController{
		Worker: w,
		Logger: logger,
	}
}

// TriggerTick runs one scheduler batch synchronously and reports what it
// did. An optional batch_size overrides the configured batch for this run.
func (sc *SchedulerController) TriggerTick(c *fiber.Ctx) error {
	var input struct {
		BatchSize int `json:"batch_size"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
		}
	}

	batchSize := sc.Worker.BatchSize
	if input.BatchSize > 0 {
		batchSize = input.BatchSize
	}

	result := sc.Worker.RunTickBatch(c.UserContext(), batchSize)
	sc.Logger.Printf("Manual tick: processed=%d sent=%d failed=%d completed=%d cap_exhausted=%t",
		result.Processed, result.Sent, result.Failed, result.Completed, result.CapExhausted)

	return c.JSON(utils.SuccessResponse(result))
}
