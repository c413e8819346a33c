package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"buscacliente/models"
	"buscacliente/utils"
)

type MessageController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewMessageController(db *gorm.DB, logger *log.Logger) *MessageController {
	return &MessageController{
		DB:     db,
		Logger: logger,
	}
}

// ListLeadMessages returns the full conversation history for one lead,
// outbound and inbound interleaved in chronological order.
func (mc *MessageController) ListLeadMessages(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Query("company_id"))
	if companyID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "company_id is required", nil)
	}
	leadID := utils.ParseUint(c.Params("id"))
	if leadID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead ID", nil)
	}

	var lead models.Lead
	if err := mc.DB.Where("id = ? AND company_id = ?", leadID, companyID).First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	query := mc.DB.Where("company_id = ? AND lead_id = ?", companyID, leadID)
	if direction := c.Query("direction"); direction != "" {
		query = query.Where("direction = ?", direction)
	}
	if channel := c.Query("channel"); channel != "" {
		query = query.Where("channel = ?", channel)
	}

	page, limit := pagination(c)
	var total int64
	if err := query.Model(&models.Message{}).Count(&total).Error; err != nil {
		mc.Logger.Printf("Failed to count messages for lead %d: %v", leadID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch messages", nil)
	}

	var messages []models.Message
	if err := query.Order("created_at ASC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&messages).Error; err != nil {
		mc.Logger.Printf("Failed to fetch messages for lead %d: %v", leadID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch messages", nil)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  messages,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// ListEnrollmentMessages returns every send attempt produced by one
// enrollment, including failed retries, newest first.
func (mc *MessageController) ListEnrollmentMessages(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Query("company_id"))
	if companyID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "company_id is required", nil)
	}
	enrollmentID := utils.ParseUint(c.Params("id"))
	if enrollmentID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid enrollment ID", nil)
	}

	var enrollment models.Enrollment
	if err := mc.DB.Where("id = ? AND company_id = ?", enrollmentID, companyID).First(&enrollment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	}

	var messages []models.Message
	if err := mc.DB.Where("company_id = ? AND enrollment_id = ?", companyID, enrollmentID).
		Order("created_at DESC").
		Find(&messages).Error; err != nil {
		mc.Logger.Printf("Failed to fetch messages for enrollment %d: %v", enrollmentID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch messages", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"enrollment_id": enrollment.ID,
		"status":        enrollment.Status,
		"current_step":  enrollment.CurrentStep,
		"messages":      messages,
	}))
}

func pagination(c *fiber.Ctx) (page, limit int) {
	page = int(utils.ParseUint(c.Query("page")))
	if page < 1 {
		page = 1
	}
	limit = int(utils.ParseUint(c.Query("limit")))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
