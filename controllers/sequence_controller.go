package controller

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"buscacliente/models"
	"buscacliente/utils"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{
		DB:     db,
		Logger: logger,
	}
}

type stepInput struct {
	StepOrder int    `json:"step_order" validate:"required,min=1"`
	DelayDays int    `json:"delay_days" validate:"min=0"`
	Channel   string `json:"channel" validate:"required,oneof=email whatsapp"`
	Subject   string `json:"subject" validate:"omitempty,max=500"`
	Body      string `json:"body" validate:"required"`
}

// CreateSequence creates a sequence together with its ordered steps.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var input struct {
		CompanyID uint        `json:"company_id" validate:"required"`
		Name      string      `json:"name" validate:"required,max=200"`
		Steps     []stepInput `json:"steps" validate:"required,min=1,dive"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := validateSteps(input.Steps); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid steps", err)
	}

	sequence := models.Sequence{
		CompanyID: input.CompanyID,
		Name:      input.Name,
		IsActive:  true,
	}

	tx := sc.DB.Begin()
	if err := tx.Create(&sequence).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}
	for _, s := range input.Steps {
		step := models.SequenceStep{
			SequenceID: sequence.ID,
			StepOrder:  s.StepOrder,
			DelayDays:  s.DelayDays,
			Channel:    s.Channel,
			Subject:    s.Subject,
			Body:       s.Body,
		}
		if err := tx.Create(&step).Error; err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence step", err)
		}
	}
	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}

	sc.Logger.Printf("Created sequence %d (%s) with %d steps", sequence.ID, sequence.Name, len(input.Steps))
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{"id": sequence.ID}))
}

// validateSteps enforces the structural invariants: dense, unique, 1-based
// order, and non-decreasing delays across that order.
func validateSteps(steps []stepInput) error {
	byOrder := make(map[int]stepInput, len(steps))
	for _, s := range steps {
		if _, dup := byOrder[s.StepOrder]; dup {
			return fmt.Errorf("duplicate step_order %d", s.StepOrder)
		}
		byOrder[s.StepOrder] = s
		if s.Channel == models.ChannelEmail && s.Subject == "" {
			return fmt.Errorf("step %d: email steps need a subject", s.StepOrder)
		}
	}

	lastDelay := 0
	for order := 1; order <= len(steps); order++ {
		s, ok := byOrder[order]
		if !ok {
			return fmt.Errorf("step order must be dense starting at 1, missing %d", order)
		}
		if s.DelayDays < lastDelay {
			return fmt.Errorf("step %d: delay_days %d is lower than the previous step's %d", order, s.DelayDays, lastDelay)
		}
		lastDelay = s.DelayDays
	}
	return nil
}

// GetSequence returns one sequence with its steps.
func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Query("company_id"))

	var sequence models.Sequence
	if err := sc.DB.
		Where("id = ? AND company_id = ?", c.Params("id"), companyID).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_order ASC") }).
		First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	return c.JSON(utils.SuccessResponse(sequence))
}

// ListSequences returns all sequences for a company.
func (sc *SequenceController) ListSequences(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Query("company_id"))
	if companyID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "company_id is required", nil)
	}

	var sequences []models.Sequence
	if err := sc.DB.Where("company_id = ?", companyID).Order("created_at DESC").Find(&sequences).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list sequences", err)
	}

	return c.JSON(utils.SuccessResponse(sequences))
}

// UpdateSequence updates a sequence's name, active flag and steps. Step
// edits are rejected while any enrollment is still in flight: steps a lead
// has passed are immutable, so active enrollments must be stopped first.
func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	var input struct {
		CompanyID uint        `json:"company_id" validate:"required"`
		Name      *string     `json:"name" validate:"omitempty,max=200"`
		IsActive  *bool       `json:"is_active"`
		Steps     []stepInput `json:"steps" validate:"omitempty,min=1,dive"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND company_id = ?", c.Params("id"), input.CompanyID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	if input.Steps != nil {
		if err := validateSteps(input.Steps); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid steps", err)
		}

		var inFlight int64
		if err := sc.DB.Model(&models.Enrollment{}).
			Where("sequence_id = ? AND status IN ?", sequence.ID,
				[]string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
			Count(&inFlight).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check enrollments", err)
		}
		if inFlight > 0 {
			return utils.ErrorResponse(c, fiber.StatusConflict,
				"Sequence has enrollments in flight; stop them before editing steps", nil)
		}
	}

	tx := sc.DB.Begin()
	if input.Name != nil {
		sequence.Name = *input.Name
	}
	if input.IsActive != nil {
		sequence.IsActive = *input.IsActive
	}
	if err := tx.Save(&sequence).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", err)
	}

	if input.Steps != nil {
		if err := tx.Where("sequence_id = ?", sequence.ID).Delete(&models.SequenceStep{}).Error; err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to replace steps", err)
		}
		for _, s := range input.Steps {
			step := models.SequenceStep{
				SequenceID: sequence.ID,
				StepOrder:  s.StepOrder,
				DelayDays:  s.DelayDays,
				Channel:    s.Channel,
				Subject:    s.Subject,
				Body:       s.Body,
			}
			if err := tx.Create(&step).Error; err != nil {
				tx.Rollback()
				return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to replace steps", err)
			}
		}
	}
	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"id": sequence.ID}))
}

// DeleteSequence removes a sequence that has no enrollments in flight.
func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Query("company_id"))

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND company_id = ?", c.Params("id"), companyID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	var inFlight int64
	if err := sc.DB.Model(&models.Enrollment{}).
		Where("sequence_id = ? AND status IN ?", sequence.ID,
			[]string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
		Count(&inFlight).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check enrollments", err)
	}
	if inFlight > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict,
			"Sequence has enrollments in flight; stop them before deleting", nil)
	}

	tx := sc.DB.Begin()
	if err := tx.Where("sequence_id = ?", sequence.ID).Delete(&models.SequenceStep{}).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete sequence", err)
	}
	if err := tx.Delete(&sequence).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete sequence", err)
	}
	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete sequence", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"deleted": true}))
}
