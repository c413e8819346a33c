package controller

import (
	"errors"
	"log"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"buscacliente/models"
	"buscacliente/utils"
)

type EnrollmentController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewEnrollmentController(db *gorm.DB, logger *log.Logger) *EnrollmentController {
	return &EnrollmentController{
		DB:     db,
		Logger: logger,
	}
}

// Enroll enrolls a batch of leads into a sequence. Each lead is judged on
// its own: leads without a usable address for the first step's channel and
// leads already enrolled are skipped and reported, never the whole batch.
func (ec *EnrollmentController) Enroll(c *fiber.Ctx) error {
	var input struct {
		CompanyID  uint   `json:"company_id" validate:"required"`
		SequenceID uint   `json:"sequence_id" validate:"required"`
		LeadIDs    []uint `json:"lead_ids" validate:"required,min=1"`
		ActorID    uint   `json:"actor_id"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var sequence models.Sequence
	if err := ec.DB.Where("id = ? AND company_id = ?", input.SequenceID, input.CompanyID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	if !sequence.IsActive {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Sequence is not active", nil)
	}

	var firstStep models.SequenceStep
	if err := ec.DB.Where("sequence_id = ? AND step_order = ?", sequence.ID, 1).First(&firstStep).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Sequence has no steps", nil)
	}

	now := time.Now()
	firstDue := now.Add(time.Duration(firstStep.DelayDays) * 24 * time.Hour)

	var (
		enrolledIDs        []uint
		alreadyEnrolledIDs []uint
		noAddressIDs       []uint
		notFoundIDs        []uint
	)

	for _, leadID := range input.LeadIDs {
		var lead models.Lead
		if err := ec.DB.Where("id = ? AND company_id = ?", leadID, input.CompanyID).First(&lead).Error; err != nil {
			notFoundIDs = append(notFoundIDs, leadID)
			continue
		}

		if !hasUsableAddress(&lead, firstStep.Channel) {
			noAddressIDs = append(noAddressIDs, leadID)
			continue
		}

		// One non-terminal enrollment per (lead, sequence); re-enrollment
		// needs the previous one completed or cancelled first.
		var existing models.Enrollment
		err := ec.DB.
			Where("lead_id = ? AND sequence_id = ? AND status IN ?",
				leadID, sequence.ID, []string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
			First(&existing).Error
		if err == nil {
			alreadyEnrolledIDs = append(alreadyEnrolledIDs, leadID)
			continue
		}
		if err != gorm.ErrRecordNotFound {
			ec.Logger.Printf("Failed to check existing enrollment for lead %d: %v", leadID, err)
			continue
		}

		enrollment := models.Enrollment{
			CompanyID:  input.CompanyID,
			LeadID:     leadID,
			SequenceID: sequence.ID,
			Status:     models.EnrollmentStatusActive,
			StartedAt:  now,
			NextStepAt: utils.Pointer(firstDue),
			EnrolledBy: input.ActorID,
		}
		if err := ec.DB.Create(&enrollment).Error; err != nil {
			// A concurrent Enroll can slip past the read above; the partial
			// unique index settles it.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				alreadyEnrolledIDs = append(alreadyEnrolledIDs, leadID)
				continue
			}
			ec.Logger.Printf("Failed to enroll lead %d in sequence %d: %v", leadID, sequence.ID, err)
			continue
		}
		enrolledIDs = append(enrolledIDs, leadID)
	}

	ec.Logger.Printf("Enrolled %d/%d leads in sequence %d", len(enrolledIDs), len(input.LeadIDs), sequence.ID)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"enrolled_count":           len(enrolledIDs),
		"enrolled_lead_ids":        enrolledIDs,
		"skipped_already_enrolled": alreadyEnrolledIDs,
		"skipped_no_address":       noAddressIDs,
		"skipped_not_found":        notFoundIDs,
	}))
}

// hasUsableAddress checks the lead can actually receive the channel the
// sequence opens with.
func hasUsableAddress(lead *models.Lead, channel string) bool {
	switch channel {
	case models.ChannelEmail:
		return lead.Email != "" && checkmail.ValidateFormat(lead.Email) == nil
	case models.ChannelWhatsApp:
		return len(utils.DigitsOnly(lead.Phone)) >= 8
	}
	return false
}

// PauseEnrollment suspends an active enrollment so the scheduler skips it.
func (ec *EnrollmentController) PauseEnrollment(c *fiber.Ctx) error {
	return ec.transition(c,
		models.EnrollmentStatusActive, models.EnrollmentStatusPaused,
		"Only active enrollments can be paused", nil)
}

// ResumeEnrollment reactivates a paused enrollment. An overdue next_step_at
// simply makes it due on the next tick.
func (ec *EnrollmentController) ResumeEnrollment(c *fiber.Ctx) error {
	return ec.transition(c,
		models.EnrollmentStatusPaused, models.EnrollmentStatusActive,
		"Only paused enrollments can be resumed", nil)
}

// CancelEnrollment terminates an enrollment. Cancellation lands on the
// failed terminal state, which frees the (lead, sequence) pair for
// re-enrollment.
func (ec *EnrollmentController) CancelEnrollment(c *fiber.Ctx) error {
	var enrollment models.Enrollment
	if err := ec.DB.First(&enrollment, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	}
	if enrollment.IsTerminal() {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Enrollment already finished", nil)
	}

	updates := map[string]interface{}{
		"status":       models.EnrollmentStatusFailed,
		"completed_at": time.Now(),
		"next_step_at": nil,
	}
	res := ec.DB.Model(&models.Enrollment{}).
		Where("id = ? AND status IN ?", enrollment.ID,
			[]string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
		Updates(updates)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to cancel enrollment", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Enrollment already finished", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"status": models.EnrollmentStatusFailed}))
}

// transition performs a guarded single-row status change. Terminal states
// are immutable, enforced by the conditional update.
func (ec *EnrollmentController) transition(c *fiber.Ctx, from, to, conflictMsg string, extra map[string]interface{}) error {
	var enrollment models.Enrollment
	if err := ec.DB.First(&enrollment, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := ec.DB.Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", enrollment.ID, from).
		Updates(updates)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update enrollment", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, conflictMsg, nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"status": to}))
}

// ListEnrollments returns enrollments scoped to a company, optionally
// filtered by lead, sequence or status.
func (ec *EnrollmentController) ListEnrollments(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Query("company_id"))
	if companyID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "company_id is required", nil)
	}

	query := ec.DB.Model(&models.Enrollment{}).Where("company_id = ?", companyID)
	if leadID := utils.ParseUint(c.Query("lead_id")); leadID != 0 {
		query = query.Where("lead_id = ?", leadID)
	}
	if sequenceID := utils.ParseUint(c.Query("sequence_id")); sequenceID != 0 {
		query = query.Where("sequence_id = ?", sequenceID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	page, limit := pagination(c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count enrollments", err)
	}

	var enrollments []models.Enrollment
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&enrollments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list enrollments", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  enrollments,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
