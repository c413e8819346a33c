package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"buscacliente/models"
	"buscacliente/utils"
)

// BatchResult summarizes one scheduler tick.
type BatchResult struct {
	Processed    int  `json:"processed"`
	Sent         int  `json:"sent"`
	Failed       int  `json:"failed"`
	Completed    int  `json:"completed"`
	CapExhausted bool `json:"cap_exhausted"`
}

// SchedulerWorker advances due enrollments through their sequences: it
// selects the batch, renders the step, reserves quota, dispatches through
// the channel provider, writes the ledger row and moves the enrollment
// forward. One tick instance must run at a time; the deployment guarantees
// that, not the worker.
type SchedulerWorker struct {
	DB        *gorm.DB
	Limiter   *utils.SendRateLimiter
	Providers map[string]utils.Provider
	BatchSize int
	Interval  time.Duration
	Logger    *log.Logger
}

func NewSchedulerWorker(db *gorm.DB, limiter *utils.SendRateLimiter, providers map[string]utils.Provider, batchSize int, interval time.Duration, logger *log.Logger) *SchedulerWorker {
	return &SchedulerWorker{
		DB:        db,
		Limiter:   limiter,
		Providers: providers,
		BatchSize: batchSize,
		Interval:  interval,
		Logger:    logger,
	}
}

// Start runs the periodic tick loop until the context is cancelled.
func (sw *SchedulerWorker) Start(ctx context.Context) {
	sw.Logger.Println("Scheduler worker started")

	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Println("Scheduler worker shutting down...")
			return
		case <-ticker.C:
			result := sw.RunTick(ctx)
			sw.Logger.Printf("Tick finished: processed=%d sent=%d failed=%d completed=%d cap_exhausted=%t",
				result.Processed, result.Sent, result.Failed, result.Completed, result.CapExhausted)
		}
	}
}

// RunTick processes one batch of due enrollments using the configured batch
// size.
func (sw *SchedulerWorker) RunTick(ctx context.Context) BatchResult {
	return sw.RunTickBatch(ctx, sw.BatchSize)
}

// RunTickBatch is RunTick with an explicit batch-size override, used by the
// on-demand trigger endpoint after bulk enrollment actions.
func (sw *SchedulerWorker) RunTickBatch(ctx context.Context, batchSize int) BatchResult {
	var result BatchResult
	now := time.Now()

	// Oldest-due first so starved enrollments win; a NULL next_step_at is
	// due immediately.
	var due []models.Enrollment
	if err := sw.DB.
		Where("status = ? AND (next_step_at IS NULL OR next_step_at <= ?)", models.EnrollmentStatusActive, now).
		Order("next_step_at ASC NULLS FIRST").
		Limit(batchSize).
		Find(&due).Error; err != nil {
		sw.Logger.Printf("Failed to select due enrollments: %v", err)
		return result
	}

	for i := range due {
		if ctx.Err() != nil {
			// Aborting mid-batch is safe: advanced enrollments stay
			// advanced, the rest stay due for the next tick.
			sw.Logger.Printf("Tick cancelled with %d enrollments left due", len(due)-i)
			break
		}

		outcome := sw.processEnrollment(ctx, &due[i])
		if outcome == outcomeCapExhausted {
			// Global cap: the whole batch stops so the remaining quota is
			// spread over later ticks instead of front-loaded.
			result.CapExhausted = true
			sw.Logger.Printf("Daily send cap reached, ending tick early (%d enrollments left due)", len(due)-i)
			break
		}

		result.Processed++
		switch outcome {
		case outcomeSent:
			result.Sent++
		case outcomeSentCompleted:
			result.Sent++
			result.Completed++
		case outcomeFailed:
			result.Failed++
		case outcomeCompleted:
			result.Completed++
		}
	}

	return result
}

type tickOutcome int

const (
	outcomeSent tickOutcome = iota
	outcomeSentCompleted
	outcomeFailed
	outcomeCompleted
	outcomeCapExhausted
	outcomeSkipped
)

func (sw *SchedulerWorker) processEnrollment(ctx context.Context, enrollment *models.Enrollment) tickOutcome {
	var step models.SequenceStep
	err := sw.DB.
		Where("sequence_id = ? AND step_order = ?", enrollment.SequenceID, enrollment.CurrentStep+1).
		First(&step).Error
	if err == gorm.ErrRecordNotFound {
		// Past the last step: terminal, nothing to send.
		if err := sw.completeEnrollment(enrollment); err != nil {
			sw.Logger.Printf("Failed to complete enrollment %d: %v", enrollment.ID, err)
			return outcomeSkipped
		}
		return outcomeCompleted
	}
	if err != nil {
		sw.Logger.Printf("Failed to load step for enrollment %d: %v", enrollment.ID, err)
		return outcomeSkipped
	}

	var lead models.Lead
	if err := sw.DB.First(&lead, enrollment.LeadID).Error; err != nil {
		sw.recordFailure(enrollment, &step, "", "", &utils.AddressError{Reason: "lead no longer exists"})
		return outcomeFailed
	}

	vars := templateVars(&lead)
	subject := utils.RenderTemplate(step.Subject, vars)
	body := utils.RenderTemplate(step.Body, vars)

	if !sw.Limiter.TryReserve(enrollment.CompanyID) {
		return outcomeCapExhausted
	}

	provider, ok := sw.Providers[step.Channel]
	if !ok {
		sw.recordFailure(enrollment, &step, subject, body,
			&utils.ValidationError{Reason: "no provider registered for channel " + step.Channel})
		return outcomeFailed
	}

	address := lead.Email
	var subjectPtr *string
	if step.Channel == models.ChannelWhatsApp {
		address = lead.Phone
	} else {
		subjectPtr = &subject
	}

	providerID, err := provider.Send(ctx, enrollment.CompanyID, address, subjectPtr, body)
	if err != nil {
		sw.recordFailure(enrollment, &step, subject, body, err)
		return outcomeFailed
	}

	completed, err := sw.recordSuccess(enrollment, &step, subject, body, providerID)
	if err != nil {
		// The ledger row may be missing or the enrollment not advanced; the
		// next tick re-attempts this step, an accepted at-least-once risk.
		sw.Logger.Printf("Failed to record send for enrollment %d: %v", enrollment.ID, err)
		return outcomeFailed
	}
	if completed {
		return outcomeSentCompleted
	}
	return outcomeSent
}

// recordSuccess writes the ledger row first and advances the enrollment
// second, so a crash between the two at worst re-attempts the step.
func (sw *SchedulerWorker) recordSuccess(enrollment *models.Enrollment, step *models.SequenceStep, subject, body, providerID string) (bool, error) {
	now := time.Now()

	message := models.Message{
		CompanyID:    enrollment.CompanyID,
		LeadID:       enrollment.LeadID,
		EnrollmentID: &enrollment.ID,
		Channel:      step.Channel,
		Direction:    models.DirectionOutbound,
		StepOrder:    step.StepOrder,
		Subject:      subject,
		Body:         body,
		Status:       models.MessageStatusSent,
		ExternalID:   &providerID,
		SentAt:       &now,
	}
	if err := sw.DB.Create(&message).Error; err != nil {
		return false, err
	}

	completed := false
	updates := map[string]interface{}{
		"current_step": step.StepOrder,
		"next_step_at": nil,
	}

	var next models.SequenceStep
	err := sw.DB.
		Where("sequence_id = ? AND step_order = ?", enrollment.SequenceID, step.StepOrder+1).
		First(&next).Error
	switch {
	case err == nil:
		updates["next_step_at"] = now.Add(time.Duration(next.DelayDays) * 24 * time.Hour)
	case err == gorm.ErrRecordNotFound:
		updates["status"] = models.EnrollmentStatusCompleted
		updates["completed_at"] = now
		completed = true
	default:
		return false, err
	}

	// Conditional on the state we read, in case something advanced or
	// paused the enrollment since the batch select.
	res := sw.DB.Model(&models.Enrollment{}).
		Where("id = ? AND status = ? AND current_step = ?", enrollment.ID, models.EnrollmentStatusActive, enrollment.CurrentStep).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		sw.Logger.Printf("Enrollment %d changed underneath the tick, leaving it as is", enrollment.ID)
	}

	if err := sw.DB.Model(&models.Lead{}).
		Where("id = ?", enrollment.LeadID).
		Update("last_contact_at", now).Error; err != nil {
		sw.Logger.Printf("Failed to update last contact for lead %d: %v", enrollment.LeadID, err)
	}

	return completed, nil
}

// recordFailure appends a failed ledger row and leaves next_step_at
// untouched, so the same step retries on the next tick. There is no backoff
// or attempt cap; a persistently failing step retries until an operator
// intervenes.
func (sw *SchedulerWorker) recordFailure(enrollment *models.Enrollment, step *models.SequenceStep, subject, body string, sendErr error) {
	var prevFailed int64
	if err := sw.DB.Model(&models.Message{}).
		Where("enrollment_id = ? AND step_order = ? AND status = ?", enrollment.ID, step.StepOrder, models.MessageStatusFailed).
		Count(&prevFailed).Error; err != nil {
		sw.Logger.Printf("Failed to count prior attempts for enrollment %d: %v", enrollment.ID, err)
	}

	message := models.Message{
		CompanyID:    enrollment.CompanyID,
		LeadID:       enrollment.LeadID,
		EnrollmentID: &enrollment.ID,
		Channel:      step.Channel,
		Direction:    models.DirectionOutbound,
		StepOrder:    step.StepOrder,
		Subject:      subject,
		Body:         body,
		Status:       models.MessageStatusFailed,
		ErrorMessage: utils.Pointer(sendErr.Error()),
		RetryCount:   int(prevFailed) + 1,
	}
	if err := sw.DB.Create(&message).Error; err != nil {
		sw.Logger.Printf("Failed to record failed attempt for enrollment %d: %v", enrollment.ID, err)
	}

	var authErr *utils.AuthError
	if errors.As(sendErr, &authErr) {
		sw.Logger.Printf("Credential problem for company %d, operator attention needed: %v", enrollment.CompanyID, authErr)
	}
}

func (sw *SchedulerWorker) completeEnrollment(enrollment *models.Enrollment) error {
	return sw.DB.Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", enrollment.ID, models.EnrollmentStatusActive).
		Updates(map[string]interface{}{
			"status":       models.EnrollmentStatusCompleted,
			"completed_at": time.Now(),
			"next_step_at": nil,
		}).Error
}

// templateVars exposes lead fields to step templates under both the English
// and Portuguese names campaign authors use.
func templateVars(lead *models.Lead) map[string]string {
	return map[string]string{
		"name":          lead.Name,
		"nome":          lead.Name,
		"business_name": lead.BusinessName,
		"empresa":       lead.BusinessName,
		"city":          lead.City,
		"cidade":        lead.City,
	}
}
