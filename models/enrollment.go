package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment statuses. Completed and failed are terminal; no transition
// leaves them.
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusPaused    = "paused"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusFailed    = "failed"
)

// Enrollment tracks one lead's progress through one sequence. At most one
// active or paused enrollment may exist per (lead, sequence) pair, enforced
// by a partial unique index on migration; re-enrollment requires the
// previous one to be completed or cancelled first.
type Enrollment struct {
	gorm.Model
	CompanyID  uint `gorm:"not null;index" json:"company_id"`
	LeadID     uint `gorm:"not null;index:idx_enrollment_lead_sequence" json:"lead_id"`
	SequenceID uint `gorm:"not null;index:idx_enrollment_lead_sequence" json:"sequence_id"`

	// CurrentStep is the order of the last step sent; 0 means nothing has
	// been sent yet.
	CurrentStep int    `gorm:"not null;default:0" json:"current_step"`
	Status      string `gorm:"not null;default:'active';index" json:"status"`

	StartedAt time.Time `gorm:"not null" json:"started_at"`
	// NextStepAt nil or in the past means the enrollment is due for the
	// scheduler's next tick.
	NextStepAt  *time.Time `gorm:"index" json:"next_step_at"`
	CompletedAt *time.Time `json:"completed_at"`

	EnrolledBy uint `json:"enrolled_by"`

	// Relations
	Lead     Lead      `json:"-"`
	Sequence Sequence  `json:"-"`
	Messages []Message `gorm:"foreignKey:EnrollmentID" json:"messages,omitempty"`
}

// IsTerminal reports whether the enrollment can never advance again.
func (e *Enrollment) IsTerminal() bool {
	return e.Status == EnrollmentStatusCompleted || e.Status == EnrollmentStatusFailed
}
