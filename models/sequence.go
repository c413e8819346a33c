package models

import "gorm.io/gorm"

// Channel names accepted on a sequence step.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// Sequence represents an automated outreach sequence: an ordered list of
// timed steps leads get enrolled into.
type Sequence struct {
	gorm.Model
	CompanyID uint `gorm:"not null;index" json:"company_id"`

	Name string `gorm:"not null" json:"name"`
	// Set explicitly on create; see the note on Company.IsActive.
	IsActive bool `json:"is_active"`

	// Relations
	Steps       []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
	Enrollments []Enrollment   `gorm:"foreignKey:SequenceID" json:"enrollments,omitempty"`
}

// SequenceStep is one templated message within a sequence. StepOrder is
// 1-based and dense per sequence; DelayDays is counted in days and must be
// non-decreasing across step order.
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	StepOrder int    `gorm:"not null" json:"step_order"`
	DelayDays int    `gorm:"not null;default:0" json:"delay_days"`
	Channel   string `gorm:"not null" json:"channel"` // email, whatsapp

	// Template content with {{variable}} placeholders. Subject only applies
	// to channels that have one.
	Subject string `json:"subject"`
	Body    string `gorm:"type:text;not null" json:"body"`

	// Relations
	Sequence Sequence `json:"-"`
}
