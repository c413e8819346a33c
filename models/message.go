package models

import (
	"time"

	"gorm.io/gorm"
)

// Message directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Message statuses. Outbound rows move pending -> sent -> delivered -> read,
// or to failed; inbound rows are created as delivered.
const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// Message is one delivery ledger entry: a single send attempt or a single
// inbound event. Rows are append-only; only status-advancing events mutate
// them and nothing ever deletes them.
type Message struct {
	gorm.Model
	CompanyID    uint  `gorm:"not null;index" json:"company_id"`
	LeadID       uint  `gorm:"not null;index" json:"lead_id"`
	EnrollmentID *uint `gorm:"index" json:"enrollment_id,omitempty"` // nil for ad-hoc sends

	Channel   string `gorm:"not null" json:"channel"`
	Direction string `gorm:"not null;index" json:"direction"`
	StepOrder int    `gorm:"default:0" json:"step_order"` // 0 for inbound / ad-hoc

	Subject string `json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	Status string `gorm:"not null;default:'pending';index" json:"status"`

	// ExternalID is the provider-assigned message id. It is the dedup key
	// for webhook reconciliation, unique whenever present.
	ExternalID *string `gorm:"uniqueIndex" json:"external_id,omitempty"`

	SentAt      *time.Time `gorm:"index" json:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	OpenedAt    *time.Time `json:"opened_at"`

	ErrorMessage *string `json:"error_message,omitempty"`
	RetryCount   int     `gorm:"default:0" json:"retry_count"`

	// Relations
	Lead       Lead        `json:"-"`
	Enrollment *Enrollment `json:"-"`
}
