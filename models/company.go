package models

import (
	"gorm.io/gorm"
)

// Company is the tenant boundary. Every sequence, lead, integration and
// message row is scoped to exactly one company.
type Company struct {
	gorm.Model
	Name string `gorm:"not null" json:"name"`

	// No column default: gorm drops zero-valued fields that carry one, so
	// a deliberate create-inactive would silently flip back to active.
	// Creation sites set the flag explicitly.
	IsActive bool `json:"is_active"`

	// Relations
	Sequences    []Sequence    `gorm:"foreignKey:CompanyID" json:"sequences,omitempty"`
	Integrations []Integration `gorm:"foreignKey:CompanyID" json:"integrations,omitempty"`
}

// Integration stores per-company provider credentials. When a company has no
// integration for a provider the adapters fall back to the process-wide
// default credential from config.
type Integration struct {
	gorm.Model
	CompanyID uint `gorm:"not null;index" json:"company_id"`

	Provider string `gorm:"not null;index" json:"provider"` // email, whatsapp

	// Credential blob. InstanceID doubles as the account/instance identifier
	// that inbound webhooks carry, so it is indexed for tenant resolution.
	APIKey        string `gorm:"not null" json:"-"`
	InstanceID    string `gorm:"index" json:"instance_id"`
	SenderAddress string `json:"sender_address"`

	IsActive bool `gorm:"index" json:"is_active"`

	// Relations
	Company Company `json:"-"`
}
