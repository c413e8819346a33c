package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead represents a single contact. Lead rows are owned by the CRM side of
// the product; the engine only reads the address fields and writes
// LastContactAt after a touch.
type Lead struct {
	gorm.Model
	CompanyID uint `gorm:"not null;index" json:"company_id"`

	Name         string `gorm:"not null" json:"name"`
	BusinessName string `json:"business_name"`
	City         string `json:"city"`

	// Contact addresses. Phone is free-form text: leads come from several
	// sources and carry whatever formatting the source used.
	Email string `gorm:"index" json:"email"`
	Phone string `gorm:"index" json:"phone"`

	LastContactAt *time.Time `json:"last_contact_at"`

	// Relations
	Company     Company      `json:"-"`
	Enrollments []Enrollment `gorm:"foreignKey:LeadID" json:"enrollments,omitempty"`
	Messages    []Message    `gorm:"foreignKey:LeadID" json:"messages,omitempty"`
}
