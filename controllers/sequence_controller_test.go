package controller

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"buscacliente/models"
)

func newSequenceApp(db *gorm.DB) *fiber.App {
	sc := NewSequenceController(db, testLogger())
	app := fiber.New()
	app.Post("/sequences", sc.CreateSequence)
	app.Get("/sequences", sc.ListSequences)
	app.Get("/sequences/:id", sc.GetSequence)
	app.Put("/sequences/:id", sc.UpdateSequence)
	app.Delete("/sequences/:id", sc.DeleteSequence)
	return app
}

func step(order, delay int, channel, subject string) map[string]interface{} {
	return map[string]interface{}{
		"step_order": order,
		"delay_days": delay,
		"channel":    channel,
		"subject":    subject,
		"body":       "Olá {{nome}}",
	}
}

func TestCreateSequence(t *testing.T) {
	db := setupTestDB(t)
	app := newSequenceApp(db)
	company := createCompany(t, db, "Consultoria Prime")

	status, body := doJSON(t, app, "POST", "/sequences", map[string]interface{}{
		"company_id": company.ID,
		"name":       "Prospecção fria",
		"steps": []map[string]interface{}{
			step(1, 0, models.ChannelEmail, "Primeiro contato"),
			step(2, 3, models.ChannelWhatsApp, ""),
			step(3, 7, models.ChannelEmail, "Última tentativa"),
		},
	})
	require.Equal(t, http.StatusCreated, status)
	id := uint(body["data"].(map[string]interface{})["id"].(float64))

	var steps []models.SequenceStep
	require.NoError(t, db.Where("sequence_id = ?", id).Order("step_order").Find(&steps).Error)
	require.Len(t, steps, 3)
	assert.Equal(t, models.ChannelWhatsApp, steps[1].Channel)
	assert.Equal(t, 7, steps[2].DelayDays)
}

func TestCreateSequenceValidation(t *testing.T) {
	db := setupTestDB(t)
	app := newSequenceApp(db)
	company := createCompany(t, db, "Consultoria Prime")

	cases := []struct {
		name  string
		steps []map[string]interface{}
	}{
		{"Error - gap in step order", []map[string]interface{}{
			step(1, 0, models.ChannelEmail, "Oi"),
			step(3, 2, models.ChannelEmail, "Oi"),
		}},
		{"Error - duplicate step order", []map[string]interface{}{
			step(1, 0, models.ChannelEmail, "Oi"),
			step(1, 2, models.ChannelEmail, "Oi"),
		}},
		{"Error - decreasing delays", []map[string]interface{}{
			step(1, 5, models.ChannelEmail, "Oi"),
			step(2, 2, models.ChannelEmail, "Oi"),
		}},
		{"Error - email step without subject", []map[string]interface{}{
			step(1, 0, models.ChannelEmail, ""),
		}},
		{"Error - invalid channel", []map[string]interface{}{
			step(1, 0, "sms", "Oi"),
		}},
		{"Error - no steps", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := doJSON(t, app, "POST", "/sequences", map[string]interface{}{
				"company_id": company.ID,
				"name":       "Inválida",
				"steps":      tc.steps,
			})
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestGetSequenceScopedToCompany(t *testing.T) {
	db := setupTestDB(t)
	app := newSequenceApp(db)

	companyA := createCompany(t, db, "Empresa A")
	companyB := createCompany(t, db, "Empresa B")
	sequence := createSequenceWithSteps(t, db, companyA.ID, models.ChannelEmail, 0, 2)

	status, body := doJSON(t, app, "GET",
		fmt.Sprintf("/sequences/%d?company_id=%d", sequence.ID, companyA.ID), nil)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["steps"], 2)

	// Another tenant cannot read it.
	status, _ = doJSON(t, app, "GET",
		fmt.Sprintf("/sequences/%d?company_id=%d", sequence.ID, companyB.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateSequenceStepsBlockedWhileInFlight(t *testing.T) {
	db := setupTestDB(t)
	app := newSequenceApp(db)

	company := createCompany(t, db, "Consultoria Prime")
	sequence := createSequenceWithSteps(t, db, company.ID, models.ChannelEmail, 0)
	lead := createLead(t, db, company.ID, "Maria", "maria@example.com.br", "")
	require.NoError(t, db.Create(&models.Enrollment{
		CompanyID:  company.ID,
		LeadID:     lead.ID,
		SequenceID: sequence.ID,
		Status:     models.EnrollmentStatusActive,
	}).Error)

	// Renaming is fine even with enrollments running.
	status, _ := doJSON(t, app, "PUT", fmt.Sprintf("/sequences/%d", sequence.ID), map[string]interface{}{
		"company_id": company.ID,
		"name":       "Novo nome",
	})
	assert.Equal(t, http.StatusOK, status)

	// Editing steps is not.
	status, _ = doJSON(t, app, "PUT", fmt.Sprintf("/sequences/%d", sequence.ID), map[string]interface{}{
		"company_id": company.ID,
		"steps": []map[string]interface{}{
			step(1, 0, models.ChannelEmail, "Outro assunto"),
		},
	})
	assert.Equal(t, http.StatusConflict, status)

	// After the enrollment finishes, steps can be replaced.
	require.NoError(t, db.Model(&models.Enrollment{}).
		Where("sequence_id = ?", sequence.ID).
		Update("status", models.EnrollmentStatusCompleted).Error)

	status, _ = doJSON(t, app, "PUT", fmt.Sprintf("/sequences/%d", sequence.ID), map[string]interface{}{
		"company_id": company.ID,
		"steps": []map[string]interface{}{
			step(1, 0, models.ChannelEmail, "Outro assunto"),
			step(2, 2, models.ChannelEmail, "Seguimento"),
		},
	})
	assert.Equal(t, http.StatusOK, status)

	var steps []models.SequenceStep
	require.NoError(t, db.Where("sequence_id = ?", sequence.ID).Order("step_order").Find(&steps).Error)
	require.Len(t, steps, 2)
	assert.Equal(t, "Outro assunto", steps[0].Subject)
}

func TestDeleteSequenceBlockedWhileInFlight(t *testing.T) {
	db := setupTestDB(t)
	app := newSequenceApp(db)

	company := createCompany(t, db, "Consultoria Prime")
	sequence := createSequenceWithSteps(t, db, company.ID, models.ChannelEmail, 0)
	lead := createLead(t, db, company.ID, "Maria", "maria@example.com.br", "")
	enrollment := models.Enrollment{
		CompanyID:  company.ID,
		LeadID:     lead.ID,
		SequenceID: sequence.ID,
		Status:     models.EnrollmentStatusPaused,
	}
	require.NoError(t, db.Create(&enrollment).Error)

	target := fmt.Sprintf("/sequences/%d?company_id=%d", sequence.ID, company.ID)
	status, _ := doJSON(t, app, "DELETE", target, nil)
	assert.Equal(t, http.StatusConflict, status)

	require.NoError(t, db.Model(&enrollment).Update("status", models.EnrollmentStatusFailed).Error)

	status, _ = doJSON(t, app, "DELETE", target, nil)
	assert.Equal(t, http.StatusOK, status)

	var count int64
	require.NoError(t, db.Model(&models.SequenceStep{}).Where("sequence_id = ?", sequence.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
