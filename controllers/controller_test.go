package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"buscacliente/config"
	"buscacliente/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, config.MigrateModels(db))
	return db
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TEST: ", log.LstdFlags)
}

// doJSON performs a request against the fiber app and decodes the JSON
// response body into a generic map.
func doJSON(t *testing.T, app *fiber.App, method, target string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func createCompany(t *testing.T, db *gorm.DB, name string) models.Company {
	t.Helper()
	company := models.Company{Name: name, IsActive: true}
	require.NoError(t, db.Create(&company).Error)
	return company
}

func createLead(t *testing.T, db *gorm.DB, companyID uint, name, email, phone string) models.Lead {
	t.Helper()
	lead := models.Lead{
		CompanyID:    companyID,
		Name:         name,
		BusinessName: name + " ME",
		City:         "São Paulo",
		Email:        email,
		Phone:        phone,
	}
	require.NoError(t, db.Create(&lead).Error)
	return lead
}

func createSequenceWithSteps(t *testing.T, db *gorm.DB, companyID uint, channel string, delays ...int) models.Sequence {
	t.Helper()
	sequence := models.Sequence{CompanyID: companyID, Name: "Prospecção", IsActive: true}
	require.NoError(t, db.Create(&sequence).Error)
	for i, delay := range delays {
		step := models.SequenceStep{
			SequenceID: sequence.ID,
			StepOrder:  i + 1,
			DelayDays:  delay,
			Channel:    channel,
			Subject:    fmt.Sprintf("Assunto %d", i+1),
			Body:       "Olá {{nome}}",
		}
		require.NoError(t, db.Create(&step).Error)
	}
	return sequence
}
