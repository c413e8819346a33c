package utils

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"buscacliente/models"
)

func setupLimiterDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Message{}))
	return db
}

func recordSentMessage(t *testing.T, db *gorm.DB, companyID uint, sentAt time.Time) {
	t.Helper()
	externalID := fmt.Sprintf("ext-%d-%d", companyID, time.Now().UnixNano())
	msg := models.Message{
		CompanyID:  companyID,
		LeadID:     1,
		Channel:    models.ChannelEmail,
		Direction:  models.DirectionOutbound,
		Status:     models.MessageStatusSent,
		ExternalID: &externalID,
		SentAt:     &sentAt,
	}
	require.NoError(t, db.Create(&msg).Error)
}

func TestSendRateLimiterGlobalScope(t *testing.T) {
	db := setupLimiterDB(t)
	rl := NewSendRateLimiter(db, 3, CapScopeGlobal)

	now := time.Now().UTC()
	assert.True(t, rl.TryReserve(1))

	recordSentMessage(t, db, 1, now)
	recordSentMessage(t, db, 2, now)
	assert.True(t, rl.TryReserve(1))
	assert.Equal(t, int64(2), rl.SentToday(1))

	recordSentMessage(t, db, 3, now)
	// Global scope: every tenant's sends count against the same cap.
	assert.False(t, rl.TryReserve(1))
	assert.False(t, rl.TryReserve(99))
}

func TestSendRateLimiterTenantScope(t *testing.T) {
	db := setupLimiterDB(t)
	rl := NewSendRateLimiter(db, 2, CapScopeTenant)

	now := time.Now().UTC()
	recordSentMessage(t, db, 1, now)
	recordSentMessage(t, db, 1, now)

	assert.False(t, rl.TryReserve(1))
	assert.True(t, rl.TryReserve(2), "another tenant keeps its own quota")
}

func TestSendRateLimiterIgnoresOldAndInboundRows(t *testing.T) {
	db := setupLimiterDB(t)
	rl := NewSendRateLimiter(db, 1, CapScopeGlobal)

	// Yesterday's send does not count against today.
	recordSentMessage(t, db, 1, time.Now().UTC().Add(-48*time.Hour))

	// Inbound rows never count, delivered or not.
	deliveredAt := time.Now().UTC()
	inbound := models.Message{
		CompanyID:   1,
		LeadID:      1,
		Channel:     models.ChannelWhatsApp,
		Direction:   models.DirectionInbound,
		Status:      models.MessageStatusDelivered,
		DeliveredAt: &deliveredAt,
	}
	require.NoError(t, db.Create(&inbound).Error)

	assert.Equal(t, int64(0), rl.SentToday(1))
	assert.True(t, rl.TryReserve(1))
}

func TestSendRateLimiterUnknownScopeFallsBackToGlobal(t *testing.T) {
	db := setupLimiterDB(t)
	rl := NewSendRateLimiter(db, 1, "per-galaxy")

	recordSentMessage(t, db, 7, time.Now().UTC())
	assert.False(t, rl.TryReserve(1))
}
