package utils

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"buscacliente/models"
)

func setupResolverDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Company{}, &models.Integration{}))
	return db
}

func TestCredentialResolver(t *testing.T) {
	db := setupResolverDB(t)

	defaults := map[string]Credential{
		"email": {APIKey: "default-smtp-pass", InstanceID: "default@engine.com.br", SenderAddress: "default@engine.com.br"},
	}
	resolver := NewCredentialResolver(db, defaults)

	t.Run("Success - tenant integration wins over default", func(t *testing.T) {
		require.NoError(t, db.Create(&models.Integration{
			CompanyID:     1,
			Provider:      "email",
			APIKey:        "tenant-pass",
			InstanceID:    "vendas@empresa.com.br",
			SenderAddress: "vendas@empresa.com.br",
			IsActive:      true,
		}).Error)

		cred, err := resolver.Resolve(1, "email")
		require.NoError(t, err)
		assert.Equal(t, "tenant-pass", cred.APIKey)
		assert.Equal(t, "vendas@empresa.com.br", cred.SenderAddress)
	})

	t.Run("Success - falls back to default credential", func(t *testing.T) {
		cred, err := resolver.Resolve(2, "email")
		require.NoError(t, err)
		assert.Equal(t, "default-smtp-pass", cred.APIKey)
	})

	t.Run("Error - inactive integration is skipped", func(t *testing.T) {
		require.NoError(t, db.Create(&models.Integration{
			CompanyID:  3,
			Provider:   "whatsapp",
			APIKey:     "revoked",
			InstanceID: "inst-3",
			IsActive:   false,
		}).Error)

		_, err := resolver.Resolve(3, "whatsapp")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "whatsapp", authErr.Provider)
	})

	t.Run("Error - no integration and no default", func(t *testing.T) {
		_, err := resolver.Resolve(4, "whatsapp")
		var authErr *AuthError
		assert.ErrorAs(t, err, &authErr)
	})
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &ProviderError{Provider: "smtp", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}
