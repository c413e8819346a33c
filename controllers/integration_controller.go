package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"buscacliente/models"
	"buscacliente/utils"
)

type IntegrationController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewIntegrationController(db *gorm.DB, logger *log.Logger) *IntegrationController {
	return &IntegrationController{
		DB:     db,
		Logger: logger,
	}
}

// CreateIntegration registers a tenant's channel credentials. The newest
// active integration per provider wins when sending, so creating a second
// one effectively rotates the credentials.
func (ic *IntegrationController) CreateIntegration(c *fiber.Ctx) error {
	var input struct {
		CompanyID     uint   `json:"company_id" validate:"required"`
		Provider      string `json:"provider" validate:"required,oneof=email whatsapp"`
		APIKey        string `json:"api_key" validate:"required"`
		InstanceID    string `json:"instance_id" validate:"required"`
		SenderAddress string `json:"sender_address"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var company models.Company
	if err := ic.DB.First(&company, input.CompanyID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Company not found", nil)
	}

	integration := models.Integration{
		CompanyID:     input.CompanyID,
		Provider:      input.Provider,
		APIKey:        input.APIKey,
		InstanceID:    input.InstanceID,
		SenderAddress: input.SenderAddress,
		IsActive:      true,
	}
	if err := ic.DB.Create(&integration).Error; err != nil {
		ic.Logger.Printf("Failed to create integration for company %d: %v", input.CompanyID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create integration", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(integration))
}

// ListIntegrations lists a tenant's integrations. Credentials never leave
// the server; the API key is excluded by the model's JSON tags.
func (ic *IntegrationController) ListIntegrations(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Query("company_id"))
	if companyID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "company_id is required", nil)
	}

	var integrations []models.Integration
	if err := ic.DB.Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&integrations).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list integrations", nil)
	}
	return c.JSON(utils.SuccessResponse(integrations))
}

// UpdateIntegration activates, deactivates or re-keys an integration.
func (ic *IntegrationController) UpdateIntegration(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Query("company_id"))
	if companyID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "company_id is required", nil)
	}
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid integration ID", nil)
	}

	var input struct {
		APIKey        *string `json:"api_key"`
		InstanceID    *string `json:"instance_id"`
		SenderAddress *string `json:"sender_address"`
		IsActive      *bool   `json:"is_active"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	var integration models.Integration
	if err := ic.DB.Where("id = ? AND company_id = ?", id, companyID).First(&integration).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Integration not found", nil)
	}

	updates := map[string]interface{}{}
	if input.APIKey != nil && *input.APIKey != "" {
		updates["api_key"] = *input.APIKey
	}
	if input.InstanceID != nil && *input.InstanceID != "" {
		updates["instance_id"] = *input.InstanceID
	}
	if input.SenderAddress != nil {
		updates["sender_address"] = *input.SenderAddress
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Nothing to update", nil)
	}

	if err := ic.DB.Model(&integration).Updates(updates).Error; err != nil {
		ic.Logger.Printf("Failed to update integration %d: %v", id, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update integration", nil)
	}
	return c.JSON(utils.SuccessResponse(integration))
}
