package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"buscacliente/models"
	"buscacliente/utils"
)

// Outcomes of ingesting one provider event.
const (
	OutcomeApplied    = "applied"
	OutcomeDuplicate  = "duplicate"
	OutcomeUnmatched  = "unmatched"
	OutcomeUnresolved = "unresolved"
	OutcomeIgnored    = "ignored"
)

const (
	eventKindReceived = "message_received"
	eventKindStatus   = "status_update"
	eventKindUnknown  = "unknown"
)

// ProviderEvent is the normalized form of a provider callback. Providers
// disagree on field names, so the handler maps their payloads into this
// before ingestion.
type ProviderEvent struct {
	Kind       string
	InstanceID string
	APIKey     string
	ExternalID string
	From       string
	Body       string
	Status     string
	Timestamp  *time.Time
}

type WebhookController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewWebhookController(db *gorm.DB, logger *log.Logger) *WebhookController {
	return &WebhookController{
		DB:     db,
		Logger: logger,
	}
}

type webhookPayload struct {
	Event      string  `json:"event"`
	Type       string  `json:"type"`
	InstanceID string  `json:"instance_id"`
	APIKey     string  `json:"api_key"`
	MessageID  string  `json:"message_id"`
	ExternalID string  `json:"external_id"`
	From       string  `json:"from"`
	Body       string  `json:"body"`
	Text       string  `json:"text"`
	Status     string  `json:"status"`
	Timestamp  *int64  `json:"timestamp"`
	OccurredAt *string `json:"occurred_at"`
}

// HandleProviderWebhook accepts delivery callbacks and inbound messages from
// channel providers. Providers retry on non-2xx, so anything that is not a
// server-side failure acks with 200 and an outcome the provider can log.
func (wc *WebhookController) HandleProviderWebhook(c *fiber.Ctx) error {
	var payload webhookPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Webhook payload is not valid JSON")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"outcome": OutcomeIgnored})
	}

	event := normalizeEvent(payload)
	outcome, err := wc.Ingest(event)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"kind":        event.Kind,
			"external_id": event.ExternalID,
			"error":       err.Error(),
		}).Error("Failed to ingest webhook event")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process event", nil)
	}

	logrus.WithFields(logrus.Fields{
		"kind":        event.Kind,
		"external_id": event.ExternalID,
		"outcome":     outcome,
	}).Info("Webhook event processed")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"outcome": outcome})
}

func normalizeEvent(p webhookPayload) ProviderEvent {
	discriminant := p.Event
	if discriminant == "" {
		discriminant = p.Type
	}

	kind := eventKindUnknown
	switch discriminant {
	case "message_received", "message.received":
		kind = eventKindReceived
	case "status_update", "message.status":
		kind = eventKindStatus
	}

	externalID := p.MessageID
	if externalID == "" {
		externalID = p.ExternalID
	}
	body := p.Body
	if body == "" {
		body = p.Text
	}

	// Provider status vocabulary collapses onto the ledger's here, like the
	// event-kind discriminant above.
	status := p.Status
	switch status {
	case "opened":
		status = models.MessageStatusRead
	case "queued", "accepted":
		status = models.MessageStatusSent
	}

	var ts *time.Time
	if p.Timestamp != nil && *p.Timestamp > 0 {
		t := time.Unix(*p.Timestamp, 0).UTC()
		ts = &t
	} else if p.OccurredAt != nil {
		if t, err := time.Parse(time.RFC3339, *p.OccurredAt); err == nil {
			t = t.UTC()
			ts = &t
		}
	}

	return ProviderEvent{
		Kind:       kind,
		InstanceID: p.InstanceID,
		APIKey:     p.APIKey,
		ExternalID: externalID,
		From:       p.From,
		Body:       body,
		Status:     status,
		Timestamp:  ts,
	}
}

// Ingest applies one normalized provider event to the ledger and returns the
// outcome. Errors are only returned for storage failures; everything else
// resolves to a non-applied outcome.
func (wc *WebhookController) Ingest(event ProviderEvent) (string, error) {
	if event.Kind == eventKindUnknown {
		return OutcomeIgnored, nil
	}

	integration, err := wc.resolveIntegration(event)
	if err != nil {
		return "", err
	}
	// Credentials that match no active integration reject the event, status
	// updates included; the ledger never moves on a guessed tenant.
	if integration == nil {
		return OutcomeUnresolved, nil
	}

	switch event.Kind {
	case eventKindReceived:
		return wc.applyInbound(integration, event)
	case eventKindStatus:
		return wc.applyStatus(integration, event)
	}
	return OutcomeIgnored, nil
}

// resolveIntegration maps the event's credentials back to the tenant that
// owns them. Empty credential fields never match anything.
func (wc *WebhookController) resolveIntegration(event ProviderEvent) (*models.Integration, error) {
	if event.InstanceID == "" && event.APIKey == "" {
		return nil, nil
	}

	query := wc.DB.Where("is_active = ?", true)
	switch {
	case event.InstanceID != "" && event.APIKey != "":
		query = query.Where("instance_id = ? OR api_key = ?", event.InstanceID, event.APIKey)
	case event.InstanceID != "":
		query = query.Where("instance_id = ?", event.InstanceID)
	default:
		query = query.Where("api_key = ?", event.APIKey)
	}

	var integration models.Integration
	if err := query.Order("updated_at DESC").First(&integration).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve integration: %w", err)
	}
	return &integration, nil
}

func (wc *WebhookController) applyInbound(integration *models.Integration, event ProviderEvent) (string, error) {
	if event.ExternalID != "" {
		var existing int64
		err := wc.DB.Model(&models.Message{}).
			Where("external_id = ?", event.ExternalID).
			Count(&existing).Error
		if err != nil {
			return "", fmt.Errorf("dedup check: %w", err)
		}
		if existing > 0 {
			return OutcomeDuplicate, nil
		}
	}

	lead, err := wc.matchLead(integration.CompanyID, event.From)
	if err != nil {
		return "", err
	}
	if lead == nil {
		return OutcomeUnmatched, nil
	}

	deliveredAt := time.Now().UTC()
	if event.Timestamp != nil {
		deliveredAt = *event.Timestamp
	}

	message := models.Message{
		CompanyID:   integration.CompanyID,
		LeadID:      lead.ID,
		Channel:     integration.Provider,
		Direction:   models.DirectionInbound,
		Body:        event.Body,
		Status:      models.MessageStatusDelivered,
		DeliveredAt: &deliveredAt,
	}
	if event.ExternalID != "" {
		message.ExternalID = utils.Pointer(event.ExternalID)
	}

	if err := wc.DB.Create(&message).Error; err != nil {
		// Two deliveries of the same event can race past the count
		// above. The unique index on external_id settles it.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("record inbound message: %w", err)
	}

	if err := wc.DB.Model(&models.Lead{}).
		Where("id = ?", lead.ID).
		Update("last_contact_at", deliveredAt).Error; err != nil {
		wc.Logger.Printf("Failed to update last contact for lead %d: %v", lead.ID, err)
	}
	return OutcomeApplied, nil
}

// matchLead finds the tenant's lead whose stored phone corresponds to the
// sender address, tolerating formatting, country code and ninth-digit
// differences on either side.
func (wc *WebhookController) matchLead(companyID uint, from string) (*models.Lead, error) {
	candidates := utils.PhoneCandidates(from)
	if len(candidates) == 0 {
		return nil, nil
	}

	var leads []models.Lead
	if err := wc.DB.Where("company_id = ? AND phone <> ''", companyID).
		Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("load leads for match: %w", err)
	}

	for i := range leads {
		if utils.PhoneMatches(leads[i].Phone, candidates) {
			return &leads[i], nil
		}
	}
	return nil, nil
}

func (wc *WebhookController) applyStatus(integration *models.Integration, event ProviderEvent) (string, error) {
	if event.ExternalID == "" {
		return OutcomeIgnored, nil
	}

	var message models.Message
	err := wc.DB.Where("external_id = ? AND direction = ?", event.ExternalID, models.DirectionOutbound).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeUnmatched, nil
		}
		return "", fmt.Errorf("find outbound message: %w", err)
	}

	if integration.CompanyID != message.CompanyID {
		return OutcomeUnmatched, nil
	}

	at := time.Now().UTC()
	if event.Timestamp != nil {
		at = *event.Timestamp
	}

	updates := map[string]interface{}{}
	switch event.Status {
	case models.MessageStatusDelivered:
		updates["status"] = models.MessageStatusDelivered
		updates["delivered_at"] = at
	case models.MessageStatusRead:
		updates["status"] = models.MessageStatusRead
		updates["opened_at"] = at
		if message.DeliveredAt == nil {
			updates["delivered_at"] = at
		}
	case models.MessageStatusSent:
		updates["status"] = models.MessageStatusSent
	default:
		return OutcomeIgnored, nil
	}

	if err := wc.DB.Model(&models.Message{}).
		Where("id = ?", message.ID).
		Updates(updates).Error; err != nil {
		return "", fmt.Errorf("update message status: %w", err)
	}
	return OutcomeApplied, nil
}
