package utils

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"buscacliente/models"
)

// Provider is the capability set the scheduler needs from a delivery
// channel. New channels plug in by implementing Send; the scheduler never
// changes.
type Provider interface {
	Name() string
	// Send dispatches one message and returns the provider-assigned message
	// id used later to correlate delivery webhooks. subject is nil for
	// channels without one.
	Send(ctx context.Context, companyID uint, address string, subject *string, body string) (string, error)
}

// AuthError means the tenant has a missing or invalid provider credential.
// It is an operator problem, not something a retry fixes on its own.
type AuthError struct {
	Provider string
	Reason   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s credentials: %s", e.Provider, e.Reason)
}

// AddressError means the recipient has no usable address for the channel.
type AddressError struct {
	Reason string
}

func (e *AddressError) Error() string {
	return "recipient address: " + e.Reason
}

// ValidationError means the provider rejected the request as malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid send request: " + e.Reason
}

// ProviderError is a transient delivery failure, safe to retry on a later
// tick.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Credential is the blob adapters need to talk to a provider on behalf of a
// tenant: API key, account/instance identifier and sender identity.
type Credential struct {
	APIKey        string
	InstanceID    string
	SenderAddress string
}

// CredentialResolver looks up the tenant's Integration row for a provider,
// falling back to the process-wide default credential when the tenant has no
// override.
type CredentialResolver struct {
	DB       *gorm.DB
	Defaults map[string]Credential
}

func NewCredentialResolver(db *gorm.DB, defaults map[string]Credential) *CredentialResolver {
	if defaults == nil {
		defaults = make(map[string]Credential)
	}
	return &CredentialResolver{DB: db, Defaults: defaults}
}

// Resolve returns the credential to use for (companyID, provider).
func (cr *CredentialResolver) Resolve(companyID uint, provider string) (*Credential, error) {
	var integration models.Integration
	err := cr.DB.
		Where("company_id = ? AND provider = ? AND is_active = ?", companyID, provider, true).
		Order("updated_at DESC").
		First(&integration).Error
	if err == nil {
		return &Credential{
			APIKey:        integration.APIKey,
			InstanceID:    integration.InstanceID,
			SenderAddress: integration.SenderAddress,
		}, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("integration lookup: %w", err)
	}

	if def, ok := cr.Defaults[provider]; ok && def.APIKey != "" {
		return &def, nil
	}
	return nil, &AuthError{Provider: provider, Reason: "no integration configured for tenant and no default credential"}
}
