package utils

import (
	"context"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"buscacliente/models"
)

// EmailProvider delivers sequence steps over SMTP. The tenant's Integration
// row maps onto SMTP credentials: InstanceID is the username, APIKey the
// password and SenderAddress the From header.
type EmailProvider struct {
	Resolver *CredentialResolver
	Host     string
	Port     int
}

func NewEmailProvider(resolver *CredentialResolver, host string, port int) *EmailProvider {
	return &EmailProvider{
		Resolver: resolver,
		Host:     host,
		Port:     port,
	}
}

func (p *EmailProvider) Name() string {
	return models.ChannelEmail
}

// Send delivers one email and returns a correlation id for the ledger. SMTP
// reports no queue id of its own, so the id is generated locally.
func (p *EmailProvider) Send(ctx context.Context, companyID uint, address string, subject *string, body string) (string, error) {
	if address == "" {
		return "", &AddressError{Reason: "lead has no email address"}
	}
	if err := checkmail.ValidateFormat(address); err != nil {
		return "", &AddressError{Reason: "invalid email address " + address}
	}

	cred, err := p.Resolver.Resolve(companyID, models.ChannelEmail)
	if err != nil {
		return "", err
	}
	if cred.SenderAddress == "" {
		return "", &AuthError{Provider: models.ChannelEmail, Reason: "integration has no sender address"}
	}

	if err := ctx.Err(); err != nil {
		return "", &ProviderError{Provider: models.ChannelEmail, Err: err}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", cred.SenderAddress)
	m.SetHeader("To", address)
	if subject != nil {
		m.SetHeader("Subject", *subject)
	}
	m.SetBody("text/html", body)

	dialer := gomail.NewDialer(p.Host, p.Port, cred.InstanceID, cred.APIKey)
	if err := dialer.DialAndSend(m); err != nil {
		return "", &ProviderError{Provider: models.ChannelEmail, Err: err}
	}

	return uuid.New().String(), nil
}
