package utils

import (
	"context"
	"errors"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"buscacliente/models"
)

// WhatsAppProvider delivers sequence steps through the Twilio WhatsApp API.
// The tenant's Integration row maps onto Twilio credentials: InstanceID is
// the Account SID, APIKey the auth token and SenderAddress the WhatsApp
// sender number.
type WhatsAppProvider struct {
	Resolver *CredentialResolver
}

func NewWhatsAppProvider(resolver *CredentialResolver) *WhatsAppProvider {
	return &WhatsAppProvider{Resolver: resolver}
}

func (p *WhatsAppProvider) Name() string {
	return models.ChannelWhatsApp
}

// Send delivers one WhatsApp message and returns the provider message SID.
func (p *WhatsAppProvider) Send(ctx context.Context, companyID uint, address string, subject *string, body string) (string, error) {
	if DigitsOnly(address) == "" {
		return "", &AddressError{Reason: "lead has no phone number"}
	}
	to, err := PhoneE164(address)
	if err != nil {
		return "", &AddressError{Reason: "unparseable phone number " + address}
	}

	cred, err := p.Resolver.Resolve(companyID, models.ChannelWhatsApp)
	if err != nil {
		return "", err
	}
	if cred.InstanceID == "" || cred.SenderAddress == "" {
		return "", &AuthError{Provider: models.ChannelWhatsApp, Reason: "integration missing account sid or sender number"}
	}

	if err := ctx.Err(); err != nil {
		return "", &ProviderError{Provider: models.ChannelWhatsApp, Err: err}
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cred.InstanceID,
		Password: cred.APIKey,
	})

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom("whatsapp:" + cred.SenderAddress)
	params.SetBody(body)

	resp, err := client.Api.CreateMessage(params)
	if err != nil {
		return "", classifyTwilioError(err)
	}
	if resp.Sid == nil {
		return "", &ProviderError{Provider: models.ChannelWhatsApp, Err: errors.New("response carried no message sid")}
	}
	return *resp.Sid, nil
}

func classifyTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		switch {
		case restErr.Status == 401 || restErr.Status == 403:
			return &AuthError{Provider: models.ChannelWhatsApp, Reason: restErr.Message}
		case restErr.Status == 400:
			return &ValidationError{Reason: restErr.Message}
		}
	}
	return &ProviderError{Provider: models.ChannelWhatsApp, Err: err}
}
