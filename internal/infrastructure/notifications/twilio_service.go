package notifications

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Tsipchain/driver-platform/domain"
)

// MessageCreator is the part of the Twilio REST client used for SMS
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioServiceImpl implements domain.NotificationService for SMS
type TwilioServiceImpl struct {
	api        MessageCreator
	fromNumber string
}

// NewTwilioService creates a new Twilio notification service
func NewTwilioService(accountSID, authToken, fromNumber string) domain.NotificationService {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return NewTwilioServiceWithAPI(client.Api, fromNumber)
}

// NewTwilioServiceWithAPI creates a Twilio service over an explicit API client (for testing)
func NewTwilioServiceWithAPI(api MessageCreator, fromNumber string) domain.NotificationService {
	return &TwilioServiceImpl{api: api, fromNumber: fromNumber}
}

// SendSMS implements domain.NotificationService
func (t *TwilioServiceImpl) SendSMS(ctx context.Context, to, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.fromNumber)
	params.SetBody(message)

	if _, err := t.api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	return nil
}

// SendEmail implements domain.NotificationService. Twilio here only carries SMS.
func (t *TwilioServiceImpl) SendEmail(ctx context.Context, to, subject, body string) error {
	return domain.ErrChannelDisabled
}
