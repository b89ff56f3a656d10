package services

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/mocks"
)

func TestCodeDeliveryImpl_Deliver(t *testing.T) {
	failing := func() *mocks.MockNotificationService {
		m := mocks.NewMockNotificationService()
		m.SendEmailFunc = func(to, subject, body string) error { return errors.New("refused") }
		m.SendSMSFunc = func(to, message string) error { return errors.New("refused") }
		return m
	}

	tests := []struct {
		name          string
		email         *mocks.MockNotificationService
		sms           *mocks.MockNotificationService
		recipient     domain.CodeRecipient
		production    bool
		expectChannel domain.DeliveryChannel
		expectCodeLog bool
	}{
		{
			name:          "email preferred",
			email:         mocks.NewMockNotificationService(),
			sms:           mocks.NewMockNotificationService(),
			recipient:     domain.CodeRecipient{Phone: "+301234567", Email: "a@example.com"},
			expectChannel: domain.DeliveryEmail,
		},
		{
			name:          "sms without email address",
			email:         mocks.NewMockNotificationService(),
			sms:           mocks.NewMockNotificationService(),
			recipient:     domain.CodeRecipient{Phone: "+301234567"},
			expectChannel: domain.DeliverySMS,
		},
		{
			name:          "no transport logs the code in development",
			recipient:     domain.CodeRecipient{Phone: "+301234567", Email: "a@example.com"},
			expectChannel: domain.DeliveryLog,
			expectCodeLog: true,
		},
		{
			name:          "failed transport falls back to log",
			email:         failing(),
			recipient:     domain.CodeRecipient{Phone: "+301234567", Email: "a@example.com"},
			expectChannel: domain.DeliveryLog,
			expectCodeLog: true,
		},
		{
			name:          "production never logs the code",
			sms:           failing(),
			recipient:     domain.CodeRecipient{Phone: "+301234567"},
			production:    true,
			expectChannel: domain.DeliveryLog,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			var email, sms domain.NotificationService
			if tt.email != nil {
				email = tt.email
			}
			if tt.sms != nil {
				sms = tt.sms
			}
			sender := NewCodeDelivery(email, sms, mocks.NewMockAuditLogger(), NewFixedClock(baseTime), zap.New(core), CodeDeliveryConfig{Production: tt.production})

			code := domain.CodeIssued{Code: "482913", ExpiresAt: baseTime, Channel: sender.Plan(tt.recipient.Email)}
			got := sender.Deliver(context.Background(), tt.recipient, code)

			if got != tt.expectChannel {
				t.Errorf("expected channel %s, got %s", tt.expectChannel, got)
			}
			logged := false
			for _, entry := range logs.All() {
				if entry.ContextMap()["code"] == "482913" {
					logged = true
				}
			}
			if logged != tt.expectCodeLog {
				t.Errorf("expected code logged=%v, got %v", tt.expectCodeLog, logged)
			}
		})
	}
}
