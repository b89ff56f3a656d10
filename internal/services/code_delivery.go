package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/phone"
)

const codeEmailSubject = "Your login code"

// CodeDeliveryConfig controls where codes may be written in clear text
type CodeDeliveryConfig struct {
	Production bool
	// DevShowCode logs every code regardless of the channel used
	DevShowCode bool
}

// CodeDeliveryImpl implements domain.CodeSender over email and SMS
// transports. Either transport may be nil when it is not configured.
type CodeDeliveryImpl struct {
	email  domain.NotificationService
	sms    domain.NotificationService
	audit  domain.AuditLogger
	clock  domain.Clock
	logger *zap.Logger
	config CodeDeliveryConfig
}

// NewCodeDelivery creates a code sender
func NewCodeDelivery(
	email domain.NotificationService,
	sms domain.NotificationService,
	audit domain.AuditLogger,
	clock domain.Clock,
	logger *zap.Logger,
	config CodeDeliveryConfig,
) domain.CodeSender {
	return &CodeDeliveryImpl{
		email:  email,
		sms:    sms,
		audit:  audit,
		clock:  clock,
		logger: logger.Named("code-delivery"),
		config: config,
	}
}

// Plan implements domain.CodeSender
func (s *CodeDeliveryImpl) Plan(email string) domain.DeliveryChannel {
	switch {
	case email != "" && s.email != nil:
		return domain.DeliveryEmail
	case s.sms != nil:
		return domain.DeliverySMS
	default:
		return domain.DeliveryLog
	}
}

// Deliver implements domain.CodeSender
func (s *CodeDeliveryImpl) Deliver(ctx context.Context, to domain.CodeRecipient, code domain.CodeIssued) domain.DeliveryChannel {
	if s.config.DevShowCode && !s.config.Production {
		s.logger.Warn("dev login code", zap.String("phone", to.Phone), zap.String("code", code.Code))
	}

	channel := s.Plan(to.Email)
	var err error
	switch channel {
	case domain.DeliveryEmail:
		err = s.email.SendEmail(ctx, to.Email, codeEmailSubject, codeBody(to.Name, code.Code))
	case domain.DeliverySMS:
		err = s.sms.SendSMS(ctx, to.Phone, codeBody(to.Name, code.Code))
	}
	if err == nil && channel != domain.DeliveryLog {
		return channel
	}

	if err != nil {
		s.logger.Warn("code delivery failed, falling back to log",
			zap.String("channel", string(channel)),
			zap.String("phone", phone.Mask(to.Phone)),
			zap.Error(err))
		event := domain.NewAuditEvent(domain.CodeDeliveryFailedEvent, 0, s.clock.Now()).
			WithPhone(phone.Mask(to.Phone)).
			WithMetadata("channel", string(channel)).
			WithError(err)
		_ = s.audit.LogEvent(ctx, event)
	}

	if s.config.Production {
		s.logger.Warn("login code not delivered", zap.String("phone", phone.Mask(to.Phone)))
	} else {
		s.logger.Info("[DEV] login code", zap.String("phone", to.Phone), zap.String("code", code.Code))
	}
	return domain.DeliveryLog
}

func codeBody(name, code string) string {
	if name == "" {
		return fmt.Sprintf("Your login code is %s", code)
	}
	return fmt.Sprintf("Hello %s, your login code is %s", name, code)
}
