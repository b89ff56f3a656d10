package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/phone"
)

// OTPConfig controls code lifetime and resend pacing
type OTPConfig struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	// FixedCode replaces the random code outside production
	FixedCode  string
	Production bool
}

// OTPServiceImpl implements domain.OTPService on top of the driver row
type OTPServiceImpl struct {
	driverRepo domain.DriverRepository
	txManager  domain.TxManager
	clock      domain.Clock
	audit      domain.AuditLogger
	logger     *zap.Logger
	config     OTPConfig
}

// NewOTPService creates a new OTP service
func NewOTPService(
	driverRepo domain.DriverRepository,
	txManager domain.TxManager,
	clock domain.Clock,
	audit domain.AuditLogger,
	logger *zap.Logger,
	config OTPConfig,
) domain.OTPService {
	return &OTPServiceImpl{
		driverRepo: driverRepo,
		txManager:  txManager,
		clock:      clock,
		audit:      audit,
		logger:     logger.Named("otp"),
		config:     config,
	}
}

// Issue implements domain.OTPService. The caller must hold the driver row
// lock so the cooldown check and the write see the same state.
func (s *OTPServiceImpl) Issue(ctx context.Context, driver *domain.Driver, channel domain.DeliveryChannel) (*domain.CodeIssue, error) {
	now := s.clock.Now()
	if retry, cooling := s.cooldownRemaining(driver.LastCodeSentAt, now); cooling {
		return &domain.CodeIssue{Outcome: domain.OutcomeTooSoon, RetryAfter: retry}, nil
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}
	issued, err := domain.NewCodeIssued(code, now.Add(s.config.TTL), channel)
	if err != nil {
		return nil, err
	}

	err = s.driverRepo.SaveIssuedCode(ctx, driver.ID, issued, now, now.Add(-s.config.ResendCooldown))
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		// another request stamped the row first
		current, ferr := s.driverRepo.FindByID(ctx, driver.ID)
		if ferr != nil {
			return nil, fmt.Errorf("failed to reload driver: %w", ferr)
		}
		retry, _ := s.cooldownRemaining(current.LastCodeSentAt, now)
		return &domain.CodeIssue{Outcome: domain.OutcomeTooSoon, RetryAfter: retry}, nil
	}
	if err != nil {
		return nil, err
	}

	sentAt := now
	driver.OTP = issued
	driver.LastCodeSentAt = &sentAt
	driver.FailedAttempts = 0
	return &domain.CodeIssue{Outcome: domain.OutcomeIssued, Issued: issued}, nil
}

// Verify implements domain.OTPService. A phone nobody holds yet may belong
// to a driver recovering their account by email; that driver moves to the
// phone only when the email-delivered code checks out.
func (s *OTPServiceImpl) Verify(ctx context.Context, phoneNumber, code string) (*domain.Driver, error) {
	var verified *domain.Driver
	var failedID uint
	failed := false
	adopted := false

	err := s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		driver, err := s.driverRepo.FindByPhoneForUpdate(ctx, phoneNumber)
		if errors.Is(err, domain.ErrDriverNotFound) {
			driver, err = s.driverRepo.FindByPendingPhoneForUpdate(ctx, phoneNumber)
			adopted = err == nil
		}
		if errors.Is(err, domain.ErrDriverNotFound) {
			failed = true
			return nil
		}
		if err != nil {
			return err
		}

		err = s.driverRepo.ConsumeCode(ctx, driver.ID, code, s.clock.Now(), adopted)
		if errors.Is(err, domain.ErrInvalidOrExpired) {
			failed = true
			failedID = driver.ID
			return s.driverRepo.IncrementFailedAttempts(ctx, driver.ID)
		}
		if err != nil {
			return err
		}

		verified, err = s.driverRepo.FindByID(ctx, driver.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify code: %w", err)
	}

	if failed {
		event := domain.NewAuditEvent(domain.CodeVerifyFailedEvent, failedID, s.clock.Now()).
			WithPhone(phone.Mask(phoneNumber)).
			WithError(domain.ErrInvalidOrExpired)
		_ = s.audit.LogEvent(ctx, event)
		return nil, domain.ErrInvalidOrExpired
	}

	_ = s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.CodeVerifiedEvent, verified.ID, s.clock.Now()).WithPhone(phone.Mask(phoneNumber)))
	if adopted {
		if verified.Phone != phoneNumber {
			// someone else registered the phone between issue and verify
			s.logger.Warn("pending phone already taken", zap.Uint("driver_id", verified.ID))
		} else {
			event := domain.NewAuditEvent(domain.PhoneReassignedEvent, verified.ID, s.clock.Now()).
				WithPhone(phone.Mask(phoneNumber)).
				WithMetadata("email", verified.Email)
			_ = s.audit.LogEvent(ctx, event)
		}
	}
	return verified, nil
}

// cooldownRemaining returns the whole seconds left before another code may
// be issued, rounded up and never below one.
func (s *OTPServiceImpl) cooldownRemaining(lastSent *time.Time, now time.Time) (int, bool) {
	if lastSent == nil {
		return 0, false
	}
	remaining := s.config.ResendCooldown - now.Sub(*lastSent)
	if remaining <= 0 {
		return 0, false
	}
	return ceilSeconds(remaining), true
}

func (s *OTPServiceImpl) generateCode() (string, error) {
	if !s.config.Production && s.config.FixedCode != "" {
		return s.config.FixedCode, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}
