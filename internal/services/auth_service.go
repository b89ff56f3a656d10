package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/phone"
)

// AuthConfig holds account linking rules
type AuthConfig struct {
	// AllowEmailPhoneReassign lets a verified email move to a new phone
	AllowEmailPhoneReassign bool
}

// AuthServiceImpl implements domain.AuthService
type AuthServiceImpl struct {
	driverRepo domain.DriverRepository
	orgRepo    domain.OrganizationRepository
	txManager  domain.TxManager
	otpSvc     domain.OTPService
	sender     domain.CodeSender
	sessionSvc domain.SessionService
	limiter    domain.RateLimiter
	normalizer *phone.Normalizer
	clock      domain.Clock
	audit      domain.AuditLogger
	logger     *zap.Logger
	config     AuthConfig
}

// NewAuthService creates a new auth service
func NewAuthService(
	driverRepo domain.DriverRepository,
	orgRepo domain.OrganizationRepository,
	txManager domain.TxManager,
	otpSvc domain.OTPService,
	sender domain.CodeSender,
	sessionSvc domain.SessionService,
	limiter domain.RateLimiter,
	normalizer *phone.Normalizer,
	clock domain.Clock,
	audit domain.AuditLogger,
	logger *zap.Logger,
	config AuthConfig,
) domain.AuthService {
	return &AuthServiceImpl{
		driverRepo: driverRepo,
		orgRepo:    orgRepo,
		txManager:  txManager,
		otpSvc:     otpSvc,
		sender:     sender,
		sessionSvc: sessionSvc,
		limiter:    limiter,
		normalizer: normalizer,
		clock:      clock,
		audit:      audit,
		logger:     logger.Named("auth"),
		config:     config,
	}
}

// RequestCode implements domain.AuthService
func (s *AuthServiceImpl) RequestCode(ctx context.Context, in domain.RequestCodeInput) (*domain.CodeRequestResult, error) {
	phoneNumber, ok := s.normalizer.Canonical(in.Phone)
	if !ok {
		return nil, domain.ErrInvalidPhone
	}
	email := normalizeEmail(in.Email)

	decision, err := s.limiter.Check(ctx, domain.AttemptRequest{IP: in.IP, Phone: phoneNumber})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.auditDenied(ctx, "request", phoneNumber, in.IP, decision)
		return &domain.CodeRequestResult{Outcome: domain.OutcomeRateLimited, Rule: decision.Rule, RetryAfter: decision.RetryAfter}, nil
	}

	result, err := s.requestCode(ctx, phoneNumber, email, in)
	switch {
	case err != nil:
		s.record(ctx, decision, domain.AttemptError, errorCode(err))
	case result.Outcome == domain.OutcomeTooSoon:
		s.record(ctx, decision, domain.AttemptThrottled, "")
	default:
		s.record(ctx, decision, domain.AttemptAccepted, "")
	}
	return result, err
}

func (s *AuthServiceImpl) requestCode(ctx context.Context, phoneNumber, email string, in domain.RequestCodeInput) (*domain.CodeRequestResult, error) {
	var org *domain.Organization
	if in.OrganizationID != nil {
		found, err := s.orgRepo.FindByID(ctx, *in.OrganizationID)
		if errors.Is(err, domain.ErrOrganizationNotFound) {
			return nil, domain.ErrInvalidOrganization
		}
		if err != nil {
			return nil, err
		}
		if found.Status != "active" {
			return nil, domain.ErrInvalidOrganization
		}
		org = found
	}

	var (
		driver     *domain.Driver
		issue      *domain.CodeIssue
		created    bool
		recovering bool
	)
	planned := s.sender.Plan(email)
	attempt := func() error {
		return s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
			var err error
			driver, created, recovering, err = s.getOrCreate(ctx, phoneNumber, email, planned, in, org)
			if err != nil {
				return err
			}
			issue, err = s.otpSvc.Issue(ctx, driver, planned)
			if err != nil || !recovering || issue.Outcome != domain.OutcomeIssued {
				return err
			}
			// the phone moves only once the emailed code comes back
			return s.driverRepo.SetPendingPhone(ctx, driver.ID, phoneNumber)
		})
	}
	err := attempt()
	if errors.Is(err, domain.ErrDriverExists) {
		// a concurrent signup inserted the row; retry as a login
		err = attempt()
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if created {
		_ = s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.DriverSignupEvent, driver.ID, now).WithPhone(phone.Mask(phoneNumber)).WithIP(in.IP))
	}

	if issue.Outcome == domain.OutcomeTooSoon {
		event := domain.NewAuditEvent(domain.CodeCooldownEvent, driver.ID, now).
			WithPhone(phone.Mask(phoneNumber)).
			WithIP(in.IP).
			WithMetadata("retry_after", issue.RetryAfter)
		_ = s.audit.LogEvent(ctx, event)
		return &domain.CodeRequestResult{Outcome: domain.OutcomeTooSoon, RetryAfter: issue.RetryAfter}, nil
	}
	if recovering {
		s.logger.Info("code sent to verified email for new phone",
			zap.Uint("driver_id", driver.ID),
			zap.String("from", phone.Mask(driver.Phone)),
			zap.String("to", phone.Mask(phoneNumber)))
	}

	recipient := domain.CodeRecipient{Phone: phoneNumber, Email: email, Name: driver.Name}
	delivered := s.sender.Deliver(ctx, recipient, issue.Issued)
	if delivered != issue.Issued.Channel {
		if err := s.driverRepo.UpdateCodeChannel(ctx, driver.ID, issue.Issued.Code, delivered); err != nil {
			s.logger.Warn("failed to record delivery channel", zap.Uint("driver_id", driver.ID), zap.Error(err))
		}
	}

	event := domain.NewAuditEvent(domain.CodeRequestedEvent, driver.ID, now).
		WithPhone(phone.Mask(phoneNumber)).
		WithIP(in.IP).
		WithMetadata("delivery", string(delivered))
	_ = s.audit.LogEvent(ctx, event)

	return &domain.CodeRequestResult{
		Outcome:         domain.OutcomeIssued,
		Delivery:        delivered,
		MaskedRecipient: maskRecipient(email, phoneNumber),
	}, nil
}

// getOrCreate loads and locks the driver for phoneNumber, creating one when
// none exists. It reports whether a row was inserted, and whether the code
// goes instead to a driver whose verified email is moving to this phone.
// That driver's profile is left untouched until the code is verified.
func (s *AuthServiceImpl) getOrCreate(
	ctx context.Context,
	phoneNumber, email string,
	planned domain.DeliveryChannel,
	in domain.RequestCodeInput,
	org *domain.Organization,
) (driver *domain.Driver, created, recovering bool, err error) {
	driver, err = s.driverRepo.FindByPhoneForUpdate(ctx, phoneNumber)
	if err == nil {
		if s.applyProfile(driver, email, in, org) {
			if err := s.driverRepo.UpdateProfile(ctx, driver); err != nil {
				return nil, false, false, err
			}
		}
		return driver, false, false, nil
	}
	if !errors.Is(err, domain.ErrDriverNotFound) {
		return nil, false, false, err
	}

	if email != "" && planned == domain.DeliveryEmail && s.config.AllowEmailPhoneReassign {
		existing, err := s.driverRepo.FindByEmail(ctx, email)
		switch {
		case err == nil && existing.EmailVerified:
			locked, err := s.driverRepo.FindByPhoneForUpdate(ctx, existing.Phone)
			if err != nil {
				return nil, false, false, err
			}
			return locked, false, true, nil
		case err != nil && !errors.Is(err, domain.ErrDriverNotFound):
			return nil, false, false, err
		}
	}

	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = domain.DefaultDriverRole
	}
	driver = &domain.Driver{
		Phone: phoneNumber,
		Email: email,
		Name:  strings.TrimSpace(in.Name),
		Role:  role,
		State: domain.Unverified,
		OTP:   domain.NoPendingCode{},
	}
	if org != nil {
		driver.OrganizationID = &org.ID
	}
	if err := s.driverRepo.Create(ctx, driver); err != nil {
		return nil, false, false, err
	}
	return driver, true, false, nil
}

// applyProfile merges request fields into driver and reports whether
// anything changed. A changed email loses its verified mark.
func (s *AuthServiceImpl) applyProfile(driver *domain.Driver, email string, in domain.RequestCodeInput, org *domain.Organization) bool {
	changed := false
	if name := strings.TrimSpace(in.Name); name != "" && driver.Name == "" {
		driver.Name = name
		changed = true
	}
	if email != "" && email != driver.Email {
		driver.Email = email
		driver.EmailVerified = false
		changed = true
	}
	if role := strings.TrimSpace(in.Role); role != "" && role != driver.Role {
		driver.Role = role
		changed = true
	}
	if org != nil && (driver.OrganizationID == nil || *driver.OrganizationID != org.ID) {
		orgID := org.ID
		driver.OrganizationID = &orgID
		driver.GroupTag = ""
		driver.Approved = false
		changed = true
	}
	return changed
}

// VerifyCode implements domain.AuthService
func (s *AuthServiceImpl) VerifyCode(ctx context.Context, in domain.VerifyCodeInput) (*domain.AuthResult, error) {
	canonical, ok := s.normalizer.Canonical(in.Phone)
	if !ok {
		return nil, domain.ErrInvalidPhone
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, domain.ErrMissingField
	}

	decision, err := s.limiter.Check(ctx, domain.AttemptRequest{IP: in.IP, Phone: canonical})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.auditDenied(ctx, "verify", canonical, in.IP, decision)
		return &domain.AuthResult{Denied: &decision}, nil
	}

	driver, err := s.otpSvc.Verify(ctx, canonical, code)
	if errors.Is(err, domain.ErrInvalidOrExpired) {
		s.record(ctx, decision, domain.AttemptFailed, "")
		return nil, err
	}
	if err != nil {
		s.record(ctx, decision, domain.AttemptError, errorCode(err))
		return nil, err
	}

	token, err := s.sessionSvc.Create(ctx, driver.ID)
	if err != nil {
		s.record(ctx, decision, domain.AttemptError, errorCode(err))
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	s.record(ctx, decision, domain.AttemptVerified, "")
	return &domain.AuthResult{Driver: driver, SessionToken: token}, nil
}

// record settles a login attempt; failing to do so never fails the request
func (s *AuthServiceImpl) record(ctx context.Context, decision domain.RateLimitDecision, status domain.AttemptStatus, code string) {
	if err := s.limiter.Record(ctx, decision, status, nil, code); err != nil {
		s.logger.Error("failed to record login attempt", zap.String("status", string(status)), zap.Error(err))
	}
}

func (s *AuthServiceImpl) auditDenied(ctx context.Context, stage, phoneNumber, ip string, decision domain.RateLimitDecision) {
	event := domain.NewAuditEvent(domain.CodeRateLimitedEvent, 0, s.clock.Now()).
		WithPhone(phone.Mask(phoneNumber)).
		WithIP(ip).
		WithMetadata("stage", stage).
		WithMetadata("rule", string(decision.Rule)).
		WithMetadata("retry_after", decision.RetryAfter)
	event.Success = false
	_ = s.audit.LogEvent(ctx, event)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidOrganization):
		return "INVALID_ORGANIZATION"
	case errors.Is(err, domain.ErrTokenCollision):
		return "SESSION_COLLISION"
	default:
		return "INTERNAL"
	}
}

// Logout implements domain.AuthService
func (s *AuthServiceImpl) Logout(ctx context.Context, token string) error {
	driver, err := s.sessionSvc.Resolve(ctx, token)
	if err := s.sessionSvc.Revoke(ctx, token); err != nil {
		return err
	}
	if err == nil {
		_ = s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.DriverLogoutEvent, driver.ID, s.clock.Now()))
	}
	return nil
}

// UpdateName implements domain.AuthService
func (s *AuthServiceImpl) UpdateName(ctx context.Context, driverID uint, name string) (*domain.Driver, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrMissingField
	}
	driver, err := s.driverRepo.FindByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	driver.Name = name
	if err := s.driverRepo.UpdateProfile(ctx, driver); err != nil {
		return nil, err
	}
	return driver, nil
}

// FindDriver implements domain.AuthService
func (s *AuthServiceImpl) FindDriver(ctx context.Context, driverID uint) (*domain.Driver, error) {
	return s.driverRepo.FindByID(ctx, driverID)
}

func maskRecipient(email, phoneNumber string) string {
	if email != "" {
		return maskEmail(email)
	}
	return phone.Mask(phoneNumber)
}

func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
