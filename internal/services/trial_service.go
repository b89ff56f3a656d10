package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/phone"
)

const (
	maxSlugLength         = 40
	defaultOrgType        = "taxi"
	provisioningErrorCode = "TRIAL_PROVISIONING_FAILED"
)

// TrialConfig controls trial provisioning
type TrialConfig struct {
	TrialPeriod time.Duration
}

// TrialServiceImpl implements domain.TrialService
type TrialServiceImpl struct {
	limiter    domain.RateLimiter
	orgs       domain.OrganizationRepository
	normalizer *phone.Normalizer
	clock      domain.Clock
	audit      domain.AuditLogger
	logger     *zap.Logger
	config     TrialConfig
}

// NewTrialService creates a new trial service
func NewTrialService(
	limiter domain.RateLimiter,
	orgs domain.OrganizationRepository,
	normalizer *phone.Normalizer,
	clock domain.Clock,
	audit domain.AuditLogger,
	logger *zap.Logger,
	config TrialConfig,
) domain.TrialService {
	if config.TrialPeriod <= 0 {
		config.TrialPeriod = 14 * 24 * time.Hour
	}
	return &TrialServiceImpl{
		limiter:    limiter,
		orgs:       orgs,
		normalizer: normalizer,
		clock:      clock,
		audit:      audit,
		logger:     logger.Named("trials"),
		config:     config,
	}
}

// CreateTrial implements domain.TrialService
func (s *TrialServiceImpl) CreateTrial(ctx context.Context, in domain.TrialInput) (*domain.TrialResult, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" {
		return nil, domain.ErrMissingField
	}
	req := domain.AttemptRequest{IP: in.IP, Email: email}
	if strings.TrimSpace(in.Phone) != "" {
		p, ok := s.normalizer.Canonical(in.Phone)
		if !ok {
			return nil, domain.ErrInvalidPhone
		}
		req.Phone = p
	}

	decision, err := s.limiter.Check(ctx, req)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		event := domain.NewAuditEvent(domain.TrialDeniedEvent, 0, s.clock.Now()).
			WithIP(in.IP).
			WithMetadata("rule", string(decision.Rule)).
			WithMetadata("retry_after", decision.RetryAfter)
		event.Success = false
		_ = s.audit.LogEvent(ctx, event)
		return &domain.TrialResult{Decision: decision, Status: domain.AttemptDenied}, nil
	}

	org, status, err := s.provision(ctx, name, in.Type)
	if err != nil {
		if rerr := s.limiter.Record(ctx, decision, domain.AttemptError, nil, provisioningErrorCode); rerr != nil {
			s.logger.Error("failed to record trial attempt", zap.Error(rerr))
		}
		return nil, err
	}
	if err := s.limiter.Record(ctx, decision, status, &org.ID, ""); err != nil {
		return nil, err
	}

	event := domain.NewAuditEvent(domain.TrialCreatedEvent, 0, s.clock.Now()).
		WithIP(in.IP).
		WithMetadata("organization_id", org.ID).
		WithMetadata("status", string(status))
	_ = s.audit.LogEvent(ctx, event)
	return &domain.TrialResult{Decision: decision, Organization: org, Status: status}, nil
}

// provision returns the organization for name, creating it on first sight
func (s *TrialServiceImpl) provision(ctx context.Context, name, orgType string) (*domain.Organization, domain.AttemptStatus, error) {
	orgSlug := makeSlug(name)
	existing, err := s.orgs.FindBySlug(ctx, orgSlug)
	if err == nil {
		return existing, domain.AttemptAccepted, nil
	}
	if !errors.Is(err, domain.ErrOrganizationNotFound) {
		return nil, "", err
	}

	if orgType = strings.TrimSpace(orgType); orgType == "" {
		orgType = defaultOrgType
	}
	now := s.clock.Now()
	trialEnds := now.Add(s.config.TrialPeriod)
	org := &domain.Organization{
		Name:            name,
		Slug:            orgSlug,
		Type:            orgType,
		Status:          "active",
		DefaultGroupTag: orgSlug + "-a",
		PlanStatus:      "trialing",
		TrialEndsAt:     &trialEnds,
		CreatedAt:       now,
	}
	err = s.orgs.Create(ctx, org)
	if errors.Is(err, domain.ErrOrganizationExists) {
		// lost a race with a concurrent request for the same name
		existing, ferr := s.orgs.FindBySlug(ctx, orgSlug)
		if ferr != nil {
			return nil, "", ferr
		}
		return existing, domain.AttemptAccepted, nil
	}
	if err != nil {
		return nil, "", err
	}
	return org, domain.AttemptCreated, nil
}

func makeSlug(name string) string {
	s := slug.Make(name)
	if len(s) > maxSlugLength {
		s = strings.Trim(s[:maxSlugLength], "-")
	}
	if s == "" {
		return "org"
	}
	return s
}
