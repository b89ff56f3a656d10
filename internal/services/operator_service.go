package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
)

const (
	defaultPendingLimit = 200
	maxPendingLimit     = 500
)

// OperatorServiceImpl implements domain.OperatorService
type OperatorServiceImpl struct {
	driverRepo domain.DriverRepository
	clock      domain.Clock
	audit      domain.AuditLogger
	logger     *zap.Logger
}

// NewOperatorService creates a new operator service
func NewOperatorService(driverRepo domain.DriverRepository, clock domain.Clock, audit domain.AuditLogger, logger *zap.Logger) domain.OperatorService {
	return &OperatorServiceImpl{
		driverRepo: driverRepo,
		clock:      clock,
		audit:      audit,
		logger:     logger.Named("operator"),
	}
}

// PendingDrivers implements domain.OperatorService. A scoped caller may only
// narrow to its own group tag.
func (s *OperatorServiceImpl) PendingDrivers(ctx context.Context, scope *domain.OperatorScope, groupTag string, limit int) ([]*domain.Driver, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}

	filter := domain.DriverFilter{GroupTag: groupTag, Limit: limit}
	if !scope.Global {
		if scope.GroupTag != "" {
			if groupTag != "" && groupTag != scope.GroupTag {
				return nil, domain.ErrForbidden
			}
			filter.GroupTag = scope.GroupTag
		}
		filter.OrganizationID = scope.OrganizationID
	}

	drivers, err := s.driverRepo.ListPending(ctx, filter)
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

// ApproveDriver implements domain.OperatorService
func (s *OperatorServiceImpl) ApproveDriver(ctx context.Context, scope *domain.OperatorScope, driverID uint) (*domain.Driver, error) {
	driver, err := s.driverRepo.FindByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if !scope.Permits(driver) {
		event := domain.NewAuditEvent(domain.AccessDeniedEvent, driverID, s.clock.Now()).
			WithMetadata("role", scope.Role).
			WithError(domain.ErrForbidden)
		_ = s.audit.LogEvent(ctx, event)
		return nil, domain.ErrForbidden
	}

	if err := s.driverRepo.Approve(ctx, driverID); err != nil {
		return nil, fmt.Errorf("failed to approve driver: %w", err)
	}
	driver.Approved = true
	s.logger.Info("driver approved", zap.Uint("driver_id", driverID), zap.String("role", scope.Role))

	_ = s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.DriverApprovedEvent, driverID, s.clock.Now()).WithMetadata("role", scope.Role))
	return driver, nil
}
