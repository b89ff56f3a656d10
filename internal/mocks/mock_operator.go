package mocks

import (
	"context"
	"time"

	"github.com/Tsipchain/driver-platform/domain"
)

// MockScopeResolver implements domain.ScopeResolver interface for testing
type MockScopeResolver struct {
	ResolveFunc    func(ctx context.Context, presented string) (*domain.OperatorScope, error)
	IssueTokenFunc func(ctx context.Context, role, groupTag string, orgID *uint, ttl time.Duration) (string, *domain.OperatorToken, error)
}

// NewMockScopeResolver creates a resolver that accepts "admin-secret" as the global scope
func NewMockScopeResolver() *MockScopeResolver {
	return &MockScopeResolver{}
}

// Resolve maps a credential to a scope
func (m *MockScopeResolver) Resolve(ctx context.Context, presented string) (*domain.OperatorScope, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, presented)
	}
	if presented == "admin-secret" {
		return &domain.OperatorScope{Global: true, Role: domain.OperatorRoleAdmin}, nil
	}
	return nil, domain.ErrUnauthorized
}

// IssueToken mints an operator credential
func (m *MockScopeResolver) IssueToken(ctx context.Context, role, groupTag string, orgID *uint, ttl time.Duration) (string, *domain.OperatorToken, error) {
	if m.IssueTokenFunc != nil {
		return m.IssueTokenFunc(ctx, role, groupTag, orgID, ttl)
	}
	return "mock_operator_token", &domain.OperatorToken{ID: 1, Role: role, GroupTag: groupTag, OrganizationID: orgID}, nil
}

// MockOperatorService implements domain.OperatorService interface for testing
type MockOperatorService struct {
	PendingDriversFunc func(ctx context.Context, scope *domain.OperatorScope, groupTag string, limit int) ([]*domain.Driver, error)
	ApproveDriverFunc  func(ctx context.Context, scope *domain.OperatorScope, driverID uint) (*domain.Driver, error)
}

// NewMockOperatorService creates a new MockOperatorService with default behaviors
func NewMockOperatorService() *MockOperatorService {
	return &MockOperatorService{}
}

// PendingDrivers lists unapproved drivers
func (m *MockOperatorService) PendingDrivers(ctx context.Context, scope *domain.OperatorScope, groupTag string, limit int) ([]*domain.Driver, error) {
	if m.PendingDriversFunc != nil {
		return m.PendingDriversFunc(ctx, scope, groupTag, limit)
	}
	return []*domain.Driver{}, nil
}

// ApproveDriver approves a driver
func (m *MockOperatorService) ApproveDriver(ctx context.Context, scope *domain.OperatorScope, driverID uint) (*domain.Driver, error) {
	if m.ApproveDriverFunc != nil {
		return m.ApproveDriverFunc(ctx, scope, driverID)
	}
	return &domain.Driver{ID: driverID, Approved: true}, nil
}

// MockTrialService implements domain.TrialService interface for testing
type MockTrialService struct {
	CreateTrialFunc func(ctx context.Context, in domain.TrialInput) (*domain.TrialResult, error)
}

// CreateTrial provisions a trial
func (m *MockTrialService) CreateTrial(ctx context.Context, in domain.TrialInput) (*domain.TrialResult, error) {
	if m.CreateTrialFunc != nil {
		return m.CreateTrialFunc(ctx, in)
	}
	return &domain.TrialResult{
		Decision:     domain.Allow(),
		Organization: &domain.Organization{ID: 1, Name: in.Name, PlanStatus: "trialing"},
		Status:       domain.AttemptCreated,
	}, nil
}

// Compile-time interface compliance verification
var (
	_ domain.ScopeResolver   = (*MockScopeResolver)(nil)
	_ domain.OperatorService = (*MockOperatorService)(nil)
	_ domain.TrialService    = (*MockTrialService)(nil)
)
