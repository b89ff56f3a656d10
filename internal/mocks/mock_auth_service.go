package mocks

import (
	"context"

	"github.com/Tsipchain/driver-platform/domain"
)

// MockAuthService implements domain.AuthService interface for testing
type MockAuthService struct {
	RequestCodeFunc func(ctx context.Context, in domain.RequestCodeInput) (*domain.CodeRequestResult, error)
	VerifyCodeFunc  func(ctx context.Context, in domain.VerifyCodeInput) (*domain.AuthResult, error)
	LogoutFunc      func(ctx context.Context, token string) error
	UpdateNameFunc  func(ctx context.Context, driverID uint, name string) (*domain.Driver, error)
	FindDriverFunc  func(ctx context.Context, driverID uint) (*domain.Driver, error)
}

// NewMockAuthService creates a new MockAuthService with default behaviors
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{}
}

// RequestCode issues a code
func (m *MockAuthService) RequestCode(ctx context.Context, in domain.RequestCodeInput) (*domain.CodeRequestResult, error) {
	if m.RequestCodeFunc != nil {
		return m.RequestCodeFunc(ctx, in)
	}
	// Default behavior: issued over log
	return &domain.CodeRequestResult{Outcome: domain.OutcomeIssued, Delivery: domain.DeliveryLog, MaskedRecipient: "***4567"}, nil
}

// VerifyCode verifies a code
func (m *MockAuthService) VerifyCode(ctx context.Context, in domain.VerifyCodeInput) (*domain.AuthResult, error) {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, in)
	}
	return nil, domain.ErrInvalidOrExpired
}

// Logout revokes a session token
func (m *MockAuthService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

// UpdateName renames a driver
func (m *MockAuthService) UpdateName(ctx context.Context, driverID uint, name string) (*domain.Driver, error) {
	if m.UpdateNameFunc != nil {
		return m.UpdateNameFunc(ctx, driverID, name)
	}
	return &domain.Driver{ID: driverID, Name: name, Role: domain.DefaultDriverRole}, nil
}

// FindDriver loads a driver
func (m *MockAuthService) FindDriver(ctx context.Context, driverID uint) (*domain.Driver, error) {
	if m.FindDriverFunc != nil {
		return m.FindDriverFunc(ctx, driverID)
	}
	return nil, domain.ErrDriverNotFound
}

// Compile-time interface compliance verification
var _ domain.AuthService = (*MockAuthService)(nil)
