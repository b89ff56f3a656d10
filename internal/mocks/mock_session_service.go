package mocks

import (
	"context"

	"github.com/Tsipchain/driver-platform/domain"
)

// MockSessionService implements domain.SessionService interface for testing
type MockSessionService struct {
	CreateFunc  func(ctx context.Context, driverID uint) (string, error)
	ResolveFunc func(ctx context.Context, token string) (*domain.Driver, error)
	RevokeFunc  func(ctx context.Context, token string) error
}

// NewMockSessionService creates a new MockSessionService with default behaviors
func NewMockSessionService() *MockSessionService {
	return &MockSessionService{}
}

// Create issues a session token
func (m *MockSessionService) Create(ctx context.Context, driverID uint) (string, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, driverID)
	}
	return "mock_session_token", nil
}

// Resolve maps a token to its driver
func (m *MockSessionService) Resolve(ctx context.Context, token string) (*domain.Driver, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, token)
	}
	// Default behavior: every token is unknown
	return nil, domain.ErrUnauthorized
}

// Revoke revokes a token
func (m *MockSessionService) Revoke(ctx context.Context, token string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, token)
	}
	return nil
}

// Compile-time interface compliance verification
var _ domain.SessionService = (*MockSessionService)(nil)
