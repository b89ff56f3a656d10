package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
)

// sessionTokenBytes yields a 64 character hex token
const sessionTokenBytes = 32

// SessionServiceImpl implements domain.SessionService
type SessionServiceImpl struct {
	sessionRepo domain.SessionRepository
	driverRepo  domain.DriverRepository
	clock       domain.Clock
	audit       domain.AuditLogger
	logger      *zap.Logger
	newToken    func() (string, error)
}

// NewSessionService creates a new session service
func NewSessionService(
	sessionRepo domain.SessionRepository,
	driverRepo domain.DriverRepository,
	clock domain.Clock,
	audit domain.AuditLogger,
	logger *zap.Logger,
) domain.SessionService {
	return &SessionServiceImpl{
		sessionRepo: sessionRepo,
		driverRepo:  driverRepo,
		clock:       clock,
		audit:       audit,
		logger:      logger.Named("sessions"),
		newToken:    randomHexToken,
	}
}

// Create implements domain.SessionService
func (s *SessionServiceImpl) Create(ctx context.Context, driverID uint) (string, error) {
	token, err := s.newToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	// a revoked token stays dead even if the generator hands it out again
	revoked, err := s.sessionRepo.IsRevoked(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		s.logger.Error("session token collision with revoked token", zap.Uint("driver_id", driverID))
		return "", domain.ErrTokenCollision
	}

	now := s.clock.Now()
	session := &domain.Session{Token: token, DriverID: driverID, CreatedAt: now, LastSeenAt: now}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		if errors.Is(err, domain.ErrSessionTokenConflict) {
			s.logger.Error("session token collision", zap.Uint("driver_id", driverID))
			return "", domain.ErrTokenCollision
		}
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	_ = s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.SessionIssuedEvent, driverID, now))
	return token, nil
}

// Resolve implements domain.SessionService. Every miss is ErrUnauthorized.
func (s *SessionServiceImpl) Resolve(ctx context.Context, token string) (*domain.Driver, error) {
	if !wellFormedToken(token) {
		return nil, domain.ErrUnauthorized
	}

	revoked, err := s.sessionRepo.IsRevoked(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, domain.ErrUnauthorized
	}

	session, err := s.sessionRepo.Touch(ctx, token, s.clock.Now())
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	driver, err := s.driverRepo.FindByID(ctx, session.DriverID)
	if errors.Is(err, domain.ErrDriverNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load driver: %w", err)
	}
	return driver, nil
}

// Revoke implements domain.SessionService. Revoking an unknown or already
// revoked token succeeds.
func (s *SessionServiceImpl) Revoke(ctx context.Context, token string) error {
	if !wellFormedToken(token) {
		return nil
	}
	now := s.clock.Now()
	if err := s.sessionRepo.Revoke(ctx, token, now); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	_ = s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.SessionRevokedEvent, 0, now))
	return nil
}

func randomHexToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func wellFormedToken(token string) bool {
	if len(token) != sessionTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
