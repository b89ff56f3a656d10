package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
)

// ScopeResolverImpl implements domain.ScopeResolver. The configured admin
// secret maps to the global scope; every other credential is looked up by
// its salted hash.
type ScopeResolverImpl struct {
	tokens     domain.OperatorTokenRepository
	hasher     domain.Hasher
	clock      domain.Clock
	audit      domain.AuditLogger
	logger     *zap.Logger
	adminToken string
	newToken   func() (string, error)
}

// NewScopeResolver creates a scope resolver
func NewScopeResolver(
	tokens domain.OperatorTokenRepository,
	hasher domain.Hasher,
	clock domain.Clock,
	audit domain.AuditLogger,
	logger *zap.Logger,
	adminToken string,
) domain.ScopeResolver {
	return &ScopeResolverImpl{
		tokens:     tokens,
		hasher:     hasher,
		clock:      clock,
		audit:      audit,
		logger:     logger.Named("scope"),
		adminToken: adminToken,
		newToken:   randomHexToken,
	}
}

// Resolve implements domain.ScopeResolver
func (r *ScopeResolverImpl) Resolve(ctx context.Context, presented string) (*domain.OperatorScope, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil, r.reject(ctx, "empty", 0)
	}
	if r.adminToken != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(r.adminToken)) == 1 {
		scope := &domain.OperatorScope{Global: true, Role: domain.OperatorRoleAdmin}
		r.resolved(ctx, scope, 0)
		return scope, nil
	}

	token, err := r.tokens.FindByHash(ctx, r.hasher.Hash(presented))
	if errors.Is(err, domain.ErrOperatorTokenNotFound) {
		return nil, r.reject(ctx, "unknown", 0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve operator token: %w", err)
	}

	now := r.clock.Now()
	if token.Expired(now) {
		return nil, r.reject(ctx, "expired", token.ID)
	}
	if err := r.tokens.TouchLastUsed(ctx, token.ID, now); err != nil {
		r.logger.Warn("failed to stamp operator token", zap.Uint("token_id", token.ID), zap.Error(err))
	}

	scope := &domain.OperatorScope{
		Role:           token.Role,
		GroupTag:       token.GroupTag,
		OrganizationID: token.OrganizationID,
	}
	r.resolved(ctx, scope, token.ID)
	return scope, nil
}

func (r *ScopeResolverImpl) resolved(ctx context.Context, scope *domain.OperatorScope, tokenID uint) {
	event := domain.NewAuditEvent(domain.OperatorResolvedEvent, 0, r.clock.Now()).
		WithMetadata("role", scope.Role).
		WithMetadata("global", scope.Global)
	if tokenID != 0 {
		event.WithMetadata("token_id", tokenID).WithMetadata("group_tag", scope.GroupTag)
	}
	_ = r.audit.LogEvent(ctx, event)
}

// reject audits a refused credential and returns ErrUnauthorized
func (r *ScopeResolverImpl) reject(ctx context.Context, reason string, tokenID uint) error {
	event := domain.NewAuditEvent(domain.OperatorRejectedEvent, 0, r.clock.Now()).
		WithMetadata("reason", reason).
		WithError(domain.ErrUnauthorized)
	if tokenID != 0 {
		event.WithMetadata("token_id", tokenID)
	}
	_ = r.audit.LogEvent(ctx, event)
	return domain.ErrUnauthorized
}

// IssueToken implements domain.ScopeResolver. The raw credential is returned
// once and only its hash is stored.
func (r *ScopeResolverImpl) IssueToken(ctx context.Context, role, groupTag string, orgID *uint, ttl time.Duration) (string, *domain.OperatorToken, error) {
	switch role {
	case domain.OperatorRoleAdmin, domain.OperatorRoleOperator, domain.OperatorRoleViewer:
	default:
		return "", nil, domain.ErrInvalidRole
	}
	groupTag = strings.TrimSpace(groupTag)
	if role != domain.OperatorRoleAdmin && groupTag == "" && orgID == nil {
		return "", nil, domain.ErrInvalidScope
	}

	raw, err := r.newToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate operator token: %w", err)
	}

	now := r.clock.Now()
	token := &domain.OperatorToken{
		TokenHash:      r.hasher.Hash(raw),
		Role:           role,
		GroupTag:       groupTag,
		OrganizationID: orgID,
		CreatedAt:      now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		token.ExpiresAt = &expires
	}
	if err := r.tokens.Create(ctx, token); err != nil {
		return "", nil, err
	}

	event := domain.NewAuditEvent(domain.OperatorTokenIssuedEvent, 0, now).
		WithMetadata("role", role).
		WithMetadata("group_tag", groupTag)
	_ = r.audit.LogEvent(ctx, event)
	return raw, token, nil
}
