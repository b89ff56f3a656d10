package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/auth"
)

// AdminTokenHeader carries the operator credential
const AdminTokenHeader = "X-Admin-Token"

const scopeKey = "operator_scope"

// OperatorMW resolves operator credentials and enforces casbin route policies
type OperatorMW struct {
	resolver domain.ScopeResolver
	enforcer domain.CasbinEnforcer
	audit    domain.AuditLogger
	clock    domain.Clock
	logger   *zap.Logger
}

// NewOperatorMW creates new operator middleware wrapper
func NewOperatorMW(resolver domain.ScopeResolver, enforcer domain.CasbinEnforcer, audit domain.AuditLogger, clock domain.Clock, logger *zap.Logger) *OperatorMW {
	return &OperatorMW{resolver: resolver, enforcer: enforcer, audit: audit, clock: clock, logger: logger}
}

// Enforce returns the operator authorization middleware
func (mw *OperatorMW) Enforce() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		scope, err := mw.resolver.Resolve(ctx, c.GetHeader(AdminTokenHeader))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		path := c.Request.URL.Path
		method := c.Request.Method

		allowed, err := mw.enforcer.Enforce(auth.SubjectForRole(scope.Role), path, method)
		if err != nil {
			mw.logger.Error("authorization check failed", zap.String("path", path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
			return
		}
		if !allowed {
			event := domain.NewAuditEvent(domain.AccessDeniedEvent, 0, mw.clock.Now()).
				WithError(domain.ErrForbidden).
				WithIP(c.ClientIP()).
				WithMetadata("role", scope.Role).
				WithMetadata("path", path).
				WithMetadata("method", method)
			_ = mw.audit.LogEvent(ctx, event)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access Denied"})
			return
		}

		c.Set(scopeKey, scope)
		c.Next()
	}
}

// ScopeFrom returns the operator scope attached by Enforce
func ScopeFrom(c *gin.Context) (*domain.OperatorScope, bool) {
	v, ok := c.Get(scopeKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*domain.OperatorScope)
	return s, ok && s != nil
}
