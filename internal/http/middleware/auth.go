package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Tsipchain/driver-platform/domain"
)

const driverKey = "driver"

// SessionAuthMW wraps the session service for middleware
type SessionAuthMW struct {
	sessions domain.SessionService
}

// NewSessionAuthMW creates new session middleware wrapper
func NewSessionAuthMW(sessions domain.SessionService) *SessionAuthMW {
	return &SessionAuthMW{sessions: sessions}
}

// RequireDriver rejects requests without a live session
func (mw *SessionAuthMW) RequireDriver() gin.HandlerFunc {
	return SessionMiddleware(mw.sessions, true)
}

// OptionalDriver attaches the driver when a live session is presented
func (mw *SessionAuthMW) OptionalDriver() gin.HandlerFunc {
	return SessionMiddleware(mw.sessions, false)
}

// DriverFrom returns the driver attached by the session middleware
func DriverFrom(c *gin.Context) (*domain.Driver, bool) {
	v, ok := c.Get(driverKey)
	if !ok {
		return nil, false
	}
	d, ok := v.(*domain.Driver)
	return d, ok && d != nil
}
