package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/auth"
	"github.com/Tsipchain/driver-platform/internal/mocks"
	"github.com/Tsipchain/driver-platform/internal/services"
)

// createTestEnforcer creates an in-memory enforcer seeded with the default policies
func createTestEnforcer(t *testing.T) *casbin.Enforcer {
	m, err := model.NewModelFromString(auth.DefaultModel)
	require.NoError(t, err)
	e, err := casbin.NewEnforcer(m)
	require.NoError(t, err)
	for _, p := range auth.DefaultPolicies {
		_, err := e.AddPolicy(p[0], p[1], p[2])
		require.NoError(t, err)
	}
	return e
}

func TestSessionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	sessions := mocks.NewMockSessionService()
	sessions.ResolveFunc = func(ctx context.Context, token string) (*domain.Driver, error) {
		if token == "good" {
			return &domain.Driver{ID: 7, Name: "Nikos"}, nil
		}
		return nil, domain.ErrUnauthorized
	}
	mw := NewSessionAuthMW(sessions)

	tests := []struct {
		name           string
		required       bool
		header         string
		expectedStatus int
		expectDriver   bool
	}{
		{"required without header", true, "", http.StatusUnauthorized, false},
		{"required with wrong scheme", true, "Basic good", http.StatusUnauthorized, false},
		{"required with revoked token", true, "Bearer bad", http.StatusUnauthorized, false},
		{"required with live token", true, "Bearer good", http.StatusOK, true},
		{"lowercase scheme", true, "bearer good", http.StatusOK, true},
		{"optional without header", false, "", http.StatusOK, false},
		{"optional with dead token", false, "Bearer bad", http.StatusOK, false},
		{"optional with live token", false, "Bearer good", http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := mw.OptionalDriver()
			if tt.required {
				handler = mw.RequireDriver()
			}

			r := gin.New()
			var sawDriver bool
			r.GET("/api/me", handler, func(c *gin.Context) {
				d, ok := DriverFrom(c)
				sawDriver = ok && d.ID == 7
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectDriver, sawDriver)
		})
	}
}

func TestOperatorMW_Enforce(t *testing.T) {
	gin.SetMode(gin.TestMode)

	resolver := mocks.NewMockScopeResolver()
	resolver.ResolveFunc = func(ctx context.Context, presented string) (*domain.OperatorScope, error) {
		switch presented {
		case "admin-secret":
			return &domain.OperatorScope{Global: true, Role: domain.OperatorRoleAdmin}, nil
		case "operator-token":
			return &domain.OperatorScope{Role: domain.OperatorRoleOperator, GroupTag: "north"}, nil
		case "viewer-token":
			return &domain.OperatorScope{Role: domain.OperatorRoleViewer, GroupTag: "north"}, nil
		}
		return nil, domain.ErrUnauthorized
	}

	tests := []struct {
		name           string
		token          string
		method         string
		path           string
		expectedStatus int
	}{
		{"missing token", "", http.MethodGet, "/api/operator/pending-drivers", http.StatusUnauthorized},
		{"unknown token", "nope", http.MethodGet, "/api/operator/pending-drivers", http.StatusUnauthorized},
		{"operator lists", "operator-token", http.MethodGet, "/api/operator/pending-drivers", http.StatusOK},
		{"operator approves", "operator-token", http.MethodPost, "/api/operator/drivers/3/approve", http.StatusOK},
		{"viewer cannot approve", "viewer-token", http.MethodPost, "/api/operator/drivers/3/approve", http.StatusForbidden},
		{"operator cannot reach admin", "operator-token", http.MethodPost, "/api/admin/operator-tokens", http.StatusForbidden},
		{"admin reaches admin", "admin-secret", http.MethodPost, "/api/admin/operator-tokens", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := mocks.NewMockAuditLogger()
			mw := NewOperatorMW(resolver, createTestEnforcer(t), audit,
				services.NewFixedClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)), zap.NewNop())

			r := gin.New()
			var scope *domain.OperatorScope
			r.Handle(tt.method, tt.path, mw.Enforce(), func(c *gin.Context) {
				scope, _ = ScopeFrom(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set(AdminTokenHeader, tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				require.NotNil(t, scope)
			}
			if tt.expectedStatus == http.StatusForbidden {
				assert.Len(t, audit.Events(domain.AccessDeniedEvent), 1)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	var seen string
	r.GET("/health", func(c *gin.Context) {
		seen = domain.RequestIDFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("generates id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, seen)
	})

	t.Run("keeps caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "abc-123", seen)
	})

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "/health", entries[0].ContextMap()["path"])
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
}
