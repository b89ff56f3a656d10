package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/http/middleware"
	"github.com/Tsipchain/driver-platform/internal/mocks"
	"github.com/Tsipchain/driver-platform/internal/services"
)

var northScope = &domain.OperatorScope{Role: domain.OperatorRoleOperator, GroupTag: "north"}

func operatorRouter(opSvc domain.OperatorService, resolver *mocks.MockScopeResolver, policySvc domain.PolicyService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	resolver.ResolveFunc = func(ctx context.Context, presented string) (*domain.OperatorScope, error) {
		switch presented {
		case "admin-secret":
			return &domain.OperatorScope{Global: true, Role: domain.OperatorRoleAdmin}, nil
		case "north-token":
			return northScope, nil
		}
		return nil, domain.ErrUnauthorized
	}

	clock := services.NewFixedClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	mw := middleware.NewOperatorMW(resolver, mocks.NewMockCasbinEnforcer(), mocks.NewMockAuditLogger(), clock, zap.NewNop())
	oh := NewOperatorHandlers(opSvc, resolver, zap.NewNop())
	ph := NewPolicyHandlers(policySvc)

	r := gin.New()
	op := r.Group("/api/operator").Use(mw.Enforce())
	op.GET("/pending-drivers", oh.PendingDrivers)
	op.POST("/drivers/:id/approve", oh.ApproveDriver)
	adm := r.Group("/api/admin").Use(mw.Enforce())
	adm.POST("/operator-tokens", oh.IssueToken)
	adm.GET("/policies", ph.List)
	adm.POST("/policies", ph.Add)
	adm.DELETE("/policies", ph.Remove)
	return r
}

func TestOperatorHandlers_PendingDrivers(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		token          string
		expectedStatus int
		expectedItems  int
		expectedLimit  int
	}{
		{"no credential", "/api/operator/pending-drivers", "", http.StatusUnauthorized, 0, 0},
		{"scoped list", "/api/operator/pending-drivers", "north-token", http.StatusOK, 2, 0},
		{"explicit limit", "/api/operator/pending-drivers?limit=5", "north-token", http.StatusOK, 2, 5},
		{"bad limit", "/api/operator/pending-drivers?limit=abc", "north-token", http.StatusBadRequest, 0, 0},
		{"other tag", "/api/operator/pending-drivers?group_tag=south", "north-token", http.StatusForbidden, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opSvc := mocks.NewMockOperatorService()
			opSvc.PendingDriversFunc = func(ctx context.Context, scope *domain.OperatorScope, groupTag string, limit int) ([]*domain.Driver, error) {
				if limit != tt.expectedLimit {
					t.Errorf("expected limit %d, got %d", tt.expectedLimit, limit)
				}
				if groupTag != "" && groupTag != scope.GroupTag {
					return nil, domain.ErrForbidden
				}
				return []*domain.Driver{
					{ID: 1, Name: "A", Phone: "+301111111", GroupTag: "north"},
					{ID: 2, Name: "B", Phone: "+302222222", GroupTag: "north"},
				}, nil
			}
			r := operatorRouter(opSvc, mocks.NewMockScopeResolver(), mocks.NewMockPolicyService())

			headers := map[string]string{}
			if tt.token != "" {
				headers[middleware.AdminTokenHeader] = tt.token
			}
			w := performRequest(r, http.MethodGet, tt.path, nil, headers)
			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}
			if w.Code != http.StatusOK {
				return
			}
			items, _ := decodeBody(t, w)["items"].([]interface{})
			if len(items) != tt.expectedItems {
				t.Errorf("expected %d items, got %d", tt.expectedItems, len(items))
			}
		})
	}
}

func TestOperatorHandlers_ApproveDriver(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"approved", "/api/operator/drivers/1/approve", http.StatusOK},
		{"outside scope", "/api/operator/drivers/2/approve", http.StatusForbidden},
		{"missing driver", "/api/operator/drivers/3/approve", http.StatusNotFound},
		{"bad id", "/api/operator/drivers/x/approve", http.StatusBadRequest},
	}

	opSvc := mocks.NewMockOperatorService()
	opSvc.ApproveDriverFunc = func(ctx context.Context, scope *domain.OperatorScope, id uint) (*domain.Driver, error) {
		switch id {
		case 1:
			return &domain.Driver{ID: 1, Approved: true}, nil
		case 2:
			return nil, domain.ErrForbidden
		}
		return nil, domain.ErrDriverNotFound
	}
	r := operatorRouter(opSvc, mocks.NewMockScopeResolver(), mocks.NewMockPolicyService())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(r, http.MethodPost, tt.path, nil, map[string]string{middleware.AdminTokenHeader: "north-token"})
			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if w.Code == http.StatusOK {
				got := decodeBody(t, w)
				if got["driver_id"] != float64(1) || got["approved"] != true {
					t.Errorf("unexpected body: %v", got)
				}
			}
		})
	}
}

func TestOperatorHandlers_IssueToken(t *testing.T) {
	tests := []struct {
		name           string
		token          string
		body           interface{}
		expectedStatus int
	}{
		{"operator cannot issue", "north-token", map[string]interface{}{"role": "operator", "group_tag": "north"}, http.StatusForbidden},
		{"missing role", "admin-secret", map[string]interface{}{"group_tag": "north"}, http.StatusBadRequest},
		{"negative ttl", "admin-secret", map[string]interface{}{"role": "operator", "group_tag": "north", "ttl_hours": -1}, http.StatusBadRequest},
		{"unscoped operator", "admin-secret", map[string]interface{}{"role": "operator"}, http.StatusBadRequest},
		{"issued", "admin-secret", map[string]interface{}{"role": "operator", "group_tag": "north", "ttl_hours": 24}, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := mocks.NewMockScopeResolver()
			resolver.IssueTokenFunc = func(ctx context.Context, role, groupTag string, orgID *uint, ttl time.Duration) (string, *domain.OperatorToken, error) {
				if groupTag == "" {
					return "", nil, domain.ErrInvalidScope
				}
				if ttl != 24*time.Hour {
					t.Errorf("expected 24h ttl, got %v", ttl)
				}
				return "raw-secret", &domain.OperatorToken{ID: 8, Role: role, GroupTag: groupTag}, nil
			}
			r := operatorRouter(mocks.NewMockOperatorService(), resolver, mocks.NewMockPolicyService())

			w := performRequest(r, http.MethodPost, "/api/admin/operator-tokens", tt.body, map[string]string{middleware.AdminTokenHeader: tt.token})
			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}
			if w.Code == http.StatusCreated {
				got := decodeBody(t, w)
				if got["token"] != "raw-secret" || got["id"] != float64(8) {
					t.Errorf("unexpected body: %v", got)
				}
			}
		})
	}
}
