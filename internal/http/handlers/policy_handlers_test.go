package handlers

import (
	"net/http"
	"testing"

	"github.com/Tsipchain/driver-platform/internal/http/middleware"
	"github.com/Tsipchain/driver-platform/internal/mocks"
	"github.com/Tsipchain/driver-platform/internal/services"
)

func TestPolicyHandlers(t *testing.T) {
	enforcer := mocks.NewMockCasbinEnforcer()
	policySvc := services.NewPolicyServiceWithEnforcer(enforcer)
	r := operatorRouter(mocks.NewMockOperatorService(), mocks.NewMockScopeResolver(), policySvc)
	admin := map[string]string{middleware.AdminTokenHeader: "admin-secret"}

	t.Run("list", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/api/admin/policies", nil, admin)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		policies, _ := decodeBody(t, w)["policies"].([]interface{})
		if len(policies) != 3 {
			t.Errorf("expected 3 default policies, got %d", len(policies))
		}
	})

	t.Run("add", func(t *testing.T) {
		body := map[string]string{"role": "viewer", "resource": "/api/drivers/*", "action": "^GET$"}
		w := performRequest(r, http.MethodPost, "/api/admin/policies", body, admin)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d (%s)", w.Code, w.Body.String())
		}
		if ok, _ := enforcer.Enforce("role_viewer", "/api/drivers/lookup", "GET"); !ok {
			t.Error("expected new viewer policy to be enforced")
		}
		if enforcer.SaveCalls != 1 {
			t.Errorf("expected policy to be saved once, got %d", enforcer.SaveCalls)
		}
	})

	t.Run("add rejects unknown role", func(t *testing.T) {
		body := map[string]string{"role": "root", "resource": "/api/*", "action": ".*"}
		w := performRequest(r, http.MethodPost, "/api/admin/policies", body, admin)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("remove", func(t *testing.T) {
		body := map[string]string{"role": "viewer", "resource": "/api/drivers/*", "action": "^GET$"}
		w := performRequest(r, http.MethodDelete, "/api/admin/policies", body, admin)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
		if ok, _ := enforcer.Enforce("role_viewer", "/api/drivers/lookup", "GET"); ok {
			t.Error("expected removed policy to stop matching")
		}
	})

	t.Run("operator cannot manage policies", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/api/admin/policies", nil, map[string]string{middleware.AdminTokenHeader: "north-token"})
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})
}
