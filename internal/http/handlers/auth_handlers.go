package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/http/middleware"
)

// AuthHandlers handles driver code login and profile requests
type AuthHandlers struct {
	authSvc domain.AuthService
	logger  *zap.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authSvc domain.AuthService, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{authSvc: authSvc, logger: logger}
}

// RequestCodeRequest represents a login code request
type RequestCodeRequest struct {
	Phone          string `json:"phone" binding:"required"`
	Email          string `json:"email,omitempty" binding:"omitempty,email"`
	Name           string `json:"name,omitempty"`
	Role           string `json:"role,omitempty"`
	OrganizationID *uint  `json:"organization_id,omitempty"`
}

// VerifyCodeRequest represents a code verification request
type VerifyCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// UpdateMeRequest represents a profile update
type UpdateMeRequest struct {
	Name string `json:"name" binding:"required"`
}

// RequestCode handles POST /api/auth/request-code
func (h *AuthHandlers) RequestCode(c *gin.Context) {
	var req RequestCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authSvc.RequestCode(c.Request.Context(), domain.RequestCodeInput{
		Phone:          req.Phone,
		Email:          req.Email,
		Name:           req.Name,
		Role:           req.Role,
		OrganizationID: req.OrganizationID,
		IP:             c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	switch result.Outcome {
	case domain.OutcomeTooSoon:
		tooManyRequests(c, "CODE_TOO_SOON", result.RetryAfter)
		return
	case domain.OutcomeRateLimited:
		tooManyRequests(c, string(result.Rule), result.RetryAfter)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"delivery": result.Delivery,
		"masked":   result.MaskedRecipient,
	})
}

// VerifyCode handles POST /api/auth/verify-code
func (h *AuthHandlers) VerifyCode(c *gin.Context) {
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authSvc.VerifyCode(c.Request.Context(), domain.VerifyCodeInput{
		Phone: req.Phone,
		Code:  req.Code,
		IP:    c.ClientIP(),
	})
	if err != nil {
		// An unparseable phone can never hold a code, so it fails like a wrong code
		if status, _ := errorResponse(err); status == http.StatusBadRequest || status == http.StatusUnauthorized {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired code"})
			return
		}
		writeError(c, err)
		return
	}
	if result.Denied != nil {
		tooManyRequests(c, string(result.Denied.Rule), result.Denied.RetryAfter)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"driver":        result.Driver.Summarize(),
		"session_token": result.SessionToken,
	})
}

// Logout handles POST /api/auth/logout. Unknown or missing tokens still succeed.
func (h *AuthHandlers) Logout(c *gin.Context) {
	if token := middleware.BearerToken(c); token != "" {
		if err := h.authSvc.Logout(c.Request.Context(), token); err != nil {
			h.logger.Error("logout failed", zap.Error(err))
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me handles GET /api/me
func (h *AuthHandlers) Me(c *gin.Context) {
	driver, ok := middleware.DriverFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":              driver.ID,
		"phone":           driver.Phone,
		"name":            driver.Name,
		"role":            driver.Role,
		"email":           driver.Email,
		"group_tag":       driver.GroupTag,
		"organization_id": driver.OrganizationID,
		"approved":        driver.Approved,
	})
}

// UpdateMe handles POST /api/me
func (h *AuthHandlers) UpdateMe(c *gin.Context) {
	driver, ok := middleware.DriverFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.authSvc.UpdateName(c.Request.Context(), driver.ID, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "name": updated.Name})
}

// LookupDriver handles GET /api/drivers/lookup. A live session identifies
// the caller outright; otherwise a driver_id query yields a reduced-trust answer.
func (h *AuthHandlers) LookupDriver(c *gin.Context) {
	if driver, ok := middleware.DriverFrom(c); ok {
		c.JSON(http.StatusOK, gin.H{"driver": driver.Summarize(), "trust": "session"})
		return
	}

	raw := c.Query("driver_id")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver_id"})
		return
	}

	driver, err := h.authSvc.FindDriver(c.Request.Context(), uint(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"driver": driver.Summarize(), "trust": "reduced"})
}

func tooManyRequests(c *gin.Context, code string, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       code,
		"retry_after": retryAfter,
	})
}
