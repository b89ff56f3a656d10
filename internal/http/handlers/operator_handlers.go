package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
	"github.com/Tsipchain/driver-platform/internal/http/middleware"
)

// OperatorHandlers handles scoped driver management and operator credentials
type OperatorHandlers struct {
	operatorSvc domain.OperatorService
	resolver    domain.ScopeResolver
	logger      *zap.Logger
}

// NewOperatorHandlers creates new operator handlers
func NewOperatorHandlers(operatorSvc domain.OperatorService, resolver domain.ScopeResolver, logger *zap.Logger) *OperatorHandlers {
	return &OperatorHandlers{operatorSvc: operatorSvc, resolver: resolver, logger: logger}
}

// IssueTokenRequest represents an operator token request
type IssueTokenRequest struct {
	Role           string `json:"role" binding:"required"`
	GroupTag       string `json:"group_tag,omitempty"`
	OrganizationID *uint  `json:"organization_id,omitempty"`
	TTLHours       int    `json:"ttl_hours,omitempty" binding:"gte=0"`
}

// PendingDrivers handles GET /api/operator/pending-drivers
func (h *OperatorHandlers) PendingDrivers(c *gin.Context) {
	scope, ok := middleware.ScopeFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	drivers, err := h.operatorSvc.PendingDrivers(c.Request.Context(), scope, c.Query("group_tag"), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]gin.H, 0, len(drivers))
	for _, d := range drivers {
		items = append(items, gin.H{
			"id":              d.ID,
			"name":            d.Name,
			"phone":           d.Phone,
			"group_tag":       d.GroupTag,
			"organization_id": d.OrganizationID,
			"approved":        d.Approved,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ApproveDriver handles POST /api/operator/drivers/:id/approve
func (h *OperatorHandlers) ApproveDriver(c *gin.Context) {
	scope, ok := middleware.ScopeFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver id"})
		return
	}

	driver, err := h.operatorSvc.ApproveDriver(c.Request.Context(), scope, uint(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "driver_id": driver.ID, "approved": driver.Approved})
}

// IssueToken handles POST /api/admin/operator-tokens. The raw token is only
// ever returned here.
func (h *OperatorHandlers) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ttl := time.Duration(req.TTLHours) * time.Hour
	raw, token, err := h.resolver.IssueToken(c.Request.Context(), req.Role, req.GroupTag, req.OrganizationID, ttl)
	if err != nil {
		writeError(c, err)
		return
	}

	h.logger.Info("operator token issued", zap.Uint("token_id", token.ID), zap.String("role", token.Role))
	c.JSON(http.StatusCreated, gin.H{
		"token":           raw,
		"id":              token.ID,
		"role":            token.Role,
		"group_tag":       token.GroupTag,
		"organization_id": token.OrganizationID,
		"expires_at":      token.ExpiresAt,
	})
}
