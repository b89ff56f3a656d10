package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Tsipchain/driver-platform/domain"
)

// TrialHandlers handles self-service trial signups
type TrialHandlers struct {
	trialSvc domain.TrialService
}

// NewTrialHandlers creates new trial handlers
func NewTrialHandlers(trialSvc domain.TrialService) *TrialHandlers {
	return &TrialHandlers{trialSvc: trialSvc}
}

// CreateTrialRequest represents a trial organization request
type CreateTrialRequest struct {
	Name  string `json:"name" binding:"required"`
	Type  string `json:"type"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone,omitempty"`
}

// Create handles POST /api/trials/create
func (h *TrialHandlers) Create(c *gin.Context) {
	var req CreateTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.trialSvc.CreateTrial(c.Request.Context(), domain.TrialInput{
		Name:  req.Name,
		Type:  req.Type,
		Email: req.Email,
		Phone: req.Phone,
		IP:    c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if !result.Decision.Allowed {
		c.Header("Retry-After", strconv.Itoa(result.Decision.RetryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       result.Decision.Rule,
			"retry_after": result.Decision.RetryAfter,
		})
		return
	}

	org := result.Organization
	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"status":          result.Status,
		"organization_id": org.ID,
		"slug":            org.Slug,
		"default_group":   org.DefaultGroupTag,
		"plan_status":     org.PlanStatus,
		"trial_ends_at":   org.TrialEndsAt,
	})
}
