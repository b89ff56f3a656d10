package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tsipchain/driver-platform/domain"
)

// errorResponse maps a service error to a status and a client-safe message.
// Unknown errors become 500 without leaking their text.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidPhone):
		return http.StatusBadRequest, "Invalid phone"
	case errors.Is(err, domain.ErrInvalidOrganization):
		return http.StatusBadRequest, "Invalid organization"
	case errors.Is(err, domain.ErrMissingField):
		return http.StatusBadRequest, "Missing required field"
	case errors.Is(err, domain.ErrInvalidRole):
		return http.StatusBadRequest, "Invalid role"
	case errors.Is(err, domain.ErrInvalidScope):
		return http.StatusBadRequest, "Operator tokens need a group tag or organization"
	case errors.Is(err, domain.ErrInvalidOrExpired):
		return http.StatusUnauthorized, "Invalid or expired code"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, domain.ErrDriverNotFound):
		return http.StatusNotFound, "Driver not found"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func writeError(c *gin.Context, err error) {
	status, msg := errorResponse(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg})
}
