package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/internal/http/handlers"
	"github.com/Tsipchain/driver-platform/internal/http/middleware"
)

// Handlers groups every HTTP handler set the router mounts
type Handlers struct {
	Auth     *handlers.AuthHandlers
	Trials   *handlers.TrialHandlers
	Operator *handlers.OperatorHandlers
	Policies *handlers.PolicyHandlers
}

// BuildRouter mounts the driver, trial and operator routes on a new engine.
// Driver routes resolve the bearer session; operator routes resolve the
// operator scope and check the casbin policy.
func BuildRouter(h Handlers, sessions *middleware.SessionAuthMW, ops *middleware.OperatorMW, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/request-code", h.Auth.RequestCode)
	auth.POST("/verify-code", h.Auth.VerifyCode)
	auth.POST("/logout", h.Auth.Logout)

	me := api.Group("/me").Use(sessions.RequireDriver())
	me.GET("", h.Auth.Me)
	me.POST("", h.Auth.UpdateMe)

	api.GET("/drivers/lookup", sessions.OptionalDriver(), h.Auth.LookupDriver)
	api.POST("/trials/create", h.Trials.Create)

	op := api.Group("/operator").Use(ops.Enforce())
	op.GET("/pending-drivers", h.Operator.PendingDrivers)
	op.POST("/drivers/:id/approve", h.Operator.ApproveDriver)

	adm := api.Group("/admin").Use(ops.Enforce())
	adm.POST("/operator-tokens", h.Operator.IssueToken)
	adm.GET("/policies", h.Policies.List)
	adm.POST("/policies", h.Policies.Add)
	adm.DELETE("/policies", h.Policies.Remove)

	return r
}
