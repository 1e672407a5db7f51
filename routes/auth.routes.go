package routes

import (
	"github.com/gin-gonic/gin"

	"clinica-backend/controllers"
	"clinica-backend/security"
)

func AuthRoutes(rg *gin.RouterGroup, ctrl *controllers.AuthController, verifier security.ClaimsVerifier) {
	// Health check endpoint
	rg.GET("/health", ctrl.HealthCheck)

	// Public endpoints
	rg.POST("/login", ctrl.Login)
	rg.POST("/forgot-password", ctrl.ForgotPassword)
	rg.POST("/reset-password", ctrl.ResetPassword)
	rg.POST("/request-access", ctrl.RequestAccess)

	// Protected endpoints (all authenticated users)
	protected := rg.Group("")
	protected.Use(security.AuthMiddleware(verifier))
	{
		protected.GET("/verify", ctrl.Verify)
		protected.POST("/logout", ctrl.Logout)
		protected.POST("/change-password", ctrl.ChangePassword)
	}
}
