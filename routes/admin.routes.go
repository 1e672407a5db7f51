package routes

import (
	"github.com/gin-gonic/gin"

	"clinica-backend/controllers"
	"clinica-backend/models"
	"clinica-backend/security"
)

// AdminRoutes wires the user-administration surface. Every endpoint sits
// behind the bearer check plus the coarse admin-role gate; mutations add
// the fine-grained permission gate, which re-reads the store per request.
func AdminRoutes(rg *gin.RouterGroup, ctrl *controllers.AdminController, verifier security.ClaimsVerifier, accounts security.AccountLookup) {
	rg.Use(security.AuthMiddleware(verifier))
	rg.Use(security.RequireRole(models.RolAdmin))

	rg.GET("/dashboard/stats", ctrl.DashboardStats)
	rg.GET("/logs/auditoria", ctrl.AuditLogs)

	rg.GET("/usuarios", security.RequirePermission(accounts, "usuarios.ver"), ctrl.ListUsers)
	rg.POST("/usuarios", security.RequirePermission(accounts, "usuarios.crear"), ctrl.CreateUser)
	rg.PUT("/usuarios/:id/permisos", security.RequirePermission(accounts, "usuarios.editar"), ctrl.UpdatePermissions)
	rg.PUT("/usuarios/:id/bloqueo", security.RequirePermission(accounts, "usuarios.editar"), ctrl.ToggleLock)
	rg.PUT("/usuarios/:id/password-reset", security.RequirePermission(accounts, "usuarios.editar"), ctrl.ResetPassword)
	rg.DELETE("/usuarios/:id", security.RequirePermission(accounts, "usuarios.eliminar"), ctrl.DeactivateUser)
}
