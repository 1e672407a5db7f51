package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clinica-backend/audit"
	"clinica-backend/security"
	"clinica-backend/services"
	"clinica-backend/store"
)

type AuthController struct {
	auth     *services.AuthService
	accounts store.AccountStore
}

func NewAuthController(auth *services.AuthService, accounts store.AccountStore) *AuthController {
	return &AuthController{auth: auth, accounts: accounts}
}

func requestMeta(c *gin.Context) audit.Meta {
	return audit.Meta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// HealthCheck endpoint
func (ctrl *AuthController) HealthCheck(c *gin.Context) {
	if err := ctrl.accounts.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "Database connection failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "clinica-backend",
		"timestamp": time.Now().Unix(),
	})
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (ctrl *AuthController) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendValidationError(c, "Email y contraseña son requeridos", nil)
		return
	}

	result, err := ctrl.auth.Login(c.Request.Context(), input.Email, input.Password, requestMeta(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	u := result.Usuario
	c.JSON(http.StatusOK, gin.H{
		"token":    result.Token,
		"id":       u.ID,
		"email":    u.Email,
		"nombre":   u.Nombre,
		"apellido": u.Apellido,
		"rol":      u.Rol,
	})
}

// Verify runs behind AuthMiddleware; the account's active flag was already
// re-checked there, so this just echoes the verified summary.
func (ctrl *AuthController) Verify(c *gin.Context) {
	claims, ok := security.CurrentClaims(c)
	if !ok {
		respondServiceError(c, services.ErrUnauthenticated)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       claims.ID,
		"email":    claims.Email,
		"nombre":   claims.Nombre,
		"apellido": claims.Apellido,
		"rol":      claims.Rol,
	})
}

type ForgotPasswordInput struct {
	Email string `json:"email" binding:"required,email"`
}

func (ctrl *AuthController) ForgotPassword(c *gin.Context) {
	var input ForgotPasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendValidationError(c, "Email es requerido", nil)
		return
	}

	ctrl.auth.RequestPasswordReset(c.Request.Context(), input.Email, requestMeta(c))

	// Same answer whether or not the account exists.
	c.JSON(http.StatusOK, gin.H{"message": "Si el email existe, recibirás un enlace de recuperación"})
}

type ResetPasswordInput struct {
	Token         string `json:"token" binding:"required"`
	NuevaPassword string `json:"nuevaPassword" binding:"required,min=8"`
}

func (ctrl *AuthController) ResetPassword(c *gin.Context) {
	var input ResetPasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendValidationError(c, "Token y nueva contraseña (mínimo 8 caracteres) son requeridos", nil)
		return
	}

	if err := ctrl.auth.ResetPassword(c.Request.Context(), input.Token, input.NuevaPassword, requestMeta(c)); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contraseña restablecida correctamente"})
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NuevaPassword   string `json:"nuevaPassword" binding:"required,min=8"`
}

func (ctrl *AuthController) ChangePassword(c *gin.Context) {
	claims, ok := security.CurrentClaims(c)
	if !ok {
		respondServiceError(c, services.ErrUnauthenticated)
		return
	}

	var input ChangePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendValidationError(c, "Contraseña actual y nueva (mínimo 8 caracteres) son requeridas", nil)
		return
	}

	if err := ctrl.auth.ChangePassword(c.Request.Context(), claims.ID, input.CurrentPassword, input.NuevaPassword, requestMeta(c)); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contraseña actualizada exitosamente"})
}

type RequestAccessInput struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Role    string `json:"role" binding:"required"`
	Message string `json:"message"`
}

func (ctrl *AuthController) RequestAccess(c *gin.Context) {
	var input RequestAccessInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendValidationError(c, "Nombre, email y rol son requeridos", nil)
		return
	}

	if err := ctrl.auth.RequestAccess(c.Request.Context(), input.Name, input.Email, input.Role, input.Message, requestMeta(c)); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Solicitud enviada correctamente"})
}

// Logout has no server-side effect: session tokens are stateless and the
// client discards its copy. The endpoint documents that contract.
func (ctrl *AuthController) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Sesión cerrada correctamente"})
}
