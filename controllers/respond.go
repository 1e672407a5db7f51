package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"clinica-backend/security"
	"clinica-backend/services"
	"clinica-backend/store"
)

// respondServiceError maps service-layer errors to the HTTP contract.
// Credential failures and lockouts share one generic 401 body so the
// response never reveals which check failed or whether the account exists.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrAccountLocked):
		security.SendError(c, http.StatusUnauthorized, security.CodeInvalidCredentials,
			"Credenciales inválidas", "", nil)
	case errors.Is(err, services.ErrUnauthenticated),
		errors.Is(err, security.ErrTokenInvalid),
		errors.Is(err, security.ErrTokenExpired):
		security.SendError(c, http.StatusUnauthorized, security.CodeInvalidToken,
			"Token inválido o expirado", "", nil)
	case errors.Is(err, services.ErrForbidden):
		security.SendError(c, http.StatusForbidden, security.CodeInsufficientPermissions,
			"Acceso prohibido", "", nil)
	case errors.Is(err, services.ErrSelfAction):
		security.SendError(c, http.StatusForbidden, security.CodeSelfActionDenied,
			"No puede realizar esta operación sobre su propia cuenta", "", nil)
	case errors.Is(err, services.ErrInvalidRole):
		security.SendValidationError(c, "Rol no válido", nil)
	case errors.Is(err, store.ErrNotFound):
		security.SendError(c, http.StatusNotFound, security.CodeResourceNotFound,
			"Usuario no encontrado", "", nil)
	case errors.Is(err, store.ErrDuplicateEmail):
		security.SendError(c, http.StatusConflict, security.CodeDuplicateEmail,
			"Ya existe un usuario con ese email", "", nil)
	case errors.Is(err, store.ErrUnavailable):
		security.SendError(c, http.StatusServiceUnavailable, security.CodeServiceUnavailable,
			"Servicio no disponible", "Intente nuevamente más tarde", nil)
	default:
		security.SendError(c, http.StatusInternalServerError, security.CodeDatabaseError,
			"Error en el servidor", "", nil)
	}
}
