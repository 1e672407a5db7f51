package security

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clinica-backend/models"
	"clinica-backend/store"
)

// ClaimsContextKey is where AuthMiddleware leaves the verified claims.
const ClaimsContextKey = "auth_claims"

// ClaimsVerifier re-validates a bearer token and confirms the account
// behind it is still active. Implemented by the authentication service.
type ClaimsVerifier interface {
	VerifyToken(ctx context.Context, token string) (*SessionClaims, error)
}

// AccountLookup is the read side the permission gate needs for its live
// check against the credential store.
type AccountLookup interface {
	FindByID(ctx context.Context, id int) (*models.Usuario, error)
}

// AuthMiddleware authenticates the bearer token on every protected
// request. Store outages surface as 503, never as a silent pass.
func AuthMiddleware(verifier ClaimsVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.GetHeader("Authorization")
		if tokenStr == "" {
			SendError(c, http.StatusUnauthorized, CodeMissingToken, "Autenticación requerida",
				"Debe incluir un token de autorización en la petición", nil)
			c.Abort()
			return
		}
		tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")

		claims, err := verifier.VerifyToken(c.Request.Context(), tokenStr)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				SendError(c, http.StatusServiceUnavailable, CodeAuthVerificationError, "Servicio no disponible",
					"No se pudo verificar la sesión. Intente nuevamente más tarde", nil)
			} else {
				SendError(c, http.StatusUnauthorized, CodeInvalidToken, "Token inválido o expirado",
					"Inicie sesión nuevamente para obtener un nuevo token", nil)
			}
			c.Abort()
			return
		}

		c.Set(ClaimsContextKey, claims)
		c.Set("user_id", claims.ID)
		c.Next()
	}
}

// CurrentClaims returns the claims AuthMiddleware stored for this request.
func CurrentClaims(c *gin.Context) (*SessionClaims, bool) {
	v, ok := c.Get(ClaimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*SessionClaims)
	return claims, ok
}

// RequireRole gates on the role cached in the token claims. This is the
// cheap, slightly stale-tolerant tier; permission changes mid-session are
// caught by RequirePermission.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			SendError(c, http.StatusUnauthorized, CodeMissingToken, "No autenticado",
				"Se requiere autenticación para acceder a este recurso", nil)
			c.Abort()
			return
		}
		for _, rol := range roles {
			if claims.Rol == rol {
				c.Next()
				return
			}
		}
		SendError(c, http.StatusForbidden, CodeInsufficientPermissions, "Acceso denegado",
			"No tiene permisos para acceder a este recurso", nil)
		c.Abort()
	}
}

// RequirePermission gates on the account's current permission set with a
// fresh store lookup on every request. Token claims are deliberately not
// trusted here: a permission revoked mid-session must take effect on the
// very next request.
func RequirePermission(accounts AccountLookup, permiso string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			SendError(c, http.StatusUnauthorized, CodeMissingToken, "No autenticado",
				"Se requiere autenticación para acceder a este recurso", nil)
			c.Abort()
			return
		}

		u, err := accounts.FindByID(c.Request.Context(), claims.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				SendError(c, http.StatusUnauthorized, CodeUserNotFoundOrInactive, "Usuario no válido",
					"La cuenta no existe o fue desactivada", nil)
			} else {
				SendError(c, http.StatusServiceUnavailable, CodePermissionCheckError, "Servicio no disponible",
					"No se pudieron verificar los permisos. Intente nuevamente más tarde", nil)
			}
			c.Abort()
			return
		}

		if !u.Activo || !u.TienePermiso(permiso) {
			SendError(c, http.StatusForbidden, CodeInsufficientPermissions, "Acceso denegado",
				"No tiene el permiso requerido para esta operación", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CORSMiddleware mirrors the frontend's expectations for local development.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowOrigin := "*"
		if origin != "" {
			allowOrigin = origin
		}

		c.Header("Access-Control-Allow-Origin", allowOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
