package security

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinica-backend/models"
	"clinica-backend/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	claims *SessionClaims
	err    error
}

func (v *stubVerifier) VerifyToken(ctx context.Context, token string) (*SessionClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func protectedRouter(verifier ClaimsVerifier, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthMiddleware(verifier)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		claims, _ := CurrentClaims(c)
		c.JSON(http.StatusOK, gin.H{"id": claims.ID})
	})
	r.GET("/recurso", handlers...)
	return r
}

func doGet(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/recurso", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	r := protectedRouter(&stubVerifier{err: ErrTokenInvalid})

	w := doGet(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), CodeMissingToken)
}

func TestAuthMiddlewareInvalidToken(t *testing.T) {
	r := protectedRouter(&stubVerifier{err: ErrTokenInvalid})

	w := doGet(r, "basura")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), CodeInvalidToken)
}

// A store outage during verification must answer 503, never let the
// request through and never claim the token itself was bad.
func TestAuthMiddlewareStoreUnavailable(t *testing.T) {
	r := protectedRouter(&stubVerifier{err: fmt.Errorf("consultando sesión: %w", store.ErrUnavailable)})

	w := doGet(r, "token-valido")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthMiddlewarePassesClaims(t *testing.T) {
	r := protectedRouter(&stubVerifier{claims: &SessionClaims{ID: 42, Rol: models.RolDoctor}})

	w := doGet(r, "token-valido")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "42")
}

func TestRequireRole(t *testing.T) {
	admin := &stubVerifier{claims: &SessionClaims{ID: 1, Rol: models.RolAdmin}}
	doctor := &stubVerifier{claims: &SessionClaims{ID: 2, Rol: models.RolDoctor}}

	w := doGet(protectedRouter(admin, RequireRole(models.RolAdmin)), "t")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doGet(protectedRouter(doctor, RequireRole(models.RolAdmin)), "t")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doGet(protectedRouter(doctor, RequireRole(models.RolAdmin, models.RolDoctor)), "t")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermissionReadsStoreFresh(t *testing.T) {
	st := store.NewMemoryStore()
	u := &models.Usuario{
		Email:    "admin@clinica.com",
		Rol:      models.RolAdmin,
		Permisos: []string{"usuarios.ver"},
		Activo:   true,
	}
	require.NoError(t, st.Create(context.Background(), u))

	verifier := &stubVerifier{claims: &SessionClaims{ID: u.ID, Rol: models.RolAdmin}}
	r := protectedRouter(verifier, RequirePermission(st, "usuarios.ver"))

	w := doGet(r, "t")
	assert.Equal(t, http.StatusOK, w.Code)

	// Revoking the permission takes effect on the very next request, with
	// the same still-valid token.
	require.NoError(t, st.UpdatePermissions(context.Background(), u.ID, []string{}, models.RolAdmin))
	w = doGet(r, "t")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermissionInactiveAccount(t *testing.T) {
	st := store.NewMemoryStore()
	u := &models.Usuario{
		Email:    "admin@clinica.com",
		Rol:      models.RolAdmin,
		Permisos: []string{"usuarios.ver"},
		Activo:   true,
	}
	require.NoError(t, st.Create(context.Background(), u))
	razon := "Desactivado por administrador"
	require.NoError(t, st.SetLock(context.Background(), u.ID, false, nil, &razon))

	verifier := &stubVerifier{claims: &SessionClaims{ID: u.ID, Rol: models.RolAdmin}}
	w := doGet(protectedRouter(verifier, RequirePermission(st, "usuarios.ver")), "t")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermissionUnknownAccount(t *testing.T) {
	st := store.NewMemoryStore()
	verifier := &stubVerifier{claims: &SessionClaims{ID: 99, Rol: models.RolAdmin}}

	w := doGet(protectedRouter(verifier, RequirePermission(st, "usuarios.ver")), "t")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), CodeUserNotFoundOrInactive)
}
