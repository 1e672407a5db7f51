package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinica-backend/audit"
	"clinica-backend/controllers"
	"clinica-backend/models"
	"clinica-backend/routes"
	"clinica-backend/security"
	"clinica-backend/services"
	"clinica-backend/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	recorder := audit.NewRecorder(st)
	authSvc := services.NewAuthService(st, security.NewTokenManager("secreto-de-prueba"),
		mailerStub{}, recorder, services.AuthConfig{
			FrontendURL: "http://localhost:3000",
			AdminEmail:  "admin@clinica.com",
		})
	adminSvc := services.NewAdminService(st, recorder)

	r := gin.New()
	routes.AuthRoutes(r.Group("/api/auth"), controllers.NewAuthController(authSvc, st), authSvc)
	routes.AdminRoutes(r.Group("/api/admin"), controllers.NewAdminController(adminSvc), authSvc, st)
	return &testServer{router: r, store: st}
}

type mailerStub struct{}

func (mailerStub) Send(to, subject, body string) error { return nil }

func (s *testServer) seed(t *testing.T, email, password, rol string) *models.Usuario {
	t.Helper()
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	u := &models.Usuario{
		Email:        email,
		PasswordHash: hash,
		Nombre:       "Ana",
		Apellido:     "García",
		Rol:          rol,
		Permisos:     models.DefaultPermisos(rol),
		Activo:       true,
	}
	require.NoError(t, s.store.Create(context.Background(), u))
	return u
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	w := s.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "doctor@clinica.com", "password": "secreto123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
	assert.Equal(t, "doctor@clinica.com", resp["email"])
	assert.Equal(t, models.RolDoctor, resp["rol"])
	assert.NotContains(t, resp, "password_hash")
}

func TestLoginValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "no-es-email", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "a@b.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// Wrong password, unknown account and locked account all answer the same
// generic 401 body.
func TestLoginGenericUnauthorizedBody(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	wrong := s.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "doctor@clinica.com", "password": "incorrecta",
	})
	unknown := s.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "nadie@clinica.com", "password": "incorrecta",
	})
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())

	// Two more failures lock the account; the correct password then gets
	// the identical response.
	s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "doctor@clinica.com", "password": "incorrecta"})
	s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "doctor@clinica.com", "password": "incorrecta"})
	locked := s.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "doctor@clinica.com", "password": "secreto123",
	})
	require.Equal(t, http.StatusUnauthorized, locked.Code)
	assert.JSONEq(t, wrong.Body.String(), locked.Body.String())
}

func TestVerifyEndpoint(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)
	token := s.login(t, "doctor@clinica.com", "secreto123")

	w := s.do(http.MethodGet, "/api/auth/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "doctor@clinica.com")

	// Deactivation invalidates the still-unexpired token.
	razon := "Desactivado por administrador"
	require.NoError(t, s.store.SetLock(context.Background(), u.ID, false, nil, &razon))
	w = s.do(http.MethodGet, "/api/auth/verify", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyWithoutToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/auth/verify", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestForgotPasswordAlwaysAnswers200(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	known := s.do(http.MethodPost, "/api/auth/forgot-password", "", gin.H{"email": "doctor@clinica.com"})
	unknown := s.do(http.MethodPost, "/api/auth/forgot-password", "", gin.H{"email": "nadie@clinica.com"})

	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())
}

func TestResetPasswordEndpoint(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	s.do(http.MethodPost, "/api/auth/forgot-password", "", gin.H{"email": "doctor@clinica.com"})
	got, err := s.store.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResetToken)

	w := s.do(http.MethodPost, "/api/auth/reset-password", "", gin.H{
		"token": *got.ResetToken, "nuevaPassword": "corta",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/reset-password", "", gin.H{
		"token": *got.ResetToken, "nuevaPassword": "nuevaClave123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	s.login(t, "doctor@clinica.com", "nuevaClave123")

	// Consumed token no longer works.
	w = s.do(http.MethodPost, "/api/auth/reset-password", "", gin.H{
		"token": *got.ResetToken, "nuevaPassword": "otraClave123",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)
	token := s.login(t, "doctor@clinica.com", "secreto123")

	w := s.do(http.MethodPost, "/api/auth/change-password", token, gin.H{
		"currentPassword": "incorrecta", "nuevaPassword": "nuevaClave123",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/change-password", token, gin.H{
		"currentPassword": "secreto123", "nuevaPassword": "nuevaClave123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	s.login(t, "doctor@clinica.com", "nuevaClave123")
}

func TestRequestAccessEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	w := s.do(http.MethodPost, "/api/auth/request-access", "", gin.H{
		"name": "Juan Pérez", "email": "juan@clinica.com", "role": "medico",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/auth/request-access", "", gin.H{
		"name": "Juan Pérez", "email": "doctor@clinica.com", "role": "medico",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)
	token := s.login(t, "doctor@clinica.com", "secreto123")

	w := s.do(http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Stateless sessions: the token keeps working until it expires.
	w = s.do(http.MethodGet, "/api/auth/verify", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/auth/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
