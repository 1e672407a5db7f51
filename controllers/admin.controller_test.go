package controllers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gin-gonic/gin"

	"clinica-backend/models"
)

func adminServer(t *testing.T) (*testServer, string) {
	t.Helper()
	s := newTestServer(t)
	s.seed(t, "admin@clinica.com", "secreto123", models.RolAdmin)
	return s, s.login(t, "admin@clinica.com", "secreto123")
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	s, _ := adminServer(t)
	s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)
	doctorToken := s.login(t, "doctor@clinica.com", "secreto123")

	w := s.do(http.MethodGet, "/api/admin/usuarios", doctorToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/admin/usuarios", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminListUsers(t *testing.T) {
	s, token := adminServer(t)
	s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	w := s.do(http.MethodGet, "/api/admin/usuarios?estado=todos", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Usuarios   []models.Usuario `json:"usuarios"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Pagination.Total)
	// The password hash never serializes.
	assert.NotContains(t, w.Body.String(), "password_hash")
}

func TestAdminCreateUser(t *testing.T) {
	s, token := adminServer(t)

	w := s.do(http.MethodPost, "/api/admin/usuarios", token, gin.H{
		"email":    "nuevo@clinica.com",
		"password": "inicial123",
		"nombre":   "Nuevo",
		"apellido": "Doctor",
		"rol":      "medico",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"rol":"doctor"`)

	// Duplicate email answers 409.
	w = s.do(http.MethodPost, "/api/admin/usuarios", token, gin.H{
		"email":    "nuevo@clinica.com",
		"password": "inicial123",
		"nombre":   "Nuevo",
		"apellido": "Doctor",
		"rol":      "doctor",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	s.login(t, "nuevo@clinica.com", "inicial123")
}

func TestAdminSelfLockRejected(t *testing.T) {
	s, token := adminServer(t)
	admin, err := s.store.FindByEmail(context.Background(), "admin@clinica.com")
	require.NoError(t, err)

	w := s.do(http.MethodPut, fmt.Sprintf("/api/admin/usuarios/%d/bloqueo", admin.ID), token, gin.H{
		"bloquear": true,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminLockAndUnlockUser(t *testing.T) {
	s, token := adminServer(t)
	doctor := s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	w := s.do(http.MethodPut, fmt.Sprintf("/api/admin/usuarios/%d/bloqueo", doctor.ID), token, gin.H{
		"bloquear": true, "razon": "Revisión de seguridad",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The locked account cannot log in; the response stays generic.
	locked := s.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "doctor@clinica.com", "password": "secreto123",
	})
	assert.Equal(t, http.StatusUnauthorized, locked.Code)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/admin/usuarios/%d/bloqueo", doctor.ID), token, gin.H{
		"bloquear": false,
	})
	require.Equal(t, http.StatusOK, w.Code)

	s.login(t, "doctor@clinica.com", "secreto123")
}

func TestAdminToggleLockValidation(t *testing.T) {
	s, token := adminServer(t)
	doctor := s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	w := s.do(http.MethodPut, fmt.Sprintf("/api/admin/usuarios/%d/bloqueo", doctor.ID), token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/admin/usuarios/abc/bloqueo", token, gin.H{"bloquear": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/admin/usuarios/999/bloqueo", token, gin.H{"bloquear": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminUpdatePermissions(t *testing.T) {
	s, token := adminServer(t)
	doctor := s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	w := s.do(http.MethodPut, fmt.Sprintf("/api/admin/usuarios/%d/permisos", doctor.ID), token, gin.H{
		"permisos": []string{"pacientes.ver"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, err := s.store.FindByID(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"pacientes.ver"}, got.Permisos)
}

// Revoking usuarios.ver cuts off the list endpoint on the next request,
// even though the session token still carries the admin role.
func TestAdminPermissionRevocationTakesEffectImmediately(t *testing.T) {
	s, token := adminServer(t)

	w := s.do(http.MethodGet, "/api/admin/usuarios", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	admin, err := s.store.FindByEmail(context.Background(), "admin@clinica.com")
	require.NoError(t, err)
	require.NoError(t, s.store.UpdatePermissions(context.Background(), admin.ID,
		[]string{"usuarios.crear"}, models.RolAdmin))

	w = s.do(http.MethodGet, "/api/admin/usuarios", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminResetUserPassword(t *testing.T) {
	s, token := adminServer(t)
	doctor := s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	w := s.do(http.MethodPut, fmt.Sprintf("/api/admin/usuarios/%d/password-reset", doctor.ID), token, gin.H{
		"nuevaPassword": "asignada123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "passwordTemporal")

	s.login(t, "doctor@clinica.com", "asignada123")
}

func TestAdminResetUserPasswordTemporary(t *testing.T) {
	s, token := adminServer(t)
	doctor := s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	w := s.do(http.MethodPut, fmt.Sprintf("/api/admin/usuarios/%d/password-reset", doctor.ID), token, gin.H{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		PasswordTemporal string `json:"passwordTemporal"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.PasswordTemporal, 8)

	s.login(t, "doctor@clinica.com", resp.PasswordTemporal)
}

func TestAdminDeactivateUser(t *testing.T) {
	s, token := adminServer(t)
	doctor := s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)

	w := s.do(http.MethodDelete, fmt.Sprintf("/api/admin/usuarios/%d", doctor.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := s.store.FindByID(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.False(t, got.Activo)

	admin, err := s.store.FindByEmail(context.Background(), "admin@clinica.com")
	require.NoError(t, err)
	w = s.do(http.MethodDelete, fmt.Sprintf("/api/admin/usuarios/%d", admin.ID), token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminDashboardAndAuditLogs(t *testing.T) {
	s, token := adminServer(t)
	s.seed(t, "doctor@clinica.com", "secreto123", models.RolDoctor)
	s.login(t, "doctor@clinica.com", "secreto123")

	w := s.do(http.MethodGet, "/api/admin/dashboard/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stats")

	w = s.do(http.MethodGet, "/api/admin/logs/auditoria?tipo=login", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Logs []struct {
			Tipo string `json:"tipo_evento"`
		} `json:"logs"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// Both the admin's and the doctor's logins were recorded.
	assert.GreaterOrEqual(t, resp.Pagination.Total, 2)
	for _, l := range resp.Logs {
		assert.Equal(t, "login", l.Tipo)
	}
}
