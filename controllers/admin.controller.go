package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"clinica-backend/security"
	"clinica-backend/services"
	"clinica-backend/store"
)

type AdminController struct {
	admin *services.AdminService
}

func NewAdminController(admin *services.AdminService) *AdminController {
	return &AdminController{admin: admin}
}

func targetID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		security.SendValidationError(c, "ID de usuario inválido", nil)
		return 0, false
	}
	return id, true
}

func actorClaims(c *gin.Context) (*security.SessionClaims, bool) {
	claims, ok := security.CurrentClaims(c)
	if !ok {
		respondServiceError(c, services.ErrUnauthenticated)
		return nil, false
	}
	return claims, true
}

func (ctrl *AdminController) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter := store.ListFilter{
		Search: c.Query("search"),
		Rol:    c.Query("rol"),
		Estado: c.DefaultQuery("estado", "todos"),
		Page:   page,
		Limit:  limit,
	}

	usuarios, total, err := ctrl.admin.ListUsers(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	c.JSON(http.StatusOK, gin.H{
		"usuarios": usuarios,
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}

type CreateUserInput struct {
	Email    string   `json:"email" binding:"required,email"`
	Password string   `json:"password" binding:"required,min=8"`
	Nombre   string   `json:"nombre" binding:"required"`
	Apellido string   `json:"apellido" binding:"required"`
	Rol      string   `json:"rol" binding:"required"`
	Permisos []string `json:"permisos"`
}

func (ctrl *AdminController) CreateUser(c *gin.Context) {
	claims, ok := actorClaims(c)
	if !ok {
		return
	}

	var input CreateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendValidationError(c, "Todos los campos obligatorios deben ser completados", nil)
		return
	}

	u, err := ctrl.admin.CreateUser(c.Request.Context(), claims, services.CreateUserInput{
		Email:    input.Email,
		Password: input.Password,
		Nombre:   input.Nombre,
		Apellido: input.Apellido,
		Rol:      input.Rol,
		Permisos: input.Permisos,
	}, requestMeta(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Usuario creado exitosamente",
		"usuario": u,
	})
}

type UpdatePermissionsInput struct {
	Permisos []string `json:"permisos"`
	Rol      string   `json:"rol"`
}

func (ctrl *AdminController) UpdatePermissions(c *gin.Context) {
	claims, ok := actorClaims(c)
	if !ok {
		return
	}
	id, ok := targetID(c)
	if !ok {
		return
	}

	var input UpdatePermissionsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendValidationError(c, "Cuerpo de la petición inválido", nil)
		return
	}

	u, err := ctrl.admin.UpdatePermissions(c.Request.Context(), claims, id, input.Permisos, input.Rol, requestMeta(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Permisos actualizados exitosamente",
		"usuario": gin.H{
			"id":       u.ID,
			"email":    u.Email,
			"nombre":   u.Nombre,
			"apellido": u.Apellido,
			"rol":      u.Rol,
			"permisos": u.Permisos,
		},
	})
}

type ToggleLockInput struct {
	Bloquear *bool  `json:"bloquear" binding:"required"`
	Razon    string `json:"razon"`
}

func (ctrl *AdminController) ToggleLock(c *gin.Context) {
	claims, ok := actorClaims(c)
	if !ok {
		return
	}
	id, ok := targetID(c)
	if !ok {
		return
	}

	var input ToggleLockInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendValidationError(c, "El campo bloquear es requerido", nil)
		return
	}

	u, err := ctrl.admin.SetLock(c.Request.Context(), claims, id, *input.Bloquear, input.Razon, requestMeta(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	message := "Usuario desbloqueado exitosamente"
	if *input.Bloquear {
		message = "Usuario bloqueado exitosamente"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"usuario": gin.H{
			"id":     u.ID,
			"email":  u.Email,
			"activo": u.Activo,
		},
	})
}

type AdminResetPasswordInput struct {
	NuevaPassword string `json:"nuevaPassword" binding:"omitempty,min=8"`
}

func (ctrl *AdminController) ResetPassword(c *gin.Context) {
	claims, ok := actorClaims(c)
	if !ok {
		return
	}
	id, ok := targetID(c)
	if !ok {
		return
	}

	var input AdminResetPasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		security.SendValidationError(c, "La nueva contraseña debe tener al menos 8 caracteres", nil)
		return
	}

	temporal, err := ctrl.admin.ResetUserPassword(c.Request.Context(), claims, id, input.NuevaPassword, requestMeta(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := gin.H{"message": "Contraseña reseteada exitosamente"}
	if temporal != "" {
		resp["passwordTemporal"] = temporal
	}
	c.JSON(http.StatusOK, resp)
}

func (ctrl *AdminController) DeactivateUser(c *gin.Context) {
	claims, ok := actorClaims(c)
	if !ok {
		return
	}
	id, ok := targetID(c)
	if !ok {
		return
	}

	if err := ctrl.admin.DeactivateUser(c.Request.Context(), claims, id, requestMeta(c)); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Usuario desactivado exitosamente"})
}

func (ctrl *AdminController) DashboardStats(c *gin.Context) {
	stats, actividad, err := ctrl.admin.DashboardStats(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":             stats,
		"actividadReciente": actividad,
	})
}

func (ctrl *AdminController) AuditLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	usuarioID, _ := strconv.Atoi(c.Query("usuario"))

	filter := store.AuditFilter{
		Tipo:      c.Query("tipo"),
		UsuarioID: usuarioID,
		Page:      page,
		Limit:     limit,
	}
	if desde := c.Query("fecha_desde"); desde != "" {
		if t, err := time.Parse(time.RFC3339, desde); err == nil {
			filter.Desde = &t
		}
	}
	if hasta := c.Query("fecha_hasta"); hasta != "" {
		if t, err := time.Parse(time.RFC3339, hasta); err == nil {
			filter.Hasta = &t
		}
	}

	logs, total, err := ctrl.admin.ListAuditLogs(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	c.JSON(http.StatusOK, gin.H{
		"logs": logs,
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}
