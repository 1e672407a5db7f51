package models

import (
	"time"
)

// Canonical roles. The legacy frontend speaks Spanish role names
// ("administrador", "medico", "recepcionista"); CanonicalRole maps them
// at the API boundary so the rest of the system only ever sees these.
const (
	RolAdmin         = "admin"
	RolDoctor        = "doctor"
	RolRecepcionista = "receptionist"
)

var legacyRoles = map[string]string{
	"administrador": RolAdmin,
	"medico":        RolDoctor,
	"recepcionista": RolRecepcionista,
}

// CanonicalRole resolves a role name (canonical or legacy) to its
// canonical form. The second return is false for unknown roles.
func CanonicalRole(rol string) (string, bool) {
	switch rol {
	case RolAdmin, RolDoctor, RolRecepcionista:
		return rol, true
	}
	if canonical, ok := legacyRoles[rol]; ok {
		return canonical, true
	}
	return "", false
}

type Usuario struct {
	ID                  int        `json:"id" db:"id"`
	Email               string     `json:"email" db:"email"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	Nombre              string     `json:"nombre" db:"nombre"`
	Apellido            string     `json:"apellido" db:"apellido"`
	Rol                 string     `json:"rol" db:"rol"`
	Permisos            []string   `json:"permisos" db:"permisos"`
	Activo              bool       `json:"activo" db:"activo"`
	UltimoAcceso        *time.Time `json:"ultimo_acceso" db:"ultimo_acceso"`
	IntentosFallidos    int        `json:"intentos_fallidos" db:"intentos_fallidos"`
	BloqueadoHasta      *time.Time `json:"bloqueado_hasta" db:"bloqueado_hasta"`
	RazonBloqueo        *string    `json:"razon_bloqueo,omitempty" db:"razon_bloqueo"`
	ResetToken          *string    `json:"-" db:"reset_token"`
	ResetTokenExpira    *time.Time `json:"-" db:"reset_token_expira"`
	DebeCambiarPassword bool       `json:"debe_cambiar_password" db:"debe_cambiar_password"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// EstaBloqueado reports whether the account may authenticate right now.
// A bloqueado_hasta in the past unlocks the account implicitly; the stored
// counter and lock fields are only cleared by a successful login or an
// explicit admin unlock.
func (u *Usuario) EstaBloqueado(now time.Time) bool {
	if !u.Activo {
		return true
	}
	return u.BloqueadoHasta != nil && now.Before(*u.BloqueadoHasta)
}

// TienePermiso checks the fine-grained permission set. Callers that gate
// requests must use a freshly loaded Usuario, not token claims.
func (u *Usuario) TienePermiso(permiso string) bool {
	for _, p := range u.Permisos {
		if p == permiso {
			return true
		}
	}
	return false
}

var permisosPorRol = map[string][]string{
	RolAdmin: {
		"usuarios.crear", "usuarios.editar", "usuarios.eliminar", "usuarios.ver",
		"pacientes.crear", "pacientes.editar", "pacientes.eliminar", "pacientes.ver",
		"turnos.crear", "turnos.editar", "turnos.eliminar", "turnos.ver",
		"historiales.crear", "historiales.editar", "historiales.ver",
		"recetas.crear", "recetas.editar", "recetas.ver",
		"reportes.ver", "configuracion.editar",
	},
	RolDoctor: {
		"pacientes.crear", "pacientes.editar", "pacientes.ver",
		"turnos.ver", "turnos.editar",
		"historiales.crear", "historiales.editar", "historiales.ver",
		"recetas.crear", "recetas.editar", "recetas.ver",
	},
	RolRecepcionista: {
		"pacientes.crear", "pacientes.editar", "pacientes.ver",
		"turnos.crear", "turnos.editar", "turnos.ver",
	},
}

// DefaultPermisos returns the permission set a freshly created account of
// the given role starts with. Administrators can override it afterwards.
func DefaultPermisos(rol string) []string {
	defaults, ok := permisosPorRol[rol]
	if !ok {
		return []string{}
	}
	out := make([]string, len(defaults))
	copy(out, defaults)
	return out
}
