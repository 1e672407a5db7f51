package store

import (
	"context"
	"errors"
	"time"

	"clinica-backend/models"
)

var (
	// ErrNotFound indicates the requested account does not exist.
	ErrNotFound = errors.New("usuario no encontrado")
	// ErrDuplicateEmail indicates the email already belongs to an account.
	ErrDuplicateEmail = errors.New("email ya registrado")
	// ErrUnavailable indicates the backing store could not be reached in
	// time. Callers must fail closed on it, never treat it as "not found".
	ErrUnavailable = errors.New("almacen de cuentas no disponible")
)

// ListFilter narrows and paginates account listings.
type ListFilter struct {
	Search string
	Rol    string
	Estado string // "todos", "activos" or "inactivos"
	Page   int
	Limit  int
}

// AuditEntry is one row of the auditoria trail.
type AuditEntry struct {
	ID        string     `json:"id"`
	Tipo      string     `json:"tipo_evento"`
	UsuarioID *int       `json:"usuario_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	Detalle   string     `json:"descripcion"`
	IP        string     `json:"ip_address,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// AuditFilter narrows and paginates audit log listings.
type AuditFilter struct {
	Tipo      string
	UsuarioID int
	Desde     *time.Time
	Hasta     *time.Time
	Page      int
	Limit     int
}

// Stats backs the admin dashboard.
type Stats struct {
	TotalUsuarios   int            `json:"totalUsuarios"`
	UsuariosActivos int            `json:"usuariosActivos"`
	UsuariosNuevos  int            `json:"usuariosNuevos"`
	UsuariosPorRol  map[string]int `json:"usuariosPorRol"`
}

// AccountStore is the single shared mutable resource of the system. All
// writes to an account's security fields (lockout counters, reset token,
// password hash) go through here, invoked by the auth or admin services
// only. Implementations must keep per-account read-modify-writes atomic
// so concurrent login attempts never under-count failures.
type AccountStore interface {
	Ping(ctx context.Context) error

	FindByEmail(ctx context.Context, email string) (*models.Usuario, error)
	FindByID(ctx context.Context, id int) (*models.Usuario, error)
	Create(ctx context.Context, u *models.Usuario) error
	List(ctx context.Context, f ListFilter) ([]models.Usuario, int, error)

	// RecordLoginSuccess clears intentos_fallidos and the lock fields and
	// stamps ultimo_acceso.
	RecordLoginSuccess(ctx context.Context, id int, at time.Time) error
	// RecordLoginFailure atomically increments intentos_fallidos and, when
	// the new counter reaches threshold, sets the lock fields. Returns the
	// counter after the increment.
	RecordLoginFailure(ctx context.Context, id, threshold int, lockUntil time.Time, razon string) (int, error)
	// SetLock applies an admin lock/unlock. Unlocking (activo=true with nil
	// hasta) also resets the failed-attempt counter.
	SetLock(ctx context.Context, id int, activo bool, hasta *time.Time, razon *string) error

	// UpdatePassword stores a new hash and clears the reset token and the
	// lockout state; a password change always recovers the account.
	UpdatePassword(ctx context.Context, id int, hash string, debeCambiar bool) error
	UpdatePermissions(ctx context.Context, id int, permisos []string, rol string) error

	SetResetToken(ctx context.Context, id int, token string, expira time.Time) error
	ClearResetToken(ctx context.Context, id int) error

	Stats(ctx context.Context, now time.Time) (*Stats, error)
	RecentActivity(ctx context.Context, limit int) ([]models.Usuario, error)

	InsertAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLogs(ctx context.Context, f AuditFilter) ([]AuditEntry, int, error)
}
