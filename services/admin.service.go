package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"clinica-backend/audit"
	"clinica-backend/models"
	"clinica-backend/security"
	"clinica-backend/store"
)

// adminLockDuration applies when an administrator locks an account
// manually, as opposed to the 30 minute automatic lockout.
const adminLockDuration = 24 * time.Hour

// AdminService implements the account-administration operations. Every
// mutation enforces the protected-account rules: admins are only
// modifiable by themselves, and nobody locks, deactivates or demotes
// their own account.
type AdminService struct {
	accounts store.AccountStore
	recorder *audit.Recorder
	now      func() time.Time
}

func NewAdminService(accounts store.AccountStore, recorder *audit.Recorder) *AdminService {
	return &AdminService{accounts: accounts, recorder: recorder, now: time.Now}
}

// CreateUserInput is the admin account-creation payload.
type CreateUserInput struct {
	Email    string
	Password string
	Nombre   string
	Apellido string
	Rol      string
	Permisos []string
}

func (s *AdminService) CreateUser(ctx context.Context, actor *security.SessionClaims, in CreateUserInput, meta audit.Meta) (*models.Usuario, error) {
	rol, ok := models.CanonicalRole(in.Rol)
	if !ok {
		return nil, ErrInvalidRole
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	permisos := in.Permisos
	if permisos == nil {
		permisos = models.DefaultPermisos(rol)
	}

	u := &models.Usuario{
		Email:        NormalizeEmail(in.Email),
		PasswordHash: hash,
		Nombre:       in.Nombre,
		Apellido:     in.Apellido,
		Rol:          rol,
		Permisos:     permisos,
		Activo:       true,
		// First login must replace the admin-chosen password.
		DebeCambiarPassword: true,
	}
	if err := s.accounts.Create(ctx, u); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.EventUsuarioCreado, &actor.ID, actor.Email,
		"Usuario creado: "+u.Email, meta)
	return u, nil
}

// UpdatePermissions replaces the fine-grained permission set and,
// optionally, the role. The change takes effect on the target's very next
// request because permission gates re-read the store.
func (s *AdminService) UpdatePermissions(ctx context.Context, actor *security.SessionClaims, targetID int, permisos []string, rol string, meta audit.Meta) (*models.Usuario, error) {
	u, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if u.Rol == models.RolAdmin && u.ID != actor.ID {
		return nil, ErrForbidden
	}

	newRol := u.Rol
	if rol != "" {
		canonical, ok := models.CanonicalRole(rol)
		if !ok {
			return nil, ErrInvalidRole
		}
		if u.Rol == models.RolAdmin && canonical != models.RolAdmin {
			// Reaching this point means the target is the actor: a
			// self-demotion from admin, which is rejected.
			return nil, ErrSelfAction
		}
		newRol = canonical
	}

	newPermisos := u.Permisos
	if permisos != nil {
		newPermisos = permisos
	}

	if err := s.accounts.UpdatePermissions(ctx, u.ID, newPermisos, newRol); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.EventPermisosEditados, &actor.ID, actor.Email,
		"Permisos actualizados para "+u.Email, meta)
	u.Permisos = newPermisos
	u.Rol = newRol
	return u, nil
}

// SetLock applies or lifts a manual 24 hour lock. Locking deactivates the
// account; unlocking reactivates it and clears the failed-attempt counter.
func (s *AdminService) SetLock(ctx context.Context, actor *security.SessionClaims, targetID int, bloquear bool, razon string, meta audit.Meta) (*models.Usuario, error) {
	u, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if bloquear && u.ID == actor.ID {
		return nil, ErrSelfAction
	}
	if u.Rol == models.RolAdmin && u.ID != actor.ID {
		return nil, ErrForbidden
	}

	if bloquear {
		hasta := s.now().Add(adminLockDuration)
		if razon == "" {
			razon = "Bloqueado por administrador"
		}
		if err := s.accounts.SetLock(ctx, u.ID, false, &hasta, &razon); err != nil {
			return nil, err
		}
		u.Activo = false
		u.BloqueadoHasta = &hasta
		u.RazonBloqueo = &razon
		s.recorder.Record(ctx, audit.EventUsuarioBloqueado, &actor.ID, actor.Email,
			"Usuario bloqueado: "+u.Email, meta)
	} else {
		if err := s.accounts.SetLock(ctx, u.ID, true, nil, nil); err != nil {
			return nil, err
		}
		u.Activo = true
		u.BloqueadoHasta = nil
		u.RazonBloqueo = nil
		u.IntentosFallidos = 0
		s.recorder.Record(ctx, audit.EventUsuarioDesbloqueado, &actor.ID, actor.Email,
			"Usuario desbloqueado: "+u.Email, meta)
	}
	return u, nil
}

// ResetUserPassword sets a new password on the target account. When none
// is supplied a temporary one is generated and returned exactly once. The
// write also clears lockout state and any outstanding reset token.
func (s *AdminService) ResetUserPassword(ctx context.Context, actor *security.SessionClaims, targetID int, nuevaPassword string, meta audit.Meta) (string, error) {
	u, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return "", err
	}

	if u.Rol == models.RolAdmin && u.ID != actor.ID {
		return "", ErrForbidden
	}

	temporal := ""
	password := nuevaPassword
	if password == "" {
		password, err = generarPasswordTemporal()
		if err != nil {
			return "", err
		}
		temporal = password
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return "", err
	}
	if err := s.accounts.UpdatePassword(ctx, u.ID, hash, true); err != nil {
		return "", err
	}

	s.recorder.Record(ctx, audit.EventPasswordReseteado, &actor.ID, actor.Email,
		"Contraseña reseteada para "+u.Email, meta)
	return temporal, nil
}

// DeactivateUser is the soft delete. Accounts are never hard-deleted;
// inactive is the terminal state.
func (s *AdminService) DeactivateUser(ctx context.Context, actor *security.SessionClaims, targetID int, meta audit.Meta) error {
	u, err := s.accounts.FindByID(ctx, targetID)
	if err != nil {
		return err
	}

	if u.ID == actor.ID {
		return ErrSelfAction
	}
	if u.Rol == models.RolAdmin {
		return ErrForbidden
	}

	razon := "Desactivado por administrador"
	if err := s.accounts.SetLock(ctx, u.ID, false, nil, &razon); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.EventUsuarioDesactivado, &actor.ID, actor.Email,
		"Usuario desactivado: "+u.Email, meta)
	return nil
}

func (s *AdminService) ListUsers(ctx context.Context, f store.ListFilter) ([]models.Usuario, int, error) {
	return s.accounts.List(ctx, f)
}

// DashboardStats returns the aggregate counters plus the most recently
// active accounts.
func (s *AdminService) DashboardStats(ctx context.Context) (*store.Stats, []models.Usuario, error) {
	stats, err := s.accounts.Stats(ctx, s.now())
	if err != nil {
		return nil, nil, err
	}
	actividad, err := s.accounts.RecentActivity(ctx, 10)
	if err != nil {
		return nil, nil, err
	}
	return stats, actividad, nil
}

func (s *AdminService) ListAuditLogs(ctx context.Context, f store.AuditFilter) ([]store.AuditEntry, int, error) {
	return s.accounts.ListAuditLogs(ctx, f)
}

const passwordTemporalChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func generarPasswordTemporal() (string, error) {
	out := make([]byte, 8)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordTemporalChars))))
		if err != nil {
			return "", err
		}
		out[i] = passwordTemporalChars[n.Int64()]
	}
	return string(out), nil
}
