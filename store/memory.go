package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"clinica-backend/models"
)

// MemoryStore is a mutex-guarded AccountStore used by the test suite and
// by local development without Postgres. Per-account mutations hold the
// store lock, giving the same no-lost-update guarantee as the SQL row lock.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int
	accounts map[int]*models.Usuario
	logs     []AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, accounts: map[int]*models.Usuario{}}
}

func cloneUsuario(u *models.Usuario) *models.Usuario {
	c := *u
	c.Permisos = append([]string{}, u.Permisos...)
	if u.UltimoAcceso != nil {
		t := *u.UltimoAcceso
		c.UltimoAcceso = &t
	}
	if u.BloqueadoHasta != nil {
		t := *u.BloqueadoHasta
		c.BloqueadoHasta = &t
	}
	if u.RazonBloqueo != nil {
		r := *u.RazonBloqueo
		c.RazonBloqueo = &r
	}
	if u.ResetToken != nil {
		t := *u.ResetToken
		c.ResetToken = &t
	}
	if u.ResetTokenExpira != nil {
		t := *u.ResetTokenExpira
		c.ResetTokenExpira = &t
	}
	return &c
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*models.Usuario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.accounts {
		if strings.EqualFold(u.Email, email) {
			return cloneUsuario(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindByID(ctx context.Context, id int) (*models.Usuario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUsuario(u), nil
}

func (s *MemoryStore) Create(ctx context.Context, u *models.Usuario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}
	u.ID = s.nextID
	s.nextID++
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Permisos == nil {
		u.Permisos = []string{}
	}
	s.accounts[u.ID] = cloneUsuario(u)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]models.Usuario, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []models.Usuario{}
	for _, u := range s.accounts {
		if f.Estado == "activos" && !u.Activo {
			continue
		}
		if f.Estado == "inactivos" && u.Activo {
			continue
		}
		if f.Rol != "" && u.Rol != f.Rol {
			continue
		}
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(u.Nombre), q) &&
				!strings.Contains(strings.ToLower(u.Apellido), q) &&
				!strings.Contains(strings.ToLower(u.Email), q) {
				continue
			}
		}
		matched = append(matched, *cloneUsuario(u))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) RecordLoginSuccess(ctx context.Context, id int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	u.UltimoAcceso = &t
	u.IntentosFallidos = 0
	u.BloqueadoHasta = nil
	u.RazonBloqueo = nil
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) RecordLoginFailure(ctx context.Context, id, threshold int, lockUntil time.Time, razon string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.accounts[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.IntentosFallidos++
	if u.IntentosFallidos >= threshold {
		t := lockUntil
		r := razon
		u.BloqueadoHasta = &t
		u.RazonBloqueo = &r
	}
	u.UpdatedAt = time.Now()
	return u.IntentosFallidos, nil
}

func (s *MemoryStore) SetLock(ctx context.Context, id int, activo bool, hasta *time.Time, razon *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	u.Activo = activo
	u.BloqueadoHasta = hasta
	u.RazonBloqueo = razon
	if activo && hasta == nil {
		u.IntentosFallidos = 0
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, id int, hash string, debeCambiar bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.DebeCambiarPassword = debeCambiar
	u.ResetToken = nil
	u.ResetTokenExpira = nil
	u.IntentosFallidos = 0
	u.BloqueadoHasta = nil
	u.RazonBloqueo = nil
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdatePermissions(ctx context.Context, id int, permisos []string, rol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	u.Permisos = append([]string{}, permisos...)
	u.Rol = rol
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetResetToken(ctx context.Context, id int, token string, expira time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	t := token
	e := expira
	u.ResetToken = &t
	u.ResetTokenExpira = &e
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ClearResetToken(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	u.ResetToken = nil
	u.ResetTokenExpira = nil
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &Stats{UsuariosPorRol: map[string]int{}}
	for _, u := range s.accounts {
		if !u.Activo {
			continue
		}
		stats.TotalUsuarios++
		stats.UsuariosPorRol[u.Rol]++
		if u.UltimoAcceso != nil && u.UltimoAcceso.After(now.Add(-7*24*time.Hour)) {
			stats.UsuariosActivos++
		}
		if u.CreatedAt.After(now.Add(-30 * 24 * time.Hour)) {
			stats.UsuariosNuevos++
		}
	}
	return stats, nil
}

func (s *MemoryStore) RecentActivity(ctx context.Context, limit int) ([]models.Usuario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	recent := []models.Usuario{}
	for _, u := range s.accounts {
		if u.Activo {
			recent = append(recent, *cloneUsuario(u))
		}
	}
	sort.Slice(recent, func(i, j int) bool {
		ti, tj := recent[i].UltimoAcceso, recent[j].UltimoAcceso
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}
	return recent, nil
}

func (s *MemoryStore) InsertAuditLog(ctx context.Context, e *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *e)
	return nil
}

func (s *MemoryStore) ListAuditLogs(ctx context.Context, f AuditFilter) ([]AuditEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []AuditEntry{}
	for _, e := range s.logs {
		if f.Tipo != "" && e.Tipo != f.Tipo {
			continue
		}
		if f.UsuarioID != 0 && (e.UsuarioID == nil || *e.UsuarioID != f.UsuarioID) {
			continue
		}
		if f.Desde != nil && e.CreatedAt.Before(*f.Desde) {
			continue
		}
		if f.Hasta != nil && e.CreatedAt.After(*f.Hasta) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
