package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"clinica-backend/models"
)

// queryTimeout bounds every store operation so a slow database surfaces
// as ErrUnavailable instead of hanging a login.
const queryTimeout = 5 * time.Second

const usuarioColumns = `id, email, password_hash, nombre, apellido, rol, permisos, activo,
		ultimo_acceso, intentos_fallidos, bloqueado_hasta, razon_bloqueo,
		reset_token, reset_token_expira, debe_cambiar_password, created_at, updated_at`

// PostgresStore implements AccountStore over database/sql + lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Migrate creates the usuarios and auditoria tables if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usuarios (
			id SERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			nombre TEXT NOT NULL,
			apellido TEXT NOT NULL,
			rol TEXT NOT NULL,
			permisos TEXT[] NOT NULL DEFAULT '{}',
			activo BOOLEAN NOT NULL DEFAULT TRUE,
			ultimo_acceso TIMESTAMPTZ,
			intentos_fallidos INTEGER NOT NULL DEFAULT 0,
			bloqueado_hasta TIMESTAMPTZ,
			razon_bloqueo TEXT,
			reset_token TEXT,
			reset_token_expira TIMESTAMPTZ,
			debe_cambiar_password BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS usuarios_email_lower_idx ON usuarios (LOWER(email))`,
		`CREATE TABLE IF NOT EXISTS auditoria (
			id UUID PRIMARY KEY,
			tipo_evento TEXT NOT NULL,
			usuario_id INTEGER,
			email TEXT,
			descripcion TEXT,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return wrapErr(err)
	}
	return nil
}

func (s *PostgresStore) scanUsuario(row interface{ Scan(...interface{}) error }) (*models.Usuario, error) {
	var u models.Usuario
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Nombre, &u.Apellido, &u.Rol,
		pq.Array(&u.Permisos), &u.Activo, &u.UltimoAcceso, &u.IntentosFallidos,
		&u.BloqueadoHasta, &u.RazonBloqueo, &u.ResetToken, &u.ResetTokenExpira,
		&u.DebeCambiarPassword, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr(err)
	}
	if u.Permisos == nil {
		u.Permisos = []string{}
	}
	return &u, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Usuario, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+usuarioColumns+` FROM usuarios WHERE LOWER(email) = LOWER($1)`, email)
	return s.scanUsuario(row)
}

func (s *PostgresStore) FindByID(ctx context.Context, id int) (*models.Usuario, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+usuarioColumns+` FROM usuarios WHERE id = $1`, id)
	return s.scanUsuario(row)
}

func (s *PostgresStore) Create(ctx context.Context, u *models.Usuario) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usuarios (email, password_hash, nombre, apellido, rol, permisos, activo, debe_cambiar_password)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at, updated_at
	`, u.Email, u.PasswordHash, u.Nombre, u.Apellido, u.Rol, pq.Array(u.Permisos),
		u.Activo, u.DebeCambiarPassword).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return wrapErr(err)
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]models.Usuario, int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1
	switch f.Estado {
	case "activos":
		where += " AND activo = TRUE"
	case "inactivos":
		where += " AND activo = FALSE"
	}
	if f.Rol != "" {
		where += " AND rol = $" + strconv.Itoa(idx)
		args = append(args, f.Rol)
		idx++
	}
	if f.Search != "" {
		where += " AND (nombre ILIKE $" + strconv.Itoa(idx) +
			" OR apellido ILIKE $" + strconv.Itoa(idx) +
			" OR email ILIKE $" + strconv.Itoa(idx) + ")"
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usuarios `+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx, `SELECT `+usuarioColumns+` FROM usuarios `+where+
		` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(idx)+` OFFSET $`+strconv.Itoa(idx+1), args...)
	if err != nil {
		return nil, 0, wrapErr(err)
	}
	defer rows.Close()

	usuarios := []models.Usuario{}
	for rows.Next() {
		u, err := s.scanUsuario(rows)
		if err != nil {
			return nil, 0, err
		}
		usuarios = append(usuarios, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapErr(err)
	}
	return usuarios, total, nil
}

func (s *PostgresStore) RecordLoginSuccess(ctx context.Context, id int, at time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `
		UPDATE usuarios SET
			ultimo_acceso = $2,
			intentos_fallidos = 0,
			bloqueado_hasta = NULL,
			razon_bloqueo = NULL,
			updated_at = NOW()
		WHERE id = $1
	`, id, at)
	return s.mustAffect(res, err)
}

// RecordLoginFailure relies on a single UPDATE so the row lock serializes
// concurrent attempts on the same account; the counter cannot lose updates.
func (s *PostgresStore) RecordLoginFailure(ctx context.Context, id, threshold int, lockUntil time.Time, razon string) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var intentos int
	err := s.db.QueryRowContext(ctx, `
		UPDATE usuarios SET
			intentos_fallidos = intentos_fallidos + 1,
			bloqueado_hasta = CASE WHEN intentos_fallidos + 1 >= $2 THEN $3 ELSE bloqueado_hasta END,
			razon_bloqueo   = CASE WHEN intentos_fallidos + 1 >= $2 THEN $4 ELSE razon_bloqueo END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING intentos_fallidos
	`, id, threshold, lockUntil, razon).Scan(&intentos)
	if err != nil {
		return 0, wrapErr(err)
	}
	return intentos, nil
}

func (s *PostgresStore) SetLock(ctx context.Context, id int, activo bool, hasta *time.Time, razon *string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var res sql.Result
	var err error
	if activo && hasta == nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE usuarios SET activo = TRUE, bloqueado_hasta = NULL, razon_bloqueo = NULL,
				intentos_fallidos = 0, updated_at = NOW()
			WHERE id = $1
		`, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE usuarios SET activo = $2, bloqueado_hasta = $3, razon_bloqueo = $4, updated_at = NOW()
			WHERE id = $1
		`, id, activo, hasta, razon)
	}
	return s.mustAffect(res, err)
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, id int, hash string, debeCambiar bool) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `
		UPDATE usuarios SET
			password_hash = $2,
			debe_cambiar_password = $3,
			reset_token = NULL,
			reset_token_expira = NULL,
			intentos_fallidos = 0,
			bloqueado_hasta = NULL,
			razon_bloqueo = NULL,
			updated_at = NOW()
		WHERE id = $1
	`, id, hash, debeCambiar)
	return s.mustAffect(res, err)
}

func (s *PostgresStore) UpdatePermissions(ctx context.Context, id int, permisos []string, rol string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `
		UPDATE usuarios SET permisos = $2, rol = $3, updated_at = NOW() WHERE id = $1
	`, id, pq.Array(permisos), rol)
	return s.mustAffect(res, err)
}

func (s *PostgresStore) SetResetToken(ctx context.Context, id int, token string, expira time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `
		UPDATE usuarios SET reset_token = $2, reset_token_expira = $3, updated_at = NOW() WHERE id = $1
	`, id, token, expira)
	return s.mustAffect(res, err)
}

func (s *PostgresStore) ClearResetToken(ctx context.Context, id int) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `
		UPDATE usuarios SET reset_token = NULL, reset_token_expira = NULL, updated_at = NOW() WHERE id = $1
	`, id)
	return s.mustAffect(res, err)
}

func (s *PostgresStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	stats := &Stats{UsuariosPorRol: map[string]int{}}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usuarios WHERE activo = TRUE`).Scan(&stats.TotalUsuarios); err != nil {
		return nil, wrapErr(err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usuarios WHERE activo = TRUE AND ultimo_acceso >= $1`,
		now.Add(-7*24*time.Hour)).Scan(&stats.UsuariosActivos); err != nil {
		return nil, wrapErr(err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usuarios WHERE activo = TRUE AND created_at >= $1`,
		now.Add(-30*24*time.Hour)).Scan(&stats.UsuariosNuevos); err != nil {
		return nil, wrapErr(err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rol, COUNT(*) FROM usuarios WHERE activo = TRUE GROUP BY rol`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var rol string
		var count int
		if err := rows.Scan(&rol, &count); err != nil {
			return nil, wrapErr(err)
		}
		stats.UsuariosPorRol[rol] = count
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return stats, nil
}

func (s *PostgresStore) RecentActivity(ctx context.Context, limit int) ([]models.Usuario, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+usuarioColumns+` FROM usuarios
		WHERE activo = TRUE ORDER BY ultimo_acceso DESC NULLS LAST LIMIT $1`, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	usuarios := []models.Usuario{}
	for rows.Next() {
		u, err := s.scanUsuario(rows)
		if err != nil {
			return nil, err
		}
		usuarios = append(usuarios, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return usuarios, nil
}

func (s *PostgresStore) InsertAuditLog(ctx context.Context, e *AuditEntry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auditoria (id, tipo_evento, usuario_id, email, descripcion, ip_address, user_agent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.Tipo, e.UsuarioID, e.Email, e.Detalle, e.IP, e.UserAgent, e.CreatedAt)
	return wrapErr(err)
}

func (s *PostgresStore) ListAuditLogs(ctx context.Context, f AuditFilter) ([]AuditEntry, int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1
	if f.Tipo != "" {
		where += " AND tipo_evento = $" + strconv.Itoa(idx)
		args = append(args, f.Tipo)
		idx++
	}
	if f.UsuarioID != 0 {
		where += " AND usuario_id = $" + strconv.Itoa(idx)
		args = append(args, f.UsuarioID)
		idx++
	}
	if f.Desde != nil {
		where += " AND created_at >= $" + strconv.Itoa(idx)
		args = append(args, *f.Desde)
		idx++
	}
	if f.Hasta != nil {
		where += " AND created_at <= $" + strconv.Itoa(idx)
		args = append(args, *f.Hasta)
		idx++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auditoria `+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tipo_evento, usuario_id, email, descripcion, ip_address, user_agent, created_at
		FROM auditoria `+where+` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(idx)+` OFFSET $`+strconv.Itoa(idx+1), args...)
	if err != nil {
		return nil, 0, wrapErr(err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var usuarioID sql.NullInt64
		var email, detalle, ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &e.Tipo, &usuarioID, &email, &detalle, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, 0, wrapErr(err)
		}
		if usuarioID.Valid {
			id := int(usuarioID.Int64)
			e.UsuarioID = &id
		}
		e.Email, e.Detalle, e.IP, e.UserAgent = email.String, detalle.String, ip.String, ua.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapErr(err)
	}
	return entries, total, nil
}

func (s *PostgresStore) mustAffect(res sql.Result, err error) error {
	if err != nil {
		return wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
