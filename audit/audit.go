// Package audit persists the security event trail. Recording is
// best-effort: a failed write is logged, it never fails the operation
// that produced the event.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"clinica-backend/store"
)

// Event types recorded in the auditoria table.
const (
	EventLogin               = "login"
	EventLoginFallido        = "login_fallido"
	EventCuentaBloqueada     = "cuenta_bloqueada"
	EventPasswordCambiado    = "password_cambiado"
	EventPasswordResetPedido = "password_reset_solicitado"
	EventPasswordReseteado   = "password_reseteado"
	EventUsuarioCreado       = "usuario_creado"
	EventUsuarioBloqueado    = "usuario_bloqueado"
	EventUsuarioDesbloqueado = "usuario_desbloqueado"
	EventUsuarioDesactivado  = "usuario_desactivado"
	EventPermisosEditados    = "permisos_actualizados"
	EventSolicitudAcceso     = "solicitud_acceso"
)

// Meta carries the request context attached to every event.
type Meta struct {
	IP        string
	UserAgent string
}

type Recorder struct {
	store store.AccountStore
	now   func() time.Time
}

func NewRecorder(s store.AccountStore) *Recorder {
	return &Recorder{store: s, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, tipo string, usuarioID *int, email, detalle string, meta Meta) {
	entry := &store.AuditEntry{
		ID:        uuid.NewString(),
		Tipo:      tipo,
		UsuarioID: usuarioID,
		Email:     email,
		Detalle:   detalle,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: r.now(),
	}
	if err := r.store.InsertAuditLog(ctx, entry); err != nil {
		log.Printf("auditoría: no se pudo registrar el evento %s: %v", tipo, err)
	}
}
