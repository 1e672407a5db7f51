package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"clinica-backend/audit"
	"clinica-backend/mailer"
	"clinica-backend/models"
	"clinica-backend/security"
	"clinica-backend/store"
)

// Lockout policy: three consecutive failures lock the account for thirty
// minutes. Recovery is either waiting out the window, a successful login
// once it passes, or an explicit admin unlock.
const (
	lockThreshold = 3
	lockDuration  = 30 * time.Minute
	lockRazon     = "Demasiados intentos fallidos de login"
)

// AuthConfig carries the deployment knobs the auth flows need.
type AuthConfig struct {
	FrontendURL string
	AdminEmail  string
}

// AuthService orchestrates credential verification, token issuance,
// lockout transitions and the password-reset lifecycle. All collaborators
// are injected; nothing here touches globals.
type AuthService struct {
	accounts store.AccountStore
	tokens   *security.TokenManager
	mail     mailer.Sender
	recorder *audit.Recorder
	cfg      AuthConfig
	now      func() time.Time
}

func NewAuthService(accounts store.AccountStore, tokens *security.TokenManager, mail mailer.Sender, recorder *audit.Recorder, cfg AuthConfig) *AuthService {
	return &AuthService{
		accounts: accounts,
		tokens:   tokens,
		mail:     mail,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
	}
}

// LoginResult is the successful login payload.
type LoginResult struct {
	Token   string
	Usuario *models.Usuario
}

// NormalizeEmail lowercases and trims so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies credentials and mints a session token. Store failures
// propagate as store.ErrUnavailable: authentication fails closed, there is
// no fallback credential set.
func (s *AuthService) Login(ctx context.Context, email, password string, meta audit.Meta) (*LoginResult, error) {
	email = NormalizeEmail(email)

	u, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the same hashing cost as a real check so response
			// timing does not reveal whether the email exists.
			security.CheckPassword(password, security.DummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if u.EstaBloqueado(now) {
		s.recorder.Record(ctx, audit.EventCuentaBloqueada, &u.ID, u.Email,
			"Intento de login sobre cuenta bloqueada", meta)
		return nil, ErrAccountLocked
	}

	if !security.CheckPassword(password, u.PasswordHash) {
		intentos, ferr := s.accounts.RecordLoginFailure(ctx, u.ID, lockThreshold, now.Add(lockDuration), lockRazon)
		if ferr != nil {
			return nil, ferr
		}
		if intentos >= lockThreshold {
			s.recorder.Record(ctx, audit.EventCuentaBloqueada, &u.ID, u.Email,
				"Cuenta bloqueada por intentos fallidos", meta)
		} else {
			s.recorder.Record(ctx, audit.EventLoginFallido, &u.ID, u.Email,
				"Contraseña incorrecta", meta)
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.accounts.RecordLoginSuccess(ctx, u.ID, now); err != nil {
		return nil, err
	}

	token, err := s.tokens.IssueSession(u)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.EventLogin, &u.ID, u.Email, "Inicio de sesión exitoso", meta)

	u.IntentosFallidos = 0
	u.BloqueadoHasta = nil
	u.RazonBloqueo = nil
	acceso := now
	u.UltimoAcceso = &acceso
	return &LoginResult{Token: token, Usuario: u}, nil
}

// VerifyToken validates a session token and re-checks that the account is
// still active, so a token issued before deactivation stops working.
func (s *AuthService) VerifyToken(ctx context.Context, tokenStr string) (*security.SessionClaims, error) {
	claims, err := s.tokens.ParseSession(tokenStr)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	u, err := s.accounts.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !u.Activo {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// RequestPasswordReset always reports success to the caller so the
// endpoint cannot be used to enumerate accounts. Internal failures are
// logged and swallowed. Issuing a new token overwrites the stored one, so
// only the latest reset link stays valid.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, meta audit.Meta) {
	email = NormalizeEmail(email)

	u, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("recuperación de contraseña: error consultando %s: %v", email, err)
		}
		return
	}
	if !u.Activo {
		return
	}

	token, expira, err := s.tokens.IssueReset(u)
	if err != nil {
		log.Printf("recuperación de contraseña: no se pudo emitir token: %v", err)
		return
	}
	if err := s.accounts.SetResetToken(ctx, u.ID, token, expira); err != nil {
		log.Printf("recuperación de contraseña: no se pudo persistir token: %v", err)
		return
	}

	subject, body := mailer.ResetPasswordMessage(s.cfg.FrontendURL, token)
	if err := s.mail.Send(u.Email, subject, body); err != nil {
		log.Printf("recuperación de contraseña: no se pudo enviar email: %v", err)
	}
	s.recorder.Record(ctx, audit.EventPasswordResetPedido, &u.ID, u.Email,
		"Solicitud de recuperación de contraseña", meta)
}

// ResetPassword consumes a reset token. Besides signature and expiry, the
// presented token must match the copy stored on the account; the stored
// copy is cleared on success, which invalidates every copy of the signed
// token even before it expires.
func (s *AuthService) ResetPassword(ctx context.Context, tokenStr, nuevaPassword string, meta audit.Meta) error {
	claims, err := s.tokens.ParseReset(tokenStr)
	if err != nil {
		return err
	}

	u, err := s.accounts.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return security.ErrTokenInvalid
		}
		return err
	}
	if !u.Activo {
		return security.ErrTokenInvalid
	}
	if u.ResetToken == nil || *u.ResetToken != tokenStr {
		return security.ErrTokenInvalid
	}
	if u.ResetTokenExpira == nil || !s.now().Before(*u.ResetTokenExpira) {
		return security.ErrTokenExpired
	}

	hash, err := security.HashPassword(nuevaPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, u.ID, hash, false); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.EventPasswordReseteado, &u.ID, u.Email,
		"Contraseña restablecida con token de recuperación", meta)
	return nil
}

// ChangePassword is the permitted self-service mutation: the caller proves
// the current password and the new one is re-hashed before storage.
func (s *AuthService) ChangePassword(ctx context.Context, id int, actual, nueva string, meta audit.Meta) error {
	u, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthenticated
		}
		return err
	}

	if !security.CheckPassword(actual, u.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := security.HashPassword(nueva)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, u.ID, hash, false); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.EventPasswordCambiado, &u.ID, u.Email,
		"Contraseña cambiada por el usuario", meta)
	return nil
}

// RequestAccess notifies the administrator mailbox about a new access
// request. Accounts are never self-registered; the admin creates them.
func (s *AuthService) RequestAccess(ctx context.Context, name, email, rol, message string, meta audit.Meta) error {
	email = NormalizeEmail(email)

	if _, ok := models.CanonicalRole(rol); !ok {
		return ErrInvalidRole
	}

	_, err := s.accounts.FindByEmail(ctx, email)
	if err == nil {
		return store.ErrDuplicateEmail
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if s.cfg.AdminEmail != "" {
		subject, body := mailer.AccessRequestMessage(name, email, rol, message)
		if err := s.mail.Send(s.cfg.AdminEmail, subject, body); err != nil {
			log.Printf("solicitud de acceso: no se pudo notificar al administrador: %v", err)
		}
	}

	s.recorder.Record(ctx, audit.EventSolicitudAcceso, nil, email,
		"Solicitud de acceso para rol "+rol, meta)
	return nil
}
