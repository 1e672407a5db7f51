package services

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, inactive account and
	// wrong password alike; callers must not let clients tell them apart.
	ErrInvalidCredentials = errors.New("credenciales inválidas")
	// ErrAccountLocked is the internal distinction for a lockout; the HTTP
	// layer still renders it as the generic credentials failure.
	ErrAccountLocked = errors.New("cuenta bloqueada")
	// ErrUnauthenticated covers missing, invalid or expired sessions and
	// tokens whose account is no longer active.
	ErrUnauthenticated = errors.New("no autenticado")
	// ErrForbidden is a role or protected-account violation.
	ErrForbidden = errors.New("acceso prohibido")
	// ErrSelfAction rejects self-lockout, self-deactivation and
	// self-demotion from admin.
	ErrSelfAction = errors.New("operación sobre la propia cuenta no permitida")
	// ErrInvalidRole rejects role names outside the closed set.
	ErrInvalidRole = errors.New("rol no válido")
)
