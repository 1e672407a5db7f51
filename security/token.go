package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"clinica-backend/models"
)

const (
	// SessionTokenTTL is the single fixed session lifetime. There is no
	// "remember me" variant and no server-side revocation list.
	SessionTokenTTL = 8 * time.Hour
	// ResetTokenTTL bounds a password-reset token.
	ResetTokenTTL = time.Hour

	sessionTokenType = "access"
	resetTokenType   = "password_reset"
)

var (
	// ErrTokenInvalid covers malformed, tampered or wrong-purpose tokens.
	ErrTokenInvalid = errors.New("token inválido")
	// ErrTokenExpired is returned once the token's exp has passed.
	ErrTokenExpired = errors.New("token expirado")
)

// SessionClaims carries the cached account summary inside a session token.
// Rol and names are convenience claims; fine-grained permission checks must
// go back to the store.
type SessionClaims struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	Rol      string `json:"rol"`
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// ResetClaims carries a single-use password-reset authorization.
type ResetClaims struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies both token kinds with a shared HS256
// secret. The clock is injectable for expiry tests.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret), now: time.Now}
}

func (m *TokenManager) IssueSession(u *models.Usuario) (string, error) {
	now := m.now()
	claims := SessionClaims{
		ID:       u.ID,
		Email:    u.Email,
		Rol:      u.Rol,
		Nombre:   u.Nombre,
		Apellido: u.Apellido,
		Type:     sessionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// IssueReset returns the signed token together with its expiry so the
// caller can echo both into the account row for cross-validation.
func (m *TokenManager) IssueReset(u *models.Usuario) (string, time.Time, error) {
	now := m.now()
	expira := now.Add(ResetTokenTTL)
	claims := ResetClaims{
		ID:    u.ID,
		Email: u.Email,
		Type:  resetTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expira),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expira, nil
}

func (m *TokenManager) parse(tokenStr string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}

func (m *TokenManager) ParseSession(tokenStr string) (*SessionClaims, error) {
	var claims SessionClaims
	if err := m.parse(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.Type != sessionTokenType {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

func (m *TokenManager) ParseReset(tokenStr string) (*ResetClaims, error) {
	var claims ResetClaims
	if err := m.parse(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.Type != resetTokenType {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}
