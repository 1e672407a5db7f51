package security

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the fixed work factor for every stored password.
const BcryptCost = 12

// ErrHashing is returned when the hash function itself fails; the calling
// operation must abort, never fall back to storing plaintext.
var ErrHashing = errors.New("error al encriptar la contraseña")

// DummyHash is a valid bcrypt digest (cost 12) compared against when a
// login targets a nonexistent account, so response timing does not reveal
// whether the email exists.
const DummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plaintext matches the stored digest.
// bcrypt's comparison is constant-time with respect to the digest.
func CheckPassword(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// IsHashed detects the bcrypt digest format so an already-hashed value is
// never hashed a second time on update.
func IsHashed(value string) bool {
	return strings.HasPrefix(value, "$2a$") ||
		strings.HasPrefix(value, "$2b$") ||
		strings.HasPrefix(value, "$2y$")
}
