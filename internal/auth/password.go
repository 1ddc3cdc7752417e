package auth

import (
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches the work factor the rest of the platform was
// provisioned for; raising it invalidates no existing hashes but slows
// logins, so it stays fixed here rather than configurable.
const bcryptCost = 10

var (
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasDigit   = regexp.MustCompile(`[0-9]`)
	hasSpecial = regexp.MustCompile(`[^A-Za-z0-9]`)
)

func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plain matches the stored bcrypt digest.
func CheckPassword(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

// ValidPassword enforces the account password policy: at least 8
// characters with one uppercase letter, one digit and one special
// character.
func ValidPassword(plain string) bool {
	if len(plain) < 8 || len(plain) > 128 {
		return false
	}
	return hasUpper.MatchString(plain) && hasDigit.MatchString(plain) && hasSpecial.MatchString(plain)
}
