package system

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// bcryptCost is a var so tests can lower it.
var bcryptCost = 12

// ValidatePassword applies the admin password policy.
func ValidatePassword(plain string) error {
	if plain == "" {
		return errors.New("password cannot be empty")
	}
	if len(plain) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	if len(plain) > 72 {
		return errors.New("password must be at most 72 bytes")
	}
	return nil
}

// hashPassword hashes a plaintext password using bcrypt.
func hashPassword(plain string) (string, error) {
	if err := ValidatePassword(plain); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// verifyPassword compares a bcrypt hash with a plaintext password.
func verifyPassword(storedHash, plain string) bool {
	if storedHash == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plain)) == nil
}
