// Package auth holds credential hashing helpers shared by the identity
// session and tests.
package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword returns the bcrypt hash stored in the user directory.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a stored hash.
func CheckPassword(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}
