package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashOrRead returns secret unchanged when it already is a bcrypt hash, and
// its bcrypt hash otherwise.
func HashOrRead(secret string) ([]byte, error) {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(secret, prefix) {
			return []byte(secret), nil
		}
	}
	return bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
}

// SecretMatches reports whether candidate is the secret behind hash.
func SecretMatches(hash []byte, candidate string) bool {
	return len(hash) > 0 && candidate != "" && bcrypt.CompareHashAndPassword(hash, []byte(candidate)) == nil
}
