package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes a plaintext credential with bcrypt at the default
// cost. The returned hash embeds its own salt.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// ComparePassword returns nil when plain matches the stored hash.
func ComparePassword(hashed string, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
