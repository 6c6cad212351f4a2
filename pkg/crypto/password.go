package crypto

import "golang.org/x/crypto/bcrypt"

// hashCost pins the bcrypt work factor. Changing it only affects newly
// hashed passwords; existing hashes embed their own cost.
const hashCost = 10

// HashPassword hashes plaintext with bcrypt and a per-call random salt.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), hashCost)
}

// ComparePassword checks plaintext against a stored bcrypt hash.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}
