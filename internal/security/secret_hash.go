package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashSecret returns the hex SHA-256 of a high-entropy secret (confirmation or recovery code).
// Codes are stored and looked up by this hash so a database read never yields a usable code.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// SecretHashEqual reports in constant time whether secret hashes to storedHash.
func SecretHashEqual(secret, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSecret(secret)), []byte(storedHash)) == 1
}
