package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHMAC256 signs value with HMAC-SHA256 using the given key, returning the hex encoded signature
func SignHMAC256(privateKey string, value []byte) string {
	hash := hmac.New(sha256.New, []byte(privateKey))
	hash.Write(value)

	return hex.EncodeToString(hash.Sum(nil))
}

// SecretEqual checks whether the given secrets are equal in a way that isn't sensitive to timing attacks
func SecretEqual(secret1, secret2 string) bool {
	return hmac.Equal([]byte(secret1), []byte(secret2))
}
