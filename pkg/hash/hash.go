package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// Length длина hex-представления SHA-256 отпечатка
const Length = sha256.Size * 2

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Sum вычисляет детерминированный отпечаток содержимого.
// Совпадение отпечатков трактуется как равенство содержимого
// без побайтовой сверки.
func Sum(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// IsValid проверяет, что строка выглядит как отпечаток
func IsValid(fingerprint string) bool {
	return fingerprintPattern.MatchString(fingerprint)
}
