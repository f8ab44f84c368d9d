package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// CipherFingerprint binds a cache entry to one encrypted payload. It hashes
// the base64 ciphertext and IV with a "|" separator; any change to either
// produces a different fingerprint and invalidates the cached plaintext.
func CipherFingerprint(ciphertextB64, ivB64 string) string {
	sum := sha256.Sum256([]byte(ciphertextB64 + "|" + ivB64))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short hex fingerprint of a public key PEM for
// display and logging.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(publicKeyPEM string) string {
	sum := sha256.Sum256([]byte(publicKeyPEM))
	return hex.EncodeToString(sum[:10])
}
