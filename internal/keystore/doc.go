// Package keystore provides the secure key-value store for device secrets.
//
// The file-backed implementation seals each value with a key derived from a
// device passphrase via scrypt and ChaCha20-Poly1305, one file per entry,
// so private keys and the cache master key are encrypted at rest. A memory
// implementation backs tests and the degraded no-secure-storage mode.
package keystore
