// Package cache persists previously decrypted plaintext per chat room.
//
// Every entry carries a fingerprint of the ciphertext and IV it was
// decrypted from; a lookup only hits when the fingerprint recomputed from
// the live ciphertext matches, so edited or corrupted ciphertexts force a
// re-decrypt instead of serving stale plaintext. Entries expire after a
// fixed TTL and each room keeps at most the newest N entries.
//
// Plaintext is encrypted at rest under a per-user master key held in the
// secure key store. When no secure storage is available the cache degrades
// to storing plaintext directly.
package cache
