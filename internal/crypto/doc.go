// Package crypto implements the hybrid envelope scheme.
//
// Contents
//
//   - Per-message AES-256-CBC body encryption with PKCS#7 padding and a
//     fresh random IV per call (GenerateAESKey, AESEncrypt, AESDecrypt)
//   - RSA-OAEP-SHA256 wrapping of the per-message key, once per recipient
//     (WrapKey, UnwrapKey)
//   - RSA-2048 key-pair generation and PEM round-tripping (GenerateKeyPair)
//   - Ciphertext fingerprints binding cache entries to payloads
//     (CipherFingerprint)
//   - Best-effort memory wiping for transient key material (Wipe)
//
// # Notes
//
// RSA cannot encrypt arbitrary-length bodies, so each message gets an
// independent AES key; compromise of one message's key exposes nothing
// else. The wrapped payload is the base64 text of the AES key, which keeps
// the wire format compatible across implementations that exchange keys as
// strings. Callers should treat unwrap and padding failures as "cannot
// decrypt", never as fatal.
package crypto
