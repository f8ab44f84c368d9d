package domain

import "errors"

// Crypto errors. ErrRandomSource is fatal; the rest are recoverable and
// resolve to placeholder text at the reconciliation layer.
var (
	// ErrRandomSource means the platform RNG failed. There is no fallback.
	ErrRandomSource = errors.New("random source unavailable")

	// ErrInvalidKey means a PEM key could not be parsed.
	ErrInvalidKey = errors.New("invalid key")

	// ErrUnwrapFailure means a wrapped AES key was not wrapped for this
	// private key, or was corrupted in transit.
	ErrUnwrapFailure = errors.New("key unwrap failed")

	// ErrPaddingFailure means AES decryption produced malformed padding or
	// the input was not valid ciphertext.
	ErrPaddingFailure = errors.New("padding or ciphertext malformed")
)

// ErrKeyGen means RSA key-pair generation or publication failed. Retried
// lazily on the next EnsureKeys call.
var ErrKeyGen = errors.New("key generation failed")

// ErrSendFailed marks a send job's terminal failure. The message stays in
// the view with StatusFailed until explicitly resent.
var ErrSendFailed = errors.New("send failed")

// ErrNoRecipientKey means the recipient has no published public key, so no
// envelope can be built for them.
var ErrNoRecipientKey = errors.New("recipient has no published public key")
