package domain

import "context"

// SecureKeyStore persists small secrets encrypted at rest (private keys, the
// cache master key). Get reports absence with ok=false rather than an error.
type SecureKeyStore interface {
	Set(name, value string) error
	Get(name string) (value string, ok bool, err error)
	Delete(name string) error
}

// CancelFunc tears down a live subscription. Safe to call more than once.
type CancelFunc func()

// RemoteStore is the message transport: an ordered append store with a live
// change feed per chat room, plus the public-key directory.
type RemoteStore interface {
	// AppendMessage stores msg and returns the server-assigned id. The server
	// also assigns the authoritative creation timestamp.
	AppendMessage(ctx context.Context, room ChatRoomID, msg EncryptedMessage) (MessageID, error)

	// Subscribe delivers incremental change batches for room, ordered by
	// creation time, starting with the room's current contents as added
	// changes. The feed stops when cancel is called or ctx ends.
	Subscribe(ctx context.Context, room ChatRoomID) (<-chan ChangeBatch, CancelFunc, error)

	GetPublicKey(ctx context.Context, user UserID) (pem string, ok bool, err error)

	// PublishPublicKey upserts the user's public key. Merge semantics: other
	// fields of the user record must survive.
	PublishPublicKey(ctx context.Context, user UserID, pem string) error
}

// KeyService owns the RSA key-pair lifecycle for local users.
type KeyService interface {
	// EnsureKeys makes sure user has a local private key and a published
	// public key, generating and publishing a pair if either is missing.
	// Concurrent calls for the same user share one generation.
	EnsureKeys(ctx context.Context, user UserID) error

	// PrivateKey returns the locally stored private key PEM, if present.
	PrivateKey(user UserID) (pem string, ok bool, err error)

	// Regenerate discards any existing pair and creates a new one. Messages
	// encrypted to the old public key become undecryptable.
	Regenerate(ctx context.Context, user UserID) error
}

// MessageCache stores previously decrypted plaintext keyed by chat room and
// message id, bound to the originating ciphertext by fingerprint.
type MessageCache interface {
	Save(room ChatRoomID, id MessageID, plaintext, ciphertext, iv string, createdAtMs int64, sender UserID) error

	// Load returns the cached plaintext only when the entry exists, has not
	// expired, and its fingerprint matches the supplied ciphertext and IV.
	Load(room ChatRoomID, id MessageID, ciphertext, iv string) (plaintext string, ok bool)

	// LoadAll returns every live entry for room, for warm-starting a view.
	LoadAll(room ChatRoomID) map[MessageID]CachedMessage

	ClearEntry(room ChatRoomID, id MessageID) error
	ClearChat(room ChatRoomID) error
}
