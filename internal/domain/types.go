package domain

// UserID identifies a user in the remote directory.
type UserID string

// String returns the string form of the user id.
func (u UserID) String() string { return string(u) }

// ChatRoomID identifies a chat room. For one-to-one chats it is the two user
// ids, sorted and joined with "_".
type ChatRoomID string

// String returns the string form of the room id.
func (r ChatRoomID) String() string { return string(r) }

// MessageID identifies a message. Server-assigned for stored messages;
// locally generated (with a "local-" prefix) for optimistic entries.
type MessageID string

// String returns the string form of the message id.
func (m MessageID) String() string { return string(m) }

// AlgorithmAESCBC256 is the only body cipher the wire format carries.
const AlgorithmAESCBC256 = "AES-CBC-256"

// KeyPair holds one user's RSA pair as PEM text. The private half never
// leaves the device; the public half is published to the remote directory.
type KeyPair struct {
	PublicPEM  string
	PrivatePEM string
}

// EncryptedMessage is the wire and storage form of a message.
//
// EncryptedKeys maps every intended recipient, including the sender, to the
// per-message AES key wrapped with that recipient's public key.
type EncryptedMessage struct {
	ID            MessageID         `json:"id"`
	SenderID      UserID            `json:"senderId"`
	Ciphertext    string            `json:"ciphertext"` // base64
	IV            string            `json:"iv"`         // base64, unique per message
	EncryptedKeys map[UserID]string `json:"encryptedKeys"`
	Algorithm     string            `json:"algorithm"`
	CreatedAtMs   int64             `json:"createdAt"`       // server-assigned, 0 until stored
	ClientCreated int64             `json:"clientCreatedAt"` // client clock, advisory
}

// MessageStatus tracks a locally originated message between submission and
// remote confirmation.
type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// DecryptedMessage is the in-memory view of one message.
type DecryptedMessage struct {
	ID              MessageID
	Text            string
	SenderID        UserID
	CreatedAt       Timestamp
	ClientCreatedMs int64
	Status          MessageStatus
}

// CachedMessage is what the message cache returns on a warm-start load.
type CachedMessage struct {
	Text        string
	CreatedAtMs int64
	SenderID    UserID
}

// ChangeType classifies one entry of a remote change batch.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one remote event: a message was added, modified, or removed.
type Change struct {
	Type    ChangeType
	Message EncryptedMessage
}

// ChangeBatch groups the changes delivered by one remote notification.
type ChangeBatch []Change
