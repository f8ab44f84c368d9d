package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"cipherchat/internal/domain"
)

// Store is the persistence backend for the relay server.
type Store interface {
	// AppendMessage stores msg under room, assigning its id and server
	// timestamp, and returns the assigned id.
	AppendMessage(ctx context.Context, room domain.ChatRoomID, msg domain.EncryptedMessage) (domain.MessageID, error)
	// ListMessages returns the room's messages in creation order.
	ListMessages(ctx context.Context, room domain.ChatRoomID) ([]domain.EncryptedMessage, error)
	// GetPublicKey returns the published key PEM for user, if any.
	GetPublicKey(ctx context.Context, user domain.UserID) (string, bool, error)
	// SetPublicKey upserts the published key PEM for user.
	SetPublicKey(ctx context.Context, user domain.UserID, pem string) error
}

// MemoryStore keeps everything in process memory. Restarting the server
// loses all state; fine for development.
type MemoryStore struct {
	mu     sync.RWMutex
	rooms  map[domain.ChatRoomID][]domain.EncryptedMessage
	keys   map[domain.UserID]string
	lastMs int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[domain.ChatRoomID][]domain.EncryptedMessage),
		keys:  make(map[domain.UserID]string),
	}
}

func (s *MemoryStore) AppendMessage(ctx context.Context, room domain.ChatRoomID, msg domain.EncryptedMessage) (domain.MessageID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = domain.MessageID(uuid.NewString())
	ms := time.Now().UnixMilli()
	if ms <= s.lastMs {
		ms = s.lastMs + 1
	}
	s.lastMs = ms
	msg.CreatedAtMs = ms

	s.rooms[room] = append(s.rooms[room], msg)
	return msg.ID, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, room domain.ChatRoomID) ([]domain.EncryptedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EncryptedMessage, len(s.rooms[room]))
	copy(out, s.rooms[room])
	return out, nil
}

func (s *MemoryStore) GetPublicKey(ctx context.Context, user domain.UserID) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pem, ok := s.keys[user]
	return pem, ok && pem != "", nil
}

func (s *MemoryStore) SetPublicKey(ctx context.Context, user domain.UserID, pem string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[user] = pem
	return nil
}

var _ Store = (*MemoryStore)(nil)
