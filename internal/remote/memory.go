package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cipherchat/internal/domain"
)

// MemoryStore is an in-process RemoteStore. It assigns ids and server
// timestamps on append and pushes incremental change batches to
// subscribers, the way the real document store's live query behaves.
type MemoryStore struct {
	// Now is the server clock; replaceable in tests.
	Now func() time.Time

	mu      sync.Mutex
	rooms   map[domain.ChatRoomID][]domain.EncryptedMessage
	users   map[domain.UserID]map[string]string
	subs    map[domain.ChatRoomID]map[int]chan domain.ChangeBatch
	nextSub int
	lastMs  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:   time.Now,
		rooms: make(map[domain.ChatRoomID][]domain.EncryptedMessage),
		users: make(map[domain.UserID]map[string]string),
		subs:  make(map[domain.ChatRoomID]map[int]chan domain.ChangeBatch),
	}
}

func (s *MemoryStore) AppendMessage(ctx context.Context, room domain.ChatRoomID, msg domain.EncryptedMessage) (domain.MessageID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyMessage(msg)
	stored.ID = domain.MessageID(uuid.NewString())

	// Server timestamps are strictly increasing so creation order is total.
	ms := s.Now().UnixMilli()
	if ms <= s.lastMs {
		ms = s.lastMs + 1
	}
	s.lastMs = ms
	stored.CreatedAtMs = ms

	s.rooms[room] = append(s.rooms[room], stored)
	s.broadcast(room, domain.ChangeBatch{{Type: domain.ChangeAdded, Message: copyMessage(stored)}})
	return stored.ID, nil
}

// ModifyMessage replaces a stored message in place and notifies
// subscribers. The id and creation time are preserved.
func (s *MemoryStore) ModifyMessage(room domain.ChatRoomID, msg domain.EncryptedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.rooms[room]
	for i := range msgs {
		if msgs[i].ID == msg.ID {
			updated := copyMessage(msg)
			updated.CreatedAtMs = msgs[i].CreatedAtMs
			msgs[i] = updated
			s.broadcast(room, domain.ChangeBatch{{Type: domain.ChangeModified, Message: copyMessage(updated)}})
			return nil
		}
	}
	return fmt.Errorf("message %s not found in %s", msg.ID, room)
}

// RemoveMessage deletes a stored message and notifies subscribers.
func (s *MemoryStore) RemoveMessage(room domain.ChatRoomID, id domain.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.rooms[room]
	for i := range msgs {
		if msgs[i].ID == id {
			removed := msgs[i]
			s.rooms[room] = append(msgs[:i], msgs[i+1:]...)
			s.broadcast(room, domain.ChangeBatch{{Type: domain.ChangeRemoved, Message: copyMessage(removed)}})
			return nil
		}
	}
	return fmt.Errorf("message %s not found in %s", id, room)
}

func (s *MemoryStore) Subscribe(ctx context.Context, room domain.ChatRoomID) (<-chan domain.ChangeBatch, domain.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domain.ChangeBatch, 256)
	id := s.nextSub
	s.nextSub++
	if s.subs[room] == nil {
		s.subs[room] = make(map[int]chan domain.ChangeBatch)
	}
	s.subs[room][id] = ch

	// Open with the room's current contents, ordered by creation time.
	if existing := s.rooms[room]; len(existing) > 0 {
		initial := make(domain.ChangeBatch, 0, len(existing))
		sorted := make([]domain.EncryptedMessage, len(existing))
		copy(sorted, existing)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAtMs < sorted[j].CreatedAtMs })
		for _, m := range sorted {
			initial = append(initial, domain.Change{Type: domain.ChangeAdded, Message: copyMessage(m)})
		}
		ch <- initial
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if subs, ok := s.subs[room]; ok {
				delete(subs, id)
			}
			close(ch)
		})
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, nil
}

func (s *MemoryStore) GetPublicKey(ctx context.Context, user domain.UserID) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pem, ok := s.users[user]["publicKey"]
	return pem, ok && pem != "", nil
}

// PublishPublicKey upserts only the publicKey field of the user record.
func (s *MemoryStore) PublishPublicKey(ctx context.Context, user domain.UserID, pem string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[user] == nil {
		s.users[user] = make(map[string]string)
	}
	s.users[user]["publicKey"] = pem
	return nil
}

// Messages returns copies of the stored messages for room in creation
// order.
func (s *MemoryStore) Messages(room domain.ChatRoomID) []domain.EncryptedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EncryptedMessage, 0, len(s.rooms[room]))
	for _, m := range s.rooms[room] {
		out = append(out, copyMessage(m))
	}
	return out
}

// SetUserField writes an arbitrary field of a user record. Exists so tests
// can verify that PublishPublicKey merges instead of clobbering.
func (s *MemoryStore) SetUserField(user domain.UserID, field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[user] == nil {
		s.users[user] = make(map[string]string)
	}
	s.users[user][field] = value
}

// UserField reads an arbitrary field of a user record.
func (s *MemoryStore) UserField(user domain.UserID, field string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[user][field]
}

// broadcast delivers a batch to every subscriber of room. Callers hold mu.
// A subscriber that stopped draining loses batches once its buffer fills,
// rather than wedging every store operation.
func (s *MemoryStore) broadcast(room domain.ChatRoomID, batch domain.ChangeBatch) {
	for _, ch := range s.subs[room] {
		select {
		case ch <- batch:
		default:
		}
	}
}

func copyMessage(m domain.EncryptedMessage) domain.EncryptedMessage {
	out := m
	out.EncryptedKeys = make(map[domain.UserID]string, len(m.EncryptedKeys))
	for k, v := range m.EncryptedKeys {
		out.EncryptedKeys[k] = v
	}
	return out
}

var _ domain.RemoteStore = (*MemoryStore)(nil)
