package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/logger"
)

// Placeholder texts rendered when a message cannot be read. Shown verbatim
// in the view; never cached.
const (
	cannotDecryptText = "(cannot decrypt)"
	failedDecryptText = "(failed to decrypt)"
)

const localIDPrefix = "local-"

// ErrNotResendable is returned by Resend for messages that are not in the
// Failed state.
var ErrNotResendable = errors.New("message is not in a failed state")

// Session is the reconciliation engine for one open chat room.
type Session struct {
	room domain.ChatRoomID
	self domain.UserID
	peer domain.UserID

	keys   domain.KeyService
	cache  domain.MessageCache
	remote domain.RemoteStore
	log    *logger.Logger
	now    func() time.Time

	onUpdate func([]domain.DecryptedMessage)

	ctx       context.Context
	ctxCancel context.CancelFunc
	subCancel domain.CancelFunc
	wg        sync.WaitGroup

	queue *sendQueue

	mu sync.Mutex
	// messages is the authoritative mutable set, keyed by message id.
	messages map[domain.MessageID]*domain.DecryptedMessage
	// pending correlates a not-yet-confirmed local send (by its client
	// timestamp) to the optimistic entry awaiting the server echo.
	pending map[int64]domain.MessageID
	// lastClientMs is the last client timestamp handed out; stamps are
	// strictly increasing so no two sends share a correlation key.
	lastClientMs int64
	// keyMemo caches unwrapped AES keys per message id for the process
	// lifetime, so reprocessing a message skips the RSA operation.
	keyMemo map[domain.MessageID]string
}

// Option configures a Session.
type Option func(*Session)

// WithClock substitutes the wall clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithOnUpdate registers a callback invoked with the re-sorted merged view
// after every state change.
func WithOnUpdate(fn func([]domain.DecryptedMessage)) Option {
	return func(s *Session) { s.onUpdate = fn }
}

// NewSession builds a session for one room between self and peer. Call
// Open to start consuming the remote feed, and Close when the chat ends.
func NewSession(
	room domain.ChatRoomID,
	self, peer domain.UserID,
	keySvc domain.KeyService,
	msgCache domain.MessageCache,
	remote domain.RemoteStore,
	log *logger.Logger,
	opts ...Option,
) *Session {
	if log == nil {
		log = logger.Nop()
	}
	s := &Session{
		room:     room,
		self:     self,
		peer:     peer,
		keys:     keySvc,
		cache:    msgCache,
		remote:   remote,
		log:      log,
		now:      time.Now,
		messages: make(map[domain.MessageID]*domain.DecryptedMessage),
		pending:  make(map[int64]domain.MessageID),
		keyMemo:  make(map[domain.MessageID]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = newSendQueue(s)
	return s
}

// Open warm-starts the view from the message cache, subscribes to the
// remote feed, and starts the send queue. The subscription lives until
// Close or ctx ends.
func (s *Session) Open(ctx context.Context) error {
	s.ctx, s.ctxCancel = context.WithCancel(ctx)

	s.mu.Lock()
	for id, cm := range s.cache.LoadAll(s.room) {
		s.messages[id] = &domain.DecryptedMessage{
			ID:        id,
			Text:      cm.Text,
			SenderID:  cm.SenderID,
			CreatedAt: domain.ResolveTimestamp(cm.CreatedAtMs, 0, s.now()),
			Status:    domain.StatusSent,
		}
	}
	s.mu.Unlock()

	ch, cancel, err := s.remote.Subscribe(s.ctx, s.room)
	if err != nil {
		s.ctxCancel()
		return err
	}
	s.subCancel = cancel

	s.wg.Add(2)
	go s.consume(ch)
	go s.queue.run(s.ctx, &s.wg)

	s.notify()
	return nil
}

// Close unsubscribes from the remote feed and stops the send queue. Any
// in-flight send runs to completion (success or Failed) first.
func (s *Session) Close() {
	if s.subCancel != nil {
		s.subCancel()
	}
	if s.ctxCancel != nil {
		s.ctxCancel()
	}
	s.wg.Wait()
}

// consume applies remote batches one at a time; batches are never handled
// concurrently for a room.
func (s *Session) consume(ch <-chan domain.ChangeBatch) {
	defer s.wg.Done()
	for batch := range ch {
		s.ApplyBatch(batch)
	}
}

// nextClientStamp returns the wall clock in milliseconds, bumped past the
// last handed-out stamp when two sends land on the same millisecond.
// Callers hold mu.
func (s *Session) nextClientStamp() int64 {
	ms := s.now().UnixMilli()
	if ms <= s.lastClientMs {
		ms = s.lastClientMs + 1
	}
	s.lastClientMs = ms
	return ms
}

// Submit inserts an optimistic Pending entry for text and queues the
// encryption and transmission work. Returns the local id of the entry.
func (s *Session) Submit(text string) domain.MessageID {
	localID := domain.MessageID(localIDPrefix + uuid.NewString())

	s.mu.Lock()
	nowMs := s.nextClientStamp()
	s.messages[localID] = &domain.DecryptedMessage{
		ID:              localID,
		Text:            text,
		SenderID:        s.self,
		CreatedAt:       domain.ClientTime(nowMs),
		ClientCreatedMs: nowMs,
		Status:          domain.StatusPending,
	}
	s.pending[nowMs] = localID
	s.mu.Unlock()

	s.queue.enqueue(sendJob{localID: localID, text: text, clientCreatedMs: nowMs})
	s.notify()
	return localID
}

// Resend re-queues a Failed message. It gets a fresh client timestamp and
// goes back to Pending; everything else behaves like a first submission.
func (s *Session) Resend(id domain.MessageID) error {
	s.mu.Lock()
	m, ok := s.messages[id]
	if !ok || m.Status != domain.StatusFailed {
		s.mu.Unlock()
		return ErrNotResendable
	}
	nowMs := s.nextClientStamp()
	delete(s.pending, m.ClientCreatedMs)
	m.ClientCreatedMs = nowMs
	m.CreatedAt = domain.ClientTime(nowMs)
	m.Status = domain.StatusPending
	text := m.Text
	s.pending[nowMs] = id
	s.mu.Unlock()

	s.queue.enqueue(sendJob{localID: id, text: text, clientCreatedMs: nowMs})
	s.notify()
	return nil
}

// ApplyBatch folds one remote change batch into the view. Applying the
// same batch twice leaves the view unchanged.
func (s *Session) ApplyBatch(batch domain.ChangeBatch) {
	s.mu.Lock()
	for _, change := range batch {
		s.applyChange(change)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) applyChange(change domain.Change) {
	msg := change.Message

	if change.Type == domain.ChangeRemoved {
		delete(s.messages, msg.ID)
		delete(s.keyMemo, msg.ID)
		if err := s.cache.ClearEntry(s.room, msg.ID); err != nil {
			s.log.Warn("cache invalidation failed", "id", msg.ID, "err", err)
		}
		return
	}

	// Echo of our own optimistic send: adopt the server id, carry the known
	// plaintext over, and drop the placeholder entry.
	if msg.SenderID == s.self && msg.ClientCreated != 0 {
		if localID, ok := s.pending[msg.ClientCreated]; ok {
			s.confirmEcho(localID, msg)
			return
		}
	}

	text, fresh := s.resolveText(msg)
	s.messages[msg.ID] = &domain.DecryptedMessage{
		ID:              msg.ID,
		Text:            text,
		SenderID:        msg.SenderID,
		CreatedAt:       domain.ResolveTimestamp(msg.CreatedAtMs, msg.ClientCreated, s.now()),
		ClientCreatedMs: msg.ClientCreated,
		Status:          domain.StatusSent,
	}
	if fresh {
		if err := s.cache.Save(s.room, msg.ID, text, msg.Ciphertext, msg.IV, msg.CreatedAtMs, msg.SenderID); err != nil {
			s.log.Warn("cache save failed", "id", msg.ID, "err", err)
		}
	}
}

// confirmEcho replaces the optimistic entry under localID with the
// server-confirmed message. The display text comes from decrypting the
// echo itself, so a miscorrelated entry can never put its text in another
// message's cache slot; the optimistic text is only a display fallback
// when decryption fails, and is never cached.
func (s *Session) confirmEcho(localID domain.MessageID, msg domain.EncryptedMessage) {
	carried := ""
	if local, ok := s.messages[localID]; ok {
		carried = local.Text
		delete(s.messages, localID)
	}
	delete(s.pending, msg.ClientCreated)
	delete(s.keyMemo, localID)
	if err := s.cache.ClearEntry(s.room, localID); err != nil {
		s.log.Warn("cache invalidation failed", "id", localID, "err", err)
	}

	text, fresh := s.resolveText(msg)
	if (text == cannotDecryptText || text == failedDecryptText) && carried != "" {
		text = carried
		fresh = false
	}

	s.messages[msg.ID] = &domain.DecryptedMessage{
		ID:              msg.ID,
		Text:            text,
		SenderID:        msg.SenderID,
		CreatedAt:       domain.ResolveTimestamp(msg.CreatedAtMs, msg.ClientCreated, s.now()),
		ClientCreatedMs: msg.ClientCreated,
		Status:          domain.StatusSent,
	}
	if fresh {
		if err := s.cache.Save(s.room, msg.ID, text, msg.Ciphertext, msg.IV, msg.CreatedAtMs, msg.SenderID); err != nil {
			s.log.Warn("cache save failed", "id", msg.ID, "err", err)
		}
	}
}

// resolveText produces the display text for a remote message: cache hit,
// else unwrap (memoized) and decrypt, else a placeholder. fresh reports a
// successful new decryption worth caching.
func (s *Session) resolveText(msg domain.EncryptedMessage) (text string, fresh bool) {
	if cached, ok := s.cache.Load(s.room, msg.ID, msg.Ciphertext, msg.IV); ok {
		return cached, false
	}

	if keyB64, ok := s.keyMemo[msg.ID]; ok {
		if plain, err := crypto.AESDecrypt(msg.Ciphertext, keyB64, msg.IV); err == nil {
			return plain, true
		}
		// The ciphertext changed under this id; the memoized key is stale.
		delete(s.keyMemo, msg.ID)
	}

	wrapped, ok := msg.EncryptedKeys[s.self]
	if !ok {
		return cannotDecryptText, false
	}
	privPEM, ok, err := s.keys.PrivateKey(s.self)
	if err != nil || !ok {
		return cannotDecryptText, false
	}
	keyB64, err := crypto.UnwrapKey(wrapped, privPEM)
	if err != nil {
		return failedDecryptText, false
	}
	plain, err := crypto.AESDecrypt(msg.Ciphertext, keyB64, msg.IV)
	if err != nil {
		return failedDecryptText, false
	}
	s.keyMemo[msg.ID] = keyB64
	return plain, true
}

// Snapshot returns the merged view, ascending by effective timestamp. When
// an optimistic entry and its server-confirmed counterpart coexist for the
// same client timestamp, only the server copy is shown. Distinct
// server-confirmed messages always all render.
func (s *Session) Snapshot() []domain.DecryptedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Client timestamps of our messages that have a server-confirmed copy.
	confirmed := make(map[int64]bool)
	for id, m := range s.messages {
		if m.SenderID == s.self && m.ClientCreatedMs != 0 && !isLocalID(id) {
			confirmed[m.ClientCreatedMs] = true
		}
	}

	out := make([]domain.DecryptedMessage, 0, len(s.messages))
	for id, m := range s.messages {
		if isLocalID(id) && confirmed[m.ClientCreatedMs] {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if a, b := out[i].CreatedAt.Millis(), out[j].CreatedAt.Millis(); a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Session) notify() {
	if s.onUpdate != nil {
		s.onUpdate(s.Snapshot())
	}
}

func (s *Session) setStatus(id domain.MessageID, status domain.MessageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		m.Status = status
	}
}

func isLocalID(id domain.MessageID) bool {
	return strings.HasPrefix(id.String(), localIDPrefix)
}
