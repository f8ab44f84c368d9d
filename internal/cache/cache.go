package cache

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/logger"
)

const (
	// DefaultTTL is how long a cached plaintext stays servable.
	DefaultTTL = 30 * 24 * time.Hour
	// DefaultMaxPerChat bounds each room's bucket; oldest entries fall off.
	DefaultMaxPerChat = 1000

	storagePrefix = "cache:"
	masterKeyName = "cacheMasterKey:"
)

// entry is the stored form of one cached message. TextEncrypted holds
// "ivB64:ctB64" under the master key; in degraded mode Text holds the
// plaintext and Plain marks it present, so an empty message stays
// distinguishable from an absent one.
type entry struct {
	ID            domain.MessageID `json:"id"`
	TextEncrypted string           `json:"textEncrypted,omitempty"`
	Text          string           `json:"text,omitempty"`
	Plain         bool             `json:"plain,omitempty"`
	CipherHash    string           `json:"cipherHash"`
	CreatedAtMs   int64            `json:"createdAtMs"`
	SavedAtMs     int64            `json:"savedAtMs"`
	SenderID      domain.UserID    `json:"senderId"`
}

type bucket struct {
	Messages []entry `json:"messages"`
}

// Cache is a per-user message cache. All failures degrade to cache misses;
// the cache never blocks message display.
type Cache struct {
	// TTL and MaxPerChat default to DefaultTTL and DefaultMaxPerChat.
	TTL        time.Duration
	MaxPerChat int
	// Now is the clock; replaceable in tests.
	Now func() time.Time

	storage Storage
	keys    domain.SecureKeyStore
	user    domain.UserID
	log     *logger.Logger

	mu          sync.Mutex
	warnedPlain bool
}

// New builds a cache for one user. keys may be nil, in which case plaintext
// is stored unencrypted (degraded mode, logged once).
func New(storage Storage, keys domain.SecureKeyStore, user domain.UserID, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		TTL:        DefaultTTL,
		MaxPerChat: DefaultMaxPerChat,
		Now:        time.Now,
		storage:    storage,
		keys:       keys,
		user:       user,
		log:        log,
	}
}

// Save records freshly decrypted plaintext for a message, replacing any
// previous entry with the same id and truncating the room bucket to
// MaxPerChat.
func (c *Cache) Save(room domain.ChatRoomID, id domain.MessageID, plaintext, ciphertext, iv string, createdAtMs int64, sender domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b bucket
	if _, err := c.storage.Read(c.key(room), &b); err != nil {
		return fmt.Errorf("cache read %s: %w", room, err)
	}

	now := c.Now().UnixMilli()
	if createdAtMs == 0 {
		createdAtMs = now
	}
	e := entry{
		ID:          id,
		CipherHash:  crypto.CipherFingerprint(ciphertext, iv),
		CreatedAtMs: createdAtMs,
		SavedAtMs:   now,
		SenderID:    sender,
	}

	if master := c.masterKey(); master != "" {
		sealed, err := sealText(plaintext, master)
		if err != nil {
			return fmt.Errorf("cache seal: %w", err)
		}
		e.TextEncrypted = sealed
	} else {
		e.Text = plaintext
		e.Plain = true
	}

	kept := b.Messages[:0]
	for _, m := range b.Messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	b.Messages = append([]entry{e}, kept...)
	if len(b.Messages) > c.MaxPerChat {
		b.Messages = b.Messages[:c.MaxPerChat]
	}
	return c.storage.Write(c.key(room), &b)
}

// Load returns the cached plaintext for id, or ok=false when the entry is
// absent, expired (evicting it), or bound to a different ciphertext. A
// fingerprint mismatch never yields plaintext.
func (c *Cache) Load(room domain.ChatRoomID, id domain.MessageID, ciphertext, iv string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b bucket
	found, err := c.storage.Read(c.key(room), &b)
	if err != nil {
		c.log.Warn("cache read failed, treating as miss", "room", room, "err", err)
		return "", false
	}
	if !found {
		return "", false
	}

	idx := -1
	for i, m := range b.Messages {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}
	e := b.Messages[idx]

	if c.expired(e) {
		b.Messages = append(b.Messages[:idx], b.Messages[idx+1:]...)
		if err := c.storage.Write(c.key(room), &b); err != nil {
			c.log.Warn("cache eviction write failed", "room", room, "err", err)
		}
		return "", false
	}

	if e.CipherHash == "" || e.CipherHash != crypto.CipherFingerprint(ciphertext, iv) {
		return "", false
	}

	text, ok := c.openEntry(e)
	return text, ok
}

// LoadAll returns every live entry for room, pruning expired ones.
func (c *Cache) LoadAll(room domain.ChatRoomID) map[domain.MessageID]domain.CachedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[domain.MessageID]domain.CachedMessage)

	var b bucket
	found, err := c.storage.Read(c.key(room), &b)
	if err != nil || !found {
		if err != nil {
			c.log.Warn("cache read failed, treating as empty", "room", room, "err", err)
		}
		return out
	}

	kept := b.Messages[:0]
	pruned := false
	for _, e := range b.Messages {
		if c.expired(e) {
			pruned = true
			continue
		}
		kept = append(kept, e)
		if text, ok := c.openEntry(e); ok {
			out[e.ID] = domain.CachedMessage{
				Text:        text,
				CreatedAtMs: e.CreatedAtMs,
				SenderID:    e.SenderID,
			}
		}
	}
	if pruned {
		b.Messages = kept
		if err := c.storage.Write(c.key(room), &b); err != nil {
			c.log.Warn("cache prune write failed", "room", room, "err", err)
		}
	}
	return out
}

// ClearEntry drops one message from the room bucket.
func (c *Cache) ClearEntry(room domain.ChatRoomID, id domain.MessageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b bucket
	found, err := c.storage.Read(c.key(room), &b)
	if err != nil || !found {
		return err
	}
	kept := b.Messages[:0]
	for _, m := range b.Messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	b.Messages = kept
	return c.storage.Write(c.key(room), &b)
}

// ClearChat drops the whole room bucket.
func (c *Cache) ClearChat(room domain.ChatRoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.storage.Remove(c.key(room))
}

func (c *Cache) key(room domain.ChatRoomID) string {
	return storagePrefix + room.String()
}

func (c *Cache) expired(e entry) bool {
	return e.SavedAtMs > 0 && c.Now().UnixMilli()-e.SavedAtMs > c.TTL.Milliseconds()
}

// masterKey returns the per-user at-rest key, creating it on first use.
// An empty return means degraded plaintext mode.
func (c *Cache) masterKey() string {
	if c.keys == nil {
		c.warnPlain()
		return ""
	}
	name := masterKeyName + c.user.String()
	existing, ok, err := c.keys.Get(name)
	if err != nil {
		c.log.Warn("secure storage unavailable for cache encryption", "err", err)
		c.warnPlain()
		return ""
	}
	if ok {
		return existing
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		c.warnPlain()
		return ""
	}
	key := base64.StdEncoding.EncodeToString(raw)
	if err := c.keys.Set(name, key); err != nil {
		c.log.Warn("storing cache master key failed", "err", err)
		c.warnPlain()
		return ""
	}
	return key
}

func (c *Cache) warnPlain() {
	if !c.warnedPlain {
		c.warnedPlain = true
		c.log.Warn("message cache running without at-rest encryption")
	}
}

func (c *Cache) openEntry(e entry) (string, bool) {
	if e.TextEncrypted == "" {
		return e.Text, e.Plain
	}
	master := c.masterKey()
	if master == "" {
		return "", false
	}
	ivB64, ctB64, found := strings.Cut(e.TextEncrypted, ":")
	if !found {
		return "", false
	}
	text, err := crypto.AESDecrypt(ctB64, master, ivB64)
	if err != nil {
		c.log.Warn("cache entry undecryptable", "id", e.ID, "err", err)
		return "", false
	}
	return text, true
}

// sealText encrypts plaintext under the master key as "ivB64:ctB64".
func sealText(plaintext, masterB64 string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(masterB64)
	if err != nil {
		return "", err
	}
	ct, iv, err := crypto.AESEncrypt(plaintext, key)
	if err != nil {
		return "", err
	}
	return iv + ":" + ct, nil
}

var _ domain.MessageCache = (*Cache)(nil)
