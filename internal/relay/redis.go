package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cipherchat/internal/domain"
)

// MessageTTL bounds how long the relay retains envelopes. Clients keep
// their own decrypted cache, so old envelopes are only needed for devices
// that were offline.
const MessageTTL = 30 * 24 * time.Hour

const (
	roomListPrefix = "relay:room:"     // relay:room:{room} - list of message ids
	messagePrefix  = "relay:msg:"      // relay:msg:{id} - envelope JSON
	userKeyPrefix  = "relay:user:"     // relay:user:{user} - hash with publicKey field
	lastStampKey   = "relay:laststamp" // last assigned server timestamp
)

// stampScript assigns a strictly increasing server timestamp: the wall
// clock, bumped past the last assigned stamp when appends land on the
// same millisecond.
var stampScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
if now <= last then now = last + 1 end
redis.call('SET', KEYS[1], now)
return now
`)

// RedisStore persists relay state in Redis so the server can restart
// without losing rooms or published keys.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) AppendMessage(ctx context.Context, room domain.ChatRoomID, msg domain.EncryptedMessage) (domain.MessageID, error) {
	msg.ID = domain.MessageID(uuid.NewString())

	ms, err := stampScript.Run(ctx, s.rdb, []string{lastStampKey}, time.Now().UnixMilli()).Int64()
	if err != nil {
		return "", fmt.Errorf("relay timestamp: %w", err)
	}
	msg.CreatedAtMs = ms

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.rdb.Set(ctx, messagePrefix+msg.ID.String(), data, MessageTTL).Err(); err != nil {
		return "", fmt.Errorf("store envelope: %w", err)
	}
	listKey := roomListPrefix + room.String()
	if err := s.rdb.RPush(ctx, listKey, msg.ID.String()).Err(); err != nil {
		return "", fmt.Errorf("append to room: %w", err)
	}
	s.rdb.Expire(ctx, listKey, MessageTTL)
	return msg.ID, nil
}

func (s *RedisStore) ListMessages(ctx context.Context, room domain.ChatRoomID) ([]domain.EncryptedMessage, error) {
	listKey := roomListPrefix + room.String()
	ids, err := s.rdb.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list room: %w", err)
	}

	out := make([]domain.EncryptedMessage, 0, len(ids))
	for _, id := range ids {
		data, err := s.rdb.Get(ctx, messagePrefix+id).Result()
		if err == redis.Nil {
			// Envelope expired; drop the dangling list entry.
			s.rdb.LRem(ctx, listKey, 1, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get envelope %s: %w", id, err)
		}
		var msg domain.EncryptedMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisStore) GetPublicKey(ctx context.Context, user domain.UserID) (string, bool, error) {
	pem, err := s.rdb.HGet(ctx, userKeyPrefix+user.String(), "publicKey").Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get key for %s: %w", user, err)
	}
	return pem, pem != "", nil
}

// SetPublicKey writes only the publicKey field of the user hash, leaving
// any other fields untouched.
func (s *RedisStore) SetPublicKey(ctx context.Context, user domain.UserID, pem string) error {
	if err := s.rdb.HSet(ctx, userKeyPrefix+user.String(), "publicKey", pem).Err(); err != nil {
		return fmt.Errorf("publish key for %s: %w", user, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
