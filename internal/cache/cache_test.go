package cache_test

import (
	"encoding/base64"
	"testing"
	"time"

	"cipherchat/internal/cache"
	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/keystore"
)

const (
	room  = domain.ChatRoomID("alice_bob")
	alice = domain.UserID("alice")
)

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	return cache.New(cache.NewMemoryStorage(), keystore.NewMemoryStore(), alice, nil)
}

func encryptFor(t *testing.T, plaintext string) (ct, iv string) {
	t.Helper()
	key, err := crypto.GenerateAESKey()
	if err != nil {
		t.Fatalf("GenerateAESKey: %v", err)
	}
	ct, iv, err = crypto.AESEncrypt(plaintext, key)
	if err != nil {
		t.Fatalf("AESEncrypt: %v", err)
	}
	return ct, iv
}

func TestCache_SaveLoad_OK(t *testing.T) {
	c := newCache(t)
	ct, iv := encryptFor(t, "hello")

	if err := c.Save(room, "m1", "hello", ct, iv, 1000, alice); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok := c.Load(room, "m1", ct, iv)
	if !ok || got != "hello" {
		t.Fatalf("load: ok=%v text=%q", ok, got)
	}
}

func TestCache_FingerprintMismatch_NeverServes(t *testing.T) {
	c := newCache(t)
	ct, iv := encryptFor(t, "hello")
	if err := c.Save(room, "m1", "hello", ct, iv, 1000, alice); err != nil {
		t.Fatalf("save: %v", err)
	}

	otherCT, otherIV := encryptFor(t, "tampered")
	if _, ok := c.Load(room, "m1", otherCT, iv); ok {
		t.Fatal("served plaintext for mutated ciphertext")
	}
	if _, ok := c.Load(room, "m1", ct, otherIV); ok {
		t.Fatal("served plaintext for mutated iv")
	}
	// The untouched payload still hits.
	if got, ok := c.Load(room, "m1", ct, iv); !ok || got != "hello" {
		t.Fatalf("original payload: ok=%v text=%q", ok, got)
	}
}

func TestCache_TTL_ExpiresAndPrunes(t *testing.T) {
	c := newCache(t)
	ct, iv := encryptFor(t, "old news")
	if err := c.Save(room, "m1", "old news", ct, iv, 1000, alice); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Jump past the TTL.
	c.Now = func() time.Time { return time.Now().Add(cache.DefaultTTL + time.Hour) }

	if _, ok := c.Load(room, "m1", ct, iv); ok {
		t.Fatal("expired entry served")
	}
	if all := c.LoadAll(room); len(all) != 0 {
		t.Fatalf("expired entry in LoadAll: %v", all)
	}
}

func TestCache_CapacityBound(t *testing.T) {
	c := newCache(t)
	c.MaxPerChat = 3

	type saved struct{ ct, iv string }
	var payloads []saved
	ids := []domain.MessageID{"m1", "m2", "m3", "m4"}
	for _, id := range ids {
		ct, iv := encryptFor(t, string(id))
		payloads = append(payloads, saved{ct, iv})
		if err := c.Save(room, id, string(id), ct, iv, 0, alice); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	// Oldest entry evicted, newest three retained.
	if _, ok := c.Load(room, "m1", payloads[0].ct, payloads[0].iv); ok {
		t.Fatal("oldest entry survived truncation")
	}
	for i, id := range ids[1:] {
		if _, ok := c.Load(room, id, payloads[i+1].ct, payloads[i+1].iv); !ok {
			t.Fatalf("entry %s evicted prematurely", id)
		}
	}
}

func TestCache_LoadAll(t *testing.T) {
	c := newCache(t)
	ct1, iv1 := encryptFor(t, "one")
	ct2, iv2 := encryptFor(t, "two")
	if err := c.Save(room, "m1", "one", ct1, iv1, 1000, alice); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.Save(room, "m2", "two", ct2, iv2, 2000, "bob"); err != nil {
		t.Fatalf("save: %v", err)
	}

	all := c.LoadAll(room)
	if len(all) != 2 {
		t.Fatalf("LoadAll: %d entries", len(all))
	}
	if all["m1"].Text != "one" || all["m1"].CreatedAtMs != 1000 || all["m1"].SenderID != alice {
		t.Fatalf("m1: %+v", all["m1"])
	}
	if all["m2"].Text != "two" || all["m2"].SenderID != domain.UserID("bob") {
		t.Fatalf("m2: %+v", all["m2"])
	}
}

func TestCache_ClearEntryAndChat(t *testing.T) {
	c := newCache(t)
	ct, iv := encryptFor(t, "bye")
	if err := c.Save(room, "m1", "bye", ct, iv, 0, alice); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.ClearEntry(room, "m1"); err != nil {
		t.Fatalf("clear entry: %v", err)
	}
	if _, ok := c.Load(room, "m1", ct, iv); ok {
		t.Fatal("cleared entry served")
	}

	if err := c.Save(room, "m2", "bye", ct, iv, 0, alice); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.ClearChat(room); err != nil {
		t.Fatalf("clear chat: %v", err)
	}
	if all := c.LoadAll(room); len(all) != 0 {
		t.Fatalf("chat survived clear: %v", all)
	}
}

func TestCache_EncryptedAtRest(t *testing.T) {
	storage := cache.NewMemoryStorage()
	ks := keystore.NewMemoryStore()
	c := cache.New(storage, ks, alice, nil)

	ct, iv := encryptFor(t, "secret text")
	if err := c.Save(room, "m1", "secret text", ct, iv, 0, alice); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A master key was minted and the raw bucket holds no plaintext.
	master, ok, err := ks.Get("cacheMasterKey:alice")
	if err != nil || !ok {
		t.Fatalf("master key: ok=%v err=%v", ok, err)
	}
	if _, err := base64.StdEncoding.DecodeString(master); err != nil {
		t.Fatalf("master key not base64: %v", err)
	}

	var raw struct {
		Messages []struct {
			Text          string `json:"text"`
			TextEncrypted string `json:"textEncrypted"`
		} `json:"messages"`
	}
	found, err := storage.Read("cache:"+room.String(), &raw)
	if err != nil || !found {
		t.Fatalf("raw read: found=%v err=%v", found, err)
	}
	if raw.Messages[0].Text != "" {
		t.Fatal("plaintext stored despite secure storage being available")
	}
	if raw.Messages[0].TextEncrypted == "" {
		t.Fatal("no sealed text stored")
	}
}

func TestCache_PlaintextFallback_NoSecureStorage(t *testing.T) {
	c := cache.New(cache.NewMemoryStorage(), nil, alice, nil)
	ct, iv := encryptFor(t, "degraded")
	if err := c.Save(room, "m1", "degraded", ct, iv, 0, alice); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, ok := c.Load(room, "m1", ct, iv); !ok || got != "degraded" {
		t.Fatalf("load in degraded mode: ok=%v text=%q", ok, got)
	}
}

func TestCache_EmptyPlaintextServedInDegradedMode(t *testing.T) {
	c := cache.New(cache.NewMemoryStorage(), nil, alice, nil)
	ct, iv := encryptFor(t, "")
	if err := c.Save(room, "m1", "", ct, iv, 0, alice); err != nil {
		t.Fatalf("save: %v", err)
	}
	// An empty cached plaintext is still a hit, not a miss.
	if got, ok := c.Load(room, "m1", ct, iv); !ok || got != "" {
		t.Fatalf("empty plaintext not served: ok=%v text=%q", ok, got)
	}
	if all := c.LoadAll(room); len(all) != 1 {
		t.Fatalf("LoadAll dropped the empty entry: %v", all)
	}
}
