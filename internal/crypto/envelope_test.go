package crypto_test

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
)

func TestAES_RoundTrip(t *testing.T) {
	key, err := crypto.GenerateAESKey()
	if err != nil {
		t.Fatalf("GenerateAESKey: %v", err)
	}
	keyB64 := base64.StdEncoding.EncodeToString(key)

	for _, plaintext := range []string{
		"hello",
		"",
		"exactly sixteen!",
		strings.Repeat("long message body ", 200),
		"zażółć gęślą jaźń éè",
	} {
		ct, iv, err := crypto.AESEncrypt(plaintext, key)
		if err != nil {
			t.Fatalf("AESEncrypt(%q): %v", plaintext, err)
		}
		got, err := crypto.AESDecrypt(ct, keyB64, iv)
		if err != nil {
			t.Fatalf("AESDecrypt(%q): %v", plaintext, err)
		}
		if got != plaintext {
			t.Fatalf("round trip: got %q, want %q", got, plaintext)
		}
	}
}

func TestAES_IVUnique(t *testing.T) {
	key, err := crypto.GenerateAESKey()
	if err != nil {
		t.Fatalf("GenerateAESKey: %v", err)
	}
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		_, iv, err := crypto.AESEncrypt("same plaintext", key)
		if err != nil {
			t.Fatalf("AESEncrypt: %v", err)
		}
		if _, dup := seen[iv]; dup {
			t.Fatalf("IV repeated after %d encryptions", i)
		}
		seen[iv] = struct{}{}
	}
}

func TestAES_Decrypt_Malformed(t *testing.T) {
	key, _ := crypto.GenerateAESKey()
	keyB64 := base64.StdEncoding.EncodeToString(key)
	ct, iv, err := crypto.AESEncrypt("payload", key)
	if err != nil {
		t.Fatalf("AESEncrypt: %v", err)
	}

	cases := []struct {
		name        string
		ct, key, iv string
	}{
		{"not base64", "%%%", keyB64, iv},
		{"truncated ciphertext", ct[:4], keyB64, iv},
		{"empty ciphertext", "", keyB64, iv},
		{"short iv", ct, keyB64, base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tc := range cases {
		if _, err := crypto.AESDecrypt(tc.ct, tc.key, tc.iv); !errors.Is(err, domain.ErrPaddingFailure) {
			t.Errorf("%s: got %v, want ErrPaddingFailure", tc.name, err)
		}
	}

	// Wrong key must fail, not return garbage silently accepted as valid.
	other, _ := crypto.GenerateAESKey()
	otherB64 := base64.StdEncoding.EncodeToString(other)
	if got, err := crypto.AESDecrypt(ct, otherB64, iv); err == nil && got == "payload" {
		t.Fatal("decrypt with wrong key returned original plaintext")
	}
}

func TestWrap_RoundTrip(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	key, _ := crypto.GenerateAESKey()
	keyB64 := base64.StdEncoding.EncodeToString(key)

	wrapped, err := crypto.WrapKey(keyB64, kp.PublicPEM)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	got, err := crypto.UnwrapKey(wrapped, kp.PrivatePEM)
	if err != nil {
		t.Fatalf("UnwrapKey: %v", err)
	}
	if got != keyB64 {
		t.Fatalf("unwrap: got %q, want %q", got, keyB64)
	}
}

func TestWrap_InvalidPEM(t *testing.T) {
	if _, err := crypto.WrapKey("aGVsbG8=", "not a pem"); !errors.Is(err, domain.ErrInvalidKey) {
		t.Fatalf("got %v, want ErrInvalidKey", err)
	}
}

func TestUnwrap_WrongRecipient(t *testing.T) {
	alice, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	bob, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	key, _ := crypto.GenerateAESKey()
	wrapped, err := crypto.WrapKey(base64.StdEncoding.EncodeToString(key), alice.PublicPEM)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	if _, err := crypto.UnwrapKey(wrapped, bob.PrivatePEM); !errors.Is(err, domain.ErrUnwrapFailure) {
		t.Fatalf("got %v, want ErrUnwrapFailure", err)
	}
}

func TestCipherFingerprint_Binds(t *testing.T) {
	fp := crypto.CipherFingerprint("Y2lwaGVy", "aXY=")
	if fp != crypto.CipherFingerprint("Y2lwaGVy", "aXY=") {
		t.Fatal("fingerprint not deterministic")
	}
	if fp == crypto.CipherFingerprint("Y2lwaGVX", "aXY=") {
		t.Fatal("ciphertext change did not change fingerprint")
	}
	if fp == crypto.CipherFingerprint("Y2lwaGVy", "aXY2") {
		t.Fatal("iv change did not change fingerprint")
	}
}

func TestWipeZeroes(t *testing.T) {
	key, err := crypto.GenerateAESKey()
	if err != nil {
		t.Fatalf("GenerateAESKey: %v", err)
	}
	crypto.Wipe(key)
	for i, b := range key {
		if b != 0 {
			t.Fatalf("byte %d not cleared", i)
		}
	}
}
