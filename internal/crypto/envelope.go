package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"runtime"

	"cipherchat/internal/domain"
)

const (
	// AESKeyBytes is the session key size (AES-256).
	AESKeyBytes = 32
	// IVBytes is the CBC initialisation vector size.
	IVBytes = aes.BlockSize
)

// GenerateAESKey returns a fresh 256-bit session key. The key exists only
// for the lifetime of one message encryption; callers Wipe it after the
// wrapped copies are built.
func GenerateAESKey() ([]byte, error) {
	key := make([]byte, AESKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRandomSource, err)
	}
	return key, nil
}

// AESEncrypt encrypts plaintext under key with AES-256-CBC and PKCS#7
// padding, generating a fresh random IV. Both outputs are base64.
func AESEncrypt(plaintext string, key []byte) (ciphertextB64, ivB64 string, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}
	iv := make([]byte, IVBytes)
	if _, err := rand.Read(iv); err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrRandomSource, err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	return base64.StdEncoding.EncodeToString(ct), base64.StdEncoding.EncodeToString(iv), nil
}

// AESDecrypt reverses AESEncrypt. All three inputs are base64. Malformed
// input of any kind reports domain.ErrPaddingFailure.
func AESDecrypt(ciphertextB64, keyB64, ivB64 string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext not base64", domain.ErrPaddingFailure)
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return "", fmt.Errorf("%w: key not base64", domain.ErrPaddingFailure)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", fmt.Errorf("%w: iv not base64", domain.ErrPaddingFailure)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}
	if len(iv) != aes.BlockSize || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: bad block length", domain.ErrPaddingFailure)
	}
	padded := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ct)
	plain, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// WrapKey encrypts the base64 form of an AES session key for one recipient
// with RSA-OAEP-SHA256. The result is base64.
func WrapKey(aesKeyB64, recipientPublicKeyPEM string) (string, error) {
	pub, err := ParsePublicKey(recipientPublicKeyPEM)
	if err != nil {
		return "", err
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(aesKeyB64), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// UnwrapKey recovers the base64 AES key from a wrapped blob. A blob wrapped
// for a different key, or corrupted, reports domain.ErrUnwrapFailure.
func UnwrapKey(wrappedB64, privateKeyPEM string) (string, error) {
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}
	ct, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil {
		return "", fmt.Errorf("%w: not base64", domain.ErrUnwrapFailure)
	}
	keyB64, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnwrapFailure, err)
	}
	return string(keyB64), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad length", domain.ErrPaddingFailure)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad pad byte", domain.ErrPaddingFailure)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: inconsistent padding", domain.ErrPaddingFailure)
		}
	}
	return b[:len(b)-n], nil
}

// Wipe overwrites session key material with zeros once the wrapped copies
// exist. Kept out of line so the stores are not elided as dead writes.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
