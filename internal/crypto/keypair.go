package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"cipherchat/internal/domain"
)

// RSABits is the key-pair modulus size.
const RSABits = 2048

// GenerateKeyPair creates a fresh RSA-2048 pair and renders both halves as
// PEM. This is the one CPU-heavy operation in the package; callers that
// care about latency run it off the interactive path.
func GenerateKeyPair() (domain.KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSABits)
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("%w: %v", domain.ErrKeyGen, err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("%w: %v", domain.ErrKeyGen, err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	return domain.KeyPair{PublicPEM: string(pubPEM), PrivatePEM: string(privPEM)}, nil
}

// PublicPEMFromPrivate derives the PKIX public key PEM from a private key
// PEM.
func PublicPEMFromPrivate(privatePEM string) (string, error) {
	priv, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return "", err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})), nil
}

// ParsePublicKey decodes an RSA public key from PEM, accepting both PKIX
// ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC KEY") encodings.
func ParsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", domain.ErrInvalidKey)
	}
	switch block.Type {
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
		}
		pub, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", domain.ErrInvalidKey)
		}
		return pub, nil
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", domain.ErrInvalidKey, block.Type)
	}
}

// ParsePrivateKey decodes an RSA private key from PEM, accepting PKCS#1
// ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings.
func ParsePrivateKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", domain.ErrInvalidKey)
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
		}
		return priv, nil
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
		}
		priv, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", domain.ErrInvalidKey)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", domain.ErrInvalidKey, block.Type)
	}
}
