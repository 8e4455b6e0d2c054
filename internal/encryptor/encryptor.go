package encryptor

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = chacha20poly1305.NonceSize
	keySize   = chacha20poly1305.KeySize
	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
)

// ErrOpen reports sealed data that cannot be opened: a wrong passphrase and
// tampered bytes are indistinguishable.
var ErrOpen = errors.New("cannot open sealed data")

// Encryptor seals and opens individual chunks. Every sealed chunk carries
// its own salt and nonce prepended, so sealed chunks are self-contained and
// can be opened in any order.
type Encryptor interface {
	Seal(plain []byte, passphrase string) ([]byte, error)
	Open(sealed []byte, passphrase string) ([]byte, error)
}

type chaChaEncryptor struct{}

// NewEncryptor returns the ChaCha20-Poly1305 encryptor with scrypt key
// derivation.
func NewEncryptor() Encryptor {
	return &chaChaEncryptor{}
}

func (e *chaChaEncryptor) deriveKey(passphrase string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
}

// Seal encrypts plain with a key derived from the passphrase and a fresh
// salt. Output layout: salt || nonce || ciphertext.
func (e *chaChaEncryptor) Seal(plain []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := e.deriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD cipher: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plain)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, nil), nil
}

// Open reverses Seal. It fails with ErrOpen on a wrong passphrase or any
// modification of the sealed bytes; it never returns partial plaintext.
func (e *chaChaEncryptor) Open(sealed []byte, passphrase string) ([]byte, error) {
	if len(sealed) < saltSize+nonceSize {
		return nil, fmt.Errorf("%w: input too short", ErrOpen)
	}

	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+nonceSize]
	ciphertext := sealed[saltSize+nonceSize:]

	key, err := e.deriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD cipher: %w", err)
	}

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return plain, nil
}
