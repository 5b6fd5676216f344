// Package fieldcipher encrypts single string columns at the persistence
// boundary. Tokens are self-contained and use the layout
//
//	base64( [version: 1 byte] [nonce: 24 bytes] [ciphertext+tag] )
//
// The version byte is authenticated as additional data and every call to
// EncryptAtRest draws a fresh random nonce, so equal plaintexts produce
// different tokens.
package fieldcipher

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length in bytes of a field encryption key.
const KeySize = chacha20poly1305.KeySize

// TokenVersion prefixes every token produced by EncryptAtRest.
const TokenVersion byte = 0x01

const tokenOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var (
	// ErrInvalidArgument reports an input that can never be a valid token or key.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEncryptionFailure reports cipher setup failures and tokens that fail to open.
	ErrEncryptionFailure = errors.New("encryption failure")
)

// Key is an immutable field encryption key. The key bytes are never exposed.
type Key struct {
	material [KeySize]byte
	set      bool
}

// GenerateKey draws a new random key.
func GenerateKey() (Key, error) {
	var key Key
	if _, err := io.ReadFull(rand.Reader, key.material[:]); err != nil {
		return Key{}, fmt.Errorf("%w: generating key: %v", ErrEncryptionFailure, err)
	}
	key.set = true
	return key, nil
}

// GenerateEncodedKey draws a new random key and returns it base64 encoded,
// suitable for ParseKey. Used by provisioning tooling only.
func GenerateEncodedKey() (string, error) {
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("%w: generating key: %v", ErrEncryptionFailure, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ParseKey decodes a base64 key of exactly KeySize bytes.
func ParseKey(encoded string) (Key, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return Key{}, fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return Key{}, fmt.Errorf("%w: key is not base64", ErrInvalidArgument)
	}
	if len(raw) != KeySize {
		return Key{}, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidArgument, KeySize, len(raw))
	}
	var key Key
	copy(key.material[:], raw)
	key.set = true
	for index := range raw {
		raw[index] = 0
	}
	return key, nil
}

// String never renders key material.
func (key Key) String() string {
	return "fieldcipher.Key(redacted)"
}

// GoString never renders key material.
func (key Key) GoString() string {
	return key.String()
}

// Cipher applies a single Key for the lifetime of the process.
type Cipher struct {
	key Key
}

// New returns a Cipher bound to key.
func New(key Key) (*Cipher, error) {
	if !key.set {
		return nil, fmt.Errorf("%w: key is not initialized", ErrInvalidArgument)
	}
	return &Cipher{key: key}, nil
}

// EncryptAtRest seals plaintext into a token.
func (fieldCipher *Cipher) EncryptAtRest(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(fieldCipher.key.material[:])
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailure, err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrEncryptionFailure, err)
	}

	output := make([]byte, 1+len(nonce), tokenOverhead+len(plaintext))
	output[0] = TokenVersion
	copy(output[1:], nonce[:])
	output = aead.Seal(output, nonce[:], []byte(plaintext), []byte{TokenVersion})
	return base64.StdEncoding.EncodeToString(output), nil
}

// DecryptAtRest opens a token produced by EncryptAtRest under the same key.
func (fieldCipher *Cipher) DecryptAtRest(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidArgument)
	}
	blob, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: token is not base64", ErrEncryptionFailure)
	}
	if len(blob) < tokenOverhead {
		return "", fmt.Errorf("%w: token is %d bytes, minimum is %d", ErrEncryptionFailure, len(blob), tokenOverhead)
	}
	if blob[0] != TokenVersion {
		return "", fmt.Errorf("%w: token version %d is not supported", ErrEncryptionFailure, blob[0])
	}

	aead, err := chacha20poly1305.NewX(fieldCipher.key.material[:])
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailure, err)
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	sealed := blob[1+chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, sealed, []byte{blob[0]})
	if err != nil {
		return "", fmt.Errorf("%w: token failed authentication", ErrEncryptionFailure)
	}
	return string(plaintext), nil
}
