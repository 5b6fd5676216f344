// Package transportcipher protects request fields in flight. The service holds
// an age X25519 identity; callers seal values to its public recipient
// (age1...) and the service opens them on receipt. Cipher-text travels as
// standard base64 of the binary age payload.
package transportcipher

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

var (
	// ErrDecryptionFailure reports cipher-text that is empty, malformed, or
	// sealed to a different recipient.
	ErrDecryptionFailure = errors.New("decryption failure")
	// ErrEncryptionFailure reports a failure to seal a value.
	ErrEncryptionFailure = errors.New("encryption failure")
	// ErrInvalidKey reports an unparseable identity or recipient.
	ErrInvalidKey = errors.New("invalid transport key")
)

// Cipher owns the service identity. Only the public recipient is exposed.
type Cipher struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// Generate creates a Cipher with a fresh identity.
func Generate() (*Cipher, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("%w: generating identity: %v", ErrInvalidKey, err)
	}
	return &Cipher{identity: identity, recipient: identity.Recipient()}, nil
}

// FromIdentity creates a Cipher from a pre-provisioned AGE-SECRET-KEY-1... string.
func FromIdentity(encodedIdentity string) (*Cipher, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(encodedIdentity))
	if err != nil {
		return nil, fmt.Errorf("%w: identity does not parse", ErrInvalidKey)
	}
	return &Cipher{identity: identity, recipient: identity.Recipient()}, nil
}

// GenerateEncodedIdentity returns a new identity string and its public
// recipient. Used by provisioning tooling only.
func GenerateEncodedIdentity() (string, string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("%w: generating identity: %v", ErrInvalidKey, err)
	}
	return identity.String(), identity.Recipient().String(), nil
}

// PublicKey returns the recipient callers seal inbound values to.
func (transportCipher *Cipher) PublicKey() string {
	return transportCipher.recipient.String()
}

// String never renders the identity.
func (transportCipher *Cipher) String() string {
	return "transportcipher.Cipher(" + transportCipher.PublicKey() + ")"
}

// DecryptInbound opens a value a caller sealed to PublicKey.
func (transportCipher *Cipher) DecryptInbound(ciphertext string) (string, error) {
	trimmed := strings.TrimSpace(ciphertext)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty cipher-text", ErrDecryptionFailure)
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: cipher-text is not base64", ErrDecryptionFailure)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), transportCipher.identity)
	if err != nil {
		return "", fmt.Errorf("%w: cipher-text does not open with this identity", ErrDecryptionFailure)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("%w: cipher-text payload is corrupt", ErrDecryptionFailure)
	}
	return string(plaintext), nil
}

// EncryptOutbound seals plaintext to the service's own recipient.
func (transportCipher *Cipher) EncryptOutbound(plaintext string) (string, error) {
	return seal(transportCipher.recipient, plaintext)
}

// Seal encrypts plaintext to an arbitrary age recipient string. Callers use it
// to prepare inbound values for a service whose PublicKey they hold.
func Seal(recipientKey string, plaintext string) (string, error) {
	recipient, err := age.ParseX25519Recipient(strings.TrimSpace(recipientKey))
	if err != nil {
		return "", fmt.Errorf("%w: recipient does not parse", ErrInvalidKey)
	}
	return seal(recipient, plaintext)
}

func seal(recipient age.Recipient, plaintext string) (string, error) {
	var buffer bytes.Buffer
	writer, err := age.Encrypt(&buffer, recipient)
	if err != nil {
		return "", fmt.Errorf("%w: creating encryptor: %v", ErrEncryptionFailure, err)
	}
	if _, err := io.WriteString(writer, plaintext); err != nil {
		return "", fmt.Errorf("%w: writing plaintext: %v", ErrEncryptionFailure, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: finalizing: %v", ErrEncryptionFailure, err)
	}
	return base64.StdEncoding.EncodeToString(buffer.Bytes()), nil
}
