package transportcipher

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestOutboundInboundRoundTrip(test *testing.T) {
	test.Parallel()
	transportCipher := mustGenerate(test)
	for _, input := range []string{"", "T1", "ACC-ÄÖÜ", "50.25", strings.Repeat("x", 10000)} {
		ciphertext, err := transportCipher.EncryptOutbound(input)
		if err != nil {
			test.Fatalf("encrypt %q: %v", input, err)
		}
		if len(input) >= 8 && strings.Contains(ciphertext, input) {
			test.Fatalf("cipher-text contains plaintext")
		}
		plaintext, err := transportCipher.DecryptInbound(ciphertext)
		if err != nil {
			test.Fatalf("decrypt: %v", err)
		}
		if plaintext != input {
			test.Fatalf("expected %q, got %q", input, plaintext)
		}
	}
}

func TestSealWithPublicKeyOpensInbound(test *testing.T) {
	test.Parallel()
	transportCipher := mustGenerate(test)
	ciphertext, err := Seal(transportCipher.PublicKey(), "ACC-A")
	if err != nil {
		test.Fatalf("seal: %v", err)
	}
	plaintext, err := transportCipher.DecryptInbound(ciphertext)
	if err != nil {
		test.Fatalf("decrypt: %v", err)
	}
	if plaintext != "ACC-A" {
		test.Fatalf("expected ACC-A, got %q", plaintext)
	}
}

func TestDecryptInboundFailures(test *testing.T) {
	test.Parallel()
	transportCipher := mustGenerate(test)
	otherCipher := mustGenerate(test)
	foreign, err := otherCipher.EncryptOutbound("T1")
	if err != nil {
		test.Fatalf("encrypt: %v", err)
	}

	testCases := []struct {
		name       string
		ciphertext string
	}{
		{name: "empty", ciphertext: ""},
		{name: "blank", ciphertext: "   "},
		{name: "not base64", ciphertext: "***"},
		{name: "not age", ciphertext: base64.StdEncoding.EncodeToString([]byte("plain bytes"))},
		{name: "wrong recipient", ciphertext: foreign},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, err := transportCipher.DecryptInbound(testCase.ciphertext)
			if !errors.Is(err, ErrDecryptionFailure) {
				test.Fatalf("expected ErrDecryptionFailure, got %v", err)
			}
		})
	}
}

func TestFromIdentity(test *testing.T) {
	test.Parallel()
	identity, recipient, err := GenerateEncodedIdentity()
	if err != nil {
		test.Fatalf("generate: %v", err)
	}
	transportCipher, err := FromIdentity(identity)
	if err != nil {
		test.Fatalf("from identity: %v", err)
	}
	if transportCipher.PublicKey() != recipient {
		test.Fatalf("expected recipient %q, got %q", recipient, transportCipher.PublicKey())
	}
	if strings.Contains(transportCipher.String(), identity) {
		test.Fatalf("identity leaked through String")
	}
	if _, err := FromIdentity("AGE-SECRET-KEY-NOPE"); !errors.Is(err, ErrInvalidKey) {
		test.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSealRejectsInvalidRecipient(test *testing.T) {
	test.Parallel()
	if _, err := Seal("age1invalid", "value"); !errors.Is(err, ErrInvalidKey) {
		test.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func mustGenerate(test *testing.T) *Cipher {
	test.Helper()
	transportCipher, err := Generate()
	if err != nil {
		test.Fatalf("generate: %v", err)
	}
	return transportCipher
}
