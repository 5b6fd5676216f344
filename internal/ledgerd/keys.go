package ledgerd

import (
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/cipherledger/internal/fieldcipher"
	"github.com/MarkoPoloResearchLab/cipherledger/internal/transportcipher"
	"go.uber.org/zap"
)

// loadCiphers builds both ciphers from configured key material, generating
// ephemeral keys when none is set. Data sealed with an ephemeral field key
// is unreadable after restart.
func loadCiphers(cfg Config, logger *zap.Logger) (*fieldcipher.Cipher, *transportcipher.Cipher, error) {
	var fieldKey fieldcipher.Key
	var err error
	if strings.TrimSpace(cfg.FieldKey) == "" {
		logger.Warn("field key not configured; generated an ephemeral key")
		fieldKey, err = fieldcipher.GenerateKey()
	} else {
		fieldKey, err = fieldcipher.ParseKey(cfg.FieldKey)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("field key: %w", err)
	}
	fieldCipher, err := fieldcipher.New(fieldKey)
	if err != nil {
		return nil, nil, fmt.Errorf("field cipher: %w", err)
	}

	var transport *transportcipher.Cipher
	if strings.TrimSpace(cfg.TransportIdentity) == "" {
		logger.Warn("transport identity not configured; generated an ephemeral identity")
		transport, err = transportcipher.Generate()
	} else {
		transport, err = transportcipher.FromIdentity(cfg.TransportIdentity)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("transport identity: %w", err)
	}
	return fieldCipher, transport, nil
}
