// Package cryptox seals OAuth credentials for storage at rest. A key is
// derived once from the configured secret with Argon2id; every blob gets a
// fresh XChaCha20-Poly1305 nonce and is bound to its owner id as
// associated data, so a blob copied onto another row fails to open.
package cryptox

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/calsync/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const sealVersion byte = 1

var ErrCorrupt = errors.New("sealed blob is corrupt")

// DeriveKey stretches secret into a 32-byte key.
func DeriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

// Sealer encrypts and decrypts JSON-serializable values.
type Sealer struct {
	key []byte
}

// NewSealer derives the sealing key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("credential key is empty")
	}
	return &Sealer{key: DeriveKey([]byte(secret), []byte("calsync/credentials/v1"))}, nil
}

// Seal serializes v and encrypts it. The result is
// version || nonce || ciphertext.
func (s *Sealer) Seal(ownerID string, v any) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aead.NonceSize())
	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealVersion)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, []byte(ownerID)), nil
}

// Open decrypts a blob produced by Seal for the same ownerID into v.
func (s *Sealer) Open(ownerID string, blob []byte, v any) error {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return err
	}
	if len(blob) < 1+aead.NonceSize()+aead.Overhead() || blob[0] != sealVersion {
		return ErrCorrupt
	}
	nonce := blob[1 : 1+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, blob[1+aead.NonceSize():], []byte(ownerID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}
