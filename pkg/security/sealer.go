package security

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	keySize   = 32
	nonceSize = 24
)

// kdfSalt is fixed so the same secret always yields the same key.
var kdfSalt = []byte("storefront-delivery-codes")

var (
	ErrSecretRequired = errors.New("sealing secret is required")
	// ErrInvalidSealed signals a truncated, tampered or foreign ciphertext.
	ErrInvalidSealed = errors.New("invalid sealed payload")
)

// Sealer encrypts delivery codes at rest with NaCl secretbox.
type Sealer struct {
	key [keySize]byte
}

// NewSealer accepts a 64 character hex key, or any other secret which is
// stretched with Argon2id.
func NewSealer(secret string) (*Sealer, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, ErrSecretRequired
	}

	var s Sealer
	if raw, err := hex.DecodeString(trimmed); err == nil && len(raw) == keySize {
		copy(s.key[:], raw)
		return &s, nil
	}
	derived := argon2.IDKey([]byte(trimmed), kdfSalt, 1, 64*1024, 1, keySize)
	copy(s.key[:], derived)
	return &s, nil
}

// Seal returns nonce || box.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrInvalidSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrInvalidSealed
	}
	return plain, nil
}

func (s *Sealer) SealCodes(codes []types.DeliveryCode) ([]byte, error) {
	raw, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("encode codes: %w", err)
	}
	return s.Seal(raw)
}

func (s *Sealer) OpenCodes(sealed []byte) ([]types.DeliveryCode, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	raw, err := s.Open(sealed)
	if err != nil {
		return nil, err
	}
	var codes []types.DeliveryCode
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil, fmt.Errorf("decode codes: %w", err)
	}
	return codes, nil
}
