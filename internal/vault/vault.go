package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/inkform/inkform-backend/internal/platform/envutil"
)

// Vault seals and opens per-user storage credentials. Keys are derived from
// the master key and the owning user id, so a blob sealed for one user can
// never be opened for another. User ids are immutable post-creation, which
// makes the binding safe.
type Vault interface {
	Encrypt(userID uuid.UUID, plaintext []byte) ([]byte, error)
	Decrypt(userID uuid.UUID, sealed []byte) ([]byte, error)
}

var ErrInvalidCiphertext = errors.New("invalid ciphertext")

type vault struct {
	masterKey []byte
}

func NewFromEnv() (Vault, error) {
	key := envutil.String("VAULT_MASTER_KEY", "")
	if key == "" {
		return nil, fmt.Errorf("missing VAULT_MASTER_KEY")
	}
	return New([]byte(key))
}

func New(masterKey []byte) (Vault, error) {
	if len(masterKey) < 16 {
		return nil, fmt.Errorf("vault master key too short")
	}
	return &vault{masterKey: masterKey}, nil
}

func (v *vault) deriveKey(userID uuid.UUID) ([]byte, error) {
	r := hkdf.New(sha256.New, v.masterKey, userID[:], []byte("storage-credentials"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func (v *vault) Encrypt(userID uuid.UUID, plaintext []byte) ([]byte, error) {
	key, err := v.deriveKey(userID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *vault) Decrypt(userID uuid.UUID, sealed []byte) ([]byte, error) {
	key, err := v.deriveKey(userID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrInvalidCiphertext
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// Mask renders a secret for display: first two and last two characters with
// the middle elided. Listing endpoints must never show more.
func Mask(secret string) string {
	s := strings.TrimSpace(secret)
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", 6) + s[len(s)-2:]
}
