package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
)

// Encryptor holds the process root key. The root key only ever wraps
// per-tenant data keys; provider tokens are sealed with a data key.
type Encryptor struct {
	rootKey []byte
}

// NewEncryptor creates an Encryptor from a 32-byte hex-encoded root key.
func NewEncryptor(rootKeyHex string) (*Encryptor, error) {
	key, err := hex.DecodeString(rootKeyHex)
	if err != nil {
		return nil, errors.New("ROOT_ENCRYPTION_KEY must be hex-encoded")
	}
	if len(key) != 32 {
		return nil, errors.New("ROOT_ENCRYPTION_KEY must be 32 bytes (64 hex chars)")
	}
	return &Encryptor{rootKey: key}, nil
}

// NewDataKey returns a fresh tenant data key wrapped by the root key,
// ready to be stored on the tenant row.
func (e *Encryptor) NewDataKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return seal(e.rootKey, key)
}

// Sealer unwraps a stored data key and returns a Sealer bound to it.
func (e *Encryptor) Sealer(wrappedDataKey []byte) (*Sealer, error) {
	key, err := open(e.rootKey, wrappedDataKey)
	if err != nil {
		return nil, errors.New("data key could not be unwrapped")
	}
	return &Sealer{key: key}, nil
}

// Sealer encrypts provider access and refresh tokens for one tenant.
type Sealer struct {
	key []byte
}

// NewSealer returns a Sealer for a plaintext 32-byte data key.
func NewSealer(dataKey []byte) (*Sealer, error) {
	if len(dataKey) != 32 {
		return nil, errors.New("data key must be 32 bytes")
	}
	return &Sealer{key: dataKey}, nil
}

// Seal encrypts a token. An empty token seals to nil so absent refresh
// tokens stay NULL in storage.
func (s *Sealer) Seal(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	return seal(s.key, []byte(token))
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	b, err := open(s.key, sealed)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// seal performs AES-256-GCM encryption. Output format: [nonce(12) | ciphertext+tag].
func seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, data []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
