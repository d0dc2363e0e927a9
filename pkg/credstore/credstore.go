// Package credstore persists device credentials encrypted at rest. The
// file format is scrypt-derived AES-GCM over the JSON-encoded credentials,
// keyed by a machine-local random secret created on first use.
package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oasis-home/oasisctl/internal/models"
	"golang.org/x/crypto/scrypt"
)

// Store is the credential persistence contract the controller sees
type Store interface {
	Save(creds models.Credentials) error
	Load() (models.Credentials, bool, error)
	Clear() error
}

const (
	credsFileName  = "credentials.enc"
	secretFileName = "secret"
	saltSize       = 16
	secretSize     = 32
)

// FileStore keeps the encrypted credentials under a directory (by default
// ~/.oasisctl)
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir, creating it if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the credentials encrypted with a fresh salt and nonce
func (s *FileStore) Save(creds models.Credentials) error {
	secret, err := s.loadOrCreateSecret()
	if err != nil {
		return err
	}

	plain, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	// File layout: salt || nonce || ciphertext
	blob := append(append(salt, nonce...), gcm.Seal(nil, nonce, plain, nil)...)
	return os.WriteFile(filepath.Join(s.dir, credsFileName), blob, 0o600)
}

// Load reads back the stored credentials. The second return value is false
// when nothing usable is stored.
func (s *FileStore) Load() (models.Credentials, bool, error) {
	blob, err := os.ReadFile(filepath.Join(s.dir, credsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return models.Credentials{}, false, nil
		}
		return models.Credentials{}, false, err
	}

	secret, err := s.loadOrCreateSecret()
	if err != nil {
		return models.Credentials{}, false, err
	}

	if len(blob) < saltSize {
		return models.Credentials{}, false, fmt.Errorf("credential file too short")
	}
	salt, rest := blob[:saltSize], blob[saltSize:]

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return models.Credentials{}, false, err
	}
	if len(rest) < gcm.NonceSize() {
		return models.Credentials{}, false, fmt.Errorf("credential file too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return models.Credentials{}, false, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds models.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return models.Credentials{}, false, err
	}
	return creds, creds.Valid(), nil
}

// Clear removes the stored credentials
func (s *FileStore) Clear() error {
	err := os.Remove(filepath.Join(s.dir, credsFileName))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// loadOrCreateSecret returns the machine-local secret, minting one on
// first use
func (s *FileStore) loadOrCreateSecret() ([]byte, error) {
	path := filepath.Join(s.dir, secretFileName)
	secret, err := os.ReadFile(path)
	if err == nil && len(secret) == secretSize {
		return secret, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	secret = make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, err
	}
	return secret, nil
}

func newGCM(secret, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(secret, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
