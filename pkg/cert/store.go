package cert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File names used by FileStore.
const (
	CertFileName = "cert.pem"
	KeyFileName  = "key.pem"
)

// FileStore keeps one identity as PEM files in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// CertPath returns the certificate file path.
func (s *FileStore) CertPath() string {
	return filepath.Join(s.dir, CertFileName)
}

// KeyPath returns the private key file path.
func (s *FileStore) KeyPath() string {
	return filepath.Join(s.dir, KeyFileName)
}

// Load reads the stored identity.
func (s *FileStore) Load() (*Identity, error) {
	return LoadIdentity(s.CertPath(), s.KeyPath())
}

// Save writes id to the store, creating the directory if needed.
func (s *FileStore) Save(id *Identity) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFile, err)
	}
	return SaveIdentity(id, s.CertPath(), s.KeyPath())
}

// LoadOrGenerate returns the stored identity, generating and saving a
// self-signed one when the store is empty.
func (s *FileStore) LoadOrGenerate(opts Options) (*Identity, bool, error) {
	id, err := s.Load()
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	id, err = GenerateSelfSigned(opts)
	if err != nil {
		return nil, false, err
	}
	if err := s.Save(id); err != nil {
		return nil, false, err
	}
	return id, true, nil
}
