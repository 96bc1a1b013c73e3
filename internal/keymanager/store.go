package keymanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
)

// WrappedKeyStore is client-side persistent storage for the wrapped master key.
// Load returns errs.ErrNotFound when nothing has been saved yet.
type WrappedKeyStore interface {
	Load(ctx context.Context) (model.EncryptedBlob, error)
	Save(ctx context.Context, wrapped model.EncryptedBlob) error
}

// MemoryStore keeps the wrapped key in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	wrapped model.EncryptedBlob
}

var _ WrappedKeyStore = (*MemoryStore)(nil)

// NewMemoryStore returns a store, optionally pre-seeded with a wrapped key.
func NewMemoryStore(wrapped model.EncryptedBlob) *MemoryStore {
	return &MemoryStore{wrapped: append(model.EncryptedBlob(nil), wrapped...)}
}

// Load returns a copy of the stored blob.
func (s *MemoryStore) Load(context.Context) (model.EncryptedBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.wrapped) == 0 {
		return nil, errs.ErrNotFound
	}
	return append(model.EncryptedBlob(nil), s.wrapped...), nil
}

// Save replaces the stored blob.
func (s *MemoryStore) Save(_ context.Context, wrapped model.EncryptedBlob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrapped = append(model.EncryptedBlob(nil), wrapped...)
	return nil
}

type keyFile struct {
	WrappedMasterKey model.EncryptedBlob `json:"wrapped_master_key"`
}

// FileStore persists the wrapped key as JSON in a 0600 file.
type FileStore struct {
	path string
}

var _ WrappedKeyStore = (*FileStore)(nil)

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the wrapped key from disk.
func (s *FileStore) Load(context.Context) (model.EncryptedBlob, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var kf keyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return nil, fmt.Errorf("key file %s: %w", s.path, err)
	}
	if len(kf.WrappedMasterKey) == 0 {
		return nil, errs.ErrNotFound
	}
	return kf.WrappedMasterKey, nil
}

// Save writes the wrapped key atomically (temp file + rename).
func (s *FileStore) Save(_ context.Context, wrapped model.EncryptedBlob) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(keyFile{WrappedMasterKey: wrapped}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
