// Package keymanager holds a session's master key and its cache of unwrapped
// document keys.
//
// A Manager is constructed per session and injected where needed. The master
// key lives in a memguard enclave, so it is encrypted while at rest in the Go
// heap and only decrypted into locked memory for the duration of a single
// operation.
package keymanager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/notevault/internal/crypto/clientcrypto"
	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
)

// UnlockFunc returns the password-derived key-encryption key. It is called at
// most once per Initialize and only when the store must be read or written.
type UnlockFunc func(ctx context.Context) (clientcrypto.Key, error)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the lifecycle logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Manager moves between Uninitialized and Ready. The zero value is not usable;
// call New.
type Manager struct {
	store  WrappedKeyStore
	unlock UnlockFunc
	log    *zap.Logger

	init singleflight.Group

	mu     sync.RWMutex
	master *memguard.Enclave
	docs   map[string]*memguard.Enclave
}

// New constructs an uninitialized Manager.
func New(store WrappedKeyStore, unlock UnlockFunc, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		unlock: unlock,
		log:    zap.NewNop(),
		docs:   make(map[string]*memguard.Enclave),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// IsInitialized reports whether a master key is loaded.
func (m *Manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.master != nil
}

// Initialize loads the master key. When the store holds a wrapped key it is
// unwrapped with the KEK from UnlockFunc; otherwise a new master key is
// generated, wrapped under the KEK and saved. Calling Initialize while Ready is
// a no-op, and concurrent callers share one in-flight initialization.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.IsInitialized() {
		return nil
	}
	_, err, _ := m.init.Do("init", func() (any, error) {
		if m.IsInitialized() {
			return nil, nil
		}
		enclave, created, err := m.load(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.master = enclave
		m.mu.Unlock()
		m.log.Info("key manager ready", zap.Bool("created", created))
		return nil, nil
	})
	return err
}

func (m *Manager) load(ctx context.Context) (*memguard.Enclave, bool, error) {
	if m.store == nil || m.unlock == nil {
		return nil, false, errors.New("keymanager: store and unlock func are required")
	}
	wrapped, err := m.store.Load(ctx)
	switch {
	case err == nil:
		kek, err := m.unlock(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("unlock: %w", err)
		}
		defer kek.Wipe()
		master, err := clientcrypto.UnwrapKey(kek, wrapped)
		if err != nil {
			m.log.Warn("master key unwrap failed")
			return nil, false, fmt.Errorf("unwrap master key: %w", err)
		}
		return sealKey(&master), false, nil
	case errors.Is(err, errs.ErrNotFound):
		kek, err := m.unlock(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("unlock: %w", err)
		}
		defer kek.Wipe()
		master, err := clientcrypto.GenerateKey()
		if err != nil {
			return nil, false, err
		}
		w, err := clientcrypto.WrapKey(kek, master)
		if err != nil {
			return nil, false, err
		}
		if err := m.store.Save(ctx, w); err != nil {
			return nil, false, fmt.Errorf("save wrapped master key: %w", err)
		}
		return sealKey(&master), true, nil
	default:
		return nil, false, fmt.Errorf("load wrapped master key: %w", err)
	}
}

// Adopt enters Ready with a master key the caller already holds, e.g. one just
// generated during workspace creation. It replaces any current key.
func (m *Manager) Adopt(master clientcrypto.Key) {
	enclave := sealKey(&master)
	m.mu.Lock()
	m.master = enclave
	m.docs = make(map[string]*memguard.Enclave)
	m.mu.Unlock()
	m.log.Info("key manager ready", zap.Bool("adopted", true))
}

// Reset drops the master key and all cached document keys.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.master = nil
	m.docs = make(map[string]*memguard.Enclave)
	m.mu.Unlock()
	m.log.Info("key manager reset")
}

// MasterKey returns a copy of the master key. Callers should Wipe it when done.
func (m *Manager) MasterKey() (clientcrypto.Key, error) {
	m.mu.RLock()
	enclave := m.master
	m.mu.RUnlock()
	if enclave == nil {
		return clientcrypto.Key{}, errs.ErrNotInitialized
	}
	return openKey(enclave)
}

// Rewrap wraps the current master key under a new KEK and saves it. Used when
// the user changes password; document keys are unaffected.
func (m *Manager) Rewrap(ctx context.Context, kek clientcrypto.Key) (model.EncryptedBlob, error) {
	master, err := m.MasterKey()
	if err != nil {
		return nil, err
	}
	defer master.Wipe()
	w, err := clientcrypto.WrapKey(kek, master)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, w); err != nil {
		return nil, fmt.Errorf("save wrapped master key: %w", err)
	}
	return w, nil
}

// WrapDocumentKey encrypts a document key under the master key.
func (m *Manager) WrapDocumentKey(docKey clientcrypto.Key) (model.EncryptedBlob, error) {
	master, err := m.MasterKey()
	if err != nil {
		return nil, err
	}
	defer master.Wipe()
	return clientcrypto.WrapKey(master, docKey)
}

// UnwrapDocumentKey decrypts a wrapped document key.
func (m *Manager) UnwrapDocumentKey(wrapped model.EncryptedBlob) (clientcrypto.Key, error) {
	master, err := m.MasterKey()
	if err != nil {
		return clientcrypto.Key{}, err
	}
	defer master.Wipe()
	return clientcrypto.UnwrapKey(master, wrapped)
}

// DocumentKey returns the unwrapped key for docID, unwrapping and caching it
// on first use.
func (m *Manager) DocumentKey(docID string, wrapped model.EncryptedBlob) (clientcrypto.Key, error) {
	m.mu.RLock()
	cached, ok := m.docs[docID]
	ready := m.master != nil
	m.mu.RUnlock()
	if !ready {
		return clientcrypto.Key{}, errs.ErrNotInitialized
	}
	if ok {
		return openKey(cached)
	}
	k, err := m.UnwrapDocumentKey(wrapped)
	if err != nil {
		return clientcrypto.Key{}, err
	}
	m.CacheDocumentKey(docID, k)
	return k, nil
}

// CacheDocumentKey stores an unwrapped key for docID for the session lifetime.
func (m *Manager) CacheDocumentKey(docID string, k clientcrypto.Key) {
	cp := k
	enclave := sealKey(&cp)
	m.mu.Lock()
	if m.master != nil {
		m.docs[docID] = enclave
	}
	m.mu.Unlock()
}

// ForgetDocumentKey evicts docID from the cache.
func (m *Manager) ForgetDocumentKey(docID string) {
	m.mu.Lock()
	delete(m.docs, docID)
	m.mu.Unlock()
}

// CachedDocuments returns the number of cached document keys.
func (m *Manager) CachedDocuments() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// sealKey moves k into an enclave and wipes k.
func sealKey(k *clientcrypto.Key) *memguard.Enclave {
	raw := clientcrypto.ExportKey(*k)
	k.Wipe()
	return memguard.NewEnclave(raw)
}

func openKey(e *memguard.Enclave) (clientcrypto.Key, error) {
	buf, err := e.Open()
	if err != nil {
		return clientcrypto.Key{}, fmt.Errorf("open enclave: %w", err)
	}
	defer buf.Destroy()
	return clientcrypto.ImportKey(buf.Bytes())
}
