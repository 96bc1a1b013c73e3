package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/keymanager"
	"github.com/and161185/notevault/internal/model"
)

// RemoteKeyStore keeps the wrapped master key on the workspace record.
type RemoteKeyStore struct {
	c           *Client
	workspaceID string
}

var _ keymanager.WrappedKeyStore = (*RemoteKeyStore)(nil)

// NewRemoteKeyStore binds a store to one workspace.
func NewRemoteKeyStore(c *Client, workspaceID string) *RemoteKeyStore {
	return &RemoteKeyStore{c: c, workspaceID: workspaceID}
}

// Load returns errs.ErrNotFound while the workspace has no key yet.
func (s *RemoteKeyStore) Load(ctx context.Context) (model.EncryptedBlob, error) {
	w, err := s.c.GetWorkspace(ctx, s.workspaceID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// a missing workspace must not look like a missing key
			return nil, fmt.Errorf("workspace %s does not exist", s.workspaceID)
		}
		return nil, err
	}
	if len(w.WrappedMasterKey) == 0 {
		return nil, errs.ErrNotFound
	}
	return model.EncryptedBlob(w.WrappedMasterKey), nil
}

// Save stores the wrapped key; the server accepts it only once.
func (s *RemoteKeyStore) Save(ctx context.Context, wrapped model.EncryptedBlob) error {
	return s.c.SetWrappedMasterKey(ctx, s.workspaceID, wrapped)
}

// TieredStore reads a local copy first and falls back to the remote store,
// caching what it finds. Saves go to the remote store first.
type TieredStore struct {
	Local  keymanager.WrappedKeyStore
	Remote keymanager.WrappedKeyStore
}

var _ keymanager.WrappedKeyStore = TieredStore{}

// Load returns the local copy when present. Otherwise it reads the remote
// key and writes it to the local store before returning it.
func (t TieredStore) Load(ctx context.Context) (model.EncryptedBlob, error) {
	w, err := t.Local.Load(ctx)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	w, err = t.Remote.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := t.Local.Save(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Save writes remote first so a rejected key never lands in the local cache.
func (t TieredStore) Save(ctx context.Context, wrapped model.EncryptedBlob) error {
	if err := t.Remote.Save(ctx, wrapped); err != nil {
		return err
	}
	return t.Local.Save(ctx, wrapped)
}
