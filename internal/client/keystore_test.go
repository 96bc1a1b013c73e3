package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/keymanager"
	"github.com/and161185/notevault/internal/model"
)

type failingStore struct{ err error }

func (f failingStore) Load(context.Context) (model.EncryptedBlob, error) { return nil, f.err }
func (f failingStore) Save(context.Context, model.EncryptedBlob) error  { return f.err }

func TestTieredStore_LoadPrefersLocalAndFillsCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	local := keymanager.NewMemoryStore(model.EncryptedBlob("local"))
	ts := TieredStore{Local: local, Remote: failingStore{err: errors.New("remote must not be read")}}
	w, err := ts.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, model.EncryptedBlob("local"), w)

	local = keymanager.NewMemoryStore(nil)
	ts = TieredStore{Local: local, Remote: keymanager.NewMemoryStore(model.EncryptedBlob("remote"))}
	w, err = ts.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, model.EncryptedBlob("remote"), w)
	cached, err := local.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, model.EncryptedBlob("remote"), cached)

	ts = TieredStore{Local: keymanager.NewMemoryStore(nil), Remote: keymanager.NewMemoryStore(nil)}
	_, err = ts.Load(ctx)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTieredStore_SaveRemoteFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	local := keymanager.NewMemoryStore(nil)
	rejected := errs.ErrVersionConflict
	err := TieredStore{Local: local, Remote: failingStore{err: rejected}}.Save(ctx, model.EncryptedBlob("k"))
	require.ErrorIs(t, err, rejected)
	_, err = local.Load(ctx)
	require.ErrorIs(t, err, errs.ErrNotFound)

	remote := keymanager.NewMemoryStore(nil)
	require.NoError(t, TieredStore{Local: local, Remote: remote}.Save(ctx, model.EncryptedBlob("k")))
	for _, s := range []keymanager.WrappedKeyStore{local, remote} {
		w, err := s.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, model.EncryptedBlob("k"), w)
	}
}
