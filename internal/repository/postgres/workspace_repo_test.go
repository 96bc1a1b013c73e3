package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var wsCols = []string{"id", "owner_id", "name", "kdf_salt", "wrapped_master_key", "created_at"}

func TestWorkspaceRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewWorkspaceRepo(db)

	w := &model.Workspace{
		ID: uuid.Must(uuid.NewV4()), OwnerID: "alice", Name: "notes",
		KDFSalt: "alice@example.com", WrappedMasterKey: model.EncryptedBlob("wrapped"),
	}
	ts := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO workspaces \(id, owner_id, name, kdf_salt, wrapped_master_key\)`).
		WithArgs(w.ID, "alice", "notes", "alice@example.com", []byte("wrapped")).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(ts))
	require.NoError(t, r.Create(context.Background(), w))
	require.Equal(t, ts, w.CreatedAt)

	mock.ExpectQuery(`INSERT INTO workspaces`).
		WithArgs(w.ID, "alice", "notes", "alice@example.com", []byte("wrapped")).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(context.Background(), w), errs.ErrAlreadyExists)

	mock.ExpectQuery(`INSERT INTO workspaces`).WillReturnError(errors.New("down"))
	err := r.Create(context.Background(), w)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkspaceRepo_Create_WithoutKey(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewWorkspaceRepo(db)

	// the client registers a workspace first and sets its key afterwards
	w := &model.Workspace{ID: uuid.Must(uuid.NewV4()), OwnerID: "alice", KDFSalt: "alice@example.com"}
	keyArg := pgxmock.AnyArg()
	var sent any
	mock.ExpectQuery(`VALUES \(\$1, \$2, \$3, \$4, COALESCE\(\$5, ''::bytea\)\)`).
		WithArgs(w.ID, "alice", "", "alice@example.com", argCapture{inner: keyArg, got: &sent}).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))
	require.NoError(t, r.Create(context.Background(), w))
	require.NoError(t, mock.ExpectationsWereMet())

	b, ok := sent.([]byte)
	require.True(t, ok, "key argument has type %T", sent)
	require.NotNil(t, b)
	require.Empty(t, b)
}

// argCapture records the value pgxmock compares against.
type argCapture struct {
	inner pgxmock.Argument
	got   *any
}

func (a argCapture) Match(v any) bool {
	*a.got = v
	return a.inner.Match(v)
}

func TestWorkspaceRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewWorkspaceRepo(db)
	id := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	const re = `SELECT id, owner_id, name, kdf_salt, wrapped_master_key, created_at FROM workspaces WHERE id=\$1`
	mock.ExpectQuery(re).WithArgs(id).
		WillReturnRows(pgxmock.NewRows(wsCols).AddRow(id, "alice", "n", "salt", []byte("w"), ts))
	w, err := r.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "alice", w.OwnerID)
	require.Equal(t, model.EncryptedBlob("w"), w.WrappedMasterKey)

	mock.ExpectQuery(re).WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(re).WithArgs(id).WillReturnError(context.Canceled)
	_, err = r.Get(context.Background(), id)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWorkspaceRepo_ListByOwner(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewWorkspaceRepo(db)
	ts := time.Now().UTC()
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`FROM workspaces WHERE owner_id=\$1 ORDER BY created_at DESC`).WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(wsCols).
			AddRow(a, "alice", "one", "s", []byte("w1"), ts).
			AddRow(b, "alice", "two", "s", []byte("w2"), ts.Add(-time.Hour)))
	out, err := r.ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, b, out[1].ID)
}

func TestWorkspaceRepo_SetWrappedMasterKeyIfEmpty(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewWorkspaceRepo(db)
	id := uuid.Must(uuid.NewV4())

	const re = `UPDATE workspaces SET wrapped_master_key = \$2 WHERE id = \$1 AND octet_length\(wrapped_master_key\) = 0`
	mock.ExpectExec(re).WithArgs(id, []byte("w")).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetWrappedMasterKeyIfEmpty(context.Background(), id, model.EncryptedBlob("w")))

	mock.ExpectExec(re).WithArgs(id, []byte("w")).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetWrappedMasterKeyIfEmpty(context.Background(), id, model.EncryptedBlob("w")), errs.ErrVersionConflict)

	mock.ExpectExec(re).WithArgs(id, []byte("w")).WillReturnError(errors.New("down"))
	require.Error(t, r.SetWrappedMasterKeyIfEmpty(context.Background(), id, model.EncryptedBlob("w")))
}
