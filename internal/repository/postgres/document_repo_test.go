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

const (
	reSelVer  = `SELECT ver FROM documents WHERE id=\$1 AND workspace_id=\$2 FOR UPDATE`
	reBumpVer = `UPDATE workspaces SET doc_ver = doc_ver \+ 1 WHERE id=\$1 RETURNING doc_ver, now\(\)`
	reUpdDoc  = `UPDATE documents SET encrypted_content=\$3, encrypted_key=\$4, metadata=\$5, ver=\$6, deleted=false`
	reInsDoc  = `INSERT INTO documents \(id, workspace_id, encrypted_content, encrypted_key, metadata, ver, deleted, updated_at\)`
	reDelDoc  = `UPDATE documents SET deleted=true`
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func bumpRows(v int64, ts time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"doc_ver", "now"}).AddRow(v, ts)
}

func TestDocumentRepo_UpsertBatch_Update_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepo(db)

	ctx := context.Background()
	wsID := uuid.Must(uuid.NewV4())
	docID := uuid.Must(uuid.NewV4())
	base := int64(5)
	ts := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(reSelVer).
		WithArgs(docID, wsID).
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(base))
	mock.ExpectQuery(reBumpVer).WithArgs(wsID).WillReturnRows(bumpRows(9, ts))
	mock.ExpectExec(reUpdDoc).
		WithArgs(docID, wsID, []byte("enc"), []byte("key"), []byte("meta"), int64(9), ts).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := r.UpsertBatch(ctx, wsID, []model.UpsertDocument{
		{ID: docID, BaseVer: base, EncryptedContent: model.EncryptedBlob("enc"), EncryptedKey: model.EncryptedBlob("key"), Metadata: []byte("meta")},
	})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, int64(9), res[0].NewVer)
	require.Equal(t, ts, res[0].UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_UpsertBatch_Create_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepo(db)

	ctx := context.Background()
	wsID := uuid.Must(uuid.NewV4())
	docID := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(reBumpVer).WithArgs(wsID).WillReturnRows(bumpRows(1, ts))
	mock.ExpectExec(reInsDoc).
		WithArgs(docID, wsID, []byte("enc"), []byte("key"), []byte(nil), int64(1), ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err := r.UpsertBatch(ctx, wsID, []model.UpsertDocument{
		{ID: docID, EncryptedContent: model.EncryptedBlob("enc"), EncryptedKey: model.EncryptedBlob("key")},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), res[0].NewVer)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_UpsertBatch_VersionConflicts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepo(db)

	ctx := context.Background()
	wsID := uuid.Must(uuid.NewV4())
	docID := uuid.Must(uuid.NewV4())

	// stale base on update
	mock.ExpectBegin()
	mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(2)))
	mock.ExpectRollback()
	_, err := r.UpsertBatch(ctx, wsID, []model.UpsertDocument{{ID: docID, BaseVer: 1}})
	require.ErrorIs(t, err, errs.ErrVersionConflict)

	// non-zero base on create
	mock.ExpectBegin()
	mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	_, err = r.UpsertBatch(ctx, wsID, []model.UpsertDocument{{ID: docID, BaseVer: 10}})
	require.ErrorIs(t, err, errs.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_UpsertBatch_MultipleDocs_StopOnFirstErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepo(db)
	ctx := context.Background()
	wsID := uuid.Must(uuid.NewV4())
	d1, d2 := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(reSelVer).WithArgs(d1, wsID).
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(2)))
	mock.ExpectQuery(reBumpVer).WithArgs(wsID).WillReturnRows(bumpRows(3, ts))
	mock.ExpectExec(reUpdDoc).
		WithArgs(d1, wsID, []byte("a"), []byte(nil), []byte(nil), int64(3), ts).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(reSelVer).WithArgs(d2, wsID).
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(5)))
	mock.ExpectRollback()

	_, err := r.UpsertBatch(ctx, wsID, []model.UpsertDocument{
		{ID: d1, BaseVer: 2, EncryptedContent: model.EncryptedBlob("a")},
		{ID: d2, BaseVer: 1, EncryptedContent: model.EncryptedBlob("b")},
	})
	require.ErrorIs(t, err, errs.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_UpsertBatch_Errors(t *testing.T) {
	ctx := context.Background()
	wsID := uuid.Must(uuid.NewV4())
	docID := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	t.Run("begin", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin().WillReturnError(errors.New("boom"))
		_, err := NewDocumentRepo(db).UpsertBatch(ctx, wsID, nil)
		require.Error(t, err)
	})
	t.Run("scan", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).WillReturnError(errors.New("weird-scan"))
		mock.ExpectRollback()
		_, err := NewDocumentRepo(db).UpsertBatch(ctx, wsID, []model.UpsertDocument{{ID: docID}})
		require.Error(t, err)
	})
	t.Run("workspace gone", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(reBumpVer).WithArgs(wsID).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()
		_, err := NewDocumentRepo(db).UpsertBatch(ctx, wsID, []model.UpsertDocument{{ID: docID}})
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
	t.Run("insert", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(reBumpVer).WithArgs(wsID).WillReturnRows(bumpRows(1, ts))
		mock.ExpectExec(reInsDoc).WillReturnError(errors.New("insert-fail"))
		mock.ExpectRollback()
		_, err := NewDocumentRepo(db).UpsertBatch(ctx, wsID, []model.UpsertDocument{{ID: docID}})
		require.Error(t, err)
	})
	t.Run("id owned elsewhere", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(reBumpVer).WithArgs(wsID).WillReturnRows(bumpRows(1, ts))
		mock.ExpectExec(reInsDoc).WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()
		_, err := NewDocumentRepo(db).UpsertBatch(ctx, wsID, []model.UpsertDocument{{ID: docID}})
		require.ErrorIs(t, err, errs.ErrAlreadyExists)
	})
}

func TestDocumentRepo_Delete(t *testing.T) {
	ctx := context.Background()
	wsID := uuid.Must(uuid.NewV4())
	docID := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	t.Run("ok", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).
			WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(7)))
		mock.ExpectQuery(reBumpVer).WithArgs(wsID).WillReturnRows(bumpRows(12, ts))
		mock.ExpectExec(reDelDoc).WithArgs(docID, wsID, int64(12), ts).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		v, err := NewDocumentRepo(db).Delete(ctx, wsID, docID, 7)
		require.NoError(t, err)
		require.Equal(t, int64(12), v.NewVer)
	})
	t.Run("not found", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()
		_, err := NewDocumentRepo(db).Delete(ctx, wsID, docID, 1)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
	t.Run("conflict", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).
			WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(3)))
		mock.ExpectRollback()
		_, err := NewDocumentRepo(db).Delete(ctx, wsID, docID, 1)
		require.ErrorIs(t, err, errs.ErrVersionConflict)
	})
	t.Run("commit", func(t *testing.T) {
		db, mock := newDB(t)
		defer mock.Close()
		mock.ExpectBegin()
		mock.ExpectQuery(reSelVer).WithArgs(docID, wsID).
			WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(1)))
		mock.ExpectQuery(reBumpVer).WithArgs(wsID).WillReturnRows(bumpRows(2, ts))
		mock.ExpectExec(reDelDoc).WithArgs(docID, wsID, int64(2), ts).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit().WillReturnError(errors.New("commit-fail"))
		_, err := NewDocumentRepo(db).Delete(ctx, wsID, docID, 1)
		require.Error(t, err)
	})
}

func TestDocumentRepo_GetChangesSince(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepo(db)

	ctx := context.Background()
	wsID := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()
	id1 := uuid.Must(uuid.NewV4())
	id2 := uuid.Must(uuid.NewV4())

	rows := pgxmock.NewRows([]string{"id", "ver", "deleted", "updated_at", "encrypted_content", "encrypted_key"}).
		AddRow(id1, int64(2), false, ts, []byte("enc1"), []byte("k1")).
		AddRow(id2, int64(3), true, ts, []byte{}, []byte{})

	mock.ExpectQuery(`SELECT id, ver, deleted, updated_at, encrypted_content, encrypted_key FROM documents WHERE workspace_id=\$1 AND ver>\$2 ORDER BY ver ASC`).
		WithArgs(wsID, int64(1)).
		WillReturnRows(rows)

	out, err := r.GetChangesSince(ctx, wsID, 1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.False(t, out[0].Deleted)
	require.Equal(t, model.EncryptedBlob("enc1"), out[0].EncryptedContent)
	require.Equal(t, model.EncryptedBlob("k1"), out[0].EncryptedKey)
	require.True(t, out[1].Deleted)
	require.Nil(t, out[1].EncryptedContent)

	mock.ExpectQuery(`FROM documents WHERE workspace_id=\$1 AND ver>\$2`).
		WithArgs(wsID, int64(0)).WillReturnError(errors.New("q-fail"))
	_, err = r.GetChangesSince(ctx, wsID, 0)
	require.Error(t, err)
}

func TestDocumentRepo_Get_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepo(db)

	ctx := context.Background()
	wsID := uuid.Must(uuid.NewV4())
	docID := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	const re = `SELECT id, workspace_id, encrypted_content, encrypted_key, metadata, ver, deleted, updated_at FROM documents WHERE workspace_id=\$1 AND id=\$2`
	mock.ExpectQuery(re).
		WithArgs(wsID, docID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "workspace_id", "encrypted_content", "encrypted_key", "metadata", "ver", "deleted", "updated_at"}).
			AddRow(docID, wsID, []byte("enc"), []byte("key"), []byte("m"), int64(10), false, ts))
	d, err := r.Get(ctx, wsID, docID)
	require.NoError(t, err)
	require.Equal(t, docID, d.ID)
	require.Equal(t, int64(10), d.Ver)
	require.Equal(t, model.EncryptedBlob("key"), d.EncryptedKey)

	mock.ExpectQuery(re).WithArgs(wsID, docID).WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, wsID, docID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDocumentRepo_Lookup(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepo(db)
	wsID := uuid.Must(uuid.NewV4())
	docID := uuid.Must(uuid.NewV4())

	const re = `FROM documents WHERE id=\$1`
	mock.ExpectQuery(re).WithArgs(docID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "workspace_id", "encrypted_content", "encrypted_key", "metadata", "ver", "deleted", "updated_at"}).
			AddRow(docID, wsID, []byte("enc"), []byte("key"), []byte(nil), int64(3), false, time.Now()))
	d, err := r.Lookup(context.Background(), docID)
	require.NoError(t, err)
	require.Equal(t, wsID, d.WorkspaceID)

	mock.ExpectQuery(re).WithArgs(docID).WillReturnError(pgx.ErrNoRows)
	_, err = r.Lookup(context.Background(), docID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDocumentRepo_GetMaxVersion(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepo(db)

	wsID := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(ver\),0\) FROM documents WHERE workspace_id=\$1`).
		WithArgs(wsID).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(int64(42)))

	v, err := r.GetMaxVersion(context.Background(), wsID)
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
}
