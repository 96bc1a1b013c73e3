package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
	"github.com/and161185/notevault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// DocumentRepo implements DocumentRepository using PostgreSQL.
//
// Versions are drawn from a per-workspace counter, so every change in a
// workspace gets a distinct, increasing ver and GetChangesSince never skips one.
type DocumentRepo struct{ db *DB }

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// NewDocumentRepo constructs a document repository.
func NewDocumentRepo(db *DB) *DocumentRepo { return &DocumentRepo{db: db} }

const (
	selDocVerForUpdate = `SELECT ver FROM documents WHERE id=$1 AND workspace_id=$2 FOR UPDATE`
	bumpWorkspaceVer   = `UPDATE workspaces SET doc_ver = doc_ver + 1 WHERE id=$1 RETURNING doc_ver, now()`
)

// UpsertBatch inserts/updates documents with optimistic concurrency and returns new versions.
func (r *DocumentRepo) UpsertBatch(
	ctx context.Context, workspaceID uuid.UUID, ups []model.UpsertDocument,
) (results []model.DocumentVersion, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	results = make([]model.DocumentVersion, 0, len(ups))
	const ins = `
INSERT INTO documents (id, workspace_id, encrypted_content, encrypted_key, metadata, ver, deleted, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,false,$7)`
	const upd = `
UPDATE documents SET encrypted_content=$3, encrypted_key=$4, metadata=$5, ver=$6, deleted=false, updated_at=$7
WHERE id=$1 AND workspace_id=$2`

	for i, up := range ups {
		var curVer int64
		scanErr := tx.QueryRow(ctx, selDocVerForUpdate, up.ID, workspaceID).Scan(&curVer)
		switch {
		case scanErr == nil:
			if curVer != up.BaseVer {
				return nil, fmt.Errorf("document[%d]: %w", i, errs.ErrVersionConflict)
			}
		case errors.Is(scanErr, pgx.ErrNoRows):
			if up.BaseVer != 0 {
				return nil, fmt.Errorf("document[%d]: %w", i, errs.ErrVersionConflict)
			}
		default:
			return nil, scanErr
		}

		newVer, ts, err := nextVersion(ctx, tx, workspaceID)
		if err != nil {
			return nil, err
		}
		q := upd
		if scanErr != nil {
			q = ins
		}
		if _, err = tx.Exec(ctx, q, up.ID, workspaceID,
			[]byte(up.EncryptedContent), []byte(up.EncryptedKey), up.Metadata, newVer, ts); err != nil {
			if isUniqueViolation(err) {
				// id is taken in another workspace
				return nil, fmt.Errorf("document[%d]: %w", i, errs.ErrAlreadyExists)
			}
			return nil, err
		}
		results = append(results, model.DocumentVersion{ID: up.ID, NewVer: newVer, UpdatedAt: ts})
	}
	return results, nil
}

// Delete marks a document as deleted (tombstone) with version increment.
func (r *DocumentRepo) Delete(
	ctx context.Context, workspaceID, docID uuid.UUID, baseVer int64,
) (ver model.DocumentVersion, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.DocumentVersion{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const upd = `
UPDATE documents SET deleted=true, encrypted_content='', encrypted_key='', ver=$3, updated_at=$4
WHERE id=$1 AND workspace_id=$2`

	var curVer int64
	if err = tx.QueryRow(ctx, selDocVerForUpdate, docID, workspaceID).Scan(&curVer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DocumentVersion{}, errs.ErrNotFound
		}
		return model.DocumentVersion{}, err
	}
	if curVer != baseVer {
		return model.DocumentVersion{}, errs.ErrVersionConflict
	}
	newVer, ts, err := nextVersion(ctx, tx, workspaceID)
	if err != nil {
		return model.DocumentVersion{}, err
	}
	if _, err = tx.Exec(ctx, upd, docID, workspaceID, newVer, ts); err != nil {
		return model.DocumentVersion{}, err
	}
	return model.DocumentVersion{ID: docID, NewVer: newVer, UpdatedAt: ts}, nil
}

func nextVersion(ctx context.Context, tx pgx.Tx, workspaceID uuid.UUID) (int64, time.Time, error) {
	var (
		v  int64
		ts time.Time
	)
	if err := tx.QueryRow(ctx, bumpWorkspaceVer, workspaceID).Scan(&v, &ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, errs.ErrNotFound
		}
		return 0, time.Time{}, err
	}
	return v, ts, nil
}

// GetChangesSince returns changes strictly after the provided version.
func (r *DocumentRepo) GetChangesSince(ctx context.Context, workspaceID uuid.UUID, sinceVer int64) ([]model.Change, error) {
	const q = `
SELECT id, ver, deleted, updated_at, encrypted_content, encrypted_key
FROM documents
WHERE workspace_id=$1 AND ver>$2
ORDER BY ver ASC`
	rows, err := r.db.Pool.Query(ctx, q, workspaceID, sinceVer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Change
	for rows.Next() {
		var (
			id         uuid.UUID
			ver        int64
			del        bool
			ts         time.Time
			content, k []byte
		)
		if err = rows.Scan(&id, &ver, &del, &ts, &content, &k); err != nil {
			return nil, err
		}
		ch := model.Change{ID: id, Ver: ver, Deleted: del, UpdatedAt: ts}
		if !del {
			ch.EncryptedContent = model.EncryptedBlob(content)
			ch.EncryptedKey = model.EncryptedBlob(k)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Get returns a single document by id.
func (r *DocumentRepo) Get(ctx context.Context, workspaceID, docID uuid.UUID) (*model.Document, error) {
	const q = `
SELECT id, workspace_id, encrypted_content, encrypted_key, metadata, ver, deleted, updated_at
FROM documents WHERE workspace_id=$1 AND id=$2`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, workspaceID, docID))
}

func (r *DocumentRepo) scanOne(row pgx.Row) (*model.Document, error) {
	var (
		d          model.Document
		content, k []byte
	)
	err := row.Scan(&d.ID, &d.WorkspaceID, &content, &k, &d.Metadata, &d.Ver, &d.Deleted, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	d.EncryptedContent = model.EncryptedBlob(content)
	d.EncryptedKey = model.EncryptedBlob(k)
	return &d, nil
}

// Lookup returns a document by id across workspaces.
func (r *DocumentRepo) Lookup(ctx context.Context, docID uuid.UUID) (*model.Document, error) {
	const q = `
SELECT id, workspace_id, encrypted_content, encrypted_key, metadata, ver, deleted, updated_at
FROM documents WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, docID))
}

// GetMaxVersion returns the current maximum version within a workspace.
func (r *DocumentRepo) GetMaxVersion(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	const q = `SELECT COALESCE(MAX(ver),0) FROM documents WHERE workspace_id=$1`
	var v int64
	if err := r.db.Pool.QueryRow(ctx, q, workspaceID).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}
