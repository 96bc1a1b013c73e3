package postgres

import (
	"context"
	"errors"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
	"github.com/and161185/notevault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// WorkspaceRepo implements WorkspaceRepository using PostgreSQL.
type WorkspaceRepo struct{ db *DB }

var _ repository.WorkspaceRepository = (*WorkspaceRepo)(nil)

// NewWorkspaceRepo constructs a workspace repository.
func NewWorkspaceRepo(db *DB) *WorkspaceRepo { return &WorkspaceRepo{db: db} }

// Create inserts a new workspace row. A workspace registered before its
// master key exists is stored with an empty key.
func (r *WorkspaceRepo) Create(ctx context.Context, w *model.Workspace) error {
	const q = `
INSERT INTO workspaces (id, owner_id, name, kdf_salt, wrapped_master_key)
VALUES ($1, $2, $3, $4, COALESCE($5, ''::bytea))
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, w.ID, w.OwnerID, w.Name, w.KDFSalt, nonNilBytes(w.WrappedMasterKey)).Scan(&w.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// nonNilBytes keeps pgx from encoding an absent key as NULL.
func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Get selects a workspace by ID.
func (r *WorkspaceRepo) Get(ctx context.Context, id uuid.UUID) (*model.Workspace, error) {
	const q = `
SELECT id, owner_id, name, kdf_salt, wrapped_master_key, created_at
FROM workspaces WHERE id=$1`
	var (
		w       model.Workspace
		wrapped []byte
	)
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&w.ID, &w.OwnerID, &w.Name, &w.KDFSalt, &wrapped, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	w.WrappedMasterKey = model.EncryptedBlob(wrapped)
	return &w, nil
}

// ListByOwner selects all workspaces of ownerID.
func (r *WorkspaceRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Workspace, error) {
	const q = `
SELECT id, owner_id, name, kdf_salt, wrapped_master_key, created_at
FROM workspaces WHERE owner_id=$1
ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Workspace
	for rows.Next() {
		var (
			w       model.Workspace
			wrapped []byte
		)
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.Name, &w.KDFSalt, &wrapped, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.WrappedMasterKey = model.EncryptedBlob(wrapped)
		out = append(out, w)
	}
	return out, rows.Err()
}

// SetWrappedMasterKeyIfEmpty updates wrapped_master_key only if currently empty.
func (r *WorkspaceRepo) SetWrappedMasterKeyIfEmpty(ctx context.Context, id uuid.UUID, wrapped model.EncryptedBlob) error {
	const q = `
UPDATE workspaces
SET wrapped_master_key = $2
WHERE id = $1 AND octet_length(wrapped_master_key) = 0`
	tag, err := r.db.Pool.Exec(ctx, q, id, []byte(wrapped))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrVersionConflict
	}
	return nil
}
