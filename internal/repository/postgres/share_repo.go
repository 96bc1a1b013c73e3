package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
	"github.com/and161185/notevault/internal/sharetoken"
	"github.com/jackc/pgx/v5"
)

// ShareTokenRepo implements sharetoken.Store using PostgreSQL. Expiry is a
// column; every read and write filters on expires_at > now, so expired rows
// are invisible before Sweep removes them.
type ShareTokenRepo struct{ db *DB }

var (
	_ sharetoken.Store   = (*ShareTokenRepo)(nil)
	_ sharetoken.Sweeper = (*ShareTokenRepo)(nil)
)

// NewShareTokenRepo constructs a share token repository.
func NewShareTokenRepo(db *DB) *ShareTokenRepo { return &ShareTokenRepo{db: db} }

// Put inserts a new token row.
func (r *ShareTokenRepo) Put(ctx context.Context, t model.ShareToken) error {
	const q = `
INSERT INTO share_tokens (token, document_id, encrypted_document_key, can_view, can_edit, created_by, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Pool.Exec(ctx, q, t.Token, t.DocumentID, []byte(t.EncryptedDocumentKey),
		t.Permissions.CanView, t.Permissions.CanEdit, t.CreatedBy, t.CreatedAt, t.ExpiresAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects a live token.
func (r *ShareTokenRepo) Get(ctx context.Context, token string, now time.Time) (model.ShareToken, error) {
	const q = `
SELECT token, document_id, encrypted_document_key, can_view, can_edit, created_by, created_at, expires_at
FROM share_tokens WHERE token=$1 AND expires_at > $2`
	var (
		t   model.ShareToken
		key []byte
	)
	err := r.db.Pool.QueryRow(ctx, q, token, now).Scan(&t.Token, &t.DocumentID, &key,
		&t.Permissions.CanView, &t.Permissions.CanEdit, &t.CreatedBy, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ShareToken{}, errs.ErrNotFound
		}
		return model.ShareToken{}, err
	}
	t.EncryptedDocumentKey = model.EncryptedBlob(key)
	return t, nil
}

// Delete removes a live token owned by requester.
func (r *ShareTokenRepo) Delete(ctx context.Context, token, requester string, now time.Time) error {
	const q = `DELETE FROM share_tokens WHERE token=$1 AND created_by=$2 AND expires_at > $3`
	tag, err := r.db.Pool.Exec(ctx, q, token, requester, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.whyNot(ctx, token, now)
	}
	return nil
}

// Extend pushes expiry of a live token owned by requester.
func (r *ShareTokenRepo) Extend(ctx context.Context, token, requester string, d time.Duration, now time.Time) (time.Time, error) {
	const q = `
UPDATE share_tokens SET expires_at = expires_at + $4::interval
WHERE token=$1 AND created_by=$2 AND expires_at > $3
RETURNING expires_at`
	var exp time.Time
	err := r.db.Pool.QueryRow(ctx, q, token, requester, now, d).Scan(&exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, r.whyNot(ctx, token, now)
	}
	return exp, err
}

// SetPermissions replaces the permission set of a live token owned by requester.
func (r *ShareTokenRepo) SetPermissions(ctx context.Context, token, requester string, p model.Permissions, now time.Time) error {
	const q = `
UPDATE share_tokens SET can_view=$4, can_edit=$5
WHERE token=$1 AND created_by=$2 AND expires_at > $3`
	tag, err := r.db.Pool.Exec(ctx, q, token, requester, now, p.CanView, p.CanEdit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.whyNot(ctx, token, now)
	}
	return nil
}

// Sweep deletes expired rows.
func (r *ShareTokenRepo) Sweep(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM share_tokens WHERE expires_at <= $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// whyNot classifies a conditional write that matched no row: the token is
// either gone (absent or expired) or owned by someone else.
func (r *ShareTokenRepo) whyNot(ctx context.Context, token string, now time.Time) error {
	const q = `SELECT 1 FROM share_tokens WHERE token=$1 AND expires_at > $2`
	var one int
	err := r.db.Pool.QueryRow(ctx, q, token, now).Scan(&one)
	switch {
	case err == nil:
		return errs.ErrForbidden
	case errors.Is(err, pgx.ErrNoRows):
		return errs.ErrNotFound
	default:
		return err
	}
}
