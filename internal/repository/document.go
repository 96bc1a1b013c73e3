package repository

import (
	"context"

	"github.com/and161185/notevault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DocumentRepository provides versioned access to encrypted documents.
type DocumentRepository interface {
	// UpsertBatch inserts or updates documents using optimistic concurrency.
	UpsertBatch(ctx context.Context, workspaceID uuid.UUID, docs []model.UpsertDocument) ([]model.DocumentVersion, error)

	// Delete sets tombstone on document (ver++) with base version check.
	Delete(ctx context.Context, workspaceID, docID uuid.UUID, baseVer int64) (model.DocumentVersion, error)

	// GetChangesSince returns all changes with version greater than sinceVer.
	GetChangesSince(ctx context.Context, workspaceID uuid.UUID, sinceVer int64) ([]model.Change, error)

	// Get returns a single document by ID.
	Get(ctx context.Context, workspaceID, docID uuid.UUID) (*model.Document, error)

	// Lookup returns a document by ID regardless of workspace; share
	// resolution uses it since a token names only the document.
	Lookup(ctx context.Context, docID uuid.UUID) (*model.Document, error)

	// GetMaxVersion returns the latest version within a workspace.
	GetMaxVersion(ctx context.Context, workspaceID uuid.UUID) (int64, error)
}
