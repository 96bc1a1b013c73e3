// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/notevault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// WorkspaceRepository stores workspaces and their wrapped master key.
type WorkspaceRepository interface {
	// Create inserts a new workspace.
	Create(ctx context.Context, w *model.Workspace) error
	// Get loads a workspace by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Workspace, error)
	// ListByOwner returns the owner's workspaces, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]model.Workspace, error)
	// SetWrappedMasterKeyIfEmpty stores the wrapped key only if none is set yet.
	SetWrappedMasterKeyIfEmpty(ctx context.Context, id uuid.UUID, wrapped model.EncryptedBlob) error
}
