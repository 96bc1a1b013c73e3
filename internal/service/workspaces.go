// Package service contains application services for workspaces, documents
// and shares. Everything they store is ciphertext produced by the client.
package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
	"github.com/and161185/notevault/internal/repository"
)

// WorkspaceService defines workspace bootstrap operations.
type WorkspaceService interface {
	// Create registers a workspace for ownerID.
	Create(ctx context.Context, ownerID string, w model.Workspace) (*model.Workspace, error)
	// Get returns a workspace the caller owns.
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*model.Workspace, error)
	// List returns the caller's workspaces.
	List(ctx context.Context, ownerID string) ([]model.Workspace, error)
	// SetWrappedMasterKey stores the client's wrapped master key if none is set.
	SetWrappedMasterKey(ctx context.Context, ownerID string, id uuid.UUID, wrapped model.EncryptedBlob) error
}

type WorkspaceServiceImpl struct {
	repo repository.WorkspaceRepository
}

// NewWorkspaceService constructs WorkspaceService.
func NewWorkspaceService(repo repository.WorkspaceRepository) *WorkspaceServiceImpl {
	return &WorkspaceServiceImpl{repo: repo}
}

// Create validates and inserts w. The wrapped master key may be left empty and
// supplied once later with SetWrappedMasterKey.
func (s *WorkspaceServiceImpl) Create(ctx context.Context, ownerID string, w model.Workspace) (*model.Workspace, error) {
	if ownerID == "" {
		return nil, errs.ErrUnauthorized
	}
	if w.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty workspace id", errs.ErrInvalidArgument)
	}
	if w.KDFSalt == "" {
		return nil, fmt.Errorf("%w: empty kdf salt", errs.ErrInvalidArgument)
	}
	w.OwnerID = ownerID
	if err := s.repo.Create(ctx, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Get loads id and checks ownership.
func (s *WorkspaceServiceImpl) Get(ctx context.Context, ownerID string, id uuid.UUID) (*model.Workspace, error) {
	if ownerID == "" {
		return nil, errs.ErrUnauthorized
	}
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: empty workspace id", errs.ErrInvalidArgument)
	}
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.OwnerID != ownerID {
		return nil, errs.ErrForbidden
	}
	return w, nil
}

// List returns ownerID's workspaces.
func (s *WorkspaceServiceImpl) List(ctx context.Context, ownerID string) ([]model.Workspace, error) {
	if ownerID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// SetWrappedMasterKey persists the wrapped master key if not yet initialized.
func (s *WorkspaceServiceImpl) SetWrappedMasterKey(ctx context.Context, ownerID string, id uuid.UUID, wrapped model.EncryptedBlob) error {
	if len(wrapped) == 0 {
		return fmt.Errorf("%w: empty wrapped master key", errs.ErrInvalidArgument)
	}
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.repo.SetWrappedMasterKeyIfEmpty(ctx, id, wrapped)
}
