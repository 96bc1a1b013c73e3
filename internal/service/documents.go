package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
	"github.com/and161185/notevault/internal/repository"
)

// DocumentService defines operations over encrypted documents with versioning.
type DocumentService interface {
	// Upsert creates or updates documents atomically and returns new versions.
	Upsert(ctx context.Context, ownerID string, workspaceID uuid.UUID, ups []model.UpsertDocument) ([]model.DocumentVersion, error)
	// Delete sets tombstone on a document and returns new version.
	Delete(ctx context.Context, ownerID string, workspaceID, id uuid.UUID, baseVer int64) (model.DocumentVersion, error)
	// GetChanges returns changes since provided version for delta sync.
	GetChanges(ctx context.Context, ownerID string, workspaceID uuid.UUID, sinceVer int64) ([]model.Change, error)
	// HeadVersion returns the latest document version of a workspace.
	HeadVersion(ctx context.Context, ownerID string, workspaceID uuid.UUID) (int64, error)
	// GetOne returns a single document by ID.
	GetOne(ctx context.Context, ownerID string, workspaceID, id uuid.UUID) (*model.Document, error)
}

type DocumentServiceImpl struct {
	repo       repository.DocumentRepository
	workspaces WorkspaceService
	maxBatch   int
}

// NewDocumentService constructs DocumentService with batch limits.
func NewDocumentService(repo repository.DocumentRepository, workspaces WorkspaceService, maxBatch int) *DocumentServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &DocumentServiceImpl{repo: repo, workspaces: workspaces, maxBatch: maxBatch}
}

// Upsert validates input and delegates atomic batch upsert to repository.
// Validation rules:
// - each ID != uuid.Nil
// - BaseVer >= 0
// - EncryptedContent and EncryptedKey not empty
func (s *DocumentServiceImpl) Upsert(ctx context.Context, ownerID string, workspaceID uuid.UUID, ups []model.UpsertDocument) ([]model.DocumentVersion, error) {
	if err := s.owns(ctx, ownerID, workspaceID); err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return []model.DocumentVersion{}, nil
	}
	if len(ups) > s.maxBatch {
		return nil, fmt.Errorf("%w: batch too large (%d > %d)", errs.ErrInvalidArgument, len(ups), s.maxBatch)
	}
	for i := range ups {
		if ups[i].ID == uuid.Nil {
			return nil, fmt.Errorf("%w: document[%d] empty id", errs.ErrInvalidArgument, i)
		}
		if ups[i].BaseVer < 0 {
			return nil, fmt.Errorf("%w: document[%d] negative base_ver", errs.ErrInvalidArgument, i)
		}
		if len(ups[i].EncryptedContent) == 0 || len(ups[i].EncryptedKey) == 0 {
			return nil, fmt.Errorf("%w: document[%d] empty ciphertext", errs.ErrInvalidArgument, i)
		}
	}
	return s.repo.UpsertBatch(ctx, workspaceID, ups)
}

// Delete applies tombstone with optimistic concurrency.
func (s *DocumentServiceImpl) Delete(ctx context.Context, ownerID string, workspaceID, id uuid.UUID, baseVer int64) (model.DocumentVersion, error) {
	if id == uuid.Nil || baseVer < 0 {
		return model.DocumentVersion{}, fmt.Errorf("%w: empty id or negative base_ver", errs.ErrInvalidArgument)
	}
	if err := s.owns(ctx, ownerID, workspaceID); err != nil {
		return model.DocumentVersion{}, err
	}
	return s.repo.Delete(ctx, workspaceID, id, baseVer)
}

// GetChanges returns all changes with ver > sinceVer ordered by ver ASC.
func (s *DocumentServiceImpl) GetChanges(ctx context.Context, ownerID string, workspaceID uuid.UUID, sinceVer int64) ([]model.Change, error) {
	if sinceVer < 0 {
		return nil, fmt.Errorf("%w: negative since_ver", errs.ErrInvalidArgument)
	}
	if err := s.owns(ctx, ownerID, workspaceID); err != nil {
		return nil, err
	}
	return s.repo.GetChangesSince(ctx, workspaceID, sinceVer)
}

// HeadVersion is the sync cursor a client may resume from.
func (s *DocumentServiceImpl) HeadVersion(ctx context.Context, ownerID string, workspaceID uuid.UUID) (int64, error) {
	if err := s.owns(ctx, ownerID, workspaceID); err != nil {
		return 0, err
	}
	return s.repo.GetMaxVersion(ctx, workspaceID)
}

// GetOne fetches a single document by id.
func (s *DocumentServiceImpl) GetOne(ctx context.Context, ownerID string, workspaceID, id uuid.UUID) (*model.Document, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: empty id", errs.ErrInvalidArgument)
	}
	if err := s.owns(ctx, ownerID, workspaceID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, workspaceID, id)
}

func (s *DocumentServiceImpl) owns(ctx context.Context, ownerID string, workspaceID uuid.UUID) error {
	_, err := s.workspaces.Get(ctx, ownerID, workspaceID)
	return err
}
