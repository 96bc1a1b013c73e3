package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
	"github.com/and161185/notevault/internal/repository"
	"github.com/and161185/notevault/internal/sharetoken"
)

// ShareTokens is the token lifecycle used by ShareService; *sharetoken.Service
// implements it.
type ShareTokens interface {
	Create(ctx context.Context, req sharetoken.CreateRequest) (model.ShareToken, error)
	Get(ctx context.Context, token string) (model.ShareToken, error)
	Revoke(ctx context.Context, token, requesterID string) error
	ExtendTTL(ctx context.Context, token, requesterID string, additional time.Duration) (time.Time, error)
	UpdatePermissions(ctx context.Context, token, requesterID string, p model.Permissions) error
}

var _ ShareTokens = (*sharetoken.Service)(nil)

// ShareRequest describes a new share of one document.
type ShareRequest struct {
	WorkspaceID uuid.UUID
	DocumentID  uuid.UUID
	// Envelope is the document key sealed under the link key.
	Envelope    model.EncryptedBlob
	Permissions *model.Permissions
	TTL         time.Duration
	RemoteAddr  string
}

// SharedDocument is what a token holder receives.
type SharedDocument struct {
	Token model.ShareToken
	// Document is nil when the token does not grant view access.
	Document *model.Document
}

// ShareService ties share tokens to stored documents.
type ShareService interface {
	Create(ctx context.Context, ownerID string, req ShareRequest) (model.ShareToken, error)
	Open(ctx context.Context, token string) (SharedDocument, error)
	Revoke(ctx context.Context, ownerID, token string) error
	Extend(ctx context.Context, ownerID, token string, additional time.Duration) (time.Time, error)
	UpdatePermissions(ctx context.Context, ownerID, token string, p model.Permissions) error
	// UpdateShared replaces the content of a shared document through an
	// edit-capable token. The document key is unchanged.
	UpdateShared(ctx context.Context, token string, baseVer int64, content model.EncryptedBlob) (model.DocumentVersion, error)
}

type ShareServiceImpl struct {
	tokens ShareTokens
	docs   DocumentService
	repo   repository.DocumentRepository
}

// NewShareService constructs ShareService.
func NewShareService(tokens ShareTokens, docs DocumentService, repo repository.DocumentRepository) *ShareServiceImpl {
	return &ShareServiceImpl{tokens: tokens, docs: docs, repo: repo}
}

// Create checks that ownerID holds the document and issues a token for it.
func (s *ShareServiceImpl) Create(ctx context.Context, ownerID string, req ShareRequest) (model.ShareToken, error) {
	d, err := s.docs.GetOne(ctx, ownerID, req.WorkspaceID, req.DocumentID)
	if err != nil {
		return model.ShareToken{}, err
	}
	if d.Deleted {
		return model.ShareToken{}, errs.ErrNotFound
	}
	return s.tokens.Create(ctx, sharetoken.CreateRequest{
		DocumentID:           d.ID.String(),
		EncryptedDocumentKey: req.Envelope,
		Permissions:          req.Permissions,
		CreatorID:            ownerID,
		TTL:                  req.TTL,
		RemoteAddr:           req.RemoteAddr,
	})
}

// Open resolves a token to its record and, when viewable, the document
// ciphertext.
func (s *ShareServiceImpl) Open(ctx context.Context, token string) (SharedDocument, error) {
	t, d, err := s.resolve(ctx, token)
	if err != nil {
		return SharedDocument{}, err
	}
	out := SharedDocument{Token: t}
	if t.Permissions.CanView {
		out.Document = d
	}
	return out, nil
}

// Revoke deletes a token created by ownerID.
func (s *ShareServiceImpl) Revoke(ctx context.Context, ownerID, token string) error {
	return s.tokens.Revoke(ctx, token, ownerID)
}

// Extend prolongs a token created by ownerID.
func (s *ShareServiceImpl) Extend(ctx context.Context, ownerID, token string, additional time.Duration) (time.Time, error) {
	return s.tokens.ExtendTTL(ctx, token, ownerID, additional)
}

// UpdatePermissions replaces the permissions of a token created by ownerID.
func (s *ShareServiceImpl) UpdatePermissions(ctx context.Context, ownerID, token string, p model.Permissions) error {
	return s.tokens.UpdatePermissions(ctx, token, ownerID, p)
}

// UpdateShared writes new content under the token's edit permission.
func (s *ShareServiceImpl) UpdateShared(ctx context.Context, token string, baseVer int64, content model.EncryptedBlob) (model.DocumentVersion, error) {
	if len(content) == 0 || baseVer < 0 {
		return model.DocumentVersion{}, fmt.Errorf("%w: empty content or negative base_ver", errs.ErrInvalidArgument)
	}
	t, d, err := s.resolve(ctx, token)
	if err != nil {
		return model.DocumentVersion{}, err
	}
	if !t.Permissions.CanEdit {
		return model.DocumentVersion{}, errs.ErrForbidden
	}
	res, err := s.repo.UpsertBatch(ctx, d.WorkspaceID, []model.UpsertDocument{{
		ID:               d.ID,
		BaseVer:          baseVer,
		EncryptedContent: content,
		EncryptedKey:     d.EncryptedKey,
		Metadata:         d.Metadata,
	}})
	if err != nil {
		return model.DocumentVersion{}, err
	}
	if len(res) != 1 {
		return model.DocumentVersion{}, fmt.Errorf("upsert shared: %d results", len(res))
	}
	return res[0], nil
}

func (s *ShareServiceImpl) resolve(ctx context.Context, token string) (model.ShareToken, *model.Document, error) {
	t, err := s.tokens.Get(ctx, token)
	if err != nil {
		return model.ShareToken{}, nil, err
	}
	id, err := uuid.FromString(t.DocumentID)
	if err != nil {
		return model.ShareToken{}, nil, errs.ErrNotFound
	}
	d, err := s.repo.Lookup(ctx, id)
	if err != nil {
		return model.ShareToken{}, nil, err
	}
	if d.Deleted {
		return model.ShareToken{}, nil, errs.ErrNotFound
	}
	return t, d, nil
}
