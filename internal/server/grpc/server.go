// Package grpcserver exposes the NoteVault gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/notevault/internal/api"
	"github.com/and161185/notevault/internal/convert"
	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
	"github.com/and161185/notevault/internal/service"
)

// Server wires services into gRPC handlers.
type Server struct {
	workspaces service.WorkspaceService
	docs       service.DocumentService
	shares     service.ShareService
	now        func() time.Time
	log        *zap.Logger
}

var _ NoteVaultServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(ws service.WorkspaceService, docs service.DocumentService, shares service.ShareService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{workspaces: ws, docs: docs, shares: shares, now: time.Now, log: log}
}

// --- Workspaces ---

// CreateWorkspace registers a client-generated workspace.
func (s *Server) CreateWorkspace(ctx context.Context, req *api.CreateWorkspaceRequest) (*api.CreateWorkspaceResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	w, err := convert.FromAPIWorkspace(req.Workspace)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad workspace: %v", err)
	}
	out, err := s.workspaces.Create(ctx, sub, w)
	if err != nil {
		return nil, s.toStatus("create workspace", err)
	}
	return &api.CreateWorkspaceResponse{Workspace: convert.ToAPIWorkspace(*out)}, nil
}

// GetWorkspace returns one of the caller's workspaces.
func (s *Server) GetWorkspace(ctx context.Context, req *api.GetWorkspaceRequest) (*api.GetWorkspaceResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	id, err := convert.ParseID(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad id")
	}
	w, err := s.workspaces.Get(ctx, sub, id)
	if err != nil {
		return nil, s.toStatus("get workspace", err)
	}
	return &api.GetWorkspaceResponse{Workspace: convert.ToAPIWorkspace(*w)}, nil
}

// ListWorkspaces returns all workspaces of the caller.
func (s *Server) ListWorkspaces(ctx context.Context, _ *api.ListWorkspacesRequest) (*api.ListWorkspacesResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	ws, err := s.workspaces.List(ctx, sub)
	if err != nil {
		return nil, s.toStatus("list workspaces", err)
	}
	return &api.ListWorkspacesResponse{Workspaces: convert.ToAPIWorkspaces(ws)}, nil
}

// SetWrappedMasterKey stores the wrapped master key once.
func (s *Server) SetWrappedMasterKey(ctx context.Context, req *api.SetWrappedMasterKeyRequest) (*api.SetWrappedMasterKeyResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	id, err := convert.ParseID(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad id")
	}
	if len(req.WrappedMasterKey) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty wrapped_master_key")
	}
	if err := s.workspaces.SetWrappedMasterKey(ctx, sub, id, model.EncryptedBlob(req.WrappedMasterKey)); err != nil {
		if errors.Is(err, errs.ErrVersionConflict) {
			return nil, status.Error(codes.FailedPrecondition, "already initialized")
		}
		return nil, s.toStatus("set wrapped master key", err)
	}
	return &api.SetWrappedMasterKeyResponse{}, nil
}

// --- Documents ---

// UpsertDocuments creates or updates documents in batch with optimistic concurrency.
func (s *Server) UpsertDocuments(ctx context.Context, req *api.UpsertDocumentsRequest) (*api.UpsertDocumentsResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	ws, err := convert.ParseID(req.WorkspaceID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad workspace id")
	}
	ups, err := convert.FromAPIUpsertDocuments(req.Documents)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad documents: %v", err)
	}
	res, err := s.docs.Upsert(ctx, sub, ws, ups)
	if err != nil {
		return nil, s.toStatus("upsert", err)
	}
	return &api.UpsertDocumentsResponse{Results: convert.ToAPIDocumentVersions(res)}, nil
}

// GetDocument returns a single document by id.
func (s *Server) GetDocument(ctx context.Context, req *api.GetDocumentRequest) (*api.GetDocumentResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	ws, err := convert.ParseID(req.WorkspaceID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad workspace id")
	}
	id, err := convert.ParseID(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad id")
	}
	d, err := s.docs.GetOne(ctx, sub, ws, id)
	if err != nil {
		return nil, s.toStatus("get document", err)
	}
	return &api.GetDocumentResponse{Document: convert.ToAPIDocument(*d)}, nil
}

// DeleteDocument marks a document as deleted (tombstone).
func (s *Server) DeleteDocument(ctx context.Context, req *api.DeleteDocumentRequest) (*api.DeleteDocumentResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	ws, err := convert.ParseID(req.WorkspaceID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad workspace id")
	}
	id, err := convert.ParseID(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad id")
	}
	v, err := s.docs.Delete(ctx, sub, ws, id, req.BaseVer)
	if err != nil {
		return nil, s.toStatus("delete", err)
	}
	return &api.DeleteDocumentResponse{Result: convert.ToAPIDocumentVersion(v)}, nil
}

// GetChanges returns changes since a given version for delta synchronization.
func (s *Server) GetChanges(ctx context.Context, req *api.GetChangesRequest) (*api.GetChangesResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	ws, err := convert.ParseID(req.WorkspaceID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad workspace id")
	}
	// head is read first so a write racing with the feed is never skipped
	head, err := s.docs.HeadVersion(ctx, sub, ws)
	if err != nil {
		return nil, s.toStatus("get changes", err)
	}
	cs, err := s.docs.GetChanges(ctx, sub, ws, req.SinceVer)
	if err != nil {
		return nil, s.toStatus("get changes", err)
	}
	if n := len(cs); n > 0 && cs[n-1].Ver > head {
		head = cs[n-1].Ver
	}
	return &api.GetChangesResponse{Changes: convert.ToAPIChanges(cs), HeadVer: head}, nil
}

// --- Shares ---

// CreateShare issues an ephemeral token for one of the caller's documents.
func (s *Server) CreateShare(ctx context.Context, req *api.CreateShareRequest) (*api.CreateShareResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	ws, err := convert.ParseID(req.WorkspaceID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad workspace id")
	}
	doc, err := convert.ParseID(req.DocumentID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad document id")
	}
	ttl, ok := secondsToDuration(req.TTLSeconds)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "ttl out of range")
	}
	t, err := s.shares.Create(ctx, sub, service.ShareRequest{
		WorkspaceID: ws,
		DocumentID:  doc,
		Envelope:    model.EncryptedBlob(req.EncryptedDocumentKey),
		Permissions: convert.FromAPIPermissions(req.Permissions),
		TTL:         ttl,
		RemoteAddr:  remoteAddr(ctx),
	})
	if err != nil {
		return nil, s.toStatus("create share", err)
	}
	return &api.CreateShareResponse{Share: convert.ToAPIShare(t, s.now())}, nil
}

// GetShare resolves a share token. No bearer token is required.
func (s *Server) GetShare(ctx context.Context, req *api.GetShareRequest) (*api.GetShareResponse, error) {
	sd, err := s.shares.Open(ctx, req.Token)
	if err != nil {
		return nil, s.toStatus("get share", err)
	}
	out := &api.GetShareResponse{Share: convert.ToAPIShare(sd.Token, s.now())}
	if sd.Document != nil {
		d := convert.ToAPIDocument(*sd.Document)
		out.Document = &d
	}
	return out, nil
}

// RevokeShare deletes a token created by the caller.
func (s *Server) RevokeShare(ctx context.Context, req *api.RevokeShareRequest) (*api.RevokeShareResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	if err := s.shares.Revoke(ctx, sub, req.Token); err != nil {
		return nil, s.toStatus("revoke share", err)
	}
	return &api.RevokeShareResponse{}, nil
}

// ExtendShare prolongs a token created by the caller.
func (s *Server) ExtendShare(ctx context.Context, req *api.ExtendShareRequest) (*api.ExtendShareResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	add, ok := secondsToDuration(req.AdditionalSeconds)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "additional seconds out of range")
	}
	exp, err := s.shares.Extend(ctx, sub, req.Token, add)
	if err != nil {
		return nil, s.toStatus("extend share", err)
	}
	return &api.ExtendShareResponse{ExpiresAt: exp}, nil
}

// UpdateSharePermissions replaces the permissions of a token created by the caller.
func (s *Server) UpdateSharePermissions(ctx context.Context, req *api.UpdateSharePermissionsRequest) (*api.UpdateSharePermissionsResponse, error) {
	sub, ok := SubjectFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	if err := s.shares.UpdatePermissions(ctx, sub, req.Token, model.Permissions(req.Permissions)); err != nil {
		return nil, s.toStatus("update share permissions", err)
	}
	return &api.UpdateSharePermissionsResponse{}, nil
}

// UpdateSharedDocument writes new content through an edit-capable token.
func (s *Server) UpdateSharedDocument(ctx context.Context, req *api.UpdateSharedDocumentRequest) (*api.UpdateSharedDocumentResponse, error) {
	v, err := s.shares.UpdateShared(ctx, req.Token, req.BaseVer, model.EncryptedBlob(req.EncryptedContent))
	if err != nil {
		return nil, s.toStatus("update shared document", err)
	}
	return &api.UpdateSharedDocumentResponse{Result: convert.ToAPIDocumentVersion(v)}, nil
}

// toStatus maps domain sentinels to gRPC codes. Unknown errors are logged and
// reported as Internal without detail.
func (s *Server) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, errs.ErrServiceUnavailable):
		return status.Error(codes.Unavailable, "service unavailable")
	case errors.Is(err, errs.ErrInvalidArgument), errors.Is(err, errs.ErrKeyFormat):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrVersionConflict):
		return status.Error(codes.FailedPrecondition, "version conflict")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "no auth")
	default:
		s.log.Error(op, zap.Error(err))
		return status.Errorf(codes.Internal, "%s failed", op)
	}
}

const maxWireSeconds = math.MaxInt64 / int64(time.Second)

// secondsToDuration rejects negative values and values that would overflow.
func secondsToDuration(n int64) (time.Duration, bool) {
	if n < 0 || n > maxWireSeconds {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
