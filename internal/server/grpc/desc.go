package grpcserver

import (
	"context"
	"strings"

	"google.golang.org/grpc"

	"github.com/and161185/notevault/internal/api"
)

// NoteVaultServer is the server API of notevault.v1.NoteVault.
type NoteVaultServer interface {
	CreateWorkspace(context.Context, *api.CreateWorkspaceRequest) (*api.CreateWorkspaceResponse, error)
	GetWorkspace(context.Context, *api.GetWorkspaceRequest) (*api.GetWorkspaceResponse, error)
	ListWorkspaces(context.Context, *api.ListWorkspacesRequest) (*api.ListWorkspacesResponse, error)
	SetWrappedMasterKey(context.Context, *api.SetWrappedMasterKeyRequest) (*api.SetWrappedMasterKeyResponse, error)
	UpsertDocuments(context.Context, *api.UpsertDocumentsRequest) (*api.UpsertDocumentsResponse, error)
	GetDocument(context.Context, *api.GetDocumentRequest) (*api.GetDocumentResponse, error)
	DeleteDocument(context.Context, *api.DeleteDocumentRequest) (*api.DeleteDocumentResponse, error)
	GetChanges(context.Context, *api.GetChangesRequest) (*api.GetChangesResponse, error)
	CreateShare(context.Context, *api.CreateShareRequest) (*api.CreateShareResponse, error)
	GetShare(context.Context, *api.GetShareRequest) (*api.GetShareResponse, error)
	RevokeShare(context.Context, *api.RevokeShareRequest) (*api.RevokeShareResponse, error)
	ExtendShare(context.Context, *api.ExtendShareRequest) (*api.ExtendShareResponse, error)
	UpdateSharePermissions(context.Context, *api.UpdateSharePermissionsRequest) (*api.UpdateSharePermissionsResponse, error)
	UpdateSharedDocument(context.Context, *api.UpdateSharedDocumentRequest) (*api.UpdateSharedDocumentResponse, error)
}

// PublicMethods are callable without a bearer token; the share token is the
// capability.
var PublicMethods = []string{api.MethodGetShare, api.MethodUpdateSharedDocument}

// ServiceDesc describes notevault.v1.NoteVault for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*NoteVaultServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(api.MethodCreateWorkspace, NoteVaultServer.CreateWorkspace),
		unary(api.MethodGetWorkspace, NoteVaultServer.GetWorkspace),
		unary(api.MethodListWorkspaces, NoteVaultServer.ListWorkspaces),
		unary(api.MethodSetWrappedMasterKey, NoteVaultServer.SetWrappedMasterKey),
		unary(api.MethodUpsertDocuments, NoteVaultServer.UpsertDocuments),
		unary(api.MethodGetDocument, NoteVaultServer.GetDocument),
		unary(api.MethodDeleteDocument, NoteVaultServer.DeleteDocument),
		unary(api.MethodGetChanges, NoteVaultServer.GetChanges),
		unary(api.MethodCreateShare, NoteVaultServer.CreateShare),
		unary(api.MethodGetShare, NoteVaultServer.GetShare),
		unary(api.MethodRevokeShare, NoteVaultServer.RevokeShare),
		unary(api.MethodExtendShare, NoteVaultServer.ExtendShare),
		unary(api.MethodUpdateSharePermissions, NoteVaultServer.UpdateSharePermissions),
		unary(api.MethodUpdateSharedDocument, NoteVaultServer.UpdateSharedDocument),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "notevault/v1/notevault.cbor",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv NoteVaultServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds the method descriptor that a protoc plugin would generate.
func unary[Req, Resp any](
	fullMethod string,
	call func(NoteVaultServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: fullMethod[strings.LastIndexByte(fullMethod, '/')+1:],
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(NoteVaultServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(NoteVaultServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
