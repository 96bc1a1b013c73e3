// Package client is the NoteVault gRPC client and the session layer that
// performs all encryption before anything leaves the process.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/and161185/notevault/internal/api"
)

// Options configure Dial.
type Options struct {
	// CACert is a PEM bundle used to verify the server. Empty means system roots.
	CACert string
	// InsecureSkipVerify disables certificate verification (dev).
	InsecureSkipVerify bool
	// Plaintext disables TLS entirely. Bearer tokens are still sent.
	Plaintext bool
	// Token is the bearer token attached to every call. Share holders leave it empty.
	Token string
	// DialOptions are appended after the defaults.
	DialOptions []grpc.DialOption
}

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}), nil
}

// Client is a thin typed wrapper over the CBOR-encoded service.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to addr. The connection is lazy; errors surface on first call.
func Dial(addr string, o Options) (*Client, error) {
	var creds credentials.TransportCredentials
	if o.Plaintext {
		creds = insecure.NewCredentials()
	} else {
		var err error
		if creds, err = loadTLS(o.CACert, o.InsecureSkipVerify); err != nil {
			return nil, err
		}
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	}
	if o.Token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: o.Token, secure: !o.Plaintext}))
	}
	opts = append(opts, o.DialOptions...)
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.cc.Close() }

func call[Req, Resp any](ctx context.Context, c *Client, method string, in *Req) (*Resp, error) {
	out := new(Resp)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

func (c *Client) CreateWorkspace(ctx context.Context, w api.Workspace) (api.Workspace, error) {
	r, err := call[api.CreateWorkspaceRequest, api.CreateWorkspaceResponse](ctx, c, api.MethodCreateWorkspace,
		&api.CreateWorkspaceRequest{Workspace: w})
	if err != nil {
		return api.Workspace{}, err
	}
	return r.Workspace, nil
}

func (c *Client) GetWorkspace(ctx context.Context, id string) (api.Workspace, error) {
	r, err := call[api.GetWorkspaceRequest, api.GetWorkspaceResponse](ctx, c, api.MethodGetWorkspace,
		&api.GetWorkspaceRequest{ID: id})
	if err != nil {
		return api.Workspace{}, err
	}
	return r.Workspace, nil
}

func (c *Client) ListWorkspaces(ctx context.Context) ([]api.Workspace, error) {
	r, err := call[api.ListWorkspacesRequest, api.ListWorkspacesResponse](ctx, c, api.MethodListWorkspaces,
		&api.ListWorkspacesRequest{})
	if err != nil {
		return nil, err
	}
	return r.Workspaces, nil
}

func (c *Client) SetWrappedMasterKey(ctx context.Context, id string, wrapped []byte) error {
	_, err := call[api.SetWrappedMasterKeyRequest, api.SetWrappedMasterKeyResponse](ctx, c, api.MethodSetWrappedMasterKey,
		&api.SetWrappedMasterKeyRequest{ID: id, WrappedMasterKey: wrapped})
	return err
}

func (c *Client) UpsertDocuments(ctx context.Context, ws string, docs []api.UpsertDocument) ([]api.DocumentVersion, error) {
	r, err := call[api.UpsertDocumentsRequest, api.UpsertDocumentsResponse](ctx, c, api.MethodUpsertDocuments,
		&api.UpsertDocumentsRequest{WorkspaceID: ws, Documents: docs})
	if err != nil {
		return nil, err
	}
	return r.Results, nil
}

func (c *Client) GetDocument(ctx context.Context, ws, id string) (api.Document, error) {
	r, err := call[api.GetDocumentRequest, api.GetDocumentResponse](ctx, c, api.MethodGetDocument,
		&api.GetDocumentRequest{WorkspaceID: ws, ID: id})
	if err != nil {
		return api.Document{}, err
	}
	return r.Document, nil
}

func (c *Client) DeleteDocument(ctx context.Context, ws, id string, baseVer int64) (api.DocumentVersion, error) {
	r, err := call[api.DeleteDocumentRequest, api.DeleteDocumentResponse](ctx, c, api.MethodDeleteDocument,
		&api.DeleteDocumentRequest{WorkspaceID: ws, ID: id, BaseVer: baseVer})
	if err != nil {
		return api.DocumentVersion{}, err
	}
	return r.Result, nil
}

// GetChanges returns changes after since and the cursor for the next call.
func (c *Client) GetChanges(ctx context.Context, ws string, since int64) ([]api.Change, int64, error) {
	r, err := call[api.GetChangesRequest, api.GetChangesResponse](ctx, c, api.MethodGetChanges,
		&api.GetChangesRequest{WorkspaceID: ws, SinceVer: since})
	if err != nil {
		return nil, 0, err
	}
	return r.Changes, r.HeadVer, nil
}

func (c *Client) CreateShare(ctx context.Context, req api.CreateShareRequest) (api.Share, error) {
	r, err := call[api.CreateShareRequest, api.CreateShareResponse](ctx, c, api.MethodCreateShare, &req)
	if err != nil {
		return api.Share{}, err
	}
	return r.Share, nil
}

func (c *Client) GetShare(ctx context.Context, token string) (*api.GetShareResponse, error) {
	return call[api.GetShareRequest, api.GetShareResponse](ctx, c, api.MethodGetShare, &api.GetShareRequest{Token: token})
}

func (c *Client) RevokeShare(ctx context.Context, token string) error {
	_, err := call[api.RevokeShareRequest, api.RevokeShareResponse](ctx, c, api.MethodRevokeShare,
		&api.RevokeShareRequest{Token: token})
	return err
}

func (c *Client) ExtendShare(ctx context.Context, token string, additional time.Duration) (time.Time, error) {
	r, err := call[api.ExtendShareRequest, api.ExtendShareResponse](ctx, c, api.MethodExtendShare,
		&api.ExtendShareRequest{Token: token, AdditionalSeconds: int64(additional / time.Second)})
	if err != nil {
		return time.Time{}, err
	}
	return r.ExpiresAt, nil
}

func (c *Client) UpdateSharePermissions(ctx context.Context, token string, p api.Permissions) error {
	_, err := call[api.UpdateSharePermissionsRequest, api.UpdateSharePermissionsResponse](ctx, c, api.MethodUpdateSharePermissions,
		&api.UpdateSharePermissionsRequest{Token: token, Permissions: p})
	return err
}

func (c *Client) UpdateSharedDocument(ctx context.Context, token string, baseVer int64, content []byte) (api.DocumentVersion, error) {
	r, err := call[api.UpdateSharedDocumentRequest, api.UpdateSharedDocumentResponse](ctx, c, api.MethodUpdateSharedDocument,
		&api.UpdateSharedDocumentRequest{Token: token, BaseVer: baseVer, EncryptedContent: content})
	if err != nil {
		return api.DocumentVersion{}, err
	}
	return r.Result, nil
}
