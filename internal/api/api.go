// Package api holds the wire messages of the notevault.v1.NoteVault gRPC
// service. Byte fields carry ciphertext only.
package api

import "time"

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "notevault.v1.NoteVault"

// Full method names.
const (
	MethodCreateWorkspace        = "/" + ServiceName + "/CreateWorkspace"
	MethodGetWorkspace           = "/" + ServiceName + "/GetWorkspace"
	MethodListWorkspaces         = "/" + ServiceName + "/ListWorkspaces"
	MethodSetWrappedMasterKey    = "/" + ServiceName + "/SetWrappedMasterKey"
	MethodUpsertDocuments        = "/" + ServiceName + "/UpsertDocuments"
	MethodGetDocument            = "/" + ServiceName + "/GetDocument"
	MethodDeleteDocument         = "/" + ServiceName + "/DeleteDocument"
	MethodGetChanges             = "/" + ServiceName + "/GetChanges"
	MethodCreateShare            = "/" + ServiceName + "/CreateShare"
	MethodGetShare               = "/" + ServiceName + "/GetShare"
	MethodRevokeShare            = "/" + ServiceName + "/RevokeShare"
	MethodExtendShare            = "/" + ServiceName + "/ExtendShare"
	MethodUpdateSharePermissions = "/" + ServiceName + "/UpdateSharePermissions"
	MethodUpdateSharedDocument   = "/" + ServiceName + "/UpdateSharedDocument"
)

// --- workspaces ---

type Workspace struct {
	ID               string    `json:"id"`
	Name             string    `json:"name,omitempty"`
	KDFSalt          string    `json:"kdfSalt"`
	WrappedMasterKey []byte    `json:"wrappedMasterKey,omitempty"`
	CreatedAt        time.Time `json:"createdAt,omitempty"`
}

type CreateWorkspaceRequest struct {
	Workspace Workspace `json:"workspace"`
}

type CreateWorkspaceResponse struct {
	Workspace Workspace `json:"workspace"`
}

type GetWorkspaceRequest struct {
	ID string `json:"id"`
}

type GetWorkspaceResponse struct {
	Workspace Workspace `json:"workspace"`
}

type ListWorkspacesRequest struct{}

type ListWorkspacesResponse struct {
	Workspaces []Workspace `json:"workspaces"`
}

type SetWrappedMasterKeyRequest struct {
	ID               string `json:"id"`
	WrappedMasterKey []byte `json:"wrappedMasterKey"`
}

type SetWrappedMasterKeyResponse struct{}

// --- documents ---

type Document struct {
	ID               string    `json:"id"`
	WorkspaceID      string    `json:"workspaceId"`
	EncryptedContent []byte    `json:"encryptedContent,omitempty"`
	EncryptedKey     []byte    `json:"encryptedKey,omitempty"`
	Metadata         []byte    `json:"metadata,omitempty"`
	Ver              int64     `json:"ver"`
	Deleted          bool      `json:"deleted,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}

type UpsertDocument struct {
	ID               string `json:"id"`
	BaseVer          int64  `json:"baseVer"`
	EncryptedContent []byte `json:"encryptedContent"`
	EncryptedKey     []byte `json:"encryptedKey"`
	Metadata         []byte `json:"metadata,omitempty"`
}

type DocumentVersion struct {
	ID        string    `json:"id"`
	NewVer    int64     `json:"newVer"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type UpsertDocumentsRequest struct {
	WorkspaceID string           `json:"workspaceId"`
	Documents   []UpsertDocument `json:"documents"`
}

type UpsertDocumentsResponse struct {
	Results []DocumentVersion `json:"results"`
}

type GetDocumentRequest struct {
	WorkspaceID string `json:"workspaceId"`
	ID          string `json:"id"`
}

type GetDocumentResponse struct {
	Document Document `json:"document"`
}

type DeleteDocumentRequest struct {
	WorkspaceID string `json:"workspaceId"`
	ID          string `json:"id"`
	BaseVer     int64  `json:"baseVer"`
}

type DeleteDocumentResponse struct {
	Result DocumentVersion `json:"result"`
}

type Change struct {
	ID               string    `json:"id"`
	Ver              int64     `json:"ver"`
	Deleted          bool      `json:"deleted,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
	EncryptedContent []byte    `json:"encryptedContent,omitempty"`
	EncryptedKey     []byte    `json:"encryptedKey,omitempty"`
}

type GetChangesRequest struct {
	WorkspaceID string `json:"workspaceId"`
	SinceVer    int64  `json:"sinceVer"`
}

type GetChangesResponse struct {
	Changes []Change `json:"changes"`
	// HeadVer is the version to pass as SinceVer on the next call.
	HeadVer int64 `json:"headVer"`
}

// --- shares ---

type Permissions struct {
	CanView bool `json:"canView"`
	CanEdit bool `json:"canEdit"`
}

type Share struct {
	Token                string      `json:"token"`
	DocumentID           string      `json:"documentId"`
	EncryptedDocumentKey []byte      `json:"encryptedDocumentKey"`
	Permissions          Permissions `json:"permissions"`
	CreatedAt            time.Time   `json:"createdAt"`
	ExpiresAt            time.Time   `json:"expiresAt"`
	// TTLSeconds is the remaining lifetime when the message was built.
	TTLSeconds int64 `json:"ttlSeconds"`
}

type CreateShareRequest struct {
	WorkspaceID          string       `json:"workspaceId"`
	DocumentID           string       `json:"documentId"`
	EncryptedDocumentKey []byte       `json:"encryptedDocumentKey"`
	Permissions          *Permissions `json:"permissions,omitempty"`
	// TTLSeconds of zero selects the server default.
	TTLSeconds int64 `json:"ttlSeconds,omitempty"`
}

type CreateShareResponse struct {
	Share Share `json:"share"`
}

type GetShareRequest struct {
	Token string `json:"token"`
}

type GetShareResponse struct {
	Share    Share     `json:"share"`
	Document *Document `json:"document,omitempty"`
}

type RevokeShareRequest struct {
	Token string `json:"token"`
}

type RevokeShareResponse struct{}

type ExtendShareRequest struct {
	Token             string `json:"token"`
	AdditionalSeconds int64  `json:"additionalSeconds"`
}

type ExtendShareResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

type UpdateSharePermissionsRequest struct {
	Token       string      `json:"token"`
	Permissions Permissions `json:"permissions"`
}

type UpdateSharePermissionsResponse struct{}

type UpdateSharedDocumentRequest struct {
	Token            string `json:"token"`
	BaseVer          int64  `json:"baseVer"`
	EncryptedContent []byte `json:"encryptedContent"`
}

type UpdateSharedDocumentResponse struct {
	Result DocumentVersion `json:"result"`
}
