// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// EncryptedBlob is an opaque AEAD output: nonce || ciphertext || tag.
// It marshals to JSON as a standard base64 string.
type EncryptedBlob []byte

// String returns the transportable base64 form.
func (b EncryptedBlob) String() string { return base64.StdEncoding.EncodeToString(b) }

// ParseEncryptedBlob decodes the transportable base64 form.
func ParseEncryptedBlob(s string) (EncryptedBlob, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode blob: %w", err)
	}
	return EncryptedBlob(raw), nil
}

// Workspace owns one wrapped master key and zero or more documents.
type Workspace struct {
	ID               uuid.UUID     // client-generated PK
	OwnerID          string        // external auth subject
	Name             string        // display name, not secret
	KDFSalt          string        // identifier used as KDF salt
	WrappedMasterKey EncryptedBlob // AEAD(master key) under the password-derived KEK
	CreatedAt        time.Time
}

// Document is a stored note: content and key are both ciphertext.
type Document struct {
	ID               uuid.UUID     // client-generated PK
	WorkspaceID      uuid.UUID     // FK -> workspaces.id
	EncryptedContent EncryptedBlob // AEAD(content) under the document key
	EncryptedKey     EncryptedBlob // AEAD(document key) under the master key
	Metadata         []byte        // opaque to this core
	Ver              int64         // monotonically increasing version (>= 0)
	Deleted          bool          // tombstone flag
	UpdatedAt        time.Time
}

// UpsertDocument is a client change intent with optimistic concurrency base version.
type UpsertDocument struct {
	ID               uuid.UUID
	BaseVer          int64
	EncryptedContent EncryptedBlob
	EncryptedKey     EncryptedBlob
	Metadata         []byte
}

// DocumentVersion reports the new version after a successful change.
type DocumentVersion struct {
	ID        uuid.UUID
	NewVer    int64
	UpdatedAt time.Time
}

// Change describes a single document mutation for delta sync.
type Change struct {
	ID               uuid.UUID
	Ver              int64
	Deleted          bool
	UpdatedAt        time.Time
	EncryptedContent EncryptedBlob // nil if Deleted
	EncryptedKey     EncryptedBlob // nil if Deleted
}

// Permissions are the capability flags carried by a share token.
type Permissions struct {
	CanView bool `json:"canView"`
	CanEdit bool `json:"canEdit"`
}

// DefaultPermissions grants read-only access.
func DefaultPermissions() Permissions { return Permissions{CanView: true} }

// ShareToken is the server-side record of an ephemeral share.
// EncryptedDocumentKey is a sealed envelope the server cannot open.
type ShareToken struct {
	Token                string
	DocumentID           string
	EncryptedDocumentKey EncryptedBlob
	Permissions          Permissions
	CreatedBy            string
	CreatedAt            time.Time
	ExpiresAt            time.Time
}

// Expired reports whether the token TTL has elapsed at now.
func (t ShareToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// TTL returns the remaining lifetime at now (zero once expired).
func (t ShareToken) TTL(now time.Time) time.Duration {
	if t.Expired(now) {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}
