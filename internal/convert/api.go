// Package convert maps between wire messages and domain models.
package convert

import (
	"fmt"
	"time"

	"github.com/and161185/notevault/internal/api"
	model "github.com/and161185/notevault/internal/model"
	u "github.com/gofrs/uuid/v5"
)

// --- helpers ---

func blob(b []byte) model.EncryptedBlob {
	if len(b) == 0 {
		return nil
	}
	return model.EncryptedBlob(b)
}

// ParseID parses a wire UUID; uuid.Nil is rejected.
func ParseID(s string) (u.UUID, error) {
	var id u.UUID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return u.Nil, fmt.Errorf("invalid id: %w", err)
	}
	if id == u.Nil {
		return u.Nil, fmt.Errorf("invalid id: nil uuid")
	}
	return id, nil
}

// --- workspaces ---

// ToAPIWorkspace converts a domain workspace to its wire form.
func ToAPIWorkspace(w model.Workspace) api.Workspace {
	return api.Workspace{
		ID:               w.ID.String(),
		Name:             w.Name,
		KDFSalt:          w.KDFSalt,
		WrappedMasterKey: []byte(w.WrappedMasterKey),
		CreatedAt:        w.CreatedAt,
	}
}

// FromAPIWorkspace converts a wire workspace to the domain form.
func FromAPIWorkspace(in api.Workspace) (model.Workspace, error) {
	id, err := ParseID(in.ID)
	if err != nil {
		return model.Workspace{}, err
	}
	return model.Workspace{
		ID:               id,
		Name:             in.Name,
		KDFSalt:          in.KDFSalt,
		WrappedMasterKey: blob(in.WrappedMasterKey),
	}, nil
}

// ToAPIWorkspaces converts a slice of workspaces.
func ToAPIWorkspaces(ws []model.Workspace) []api.Workspace {
	out := make([]api.Workspace, 0, len(ws))
	for _, w := range ws {
		out = append(out, ToAPIWorkspace(w))
	}
	return out
}

// --- Upsert (client -> server) ---

// FromAPIUpsertDocument converts a wire upsert to the domain struct.
func FromAPIUpsertDocument(in api.UpsertDocument) (model.UpsertDocument, error) {
	id, err := ParseID(in.ID)
	if err != nil {
		return model.UpsertDocument{}, err
	}
	return model.UpsertDocument{
		ID:               id,
		BaseVer:          in.BaseVer,
		EncryptedContent: blob(in.EncryptedContent),
		EncryptedKey:     blob(in.EncryptedKey),
		Metadata:         in.Metadata,
	}, nil
}

// FromAPIUpsertDocuments converts a batch.
func FromAPIUpsertDocuments(in []api.UpsertDocument) ([]model.UpsertDocument, error) {
	out := make([]model.UpsertDocument, 0, len(in))
	for i, d := range in {
		m, err := FromAPIUpsertDocument(d)
		if err != nil {
			return nil, fmt.Errorf("document[%d]: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// --- Versions / Changes (server -> client) ---

// ToAPIDocumentVersion converts a domain version result.
func ToAPIDocumentVersion(v model.DocumentVersion) api.DocumentVersion {
	return api.DocumentVersion{ID: v.ID.String(), NewVer: v.NewVer, UpdatedAt: v.UpdatedAt}
}

// ToAPIDocumentVersions converts a slice of version results.
func ToAPIDocumentVersions(vs []model.DocumentVersion) []api.DocumentVersion {
	out := make([]api.DocumentVersion, 0, len(vs))
	for _, v := range vs {
		out = append(out, ToAPIDocumentVersion(v))
	}
	return out
}

// ToAPIChanges converts domain changes for sync; tombstones carry no ciphertext.
func ToAPIChanges(cs []model.Change) []api.Change {
	out := make([]api.Change, 0, len(cs))
	for _, c := range cs {
		ch := api.Change{ID: c.ID.String(), Ver: c.Ver, Deleted: c.Deleted, UpdatedAt: c.UpdatedAt}
		if !c.Deleted {
			ch.EncryptedContent = []byte(c.EncryptedContent)
			ch.EncryptedKey = []byte(c.EncryptedKey)
		}
		out = append(out, ch)
	}
	return out
}

// ToAPIDocument converts a stored document.
func ToAPIDocument(d model.Document) api.Document {
	out := api.Document{
		ID:          d.ID.String(),
		WorkspaceID: d.WorkspaceID.String(),
		Metadata:    d.Metadata,
		Ver:         d.Ver,
		Deleted:     d.Deleted,
		UpdatedAt:   d.UpdatedAt,
	}
	if !d.Deleted {
		out.EncryptedContent = []byte(d.EncryptedContent)
		out.EncryptedKey = []byte(d.EncryptedKey)
	}
	return out
}

// --- shares ---

// ToAPIShare converts a token record; TTLSeconds is computed at now.
func ToAPIShare(t model.ShareToken, now time.Time) api.Share {
	return api.Share{
		Token:                t.Token,
		DocumentID:           t.DocumentID,
		EncryptedDocumentKey: []byte(t.EncryptedDocumentKey),
		Permissions:          api.Permissions(t.Permissions),
		CreatedAt:            t.CreatedAt,
		ExpiresAt:            t.ExpiresAt,
		TTLSeconds:           int64(t.TTL(now) / time.Second),
	}
}

// FromAPIPermissions converts optional wire permissions.
func FromAPIPermissions(p *api.Permissions) *model.Permissions {
	if p == nil {
		return nil
	}
	m := model.Permissions(*p)
	return &m
}
