// Package memory provides process-local repositories for development runs
// and tests. Data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
	"github.com/and161185/notevault/internal/repository"
)

var (
	_ repository.WorkspaceRepository = (*Workspaces)(nil)
	_ repository.DocumentRepository  = (*Documents)(nil)
)

// Workspaces implements repository.WorkspaceRepository.
type Workspaces struct {
	mu  sync.RWMutex
	ws  map[uuid.UUID]model.Workspace
	now func() time.Time
}

// NewWorkspaces constructs an empty workspace repository.
func NewWorkspaces() *Workspaces {
	return &Workspaces{ws: make(map[uuid.UUID]model.Workspace), now: time.Now}
}

func (r *Workspaces) Create(_ context.Context, w *model.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ws[w.ID]; ok {
		return errs.ErrAlreadyExists
	}
	w.CreatedAt = r.now().UTC()
	cp := *w
	cp.WrappedMasterKey = clone(w.WrappedMasterKey)
	r.ws[w.ID] = cp
	return nil
}

func (r *Workspaces) Get(_ context.Context, id uuid.UUID) (*model.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.ws[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	w.WrappedMasterKey = clone(w.WrappedMasterKey)
	return &w, nil
}

func (r *Workspaces) ListByOwner(_ context.Context, ownerID string) ([]model.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Workspace, 0)
	for _, w := range r.ws {
		if w.OwnerID == ownerID {
			w.WrappedMasterKey = clone(w.WrappedMasterKey)
			out = append(out, w)
		}
	}
	// newest first, same as the SQL backend
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Workspaces) SetWrappedMasterKeyIfEmpty(_ context.Context, id uuid.UUID, wrapped model.EncryptedBlob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.ws[id]
	if !ok {
		return errs.ErrNotFound
	}
	if len(w.WrappedMasterKey) != 0 {
		return errs.ErrVersionConflict
	}
	w.WrappedMasterKey = clone(wrapped)
	r.ws[id] = w
	return nil
}

// Documents implements repository.DocumentRepository with a per-workspace
// version counter, so versions within a workspace are unique and increasing.
type Documents struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]model.Document
	vers map[uuid.UUID]int64
	now  func() time.Time
}

// NewDocuments constructs an empty document repository.
func NewDocuments() *Documents {
	return &Documents{
		docs: make(map[uuid.UUID]model.Document),
		vers: make(map[uuid.UUID]int64),
		now:  time.Now,
	}
}

// UpsertBatch applies all changes or none.
func (r *Documents) UpsertBatch(_ context.Context, ws uuid.UUID, ups []model.UpsertDocument) ([]model.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(ups))
	for _, up := range ups {
		if _, dup := seen[up.ID]; dup {
			return nil, errs.ErrVersionConflict
		}
		seen[up.ID] = struct{}{}
		cur, ok := r.docs[up.ID]
		switch {
		case !ok && up.BaseVer != 0:
			return nil, errs.ErrVersionConflict
		case ok && cur.WorkspaceID != ws:
			return nil, errs.ErrAlreadyExists
		case ok && cur.Ver != up.BaseVer:
			return nil, errs.ErrVersionConflict
		}
	}

	now := r.now().UTC()
	out := make([]model.DocumentVersion, 0, len(ups))
	for _, up := range ups {
		r.vers[ws]++
		v := r.vers[ws]
		r.docs[up.ID] = model.Document{
			ID:               up.ID,
			WorkspaceID:      ws,
			EncryptedContent: clone(up.EncryptedContent),
			EncryptedKey:     clone(up.EncryptedKey),
			Metadata:         append([]byte(nil), up.Metadata...),
			Ver:              v,
			UpdatedAt:        now,
		}
		out = append(out, model.DocumentVersion{ID: up.ID, NewVer: v, UpdatedAt: now})
	}
	return out, nil
}

// Delete tombstones a document and drops its ciphertext.
func (r *Documents) Delete(_ context.Context, ws, id uuid.UUID, baseVer int64) (model.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.WorkspaceID != ws {
		return model.DocumentVersion{}, errs.ErrNotFound
	}
	if d.Ver != baseVer {
		return model.DocumentVersion{}, errs.ErrVersionConflict
	}
	r.vers[ws]++
	d.Ver = r.vers[ws]
	d.Deleted = true
	d.EncryptedContent, d.EncryptedKey = nil, nil
	d.UpdatedAt = r.now().UTC()
	r.docs[id] = d
	return model.DocumentVersion{ID: id, NewVer: d.Ver, UpdatedAt: d.UpdatedAt}, nil
}

// GetChangesSince returns changes ordered by version.
func (r *Documents) GetChangesSince(_ context.Context, ws uuid.UUID, since int64) ([]model.Change, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Change, 0)
	for _, d := range r.docs {
		if d.WorkspaceID != ws || d.Ver <= since {
			continue
		}
		c := model.Change{ID: d.ID, Ver: d.Ver, Deleted: d.Deleted, UpdatedAt: d.UpdatedAt}
		if !d.Deleted {
			c.EncryptedContent = clone(d.EncryptedContent)
			c.EncryptedKey = clone(d.EncryptedKey)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ver < out[j].Ver })
	return out, nil
}

func (r *Documents) Get(ctx context.Context, ws, id uuid.UUID) (*model.Document, error) {
	d, err := r.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.WorkspaceID != ws {
		return nil, errs.ErrNotFound
	}
	return d, nil
}

func (r *Documents) Lookup(_ context.Context, id uuid.UUID) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	d.EncryptedContent = clone(d.EncryptedContent)
	d.EncryptedKey = clone(d.EncryptedKey)
	d.Metadata = append([]byte(nil), d.Metadata...)
	return &d, nil
}

func (r *Documents) GetMaxVersion(_ context.Context, ws uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vers[ws], nil
}

func clone(b model.EncryptedBlob) model.EncryptedBlob {
	if b == nil {
		return nil
	}
	return append(model.EncryptedBlob(nil), b...)
}
