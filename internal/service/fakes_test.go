package service

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
	"github.com/and161185/notevault/internal/repository"
)

type fakeWorkspaceRepo struct {
	mu  sync.Mutex
	ws  map[uuid.UUID]model.Workspace
	err error
}

var _ repository.WorkspaceRepository = (*fakeWorkspaceRepo)(nil)

func newFakeWorkspaceRepo() *fakeWorkspaceRepo {
	return &fakeWorkspaceRepo{ws: map[uuid.UUID]model.Workspace{}}
}

func (f *fakeWorkspaceRepo) Create(_ context.Context, w *model.Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.ws[w.ID]; ok {
		return errs.ErrAlreadyExists
	}
	f.ws[w.ID] = *w
	return nil
}

func (f *fakeWorkspaceRepo) Get(_ context.Context, id uuid.UUID) (*model.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	w, ok := f.ws[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &w, nil
}

func (f *fakeWorkspaceRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Workspace
	for _, w := range f.ws {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	return out, f.err
}

func (f *fakeWorkspaceRepo) SetWrappedMasterKeyIfEmpty(_ context.Context, id uuid.UUID, wrapped model.EncryptedBlob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.ws[id]
	if !ok {
		return errs.ErrNotFound
	}
	if len(w.WrappedMasterKey) != 0 {
		return errs.ErrVersionConflict
	}
	w.WrappedMasterKey = wrapped
	f.ws[id] = w
	return nil
}

// fakeDocRepo keeps documents in memory with a per-workspace version counter.
type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]model.Document
	vers map[uuid.UUID]int64

	upsertCalls int
	lastWS      uuid.UUID
	err         error
}

var _ repository.DocumentRepository = (*fakeDocRepo)(nil)

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: map[uuid.UUID]model.Document{}, vers: map[uuid.UUID]int64{}}
}

func (f *fakeDocRepo) UpsertBatch(_ context.Context, ws uuid.UUID, ups []model.UpsertDocument) ([]model.DocumentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	f.lastWS = ws
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.DocumentVersion, 0, len(ups))
	for _, up := range ups {
		cur, ok := f.docs[up.ID]
		if ok && (cur.WorkspaceID != ws || cur.Ver != up.BaseVer) || !ok && up.BaseVer != 0 {
			return nil, errs.ErrVersionConflict
		}
		f.vers[ws]++
		f.docs[up.ID] = model.Document{
			ID: up.ID, WorkspaceID: ws, EncryptedContent: up.EncryptedContent,
			EncryptedKey: up.EncryptedKey, Metadata: up.Metadata, Ver: f.vers[ws],
		}
		out = append(out, model.DocumentVersion{ID: up.ID, NewVer: f.vers[ws]})
	}
	return out, nil
}

func (f *fakeDocRepo) Delete(_ context.Context, ws, id uuid.UUID, baseVer int64) (model.DocumentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.WorkspaceID != ws {
		return model.DocumentVersion{}, errs.ErrNotFound
	}
	if d.Ver != baseVer {
		return model.DocumentVersion{}, errs.ErrVersionConflict
	}
	f.vers[ws]++
	d.Deleted, d.Ver = true, f.vers[ws]
	d.EncryptedContent, d.EncryptedKey = nil, nil
	f.docs[id] = d
	return model.DocumentVersion{ID: id, NewVer: d.Ver}, nil
}

func (f *fakeDocRepo) GetChangesSince(_ context.Context, ws uuid.UUID, since int64) ([]model.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Change
	for _, d := range f.docs {
		if d.WorkspaceID == ws && d.Ver > since {
			out = append(out, model.Change{ID: d.ID, Ver: d.Ver, Deleted: d.Deleted,
				EncryptedContent: d.EncryptedContent, EncryptedKey: d.EncryptedKey})
		}
	}
	return out, f.err
}

func (f *fakeDocRepo) Get(_ context.Context, ws, id uuid.UUID) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.WorkspaceID != ws {
		return nil, errs.ErrNotFound
	}
	return &d, nil
}

func (f *fakeDocRepo) Lookup(_ context.Context, id uuid.UUID) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &d, nil
}

func (f *fakeDocRepo) GetMaxVersion(_ context.Context, ws uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vers[ws], nil
}
