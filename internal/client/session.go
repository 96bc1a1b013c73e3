package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/notevault/internal/api"
	pkgcrypto "github.com/and161185/notevault/internal/crypto"
	"github.com/and161185/notevault/internal/crypto/clientcrypto"
	"github.com/and161185/notevault/internal/doccipher"
	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/keymanager"
	"github.com/and161185/notevault/internal/model"
	"github.com/and161185/notevault/internal/sharelink"
)

// Session is an unlocked workspace. It owns a key manager; Close drops all
// key material.
type Session struct {
	c         *Client
	workspace api.Workspace
	km        *keymanager.Manager
	log       *zap.Logger
}

// SessionOption configures Open and CreateWorkspace.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	local keymanager.WrappedKeyStore
	log   *zap.Logger
}

// WithLocalKeyCache keeps a copy of the wrapped master key in local, e.g. a
// keymanager.FileStore. The copy is still wrapped under the password KEK.
func WithLocalKeyCache(local keymanager.WrappedKeyStore) SessionOption {
	return func(c *sessionConfig) { c.local = local }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(c *sessionConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// CreateWorkspace registers a new workspace whose KDF salt is identifier and
// opens it, generating the master key.
func CreateWorkspace(ctx context.Context, c *Client, name, identifier, password string, opts ...SessionOption) (*Session, error) {
	if identifier == "" || password == "" {
		return nil, fmt.Errorf("%w: empty identifier or password", errs.ErrInvalidArgument)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	if _, err := c.CreateWorkspace(ctx, api.Workspace{ID: id.String(), Name: name, KDFSalt: identifier}); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return Open(ctx, c, id.String(), password, opts...)
}

// Open unlocks workspaceID with password. If the workspace has no master key
// yet, one is generated and stored wrapped.
func Open(ctx context.Context, c *Client, workspaceID, password string, opts ...SessionOption) (*Session, error) {
	cfg := sessionConfig{log: zap.NewNop()}
	for _, o := range opts {
		o(&cfg)
	}
	w, err := c.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	var store keymanager.WrappedKeyStore = NewRemoteKeyStore(c, workspaceID)
	if cfg.local != nil {
		store = TieredStore{Local: cfg.local, Remote: store}
	}
	salt := w.KDFSalt
	km := keymanager.New(store, func(context.Context) (clientcrypto.Key, error) {
		return pkgcrypto.DeriveKEK(password, salt)
	}, keymanager.WithLogger(cfg.log))
	if err := km.Initialize(ctx); err != nil {
		return nil, err
	}
	return &Session{c: c, workspace: w, km: km, log: cfg.log}, nil
}

// WorkspaceID returns the unlocked workspace id.
func (s *Session) WorkspaceID() string { return s.workspace.ID }

// Close forgets the master key and cached document keys.
func (s *Session) Close() { s.km.Reset() }

// Note is a decrypted document.
type Note struct {
	ID        string
	Ver       int64
	Content   []byte
	Metadata  []byte
	UpdatedAt time.Time
}

// Create encrypts content under a fresh document key and stores it.
func (s *Session) Create(ctx context.Context, content, metadata []byte) (api.DocumentVersion, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return api.DocumentVersion{}, err
	}
	docKey, err := clientcrypto.GenerateKey()
	if err != nil {
		return api.DocumentVersion{}, err
	}
	defer docKey.Wipe()
	wrapped, err := s.km.WrapDocumentKey(docKey)
	if err != nil {
		return api.DocumentVersion{}, err
	}
	ct, err := doccipher.For(id.String()).Encrypt(docKey, content)
	if err != nil {
		return api.DocumentVersion{}, err
	}
	res, err := s.c.UpsertDocuments(ctx, s.workspace.ID, []api.UpsertDocument{{
		ID: id.String(), EncryptedContent: ct, EncryptedKey: wrapped, Metadata: metadata,
	}})
	if err != nil {
		return api.DocumentVersion{}, err
	}
	s.km.CacheDocumentKey(id.String(), docKey)
	return single(res)
}

// Update re-encrypts content under the document's existing key.
func (s *Session) Update(ctx context.Context, id string, baseVer int64, content, metadata []byte) (api.DocumentVersion, error) {
	d, err := s.c.GetDocument(ctx, s.workspace.ID, id)
	if err != nil {
		return api.DocumentVersion{}, err
	}
	if d.Deleted {
		return api.DocumentVersion{}, errs.ErrNotFound
	}
	docKey, err := s.km.DocumentKey(id, model.EncryptedBlob(d.EncryptedKey))
	if err != nil {
		return api.DocumentVersion{}, err
	}
	defer docKey.Wipe()
	ct, err := doccipher.For(id).Encrypt(docKey, content)
	if err != nil {
		return api.DocumentVersion{}, err
	}
	if metadata == nil {
		metadata = d.Metadata
	}
	res, err := s.c.UpsertDocuments(ctx, s.workspace.ID, []api.UpsertDocument{{
		ID: id, BaseVer: baseVer, EncryptedContent: ct, EncryptedKey: d.EncryptedKey, Metadata: metadata,
	}})
	if err != nil {
		return api.DocumentVersion{}, err
	}
	return single(res)
}

// Get fetches and decrypts one document.
func (s *Session) Get(ctx context.Context, id string) (Note, error) {
	d, err := s.c.GetDocument(ctx, s.workspace.ID, id)
	if err != nil {
		return Note{}, err
	}
	if d.Deleted {
		return Note{}, errs.ErrNotFound
	}
	pt, err := s.decrypt(id, d.EncryptedKey, d.EncryptedContent)
	if err != nil {
		return Note{}, err
	}
	return Note{ID: id, Ver: d.Ver, Content: pt, Metadata: d.Metadata, UpdatedAt: d.UpdatedAt}, nil
}

// Delete tombstones a document and evicts its cached key.
func (s *Session) Delete(ctx context.Context, id string, baseVer int64) (api.DocumentVersion, error) {
	v, err := s.c.DeleteDocument(ctx, s.workspace.ID, id, baseVer)
	if err != nil {
		return api.DocumentVersion{}, err
	}
	s.km.ForgetDocumentKey(id)
	return v, nil
}

// SyncedNote is one entry of Sync. Content is nil for deletions.
type SyncedNote struct {
	ID      string
	Ver     int64
	Deleted bool
	Content []byte
}

// Sync returns decrypted changes after since, in version order, and the
// cursor to pass as since next time.
func (s *Session) Sync(ctx context.Context, since int64) ([]SyncedNote, int64, error) {
	cs, head, err := s.c.GetChanges(ctx, s.workspace.ID, since)
	if err != nil {
		return nil, 0, err
	}
	out := make([]SyncedNote, 0, len(cs))
	for _, c := range cs {
		n := SyncedNote{ID: c.ID, Ver: c.Ver, Deleted: c.Deleted}
		if c.Deleted {
			s.km.ForgetDocumentKey(c.ID)
		} else {
			pt, err := s.decrypt(c.ID, c.EncryptedKey, c.EncryptedContent)
			if err != nil {
				return nil, 0, fmt.Errorf("document %s: %w", c.ID, err)
			}
			n.Content = pt
		}
		out = append(out, n)
	}
	return out, head, nil
}

func (s *Session) decrypt(id string, wrappedKey, content []byte) ([]byte, error) {
	docKey, err := s.km.DocumentKey(id, model.EncryptedBlob(wrappedKey))
	if err != nil {
		return nil, err
	}
	defer docKey.Wipe()
	return doccipher.For(id).Decrypt(docKey, model.EncryptedBlob(content))
}

// ShareOptions tune Share.
type ShareOptions struct {
	// BaseURL prefixes the returned link.
	BaseURL string
	// Permissions defaults to view-only when nil.
	Permissions *api.Permissions
	// TTL of zero selects the server default.
	TTL time.Duration
	// Passphrase, when set, must also be supplied to open the link.
	Passphrase string
}

// Share seals the document key under a fresh link key and registers a token.
// The returned link carries the link key in its fragment.
func (s *Session) Share(ctx context.Context, id string, o ShareOptions) (string, api.Share, error) {
	d, err := s.c.GetDocument(ctx, s.workspace.ID, id)
	if err != nil {
		return "", api.Share{}, err
	}
	docKey, err := s.km.DocumentKey(id, model.EncryptedBlob(d.EncryptedKey))
	if err != nil {
		return "", api.Share{}, err
	}
	defer docKey.Wipe()
	sealed, err := sharelink.Seal(docKey, sharelink.SealOptions{Passphrase: o.Passphrase})
	if err != nil {
		return "", api.Share{}, err
	}
	sh, err := s.c.CreateShare(ctx, api.CreateShareRequest{
		WorkspaceID:          s.workspace.ID,
		DocumentID:           id,
		EncryptedDocumentKey: sealed.Envelope,
		Permissions:          o.Permissions,
		TTLSeconds:           int64(o.TTL / time.Second),
	})
	if err != nil {
		return "", api.Share{}, err
	}
	s.log.Debug("share created", zap.String("document", id), zap.Time("expiresAt", sh.ExpiresAt))
	return sharelink.FormatLink(o.BaseURL, sh.Token, sealed.LinkKey), sh, nil
}

// SharedNote is what a link holder can read.
type SharedNote struct {
	Share api.Share
	// Content is nil when the token does not grant view access.
	Content []byte
	Ver     int64
}

// OpenShare resolves a link without an account. passphrase is needed only for
// links created with one.
func OpenShare(ctx context.Context, c *Client, link, passphrase string) (SharedNote, error) {
	gs, docKey, err := resolveShare(ctx, c, link, passphrase)
	if err != nil {
		return SharedNote{}, err
	}
	defer docKey.Wipe()
	out := SharedNote{Share: gs.Share}
	if gs.Document == nil {
		return out, nil
	}
	pt, err := doccipher.For(gs.Share.DocumentID).Decrypt(docKey, model.EncryptedBlob(gs.Document.EncryptedContent))
	if err != nil {
		return SharedNote{}, err
	}
	out.Content, out.Ver = pt, gs.Document.Ver
	return out, nil
}

// EditShared replaces the content of a shared document through an
// edit-capable link.
func EditShared(ctx context.Context, c *Client, link, passphrase string, baseVer int64, content []byte) (api.DocumentVersion, error) {
	gs, docKey, err := resolveShare(ctx, c, link, passphrase)
	if err != nil {
		return api.DocumentVersion{}, err
	}
	defer docKey.Wipe()
	if !gs.Share.Permissions.CanEdit {
		return api.DocumentVersion{}, errs.ErrForbidden
	}
	ct, err := doccipher.For(gs.Share.DocumentID).Encrypt(docKey, content)
	if err != nil {
		return api.DocumentVersion{}, err
	}
	return c.UpdateSharedDocument(ctx, gs.Share.Token, baseVer, ct)
}

func resolveShare(ctx context.Context, c *Client, link, passphrase string) (*api.GetShareResponse, clientcrypto.Key, error) {
	token, linkKey, err := sharelink.ParseLink(link)
	if err != nil {
		return nil, clientcrypto.Key{}, err
	}
	gs, err := c.GetShare(ctx, token)
	if err != nil {
		return nil, clientcrypto.Key{}, err
	}
	docKey, err := sharelink.Open(model.EncryptedBlob(gs.Share.EncryptedDocumentKey), linkKey, passphrase)
	if err != nil {
		return nil, clientcrypto.Key{}, err
	}
	return gs, docKey, nil
}

func single(res []api.DocumentVersion) (api.DocumentVersion, error) {
	if len(res) != 1 {
		return api.DocumentVersion{}, errors.New("unexpected result count")
	}
	return res[0], nil
}
