package sharetoken

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
)

// Store persists share tokens with expiry. Every mutating method performs the
// ownership check and the mutation as one atomic step and reports
// errs.ErrNotFound (absent or expired at now) or errs.ErrForbidden
// (requester is not the creator).
type Store interface {
	// Put inserts a new token; errs.ErrAlreadyExists on id collision.
	Put(ctx context.Context, t model.ShareToken) error
	// Get returns a live token.
	Get(ctx context.Context, token string, now time.Time) (model.ShareToken, error)
	// Delete removes a live token owned by requester.
	Delete(ctx context.Context, token, requester string, now time.Time) error
	// Extend pushes expiry of a live token by d and returns the new expiry.
	Extend(ctx context.Context, token, requester string, d time.Duration, now time.Time) (time.Time, error)
	// SetPermissions replaces the permission set of a live token.
	SetPermissions(ctx context.Context, token, requester string, p model.Permissions, now time.Time) error
}

// Sweeper is implemented by stores that can purge expired tokens eagerly.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// MemoryStore is a process-local Store guarded by a single mutex.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]model.ShareToken
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Sweeper = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]model.ShareToken)}
}

// Put inserts t.
func (s *MemoryStore) Put(_ context.Context, t model.ShareToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.Token]; ok {
		return errs.ErrAlreadyExists
	}
	t.EncryptedDocumentKey = append(model.EncryptedBlob(nil), t.EncryptedDocumentKey...)
	s.tokens[t.Token] = t
	return nil
}

// Get returns a live token, dropping it lazily once expired.
func (s *MemoryStore) Get(_ context.Context, token string, now time.Time) (model.ShareToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.liveLocked(token, now)
	if err != nil {
		return model.ShareToken{}, err
	}
	t.EncryptedDocumentKey = append(model.EncryptedBlob(nil), t.EncryptedDocumentKey...)
	return t, nil
}

// Delete removes token if requester created it.
func (s *MemoryStore) Delete(_ context.Context, token, requester string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ownedLocked(token, requester, now); err != nil {
		return err
	}
	delete(s.tokens, token)
	return nil
}

// Extend adds d to the token expiry.
func (s *MemoryStore) Extend(_ context.Context, token, requester string, d time.Duration, now time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ownedLocked(token, requester, now)
	if err != nil {
		return time.Time{}, err
	}
	t.ExpiresAt = t.ExpiresAt.Add(d)
	s.tokens[token] = t
	return t.ExpiresAt, nil
}

// SetPermissions replaces the permission set.
func (s *MemoryStore) SetPermissions(_ context.Context, token, requester string, p model.Permissions, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ownedLocked(token, requester, now)
	if err != nil {
		return err
	}
	t.Permissions = p
	s.tokens[token] = t
	return nil
}

// Sweep deletes every token expired at now.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored tokens, live or not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *MemoryStore) liveLocked(token string, now time.Time) (model.ShareToken, error) {
	t, ok := s.tokens[token]
	if !ok {
		return model.ShareToken{}, errs.ErrNotFound
	}
	if t.Expired(now) {
		delete(s.tokens, token)
		return model.ShareToken{}, errs.ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ownedLocked(token, requester string, now time.Time) (model.ShareToken, error) {
	t, err := s.liveLocked(token, now)
	if err != nil {
		return model.ShareToken{}, err
	}
	if t.CreatedBy != requester {
		return model.ShareToken{}, errs.ErrForbidden
	}
	return t, nil
}
