// Package sharetoken issues and manages ephemeral, TTL-bound share tokens.
//
// The service only ever handles envelopes that the client sealed before
// submission; it has no access to document keys or content.
package sharetoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/limiter"
	"github.com/and161185/notevault/internal/model"
)

// Defaults for token lifetime and store access.
const (
	DefaultTTL          = 24 * time.Hour
	DefaultMaxTTL       = 30 * 24 * time.Hour
	DefaultStoreTimeout = 2 * time.Second

	maxPutAttempts = 3
)

// CreateRequest carries the inputs of Create.
type CreateRequest struct {
	DocumentID           string
	EncryptedDocumentKey model.EncryptedBlob
	// Permissions defaults to model.DefaultPermissions when nil.
	Permissions *model.Permissions
	CreatorID   string
	// TTL defaults to the service default when zero.
	TTL time.Duration
	// RemoteAddr is the originating network address used for throttling.
	RemoteAddr string
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithDefaultTTL sets the TTL used when a request does not specify one.
func WithDefaultTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultTTL = d
		}
	}
}

// WithMaxTTL caps requested TTLs and extensions.
func WithMaxTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxTTL = d
		}
	}
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// Service implements the token lifecycle on top of a Store.
type Service struct {
	store      Store
	lim        limiter.Limiter
	now        func() time.Time
	defaultTTL time.Duration
	maxTTL     time.Duration
	timeout    time.Duration
	log        *zap.Logger
}

// NewService constructs a Service. lim may be nil to disable throttling.
func NewService(store Store, lim limiter.Limiter, opts ...Option) *Service {
	s := &Service{
		store:      store,
		lim:        lim,
		now:        time.Now,
		defaultTTL: DefaultTTL,
		maxTTL:     DefaultMaxTTL,
		timeout:    DefaultStoreTimeout,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create admits the request through the limiter and stores a new token.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.ShareToken, error) {
	if req.DocumentID == "" || req.CreatorID == "" {
		return model.ShareToken{}, fmt.Errorf("%w: empty documentId/creatorId", errs.ErrInvalidArgument)
	}
	if len(req.EncryptedDocumentKey) == 0 {
		return model.ShareToken{}, fmt.Errorf("%w: empty encryptedDocumentKey", errs.ErrInvalidArgument)
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if ttl < 0 || ttl > s.maxTTL {
		return model.ShareToken{}, fmt.Errorf("%w: ttl out of range", errs.ErrInvalidArgument)
	}
	perms := model.DefaultPermissions()
	if req.Permissions != nil {
		perms = *req.Permissions
	}

	if s.lim != nil {
		lctx, cancel := context.WithTimeout(ctx, s.timeout)
		ok, retry, err := s.lim.Allow(lctx, limiter.HashIP(req.RemoteAddr))
		cancel()
		if err != nil {
			s.log.Warn("limiter unavailable", zap.Error(err))
			return model.ShareToken{}, fmt.Errorf("%w: limiter: %v", errs.ErrServiceUnavailable, err)
		}
		if !ok {
			return model.ShareToken{}, fmt.Errorf("%w: retry after %s", errs.ErrRateLimited, retry.Round(time.Second))
		}
	}

	now := s.now()
	for attempt := 1; ; attempt++ {
		id, err := uuid.NewV4()
		if err != nil {
			return model.ShareToken{}, err
		}
		t := model.ShareToken{
			Token:                id.String(),
			DocumentID:           req.DocumentID,
			EncryptedDocumentKey: req.EncryptedDocumentKey,
			Permissions:          perms,
			CreatedBy:            req.CreatorID,
			CreatedAt:            now,
			ExpiresAt:            now.Add(ttl),
		}
		err = s.call(ctx, func(ctx context.Context) error { return s.store.Put(ctx, t) })
		if errors.Is(err, errs.ErrAlreadyExists) && attempt < maxPutAttempts {
			continue
		}
		if err != nil {
			return model.ShareToken{}, err
		}
		s.log.Info("share token created",
			zap.String("document", t.DocumentID),
			zap.Duration("ttl", ttl),
			zap.Bool("canEdit", perms.CanEdit),
		)
		return t, nil
	}
}

// Get returns the token record. Never-existing and expired tokens are both
// reported as errs.ErrNotFound.
func (s *Service) Get(ctx context.Context, token string) (model.ShareToken, error) {
	if token == "" {
		return model.ShareToken{}, errs.ErrNotFound
	}
	var t model.ShareToken
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.store.Get(ctx, token, s.now())
		return err
	})
	return t, err
}

// Revoke deletes the token if requesterID created it.
func (s *Service) Revoke(ctx context.Context, token, requesterID string) error {
	if err := validOwnerCall(token, requesterID); err != nil {
		return err
	}
	err := s.call(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, token, requesterID, s.now())
	})
	if err == nil {
		s.log.Info("share token revoked")
	}
	return err
}

// ExtendTTL adds additional to the remaining lifetime and returns the new expiry.
func (s *Service) ExtendTTL(ctx context.Context, token, requesterID string, additional time.Duration) (time.Time, error) {
	if err := validOwnerCall(token, requesterID); err != nil {
		return time.Time{}, err
	}
	if additional <= 0 || additional > s.maxTTL {
		return time.Time{}, fmt.Errorf("%w: extension out of range", errs.ErrInvalidArgument)
	}
	var exp time.Time
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		exp, err = s.store.Extend(ctx, token, requesterID, additional, s.now())
		return err
	})
	return exp, err
}

// UpdatePermissions replaces the permission set.
func (s *Service) UpdatePermissions(ctx context.Context, token, requesterID string, p model.Permissions) error {
	if err := validOwnerCall(token, requesterID); err != nil {
		return err
	}
	return s.call(ctx, func(ctx context.Context) error {
		return s.store.SetPermissions(ctx, token, requesterID, p, s.now())
	})
}

// Sweep purges expired tokens when the store supports it.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	sw, ok := s.store.(Sweeper)
	if !ok {
		return 0, nil
	}
	var n int64
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		n, err = sw.Sweep(ctx, s.now())
		return err
	})
	return n, err
}

func validOwnerCall(token, requesterID string) error {
	if token == "" {
		return errs.ErrNotFound
	}
	if requesterID == "" {
		return errs.ErrUnauthorized
	}
	return nil
}

// call runs fn under the store timeout and separates infrastructure failures
// from domain outcomes.
func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrNotFound),
		errors.Is(err, errs.ErrForbidden),
		errors.Is(err, errs.ErrAlreadyExists):
		return err
	default:
		s.log.Warn("share token store failure", zap.Error(err))
		return fmt.Errorf("%w: %v", errs.ErrServiceUnavailable, err)
	}
}
