// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across crypto/repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist or has expired.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict indicates optimistic concurrency failure (base version mismatch).
	ErrVersionConflict = errors.New("version conflict")
	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller is authenticated but does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited indicates admission was refused by a rate limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidArgument indicates a validation failure on caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrServiceUnavailable indicates a backing store could not be reached in time.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrKeyFormat indicates malformed key bytes.
	ErrKeyFormat = errors.New("invalid key format")
	// ErrNotInitialized indicates the key manager was used before Initialize.
	ErrNotInitialized = errors.New("key manager not initialized")
	// ErrDecryption indicates authentication failure: wrong key, corrupted or tampered data.
	ErrDecryption = errors.New("decryption failed")
)
