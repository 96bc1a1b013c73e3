// Package limiter defines admission control for share token creation.
package limiter

import (
	"context"
	"crypto/sha256"
	"net"
	"time"
)

// Default policy: at most DefaultLimit admissions per DefaultWindow per key.
const (
	DefaultWindow = 60 * time.Second
	DefaultLimit  = 10
)

// Limiter is a fixed-window admission counter.
type Limiter interface {
	// Allow records one attempt for key and reports whether it is admitted.
	// When refused, the duration is the time until the window resets.
	Allow(ctx context.Context, key []byte) (bool, time.Duration, error)
}

// Pruner is implemented by limiters that can drop expired windows.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// HashIP returns a stable hash for a network address so raw addresses are
// never stored. The port is dropped when present.
func HashIP(addr string) []byte {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	h := sha256.Sum256([]byte(host))
	return h[:]
}
