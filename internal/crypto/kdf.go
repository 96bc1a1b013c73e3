// Package crypto implements password-based key derivation for client-side encryption.
package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/and161185/notevault/internal/crypto/clientcrypto"
	"github.com/and161185/notevault/internal/errs"
)

// PBKDF2 parameters. Changing either makes existing wrapped keys unreadable.
const (
	KDFIterations = 100_000
	KDFKeyLen     = clientcrypto.KeyLen
)

// DeriveKey stretches password with identifier as salt and returns the
// base64 (standard) encoding of the 256-bit result. Same inputs always yield
// the same output, so the key can be recreated on any device.
func DeriveKey(password, identifier string) (string, error) {
	raw, err := deriveRaw(password, identifier)
	if err != nil {
		return "", err
	}
	defer wipe(raw)
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DeriveKEK is DeriveKey returned as a usable key-encryption key.
func DeriveKEK(password, identifier string) (clientcrypto.Key, error) {
	raw, err := deriveRaw(password, identifier)
	if err != nil {
		return clientcrypto.Key{}, err
	}
	defer wipe(raw)
	return clientcrypto.ImportKey(raw)
}

// KeyFromDerived converts DeriveKey output back into a key.
func KeyFromDerived(encoded string) (clientcrypto.Key, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return clientcrypto.Key{}, fmt.Errorf("%w: not base64", errs.ErrKeyFormat)
	}
	defer wipe(raw)
	return clientcrypto.ImportKey(raw)
}

func deriveRaw(password, identifier string) ([]byte, error) {
	if password == "" || identifier == "" {
		return nil, fmt.Errorf("%w: empty password or identifier", errs.ErrInvalidArgument)
	}
	return pbkdf2.Key([]byte(password), []byte(identifier), KDFIterations, KDFKeyLen, sha256.New), nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
