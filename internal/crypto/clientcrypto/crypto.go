// Package clientcrypto contains client-side primitives for key handling and AEAD.
//
// All functions are stateless and safe for concurrent use. Blobs are laid out
// as nonce || ciphertext || tag using XChaCha20-Poly1305 with a fresh random
// 24-byte nonce per call.
package clientcrypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
)

// KeyLen is the size of every symmetric key handled by this package.
const KeyLen = chacha20poly1305.KeySize

// Key is a 256-bit symmetric key.
type Key [KeyLen]byte

// String hides key bytes from fmt and loggers.
func (Key) String() string { return "clientcrypto.Key(redacted)" }

// GoString hides key bytes from %#v.
func (Key) GoString() string { return "clientcrypto.Key(redacted)" }

// Equal compares keys in constant time.
func (k Key) Equal(other Key) bool { return subtle.ConstantTimeCompare(k[:], other[:]) == 1 }

// Wipe zeroes the key in place.
func (k *Key) Wipe() {
	for i := range k {
		k[i] = 0
	}
}

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// GenerateKey returns a fresh random key.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("generate key: %w", err)
	}
	return k, nil
}

// ExportKey returns a copy of the raw key bytes.
func ExportKey(k Key) []byte {
	out := make([]byte, KeyLen)
	copy(out, k[:])
	return out
}

// ImportKey is the inverse of ExportKey.
func ImportKey(raw []byte) (Key, error) {
	var k Key
	if len(raw) != KeyLen {
		return k, fmt.Errorf("%w: want %d bytes, got %d", errs.ErrKeyFormat, KeyLen, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// Encrypt seals plaintext under key with a random nonce.
func Encrypt(key Key, plaintext []byte) (model.EncryptedBlob, error) {
	return EncryptWithAD(key, plaintext, nil)
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(key Key, blob model.EncryptedBlob) ([]byte, error) {
	return DecryptWithAD(key, blob, nil)
}

// EncryptWithAD seals plaintext and binds ad into the authentication tag.
func EncryptWithAD(key Key, plaintext, ad []byte) (model.EncryptedBlob, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, ad)
	return model.EncryptedBlob(out), nil
}

// DecryptWithAD opens a blob produced by EncryptWithAD with the same ad.
// Any failure is reported as errs.ErrDecryption and no plaintext is returned.
func DecryptWithAD(key Key, blob model.EncryptedBlob, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	if len(blob) < chacha20poly1305.NonceSizeX+aead.Overhead() {
		return nil, fmt.Errorf("%w: blob too short", errs.ErrDecryption)
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, ad)
	if err != nil {
		return nil, errs.ErrDecryption
	}
	return pt, nil
}

// WrapKey encrypts inner under kek.
func WrapKey(kek, inner Key) (model.EncryptedBlob, error) {
	return Encrypt(kek, inner[:])
}

// UnwrapKey decrypts a wrapped key. A payload of the wrong size is a format error.
func UnwrapKey(kek Key, wrapped model.EncryptedBlob) (Key, error) {
	raw, err := Decrypt(kek, wrapped)
	if err != nil {
		return Key{}, err
	}
	k, err := ImportKey(raw)
	for i := range raw {
		raw[i] = 0
	}
	return k, err
}
