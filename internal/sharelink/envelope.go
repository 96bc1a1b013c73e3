// Package sharelink re-wraps a document key for sharing.
//
// The document key is sealed under a key derived from a random link key. The
// link key travels only in the URL fragment, so the server stores an envelope
// it cannot open. An optional passphrase adds an age scrypt layer on top.
package sharelink

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"golang.org/x/crypto/hkdf"

	"github.com/and161185/notevault/internal/crypto/clientcrypto"
	"github.com/and161185/notevault/internal/errs"
	"github.com/and161185/notevault/internal/model"
)

// LinkKeyLen is the size of the random link key.
const LinkKeyLen = 32

const (
	hkdfInfo = "notevault/share/v1:enc"

	kindPlain      byte = 0x01
	kindPassphrase byte = 0x02

	// DefaultWorkFactor is the age scrypt log2(N) used for passphrase envelopes.
	DefaultWorkFactor = 18
)

// SealOptions tune Seal.
type SealOptions struct {
	// Passphrase, when set, is required in addition to the link key.
	Passphrase string
	// WorkFactor overrides DefaultWorkFactor for the passphrase layer.
	WorkFactor int
}

// Sealed is the output of Seal. Envelope goes to the server; LinkKey goes
// only into the link fragment.
type Sealed struct {
	Envelope model.EncryptedBlob
	LinkKey  []byte
}

// Seal exports docKey and encrypts it under a fresh link key.
func Seal(docKey clientcrypto.Key, opts SealOptions) (Sealed, error) {
	linkKey, err := clientcrypto.Rand(LinkKeyLen)
	if err != nil {
		return Sealed{}, fmt.Errorf("link key: %w", err)
	}
	encKey, err := deriveEncKey(linkKey)
	if err != nil {
		return Sealed{}, err
	}
	defer encKey.Wipe()

	inner, err := clientcrypto.WrapKey(encKey, docKey)
	if err != nil {
		return Sealed{}, err
	}
	if opts.Passphrase == "" {
		return Sealed{Envelope: append(model.EncryptedBlob{kindPlain}, inner...), LinkKey: linkKey}, nil
	}

	r, err := age.NewScryptRecipient(opts.Passphrase)
	if err != nil {
		return Sealed{}, fmt.Errorf("scrypt recipient: %w", err)
	}
	wf := opts.WorkFactor
	if wf <= 0 {
		wf = DefaultWorkFactor
	}
	r.SetWorkFactor(wf)

	var buf bytes.Buffer
	buf.WriteByte(kindPassphrase)
	w, err := age.Encrypt(&buf, r)
	if err != nil {
		return Sealed{}, fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := w.Write(inner); err != nil {
		return Sealed{}, fmt.Errorf("age write: %w", err)
	}
	if err := w.Close(); err != nil {
		return Sealed{}, fmt.Errorf("age close: %w", err)
	}
	return Sealed{Envelope: model.EncryptedBlob(buf.Bytes()), LinkKey: linkKey}, nil
}

// NeedsPassphrase reports whether envelope was sealed with a passphrase.
func NeedsPassphrase(envelope model.EncryptedBlob) bool {
	return len(envelope) > 0 && envelope[0] == kindPassphrase
}

// Open recovers the document key. Wrong link key or passphrase and any
// tampering fail with errs.ErrDecryption.
func Open(envelope model.EncryptedBlob, linkKey []byte, passphrase string) (clientcrypto.Key, error) {
	if len(linkKey) != LinkKeyLen {
		return clientcrypto.Key{}, fmt.Errorf("%w: link key must be %d bytes", errs.ErrKeyFormat, LinkKeyLen)
	}
	if len(envelope) == 0 {
		return clientcrypto.Key{}, fmt.Errorf("%w: empty envelope", errs.ErrDecryption)
	}

	var inner model.EncryptedBlob
	switch envelope[0] {
	case kindPlain:
		inner = envelope[1:]
	case kindPassphrase:
		if passphrase == "" {
			return clientcrypto.Key{}, fmt.Errorf("%w: passphrase required", errs.ErrInvalidArgument)
		}
		id, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return clientcrypto.Key{}, fmt.Errorf("scrypt identity: %w", err)
		}
		rd, err := age.Decrypt(bytes.NewReader(envelope[1:]), id)
		if err != nil {
			return clientcrypto.Key{}, errs.ErrDecryption
		}
		b, err := io.ReadAll(rd)
		if err != nil {
			return clientcrypto.Key{}, errs.ErrDecryption
		}
		inner = b
	default:
		return clientcrypto.Key{}, fmt.Errorf("%w: unknown envelope kind", errs.ErrDecryption)
	}

	encKey, err := deriveEncKey(linkKey)
	if err != nil {
		return clientcrypto.Key{}, err
	}
	defer encKey.Wipe()
	k, err := clientcrypto.UnwrapKey(encKey, inner)
	if errors.Is(err, errs.ErrKeyFormat) {
		return clientcrypto.Key{}, errs.ErrDecryption
	}
	return k, err
}

func deriveEncKey(linkKey []byte) (clientcrypto.Key, error) {
	r := hkdf.New(sha256.New, linkKey, nil, []byte(hkdfInfo))
	var k clientcrypto.Key
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return clientcrypto.Key{}, fmt.Errorf("hkdf: %w", err)
	}
	return k, nil
}
