// Package doccipher encrypts and decrypts document bodies with a per-document key.
//
// Content is opaque bytes; serialization of the structured document is the
// caller's concern. Errors never carry content or key material.
package doccipher

import (
	"fmt"

	"github.com/and161185/notevault/internal/crypto/clientcrypto"
	"github.com/and161185/notevault/internal/model"
)

// adPrefix namespaces the associated data so document blobs cannot be
// confused with wrapped keys sealed under the same key.
const adPrefix = "notevault/doc/v1:"

// EncryptDocument seals content under docKey.
func EncryptDocument(docKey clientcrypto.Key, content []byte) (model.EncryptedBlob, error) {
	blob, err := clientcrypto.Encrypt(docKey, content)
	if err != nil {
		return nil, fmt.Errorf("encrypt document: %w", err)
	}
	return blob, nil
}

// DecryptDocument opens a blob from EncryptDocument. Fails with errs.ErrDecryption
// on a wrong key or tampered blob.
func DecryptDocument(docKey clientcrypto.Key, blob model.EncryptedBlob) ([]byte, error) {
	pt, err := clientcrypto.Decrypt(docKey, blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt document: %w", err)
	}
	return pt, nil
}

// Cipher binds encryption to one document id, so a ciphertext copied onto a
// different document fails authentication.
type Cipher struct {
	ad []byte
}

// For returns a Cipher bound to docID.
func For(docID string) Cipher {
	return Cipher{ad: []byte(adPrefix + docID)}
}

// Encrypt seals content under docKey with the bound document id.
func (c Cipher) Encrypt(docKey clientcrypto.Key, content []byte) (model.EncryptedBlob, error) {
	blob, err := clientcrypto.EncryptWithAD(docKey, content, c.ad)
	if err != nil {
		return nil, fmt.Errorf("encrypt document: %w", err)
	}
	return blob, nil
}

// Decrypt opens a blob produced by Encrypt for the same document id.
func (c Cipher) Decrypt(docKey clientcrypto.Key, blob model.EncryptedBlob) ([]byte, error) {
	pt, err := clientcrypto.DecryptWithAD(docKey, blob, c.ad)
	if err != nil {
		return nil, fmt.Errorf("decrypt document: %w", err)
	}
	return pt, nil
}
