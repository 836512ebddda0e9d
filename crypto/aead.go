// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/secretbox"
)

// Algorithm identifies one of the three symmetric AEADs a group key may
// use (spec §3 "Group key").
type Algorithm string

const (
	AlgoAES256GCM          Algorithm = "AES-256-GCM"
	AlgoChaCha20Poly1305   Algorithm = "ChaCha20-Poly1305"
	AlgoXSalsa20Poly1305   Algorithm = "XSalsa20-Poly1305"
)

// KeySize is the symmetric key length required by every supported
// algorithm (256 bits).
const KeySize = 32

// SealSymmetric encrypts plaintext under key using algo, returning
// nonce||ciphertext(||tag). The nonce length depends on algo.
func SealSymmetric(algo Algorithm, key, plaintext, additionalData []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	switch algo {
	case AlgoAES256GCM:
		return sealAESGCM(key, plaintext, additionalData)
	case AlgoChaCha20Poly1305:
		return sealChaCha20Poly1305(key, plaintext, additionalData)
	case AlgoXSalsa20Poly1305:
		return sealXSalsa20Poly1305(key, plaintext)
	default:
		return nil, ErrUnsupportedAlgo
	}
}

// OpenSymmetric reverses SealSymmetric.
func OpenSymmetric(algo Algorithm, key, sealed, additionalData []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	switch algo {
	case AlgoAES256GCM:
		return openAESGCM(key, sealed, additionalData)
	case AlgoChaCha20Poly1305:
		return openChaCha20Poly1305(key, sealed, additionalData)
	case AlgoXSalsa20Poly1305:
		return openXSalsa20Poly1305(key, sealed)
	default:
		return nil, ErrUnsupportedAlgo
	}
}

func sealAESGCM(key, plaintext, ad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, ad), nil
}

func openAESGCM(key, sealed, ad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	pt, err := gcm.Open(nil, nonce, ct, ad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

func sealChaCha20Poly1305(key, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, ad), nil
}

func openChaCha20Poly1305(key, sealed, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, ad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

// XSalsa20-Poly1305 (nacl/secretbox) has no additional-data slot; the spec
// doesn't require AAD binding for this algorithm choice so we don't
// simulate one.
func sealXSalsa20Poly1305(key, plaintext []byte) ([]byte, error) {
	var k [32]byte
	copy(k[:], key)
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &k)
	return sealed, nil
}

func openXSalsa20Poly1305(key, sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, ErrCiphertextTooShort
	}
	var k [32]byte
	copy(k[:], key)
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	pt, ok := secretbox.Open(nil, sealed[24:], &nonce, &k)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}
