// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/box"
)

// Encrypt performs anonymous-sender hybrid public-key encryption: a fresh
// ephemeral X25519 keypair is generated, NaCl box-sealed to recipientPub,
// and the ephemeral public key is prefixed so the recipient can open it
// without needing the sender's box key. This is the "hybrid encrypt"
// primitive referenced by spec §2 row 1 and used for one-to-one messages
// and for wrapping group keys per recipient (spec §4.9b).
func Encrypt(recipientPub *[32]byte, plaintext []byte) ([]byte, error) {
	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 32+24+len(plaintext)+box.Overhead)
	out = append(out, ephPub[:]...)
	out = append(out, nonce[:]...)
	out = box.Seal(out, plaintext, &nonce, recipientPub, ephPriv)
	return out, nil
}

// Decrypt opens a message produced by Encrypt using the recipient's box
// private key.
func Decrypt(recipientPriv *[32]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 32+24 {
		return nil, ErrCiphertextTooShort
	}
	var ephPub [32]byte
	copy(ephPub[:], ciphertext[:32])
	var nonce [24]byte
	copy(nonce[:], ciphertext[32:56])
	sealed := ciphertext[56:]

	plaintext, ok := box.Open(nil, sealed, &nonce, &ephPub, recipientPriv)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptTo is a convenience wrapper taking a hex/raw recipient public key
// byte slice rather than a fixed array, for call sites working off wire
// types (see wire.HexBytes).
func EncryptTo(recipientPub []byte, plaintext []byte) ([]byte, error) {
	if len(recipientPub) != 32 {
		return nil, ErrInvalidKeySize
	}
	var pub [32]byte
	copy(pub[:], recipientPub)
	return Encrypt(&pub, plaintext)
}
