// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// NewSymmetricKey returns a fresh random 256-bit key, used when a group
// owner (spec §4.9) mints a new group key.
func NewSymmetricKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveKey runs HKDF-SHA256 over secret with salt/info, producing size
// bytes. Used to turn a session's shared X25519 secret (or a rotation
// session's material) into a symmetric session key.
func DeriveKey(secret, salt, info []byte, size int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, size)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Argon2idParams controls the cost of wrapping a private key at rest
// (spec §6 "Identity file": private key wrapped with an Argon2id-derived
// KEK). The defaults are time=3, memory=64 MiB, parallelism=4; wrapping
// happens once per login, not per message, so this cost is paid rarely.
type Argon2idParams struct {
	Time    uint32
	MemoryKiB uint32
	Threads uint8
}

// DefaultArgon2idParams returns the parameters used unless a caller's
// config overrides them.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}
}

// DeriveKEK derives a 256-bit key-encryption-key from a passphrase and
// salt using Argon2id.
func DeriveKEK(passphrase string, salt []byte, params Argon2idParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, params.Time, params.MemoryKiB, params.Threads, KeySize)
}

// WrapPrivateKey encrypts privateKey under a KEK derived from passphrase,
// returning salt||AES-256-GCM(kek, privateKey) for on-disk persistence.
func WrapPrivateKey(privateKey []byte, passphrase string, params Argon2idParams) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	kek := DeriveKEK(passphrase, salt, params)
	sealed, err := sealAESGCM(kek, privateKey, nil)
	if err != nil {
		return nil, err
	}
	return append(salt, sealed...), nil
}

// UnwrapPrivateKey reverses WrapPrivateKey.
func UnwrapPrivateKey(wrapped []byte, passphrase string, params Argon2idParams) ([]byte, error) {
	if len(wrapped) < 16 {
		return nil, ErrWrappedKeyCorrupt
	}
	salt, sealed := wrapped[:16], wrapped[16:]
	kek := DeriveKEK(passphrase, salt, params)
	pt, err := openAESGCM(kek, sealed, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return pt, nil
}
