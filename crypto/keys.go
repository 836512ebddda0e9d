// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crypto implements the hash-identity and cryptographic layer
// (spec §2 row 1, §4 "crypto primitives"): long-term keypair generation,
// hybrid public-key encryption, Ed25519 signing, symmetric AEAD for group
// and relay-session traffic, and the KDFs used to derive session/group
// keys and to wrap a private key at rest.
//
// Every identity in this module carries two keypairs: a long-term Ed25519
// signing pair (its hash16 per spec §3 is SHA256 of this public key) and a
// short-lived or long-term X25519 box pair used only for confidentiality.
// Splitting signing from encryption avoids the key-reuse pitfalls of using
// one Curve25519 pair for both, and matches the dual-key shape the original
// Python implementation approximates with separate RSA and NaCl keypairs.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/nacl/box"
)

// SigningKeyPair is a long-term Ed25519 identity keypair.
type SigningKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateSigningKeyPair creates a fresh Ed25519 keypair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &SigningKeyPair{Public: pub, Private: priv}, nil
}

// Hash16 computes the spec §3 identity hash: the first 16 bytes of
// SHA-256(public_key).
func Hash16(publicKey []byte) [16]byte {
	sum := sha256.Sum256(publicKey)
	var h [16]byte
	copy(h[:], sum[:16])
	return h
}

// BoxKeyPair is an X25519 keypair used for hybrid public-key encryption.
type BoxKeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateBoxKeyPair creates a fresh X25519 keypair.
func GenerateBoxKeyPair() (*BoxKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &BoxKeyPair{Public: pub, Private: priv}, nil
}

// KeyPair bundles the signing and box keypairs a relay/user/group owns.
type KeyPair struct {
	Signing *SigningKeyPair
	Box     *BoxKeyPair
}

// GenerateKeyPair creates a fresh signing+box keypair and its hash16.
func GenerateKeyPair() (*KeyPair, [16]byte, error) {
	signing, err := GenerateSigningKeyPair()
	if err != nil {
		return nil, [16]byte{}, err
	}
	boxKeys, err := GenerateBoxKeyPair()
	if err != nil {
		return nil, [16]byte{}, err
	}
	return &KeyPair{Signing: signing, Box: boxKeys}, Hash16(signing.Public), nil
}
