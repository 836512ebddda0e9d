// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/ed25519"
)

// Sign produces an Ed25519 signature over msg.
//
// The original Python implementation's relay/ring code falls back to
// HMAC-SHA-256 keyed by the sender's own hash when a real signature isn't
// available (spec §9 "open questions"); that is not a signature at all
// since anyone who knows the public sender hash can forge it. This
// implementation has no such fallback: every signing path in this module
// goes through Sign, and every verification path through Verify.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg under
// pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
