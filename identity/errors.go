// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package identity

import "errors"

var (
	// ErrIdentityMismatch is returned by Register when hash16 does not
	// equal crypto.Hash16(publicKey) (spec §4.2).
	ErrIdentityMismatch = errors.New("identity: hash16 does not match SHA256(public_key)[0..16]")

	// ErrNotFound is returned by Touch/Get for an unregistered hash.
	ErrNotFound = errors.New("identity: hash16 not registered")
)
