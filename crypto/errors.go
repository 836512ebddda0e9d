// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import "errors"

// Sentinel errors for the crypto primitives. Every error here is a Crypto
// kind error per the relay core's taxonomy (spec §7): callers bump the
// sender's reputation and drop the message rather than propagating these.
var (
	ErrInvalidKeySize      = errors.New("crypto: invalid key size")
	ErrInvalidSignature    = errors.New("crypto: signature verification failed")
	ErrDecryptionFailed    = errors.New("crypto: decryption failed")
	ErrUnsupportedAlgo     = errors.New("crypto: unsupported algorithm")
	ErrCiphertextTooShort  = errors.New("crypto: ciphertext shorter than required header")
	ErrWrappedKeyCorrupt   = errors.New("crypto: wrapped key is malformed")
	ErrBadPassphrase       = errors.New("crypto: passphrase does not unlock the key vault")
)
