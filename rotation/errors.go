// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package rotation

import "errors"

var (
	ErrSessionExists     = errors.New("rotation: a session is already in progress")
	ErrNoSuchSession      = errors.New("rotation: unknown rotation id")
	ErrWrongPhase         = errors.New("rotation: message arrived in the wrong phase")
	ErrSignatureInvalid   = errors.New("rotation: signature did not verify under the expected key")
	ErrTimedOut           = errors.New("rotation: rotation_timeout elapsed")
	ErrUnknownPeer        = errors.New("rotation: peer is not part of this rotation session")
)
