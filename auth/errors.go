// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import "errors"

var (
	ErrNoSuchSession        = errors.New("auth: no such session")
	ErrSessionNotActive     = errors.New("auth: session is not pending or challenged")
	ErrMaxChallengesReached = errors.New("auth: session already has the maximum number of challenges")
	ErrUnknownChallengeKind = errors.New("auth: unknown challenge kind")
	ErrChallengeNotFound    = errors.New("auth: challenge id not found or already answered")
	ErrChallengeExpired     = errors.New("auth: challenge response arrived after its timeout")
	ErrVerificationFailed   = errors.New("auth: challenge response did not verify")
)
