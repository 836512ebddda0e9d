// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

import "errors"

var (
	ErrRateLimited       = errors.New("discovery: source has exceeded its announcement rate limit")
	ErrDenylisted        = errors.New("discovery: relay id is denylisted")
	ErrBadSignature      = errors.New("discovery: announcement signature does not verify")
	ErrUnknownCandidate  = errors.New("discovery: no such pending candidate")
)
