// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package verify

import "errors"

var (
	ErrUnknownFamily = errors.New("verify: unknown test family")
	ErrUnknownProbe  = errors.New("verify: echo does not match any outstanding probe")
)
