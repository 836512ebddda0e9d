// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package trust

import "errors"

var (
	ErrUnknownRelay  = errors.New("trust: relay has no recorded score")
	ErrSourceUntrusted = errors.New("trust: reputation event source is blocked or carries no trust weight")
)
