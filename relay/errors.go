// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import "errors"

var (
	ErrUnsupportedType  = errors.New("relay: envelope type has no registered handler")
	ErrUnknownSender    = errors.New("relay: sender hash not found in identity registry")
	ErrForwardingDenied = errors.New("relay: next hop is below the forwarding trust threshold")
	ErrSendFailed       = errors.New("relay: transport send failed")
)
