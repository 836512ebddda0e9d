// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import "errors"

var (
	ErrPeerExists         = errors.New("transport: peer already added")
	ErrPeerUnknown        = errors.New("transport: peer unknown")
	ErrNotConnected       = errors.New("transport: peer is not connected")
	ErrMaxRetriesExceeded = errors.New("transport: peer exceeded its maximum reconnect attempts")
	ErrAtCapacity         = errors.New("transport: already at max_connections")
	ErrFrameTooLarge      = errors.New("transport: frame exceeds maximum envelope size")
)
