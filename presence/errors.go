// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package presence

import "errors"

var (
	ErrUnknownUser    = errors.New("presence: unknown user")
	ErrQueueFull      = errors.New("presence: offline queue is full")
	ErrMessageNotFound = errors.New("presence: message id not found in queue")
)
