// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package groups

import "errors"

var (
	ErrGroupExists      = errors.New("groups: group id already exists")
	ErrGroupNotFound    = errors.New("groups: unknown group id")
	ErrModeMismatch     = errors.New("groups: operation does not match the group's design (decentralized vs server-brokered)")
	ErrNotOwner         = errors.New("groups: caller is not the group owner")
	ErrGroupFull        = errors.New("groups: group has reached its member cap")
	ErrNotMember        = errors.New("groups: caller is not a member of the group")
	ErrCannotRemoveOwner = errors.New("groups: the owner cannot leave the group")
	ErrNoActiveKey      = errors.New("groups: group has no active key")
	ErrMissingCiphertext = errors.New("groups: ciphertext map is missing an entry for a current member")
	ErrMessageNotFound   = errors.New("groups: message id not found in member's queue")
)
