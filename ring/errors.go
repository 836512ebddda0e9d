// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package ring

import "errors"

var (
	ErrRingFull            = errors.New("ring: at max_ring_size, cannot admit another member")
	ErrDegraded            = errors.New("ring: ring is degraded, not accepting new members")
	ErrInvalidJoinSignature = errors.New("ring: join request signature does not verify")
	ErrNoPendingChallenge   = errors.New("ring: candidate has no outstanding challenge")
	ErrChallengeFailed      = errors.New("ring: challenge response did not verify")
	ErrDuplicateProposal    = errors.New("ring: a proposal for this candidate already exists")
	ErrProposalNotFound     = errors.New("ring: proposal id not found")
	ErrProposalExpired      = errors.New("ring: proposal TTL elapsed")
	ErrAlreadyVoted         = errors.New("ring: member already voted on this proposal")
	ErrNotAMember           = errors.New("ring: voter is not a current ring member")
)
