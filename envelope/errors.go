// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package envelope

import "errors"

// Kind classifies why Open rejected an envelope, matching the set
// spec §4.1 names: Malformed, BadIntegrity, Stale, Replay, UnknownType.
type Kind int

const (
	KindNone Kind = iota
	KindMalformed
	KindBadIntegrity
	KindStale
	KindReplay
	KindUnknownType
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindBadIntegrity:
		return "bad_integrity"
	case KindStale:
		return "stale"
	case KindReplay:
		return "replay"
	case KindUnknownType:
		return "unknown_type"
	default:
		return "none"
	}
}

var (
	ErrMalformed    = errors.New("envelope: malformed")
	ErrBadIntegrity = errors.New("envelope: integrity hash mismatch")
	ErrStale        = errors.New("envelope: timestamp outside max_message_age window")
	ErrReplay       = errors.New("envelope: sequence number already observed")
	ErrUnknownType  = errors.New("envelope: unknown message type")
)

// Classify maps one of this package's sentinel errors to its Kind, for
// callers that want to branch on the failure family (e.g. to decide
// whether to penalize the sender's trust score).
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrBadIntegrity):
		return KindBadIntegrity
	case errors.Is(err, ErrStale):
		return KindStale
	case errors.Is(err, ErrReplay):
		return KindReplay
	case errors.Is(err, ErrUnknownType):
		return KindUnknownType
	default:
		return KindNone
	}
}
