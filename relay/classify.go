// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"

	"github.com/secirc/relay/auth"
	"github.com/secirc/relay/config"
	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/discovery"
	"github.com/secirc/relay/envelope"
	"github.com/secirc/relay/groups"
	"github.com/secirc/relay/identity"
	"github.com/secirc/relay/presence"
	"github.com/secirc/relay/ring"
	"github.com/secirc/relay/rotation"
	"github.com/secirc/relay/transport"
	"github.com/secirc/relay/trust"
	"github.com/secirc/relay/verify"
	"github.com/secirc/relay/wire"
)

// Kind is the top-level error taxonomy spec §7 names: Io, Crypto,
// Protocol, Policy, Consensus, Transient. Every package-local sentinel
// error ultimately classifies into exactly one of these, which is what
// a caller deciding how to react to a failed operation (retry, penalize
// the sender's trust, drop silently, surface to an operator) actually
// needs to know.
type Kind int

const (
	KindUnknown Kind = iota
	KindIo
	KindCrypto
	KindProtocol
	KindPolicy
	KindConsensus
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindIo:
		return "io"
	case KindCrypto:
		return "crypto"
	case KindProtocol:
		return "protocol"
	case KindPolicy:
		return "policy"
	case KindConsensus:
		return "consensus"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Classify walks err (and anything it wraps) against every component
// package's sentinel errors and returns the Kind it belongs to per the
// propagation rules in §7: Crypto and Protocol failures are never
// retried, Policy failures feed trust events, Consensus failures fall
// back to local retry within the owning state machine, Transient
// failures are safe to retry as-is, and Io failures are a transport
// concern the caller should back off on.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	switch {
	case errors.Is(err, transport.ErrNotConnected),
		errors.Is(err, transport.ErrMaxRetriesExceeded),
		errors.Is(err, transport.ErrAtCapacity),
		errors.Is(err, transport.ErrPeerUnknown),
		errors.Is(err, transport.ErrPeerExists),
		errors.Is(err, transport.ErrFrameTooLarge),
		errors.Is(err, ErrSendFailed):
		return KindIo

	case errors.Is(err, envelope.ErrBadIntegrity),
		errors.Is(err, ring.ErrInvalidJoinSignature),
		errors.Is(err, ring.ErrChallengeFailed),
		errors.Is(err, rotation.ErrSignatureInvalid),
		errors.Is(err, discovery.ErrBadSignature),
		errors.Is(err, identity.ErrIdentityMismatch),
		errors.Is(err, auth.ErrVerificationFailed),
		errors.Is(err, crypto.ErrInvalidSignature),
		errors.Is(err, crypto.ErrDecryptionFailed),
		errors.Is(err, crypto.ErrWrappedKeyCorrupt),
		errors.Is(err, crypto.ErrBadPassphrase),
		errors.Is(err, crypto.ErrCiphertextTooShort),
		errors.Is(err, crypto.ErrInvalidKeySize),
		errors.Is(err, crypto.ErrUnsupportedAlgo):
		return KindCrypto

	case errors.Is(err, envelope.ErrMalformed),
		errors.Is(err, envelope.ErrUnknownType),
		errors.Is(err, wire.ErrMetadataCapExceeded),
		errors.Is(err, auth.ErrUnknownChallengeKind),
		errors.Is(err, verify.ErrUnknownFamily),
		errors.Is(err, ErrUnsupportedType):
		return KindProtocol

	case errors.Is(err, ring.ErrRingFull),
		errors.Is(err, ring.ErrDegraded),
		errors.Is(err, ring.ErrNotAMember),
		errors.Is(err, groups.ErrNotOwner),
		errors.Is(err, groups.ErrGroupFull),
		errors.Is(err, groups.ErrNotMember),
		errors.Is(err, groups.ErrCannotRemoveOwner),
		errors.Is(err, groups.ErrModeMismatch),
		errors.Is(err, discovery.ErrRateLimited),
		errors.Is(err, discovery.ErrDenylisted),
		errors.Is(err, trust.ErrSourceUntrusted),
		errors.Is(err, presence.ErrQueueFull),
		errors.Is(err, ErrUnknownSender),
		errors.Is(err, ErrForwardingDenied):
		return KindPolicy

	case errors.Is(err, ring.ErrDuplicateProposal),
		errors.Is(err, ring.ErrProposalNotFound),
		errors.Is(err, ring.ErrProposalExpired),
		errors.Is(err, ring.ErrAlreadyVoted),
		errors.Is(err, ring.ErrNoPendingChallenge),
		errors.Is(err, rotation.ErrWrongPhase),
		errors.Is(err, rotation.ErrUnknownPeer),
		errors.Is(err, rotation.ErrSessionExists):
		return KindConsensus

	case errors.Is(err, envelope.ErrStale),
		errors.Is(err, envelope.ErrReplay),
		errors.Is(err, rotation.ErrTimedOut),
		errors.Is(err, rotation.ErrNoSuchSession),
		errors.Is(err, auth.ErrChallengeExpired),
		errors.Is(err, auth.ErrSessionNotActive),
		errors.Is(err, auth.ErrMaxChallengesReached),
		errors.Is(err, auth.ErrChallengeNotFound),
		errors.Is(err, auth.ErrNoSuchSession),
		errors.Is(err, groups.ErrMessageNotFound),
		errors.Is(err, groups.ErrNoActiveKey),
		errors.Is(err, groups.ErrMissingCiphertext),
		errors.Is(err, groups.ErrGroupExists),
		errors.Is(err, groups.ErrGroupNotFound),
		errors.Is(err, presence.ErrMessageNotFound),
		errors.Is(err, presence.ErrUnknownUser),
		errors.Is(err, identity.ErrNotFound),
		errors.Is(err, trust.ErrUnknownRelay),
		errors.Is(err, discovery.ErrUnknownCandidate),
		errors.Is(err, verify.ErrUnknownProbe):
		return KindTransient

	default:
		return KindUnknown
	}
}

// ExitCode is the process exit status spec §6 assigns to a relay run.
// The core itself never calls os.Exit; a caller's main() wraps Run and
// chooses ExitCode from whatever it returns, so the module stays
// embeddable and testable.
type ExitCode int

const (
	ExitClean                ExitCode = 0
	ExitUnrecoverable        ExitCode = 1
	ExitBadConfiguration     ExitCode = 2
	ExitAuthenticationImpossible ExitCode = 3
)

// ExitCodeFor maps the error NewNode or Run returned (nil on clean
// shutdown) to the process exit code a caller's main() should use.
// Key loading/generation is explicitly a caller concern outside this
// module's scope (§1), so ExitAuthenticationImpossible is never produced
// here — it's exposed for a caller's own key-loading wrapper to return
// directly when it can't obtain or generate a keypair.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitClean
	}
	if isConfigValidationError(err) {
		return ExitBadConfiguration
	}
	return ExitUnrecoverable
}

func isConfigValidationError(err error) bool {
	for _, sentinel := range []error{
		config.ErrInvalidRingSize, config.ErrInvalidQuorum, config.ErrInvalidMaxMessageAge,
		config.ErrInvalidReplayWindow, config.ErrInvalidConnectionRange, config.ErrInvalidRetryAttempts,
		config.ErrInvalidPoWDifficulty, config.ErrInvalidThresholds, config.ErrInvalidWeights,
		config.ErrInvalidMaxPending, config.ErrInvalidDeliveryTuning, config.ErrInvalidGroupSize,
		config.ErrInvalidProbeTimeout, config.ErrInvalidIdleAge,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
