// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"encoding/hex"
	"time"

	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/wire"
)

// directMessageID derives a stable id for a direct user message that
// didn't arrive with one pre-assigned (e.g. client-generated ids from a
// future client implementation).
func directMessageID(sender, recipient [16]byte, now time.Time) string {
	sum := crypto.Hash16(append(append([]byte(now.String()), sender[:]...), recipient[:]...))
	return hex.EncodeToString(sum[:])
}

// The structs below are the envelope payload shapes: the ones
// HandleEnvelope decodes before dispatching to the matching manager, and
// the ones the node seals for its own challenges, verdicts, echoes and
// deliveries.

type ringJoinPayload struct {
	Candidate wire.RelayNode
	Signature []byte
}

type ringChallengeResponsePayload struct {
	CandidateHash [16]byte
	Response      wire.ChallengeResponse
}

type ringProposalPayload struct {
	ProposalID    string
	CandidateHash [16]byte
}

type ringVotePayload struct {
	ProposalID string
	Yes        bool
}

type groupPostPayload struct {
	GroupID     string
	Brokered    bool
	Ciphertext  []byte            // used when Brokered
	Ciphertexts map[[16]byte][]byte // used when !Brokered
	TTL         time.Duration
}

type authResponsePayload struct {
	SessionID string
	Response  wire.ChallengeResponse
}

type messagePayload struct {
	MessageID     string
	RecipientHash [16]byte
	Ciphertext    []byte
	TTL           time.Duration
}

type presenceOnlinePayload struct {
	Server    [16]byte
	Session   string
	PublicKey []byte
	Nickname  string
}

// helloPayload is the transport-level greeting: a peer announcing its
// public key so the identity registry can bind it before any other
// traffic from that hash is dispatched.
type helloPayload struct {
	PublicKey []byte
	Kind      wire.IdentityKind
}

type authRequestPayload struct {
	PublicKey []byte
	Nickname  string
}

type authChallengePayload struct {
	SessionID  string
	Challenges []wire.Challenge
}

type authVerdictPayload struct {
	SessionID  string
	Verified   bool
	SessionKey []byte
}

// relayForwardPayload is a relay-to-relay forwarding frame: the sealed
// envelope bytes to pass along verbatim, plus the hop they go to next.
// The carrying relay never opens Frame; it only checks the next hop's
// trust admission before moving it on.
type relayForwardPayload struct {
	NextHop [16]byte
	Frame   []byte
}

// groupKeyWrapPayload is a brokered group's rotated key wrap in transit
// to one member (spec §4.9b fan-out: ciphertext + wrapped key + key id).
type groupKeyWrapPayload struct {
	GroupID    string
	KeyID      string
	Algorithm  string
	Recipient  [16]byte
	WrappedKey []byte
	Version    int
	TTL        time.Duration
}

type verifyProbePayload struct {
	ProbeID string
	Blob    []byte
}

// deliveryPayload is a store-and-forward message leaving the queue for
// its online recipient, carried in a client<->relay datagram: the
// original ciphertext plus the routing metadata the client needs to
// decrypt and ack it.
type deliveryPayload struct {
	MessageID  string
	SenderHash [16]byte
	Type       wire.MessageType
	Ciphertext []byte
}
