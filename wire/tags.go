// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

// MessageType tags every envelope payload and doubles as the domain
// separator baked into the integrity hash (spec §4.1: "the salt
// domain-separates envelope classes ... so a captured envelope of one
// class cannot be replayed as another"). Each constant's Domain() string
// is mixed into the integrity hash so two classes with the same type_tag
// numeric value would still never collide across an implementation
// upgrade — but as long as the tags stay unique that's moot; the domain
// string is what actually matters to the envelope layer.
type MessageType uint16

const (
	TypeUnknown MessageType = iota

	// Client <-> relay datagrams (presence, pending delivery, acks).
	TypeDatagram

	// User -> user direct ciphertext, routed through presence
	// store-and-forward when the recipient is offline (spec §4.8,
	// wire table tag "message").
	TypeMessage

	// Relay <-> relay forwarding frames.
	TypeRelay

	// Group pub/sub posts, both decentralized and server-brokered.
	TypeGroupPost
	TypeGroupKeyWrap

	// First-ring key rotation protocol (spec §4.5).
	TypeKeyChangeInit
	TypeKeyChangeAck
	TypeKeyChangeVerify

	// Client authentication challenge/response (spec §4.7).
	TypeAuthChallenge
	TypeAuthResponse

	// First-ring membership (spec §4.4).
	TypeRingJoinRequest
	TypeRingChallenge
	TypeRingChallengeResponse
	TypeRingProposal
	TypeRingVote
	TypeRingHeartbeat

	// Discovery candidate announcements (spec §4.10).
	TypeRelayAnnouncement

	// Presence broadcasts (spec §4.8).
	TypePresenceOnline
	TypePresenceOffline

	// Transport-level greeting and liveness (spec §6 wire table).
	TypeHello
	TypeHeartbeat

	// Client authentication handshake framing: the request that opens a
	// session, the challenge array the server issues, and the final
	// verdict (spec §4.7, §6 tags auth_req/auth_chal/auth_ok/auth_fail).
	TypeAuthRequest
	TypeAuthVerdict

	// Blind verification probes against untrusted relays (spec §4.6, §6
	// tag family verify_*). A probe carries an opaque blob the tested
	// relay must echo back unmodified.
	TypeVerifyProbe
	TypeVerifyEcho
)

// Domain returns the type-domain string mixed into the envelope
// integrity hash: SHA256(type_tag ∥ payload ∥ salt ∥ type_domain_string).
func (t MessageType) Domain() string {
	switch t {
	case TypeDatagram:
		return "secirc.datagram.v1"
	case TypeMessage:
		return "secirc.message.v1"
	case TypeRelay:
		return "secirc.relay.v1"
	case TypeGroupPost:
		return "secirc.group.post.v1"
	case TypeGroupKeyWrap:
		return "secirc.group.keywrap.v1"
	case TypeKeyChangeInit:
		return "secirc.keychange.init.v1"
	case TypeKeyChangeAck:
		return "secirc.keychange.ack.v1"
	case TypeKeyChangeVerify:
		return "secirc.keychange.verify.v1"
	case TypeAuthChallenge:
		return "secirc.auth.challenge.v1"
	case TypeAuthResponse:
		return "secirc.auth.response.v1"
	case TypeRingJoinRequest:
		return "secirc.ring.join.v1"
	case TypeRingChallenge:
		return "secirc.ring.challenge.v1"
	case TypeRingChallengeResponse:
		return "secirc.ring.challengeresponse.v1"
	case TypeRingProposal:
		return "secirc.ring.proposal.v1"
	case TypeRingVote:
		return "secirc.ring.vote.v1"
	case TypeRingHeartbeat:
		return "secirc.ring.heartbeat.v1"
	case TypeRelayAnnouncement:
		return "secirc.discovery.announce.v1"
	case TypePresenceOnline:
		return "secirc.presence.online.v1"
	case TypePresenceOffline:
		return "secirc.presence.offline.v1"
	case TypeHello:
		return "secirc.hello.v1"
	case TypeHeartbeat:
		return "secirc.heartbeat.v1"
	case TypeAuthRequest:
		return "secirc.auth.request.v1"
	case TypeAuthVerdict:
		return "secirc.auth.verdict.v1"
	case TypeVerifyProbe:
		return "secirc.verify.probe.v1"
	case TypeVerifyEcho:
		return "secirc.verify.echo.v1"
	default:
		return "secirc.unknown.v1"
	}
}

// Valid reports whether t is a known, non-zero message type.
func (t MessageType) Valid() bool {
	return t > TypeUnknown && t <= TypeVerifyEcho
}
