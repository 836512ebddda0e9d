// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire holds the shared data-model types described in spec §3:
// Identity, Envelope, RelayNode, FirstRingMember, TrustScore, Group,
// GroupKey, PendingMessage, and AuthSession. Every component package
// (envelope, identity, ring, trust, groups, presence, auth, ...)
// constructs and mutates these types; none of them own persistence —
// that's each component's own registry/map plus a sync.RWMutex.
package wire

import "time"

// IdentityKind distinguishes the three things a hash16 can name.
type IdentityKind uint8

const (
	IdentityUser IdentityKind = iota
	IdentityGroup
	IdentityRelay
)

func (k IdentityKind) String() string {
	switch k {
	case IdentityUser:
		return "user"
	case IdentityGroup:
		return "group"
	case IdentityRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// MaxMetadataKeys and MaxMetadataValueBytes bound Identity.Metadata so it
// never grows into an unbounded storage side-channel (spec §3.1).
const (
	MaxMetadataKeys       = 8
	MaxMetadataValueBytes = 256
)

// Identity is a registered hash16 -> public key binding. Invariant:
// Hash16 == crypto.Hash16(PublicKey). Registration and mutation belong to
// the identity package; this struct is the value it stores.
type Identity struct {
	Hash16    [16]byte
	PublicKey []byte
	Kind      IdentityKind
	CreatedAt time.Time
	LastSeen  time.Time

	// Metadata is a small free-form bag for discovery transport hints
	// (spec §3.1). Capped at MaxMetadataKeys entries of at most
	// MaxMetadataValueBytes each; the identity package enforces the cap
	// on register/update, this struct does not self-validate.
	Metadata map[string]string
}

// Envelope is the unit every ingress/egress path exchanges (spec §4.1).
// Sender/Sequence/Timestamp ride alongside the five fields spec.md names
// explicitly (TypeTag, PayloadLen, Payload, Salt, IntegrityHash) because
// the replay window is keyed on (Sender, TypeTag, Sequence).
type Envelope struct {
	TypeTag       MessageType
	Sender        [16]byte
	Sequence      uint64
	Timestamp     time.Time
	PayloadLen    uint32
	Payload       []byte
	Salt          [32]byte
	IntegrityHash [32]byte
}

// RelayNode is a candidate or member relay as tracked by discovery,
// verification, and trust (spec §3).
type RelayNode struct {
	Hash16            [16]byte
	PublicKey         []byte
	Addr              string
	Port              uint16
	IsFirstRing       bool
	Reputation        float64
	LastSeen          time.Time
	ChallengesPassed  int
	ChallengesFailed  int

	// Capabilities/Version/ViaRelay are supplemented fields (spec §3.1):
	// announced but not scored by trust, stored for routing decisions.
	Capabilities []string
	Version      string
	ViaRelay     *[16]byte
}

// FirstRingMember extends RelayNode with the bookkeeping the ring
// package needs once a relay has been admitted (spec §4.4).
type FirstRingMember struct {
	RelayNode
	JoinTS             time.Time
	HeartbeatTS        time.Time
	ConsensusVotesCast int
}

// TrustScore is the weighted reputation model from spec §3/§4.6.
// Overall = 0.3*Reputation + 0.4*Behavior + 0.2*Consensus + 0.1*Recency
// (weights come from config.TrustConfig so they're tunable; this struct
// only carries the computed values).
type TrustScore struct {
	Reputation  float64
	Behavior    float64
	Consensus   float64
	Recency     float64
	Overall     float64
	Confidence  float64
	LastUpdated time.Time
}

// GroupRole is a decentralized-group member's role.
type GroupRole string

const (
	RoleOwner  GroupRole = "owner"
	RoleMember GroupRole = "member"
	RoleAdmin  GroupRole = "admin"
)

// GroupMember is one entry in Group.Members.
type GroupMember struct {
	PubKey   []byte
	Role     GroupRole
	JoinedTS time.Time
}

// Group is the decentralized (owner-only membership) design from
// spec §4.9(a). Invariant: exactly one member has RoleOwner, matching
// OwnerHash; GroupHash == SHA256(GroupID ∥ OwnerHash ∥ Name ∥
// CreatedTS)[0..16], computed by the groups package on creation.
type Group struct {
	GroupID     string
	GroupHash   [16]byte
	OwnerHash   [16]byte
	Name        string
	Description string
	Members     map[[16]byte]GroupMember
	MaxMembers  int
	IsPrivate   bool
	CreatedTS   time.Time
}

// GroupKey is the server-brokered design's shared symmetric key from
// spec §4.9(b). Exactly one key per GroupID has Active == true.
type GroupKey struct {
	GroupID     string
	KeyID       string
	Algorithm   string // crypto.Algorithm value
	Key         [32]byte
	WrappedKeys map[[16]byte][]byte // member hash -> key wrapped under their pubkey
	CreatedTS   time.Time
	ExpiresTS   time.Time
	Version     int
	Active      bool
}

// PendingStatus is a PendingMessage's delivery lifecycle state.
type PendingStatus uint8

const (
	StatusPending PendingStatus = iota
	StatusDelivered
	StatusFailed
	StatusExpired
)

func (s PendingStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDelivered:
		return "delivered"
	case StatusFailed:
		return "failed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// PendingMessage sits in a recipient's offline FIFO until delivered,
// dropped, or expired (spec §4.8/§4.9).
type PendingMessage struct {
	MessageID     string
	SenderHash    [16]byte
	RecipientHash [16]byte
	Type          MessageType
	Ciphertext    []byte
	TTL           time.Duration
	CreatedTS     time.Time
	Attempts      int
	MaxAttempts   int
	Status        PendingStatus
}

// Expired reports whether the message has outlived its TTL as of now.
func (m PendingMessage) Expired(now time.Time) bool {
	return now.Sub(m.CreatedTS) > m.TTL
}

// AuthStatus is an AuthSession's challenge/response state (spec §4.7).
type AuthStatus uint8

const (
	AuthPending AuthStatus = iota
	AuthChallenged
	AuthResponded
	AuthVerified
	AuthFailed
	AuthExpired
)

func (s AuthStatus) String() string {
	switch s {
	case AuthPending:
		return "pending"
	case AuthChallenged:
		return "challenged"
	case AuthResponded:
		return "responded"
	case AuthVerified:
		return "verified"
	case AuthFailed:
		return "failed"
	case AuthExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ChallengeKind distinguishes the four families from spec §4.7.
type ChallengeKind uint8

const (
	ChallengeSignature ChallengeKind = iota
	ChallengeProofOfWork
	ChallengeTimestamp
	ChallengeNonce
)

// Challenge is one item in an AuthSession's Challenges slice.
type Challenge struct {
	ID         string
	Kind       ChallengeKind
	Blob       []byte // nonce, PoW prefix, or timestamp window, depending on Kind
	Difficulty int    // only meaningful for ChallengeProofOfWork
	IssuedTS   time.Time
}

// ChallengeResponse is a client's answer to one Challenge.
type ChallengeResponse struct {
	ChallengeID string
	Data        []byte // signature bytes, PoW nonce, echoed timestamp, or echoed nonce
	RespondedTS time.Time
}

// AuthSession tracks one client's login handshake (spec §4.7).
type AuthSession struct {
	SessionID    string
	UserHash     [16]byte
	ServerHash   [16]byte
	Status       AuthStatus
	Challenges   []Challenge
	Responses    []ChallengeResponse
	CreatedTS    time.Time
	LastActivity time.Time
	SessionKey   *[32]byte
}

// PresenceStatus is a UserPresence's online/offline/away/busy/invisible
// state (spec §4.8).
type PresenceStatus uint8

const (
	PresenceOffline PresenceStatus = iota
	PresenceOnline
	PresenceAway
	PresenceBusy
	PresenceInvisible
)

func (s PresenceStatus) String() string {
	switch s {
	case PresenceOffline:
		return "offline"
	case PresenceOnline:
		return "online"
	case PresenceAway:
		return "away"
	case PresenceBusy:
		return "busy"
	case PresenceInvisible:
		return "invisible"
	default:
		return "unknown"
	}
}

// UserPresence is the per-user online/offline record spec §4.8 names.
type UserPresence struct {
	User          [16]byte
	Status        PresenceStatus
	LastSeen      time.Time
	Server        [16]byte
	Session       string
	PublicKey     []byte
	Nickname      string
	StatusMessage string
}

// RelayAnnouncement is the signed candidate record discovery methods
// hand to the verification pipeline (spec §4.10).
type RelayAnnouncement struct {
	RelayID      [16]byte
	PublicKey    []byte
	Addr         string
	Port         uint16
	Services     []string
	Capabilities []string
	Uptime       time.Duration
	LastSeen     time.Time
	Version      string
	Signature    []byte
}
