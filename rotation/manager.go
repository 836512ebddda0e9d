// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rotation implements the multi-phase coordinated rekey protocol
// across the first ring (spec §4.5):
//
//	Idle -> Initiated -> KeyGeneration -> KeyDistribution
//	     -> Acknowledgment -> Verification -> Completed | Failed
//
// One Manager represents a single node's view of the ring's rotation
// state. Every member's Manager drives the same state machine in
// lock-step, communicating only through the Init/Ack/Verify messages
// this package defines; delivering those messages is the transport
// package's job.
package rotation

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/log"
	"github.com/secirc/relay/wire"
)

// Phase is a position in the rotation state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInitiated
	PhaseKeyGeneration
	PhaseKeyDistribution
	PhaseAcknowledgment
	PhaseVerification
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInitiated:
		return "initiated"
	case PhaseKeyGeneration:
		return "key_generation"
	case PhaseKeyDistribution:
		return "key_distribution"
	case PhaseAcknowledgment:
		return "acknowledgment"
	case PhaseVerification:
		return "verification"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InitMessage is key_change_init: broadcast by the initiator, signed
// under its *old* key.
type InitMessage struct {
	RotationID [16]byte
	NewPK      []byte
	OldPKHash  [16]byte
	Salt       [32]byte
	Signature  []byte
}

// AckMessage is key_change_ack: a peer's reply, signed under its *old*
// key, carrying its own freshly generated new public key.
type AckMessage struct {
	RotationID [16]byte
	NewPK      []byte
	Signature  []byte
}

// VerifyMessage is key_change_verify: emitted once all acks are in,
// signed under the sender's *new* key.
type VerifyMessage struct {
	RotationID [16]byte
	Signature  []byte
}

// KeySetMessage is the coordinator's "acks collected" broadcast: once
// every peer has acked, the coordinator redistributes the full set of
// new public keys it collected so peers who only exchanged messages
// with the coordinator (not with each other) learn when to move to
// Verification and what new key to expect from every other member.
// This is the concrete shape of the "KeyDistribution" phase.
type KeySetMessage struct {
	RotationID [16]byte
	Entries    map[[16]byte][]byte
	Signature  []byte
}

type peerState struct {
	oldPK    []byte
	newPK    []byte
	acked    bool
	verified bool
}

// session is the one rotation this Manager can have in flight.
type session struct {
	id        [16]byte
	phase     Phase
	createdAt time.Time

	selfNew *crypto.SigningKeyPair
	peers   map[[16]byte]*peerState
}

// Manager drives one node's side of the key rotation protocol.
type Manager interface {
	// Initiate opens a new session as the coordinator, generating this
	// node's fresh keypair and returning the key_change_init message to
	// broadcast to peers (signed under the node's current long-term key).
	Initiate(peers []wire.RelayNode, now time.Time) (InitMessage, error)

	// ReceiveInit handles an incoming key_change_init from another
	// member, verifying it under that member's known old key, generating
	// this node's own new keypair if no session is open yet, and
	// returning the key_change_ack to send back.
	ReceiveInit(from wire.RelayNode, msg InitMessage, now time.Time) (AckMessage, error)

	// ReceiveAck records a peer's key_change_ack, verified under that
	// peer's old key.
	ReceiveAck(from wire.RelayNode, msg AckMessage, now time.Time) error

	// ReadyToVerify reports whether every known peer has acked.
	ReadyToVerify() bool

	// BroadcastKeySet is called by the coordinator once ReadyToVerify, to
	// produce the KeyDistribution message every peer applies via
	// ReceiveKeySet.
	BroadcastKeySet(now time.Time) (KeySetMessage, error)

	// ReceiveKeySet applies a coordinator's KeySetMessage, learning every
	// other member's new key and becoming ready to verify itself.
	ReceiveKeySet(from wire.RelayNode, msg KeySetMessage, now time.Time) error

	// EmitVerify signs a key_change_verify under this node's *new* key,
	// moving the session to Verification. Only valid once ReadyToVerify.
	EmitVerify(now time.Time) (VerifyMessage, error)

	// ReceiveVerify verifies a peer's key_change_verify under that peer's
	// *new* key (the one it announced in its ack). Once every peer has
	// been verified, all current_keys are atomically swapped and the
	// session completes.
	ReceiveVerify(from [16]byte, msg VerifyMessage, now time.Time) (completed bool, err error)

	// Sweep fails the in-flight session if rotation_timeout has elapsed.
	Sweep(now time.Time) error

	Phase() Phase

	// CurrentKeyFor returns the post-rotation public key for peer, valid
	// only once the session that rotated it has Completed.
	CurrentKeyFor(peer [16]byte) ([]byte, bool)
}

type manager struct {
	cfg      config.RotationConfig
	selfKeys *crypto.KeyPair
	selfHash [16]byte
	logger   log.Logger

	mu          sync.Mutex
	current     map[[16]byte][]byte // peer -> current (post-rotation) public key
	sess        *session
}

// NewManager constructs a rotation Manager for the node owning selfKeys.
func NewManager(cfg config.RotationConfig, selfKeys *crypto.KeyPair, logger log.Logger) Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &manager{
		cfg:      cfg,
		selfKeys: selfKeys,
		selfHash: crypto.Hash16(selfKeys.Signing.Public),
		logger:   logger,
		current:  make(map[[16]byte][]byte),
	}
}

func (m *manager) Initiate(peers []wire.RelayNode, now time.Time) (InitMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil && m.sess.phase != PhaseCompleted && m.sess.phase != PhaseFailed {
		return InitMessage{}, ErrSessionExists
	}

	newKP, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return InitMessage{}, err
	}

	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return InitMessage{}, err
	}
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return InitMessage{}, err
	}

	s := &session{id: id, phase: PhaseInitiated, createdAt: now, selfNew: newKP, peers: make(map[[16]byte]*peerState)}
	for _, p := range peers {
		s.peers[p.Hash16] = &peerState{oldPK: p.PublicKey}
	}
	m.sess = s
	s.phase = PhaseKeyGeneration

	msg := InitMessage{
		RotationID: id,
		NewPK:      newKP.Public,
		OldPKHash:  m.selfHash,
		Salt:       salt,
	}
	msg.Signature = crypto.Sign(m.selfKeys.Signing.Private, append(append([]byte{}, id[:]...), newKP.Public...))
	s.phase = PhaseKeyDistribution
	return msg, nil
}

func (m *manager) ReceiveInit(from wire.RelayNode, msg InitMessage, now time.Time) (AckMessage, error) {
	signed := append(append([]byte{}, msg.RotationID[:]...), msg.NewPK...)
	if !crypto.Verify(from.PublicKey, signed, msg.Signature) {
		return AckMessage{}, ErrSignatureInvalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || m.sess.phase == PhaseCompleted || m.sess.phase == PhaseFailed {
		newKP, err := crypto.GenerateSigningKeyPair()
		if err != nil {
			return AckMessage{}, err
		}
		m.sess = &session{id: msg.RotationID, phase: PhaseKeyGeneration, createdAt: now, selfNew: newKP, peers: make(map[[16]byte]*peerState)}
	}
	s := m.sess
	if _, ok := s.peers[from.Hash16]; !ok {
		s.peers[from.Hash16] = &peerState{}
	}
	s.peers[from.Hash16].oldPK = from.PublicKey
	s.peers[from.Hash16].newPK = msg.NewPK
	s.phase = PhaseKeyDistribution

	ack := AckMessage{RotationID: s.id, NewPK: s.selfNew.Public}
	ack.Signature = crypto.Sign(m.selfKeys.Signing.Private, append(append([]byte{}, s.id[:]...), s.selfNew.Public...))
	return ack, nil
}

func (m *manager) ReceiveAck(from wire.RelayNode, msg AckMessage, now time.Time) error {
	signed := append(append([]byte{}, msg.RotationID[:]...), msg.NewPK...)
	if !crypto.Verify(from.PublicKey, signed, msg.Signature) {
		return ErrSignatureInvalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || m.sess.id != msg.RotationID {
		return ErrNoSuchSession
	}
	ps, ok := m.sess.peers[from.Hash16]
	if !ok {
		return ErrUnknownPeer
	}
	ps.newPK = msg.NewPK
	ps.acked = true
	m.sess.phase = PhaseAcknowledgment
	return nil
}

func (m *manager) ReadyToVerify() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || len(m.sess.peers) == 0 {
		return false
	}
	for _, ps := range m.sess.peers {
		if !ps.acked {
			return false
		}
	}
	return true
}

func (m *manager) BroadcastKeySet(now time.Time) (KeySetMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return KeySetMessage{}, ErrNoSuchSession
	}
	for _, ps := range m.sess.peers {
		if !ps.acked {
			return KeySetMessage{}, ErrWrongPhase
		}
	}

	entries := make(map[[16]byte][]byte, len(m.sess.peers)+1)
	entries[m.selfHash] = m.sess.selfNew.Public
	for hash, ps := range m.sess.peers {
		entries[hash] = ps.newPK
	}

	msg := KeySetMessage{RotationID: m.sess.id, Entries: entries}
	msg.Signature = crypto.Sign(m.selfKeys.Signing.Private, keySetSigningBytes(m.sess.id, entries))
	return msg, nil
}

func (m *manager) ReceiveKeySet(from wire.RelayNode, msg KeySetMessage, now time.Time) error {
	if !crypto.Verify(from.PublicKey, keySetSigningBytes(msg.RotationID, msg.Entries), msg.Signature) {
		return ErrSignatureInvalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || m.sess.id != msg.RotationID {
		return ErrNoSuchSession
	}
	for hash, pk := range msg.Entries {
		if hash == m.selfHash {
			continue
		}
		ps, ok := m.sess.peers[hash]
		if !ok {
			ps = &peerState{}
			m.sess.peers[hash] = ps
		}
		ps.newPK = pk
		ps.acked = true
	}
	m.sess.phase = PhaseAcknowledgment
	return nil
}

func (m *manager) EmitVerify(now time.Time) (VerifyMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return VerifyMessage{}, ErrNoSuchSession
	}
	for _, ps := range m.sess.peers {
		if !ps.acked {
			return VerifyMessage{}, ErrWrongPhase
		}
	}
	m.sess.phase = PhaseVerification
	msg := VerifyMessage{RotationID: m.sess.id}
	msg.Signature = crypto.Sign(m.sess.selfNew.Private, m.sess.id[:])
	return msg, nil
}

func (m *manager) ReceiveVerify(from [16]byte, msg VerifyMessage, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || m.sess.id != msg.RotationID {
		return false, ErrNoSuchSession
	}
	ps, ok := m.sess.peers[from]
	if !ok {
		return false, ErrUnknownPeer
	}
	if !crypto.Verify(ps.newPK, msg.RotationID[:], msg.Signature) {
		return false, ErrSignatureInvalid
	}
	ps.verified = true

	for _, other := range m.sess.peers {
		if !other.verified {
			return false, nil
		}
	}

	for hash, other := range m.sess.peers {
		m.current[hash] = other.newPK
	}
	m.current[m.selfHash] = m.sess.selfNew.Public
	m.sess.phase = PhaseCompleted
	m.logger.Info("key rotation completed", log.Hash16("rotation_id", m.sess.id))
	return true, nil
}

func (m *manager) Sweep(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || m.sess.phase == PhaseCompleted || m.sess.phase == PhaseFailed {
		return nil
	}
	if now.Sub(m.sess.createdAt) > m.cfg.RotationTimeout {
		m.sess.phase = PhaseFailed
		m.logger.Warn("key rotation timed out", log.Hash16("rotation_id", m.sess.id))
		return ErrTimedOut
	}
	return nil
}

func (m *manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return PhaseIdle
	}
	return m.sess.phase
}

func (m *manager) CurrentKeyFor(peer [16]byte) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, ok := m.current[peer]
	return pk, ok
}

// keySetSigningBytes deterministically serializes a KeySetMessage's
// entries (sorted by hash) so signing/verification agree regardless of
// map iteration order.
func keySetSigningBytes(id [16]byte, entries map[[16]byte][]byte) []byte {
	hashes := make([][16]byte, 0, len(entries))
	for h := range entries {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return string(hashes[i][:]) < string(hashes[j][:])
	})

	out := append([]byte{}, id[:]...)
	for _, h := range hashes {
		out = append(out, h[:]...)
		out = append(out, entries[h]...)
	}
	return out
}
