// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package envelope implements the salt/integrity/replay layer every
// ingress and egress path goes through (spec §4.1). A Manager both seals
// outgoing payloads (minting the next per-type sequence number and a
// fresh salt) and opens incoming ones (recomputing the integrity hash,
// checking staleness, and rejecting replays).
package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/internal/collections"
	"github.com/secirc/relay/log"
	"github.com/secirc/relay/wire"
)

// replayKey identifies one (sender, message type) replay window.
type replayKey struct {
	sender  [16]byte
	typeTag wire.MessageType
}

// Manager seals and opens envelopes on behalf of one local identity.
// Safe for concurrent use.
type Manager struct {
	cfg    config.EnvelopeConfig
	logger log.Logger

	mu       sync.Mutex
	outSeq   map[wire.MessageType]uint64
	replayOf map[replayKey]*collections.LRU[uint64, struct{}]
}

// NewManager constructs an envelope Manager.
func NewManager(cfg config.EnvelopeConfig, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		outSeq:   make(map[wire.MessageType]uint64),
		replayOf: make(map[replayKey]*collections.LRU[uint64, struct{}]),
	}
}

// Seal mints the next sequence number for typeTag, generates a fresh
// salt, computes the integrity hash, and returns the finished envelope.
// sender is this node's own hash16, attached so the receiving Manager
// can key its replay window.
func (m *Manager) Seal(sender [16]byte, typeTag wire.MessageType, payload []byte) (wire.Envelope, error) {
	if !typeTag.Valid() {
		return wire.Envelope{}, ErrUnknownType
	}

	m.mu.Lock()
	m.outSeq[typeTag]++
	seq := m.outSeq[typeTag]
	m.mu.Unlock()

	now := time.Now().UTC()
	salt, err := newSalt(typeTag, now)
	if err != nil {
		return wire.Envelope{}, err
	}

	env := wire.Envelope{
		TypeTag:    typeTag,
		Sender:     sender,
		Sequence:   seq,
		Timestamp:  now,
		PayloadLen: uint32(len(payload)),
		Payload:    payload,
		Salt:       salt,
	}
	env.IntegrityHash = integrityHash(env)
	return env, nil
}

// Open validates an incoming envelope against integrity, staleness, and
// replay, returning the classified error on rejection.
func (m *Manager) Open(env wire.Envelope) error {
	if !env.TypeTag.Valid() {
		return ErrUnknownType
	}
	if int(env.PayloadLen) != len(env.Payload) {
		return ErrMalformed
	}
	if env.IntegrityHash != integrityHash(env) {
		return ErrBadIntegrity
	}
	if age := timeSince(env.Timestamp); age > m.cfg.MaxMessageAge || age < -m.cfg.MaxMessageAge {
		return ErrStale
	}

	key := replayKey{sender: env.Sender, typeTag: env.TypeTag}

	m.mu.Lock()
	defer m.mu.Unlock()

	window, ok := m.replayOf[key]
	if !ok {
		window = collections.NewLRU[uint64, struct{}]()
		m.replayOf[key] = window
	}
	if _, seen := window.Get(env.Sequence); seen {
		return ErrReplay
	}
	window.Put(env.Sequence, struct{}{})
	if window.Len() > m.cfg.ReplayWindowSize {
		window.EvictOldest()
	}

	m.logger.Debug("envelope opened",
		log.Hash16("sender", env.Sender),
		log.Type(env.TypeTag.Domain()))
	return nil
}

func timeSince(ts time.Time) time.Duration {
	return time.Since(ts)
}

// newSalt mixes 32 bytes of CSPRNG output with the type-domain label and
// the current timestamp, per spec §4.1.
func newSalt(typeTag wire.MessageType, now time.Time) ([32]byte, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return [32]byte{}, err
	}
	h := sha256.New()
	h.Write(raw[:])
	h.Write([]byte(typeTag.Domain()))
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(now.UnixNano()))
	h.Write(tsBuf[:])

	var salt [32]byte
	copy(salt[:], h.Sum(nil))
	return salt, nil
}

// integrityHash computes SHA256(type_tag ∥ payload ∥ salt ∥ type_domain_string).
func integrityHash(env wire.Envelope) [32]byte {
	h := sha256.New()
	var tagBuf [2]byte
	binary.BigEndian.PutUint16(tagBuf[:], uint16(env.TypeTag))
	h.Write(tagBuf[:])
	h.Write(env.Payload)
	h.Write(env.Salt[:])
	h.Write([]byte(env.TypeTag.Domain()))

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
