// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package groups implements group pub/sub (spec §4.9) under both designs
// spec §9 leaves open: decentralized groups, where only the owner can
// admit members and a post is a per-recipient ciphertext map, and
// server-brokered groups, where a shared symmetric key is wrapped per
// member and rotated whenever membership changes. The two designs are
// mutually exclusive per GroupID: once a group is created in one mode,
// every later call against that id must use the matching mode or it
// fails with ErrModeMismatch.
package groups

import (
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/log"
	"github.com/secirc/relay/wire"
)

// Mode is the membership/key design a GroupID was created under.
type Mode int

const (
	ModeDecentralized Mode = iota
	ModeServerBrokered
)

type groupState struct {
	mode    Mode
	group   wire.Group
	keys    []wire.GroupKey // history, newest last; at most one Active
	queues  map[[16]byte][]wire.PendingMessage
}

func (st *groupState) activeKey() (*wire.GroupKey, bool) {
	for i := len(st.keys) - 1; i >= 0; i-- {
		if st.keys[i].Active {
			return &st.keys[i], true
		}
	}
	return nil, false
}

// Manager owns every group this relay brokers or participates in.
type Manager interface {
	// CreateDecentralized registers a new owner-only group. The owner is
	// enrolled as its first member with RoleOwner.
	CreateDecentralized(groupID string, owner [16]byte, ownerPubKey []byte, name, description string, isPrivate bool, maxMembers int, now time.Time) (wire.Group, error)

	// CreateServerBrokered registers a new group plus its first active
	// key, wrapped for the owner.
	CreateServerBrokered(groupID string, owner [16]byte, ownerBoxPubKey []byte, name string, maxMembers int, algorithm string, now time.Time) (wire.Group, wire.GroupKey, error)

	// Join admits member to an existing group. For server-brokered
	// groups this also wraps the current active key for them and emits
	// key_rotated is NOT triggered by joins, only by Leave.
	Join(groupID string, member [16]byte, pubKey []byte, role wire.GroupRole, now time.Time) error

	// Leave removes member. Server-brokered groups rotate their key
	// immediately afterward so the departed member can't decrypt future
	// posts.
	Leave(groupID string, member [16]byte, now time.Time) error

	Group(groupID string) (wire.Group, bool, error)

	// RotateKey mints a fresh active key for a server-brokered group,
	// wrapping it for every remaining member, and retires the old one.
	RotateKey(groupID string, now time.Time) (wire.GroupKey, error)

	// PostDecentralized fans a pre-encrypted-per-recipient post out to
	// every member but sender; ciphertexts must contain an entry for
	// every current member other than sender.
	PostDecentralized(groupID string, sender [16]byte, ciphertexts map[[16]byte][]byte, ttl time.Duration, now time.Time) ([]wire.PendingMessage, error)

	// PostServerBrokered fans a single ciphertext, encrypted under the
	// group's current active key, out to every member but sender.
	PostServerBrokered(groupID string, sender [16]byte, ciphertext []byte, ttl time.Duration, now time.Time) ([]wire.PendingMessage, error)

	Pending(groupID string, member [16]byte) []wire.PendingMessage
	Ack(groupID string, member [16]byte, messageID string) error
	Sweep(now time.Time) int
}

type manager struct {
	cfg    config.GroupConfig
	logger log.Logger

	mu   sync.Mutex
	byID map[string]*groupState
}

// NewManager constructs an empty group Manager.
func NewManager(cfg config.GroupConfig, logger log.Logger) Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &manager{cfg: cfg, logger: logger, byID: make(map[string]*groupState)}
}

func (m *manager) CreateDecentralized(groupID string, owner [16]byte, ownerPubKey []byte, name, description string, isPrivate bool, maxMembers int, now time.Time) (wire.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[groupID]; exists {
		return wire.Group{}, ErrGroupExists
	}
	if maxMembers <= 0 {
		maxMembers = m.cfg.DefaultMaxMembers
	}

	g := wire.Group{
		GroupID:     groupID,
		OwnerHash:   owner,
		Name:        name,
		Description: description,
		Members:     map[[16]byte]wire.GroupMember{owner: {PubKey: ownerPubKey, Role: wire.RoleOwner, JoinedTS: now}},
		MaxMembers:  maxMembers,
		IsPrivate:   isPrivate,
		CreatedTS:   now,
	}
	g.GroupHash = groupHash(groupID, owner, name, now)

	m.byID[groupID] = &groupState{mode: ModeDecentralized, group: g, queues: make(map[[16]byte][]wire.PendingMessage)}
	m.logger.Info("group created", log.Hash16("owner", owner))
	return g, nil
}

func (m *manager) CreateServerBrokered(groupID string, owner [16]byte, ownerBoxPubKey []byte, name string, maxMembers int, algorithm string, now time.Time) (wire.Group, wire.GroupKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[groupID]; exists {
		return wire.Group{}, wire.GroupKey{}, ErrGroupExists
	}
	if maxMembers <= 0 {
		maxMembers = m.cfg.DefaultMaxMembers
	}
	if algorithm == "" {
		algorithm = m.cfg.DefaultAlgorithm
	}

	g := wire.Group{
		GroupID:    groupID,
		OwnerHash:  owner,
		Name:       name,
		Members:    map[[16]byte]wire.GroupMember{owner: {PubKey: ownerBoxPubKey, Role: wire.RoleOwner, JoinedTS: now}},
		MaxMembers: maxMembers,
		CreatedTS:  now,
	}
	g.GroupHash = groupHash(groupID, owner, name, now)

	key, err := mintKey(groupID, algorithm, 1, m.cfg.KeyRotationInterval, g.Members, now)
	if err != nil {
		return wire.Group{}, wire.GroupKey{}, err
	}

	m.byID[groupID] = &groupState{mode: ModeServerBrokered, group: g, keys: []wire.GroupKey{key}, queues: make(map[[16]byte][]wire.PendingMessage)}
	m.logger.Info("group created", log.Hash16("owner", owner))
	return g, key, nil
}

func (m *manager) Join(groupID string, member [16]byte, pubKey []byte, role wire.GroupRole, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if len(st.group.Members) >= st.group.MaxMembers {
		return ErrGroupFull
	}
	st.group.Members[member] = wire.GroupMember{PubKey: pubKey, Role: role, JoinedTS: now}

	if st.mode == ModeServerBrokered {
		active, ok := st.activeKey()
		if ok && len(pubKey) == 32 {
			wrapped, err := crypto.EncryptTo(pubKey, active.Key[:])
			if err == nil {
				active.WrappedKeys[member] = wrapped
			}
		}
	}
	m.logger.Info("group_joined", log.Hash16("member", member))
	return nil
}

func (m *manager) Leave(groupID string, member [16]byte, now time.Time) error {
	m.mu.Lock()
	st, ok := m.byID[groupID]
	if !ok {
		m.mu.Unlock()
		return ErrGroupNotFound
	}
	if _, isMember := st.group.Members[member]; !isMember {
		m.mu.Unlock()
		return ErrNotMember
	}
	if member == st.group.OwnerHash {
		m.mu.Unlock()
		return ErrCannotRemoveOwner
	}
	delete(st.group.Members, member)
	delete(st.queues, member)
	mode := st.mode
	m.logger.Info("group_left", log.Hash16("member", member))
	m.mu.Unlock()

	if mode == ModeServerBrokered {
		_, err := m.RotateKey(groupID, now)
		return err
	}
	return nil
}

func (m *manager) Group(groupID string) (wire.Group, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[groupID]
	if !ok {
		return wire.Group{}, false, nil
	}
	return st.group, true, nil
}

func (m *manager) RotateKey(groupID string, now time.Time) (wire.GroupKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[groupID]
	if !ok {
		return wire.GroupKey{}, ErrGroupNotFound
	}
	if st.mode != ModeServerBrokered {
		return wire.GroupKey{}, ErrModeMismatch
	}

	algorithm := m.cfg.DefaultAlgorithm
	if active, ok := st.activeKey(); ok {
		active.Active = false
		algorithm = active.Algorithm
	}

	key, err := mintKey(groupID, algorithm, len(st.keys)+1, m.cfg.KeyRotationInterval, st.group.Members, now)
	if err != nil {
		return wire.GroupKey{}, err
	}
	st.keys = append(st.keys, key)
	m.logger.Info("key_rotated", log.Hash16("owner", st.group.OwnerHash))
	return key, nil
}

func (m *manager) PostDecentralized(groupID string, sender [16]byte, ciphertexts map[[16]byte][]byte, ttl time.Duration, now time.Time) ([]wire.PendingMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	if st.mode != ModeDecentralized {
		return nil, ErrModeMismatch
	}
	if _, isMember := st.group.Members[sender]; !isMember {
		return nil, ErrNotMember
	}

	for recipient := range st.group.Members {
		if recipient == sender {
			continue
		}
		if _, ok := ciphertexts[recipient]; !ok {
			return nil, ErrMissingCiphertext
		}
	}

	return m.fanOutLocked(st, sender, ciphertexts, ttl, now), nil
}

func (m *manager) PostServerBrokered(groupID string, sender [16]byte, ciphertext []byte, ttl time.Duration, now time.Time) ([]wire.PendingMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	if st.mode != ModeServerBrokered {
		return nil, ErrModeMismatch
	}
	if _, isMember := st.group.Members[sender]; !isMember {
		return nil, ErrNotMember
	}
	if _, ok := st.activeKey(); !ok {
		return nil, ErrNoActiveKey
	}

	ciphertexts := make(map[[16]byte][]byte, len(st.group.Members))
	for recipient := range st.group.Members {
		ciphertexts[recipient] = ciphertext
	}
	return m.fanOutLocked(st, sender, ciphertexts, ttl, now), nil
}

func (m *manager) fanOutLocked(st *groupState, sender [16]byte, ciphertexts map[[16]byte][]byte, ttl time.Duration, now time.Time) []wire.PendingMessage {
	if ttl <= 0 {
		ttl = m.cfg.MessageTTL
	}
	out := make([]wire.PendingMessage, 0, len(st.group.Members)-1)
	for recipient := range st.group.Members {
		if recipient == sender {
			continue
		}
		msg := wire.PendingMessage{
			MessageID:     messageID(st.group.GroupID, sender, recipient, now),
			SenderHash:    sender,
			RecipientHash: recipient,
			Type:          wire.TypeGroupPost,
			Ciphertext:    ciphertexts[recipient],
			TTL:           ttl,
			CreatedTS:     now,
			MaxAttempts:   m.cfg.MaxDeliveryAttempts,
			Status:        wire.StatusPending,
		}
		st.queues[recipient] = append(st.queues[recipient], msg)
		out = append(out, msg)
	}
	m.logger.Info("message_published", log.Hash16("sender", sender))
	return out
}

func (m *manager) Pending(groupID string, member [16]byte) []wire.PendingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[groupID]
	if !ok {
		return nil
	}
	q := st.queues[member]
	out := make([]wire.PendingMessage, len(q))
	copy(out, q)
	return out
}

func (m *manager) Ack(groupID string, member [16]byte, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	q := st.queues[member]
	for i, msg := range q {
		if msg.MessageID == messageID {
			st.queues[member] = append(q[:i], q[i+1:]...)
			m.logger.Info("message_delivered", log.Hash16("member", member))
			return nil
		}
	}
	return ErrMessageNotFound
}

func (m *manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cleaned := 0
	for _, st := range m.byID {
		for member, q := range st.queues {
			kept := q[:0]
			for _, msg := range q {
				if msg.Expired(now) {
					cleaned++
					continue
				}
				kept = append(kept, msg)
			}
			st.queues[member] = kept
		}
	}
	if cleaned > 0 {
		m.logger.Info("message_cleaned")
	}
	return cleaned
}

func mintKey(groupID, algorithm string, version int, rotationInterval time.Duration, members map[[16]byte]wire.GroupMember, now time.Time) (wire.GroupKey, error) {
	raw, err := crypto.NewSymmetricKey()
	if err != nil {
		return wire.GroupKey{}, err
	}
	var key [32]byte
	copy(key[:], raw)

	wrapped := make(map[[16]byte][]byte, len(members))
	for hash, member := range members {
		if len(member.PubKey) != 32 {
			continue
		}
		sealed, err := crypto.EncryptTo(member.PubKey, key[:])
		if err != nil {
			continue
		}
		wrapped[hash] = sealed
	}

	return wire.GroupKey{
		GroupID:     groupID,
		KeyID:       keyID(groupID, version, now),
		Algorithm:   algorithm,
		Key:         key,
		WrappedKeys: wrapped,
		CreatedTS:   now,
		ExpiresTS:   now.Add(rotationInterval),
		Version:     version,
		Active:      true,
	}, nil
}

// groupHash derives the spec §3 group identity:
// SHA256(group_id ∥ owner_hash ∥ name ∥ created_ts)[0..16].
func groupHash(groupID string, owner [16]byte, name string, now time.Time) [16]byte {
	buf := append([]byte(groupID), owner[:]...)
	buf = append(buf, []byte(name)...)
	buf = append(buf, []byte(now.String())...)
	return crypto.Hash16(buf)
}

func keyID(groupID string, version int, now time.Time) string {
	sum := crypto.Hash16([]byte(groupID + "/" + strconv.Itoa(version) + "/" + now.String()))
	return hex.EncodeToString(sum[:])
}

func messageID(groupID string, sender, recipient [16]byte, now time.Time) string {
	sum := crypto.Hash16(append(append([]byte(groupID+now.String()), sender[:]...), recipient[:]...))
	return hex.EncodeToString(sum[:])
}
