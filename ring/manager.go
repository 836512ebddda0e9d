// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ring implements first-ring membership (spec §4.4): the set of
// mutually-authenticated relays acting as the trust anchor. Joining goes
// through a signed request, a challenge/response, and a consensus
// proposal requiring a quorum of yes-votes from current members.
package ring

import (
	"crypto/rand"
	"crypto/sha256"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/log"
	"github.com/secirc/relay/wire"
)

// pendingCandidate tracks a join in flight: a challenge has been issued
// but not necessarily answered yet.
type pendingCandidate struct {
	node      wire.RelayNode
	challenge wire.Challenge
	passed    bool
}

// proposal is an open add_member vote.
type proposal struct {
	id        string
	candidate wire.RelayNode
	proposer  [16]byte
	votes     map[[16]byte]bool
	createdAt time.Time
}

// Manager owns first-ring membership state for one node's view of the
// ring. Every ring member runs its own Manager and they converge through
// the broadcast ring-update / consensus vote messages (carried over the
// transport package, outside this package's scope).
type Manager interface {
	// Bootstrap seeds an empty ring with the first node, used exactly
	// once when no ring exists yet.
	Bootstrap(self wire.RelayNode, now time.Time) error

	// RequestJoin handles an incoming ring_join_request. sig must verify
	// over the candidate's hash16 under its long-term public key. If the
	// ring is empty this bootstraps; otherwise a challenge is issued and
	// challengeRequired is true.
	RequestJoin(candidate wire.RelayNode, sig []byte, now time.Time) (challengeRequired bool, challenge wire.Challenge, err error)

	// SubmitChallengeResponse verifies a candidate's answer to its issued
	// challenge, marking it eligible for a consensus proposal on success.
	SubmitChallengeResponse(candidateHash [16]byte, resp wire.ChallengeResponse) error

	// OpenProposal opens an add_member consensus proposal for a candidate
	// that has already passed its challenge. Concurrent duplicate
	// proposals for the same candidate are rejected in favor of whichever
	// proposal id sorts first lexicographically.
	OpenProposal(id string, candidateHash [16]byte, proposer [16]byte, now time.Time) error

	// Vote records one member's yes/no vote. Once yes-votes reach the
	// configured quorum fraction of current membership, the candidate is
	// admitted and the proposal is closed.
	Vote(id string, voter [16]byte, yes bool, now time.Time) (admitted bool, err error)

	// Heartbeat records a liveness ping from member.
	Heartbeat(member [16]byte, now time.Time)

	// Sweep marks members that missed heartbeat_timeout inactive, removes
	// ones that have been inactive past the removal grace period, and
	// recomputes Degraded.
	Sweep(now time.Time)

	Members() []wire.FirstRingMember
	Degraded() bool
}

type manager struct {
	cfg    config.RingConfig
	logger log.Logger

	mu         sync.RWMutex
	members    map[[16]byte]*wire.FirstRingMember
	inactiveAt map[[16]byte]time.Time
	pending    map[[16]byte]*pendingCandidate
	proposals  map[string]*proposal
	degraded   bool
}

// NewManager constructs an empty ring Manager.
func NewManager(cfg config.RingConfig, logger log.Logger) Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &manager{
		cfg:        cfg,
		logger:     logger,
		members:    make(map[[16]byte]*wire.FirstRingMember),
		inactiveAt: make(map[[16]byte]time.Time),
		pending:    make(map[[16]byte]*pendingCandidate),
		proposals:  make(map[string]*proposal),
	}
}

func (m *manager) Bootstrap(self wire.RelayNode, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.members) != 0 {
		return nil
	}
	self.IsFirstRing = true
	m.members[self.Hash16] = &wire.FirstRingMember{
		RelayNode:   self,
		JoinTS:      now,
		HeartbeatTS: now,
	}
	return nil
}

func (m *manager) RequestJoin(candidate wire.RelayNode, sig []byte, now time.Time) (bool, wire.Challenge, error) {
	if !crypto.Verify(candidate.PublicKey, candidate.Hash16[:], sig) {
		return false, wire.Challenge{}, ErrInvalidJoinSignature
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.members) == 0 {
		candidate.IsFirstRing = true
		m.members[candidate.Hash16] = &wire.FirstRingMember{RelayNode: candidate, JoinTS: now, HeartbeatTS: now}
		return false, wire.Challenge{}, nil
	}
	if len(m.members) >= m.cfg.MaxRingSize {
		return false, wire.Challenge{}, ErrRingFull
	}
	if m.degraded {
		return false, wire.Challenge{}, ErrDegraded
	}

	blob := make([]byte, 32)
	if _, err := rand.Read(blob); err != nil {
		return false, wire.Challenge{}, err
	}
	ch := wire.Challenge{
		ID:       candidateChallengeID(candidate.Hash16, now),
		Kind:     wire.ChallengeSignature,
		Blob:     blob,
		IssuedTS: now,
	}
	m.pending[candidate.Hash16] = &pendingCandidate{node: candidate, challenge: ch}
	return true, ch, nil
}

func (m *manager) SubmitChallengeResponse(candidateHash [16]byte, resp wire.ChallengeResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.pending[candidateHash]
	if !ok {
		return ErrNoPendingChallenge
	}

	var ok2 bool
	switch pc.challenge.Kind {
	case wire.ChallengeProofOfWork:
		ok2 = proofOfWorkValid(pc.challenge.Blob, resp.Data, pc.challenge.Difficulty)
	default: // wire.ChallengeSignature
		ok2 = crypto.Verify(pc.node.PublicKey, pc.challenge.Blob, resp.Data)
	}
	if !ok2 {
		return ErrChallengeFailed
	}
	pc.passed = true
	return nil
}

func (m *manager) OpenProposal(id string, candidateHash [16]byte, proposer [16]byte, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.pending[candidateHash]
	if !ok || !pc.passed {
		return ErrNoPendingChallenge
	}

	for _, p := range m.proposals {
		if p.candidate.Hash16 == candidateHash {
			if p.id <= id {
				return ErrDuplicateProposal
			}
			// The new id sorts first; the old one loses the tie-break.
			delete(m.proposals, p.id)
		}
	}

	m.proposals[id] = &proposal{
		id:        id,
		candidate: pc.node,
		proposer:  proposer,
		votes:     make(map[[16]byte]bool),
		createdAt: now,
	}
	return nil
}

func (m *manager) Vote(id string, voter [16]byte, yes bool, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return false, ErrProposalNotFound
	}
	if now.Sub(p.createdAt) > m.cfg.ProposalTTL {
		delete(m.proposals, id)
		return false, ErrProposalExpired
	}
	if _, isMember := m.members[voter]; !isMember {
		return false, ErrNotAMember
	}
	if _, voted := p.votes[voter]; voted {
		return false, ErrAlreadyVoted
	}
	p.votes[voter] = yes

	yesCount := 0
	for _, v := range p.votes {
		if v {
			yesCount++
		}
	}
	total := len(m.members)
	if total == 0 || float64(yesCount)/float64(total) < m.cfg.QuorumFraction {
		return false, nil
	}

	candidate := p.candidate
	candidate.IsFirstRing = true
	m.members[candidate.Hash16] = &wire.FirstRingMember{
		RelayNode:   candidate,
		JoinTS:      now,
		HeartbeatTS: now,
	}
	delete(m.pending, candidate.Hash16)
	delete(m.proposals, id)
	m.logger.Info("ring admitted new member", log.Hash16("relay", candidate.Hash16))
	return true, nil
}

func (m *manager) Heartbeat(member [16]byte, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.members[member]; ok {
		mem.HeartbeatTS = now
		delete(m.inactiveAt, member)
	}
}

func (m *manager) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for hash, mem := range m.members {
		if now.Sub(mem.HeartbeatTS) <= m.cfg.HeartbeatTimeout {
			continue
		}
		since, marked := m.inactiveAt[hash]
		if !marked {
			m.inactiveAt[hash] = now
			continue
		}
		if now.Sub(since) > m.cfg.RemovalGracePeriod {
			delete(m.members, hash)
			delete(m.inactiveAt, hash)
			m.logger.Warn("ring member removed after grace period", log.Hash16("relay", hash))
		}
	}

	active := len(m.members)
	m.degraded = active < m.cfg.MinRingSize
}

func (m *manager) Members() []wire.FirstRingMember {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]wire.FirstRingMember, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, *mem)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Hash16[:]) < string(out[j].Hash16[:])
	})
	return out
}

func (m *manager) Degraded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.degraded
}

func candidateChallengeID(hash [16]byte, now time.Time) string {
	h := sha256.Sum256(append(append([]byte{}, hash[:]...), []byte(now.String())...))
	return string(h[:8])
}

func proofOfWorkValid(challenge, nonce []byte, difficulty int) bool {
	sum := sha256.Sum256(append(append([]byte{}, challenge...), nonce...))
	return leadingZeroBits(sum[:]) >= difficulty
}

func leadingZeroBits(b []byte) int {
	count := 0
	for _, by := range b {
		if by == 0 {
			count += 8
			continue
		}
		count += bits.LeadingZeros8(by)
		break
	}
	return count
}
