// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package verify implements relay verification sampling (spec §4.6): six
// test families grading an untrusted relay using only blind traffic,
// combined with configured weights into an overall score and a
// promote/block/keep-sampling verdict.
package verify

import (
	"sync"
	"time"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/log"
)

// Family is one of the six test families spec §4.6 names.
type Family int

const (
	FamilyBlindMessage Family = iota
	FamilyRoutingAccuracy
	FamilyTimingConsistency
	FamilyTrafficPattern
	FamilyConsensus
	FamilyProofOfRelay
)

func (f Family) Valid() bool { return f >= FamilyBlindMessage && f <= FamilyProofOfRelay }

// Verdict is the policy decision a relay's accumulated samples produce.
type Verdict int

const (
	VerdictSampling Verdict = iota
	VerdictPromote
	VerdictBlock
)

func (v Verdict) String() string {
	switch v {
	case VerdictPromote:
		return "promote"
	case VerdictBlock:
		return "block"
	default:
		return "sampling"
	}
}

type familyStat struct {
	sum   float64
	count int
}

func (s *familyStat) record(score float64) {
	s.sum += score
	s.count++
}

func (s *familyStat) average() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

type relayState struct {
	stats           [FamilyProofOfRelay]*familyStat // weighted families only (indices 0..4)
	proofOfRelayOK  bool
	proofOfRelaySet bool
	totalSamples    int
	lastSample      time.Time
}

// Manager accumulates verification samples per relay and derives a
// verdict from spec §4.6's weighted-sum policy.
type Manager interface {
	// RecordSample folds one test family's score (in [0,1]) into relay's
	// running average for that family.
	RecordSample(relay [16]byte, family Family, score float64, now time.Time) error

	// RecordProofOfRelay gates promotion: a relay can never be promoted
	// until it has solved at least one proof-of-relay challenge.
	RecordProofOfRelay(relay [16]byte, passed bool)

	// Overall returns the weighted-sum score across the five weighted
	// families and the number of samples recorded so far.
	Overall(relay [16]byte) (overall float64, samples int, ok bool)

	// Verdict applies the promote/block/keep-sampling policy.
	Verdict(relay [16]byte) Verdict
}

type manager struct {
	cfg    config.VerifyConfig
	logger log.Logger

	mu   sync.RWMutex
	byID map[[16]byte]*relayState
}

// NewManager constructs an empty verification Manager.
func NewManager(cfg config.VerifyConfig, logger log.Logger) Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &manager{cfg: cfg, logger: logger, byID: make(map[[16]byte]*relayState)}
}

func (m *manager) stateFor(relay [16]byte) *relayState {
	st, ok := m.byID[relay]
	if !ok {
		st = &relayState{}
		for i := range st.stats {
			st.stats[i] = &familyStat{}
		}
		m.byID[relay] = st
	}
	return st
}

func (m *manager) RecordSample(relay [16]byte, family Family, score float64, now time.Time) error {
	if !family.Valid() {
		return ErrUnknownFamily
	}
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateFor(relay)
	st.lastSample = now
	st.totalSamples++

	if family == FamilyProofOfRelay {
		st.proofOfRelaySet = true
		st.proofOfRelayOK = score >= 0.5
		return nil
	}
	st.stats[family].record(score)
	return nil
}

func (m *manager) RecordProofOfRelay(relay [16]byte, passed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateFor(relay)
	st.proofOfRelaySet = true
	st.proofOfRelayOK = passed
	st.totalSamples++
}

func (m *manager) Overall(relay [16]byte) (float64, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.byID[relay]
	if !ok {
		return 0, 0, false
	}
	overall := m.cfg.BlindMessageWeight*st.stats[FamilyBlindMessage].average() +
		m.cfg.RoutingWeight*st.stats[FamilyRoutingAccuracy].average() +
		m.cfg.TimingWeight*st.stats[FamilyTimingConsistency].average() +
		m.cfg.TrafficWeight*st.stats[FamilyTrafficPattern].average() +
		m.cfg.ConsensusWeight*st.stats[FamilyConsensus].average()
	return overall, st.totalSamples, true
}

func (m *manager) Verdict(relay [16]byte) Verdict {
	overall, samples, ok := m.Overall(relay)
	if !ok || samples < m.cfg.MinimumTests {
		return VerdictSampling
	}
	if overall < m.cfg.BlockThreshold {
		return VerdictBlock
	}

	m.mu.RLock()
	st := m.byID[relay]
	proofOK := st.proofOfRelaySet && st.proofOfRelayOK
	m.mu.RUnlock()

	if overall >= m.cfg.PromoteThreshold && proofOK {
		return VerdictPromote
	}
	return VerdictSampling
}
