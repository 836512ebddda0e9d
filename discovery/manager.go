// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package discovery implements relay candidate intake (spec §4.10):
// signature-checked RelayAnnouncement intake, per-source-IP rate
// limiting, a denylist short-circuit, and the bookkeeping a liveness
// probe and the verification pipeline (package verify) need around a
// candidate before it's handed to the ring for admission.
package discovery

import (
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/log"
	"github.com/secirc/relay/wire"
)

type rateWindow struct {
	start time.Time
	count int
}

type candidate struct {
	ann      wire.RelayAnnouncement
	probed   bool
	alive    bool
	intakeTS time.Time
}

// Manager tracks relay candidates from first sighting through a passed
// liveness probe, ready for ring admission.
type Manager interface {
	// Intake validates ann's signature, checks the denylist and the
	// sourceIP rate limit, then records or refreshes the candidate.
	Intake(ann wire.RelayAnnouncement, sourceIP string, now time.Time) error

	// RecordProbe records a liveness probe's outcome for relayID.
	RecordProbe(relayID [16]byte, alive bool, now time.Time) error

	// Deny adds relayID to the denylist and drops any pending candidate.
	Deny(relayID [16]byte)
	Denied(relayID [16]byte) bool

	// LiveCandidates returns every candidate whose latest liveness probe
	// succeeded, ready for verification/ring admission. Probed candidates
	// are not expired by Sweep; they stay until Deny removes them.
	LiveCandidates() []wire.RelayAnnouncement

	// Sweep drops candidates that have sat unprobed past
	// cfg.LivenessProbeTimeout and expires stale rate-limit windows.
	Sweep(now time.Time) int
}

type manager struct {
	cfg    config.DiscoveryConfig
	logger log.Logger

	mu        sync.Mutex
	denylist  map[[16]byte]struct{}
	byID      map[[16]byte]*candidate
	byIP      map[string]*rateWindow
}

// NewManager constructs an empty discovery Manager.
func NewManager(cfg config.DiscoveryConfig, logger log.Logger) Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &manager{
		cfg:      cfg,
		logger:   logger,
		denylist: make(map[[16]byte]struct{}),
		byID:     make(map[[16]byte]*candidate),
		byIP:     make(map[string]*rateWindow),
	}
}

func (m *manager) Intake(ann wire.RelayAnnouncement, sourceIP string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, denied := m.denylist[ann.RelayID]; denied {
		return ErrDenylisted
	}
	if !m.allowLocked(sourceIP, now) {
		return ErrRateLimited
	}
	if !crypto.Verify(ann.PublicKey, canonicalAnnouncementBytes(ann), ann.Signature) {
		return ErrBadSignature
	}

	if c, exists := m.byID[ann.RelayID]; exists {
		c.ann = ann
		c.intakeTS = now
		return nil
	}
	m.byID[ann.RelayID] = &candidate{ann: ann, intakeTS: now}
	m.logger.Info("relay candidate announced", log.Hash16("relay", ann.RelayID))
	return nil
}

func (m *manager) allowLocked(sourceIP string, now time.Time) bool {
	w, ok := m.byIP[sourceIP]
	if !ok || now.Sub(w.start) > m.cfg.RateLimitWindow {
		m.byIP[sourceIP] = &rateWindow{start: now, count: 1}
		return true
	}
	if w.count >= m.cfg.RateLimitPerIP {
		return false
	}
	w.count++
	return true
}

func (m *manager) RecordProbe(relayID [16]byte, alive bool, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[relayID]
	if !ok {
		return ErrUnknownCandidate
	}
	c.probed = true
	c.alive = alive
	c.ann.LastSeen = now
	return nil
}

func (m *manager) Deny(relayID [16]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denylist[relayID] = struct{}{}
	delete(m.byID, relayID)
}

func (m *manager) Denied(relayID [16]byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, denied := m.denylist[relayID]
	return denied
}

func (m *manager) LiveCandidates() []wire.RelayAnnouncement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wire.RelayAnnouncement, 0, len(m.byID))
	for _, c := range m.byID {
		if c.probed && c.alive {
			out = append(out, c.ann)
		}
	}
	return out
}

func (m *manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for id, c := range m.byID {
		if !c.probed && now.Sub(c.intakeTS) > m.cfg.LivenessProbeTimeout {
			delete(m.byID, id)
			dropped++
		}
	}
	for ip, w := range m.byIP {
		if now.Sub(w.start) > m.cfg.RateLimitWindow {
			delete(m.byIP, ip)
		}
	}
	return dropped
}

// canonicalAnnouncementBytes is the fixed-order byte encoding a relay
// signs over: identity and reachability fields only, never the mutable
// LastSeen/Uptime so a stale resend still verifies.
func canonicalAnnouncementBytes(ann wire.RelayAnnouncement) []byte {
	port := make([]byte, 2)
	binary.BigEndian.PutUint16(port, ann.Port)

	buf := make([]byte, 0, 16+len(ann.Addr)+2+len(ann.Version)+32)
	buf = append(buf, ann.RelayID[:]...)
	buf = append(buf, []byte(ann.Addr)...)
	buf = append(buf, port...)
	buf = append(buf, []byte(strings.Join(ann.Services, ","))...)
	buf = append(buf, []byte(strings.Join(ann.Capabilities, ","))...)
	buf = append(buf, []byte(ann.Version)...)
	return buf
}
