// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package verify

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/log"
)

// TrustEvent is emitted on the sampler's event channel after every scored
// probe, so the trust layer folds observations in without a direct call
// between the two packages. The value is signed: positive for a faithful
// echo, negative for a corrupted or timed-out one.
type TrustEvent struct {
	Relay    [16]byte
	Value    float64
	Observed time.Time
}

type outstandingProbe struct {
	relay  [16]byte
	blob   []byte
	sentAt time.Time
}

// Sampler drives blind-message probes against untrusted relays. It mints
// opaque probe blobs, correlates echoes back to their probe, scores the
// blind-message and timing-consistency families on the owning Manager,
// and expires unanswered probes as failures. The sampler never sees
// plaintext user traffic; a probe blob is random bytes the tested relay
// cannot distinguish from a routed ciphertext.
type Sampler struct {
	cfg    config.VerifyConfig
	mgr    Manager
	logger log.Logger

	mu          sync.Mutex
	outstanding map[string]outstandingProbe
	events      chan TrustEvent
}

// NewSampler constructs a Sampler feeding samples into mgr.
func NewSampler(cfg config.VerifyConfig, mgr Manager, logger log.Logger) *Sampler {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Sampler{
		cfg:         cfg,
		mgr:         mgr,
		logger:      logger,
		outstanding: make(map[string]outstandingProbe),
		events:      make(chan TrustEvent, 64),
	}
}

// NextProbe mints a probe against relay: a random id and an opaque
// 32-byte blob the relay must echo back byte-for-byte. The caller is
// responsible for delivering the blob; the sampler only tracks it.
func (s *Sampler) NextProbe(relay [16]byte, now time.Time) (probeID string, blob []byte, err error) {
	idRaw := make([]byte, 16)
	if _, err := rand.Read(idRaw); err != nil {
		return "", nil, err
	}
	blob = make([]byte, 32)
	if _, err := rand.Read(blob); err != nil {
		return "", nil, err
	}
	probeID = hex.EncodeToString(idRaw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.outstanding[probeID] = outstandingProbe{relay: relay, blob: blob, sentAt: now}
	return probeID, blob, nil
}

// Outstanding reports the number of probes still waiting for an echo.
func (s *Sampler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding)
}

// HandleEcho scores an echoed probe. A byte-identical echo scores the
// blind-message family 1 and the timing family by how much of the probe
// timeout the round trip consumed; a corrupted echo scores blind 0.
func (s *Sampler) HandleEcho(probeID string, blob []byte, now time.Time) error {
	s.mu.Lock()
	p, ok := s.outstanding[probeID]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownProbe
	}
	delete(s.outstanding, probeID)
	s.mu.Unlock()

	faithful := bytes.Equal(p.blob, blob)

	blindScore := 0.0
	if faithful {
		blindScore = 1.0
	}
	if err := s.mgr.RecordSample(p.relay, FamilyBlindMessage, blindScore, now); err != nil {
		return err
	}

	latency := now.Sub(p.sentAt)
	timingScore := 1 - float64(latency)/float64(s.cfg.ProbeTimeout)
	if timingScore < 0 {
		timingScore = 0
	}
	if err := s.mgr.RecordSample(p.relay, FamilyTimingConsistency, timingScore, now); err != nil {
		return err
	}

	value := 0.5
	if !faithful {
		value = -0.9
		s.logger.Warn("relay echoed corrupted probe", log.Hash16("relay", p.relay))
	}
	s.emit(TrustEvent{Relay: p.relay, Value: value, Observed: now})
	return nil
}

// Expire fails every probe older than the probe timeout, scoring the
// blind-message family 0 for its relay, and returns how many expired.
func (s *Sampler) Expire(now time.Time) int {
	s.mu.Lock()
	var lapsed []outstandingProbe
	for id, p := range s.outstanding {
		if now.Sub(p.sentAt) > s.cfg.ProbeTimeout {
			lapsed = append(lapsed, p)
			delete(s.outstanding, id)
		}
	}
	s.mu.Unlock()

	for _, p := range lapsed {
		_ = s.mgr.RecordSample(p.relay, FamilyBlindMessage, 0, now)
		s.emit(TrustEvent{Relay: p.relay, Value: -0.5, Observed: now})
	}
	return len(lapsed)
}

// Events is the bounded channel trust-facing observations arrive on.
func (s *Sampler) Events() <-chan TrustEvent {
	return s.events
}

// emit pushes ev without blocking: when the channel is full the oldest
// queued event is dropped, logged as a queue overflow.
func (s *Sampler) emit(ev TrustEvent) {
	for {
		select {
		case s.events <- ev:
			return
		default:
			select {
			case <-s.events:
				s.logger.Warn("queue_overflow: dropped oldest verification trust event")
			default:
			}
		}
	}
}
