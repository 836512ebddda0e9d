// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/wire"
)

func signedAnnouncement(t *testing.T) (wire.RelayAnnouncement, *crypto.KeyPair) {
	kp, hash, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	ann := wire.RelayAnnouncement{
		RelayID:   hash,
		PublicKey: kp.Signing.Public,
		Addr:      "198.51.100.1",
		Port:      9443,
		Services:  []string{"relay"},
		Version:   "1.0.0",
	}
	ann.Signature = crypto.Sign(kp.Signing.Private, canonicalAnnouncementBytes(ann))
	return ann, kp
}

func TestIntakeAcceptsValidSignature(t *testing.T) {
	m := NewManager(config.DefaultDiscoveryConfig(), nil)
	ann, _ := signedAnnouncement(t)

	err := m.Intake(ann, "203.0.113.5", time.Now())
	require.NoError(t, err)
}

func TestIntakeRejectsBadSignature(t *testing.T) {
	m := NewManager(config.DefaultDiscoveryConfig(), nil)
	ann, _ := signedAnnouncement(t)
	ann.Addr = "198.51.100.99" // tamper after signing

	err := m.Intake(ann, "203.0.113.5", time.Now())
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestIntakeEnforcesRateLimit(t *testing.T) {
	cfg := config.DefaultDiscoveryConfig()
	cfg.RateLimitPerIP = 1
	m := NewManager(cfg, nil)
	now := time.Now()

	ann1, _ := signedAnnouncement(t)
	require.NoError(t, m.Intake(ann1, "203.0.113.5", now))

	ann2, _ := signedAnnouncement(t)
	err := m.Intake(ann2, "203.0.113.5", now)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestDeniedRelayRejectedOnIntake(t *testing.T) {
	m := NewManager(config.DefaultDiscoveryConfig(), nil)
	ann, _ := signedAnnouncement(t)
	m.Deny(ann.RelayID)

	err := m.Intake(ann, "203.0.113.5", time.Now())
	require.ErrorIs(t, err, ErrDenylisted)
}

func TestLiveCandidatesRequiresProbe(t *testing.T) {
	m := NewManager(config.DefaultDiscoveryConfig(), nil)
	ann, _ := signedAnnouncement(t)
	now := time.Now()
	require.NoError(t, m.Intake(ann, "203.0.113.5", now))
	require.Empty(t, m.LiveCandidates())

	require.NoError(t, m.RecordProbe(ann.RelayID, true, now))
	require.Len(t, m.LiveCandidates(), 1)
}

func TestSweepDropsUnprobedCandidatesAfterTimeout(t *testing.T) {
	cfg := config.DefaultDiscoveryConfig()
	cfg.LivenessProbeTimeout = time.Second
	m := NewManager(cfg, nil)
	ann, _ := signedAnnouncement(t)
	now := time.Now()
	require.NoError(t, m.Intake(ann, "203.0.113.5", now))

	dropped := m.Sweep(now.Add(time.Hour))
	require.Equal(t, 1, dropped)

	err := m.RecordProbe(ann.RelayID, true, now.Add(time.Hour))
	require.ErrorIs(t, err, ErrUnknownCandidate)
}
