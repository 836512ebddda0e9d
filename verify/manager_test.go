// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secirc/relay/config"
)

func TestVerdictSamplingBeforeMinimumTests(t *testing.T) {
	m := NewManager(config.DefaultVerifyConfig(), nil)
	relay := [16]byte{1}
	now := time.Now().UTC()

	require.NoError(t, m.RecordSample(relay, FamilyBlindMessage, 0.9, now))
	require.Equal(t, VerdictSampling, m.Verdict(relay))
}

func TestVerdictPromotesOnHighScoreAndProof(t *testing.T) {
	m := NewManager(config.DefaultVerifyConfig(), nil)
	relay := [16]byte{1}
	now := time.Now().UTC()

	for i := 0; i < 6; i++ {
		require.NoError(t, m.RecordSample(relay, FamilyBlindMessage, 0.95, now))
		require.NoError(t, m.RecordSample(relay, FamilyRoutingAccuracy, 0.95, now))
		require.NoError(t, m.RecordSample(relay, FamilyTimingConsistency, 0.9, now))
		require.NoError(t, m.RecordSample(relay, FamilyTrafficPattern, 0.9, now))
		require.NoError(t, m.RecordSample(relay, FamilyConsensus, 0.9, now))
	}
	m.RecordProofOfRelay(relay, true)

	overall, samples, ok := m.Overall(relay)
	require.True(t, ok)
	require.Greater(t, samples, 0)
	require.Greater(t, overall, 0.7)
	require.Equal(t, VerdictPromote, m.Verdict(relay))
}

func TestVerdictWithoutProofOfRelayStaysAtSampling(t *testing.T) {
	m := NewManager(config.DefaultVerifyConfig(), nil)
	relay := [16]byte{1}
	now := time.Now().UTC()

	for i := 0; i < 6; i++ {
		require.NoError(t, m.RecordSample(relay, FamilyBlindMessage, 0.95, now))
		require.NoError(t, m.RecordSample(relay, FamilyRoutingAccuracy, 0.95, now))
		require.NoError(t, m.RecordSample(relay, FamilyTimingConsistency, 0.9, now))
		require.NoError(t, m.RecordSample(relay, FamilyTrafficPattern, 0.9, now))
		require.NoError(t, m.RecordSample(relay, FamilyConsensus, 0.9, now))
	}

	require.Equal(t, VerdictSampling, m.Verdict(relay))
}

func TestVerdictBlocksLowScore(t *testing.T) {
	m := NewManager(config.DefaultVerifyConfig(), nil)
	relay := [16]byte{1}
	now := time.Now().UTC()

	for i := 0; i < 6; i++ {
		require.NoError(t, m.RecordSample(relay, FamilyBlindMessage, 0.05, now))
		require.NoError(t, m.RecordSample(relay, FamilyRoutingAccuracy, 0.05, now))
		require.NoError(t, m.RecordSample(relay, FamilyTimingConsistency, 0.05, now))
		require.NoError(t, m.RecordSample(relay, FamilyTrafficPattern, 0.05, now))
		require.NoError(t, m.RecordSample(relay, FamilyConsensus, 0.05, now))
	}

	require.Equal(t, VerdictBlock, m.Verdict(relay))
}

func TestRecordSampleRejectsUnknownFamily(t *testing.T) {
	m := NewManager(config.DefaultVerifyConfig(), nil)
	err := m.RecordSample([16]byte{1}, Family(99), 0.5, time.Now())
	require.ErrorIs(t, err, ErrUnknownFamily)
}
