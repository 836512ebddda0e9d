// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/wire"
)

func newCandidate(t *testing.T) (wire.RelayNode, *crypto.KeyPair) {
	kp, hash, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return wire.RelayNode{Hash16: hash, PublicKey: kp.Signing.Public}, kp
}

func TestBootstrapThenJoinFlow(t *testing.T) {
	m := NewManager(config.DefaultRingConfig(), nil)
	now := time.Now().UTC()

	founder, _ := newCandidate(t)
	require.NoError(t, m.Bootstrap(founder, now))
	require.Len(t, m.Members(), 1)

	candidate, candKP := newCandidate(t)
	sig := crypto.Sign(candKP.Signing.Private, candidate.Hash16[:])

	challengeRequired, challenge, err := m.RequestJoin(candidate, sig, now)
	require.NoError(t, err)
	require.True(t, challengeRequired)

	resp := wire.ChallengeResponse{
		ChallengeID: challenge.ID,
		Data:        crypto.Sign(candKP.Signing.Private, challenge.Blob),
	}
	require.NoError(t, m.SubmitChallengeResponse(candidate.Hash16, resp))

	require.NoError(t, m.OpenProposal("p1", candidate.Hash16, founder.Hash16, now))

	admitted, err := m.Vote("p1", founder.Hash16, true, now)
	require.NoError(t, err)
	require.True(t, admitted)
	require.Len(t, m.Members(), 2)
}

func TestRequestJoinRejectsBadSignature(t *testing.T) {
	m := NewManager(config.DefaultRingConfig(), nil)
	now := time.Now().UTC()
	founder, _ := newCandidate(t)
	require.NoError(t, m.Bootstrap(founder, now))

	candidate, _ := newCandidate(t)
	_, _, err := m.RequestJoin(candidate, []byte("not a signature"), now)
	require.ErrorIs(t, err, ErrInvalidJoinSignature)
}

func TestVoteRejectsNonMember(t *testing.T) {
	m := NewManager(config.DefaultRingConfig(), nil)
	now := time.Now().UTC()
	founder, _ := newCandidate(t)
	require.NoError(t, m.Bootstrap(founder, now))

	candidate, candKP := newCandidate(t)
	sig := crypto.Sign(candKP.Signing.Private, candidate.Hash16[:])
	_, challenge, err := m.RequestJoin(candidate, sig, now)
	require.NoError(t, err)
	resp := wire.ChallengeResponse{Data: crypto.Sign(candKP.Signing.Private, challenge.Blob)}
	require.NoError(t, m.SubmitChallengeResponse(candidate.Hash16, resp))
	require.NoError(t, m.OpenProposal("p1", candidate.Hash16, founder.Hash16, now))

	stranger, _ := newCandidate(t)
	_, err = m.Vote("p1", stranger.Hash16, true, now)
	require.ErrorIs(t, err, ErrNotAMember)
}

func TestProposalExpires(t *testing.T) {
	cfg := config.DefaultRingConfig()
	cfg.ProposalTTL = time.Second
	m := NewManager(cfg, nil)
	now := time.Now().UTC()
	founder, _ := newCandidate(t)
	require.NoError(t, m.Bootstrap(founder, now))

	candidate, candKP := newCandidate(t)
	sig := crypto.Sign(candKP.Signing.Private, candidate.Hash16[:])
	_, challenge, err := m.RequestJoin(candidate, sig, now)
	require.NoError(t, err)
	resp := wire.ChallengeResponse{Data: crypto.Sign(candKP.Signing.Private, challenge.Blob)}
	require.NoError(t, m.SubmitChallengeResponse(candidate.Hash16, resp))
	require.NoError(t, m.OpenProposal("p1", candidate.Hash16, founder.Hash16, now))

	_, err = m.Vote("p1", founder.Hash16, true, now.Add(time.Hour))
	require.ErrorIs(t, err, ErrProposalExpired)
}

func TestSweepDegradesRingBelowMinSize(t *testing.T) {
	cfg := config.DefaultRingConfig()
	cfg.HeartbeatTimeout = time.Second
	cfg.RemovalGracePeriod = time.Second
	m := NewManager(cfg, nil)
	now := time.Now().UTC()
	founder, _ := newCandidate(t)
	require.NoError(t, m.Bootstrap(founder, now))
	require.False(t, m.Degraded())

	m.Sweep(now.Add(time.Hour))
	m.Sweep(now.Add(2 * time.Hour))
	require.True(t, m.Degraded())
	require.Empty(t, m.Members())
}
