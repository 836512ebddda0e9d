// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/wire"
)

func newTestManager() *Manager {
	return NewManager(config.DefaultEnvelopeConfig(), nil)
}

func TestSealOpenRoundTrip(t *testing.T) {
	m := newTestManager()
	sender := [16]byte{1, 2, 3}

	env, err := m.Seal(sender, wire.TypeDatagram, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), env.Sequence)

	require.NoError(t, m.Open(env))
}

func TestSealRejectsUnknownType(t *testing.T) {
	m := newTestManager()
	_, err := m.Seal([16]byte{1}, wire.TypeUnknown, []byte("x"))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestOpenRejectsTamperedPayload(t *testing.T) {
	m := newTestManager()
	env, err := m.Seal([16]byte{1}, wire.TypeRelay, []byte("original"))
	require.NoError(t, err)

	env.Payload = []byte("tampered")
	env.PayloadLen = uint32(len(env.Payload))
	require.ErrorIs(t, m.Open(env), ErrBadIntegrity)
}

func TestOpenRejectsReplay(t *testing.T) {
	m := newTestManager()
	env, err := m.Seal([16]byte{1}, wire.TypeRelay, []byte("once"))
	require.NoError(t, err)

	require.NoError(t, m.Open(env))
	require.ErrorIs(t, m.Open(env), ErrReplay)
}

func TestOpenRejectsStale(t *testing.T) {
	cfg := config.DefaultEnvelopeConfig()
	cfg.MaxMessageAge = time.Second
	m := NewManager(cfg, nil)

	env, err := m.Seal([16]byte{1}, wire.TypeRelay, []byte("late"))
	require.NoError(t, err)
	env.Timestamp = env.Timestamp.Add(-time.Hour)
	env.IntegrityHash = integrityHash(env)

	require.ErrorIs(t, m.Open(env), ErrStale)
}

func TestReplayWindowEvictsOldest(t *testing.T) {
	cfg := config.DefaultEnvelopeConfig()
	cfg.ReplayWindowSize = 2
	m := NewManager(cfg, nil)
	sender := [16]byte{9}

	var envs []wire.Envelope
	for i := 0; i < 3; i++ {
		env, err := m.Seal(sender, wire.TypeDatagram, []byte("msg"))
		require.NoError(t, err)
		envs = append(envs, env)
		require.NoError(t, m.Open(env))
	}

	// The oldest sequence number should have been evicted, so replaying
	// it is indistinguishable from a fresh sequence number and succeeds.
	require.NoError(t, m.Open(envs[0]))
}

func TestClassify(t *testing.T) {
	require.Equal(t, KindReplay, Classify(ErrReplay))
	require.Equal(t, KindStale, Classify(ErrStale))
	require.Equal(t, KindNone, Classify(nil))
}
