// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/wire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestIdentityFileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	keys, hash, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	ids := []wire.Identity{{
		Hash16:    hash,
		PublicKey: keys.Signing.Public,
		Kind:      wire.IdentityRelay,
		CreatedAt: now,
		LastSeen:  now,
		Metadata:  map[string]string{"transport": "tor"},
	}}

	require.NoError(t, s.SaveIdentities(ids, keys.Signing.Private, "hunter2"))

	loaded, priv, err := s.LoadIdentities("hunter2")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, hash, loaded[0].Hash16)
	require.Equal(t, []byte(keys.Signing.Public), []byte(loaded[0].PublicKey))
	require.Equal(t, "tor", loaded[0].Metadata["transport"])
	require.Equal(t, []byte(keys.Signing.Private), priv)
}

func TestIdentityFileWrongPassphrase(t *testing.T) {
	s := newTestStore(t)
	keys, hash, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	ids := []wire.Identity{{Hash16: hash, PublicKey: keys.Signing.Public, Kind: wire.IdentityUser}}
	require.NoError(t, s.SaveIdentities(ids, keys.Signing.Private, "correct"))

	_, _, err = s.LoadIdentities("wrong")
	require.ErrorIs(t, err, crypto.ErrBadPassphrase)
}

func TestIdentityFileWithoutKey(t *testing.T) {
	s := newTestStore(t)
	keys, hash, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	ids := []wire.Identity{{Hash16: hash, PublicKey: keys.Signing.Public, Kind: wire.IdentityUser}}
	require.NoError(t, s.SaveIdentities(ids, nil, ""))

	loaded, priv, err := s.LoadIdentities("")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Nil(t, priv)
}

func TestContactsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.LoadContacts()
	require.NoError(t, err)
	require.Empty(t, empty)

	bob := [16]byte{1, 2, 3}
	contacts := map[[16]byte]Contact{
		bob: {PublicKey: wire.HexBytes{9, 8, 7}, Nickname: "bob"},
	}
	require.NoError(t, s.SaveContacts(contacts))

	loaded, err := s.LoadContacts()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "bob", loaded[bob].Nickname)
	require.Equal(t, wire.HexBytes{9, 8, 7}, loaded[bob].PublicKey)
}

func TestRelayCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)

	none, err := s.LoadRelayCache()
	require.NoError(t, err)
	require.Empty(t, none)

	now := time.Now().UTC().Truncate(time.Second)
	anns := []wire.RelayAnnouncement{{
		RelayID:      [16]byte{4},
		PublicKey:    []byte{1, 1, 1},
		Addr:         "203.0.113.9",
		Port:         7777,
		Services:     []string{"relay"},
		Capabilities: []string{"group_posts"},
		Uptime:       3 * time.Hour,
		LastSeen:     now,
		Version:      "0.3.1",
		Signature:    []byte{5, 5},
	}}
	require.NoError(t, s.SaveRelayCache(anns))

	loaded, err := s.LoadRelayCache()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, anns[0].RelayID, loaded[0].RelayID)
	require.Equal(t, anns[0].Addr, loaded[0].Addr)
	require.Equal(t, anns[0].Capabilities, loaded[0].Capabilities)
	require.Equal(t, []byte{5, 5}, []byte(loaded[0].Signature))
}

func TestQueueSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	bob := [16]byte{7}

	queues := map[[16]byte][]wire.PendingMessage{
		bob: {
			{MessageID: "m1", SenderHash: [16]byte{1}, RecipientHash: bob, Type: wire.TypeMessage, Ciphertext: []byte{0xaa}, TTL: time.Hour, CreatedTS: now, MaxAttempts: 3},
			{MessageID: "m2", SenderHash: [16]byte{1}, RecipientHash: bob, Type: wire.TypeMessage, Ciphertext: []byte{0xbb}, TTL: time.Hour, CreatedTS: now, Attempts: 1, MaxAttempts: 3},
		},
	}
	require.NoError(t, s.SaveQueues(queues))

	loaded, err := s.LoadQueues()
	require.NoError(t, err)
	require.Len(t, loaded[bob], 2)
	require.Equal(t, "m1", loaded[bob][0].MessageID)
	require.Equal(t, "m2", loaded[bob][1].MessageID)
	require.Equal(t, 1, loaded[bob][1].Attempts)
	require.Equal(t, wire.StatusPending, loaded[bob][0].Status)
}
