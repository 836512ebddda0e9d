// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/store"
	"github.com/secirc/relay/wire"
)

func TestSaveRestoreStateRoundTrip(t *testing.T) {
	n, _ := newTestNode(t)
	now := time.Now().UTC()

	userKeys, user, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = n.Identity.Register(user, userKeys.Signing.Public, wire.IdentityUser)
	require.NoError(t, err)
	require.NoError(t, n.Presence.Enqueue(wire.PendingMessage{
		MessageID: "m1", RecipientHash: user, Type: wire.TypeMessage,
		Ciphertext: []byte{1}, TTL: time.Hour, CreatedTS: now,
	}))

	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, n.SaveState(s, "vault pass"))

	fresh, _ := newTestNode(t)
	require.NoError(t, fresh.RestoreState(s, "vault pass", now))

	restored, ok := fresh.Identity.Get(user)
	require.True(t, ok)
	require.Equal(t, wire.IdentityUser, restored.Kind)
	require.Len(t, fresh.Presence.Pending(user), 1)
}

func TestRestoreStateFirstBoot(t *testing.T) {
	n, _ := newTestNode(t)
	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, n.RestoreState(s, "", time.Now().UTC()))
}
