// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/wire"
)

func TestRegisterRejectsMismatchedHash(t *testing.T) {
	r := NewRegistry(nil)
	kp, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	_, err = r.Register([16]byte{0xFF}, kp.Signing.Public, wire.IdentityUser)
	require.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	kp, hash, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	first, err := r.Register(hash, kp.Signing.Public, wire.IdentityUser)
	require.NoError(t, err)
	second, err := r.Register(hash, kp.Signing.Public, wire.IdentityUser)
	require.NoError(t, err)

	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.Equal(t, 1, r.Len())
}

func TestTouchUpdatesLastSeen(t *testing.T) {
	r := NewRegistry(nil)
	kp, hash, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = r.Register(hash, kp.Signing.Public, wire.IdentityUser)
	require.NoError(t, err)

	before, _ := r.Get(hash)
	time.Sleep(time.Millisecond)
	require.NoError(t, r.Touch(hash))
	after, _ := r.Get(hash)

	require.True(t, after.LastSeen.After(before.LastSeen))
}

func TestTouchUnknownFails(t *testing.T) {
	r := NewRegistry(nil)
	require.ErrorIs(t, r.Touch([16]byte{1}), ErrNotFound)
}

func TestCleanupEvictsIdle(t *testing.T) {
	r := NewRegistry(nil)
	kp, hash, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = r.Register(hash, kp.Signing.Public, wire.IdentityUser)
	require.NoError(t, err)

	require.Equal(t, 0, r.Cleanup(time.Hour))
	require.Equal(t, 1, r.Cleanup(0))
	require.Equal(t, 0, r.Len())
}

func TestSetMetadataEnforcesCap(t *testing.T) {
	r := NewRegistry(nil)
	kp, hash, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = r.Register(hash, kp.Signing.Public, wire.IdentityUser)
	require.NoError(t, err)

	require.NoError(t, r.SetMetadata(hash, map[string]string{"transport": "tor"}))

	tooMany := make(map[string]string, wire.MaxMetadataKeys+1)
	for i := 0; i <= wire.MaxMetadataKeys; i++ {
		tooMany[string(rune('a'+i))] = "v"
	}
	require.ErrorIs(t, r.SetMetadata(hash, tooMany), wire.ErrMetadataCapExceeded)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	r := NewRegistry(nil)
	kp1, hash1, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	kp2, hash2, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = r.Register(hash1, kp1.Signing.Public, wire.IdentityUser)
	require.NoError(t, err)
	_, err = r.Register(hash2, kp2.Signing.Public, wire.IdentityRelay)
	require.NoError(t, err)

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	fresh := NewRegistry(nil)
	require.Zero(t, fresh.Restore(snap))
	require.Equal(t, 2, fresh.Len())

	restored, ok := fresh.Get(hash1)
	require.True(t, ok)
	require.Equal(t, wire.IdentityUser, restored.Kind)
}

func TestRestoreSkipsBrokenBindings(t *testing.T) {
	r := NewRegistry(nil)
	kp, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	forged := wire.Identity{Hash16: [16]byte{0xbb}, PublicKey: kp.Signing.Public, Kind: wire.IdentityUser}
	require.Equal(t, 1, r.Restore([]wire.Identity{forged}))
	require.Zero(t, r.Len())
}
