// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/wire"
)

func TestEnqueueThenGoOnlineDeliversInInsertionOrder(t *testing.T) {
	cfg := config.DefaultPresenceConfig()
	m := NewManager(cfg, nil)
	user := [16]byte{1}
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		msg := wire.PendingMessage{
			MessageID:     string(rune('a' + i)),
			RecipientHash: user,
			TTL:           time.Hour,
			CreatedTS:     now,
		}
		require.NoError(t, m.Enqueue(msg))
	}

	presence, queued := m.GoOnline(user, [16]byte{9}, "sess", nil, "nick", now)
	require.Equal(t, wire.PresenceOnline, presence.Status)
	require.Len(t, queued, 3)
	require.Equal(t, "a", queued[0].MessageID)
	require.Equal(t, "b", queued[1].MessageID)
	require.Equal(t, "c", queued[2].MessageID)
}

func TestEnqueueRejectsWhenQueueFull(t *testing.T) {
	cfg := config.DefaultPresenceConfig()
	cfg.MaxPendingMessages = 1
	m := NewManager(cfg, nil)
	user := [16]byte{1}
	now := time.Now().UTC()

	require.NoError(t, m.Enqueue(wire.PendingMessage{MessageID: "a", RecipientHash: user, TTL: time.Hour, CreatedTS: now}))
	err := m.Enqueue(wire.PendingMessage{MessageID: "b", RecipientHash: user, TTL: time.Hour, CreatedTS: now})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestAckRemovesMessage(t *testing.T) {
	m := NewManager(config.DefaultPresenceConfig(), nil)
	user := [16]byte{1}
	now := time.Now().UTC()
	require.NoError(t, m.Enqueue(wire.PendingMessage{MessageID: "a", RecipientHash: user, TTL: time.Hour, CreatedTS: now}))

	require.NoError(t, m.Ack(user, "a"))
	require.Empty(t, m.Pending(user))
	require.ErrorIs(t, m.Ack(user, "a"), ErrMessageNotFound)
}

func TestFailRequeuesUntilMaxAttemptsThenDrops(t *testing.T) {
	cfg := config.DefaultPresenceConfig()
	cfg.MaxDeliveryAttempts = 2
	m := NewManager(cfg, nil)
	user := [16]byte{1}
	now := time.Now().UTC()
	require.NoError(t, m.Enqueue(wire.PendingMessage{MessageID: "a", RecipientHash: user, TTL: time.Hour, CreatedTS: now}))

	requeued, err := m.Fail(user, "a", now)
	require.NoError(t, err)
	require.True(t, requeued)
	require.Len(t, m.Pending(user), 1)

	requeued, err = m.Fail(user, "a", now)
	require.NoError(t, err)
	require.False(t, requeued)
	require.Empty(t, m.Pending(user))
}

func TestSweepDropsExpiredMessagesAndStaleOnlineUsers(t *testing.T) {
	cfg := config.DefaultPresenceConfig()
	cfg.PresenceTimeout = time.Minute
	m := NewManager(cfg, nil)
	user := [16]byte{1}
	now := time.Now().UTC()

	require.NoError(t, m.Enqueue(wire.PendingMessage{MessageID: "a", RecipientHash: user, TTL: time.Second, CreatedTS: now}))
	m.GoOnline(user, [16]byte{9}, "sess", nil, "nick", now)

	expired, stale := m.Sweep(now.Add(time.Hour))
	require.Equal(t, 1, expired)
	require.Equal(t, 1, stale)

	presence, ok := m.Presence(user)
	require.True(t, ok)
	require.Equal(t, wire.PresenceOffline, presence.Status)
}

func TestHeartbeatRejectsUnknownUser(t *testing.T) {
	m := NewManager(config.DefaultPresenceConfig(), nil)
	require.ErrorIs(t, m.Heartbeat([16]byte{1}, time.Now()), ErrUnknownUser)
}

func TestQueueSnapshotRestore(t *testing.T) {
	m := NewManager(config.DefaultPresenceConfig(), nil)
	bob := [16]byte{3}
	now := time.Now().UTC()

	require.NoError(t, m.Enqueue(wire.PendingMessage{MessageID: "m1", RecipientHash: bob, TTL: time.Hour, CreatedTS: now}))
	require.NoError(t, m.Enqueue(wire.PendingMessage{MessageID: "m2", RecipientHash: bob, TTL: time.Hour, CreatedTS: now}))

	snap := m.SnapshotQueues()
	require.Len(t, snap[bob], 2)

	fresh := NewManager(config.DefaultPresenceConfig(), nil)
	fresh.RestoreQueues(snap)
	restored := fresh.Pending(bob)
	require.Len(t, restored, 2)
	require.Equal(t, "m1", restored[0].MessageID)
	require.Equal(t, "m2", restored[1].MessageID)
}

func TestDeliverableSkipsOfflineAndExpired(t *testing.T) {
	m := NewManager(config.DefaultPresenceConfig(), nil)
	online := [16]byte{1}
	offline := [16]byte{2}
	now := time.Now().UTC()

	m.GoOnline(online, [16]byte{9}, "sess", nil, "on", now)
	require.NoError(t, m.Enqueue(wire.PendingMessage{MessageID: "live", RecipientHash: online, TTL: time.Hour, CreatedTS: now}))
	require.NoError(t, m.Enqueue(wire.PendingMessage{MessageID: "dead", RecipientHash: online, TTL: time.Second, CreatedTS: now.Add(-time.Minute)}))
	require.NoError(t, m.Enqueue(wire.PendingMessage{MessageID: "parked", RecipientHash: offline, TTL: time.Hour, CreatedTS: now}))

	due := m.Deliverable(now)
	require.Len(t, due, 1)
	require.Len(t, due[online], 1)
	require.Equal(t, "live", due[online][0].MessageID)
	require.NotContains(t, due, offline)
}
