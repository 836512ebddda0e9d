// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/transport"
	"github.com/secirc/relay/wire"
)

// The delivery loop under Run: three messages queued for an offline Bob
// stay put; once Bob is online, the next delivery-loop tick drains all
// three to the transport in insertion order and the queue reaches zero.
func TestDeliveryLoopDrainsQueueUnderRun(t *testing.T) {
	n, _ := newTestNode(t)
	st := &stubTransport{}
	n.Transport = st
	n.cfg.Presence.DeliveryLoopPeriod = 10 * time.Millisecond
	now := time.Now().UTC()

	aliceKeys, alice, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = n.Identity.Register(alice, aliceKeys.Signing.Public, wire.IdentityUser)
	require.NoError(t, err)
	bobKeys, bob, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = n.Identity.Register(bob, bobKeys.Signing.Public, wire.IdentityUser)
	require.NoError(t, err)

	sender := newTestSenderFor(alice)
	for i := 0; i < 3; i++ {
		raw := sender.seal(t, wire.TypeMessage, messagePayload{
			MessageID:     string(rune('a' + i)),
			RecipientHash: bob,
			Ciphertext:    []byte{byte(i)},
			TTL:           time.Hour,
		})
		require.NoError(t, n.HandleEnvelope(context.Background(), raw))
	}
	require.Len(t, n.Presence.Pending(bob), 3)

	// While Bob is offline a delivery pass must not touch his queue.
	n.tickPresence(now)
	require.Empty(t, st.captured())
	require.Len(t, n.Presence.Pending(bob), 3)

	n.Presence.GoOnline(bob, n.self, "sess", bobKeys.Signing.Public, "bob", now)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, n.Run(ctx))

	sends := st.captured()
	require.Len(t, sends, 3)
	for i, sent := range sends {
		require.Equal(t, bob, sent.peer)
		var p deliveryPayload
		env := decodeSent(t, sent.frame, &p)
		require.Equal(t, wire.TypeDatagram, env.TypeTag)
		require.Equal(t, wire.TypeMessage, p.Type)
		require.Equal(t, alice, p.SenderHash)
		require.Equal(t, []byte{byte(i)}, p.Ciphertext)
	}
	require.Empty(t, n.Presence.Pending(bob))
}

// A failing transport consumes one retry per tick; once the retry budget
// is spent the message is dropped rather than redelivered forever.
func TestDeliveryLoopRetriesThenDrops(t *testing.T) {
	n, _ := newTestNode(t)
	st := &stubTransport{sendResult: transport.SendIOFailure}
	n.Transport = st
	n.cfg.Presence.MaxDeliveryAttempts = 2
	now := time.Now().UTC()

	bobKeys, bob, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	n.Presence.GoOnline(bob, n.self, "sess", bobKeys.Signing.Public, "bob", now)

	require.NoError(t, n.Presence.Enqueue(wire.PendingMessage{
		MessageID:     "m1",
		SenderHash:    [16]byte{1},
		RecipientHash: bob,
		Type:          wire.TypeMessage,
		Ciphertext:    []byte{0xaa},
		TTL:           time.Hour,
		CreatedTS:     now,
		MaxAttempts:   2,
	}))

	n.tickPresence(now)
	pending := n.Presence.Pending(bob)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].Attempts)

	n.tickPresence(now.Add(time.Second))
	require.Empty(t, n.Presence.Pending(bob), "message must drop once its retry budget is spent")
	require.Empty(t, st.captured())
}

// Group key wraps queued by the ingress path ride the same delivery
// loop as direct messages.
func TestDeliveryLoopCarriesGroupKeyWraps(t *testing.T) {
	n, _ := newTestNode(t)
	st := &stubTransport{}
	n.Transport = st
	now := time.Now().UTC()

	sender, _ := newPeer(t)
	memberKeys, member, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	n.Presence.GoOnline(member, n.self, "sess", memberKeys.Signing.Public, "m", now)

	raw := newTestSenderFor(sender.Hash16).seal(t, wire.TypeGroupKeyWrap, groupKeyWrapPayload{
		GroupID:    "g1",
		KeyID:      "k1",
		Recipient:  member,
		WrappedKey: []byte{1, 2, 3},
		Version:    1,
	})
	require.NoError(t, n.HandleEnvelope(context.Background(), raw))

	n.tickPresence(now)

	sends := st.captured()
	require.Len(t, sends, 1)
	var p deliveryPayload
	decodeSent(t, sends[0].frame, &p)
	require.Equal(t, wire.TypeGroupKeyWrap, p.Type)
	require.Equal(t, []byte{1, 2, 3}, p.Ciphertext)
	require.Empty(t, n.Presence.Pending(member))
}
