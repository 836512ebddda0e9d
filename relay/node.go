// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relay wires every component manager into a single runnable
// node: construction (NewNode), the background task set a running relay
// needs (Run), and the single envelope ingress path (HandleEnvelope).
package relay

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/secirc/relay/auth"
	"github.com/secirc/relay/codec"
	"github.com/secirc/relay/config"
	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/discovery"
	"github.com/secirc/relay/envelope"
	"github.com/secirc/relay/groups"
	"github.com/secirc/relay/identity"
	"github.com/secirc/relay/log"
	"github.com/secirc/relay/metrics"
	"github.com/secirc/relay/presence"
	"github.com/secirc/relay/ring"
	"github.com/secirc/relay/rotation"
	"github.com/secirc/relay/transport"
	"github.com/secirc/relay/trust"
	"github.com/secirc/relay/verify"
	"github.com/secirc/relay/wire"
)

// trustDecayPeriod paces the background DecayAll sweep. Decay itself is
// computed from elapsed wall-clock time against HalfLife, so the tick
// granularity only bounds how stale a read can be between sweeps.
const trustDecayPeriod = 30 * time.Second

// Node owns one instance of every relay-core manager and the background
// tasks that drive them.
type Node struct {
	cfg    config.Config
	keys   *crypto.KeyPair
	self   [16]byte
	logger log.Logger

	Metrics   *metrics.Metrics
	stats     *metrics.RelayMetrics
	Envelope  *envelope.Manager
	Identity  identity.Registry
	Trust     trust.Manager
	Ring      ring.Manager
	Rotation  rotation.Manager
	Verify    verify.Manager
	Sampler   *verify.Sampler
	Auth      auth.Manager
	Presence  presence.Manager
	Groups    groups.Manager
	Discovery discovery.Manager
	Transport transport.Manager
}

// NewNode constructs every manager this relay needs from cfg, ready for
// Run to start their background loops.
func NewNode(cfg config.Config, keys *crypto.KeyPair, logger log.Logger, reg prometheus.Registerer) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNoOp()
	}
	m := metrics.New(reg)
	stats, err := m.NewRelayMetrics()
	if err != nil {
		return nil, err
	}

	verifier := verify.NewManager(cfg.Verify, logger)
	n := &Node{
		cfg:       cfg,
		keys:      keys,
		self:      crypto.Hash16(keys.Signing.Public),
		logger:    logger,
		Metrics:   m,
		stats:     stats,
		Envelope:  envelope.NewManager(cfg.Envelope, logger),
		Identity:  identity.NewRegistry(logger),
		Trust:     trust.NewManager(cfg.Trust, logger),
		Ring:      ring.NewManager(cfg.Ring, logger),
		Rotation:  rotation.NewManager(cfg.Rotation, keys, logger),
		Verify:    verifier,
		Sampler:   verify.NewSampler(cfg.Verify, verifier, logger),
		Auth:      auth.NewManager(cfg.Auth, logger),
		Presence:  presence.NewManager(cfg.Presence, logger),
		Groups:    groups.NewManager(cfg.Groups, logger),
		Discovery: discovery.NewManager(cfg.Discovery, logger),
		Transport: transport.NewManager(cfg.Transport, logger),
	}

	if _, err := n.Identity.Register(n.self, keys.Signing.Public, wire.IdentityRelay); err != nil {
		return nil, err
	}
	return n, nil
}

// Run starts every background task under a single errgroup.Group keyed to
// ctx, and blocks until ctx is cancelled and each task has exited. On
// cancellation the transport manager is given a bounded grace period to
// tear down its connections.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return n.loop(gctx, n.cfg.Transport.HeartbeatInterval, n.tickHeartbeat) })
	g.Go(func() error { return n.loop(gctx, n.cfg.Presence.DeliveryLoopPeriod, n.tickPresence) })
	g.Go(func() error { return n.loop(gctx, trustDecayPeriod, n.tickTrust) })
	g.Go(func() error { return n.loop(gctx, n.cfg.Ring.HeartbeatInterval, n.tickRing) })
	g.Go(func() error { return n.loop(gctx, n.cfg.Rotation.RotationTimeout/4, n.tickRotation) })
	g.Go(func() error { return n.loop(gctx, n.cfg.Auth.ChallengeTimeout, n.tickAuth) })
	g.Go(func() error { return n.loop(gctx, n.cfg.Groups.MessageTTL/4, n.tickGroups) })
	g.Go(func() error { return n.loop(gctx, n.cfg.Discovery.LivenessProbeTimeout, n.tickDiscovery) })
	g.Go(func() error { return n.loop(gctx, n.cfg.Verify.SampleInterval, n.tickVerify) })
	g.Go(func() error { return n.loop(gctx, n.cfg.Identity.CleanupPeriod, n.tickIdentity) })
	g.Go(func() error {
		return n.loop(gctx, n.cfg.Transport.HeartbeatInterval, func(now time.Time) {
			n.Transport.Sweep(gctx, now)
		})
	})
	g.Go(func() error { return n.consumeTrustEvents(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), n.cfg.Transport.ShutdownGracePeriod)
		defer cancel()
		return n.Transport.Close(shutdownCtx)
	})

	return g.Wait()
}

// loop runs fn every interval until ctx is cancelled, bottoming out at a
// 1-second tick for any zero/negative config value rather than busy-looping.
func (n *Node) loop(ctx context.Context, interval time.Duration, fn func(now time.Time)) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			fn(now)
		}
	}
}

func (n *Node) tickHeartbeat(now time.Time) { n.Transport.Heartbeat(now) }

func (n *Node) tickPresence(now time.Time) {
	expired, stale := n.Presence.Sweep(now)
	n.stats.PresenceExpired.Add(float64(expired))
	n.stats.PresenceStaleUsers.Add(float64(stale))
	if expired > 0 || stale > 0 {
		n.logger.Info("presence sweep", log.Hash16("self", n.self))
	}
	n.deliverPending(now)
}

// deliverPending is the delivery-loop body spec §4.8 describes: pick
// each online recipient's queued messages in order, attempt delivery
// over the transport, ack on success, and record a failed attempt
// otherwise (consuming one of the message's retries). Sweep runs first
// in tickPresence, so TTL-expired messages never reach a send attempt.
func (n *Node) deliverPending(now time.Time) {
	for user, msgs := range n.Presence.Deliverable(now) {
		for _, msg := range msgs {
			err := n.sealAndSend(user, wire.TypeDatagram, deliveryPayload{
				MessageID:  msg.MessageID,
				SenderHash: msg.SenderHash,
				Type:       msg.Type,
				Ciphertext: msg.Ciphertext,
			})
			if err != nil {
				n.stats.DeliveryFailures.Inc()
				requeued, ferr := n.Presence.Fail(user, msg.MessageID, now)
				if ferr == nil && !requeued {
					n.logger.Warn("message dropped after exhausting delivery attempts",
						log.Hash16("recipient", user))
				}
				continue
			}
			if aerr := n.Presence.Ack(user, msg.MessageID); aerr == nil {
				n.stats.PresenceDelivered.Inc()
			}
		}
	}
}

func (n *Node) tickTrust(now time.Time) { n.Trust.DecayAll(now) }

func (n *Node) tickRing(now time.Time) {
	n.Ring.Sweep(now)
	n.stats.RingSize.Set(float64(len(n.Ring.Members())))
	if n.Ring.Degraded() {
		n.stats.RingDegraded.Set(1)
	} else {
		n.stats.RingDegraded.Set(0)
	}
}

func (n *Node) tickRotation(now time.Time) {
	if err := n.Rotation.Sweep(now); err != nil {
		n.stats.RotationFailures.Inc()
		n.logger.Warn("rotation sweep", log.Hash16("self", n.self))
	}
}

func (n *Node) tickAuth(now time.Time) { n.Auth.Sweep(now) }

func (n *Node) tickGroups(now time.Time) {
	n.stats.GroupsCleaned.Add(float64(n.Groups.Sweep(now)))
}

func (n *Node) tickDiscovery(now time.Time) {
	n.stats.DiscoveryDropped.Add(float64(n.Discovery.Sweep(now)))
}

func (n *Node) tickIdentity(now time.Time) {
	n.Identity.Cleanup(n.cfg.Identity.MaxIdleAge)
}

// tickVerify is the background sampler pass (spec §2: "verification and
// trust run as background samplers against the set of known relays"):
// expired probes are failed, each live discovery candidate gets a fresh
// blind probe, and accumulated verdicts are enforced — a blocked relay
// is memoized in trust and denylisted in discovery so a re-announcement
// under the same relay_id short-circuits.
func (n *Node) tickVerify(now time.Time) {
	n.Sampler.Expire(now)

	for _, cand := range n.Discovery.LiveCandidates() {
		if n.Trust.Blocked(cand.RelayID) {
			n.Discovery.Deny(cand.RelayID)
			continue
		}

		switch n.Verify.Verdict(cand.RelayID) {
		case verify.VerdictBlock:
			n.Trust.Block(cand.RelayID)
			n.Discovery.Deny(cand.RelayID)
			continue
		case verify.VerdictPromote:
			// Nothing extra to do here: forwarding admission reads the
			// trust score, which the sampler's events keep fed.
		}

		probeID, blob, err := n.Sampler.NextProbe(cand.RelayID, now)
		if err != nil {
			continue
		}
		if err := n.sealAndSend(cand.RelayID, wire.TypeVerifyProbe, verifyProbePayload{ProbeID: probeID, Blob: blob}); err != nil {
			n.logger.Debug("verification probe not sent", log.Hash16("relay", cand.RelayID))
		}
	}
}

// consumeTrustEvents folds the sampler's observations into the trust
// layer. Routing them through a channel instead of a direct call keeps
// the verify <-> trust dependency acyclic.
func (n *Node) consumeTrustEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.Sampler.Events():
			err := n.Trust.RecordEvent(trust.Event{
				Target:    ev.Relay,
				Source:    n.self,
				Component: trust.ComponentBehavior,
				Value:     ev.Value,
				Timestamp: ev.Observed,
			})
			if err != nil {
				n.logger.Warn("trust event dropped", log.Hash16("relay", ev.Relay))
			}
		}
	}
}

// HandleEnvelope is the single ingress entrypoint: it decodes raw as a
// wire.Envelope, opens it (integrity/staleness/replay), refreshes the
// sender's identity, and dispatches by type tag.
func (n *Node) HandleEnvelope(ctx context.Context, raw []byte) error {
	var env wire.Envelope
	if _, err := codec.Default.Unmarshal(raw, &env); err != nil {
		n.stats.EnvelopesRejected.Inc()
		return err
	}
	if err := n.Envelope.Open(env); err != nil {
		n.stats.EnvelopesRejected.Inc()
		return err
	}
	n.stats.EnvelopesOpened.Inc()
	_ = n.Identity.Touch(env.Sender)

	now := time.Now().UTC()
	switch env.TypeTag {
	case wire.TypeRingJoinRequest:
		var p ringJoinPayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		_, _, err := n.Ring.RequestJoin(p.Candidate, p.Signature, now)
		return err

	case wire.TypeRingChallengeResponse:
		var p ringChallengeResponsePayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return n.Ring.SubmitChallengeResponse(p.CandidateHash, p.Response)

	case wire.TypeRingProposal:
		var p ringProposalPayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return n.Ring.OpenProposal(p.ProposalID, p.CandidateHash, env.Sender, now)

	case wire.TypeRingVote:
		var p ringVotePayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		_, err := n.Ring.Vote(p.ProposalID, env.Sender, p.Yes, now)
		return err

	case wire.TypeRingHeartbeat:
		n.Ring.Heartbeat(env.Sender, now)
		return nil

	case wire.TypeKeyChangeInit:
		var p rotation.InitMessage
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		from, err := n.senderNode(env.Sender)
		if err != nil {
			return err
		}
		_, err = n.Rotation.ReceiveInit(from, p, now)
		return err

	case wire.TypeKeyChangeAck:
		var p rotation.AckMessage
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		from, err := n.senderNode(env.Sender)
		if err != nil {
			return err
		}
		return n.Rotation.ReceiveAck(from, p, now)

	case wire.TypeKeyChangeVerify:
		var p rotation.VerifyMessage
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		_, err := n.Rotation.ReceiveVerify(env.Sender, p, now)
		return err

	case wire.TypeAuthRequest:
		var p authRequestPayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return n.openAuthSession(env.Sender, p, now)

	case wire.TypeAuthResponse:
		var p authResponsePayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		status, err := n.Auth.SubmitResponse(p.SessionID, p.Response, now)
		if status == wire.AuthVerified || status == wire.AuthFailed {
			n.finishAuth(p.SessionID, status, now)
		}
		return err

	case wire.TypeGroupPost:
		var p groupPostPayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		if p.Brokered {
			_, err := n.Groups.PostServerBrokered(p.GroupID, env.Sender, p.Ciphertext, p.TTL, now)
			return err
		}
		_, err := n.Groups.PostDecentralized(p.GroupID, env.Sender, p.Ciphertexts, p.TTL, now)
		return err

	case wire.TypeMessage:
		var p messagePayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return n.deliverOrQueue(env.Sender, p, now)

	case wire.TypePresenceOnline:
		var p presenceOnlinePayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		n.Presence.GoOnline(env.Sender, p.Server, p.Session, p.PublicKey, p.Nickname, now)
		return nil

	case wire.TypePresenceOffline:
		n.Presence.GoOffline(env.Sender, now)
		return nil

	case wire.TypeRelayAnnouncement:
		var ann wire.RelayAnnouncement
		if _, err := codec.Default.Unmarshal(env.Payload, &ann); err != nil {
			return err
		}
		return n.Discovery.Intake(ann, ann.Addr, now)

	case wire.TypeHello:
		var p helloPayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		_, err := n.Identity.Register(env.Sender, p.PublicKey, p.Kind)
		return err

	case wire.TypeHeartbeat:
		n.Ring.Heartbeat(env.Sender, now)
		// A heartbeat from a logged-in user refreshes its presence too;
		// unknown users just aren't tracked yet, which is fine.
		_ = n.Presence.Heartbeat(env.Sender, now)
		return nil

	case wire.TypeRelay:
		var p relayForwardPayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return n.forward(p)

	case wire.TypeGroupKeyWrap:
		var p groupKeyWrapPayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		ttl := p.TTL
		if ttl <= 0 {
			ttl = n.cfg.Groups.KeyRotationInterval
		}
		return n.Presence.Enqueue(wire.PendingMessage{
			MessageID:     p.KeyID + "/" + wire.Hash16Hex(p.Recipient),
			SenderHash:    env.Sender,
			RecipientHash: p.Recipient,
			Type:          wire.TypeGroupKeyWrap,
			Ciphertext:    p.WrappedKey,
			TTL:           ttl,
			CreatedTS:     now,
			Status:        wire.StatusPending,
		})

	case wire.TypeVerifyProbe:
		var p verifyProbePayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		// Echo the blob back unmodified; the prober scores the round trip.
		if err := n.sealAndSend(env.Sender, wire.TypeVerifyEcho, p); err != nil {
			n.logger.Debug("verification echo not sent", log.Hash16("prober", env.Sender))
		}
		return nil

	case wire.TypeVerifyEcho:
		var p verifyProbePayload
		if _, err := codec.Default.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return n.Sampler.HandleEcho(p.ProbeID, p.Blob, now)

	default:
		return ErrUnsupportedType
	}
}

// deliverOrQueue enqueues a direct user-to-user message into the
// recipient's store-and-forward queue (presence §4.8). The queue is the
// single source of truth even for online recipients: tickPresence's
// deliverPending drains it on the next delivery-loop tick, so a message
// is never both sent inline and queued.
func (n *Node) deliverOrQueue(sender [16]byte, p messagePayload, now time.Time) error {
	id := p.MessageID
	if id == "" {
		id = directMessageID(sender, p.RecipientHash, now)
	}
	return n.Presence.Enqueue(wire.PendingMessage{
		MessageID:     id,
		SenderHash:    sender,
		RecipientHash: p.RecipientHash,
		Type:          wire.TypeMessage,
		Ciphertext:    p.Ciphertext,
		TTL:           p.TTL,
		CreatedTS:     now,
		Status:        wire.StatusPending,
	})
}

// openAuthSession handles an auth_req: register the client's key, open a
// session, issue one challenge from each of the four families, and send
// the auth_chal bundle back.
func (n *Node) openAuthSession(user [16]byte, p authRequestPayload, now time.Time) error {
	if _, err := n.Identity.Register(user, p.PublicKey, wire.IdentityUser); err != nil {
		return err
	}
	sess, err := n.Auth.CreateSession(user, n.self, p.PublicKey, now)
	if err != nil {
		return err
	}

	kinds := []wire.ChallengeKind{
		wire.ChallengeSignature,
		wire.ChallengeProofOfWork,
		wire.ChallengeTimestamp,
		wire.ChallengeNonce,
	}
	issued := make([]wire.Challenge, 0, len(kinds))
	for _, kind := range kinds {
		ch, err := n.Auth.AddChallenge(sess.SessionID, kind, now)
		if err != nil {
			return err
		}
		issued = append(issued, ch)
	}

	chal := authChallengePayload{SessionID: sess.SessionID, Challenges: issued}
	if err := n.sealAndSend(user, wire.TypeAuthChallenge, chal); err != nil {
		// The session stays open; a client on a not-yet-authenticated
		// connection retries auth_req and gets a fresh session.
		n.logger.Debug("auth challenges not sent", log.Hash16("user", user))
	}
	return nil
}

// finishAuth sends the final auth verdict and, on success, marks the user
// online and broadcasts user_online to every relay peer exactly once.
func (n *Node) finishAuth(sessionID string, status wire.AuthStatus, now time.Time) {
	sess, ok := n.Auth.Session(sessionID)
	if !ok {
		return
	}

	verdict := authVerdictPayload{SessionID: sessionID, Verified: status == wire.AuthVerified}
	if verdict.Verified && sess.SessionKey != nil {
		verdict.SessionKey = sess.SessionKey[:]
	}
	if err := n.sealAndSend(sess.UserHash, wire.TypeAuthVerdict, verdict); err != nil {
		n.logger.Debug("auth verdict not sent", log.Hash16("user", sess.UserHash))
	}
	if !verdict.Verified {
		return
	}

	var pk []byte
	if id, ok := n.Identity.Get(sess.UserHash); ok {
		pk = id.PublicKey
	}
	n.Presence.GoOnline(sess.UserHash, n.self, sessionID, pk, "", now)
	online := presenceOnlinePayload{Server: n.self, Session: sessionID, PublicKey: pk}
	if err := n.broadcastEnvelope(wire.TypePresenceOnline, online, sess.UserHash); err != nil {
		n.logger.Warn("presence broadcast failed", log.Hash16("user", sess.UserHash))
	}
}

// forward moves a relay frame one hop, gated on the next hop's trust
// admission (spec §4.6: eligible for forwarding iff overall >= low
// threshold and confidence >= min_confidence).
func (n *Node) forward(p relayForwardPayload) error {
	if n.Trust.Blocked(p.NextHop) || !n.Trust.Admit(p.NextHop) {
		return ErrForwardingDenied
	}
	return sendResultErr(n.Transport.Send(p.NextHop, p.Frame))
}

// sealEnvelope runs payload through the codec, seals it under typeTag,
// and encodes the finished envelope for the wire.
func (n *Node) sealEnvelope(typeTag wire.MessageType, payload interface{}) ([]byte, error) {
	body, err := codec.Default.Marshal(codec.CurrentVersion, payload)
	if err != nil {
		return nil, err
	}
	env, err := n.Envelope.Seal(n.self, typeTag, body)
	if err != nil {
		return nil, err
	}
	return codec.Default.Marshal(codec.CurrentVersion, env)
}

func (n *Node) sealAndSend(peer [16]byte, typeTag wire.MessageType, payload interface{}) error {
	raw, err := n.sealEnvelope(typeTag, payload)
	if err != nil {
		return err
	}
	return sendResultErr(n.Transport.Send(peer, raw))
}

func (n *Node) broadcastEnvelope(typeTag wire.MessageType, payload interface{}, exclude [16]byte) error {
	raw, err := n.sealEnvelope(typeTag, payload)
	if err != nil {
		return err
	}
	n.Transport.Broadcast(raw, exclude)
	return nil
}

func sendResultErr(res transport.SendResult) error {
	switch res {
	case transport.SendOK:
		return nil
	case transport.SendPeerUnknown:
		return transport.ErrPeerUnknown
	case transport.SendNotAuthenticated:
		return transport.ErrNotConnected
	default:
		return ErrSendFailed
	}
}

// senderNode resolves an envelope sender's hash16 to the wire.RelayNode
// shape the rotation manager needs to verify signatures against.
func (n *Node) senderNode(hash [16]byte) (wire.RelayNode, error) {
	id, ok := n.Identity.Get(hash)
	if !ok {
		return wire.RelayNode{}, ErrUnknownSender
	}
	return wire.RelayNode{Hash16: hash, PublicKey: id.PublicKey}, nil
}
