// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport implements the connection fan-out manager (spec §4.3):
// a per-peer state machine (Disconnected -> Connecting -> Connected ->
// Authenticated, with Failed/Reconnecting on the way back), heartbeat and
// exponential-backoff reconnect, and send/broadcast contracts layered over
// three transport families (direct TCP/TLS, SOCKS-over-Tor, WebSocket).
// Raw listening sockets are out of scope; the Manager only dials out
// through the Dialer interface.
package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/log"
)

// PeerState is a connection's position in spec §4.3's state machine.
type PeerState int

const (
	StateDisconnected PeerState = iota
	StateConnecting
	StateConnected
	StateAuthenticated
	StateFailed
	StateReconnecting
)

func (s PeerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// SendResult is the outcome of a Send/Broadcast attempt, matching spec
// §4.3's `ok|peer_unknown|not_authenticated|io` contract.
type SendResult int

const (
	SendOK SendResult = iota
	SendPeerUnknown
	SendNotAuthenticated
	SendIOFailure
)

type peerRecord struct {
	id       [16]byte
	dialer   Dialer
	host     string
	port     int
	priority int

	state            PeerState
	conn             connCloser
	missedHeartbeats int
	retryAttempts    int
	nextRetry        time.Time
}

// connCloser is the subset of io.ReadWriteCloser the manager uses; named
// separately so tests can swap in a fake without importing io directly.
type connCloser interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}

// Manager maintains outgoing connections to a bounded set of peers.
type Manager interface {
	Add(peer [16]byte, dialer Dialer, host string, port int, priority int) error
	Remove(peer [16]byte)
	State(peer [16]byte) (PeerState, bool)

	// Connect dials peer and transitions it to Connected on success.
	Connect(ctx context.Context, peer [16]byte) error

	// MarkAuthenticated transitions a Connected peer to Authenticated,
	// the precondition Send checks for.
	MarkAuthenticated(peer [16]byte) error

	Send(peer [16]byte, msg []byte) SendResult
	Broadcast(msg []byte, exclude [16]byte) map[[16]byte]SendResult

	// Heartbeat pings every Authenticated peer; peers missing
	// cfg.HeartbeatMisses consecutive heartbeats transition to Failed.
	Heartbeat(now time.Time)

	// Sweep advances Failed peers through exponential-backoff
	// reconnect attempts, capped at cfg.MaxRetryAttempts.
	Sweep(ctx context.Context, now time.Time)

	// Close tears down every connection within cfg.ShutdownGracePeriod.
	Close(ctx context.Context) error

	ConnectedCount() int
}

type manager struct {
	cfg    config.TransportConfig
	logger log.Logger

	mu   sync.Mutex
	byID map[[16]byte]*peerRecord
}

// NewManager constructs an empty transport Manager.
func NewManager(cfg config.TransportConfig, logger log.Logger) Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &manager{cfg: cfg, logger: logger, byID: make(map[[16]byte]*peerRecord)}
}

func (m *manager) Add(peer [16]byte, dialer Dialer, host string, port int, priority int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[peer]; exists {
		return ErrPeerExists
	}
	m.byID[peer] = &peerRecord{id: peer, dialer: dialer, host: host, port: port, priority: priority, state: StateDisconnected}
	return nil
}

func (m *manager) Remove(peer [16]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[peer]; ok && p.conn != nil {
		p.conn.Close()
	}
	delete(m.byID, peer)
}

func (m *manager) State(peer [16]byte) (PeerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[peer]
	if !ok {
		return StateDisconnected, false
	}
	return p.state, true
}

func (m *manager) connectedCountLocked() int {
	n := 0
	for _, p := range m.byID {
		if p.state == StateConnected || p.state == StateAuthenticated {
			n++
		}
	}
	return n
}

func (m *manager) ConnectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectedCountLocked()
}

func (m *manager) Connect(ctx context.Context, peer [16]byte) error {
	m.mu.Lock()
	p, ok := m.byID[peer]
	if !ok {
		m.mu.Unlock()
		return ErrPeerUnknown
	}
	if m.connectedCountLocked() >= m.cfg.MaxConnections {
		m.mu.Unlock()
		return ErrAtCapacity
	}
	p.state = StateConnecting
	dialer, host, port := p.dialer, p.host, p.port
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectionTimeout)
	defer cancel()
	conn, err := dialer.Dial(dialCtx, host, port)

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok = m.byID[peer]
	if !ok {
		if conn != nil {
			conn.Close()
		}
		return ErrPeerUnknown
	}
	if err != nil {
		p.state = StateFailed
		return err
	}
	p.conn = conn
	p.state = StateConnected
	p.missedHeartbeats = 0
	p.retryAttempts = 0
	m.logger.Info("peer connected", log.Hash16("peer", peer))
	return nil
}

func (m *manager) MarkAuthenticated(peer [16]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[peer]
	if !ok {
		return ErrPeerUnknown
	}
	if p.state != StateConnected {
		return ErrNotConnected
	}
	p.state = StateAuthenticated
	return nil
}

func (m *manager) Send(peer [16]byte, msg []byte) SendResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[peer]
	if !ok {
		return SendPeerUnknown
	}
	if p.state != StateAuthenticated {
		return SendNotAuthenticated
	}
	if _, err := p.conn.Write(msg); err != nil {
		p.state = StateFailed
		if p.conn != nil {
			p.conn.Close()
		}
		return SendIOFailure
	}
	return SendOK
}

func (m *manager) Broadcast(msg []byte, exclude [16]byte) map[[16]byte]SendResult {
	m.mu.Lock()
	ids := make([][16]byte, 0, len(m.byID))
	for id := range m.byID {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	out := make(map[[16]byte]SendResult, len(ids))
	for _, id := range ids {
		out[id] = m.Send(id, msg)
	}
	return out
}

func (m *manager) Heartbeat(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.byID {
		if p.state != StateAuthenticated {
			continue
		}
		if _, err := p.conn.Write(heartbeatFrame); err != nil {
			p.missedHeartbeats++
			if p.missedHeartbeats >= m.cfg.HeartbeatMisses {
				p.state = StateFailed
				p.conn.Close()
				m.logger.Warn("peer missed heartbeats, marking failed", log.Hash16("peer", id))
			}
			continue
		}
		p.missedHeartbeats = 0
	}
}

var heartbeatFrame = []byte("\x00ping")

func (m *manager) Sweep(ctx context.Context, now time.Time) {
	m.mu.Lock()
	due := make([][16]byte, 0)
	for id, p := range m.byID {
		if p.state != StateFailed {
			continue
		}
		if p.retryAttempts >= m.cfg.MaxRetryAttempts {
			continue
		}
		if p.nextRetry.IsZero() {
			p.nextRetry = now.Add(backoffFor(p.retryAttempts, m.cfg))
			continue
		}
		if now.Before(p.nextRetry) {
			continue
		}
		p.state = StateReconnecting
		p.retryAttempts++
		due = append(due, id)
	}
	m.mu.Unlock()

	for _, id := range due {
		if err := m.Connect(ctx, id); err != nil {
			m.mu.Lock()
			if p, ok := m.byID[id]; ok {
				p.nextRetry = now.Add(backoffFor(p.retryAttempts, m.cfg))
			}
			m.mu.Unlock()
		}
	}
}

func backoffFor(attempt int, cfg config.TransportConfig) time.Duration {
	d := cfg.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	return d
}

func (m *manager) Close(ctx context.Context) error {
	m.mu.Lock()
	conns := make([]connCloser, 0, len(m.byID))
	for _, p := range m.byID {
		if p.conn != nil {
			conns = append(conns, p.conn)
		}
		p.state = StateDisconnected
		p.conn = nil
	}
	m.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownGracePeriod)
	defer cancel()
	g, _ := errgroup.WithContext(closeCtx)
	for _, c := range conns {
		c := c
		g.Go(func() error {
			return c.Close()
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-closeCtx.Done():
		return closeCtx.Err()
	}
}
