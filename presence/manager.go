// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package presence implements online/offline tracking and store-and-forward
// delivery (spec §4.8): a user's UserPresence record, a bounded per-user
// FIFO of PendingMessage envelopes queued while they're offline, and the
// retry/TTL bookkeeping a delivery loop needs to drain that queue once the
// user reconnects.
package presence

import (
	"sync"
	"time"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/log"
	"github.com/secirc/relay/wire"
)

type userState struct {
	presence wire.UserPresence
	queue    []wire.PendingMessage // insertion order; oldest first
}

// Manager tracks every known user's presence and offline message queue.
type Manager interface {
	// GoOnline marks user present at server/session and returns the
	// messages queued while they were away, in the order they were
	// enqueued, for the caller to attempt delivery.
	GoOnline(user, server [16]byte, session string, publicKey []byte, nickname string, now time.Time) (wire.UserPresence, []wire.PendingMessage)

	// GoOffline marks user absent; their queue is left untouched.
	GoOffline(user [16]byte, now time.Time)

	// Heartbeat refreshes LastSeen for an already-online user.
	Heartbeat(user [16]byte, now time.Time) error

	// SetStatus changes an online user's away/busy/invisible sub-state.
	SetStatus(user [16]byte, status wire.PresenceStatus, statusMessage string) error

	Presence(user [16]byte) (wire.UserPresence, bool)

	// Enqueue appends msg to recipient's offline queue, failing once the
	// queue reaches cfg.MaxPendingMessages.
	Enqueue(msg wire.PendingMessage) error

	// Pending returns a snapshot of user's queue in insertion order.
	Pending(user [16]byte) []wire.PendingMessage

	// Ack removes a successfully delivered message from its recipient's
	// queue.
	Ack(user [16]byte, messageID string) error

	// Fail records a failed delivery attempt. The message is dropped
	// (Status set to Failed) once cfg.MaxDeliveryAttempts is reached;
	// otherwise it stays queued for the next delivery sweep.
	Fail(user [16]byte, messageID string, now time.Time) (requeued bool, err error)

	// Deliverable returns, per online recipient, the queued messages
	// eligible for a delivery attempt as of now, in insertion order.
	// Offline recipients' queues are left untouched.
	Deliverable(now time.Time) map[[16]byte][]wire.PendingMessage

	// Sweep drops expired queued messages and marks online users whose
	// heartbeat has lapsed past cfg.PresenceTimeout as offline.
	Sweep(now time.Time) (expiredMessages int, staleUsers int)

	// SnapshotQueues returns every non-empty offline queue, for the
	// optional shutdown persistence spec §5 allows.
	SnapshotQueues() map[[16]byte][]wire.PendingMessage

	// RestoreQueues reloads persisted queues, appending behind anything
	// already enqueued and still honoring the per-user bound.
	RestoreQueues(queues map[[16]byte][]wire.PendingMessage)
}

type manager struct {
	cfg    config.PresenceConfig
	logger log.Logger

	mu   sync.Mutex
	byID map[[16]byte]*userState
}

// NewManager constructs an empty presence Manager.
func NewManager(cfg config.PresenceConfig, logger log.Logger) Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &manager{cfg: cfg, logger: logger, byID: make(map[[16]byte]*userState)}
}

func (m *manager) stateFor(user [16]byte) *userState {
	st, ok := m.byID[user]
	if !ok {
		st = &userState{presence: wire.UserPresence{User: user, Status: wire.PresenceOffline}}
		m.byID[user] = st
	}
	return st
}

func (m *manager) GoOnline(user, server [16]byte, session string, publicKey []byte, nickname string, now time.Time) (wire.UserPresence, []wire.PendingMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateFor(user)
	st.presence.Status = wire.PresenceOnline
	st.presence.Server = server
	st.presence.Session = session
	st.presence.PublicKey = publicKey
	st.presence.Nickname = nickname
	st.presence.LastSeen = now

	m.logger.Info("user online", log.Hash16("user", user), log.Hash16("server", server))

	queued := make([]wire.PendingMessage, len(st.queue))
	copy(queued, st.queue)
	return st.presence, queued
}

func (m *manager) GoOffline(user [16]byte, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateFor(user)
	st.presence.Status = wire.PresenceOffline
	st.presence.LastSeen = now
}

func (m *manager) Heartbeat(user [16]byte, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[user]
	if !ok {
		return ErrUnknownUser
	}
	st.presence.LastSeen = now
	return nil
}

func (m *manager) SetStatus(user [16]byte, status wire.PresenceStatus, statusMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[user]
	if !ok {
		return ErrUnknownUser
	}
	st.presence.Status = status
	st.presence.StatusMessage = statusMessage
	return nil
}

func (m *manager) Presence(user [16]byte) (wire.UserPresence, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[user]
	if !ok {
		return wire.UserPresence{}, false
	}
	return st.presence, true
}

func (m *manager) Enqueue(msg wire.PendingMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateFor(msg.RecipientHash)
	if len(st.queue) >= m.cfg.MaxPendingMessages {
		return ErrQueueFull
	}
	if msg.TTL <= 0 {
		msg.TTL = m.cfg.DefaultTTL
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = m.cfg.MaxDeliveryAttempts
	}
	msg.Status = wire.StatusPending
	st.queue = append(st.queue, msg)
	return nil
}

func (m *manager) Pending(user [16]byte) []wire.PendingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[user]
	if !ok {
		return nil
	}
	out := make([]wire.PendingMessage, len(st.queue))
	copy(out, st.queue)
	return out
}

func (m *manager) Ack(user [16]byte, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[user]
	if !ok {
		return ErrUnknownUser
	}
	for i, msg := range st.queue {
		if msg.MessageID == messageID {
			st.queue = append(st.queue[:i], st.queue[i+1:]...)
			return nil
		}
	}
	return ErrMessageNotFound
}

func (m *manager) Fail(user [16]byte, messageID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[user]
	if !ok {
		return false, ErrUnknownUser
	}
	for i := range st.queue {
		msg := &st.queue[i]
		if msg.MessageID != messageID {
			continue
		}
		msg.Attempts++
		if msg.Attempts >= msg.MaxAttempts || msg.Expired(now) {
			msg.Status = wire.StatusFailed
			st.queue = append(st.queue[:i], st.queue[i+1:]...)
			return false, nil
		}
		return true, nil
	}
	return false, ErrMessageNotFound
}

func (m *manager) Deliverable(now time.Time) map[[16]byte][]wire.PendingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[[16]byte][]wire.PendingMessage)
	for user, st := range m.byID {
		if st.presence.Status == wire.PresenceOffline || len(st.queue) == 0 {
			continue
		}
		q := make([]wire.PendingMessage, 0, len(st.queue))
		for _, msg := range st.queue {
			if msg.Expired(now) {
				continue
			}
			q = append(q, msg)
		}
		if len(q) > 0 {
			out[user] = q
		}
	}
	return out
}

func (m *manager) SnapshotQueues() map[[16]byte][]wire.PendingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[[16]byte][]wire.PendingMessage)
	for user, st := range m.byID {
		if len(st.queue) == 0 {
			continue
		}
		q := make([]wire.PendingMessage, len(st.queue))
		copy(q, st.queue)
		out[user] = q
	}
	return out
}

func (m *manager) RestoreQueues(queues map[[16]byte][]wire.PendingMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for user, q := range queues {
		st := m.stateFor(user)
		for _, msg := range q {
			if len(st.queue) >= m.cfg.MaxPendingMessages {
				break
			}
			st.queue = append(st.queue, msg)
		}
	}
}

func (m *manager) Sweep(now time.Time) (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	stale := 0
	for _, st := range m.byID {
		kept := st.queue[:0]
		for _, msg := range st.queue {
			if msg.Expired(now) {
				expired++
				continue
			}
			kept = append(kept, msg)
		}
		st.queue = kept

		if st.presence.Status == wire.PresenceOnline && now.Sub(st.presence.LastSeen) > m.cfg.PresenceTimeout {
			st.presence.Status = wire.PresenceOffline
			stale++
		}
	}
	return expired, stale
}
