// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auth implements client authentication (spec §4.7): a per-client
// login handshake that issues one or more challenges drawn from the four
// families spec §4.7 names (signature, proof-of-work, timestamp, nonce),
// tracks an AuthSession through its Pending -> Challenged -> Responded ->
// {Verified, Failed, Expired} lifecycle, and mints a session key once
// every issued challenge has been answered correctly.
package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/bits"
	"sync"
	"time"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/log"
	"github.com/secirc/relay/wire"
)

// Manager runs the challenge/response handshake and keeps the resulting
// sessions around for cfg.SessionGracePeriod so a caller can still observe
// a Verified or Failed outcome after the fact, before Sweep removes it.
type Manager interface {
	// CreateSession opens a new handshake for userHash against serverHash.
	// userPublicKey is the long-term signing key the signature family
	// verifies against; it is never exposed back through Session.
	CreateSession(userHash, serverHash [16]byte, userPublicKey []byte, now time.Time) (wire.AuthSession, error)

	// AddChallenge issues one more challenge of kind against an open
	// session, failing once cfg.MaxChallenges has been reached.
	AddChallenge(sessionID string, kind wire.ChallengeKind, now time.Time) (wire.Challenge, error)

	// SubmitResponse verifies a client's answer to one outstanding
	// challenge. The session reaches AuthVerified, with a minted
	// SessionKey, once every issued challenge has been answered
	// correctly; any incorrect or stale answer fails it immediately.
	SubmitResponse(sessionID string, resp wire.ChallengeResponse, now time.Time) (wire.AuthStatus, error)

	// Session returns a snapshot of the session's current state.
	Session(sessionID string) (wire.AuthSession, bool)

	// Sweep expires challenged sessions that timed out waiting for a
	// response, and deletes terminal sessions that have sat idle past
	// the configured grace period.
	Sweep(now time.Time)
}

type sessionState struct {
	sess       wire.AuthSession
	userPubKey []byte
	answered   map[string]bool
}

type manager struct {
	cfg    config.AuthConfig
	logger log.Logger

	mu   sync.Mutex
	byID map[string]*sessionState
}

// NewManager constructs an empty authentication Manager.
func NewManager(cfg config.AuthConfig, logger log.Logger) Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &manager{cfg: cfg, logger: logger, byID: make(map[string]*sessionState)}
}

func (m *manager) CreateSession(userHash, serverHash [16]byte, userPublicKey []byte, now time.Time) (wire.AuthSession, error) {
	id, err := newSessionID()
	if err != nil {
		return wire.AuthSession{}, err
	}

	sess := wire.AuthSession{
		SessionID:    id,
		UserHash:     userHash,
		ServerHash:   serverHash,
		Status:       wire.AuthPending,
		CreatedTS:    now,
		LastActivity: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id] = &sessionState{sess: sess, userPubKey: userPublicKey, answered: make(map[string]bool)}

	m.logger.Info("auth session opened", log.Hash16("user", userHash), log.Hash16("server", serverHash))
	return sess, nil
}

func (m *manager) AddChallenge(sessionID string, kind wire.ChallengeKind, now time.Time) (wire.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.byID[sessionID]
	if !ok {
		return wire.Challenge{}, ErrNoSuchSession
	}
	if st.sess.Status != wire.AuthPending && st.sess.Status != wire.AuthChallenged {
		return wire.Challenge{}, ErrSessionNotActive
	}
	if len(st.sess.Challenges) >= m.cfg.MaxChallenges {
		return wire.Challenge{}, ErrMaxChallengesReached
	}

	blob, difficulty, err := newChallengeBlob(kind, m.cfg, now)
	if err != nil {
		return wire.Challenge{}, err
	}

	challengeID, err := newSessionID()
	if err != nil {
		return wire.Challenge{}, err
	}
	ch := wire.Challenge{ID: challengeID, Kind: kind, Blob: blob, Difficulty: difficulty, IssuedTS: now}

	st.sess.Challenges = append(st.sess.Challenges, ch)
	st.sess.Status = wire.AuthChallenged
	st.sess.LastActivity = now
	return ch, nil
}

func (m *manager) SubmitResponse(sessionID string, resp wire.ChallengeResponse, now time.Time) (wire.AuthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.byID[sessionID]
	if !ok {
		return wire.AuthFailed, ErrNoSuchSession
	}
	if st.sess.Status != wire.AuthChallenged {
		return st.sess.Status, ErrSessionNotActive
	}

	var challenge *wire.Challenge
	for i := range st.sess.Challenges {
		c := &st.sess.Challenges[i]
		if c.ID == resp.ChallengeID && !st.answered[c.ID] {
			challenge = c
			break
		}
	}
	if challenge == nil {
		return st.sess.Status, ErrChallengeNotFound
	}

	if now.Sub(challenge.IssuedTS) > m.cfg.ChallengeTimeout {
		st.sess.Status = wire.AuthFailed
		return st.sess.Status, ErrChallengeExpired
	}

	if !verifyResponse(*challenge, resp, st.userPubKey, m.cfg) {
		st.sess.Status = wire.AuthFailed
		return st.sess.Status, ErrVerificationFailed
	}

	st.answered[challenge.ID] = true
	st.sess.Responses = append(st.sess.Responses, resp)
	st.sess.Status = wire.AuthResponded
	st.sess.LastActivity = now

	if len(st.answered) == len(st.sess.Challenges) {
		key, err := crypto.NewSymmetricKey()
		if err != nil {
			return st.sess.Status, err
		}
		var sk [32]byte
		copy(sk[:], key)
		st.sess.SessionKey = &sk
		st.sess.Status = wire.AuthVerified
		m.logger.Info("auth session verified", log.Hash16("user", st.sess.UserHash))
	} else {
		st.sess.Status = wire.AuthChallenged
	}
	return st.sess.Status, nil
}

func (m *manager) Session(sessionID string) (wire.AuthSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[sessionID]
	if !ok {
		return wire.AuthSession{}, false
	}
	return st.sess, true
}

func (m *manager) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, st := range m.byID {
		switch st.sess.Status {
		case wire.AuthChallenged:
			if now.Sub(st.sess.LastActivity) > m.cfg.ChallengeTimeout {
				st.sess.Status = wire.AuthExpired
				st.sess.LastActivity = now
			}
		case wire.AuthVerified, wire.AuthFailed, wire.AuthExpired:
			if now.Sub(st.sess.LastActivity) > m.cfg.SessionGracePeriod {
				delete(m.byID, id)
			}
		}
	}
}

func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// newChallengeBlob builds the server-held half of a challenge: the nonce
// the client must sign, the prefix it must grind a proof-of-work nonce
// against, the server timestamp it must echo back within skew, or a plain
// liveness nonce.
func newChallengeBlob(kind wire.ChallengeKind, cfg config.AuthConfig, now time.Time) ([]byte, int, error) {
	switch kind {
	case wire.ChallengeSignature, wire.ChallengeNonce:
		nonce := make([]byte, 32)
		if _, err := rand.Read(nonce); err != nil {
			return nil, 0, err
		}
		return nonce, 0, nil
	case wire.ChallengeProofOfWork:
		prefix := make([]byte, 16)
		if _, err := rand.Read(prefix); err != nil {
			return nil, 0, err
		}
		return prefix, cfg.ProofOfWorkDifficulty, nil
	case wire.ChallengeTimestamp:
		blob := make([]byte, 8)
		binary.BigEndian.PutUint64(blob, uint64(now.UnixNano()))
		return blob, 0, nil
	default:
		return nil, 0, ErrUnknownChallengeKind
	}
}

func verifyResponse(challenge wire.Challenge, resp wire.ChallengeResponse, userPubKey []byte, cfg config.AuthConfig) bool {
	switch challenge.Kind {
	case wire.ChallengeSignature:
		return crypto.Verify(userPubKey, challenge.Blob, resp.Data)
	case wire.ChallengeNonce:
		return bytes.Equal(challenge.Blob, resp.Data)
	case wire.ChallengeProofOfWork:
		return proofOfWorkValid(challenge.Blob, resp.Data, challenge.Difficulty)
	case wire.ChallengeTimestamp:
		if len(resp.Data) != 8 {
			return false
		}
		echoed := time.Unix(0, int64(binary.BigEndian.Uint64(resp.Data))).UTC()
		issued := time.Unix(0, int64(binary.BigEndian.Uint64(challenge.Blob))).UTC()
		skew := echoed.Sub(issued)
		if skew < 0 {
			skew = -skew
		}
		return skew <= cfg.TimestampSkew
	default:
		return false
	}
}

func proofOfWorkValid(prefix, nonce []byte, difficulty int) bool {
	sum := sha256.Sum256(append(append([]byte{}, prefix...), nonce...))
	return leadingZeroBits(sum[:]) >= difficulty
}

func leadingZeroBits(b []byte) int {
	count := 0
	for _, by := range b {
		if by == 0 {
			count += 8
			continue
		}
		count += bits.LeadingZeros8(by)
		break
	}
	return count
}
