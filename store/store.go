// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store implements the optional persisted state spec §6 names:
// the identity file (hex-encoded identity records plus the node's
// private key wrapped under an Argon2id-derived KEK), the contacts file,
// the relay announcement cache, and the offline-queue snapshot spec §5
// allows at shutdown. Every write goes through a temp-file-and-rename so
// a crash mid-write never leaves a torn file behind. Nothing in the
// relay core requires this package; relay.Node runs fine fully
// in-memory, and callers that want durability call these at startup and
// shutdown.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/log"
	"github.com/secirc/relay/wire"
)

const (
	identityFileName   = "identities.json"
	contactsFileName   = "contacts.json"
	relayCacheFileName = "relay_cache.json"
	queuesFileName     = "offline_queues.json"
)

// Store reads and writes this node's persisted state under one directory.
type Store struct {
	dir    string
	logger log.Logger
	argon  crypto.Argon2idParams
}

// New constructs a Store rooted at dir, creating it if absent.
func New(dir string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNoOp()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir, logger: logger, argon: crypto.DefaultArgon2idParams()}, nil
}

// identityRecord is the hex-encoded on-disk form of one wire.Identity.
type identityRecord struct {
	Hash      string            `json:"hash"`
	PublicKey wire.HexBytes     `json:"public_key"`
	Kind      uint8             `json:"kind"`
	CreatedAt time.Time         `json:"created_at"`
	LastSeen  time.Time         `json:"last_seen"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type identityFile struct {
	Identities        []identityRecord `json:"identities"`
	WrappedPrivateKey wire.HexBytes    `json:"wrapped_private_key,omitempty"`
}

// SaveIdentities persists the registry snapshot plus this node's signing
// private key wrapped under passphrase. A nil signingPriv (or empty
// passphrase) persists the records alone.
func (s *Store) SaveIdentities(ids []wire.Identity, signingPriv []byte, passphrase string) error {
	f := identityFile{Identities: make([]identityRecord, 0, len(ids))}
	for _, id := range ids {
		f.Identities = append(f.Identities, identityRecord{
			Hash:      wire.Hash16Hex(id.Hash16),
			PublicKey: wire.HexBytes(id.PublicKey),
			Kind:      uint8(id.Kind),
			CreatedAt: id.CreatedAt,
			LastSeen:  id.LastSeen,
			Metadata:  id.Metadata,
		})
	}
	if len(signingPriv) > 0 && passphrase != "" {
		wrapped, err := crypto.WrapPrivateKey(signingPriv, passphrase, s.argon)
		if err != nil {
			return err
		}
		f.WrappedPrivateKey = wrapped
	}
	return s.writeFile(identityFileName, f)
}

// LoadIdentities reloads the identity file. The private key is unwrapped
// only when the file holds one and passphrase is non-empty; a wrong
// passphrase fails with crypto.ErrBadPassphrase without disturbing the
// records.
func (s *Store) LoadIdentities(passphrase string) ([]wire.Identity, []byte, error) {
	var f identityFile
	if err := s.readFile(identityFileName, &f); err != nil {
		return nil, nil, err
	}

	ids := make([]wire.Identity, 0, len(f.Identities))
	for _, rec := range f.Identities {
		hash, err := wire.ParseHash16(rec.Hash)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, wire.Identity{
			Hash16:    hash,
			PublicKey: rec.PublicKey,
			Kind:      wire.IdentityKind(rec.Kind),
			CreatedAt: rec.CreatedAt,
			LastSeen:  rec.LastSeen,
			Metadata:  rec.Metadata,
		})
	}

	var priv []byte
	if len(f.WrappedPrivateKey) > 0 && passphrase != "" {
		var err error
		priv, err = crypto.UnwrapPrivateKey(f.WrappedPrivateKey, passphrase, s.argon)
		if err != nil {
			return nil, nil, err
		}
	}
	return ids, priv, nil
}

// Contact is one entry in the contacts file: the recipient's box public
// key plus a local nickname (spec §6 "Contacts file").
type Contact struct {
	PublicKey wire.HexBytes `json:"pk"`
	Nickname  string        `json:"nickname"`
}

// SaveContacts persists the recipient_hash -> contact map.
func (s *Store) SaveContacts(contacts map[[16]byte]Contact) error {
	out := make(map[string]Contact, len(contacts))
	for hash, c := range contacts {
		out[wire.Hash16Hex(hash)] = c
	}
	return s.writeFile(contactsFileName, out)
}

// LoadContacts reloads the contacts file, returning an empty map when the
// file doesn't exist yet.
func (s *Store) LoadContacts() (map[[16]byte]Contact, error) {
	raw := make(map[string]Contact)
	if err := s.readFile(contactsFileName, &raw); err != nil {
		if os.IsNotExist(err) {
			return map[[16]byte]Contact{}, nil
		}
		return nil, err
	}
	out := make(map[[16]byte]Contact, len(raw))
	for hexHash, c := range raw {
		hash, err := wire.ParseHash16(hexHash)
		if err != nil {
			return nil, err
		}
		out[hash] = c
	}
	return out, nil
}

// relayRecord is the hex-encoded on-disk form of one RelayAnnouncement.
type relayRecord struct {
	RelayID      string        `json:"relay_id"`
	PublicKey    wire.HexBytes `json:"public_key"`
	Addr         string        `json:"addr"`
	Port         uint16        `json:"port"`
	Services     []string      `json:"services,omitempty"`
	Capabilities []string      `json:"capabilities,omitempty"`
	Uptime       time.Duration `json:"uptime"`
	LastSeen     time.Time     `json:"last_seen"`
	Version      string        `json:"version,omitempty"`
	Signature    wire.HexBytes `json:"signature"`
}

// SaveRelayCache persists the last-known relay announcements so a
// restarting node can seed discovery without waiting for fresh traffic.
func (s *Store) SaveRelayCache(anns []wire.RelayAnnouncement) error {
	out := make([]relayRecord, 0, len(anns))
	for _, ann := range anns {
		out = append(out, relayRecord{
			RelayID:      wire.Hash16Hex(ann.RelayID),
			PublicKey:    wire.HexBytes(ann.PublicKey),
			Addr:         ann.Addr,
			Port:         ann.Port,
			Services:     ann.Services,
			Capabilities: ann.Capabilities,
			Uptime:       ann.Uptime,
			LastSeen:     ann.LastSeen,
			Version:      ann.Version,
			Signature:    wire.HexBytes(ann.Signature),
		})
	}
	return s.writeFile(relayCacheFileName, out)
}

// LoadRelayCache reloads cached announcements, empty when none were saved.
func (s *Store) LoadRelayCache() ([]wire.RelayAnnouncement, error) {
	var raw []relayRecord
	if err := s.readFile(relayCacheFileName, &raw); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]wire.RelayAnnouncement, 0, len(raw))
	for _, rec := range raw {
		id, err := wire.ParseHash16(rec.RelayID)
		if err != nil {
			return nil, err
		}
		out = append(out, wire.RelayAnnouncement{
			RelayID:      id,
			PublicKey:    rec.PublicKey,
			Addr:         rec.Addr,
			Port:         rec.Port,
			Services:     rec.Services,
			Capabilities: rec.Capabilities,
			Uptime:       rec.Uptime,
			LastSeen:     rec.LastSeen,
			Version:      rec.Version,
			Signature:    rec.Signature,
		})
	}
	return out, nil
}

// queuedMessage is the hex-encoded on-disk form of one PendingMessage.
type queuedMessage struct {
	MessageID   string        `json:"message_id"`
	Sender      string        `json:"sender"`
	Recipient   string        `json:"recipient"`
	Type        uint16        `json:"type"`
	Ciphertext  wire.HexBytes `json:"ciphertext"`
	TTL         time.Duration `json:"ttl"`
	CreatedTS   time.Time     `json:"created_ts"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
}

// SaveQueues persists the offline store-and-forward queues at shutdown.
func (s *Store) SaveQueues(queues map[[16]byte][]wire.PendingMessage) error {
	out := make(map[string][]queuedMessage, len(queues))
	for user, q := range queues {
		msgs := make([]queuedMessage, 0, len(q))
		for _, msg := range q {
			msgs = append(msgs, queuedMessage{
				MessageID:   msg.MessageID,
				Sender:      wire.Hash16Hex(msg.SenderHash),
				Recipient:   wire.Hash16Hex(msg.RecipientHash),
				Type:        uint16(msg.Type),
				Ciphertext:  wire.HexBytes(msg.Ciphertext),
				TTL:         msg.TTL,
				CreatedTS:   msg.CreatedTS,
				Attempts:    msg.Attempts,
				MaxAttempts: msg.MaxAttempts,
			})
		}
		out[wire.Hash16Hex(user)] = msgs
	}
	return s.writeFile(queuesFileName, out)
}

// LoadQueues reloads persisted offline queues, empty when none were saved.
func (s *Store) LoadQueues() (map[[16]byte][]wire.PendingMessage, error) {
	raw := make(map[string][]queuedMessage)
	if err := s.readFile(queuesFileName, &raw); err != nil {
		if os.IsNotExist(err) {
			return map[[16]byte][]wire.PendingMessage{}, nil
		}
		return nil, err
	}
	out := make(map[[16]byte][]wire.PendingMessage, len(raw))
	for hexUser, msgs := range raw {
		user, err := wire.ParseHash16(hexUser)
		if err != nil {
			return nil, err
		}
		q := make([]wire.PendingMessage, 0, len(msgs))
		for _, msg := range msgs {
			sender, err := wire.ParseHash16(msg.Sender)
			if err != nil {
				return nil, err
			}
			recipient, err := wire.ParseHash16(msg.Recipient)
			if err != nil {
				return nil, err
			}
			q = append(q, wire.PendingMessage{
				MessageID:     msg.MessageID,
				SenderHash:    sender,
				RecipientHash: recipient,
				Type:          wire.MessageType(msg.Type),
				Ciphertext:    msg.Ciphertext,
				TTL:           msg.TTL,
				CreatedTS:     msg.CreatedTS,
				Attempts:      msg.Attempts,
				MaxAttempts:   msg.MaxAttempts,
				Status:        wire.StatusPending,
			})
		}
		out[user] = q
	}
	return out, nil
}

// writeFile marshals v and atomically replaces name under the store dir.
func (s *Store) writeFile(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	s.logger.Debug("persisted state file written", log.Type(name))
	return nil
}

func (s *Store) readFile(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
