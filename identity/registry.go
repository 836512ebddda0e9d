// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package identity implements the hash16 -> Identity registry (spec
// §4.2): the single source of truth for public keys the verifier and
// every other component consults. Only the envelope ingress path should
// mutate it.
package identity

import (
	"sync"
	"time"

	"github.com/secirc/relay/crypto"
	"github.com/secirc/relay/internal/collections"
	"github.com/secirc/relay/log"
	"github.com/secirc/relay/wire"
)

// Registry maps hash16 -> Identity, with idle eviction.
type Registry interface {
	// Register inserts or refreshes an identity. Idempotent: re-registering
	// the same hash/key pair is a no-op beyond updating LastSeen. Fails
	// with ErrIdentityMismatch if hash != SHA256(pk)[0..16].
	Register(hash [16]byte, publicKey []byte, kind wire.IdentityKind) (wire.Identity, error)
	// Touch updates last_seen for an already-registered identity.
	Touch(hash [16]byte) error
	// Get returns the identity for hash, if registered.
	Get(hash [16]byte) (wire.Identity, bool)
	// SetMetadata replaces an identity's metadata bag, enforcing the caps
	// from spec §3.1.
	SetMetadata(hash [16]byte, md map[string]string) error
	// Cleanup evicts identities whose LastSeen is older than maxAge,
	// returning the number removed.
	Cleanup(maxAge time.Duration) int
	// Len reports the number of registered identities.
	Len() int
	// Snapshot returns every registered identity, least-recently-seen
	// first, for the optional on-disk persistence spec §6 allows.
	Snapshot() []wire.Identity
	// Restore re-registers persisted records, preserving their original
	// timestamps. Records whose hash/key binding fails are skipped and
	// counted in the return value rather than aborting the whole load.
	Restore(ids []wire.Identity) (skipped int)
}

type registry struct {
	logger log.Logger

	mu   sync.RWMutex
	byID *collections.LRU[[16]byte, wire.Identity]
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger log.Logger) Registry {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &registry{
		logger: logger,
		byID:   collections.NewLRU[[16]byte, wire.Identity](),
	}
}

func (r *registry) Register(hash [16]byte, publicKey []byte, kind wire.IdentityKind) (wire.Identity, error) {
	if crypto.Hash16(publicKey) != hash {
		return wire.Identity{}, ErrIdentityMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.byID.Get(hash); ok {
		existing.LastSeen = now
		r.byID.Put(hash, existing)
		return existing, nil
	}

	id := wire.Identity{
		Hash16:    hash,
		PublicKey: publicKey,
		Kind:      kind,
		CreatedAt: now,
		LastSeen:  now,
	}
	r.byID.Put(hash, id)
	r.logger.Debug("identity registered", log.Hash16("hash16", hash))
	return id, nil
}

func (r *registry) Touch(hash [16]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byID.Get(hash)
	if !ok {
		return ErrNotFound
	}
	id.LastSeen = time.Now().UTC()
	r.byID.Put(hash, id)
	return nil
}

func (r *registry) Get(hash [16]byte) (wire.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID.Get(hash)
}

func (r *registry) SetMetadata(hash [16]byte, md map[string]string) error {
	if err := wire.ValidateMetadata(md); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byID.Get(hash)
	if !ok {
		return ErrNotFound
	}
	id.Metadata = md
	r.byID.Put(hash, id)
	return nil
}

func (r *registry) Cleanup(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for {
		hash, id, ok := r.byID.Oldest()
		if !ok || now.Sub(id.LastSeen) <= maxAge {
			break
		}
		r.byID.Delete(hash)
		removed++
	}
	if removed > 0 {
		r.logger.Info("identity cleanup evicted idle entries", log.Type("sweep"))
	}
	return removed
}

func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID.Len()
}

func (r *registry) Snapshot() []wire.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]wire.Identity, 0, r.byID.Len())
	r.byID.Iterate(func(_ [16]byte, id wire.Identity) bool {
		out = append(out, id)
		return true
	})
	return out
}

func (r *registry) Restore(ids []wire.Identity) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	skipped := 0
	for _, id := range ids {
		if crypto.Hash16(id.PublicKey) != id.Hash16 {
			skipped++
			continue
		}
		if _, exists := r.byID.Get(id.Hash16); exists {
			continue
		}
		r.byID.Put(id.Hash16, id)
	}
	if skipped > 0 {
		r.logger.Warn("identity restore skipped records with a broken hash/key binding")
	}
	return skipped
}
