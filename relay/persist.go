// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"
	"io/fs"
	"time"

	"github.com/secirc/relay/store"
)

// SaveState persists the identity registry, the offline queues, and the
// relay announcement cache through s — the optional shutdown snapshot
// spec §5 allows. The node's signing key rides along wrapped under
// passphrase; an empty passphrase persists the registry alone.
func (n *Node) SaveState(s *store.Store, passphrase string) error {
	var priv []byte
	if passphrase != "" {
		priv = n.keys.Signing.Private
	}
	if err := s.SaveIdentities(n.Identity.Snapshot(), priv, passphrase); err != nil {
		return err
	}
	if err := s.SaveQueues(n.Presence.SnapshotQueues()); err != nil {
		return err
	}
	return s.SaveRelayCache(n.Discovery.LiveCandidates())
}

// RestoreState reloads a previous SaveState snapshot. Missing files are
// fine — a first boot restores nothing. Cached relay announcements go
// back through the normal discovery intake so their signatures are
// re-verified rather than trusted from disk.
func (n *Node) RestoreState(s *store.Store, passphrase string, now time.Time) error {
	ids, _, err := s.LoadIdentities(passphrase)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	default:
		n.Identity.Restore(ids)
	}

	queues, err := s.LoadQueues()
	if err != nil {
		return err
	}
	n.Presence.RestoreQueues(queues)

	anns, err := s.LoadRelayCache()
	if err != nil {
		return err
	}
	for _, ann := range anns {
		if err := n.Discovery.Intake(ann, ann.Addr, now); err != nil {
			n.logger.Debug("cached relay announcement rejected on restore")
		}
	}
	return nil
}
