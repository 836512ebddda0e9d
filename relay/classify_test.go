// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/secirc/relay/config"
	"github.com/secirc/relay/envelope"
	"github.com/secirc/relay/groups"
	"github.com/secirc/relay/ring"
	"github.com/secirc/relay/transport"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"io", transport.ErrNotConnected, KindIo},
		{"crypto", envelope.ErrBadIntegrity, KindCrypto},
		{"protocol", envelope.ErrMalformed, KindProtocol},
		{"policy", ring.ErrRingFull, KindPolicy},
		{"consensus", ring.ErrDuplicateProposal, KindConsensus},
		{"transient", envelope.ErrStale, KindTransient},
		{"group full", groups.ErrGroupFull, KindPolicy},
		{"forwarding denied", ErrForwardingDenied, KindPolicy},
		{"send failed", ErrSendFailed, KindIo},
		{"frame too large", transport.ErrFrameTooLarge, KindIo},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, Classify(c.err))
		})
	}
	require.Equal(t, KindUnknown, Classify(nil))
}

func TestExitCodeFor(t *testing.T) {
	require.Equal(t, ExitClean, ExitCodeFor(nil))
	require.Equal(t, ExitBadConfiguration, ExitCodeFor(config.ErrInvalidRingSize))
	require.Equal(t, ExitUnrecoverable, ExitCodeFor(ErrUnsupportedType))
}
