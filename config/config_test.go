// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestRingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RingConfig)
		wantErr error
	}{
		{"valid default", func(c *RingConfig) {}, nil},
		{"ring too small", func(c *RingConfig) { c.MinRingSize = 1 }, ErrInvalidRingSize},
		{"ring too large", func(c *RingConfig) { c.MaxRingSize = 20 }, ErrInvalidRingSize},
		{"min above max", func(c *RingConfig) { c.MinRingSize = 10; c.MaxRingSize = 5 }, ErrInvalidRingSize},
		{"quorum zero", func(c *RingConfig) { c.QuorumFraction = 0 }, ErrInvalidQuorum},
		{"quorum over one", func(c *RingConfig) { c.QuorumFraction = 1.5 }, ErrInvalidQuorum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultRingConfig()
			tt.mutate(&c)
			require.ErrorIs(t, c.Validate(), tt.wantErr)
		})
	}
}

func TestTrustConfigWeightsMustSumToOne(t *testing.T) {
	c := DefaultTrustConfig()
	c.ReputationWeight = 0.9
	require.ErrorIs(t, c.Validate(), ErrInvalidWeights)
}

func TestVerifyConfigThresholdOrdering(t *testing.T) {
	c := DefaultVerifyConfig()
	c.BlockThreshold = c.PromoteThreshold
	require.ErrorIs(t, c.Validate(), ErrInvalidThresholds)
}

func TestAuthConfigPoWDifficultyBounds(t *testing.T) {
	c := DefaultAuthConfig()
	c.ProofOfWorkDifficulty = 0
	require.ErrorIs(t, c.Validate(), ErrInvalidPoWDifficulty)
}
