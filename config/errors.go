// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "errors"

// Validation errors. Fields with the same constraint share one error
// (e.g. the trust and verify thresholds). Validate returns the first one
// it finds.
var (
	ErrInvalidRingSize       = errors.New("config: min_ring_size..max_ring_size must satisfy 3 <= min <= max <= 12")
	ErrInvalidQuorum         = errors.New("config: ring_quorum must be in (0, 1]")
	ErrInvalidMaxMessageAge  = errors.New("config: max_message_age and rotation_timeout must be positive")
	ErrInvalidReplayWindow   = errors.New("config: replay_window_size must be positive")
	ErrInvalidConnectionRange = errors.New("config: min_connections..max_connections must satisfy 0 <= min <= max")
	ErrInvalidRetryAttempts  = errors.New("config: max_retry_attempts and rate_limit_per_ip must be positive")
	ErrInvalidPoWDifficulty  = errors.New("config: proof_of_work_difficulty_bits must be in [1, 256]")
	ErrInvalidThresholds     = errors.New("config: thresholds must satisfy 0 <= low < high <= 1")
	ErrInvalidWeights        = errors.New("config: component weights must sum to 1.0")
	ErrInvalidMaxPending     = errors.New("config: max_pending_messages must be positive")
	ErrInvalidDeliveryTuning = errors.New("config: max_delivery_attempts and ttl must be positive")
	ErrInvalidGroupSize      = errors.New("config: default_max_group_members must be positive")
	ErrInvalidProbeTimeout   = errors.New("config: verification probe_timeout must be positive")
	ErrInvalidIdleAge        = errors.New("config: identity max_idle_age and cleanup_period must be positive")
)
