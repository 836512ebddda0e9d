// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the plain, validated configuration structs every
// relay-core manager is constructed with. This package never reads an
// environment variable, flag, or file — loading is an external
// collaborator's job (spec §1); callers hand a populated Config to
// relay.NewNode.
package config

import "time"

// Config is the full relay-core configuration, one sub-struct per
// component in spec.md §2's dependency table.
type Config struct {
	Envelope  EnvelopeConfig
	Identity  IdentityConfig
	Transport TransportConfig
	Ring      RingConfig
	Rotation  RotationConfig
	Verify    VerifyConfig
	Trust     TrustConfig
	Auth      AuthConfig
	Presence  PresenceConfig
	Groups    GroupConfig
	Discovery DiscoveryConfig
}

// Default returns the configuration used unless a caller overrides it.
func Default() Config {
	return Config{
		Envelope:  DefaultEnvelopeConfig(),
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		Ring:      DefaultRingConfig(),
		Rotation:  DefaultRotationConfig(),
		Verify:    DefaultVerifyConfig(),
		Trust:     DefaultTrustConfig(),
		Auth:      DefaultAuthConfig(),
		Presence:  DefaultPresenceConfig(),
		Groups:    DefaultGroupConfig(),
		Discovery: DefaultDiscoveryConfig(),
	}
}

// Validate runs every sub-config's Validate, stopping at the first error.
func (c Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		c.Envelope, c.Identity, c.Transport, c.Ring, c.Rotation, c.Verify,
		c.Trust, c.Auth, c.Presence, c.Groups, c.Discovery,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// EnvelopeConfig tunes the salt/envelope layer (spec §4.1).
type EnvelopeConfig struct {
	MaxMessageAge       time.Duration // reject envelopes whose timestamp drifts further than this
	ReplayWindowSize    int           // sequence numbers remembered per message type, per sender
	MaxPacketSize       int           // datagram framing cap
	MaxStreamPacketSize int           // TCP/TLS/WebSocket framing cap
}

func DefaultEnvelopeConfig() EnvelopeConfig {
	return EnvelopeConfig{
		MaxMessageAge:       300 * time.Second,
		ReplayWindowSize:    1000,
		MaxPacketSize:       1400,
		MaxStreamPacketSize: 64 * 1024,
	}
}

func (c EnvelopeConfig) Validate() error {
	if c.MaxMessageAge <= 0 {
		return ErrInvalidMaxMessageAge
	}
	if c.ReplayWindowSize <= 0 {
		return ErrInvalidReplayWindow
	}
	return nil
}

// IdentityConfig tunes registry idle eviction (spec §4.2: identities
// are "evicted after a configurable idle period").
type IdentityConfig struct {
	MaxIdleAge    time.Duration
	CleanupPeriod time.Duration
}

func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		MaxIdleAge:    24 * time.Hour,
		CleanupPeriod: 10 * time.Minute,
	}
}

func (c IdentityConfig) Validate() error {
	if c.MaxIdleAge <= 0 || c.CleanupPeriod <= 0 {
		return ErrInvalidIdleAge
	}
	return nil
}

// TransportConfig tunes the transport fan-out manager (spec §4.3).
type TransportConfig struct {
	MinConnections      int
	MaxConnections      int
	HeartbeatInterval   time.Duration
	HeartbeatMisses     int // consecutive missed heartbeats before Failed
	ConnectionTimeout   time.Duration
	MaxRetryAttempts    int
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	ShutdownGracePeriod time.Duration
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MinConnections:      4,
		MaxConnections:      32,
		HeartbeatInterval:   30 * time.Second,
		HeartbeatMisses:     2,
		ConnectionTimeout:   10 * time.Second,
		MaxRetryAttempts:    8,
		InitialBackoff:      500 * time.Millisecond,
		MaxBackoff:          2 * time.Minute,
		ShutdownGracePeriod: 5 * time.Second,
	}
}

func (c TransportConfig) Validate() error {
	if c.MinConnections < 0 || c.MinConnections > c.MaxConnections {
		return ErrInvalidConnectionRange
	}
	if c.MaxRetryAttempts <= 0 {
		return ErrInvalidRetryAttempts
	}
	return nil
}

// RingConfig tunes first-ring membership (spec §4.4).
type RingConfig struct {
	MinRingSize        int
	MaxRingSize         int
	QuorumFraction      float64 // 0.75 default — ceil(quorum * |ring|) yes votes required
	ProposalTTL         time.Duration
	HeartbeatInterval   time.Duration
	HeartbeatTimeout    time.Duration
	RemovalGracePeriod  time.Duration
}

func DefaultRingConfig() RingConfig {
	return RingConfig{
		MinRingSize:       3,
		MaxRingSize:       12,
		QuorumFraction:    0.75,
		ProposalTTL:       10 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  90 * time.Second,
		RemovalGracePeriod: 60 * time.Second,
	}
}

func (c RingConfig) Validate() error {
	if c.MinRingSize < 3 || c.MinRingSize > c.MaxRingSize || c.MaxRingSize > 12 {
		return ErrInvalidRingSize
	}
	if c.QuorumFraction <= 0 || c.QuorumFraction > 1 {
		return ErrInvalidQuorum
	}
	return nil
}

// RotationConfig tunes the first-ring key rotation protocol (spec §4.5).
type RotationConfig struct {
	RotationTimeout time.Duration
}

func DefaultRotationConfig() RotationConfig {
	return RotationConfig{RotationTimeout: 300 * time.Second}
}

func (c RotationConfig) Validate() error {
	if c.RotationTimeout <= 0 {
		return ErrInvalidMaxMessageAge
	}
	return nil
}

// VerifyConfig tunes relay verification sampling (spec §4.6).
type VerifyConfig struct {
	BlindMessageWeight  float64
	RoutingWeight       float64
	TimingWeight        float64
	TrafficWeight       float64
	ConsensusWeight     float64
	PromoteThreshold    float64 // overall >= this => promote to trusted
	BlockThreshold      float64 // overall < this => block + denylist
	MinimumTests        int     // samples required before a verdict is final
	SampleInterval      time.Duration
	ProbeTimeout        time.Duration // blind probes unanswered past this score zero
}

func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		BlindMessageWeight: 0.30,
		RoutingWeight:      0.25,
		TimingWeight:       0.20,
		TrafficWeight:      0.15,
		ConsensusWeight:    0.10,
		PromoteThreshold:   0.7,
		BlockThreshold:     0.3,
		MinimumTests:       5,
		SampleInterval:     time.Minute,
		ProbeTimeout:       10 * time.Second,
	}
}

func (c VerifyConfig) Validate() error {
	sum := c.BlindMessageWeight + c.RoutingWeight + c.TimingWeight + c.TrafficWeight + c.ConsensusWeight
	if sum < 0.999 || sum > 1.001 {
		return ErrInvalidWeights
	}
	if c.BlockThreshold < 0 || c.BlockThreshold >= c.PromoteThreshold || c.PromoteThreshold > 1 {
		return ErrInvalidThresholds
	}
	if c.ProbeTimeout <= 0 {
		return ErrInvalidProbeTimeout
	}
	return nil
}

// TrustConfig tunes the trust/reputation aggregator (spec §4.6 TrustScore).
type TrustConfig struct {
	ReputationWeight float64 // 0.3
	BehaviorWeight   float64 // 0.4
	ConsensusWeight  float64 // 0.2
	RecencyWeight    float64 // 0.1
	HalfLife         time.Duration
	MinConfidence    float64 // admission also requires confidence >= this
	LowThreshold     float64 // below this: untrusted, evict + denylist
	HighThreshold    float64 // at/above this: promote
}

func DefaultTrustConfig() TrustConfig {
	return TrustConfig{
		ReputationWeight: 0.3,
		BehaviorWeight:   0.4,
		ConsensusWeight:  0.2,
		RecencyWeight:    0.1,
		HalfLife:         24 * time.Hour,
		MinConfidence:    0.5,
		LowThreshold:     0.3,
		HighThreshold:    0.7,
	}
}

func (c TrustConfig) Validate() error {
	sum := c.ReputationWeight + c.BehaviorWeight + c.ConsensusWeight + c.RecencyWeight
	if sum < 0.999 || sum > 1.001 {
		return ErrInvalidWeights
	}
	if c.LowThreshold < 0 || c.LowThreshold >= c.HighThreshold || c.HighThreshold > 1 {
		return ErrInvalidThresholds
	}
	return nil
}

// AuthConfig tunes client authentication (spec §4.7).
type AuthConfig struct {
	MaxChallenges        int
	ChallengeTimeout      time.Duration
	SessionGracePeriod    time.Duration
	ProofOfWorkDifficulty int // leading zero bits required; spec's illustrative 4 is trivially solvable (see DESIGN.md)
	TimestampSkew         time.Duration
}

func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		MaxChallenges:         4,
		ChallengeTimeout:      30 * time.Second,
		SessionGracePeriod:    2 * time.Minute,
		ProofOfWorkDifficulty: 18,
		TimestampSkew:         30 * time.Second,
	}
}

func (c AuthConfig) Validate() error {
	if c.ProofOfWorkDifficulty < 1 || c.ProofOfWorkDifficulty > 256 {
		return ErrInvalidPoWDifficulty
	}
	return nil
}

// PresenceConfig tunes presence and store-and-forward (spec §4.8).
type PresenceConfig struct {
	PresenceTimeout    time.Duration
	MaxPendingMessages int
	MaxDeliveryAttempts int
	DefaultTTL         time.Duration
	DeliveryLoopPeriod time.Duration
}

func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		PresenceTimeout:     300 * time.Second,
		MaxPendingMessages:  200,
		MaxDeliveryAttempts: 3,
		DefaultTTL:          time.Hour,
		DeliveryLoopPeriod:  time.Second,
	}
}

func (c PresenceConfig) Validate() error {
	if c.MaxPendingMessages <= 0 {
		return ErrInvalidMaxPending
	}
	if c.MaxDeliveryAttempts <= 0 || c.DefaultTTL <= 0 {
		return ErrInvalidDeliveryTuning
	}
	return nil
}

// GroupConfig tunes group pub/sub and group-key rotation (spec §4.9).
type GroupConfig struct {
	DefaultMaxMembers   int
	DefaultAlgorithm    string // crypto.Algorithm value
	KeyRotationInterval time.Duration
	MessageTTL          time.Duration
	MaxDeliveryAttempts int
}

func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		DefaultMaxMembers:   256,
		DefaultAlgorithm:    "ChaCha20-Poly1305",
		KeyRotationInterval: 24 * time.Hour,
		MessageTTL:          time.Hour,
		MaxDeliveryAttempts: 3,
	}
}

func (c GroupConfig) Validate() error {
	if c.DefaultMaxMembers <= 0 {
		return ErrInvalidGroupSize
	}
	return nil
}

// DiscoveryConfig tunes candidate intake (spec §4.10).
type DiscoveryConfig struct {
	TrackerTimeout    time.Duration
	RateLimitPerIP    int
	RateLimitWindow   time.Duration
	LivenessProbeTimeout time.Duration
}

func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		TrackerTimeout:       10 * time.Second,
		RateLimitPerIP:       5,
		RateLimitWindow:      time.Minute,
		LivenessProbeTimeout: 5 * time.Second,
	}
}

func (c DiscoveryConfig) Validate() error {
	if c.RateLimitPerIP <= 0 {
		return ErrInvalidRetryAttempts
	}
	return nil
}
