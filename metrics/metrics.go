// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics provides the prometheus.Registerer wiring the relay core
// uses to publish operational counters/gauges: RelayMetrics registers one
// collector per component concern (envelope, ring, presence, groups,
// discovery, rotation) and relay.Node updates them off each manager's
// existing snapshot accessors. Averager is a smaller helper for
// latency/score running-averages where a full histogram would be overkill
// (e.g. relay verification latency samples).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the registerer relay.NewNode was given; the Node registers
// its RelayMetrics against it.
type Metrics struct {
	Registry prometheus.Registerer
}

// New wraps reg, defaulting to a fresh private registry when nil (tests).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Metrics{Registry: reg}
}

// Register registers collector, ignoring AlreadyRegisteredError so the same
// Metrics can be shared by multiple manager instances in tests.
func (m *Metrics) Register(collector prometheus.Collector) error {
	err := m.Registry.Register(collector)
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		_ = are
		return nil
	}
	return err
}

// RelayMetrics bundles the scalar counters/gauges the relay.Node tick
// loop and ingress path update directly off each manager's existing
// snapshot/return-value accessors (Ring.Members/Degraded, the counts
// Presence/Groups/Discovery's Sweep methods already return, and so on).
// Metrics are registered centrally here, by the Node, rather than inside
// each manager's constructor: every manager already returns the counts
// an observer needs from its normal API (Sweep return values, Members,
// Degraded), so routing them through a second registerer parameter on
// ten constructors would just be indirection around data the caller
// already has in hand.
type RelayMetrics struct {
	EnvelopesOpened    prometheus.Counter
	EnvelopesRejected  prometheus.Counter
	RingSize           prometheus.Gauge
	RingDegraded       prometheus.Gauge
	PresenceExpired    prometheus.Counter
	PresenceStaleUsers prometheus.Counter
	PresenceDelivered  prometheus.Counter
	DeliveryFailures   prometheus.Counter
	GroupsCleaned      prometheus.Counter
	DiscoveryDropped   prometheus.Counter
	RotationFailures   prometheus.Counter
}

// NewRelayMetrics constructs and registers every RelayMetrics collector
// against m's registry.
func (m *Metrics) NewRelayMetrics() (*RelayMetrics, error) {
	rm := &RelayMetrics{
		EnvelopesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secirc_envelopes_opened_total",
			Help: "Envelopes successfully opened by the envelope layer.",
		}),
		EnvelopesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secirc_envelopes_rejected_total",
			Help: "Envelopes rejected (malformed, bad integrity, stale, replay, unknown type).",
		}),
		RingSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "secirc_ring_size",
			Help: "Current first-ring member count.",
		}),
		RingDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "secirc_ring_degraded",
			Help: "1 if the first ring is below min_ring_size, else 0.",
		}),
		PresenceExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secirc_presence_messages_expired_total",
			Help: "Pending messages dropped by the presence sweep for exceeding their TTL.",
		}),
		PresenceStaleUsers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secirc_presence_stale_users_total",
			Help: "Users transitioned offline by the presence sweep for a lapsed heartbeat.",
		}),
		PresenceDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secirc_presence_messages_delivered_total",
			Help: "Queued messages delivered to an online recipient by the delivery loop.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secirc_presence_delivery_failures_total",
			Help: "Delivery attempts that failed and consumed one of the message's retries.",
		}),
		GroupsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secirc_groups_messages_cleaned_total",
			Help: "Group pub/sub messages dropped by the groups sweep for exceeding their TTL.",
		}),
		DiscoveryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secirc_discovery_candidates_dropped_total",
			Help: "Discovery candidates dropped for never passing a liveness probe in time.",
		}),
		RotationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "secirc_rotation_sweep_failures_total",
			Help: "Key-rotation sweep iterations that reported an error (a session timed out).",
		}),
	}
	for _, c := range []prometheus.Collector{
		rm.EnvelopesOpened, rm.EnvelopesRejected, rm.RingSize, rm.RingDegraded,
		rm.PresenceExpired, rm.PresenceStaleUsers, rm.PresenceDelivered,
		rm.DeliveryFailures, rm.GroupsCleaned,
		rm.DiscoveryDropped, rm.RotationFailures,
	} {
		if err := m.Register(c); err != nil {
			return nil, err
		}
	}
	return rm, nil
}

// Averager tracks a running average, such as verification round-trip time
// or a trust component's recent sample mean.
type Averager interface {
	Observe(value float64)
	Read() float64
}

type averager struct {
	mu    sync.RWMutex
	sum   float64
	count float64

	promCount prometheus.Counter
	promSum   prometheus.Gauge
}

// NewAverager registers a name_count counter and a name_sum gauge under reg
// and returns an Averager backed by them.
func NewAverager(name, help string, reg prometheus.Registerer) (Averager, error) {
	count := prometheus.NewCounter(prometheus.CounterOpts{
		Name: name + "_count",
		Help: "Total # of observations of " + help,
	})
	sum := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name + "_sum",
		Help: "Sum of " + help,
	})
	if err := reg.Register(count); err != nil {
		return nil, err
	}
	if err := reg.Register(sum); err != nil {
		return nil, err
	}
	return &averager{promCount: count, promSum: sum}, nil
}

func (a *averager) Observe(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sum += value
	a.count++
	a.promCount.Inc()
	a.promSum.Add(value)
}

func (a *averager) Read() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.count == 0 {
		return 0
	}
	return a.sum / a.count
}
