// Package latency implements the kernel's pluggable per-message delay
// model (spec §4.2). A model is a pure function of agent ids and its own
// PRNG state; the kernel treats a missing model as zero latency
// everywhere (spec §4.2, §9).
package latency

import (
	"math/rand"

	"github.com/lobsim/lobsim/internal/domain"
)

// AgentID aliases the kernel's agent identifier.
type AgentID = domain.AgentID

// Model computes the network delay for a message between two agents and
// the additional compute delay incurred when the recipient is the
// exchange.
type Model interface {
	// Delay returns the network transit delay in nanoseconds for a
	// message travelling from -> to.
	Delay(from, to AgentID) int64
	// ComputeAt returns the in-exchange processing delay incurred when
	// recipient is the exchange, in nanoseconds. Callers only invoke
	// this when to is the exchange and from is not (spec §4.5).
	ComputeAt(to AgentID) int64
}

// MsToNs converts milliseconds to nanoseconds.
func MsToNs(ms int64) int64 {
	return ms * 1_000_000
}

// NoLatency is the zero-delay model used when the kernel is configured
// without a latency model (spec §4.2's "missing model" rule, made
// explicit as a concrete type so callers can opt into it directly).
type NoLatency struct{}

func (NoLatency) Delay(_, _ AgentID) int64   { return 0 }
func (NoLatency) ComputeAt(_ AgentID) int64 { return 0 }

// RPCConfig parameterizes the two-stage RPC model (spec §6).
type RPCConfig struct {
	// UpNs is the agent -> exchange network delay.
	UpNs int64
	// DownNs is the exchange -> agent network delay.
	DownNs int64
	// ComputeNs is the in-exchange processing delay.
	ComputeNs int64
	// DownJitterNs is the half-width of a symmetric uniform jitter
	// applied to the downlink only.
	DownJitterNs int64
}

// DefaultRPCConfig matches spec §6's documented defaults: 200ms up,
// 200ms down, 300ms compute, no jitter.
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		UpNs:      MsToNs(200),
		DownNs:    MsToNs(200),
		ComputeNs: MsToNs(300),
	}
}

// RPCModel is the two-stage RPC latency model described in spec §4.2:
// uplink (non-exchange -> exchange), compute (at the exchange, only when
// the receiver is the exchange and the sender is not), and downlink
// (exchange -> non-exchange) with optional symmetric jitter on the
// downlink leg.
type RPCModel struct {
	cfg       RPCConfig
	exchange  AgentID
	rng       *rand.Rand
}

// NewRPCModel creates an RPCModel. exchange is the kernel's exchange
// agent id, used to tell uplink from downlink traffic. seed drives the
// model's own PRNG so replays with the same seed reproduce identical
// jitter (spec §4.2).
func NewRPCModel(cfg RPCConfig, exchange AgentID, seed int64) *RPCModel {
	return &RPCModel{
		cfg:      cfg,
		exchange: exchange,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Delay implements Model.
func (m *RPCModel) Delay(from, to AgentID) int64 {
	if to == m.exchange && from != m.exchange {
		return m.cfg.UpNs
	}
	if from == m.exchange && to != m.exchange {
		return m.cfg.DownNs + m.jitter()
	}
	// Agent-to-agent (e.g. broadcast to a non-exchange participant that
	// did not originate at the exchange) is treated as downlink-shaped:
	// there is no uplink leg to charge because the sender isn't waiting
	// on the exchange's compute stage.
	return m.cfg.DownNs
}

// ComputeAt implements Model.
func (m *RPCModel) ComputeAt(to AgentID) int64 {
	if to == m.exchange {
		return m.cfg.ComputeNs
	}
	return 0
}

func (m *RPCModel) jitter() int64 {
	if m.cfg.DownJitterNs <= 0 {
		return 0
	}
	// Uniform on [-DownJitterNs, +DownJitterNs], both ends included.
	return m.rng.Int63n(2*m.cfg.DownJitterNs+1) - m.cfg.DownJitterNs
}
