// Package agent defines the runtime contract every kernel participant
// satisfies (spec §4.6). Spec §9 explicitly flags the source's dynamic
// dispatch on a class hierarchy as something to re-architect into a
// single interface with five methods; this package is that interface.
package agent

import "github.com/lobsim/lobsim/internal/domain"

// Kernel is the subset of kernel behavior an agent is allowed to use:
// sending messages, scheduling its own wake-ups, and reading the
// exchange id / current virtual time. Agents must not read or mutate
// other agents' state (spec §4.6).
type Kernel interface {
	Send(from, to domain.AgentID, typ domain.MessageType, body interface{}, extraDelayNs int64)
	ScheduleWake(agentID domain.AgentID, at int64)
	ExchangeID() domain.AgentID
	NowNs() int64
}

// Agent is the five-method runtime contract (spec §4.6).
type Agent interface {
	// Attach is invoked once, before Start.
	Attach(k Kernel)
	// Start is invoked at kernel start, typically to schedule the
	// first wake.
	Start(t int64)
	// Stop is invoked at kernel stop.
	Stop()
	// Receive is invoked for each non-wake message addressed to this
	// agent.
	Receive(t int64, msg domain.Message)
	// Wake is invoked when a WAKEUP is delivered to this agent.
	Wake(t int64)
}
