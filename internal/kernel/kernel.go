// Package kernel owns virtual time, the time queue, the agent registry,
// the exchange identity, and the pub/sub event bus (spec §4.5). Exactly
// one tick runs at a time; event delivery, agent handlers, order-book
// mutations, and bus emissions run to completion before the next tick
// (spec §5) — there is no parallel evaluation of agents.
package kernel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lobsim/lobsim/internal/agent"
	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/domain"
	"github.com/lobsim/lobsim/internal/latency"
	"github.com/lobsim/lobsim/internal/queue"
)

// Config holds the options the kernel recognizes (spec §6).
type Config struct {
	// TickNs is the simulated advance per wall-clock tick. Default
	// 200ms.
	TickNs int64
	// MarketDataDepth is the default snapshot depth published after
	// every book mutation (spec §9's Open Question; default 10).
	MarketDataDepth int
}

// DefaultConfig matches spec §6's documented defaults.
func DefaultConfig() Config {
	return Config{TickNs: latency.MsToNs(200), MarketDataDepth: 10}
}

// BookSnapshotter is the read-only book-access interface the exchange
// agent registers with the kernel so external collaborators can read a
// snapshot without becoming agents themselves (spec §4.7). Implementers
// must return a copy; callers must not retain references into book
// internals.
type BookSnapshotter func(depth int) domain.MarketDataBody

// Kernel is the deterministic discrete-event kernel.
type Kernel struct {
	log *zap.SugaredLogger
	cfg Config

	agents   map[domain.AgentID]agent.Agent
	order    []domain.AgentID // registration order, for deterministic broadcast
	exchange domain.AgentID

	q       *queue.Queue
	lat     latency.Model
	b       *bus.Bus
	now     int64
	stopped bool

	bookSnapshotter BookSnapshotter
	postTick        func()

	// mu serializes external collaborator calls (the human façade, the
	// gateway) against the tick loop's own goroutine, per spec §7: "every
	// such interaction must be serialized with the tick loop... guarding
	// with a single mutex". Agents reached through deliver already run on
	// the goroutine holding this lock and must never call Lock/Unlock
	// themselves.
	mu sync.Mutex
}

// New creates a kernel. logger may be logging.Noop() in tests. lat may
// be nil, in which case every Send carries zero latency (spec §4.2).
func New(cfg Config, lat latency.Model, logger *zap.SugaredLogger) *Kernel {
	if lat == nil {
		lat = latency.NoLatency{}
	}
	return &Kernel{
		log:    logger,
		cfg:    cfg,
		agents: make(map[domain.AgentID]agent.Agent),
		q:      queue.New(),
		lat:    lat,
		b:      bus.New(),
	}
}

// kernelAdapter is what agent.Agent implementations see through the
// agent.Kernel interface; it exists so agents cannot call kernel methods
// (like Register or Stop) outside their contract.
type kernelAdapter struct{ k *Kernel }

func (a kernelAdapter) Send(from, to domain.AgentID, typ domain.MessageType, body interface{}, extraDelayNs int64) {
	a.k.Send(from, to, typ, body, extraDelayNs)
}
func (a kernelAdapter) ScheduleWake(agentID domain.AgentID, at int64) { a.k.ScheduleWake(agentID, at) }
func (a kernelAdapter) ExchangeID() domain.AgentID                   { return a.k.exchange }
func (a kernelAdapter) NowNs() int64                                 { return a.k.now }

// Broadcast, Emit, MarketDataDepth, and SetBookSnapshotter are exposed
// beyond the base agent.Kernel contract for the exchange agent, which
// type-asserts kernelAdapter against its own richer interface (spec
// §4.4/§4.7). The scenario generator also reaches Emit the same way, to
// publish oracle ticks.
func (a kernelAdapter) Broadcast(from domain.AgentID, typ domain.MessageType, body interface{}, extraDelayNs int64) {
	a.k.Broadcast(from, typ, body, extraDelayNs)
}
func (a kernelAdapter) Emit(e bus.Event)                            { a.k.b.Emit(e) }
func (a kernelAdapter) MarketDataDepth() int                        { return a.k.cfg.MarketDataDepth }
func (a kernelAdapter) SetBookSnapshotter(fn BookSnapshotter)       { a.k.SetBookSnapshotter(fn) }

// On and Off let an agent subscribe to bus-only topics (oracle ticks,
// trades) the same way the scenario generator and exchange do, via their
// own narrower interface type-assertions against kernelAdapter.
func (a kernelAdapter) On(topic bus.Topic, handler bus.Handler) { a.k.b.On(topic, handler) }
func (a kernelAdapter) Off(topic bus.Topic)                     { a.k.b.Off(topic) }

// Lock and Unlock expose the kernel's external-serialization mutex to a
// human façade so its cross-goroutine calls (spec §7) never race the
// tick loop. Only external callers should use these; agents reached from
// inside deliver already run under the lock.
func (a kernelAdapter) Lock()   { a.k.mu.Lock() }
func (a kernelAdapter) Unlock() { a.k.mu.Unlock() }

// Register adds an agent under id and immediately calls its Attach
// hook (spec §3's agent lifecycle: "created at configuration, attached
// to the kernel").
func (k *Kernel) Register(id domain.AgentID, a agent.Agent) {
	k.agents[id] = a
	k.order = append(k.order, id)
	a.Attach(kernelAdapter{k})
}

// SetExchange records which registered agent id is the exchange (spec
// §3: "Exactly one agent is designated the exchange").
func (k *Kernel) SetExchange(id domain.AgentID) { k.exchange = id }

// Lock and Unlock expose the same external-serialization mutex
// kernelAdapter gives agents, for drivers that register agents or read
// kernel state from outside the tick loop at runtime — e.g.
// internal/gateway spinning up a human façade per connection after
// Start. Callers must hold this around Register and any other kernel
// call made from a goroutine that isn't the tick loop's own.
func (k *Kernel) Lock()   { k.mu.Lock() }
func (k *Kernel) Unlock() { k.mu.Unlock() }

// ExchangeID returns the configured exchange agent id.
func (k *Kernel) ExchangeID() domain.AgentID { return k.exchange }

// SetBookSnapshotter registers the read-only snapshot accessor used by
// external collaborators (spec §4.7).
func (k *Kernel) SetBookSnapshotter(fn BookSnapshotter) { k.bookSnapshotter = fn }

// Snapshot returns a depth-level L2 snapshot if a book snapshotter has
// been registered.
func (k *Kernel) Snapshot(depth int) (domain.MarketDataBody, bool) {
	if k.bookSnapshotter == nil {
		return domain.MarketDataBody{}, false
	}
	return k.bookSnapshotter(depth), true
}

// SetPostTickObserver installs the hook invoked once after each tick
// (spec §4.5 "Tick" step 3), used by the terminal renderer / external
// collaborators.
func (k *Kernel) SetPostTickObserver(fn func()) { k.postTick = fn }

// On subscribes handler to bus topic (spec §4.5).
func (k *Kernel) On(topic bus.Topic, handler bus.Handler) { k.b.On(topic, handler) }

// Off removes every handler subscribed to topic.
func (k *Kernel) Off(topic bus.Topic) { k.b.Off(topic) }

// NowNs returns the current virtual clock, in nanoseconds.
func (k *Kernel) NowNs() int64 { return k.now }

// MarketDataDepth returns the configured default snapshot depth.
func (k *Kernel) MarketDataDepth() int { return k.cfg.MarketDataDepth }

// Send schedules a message for delivery, stamping its delivery time with
// network and (exchange-only) compute latency (spec §4.5). For
// order-mutating categories, an ORDER_LOG bus event is emitted
// synchronously, before delivery (spec §5).
func (k *Kernel) Send(from, to domain.AgentID, typ domain.MessageType, body interface{}, extraDelayNs int64) {
	network := k.lat.Delay(from, to)
	var compute int64
	if to == k.exchange && from != k.exchange {
		compute = k.lat.ComputeAt(to)
	}
	at := k.now + network + compute + extraDelayNs

	if typ.IsOrderMutating() {
		k.b.Emit(bus.Event{
			Topic: bus.OrderLog,
			OrderLog: &domain.OrderLog{
				Ts: k.now, From: from, To: to, Type: typ, Body: body,
			},
		})
	}

	k.q.Push(at, domain.Message{From: from, To: to, Type: typ, Body: body, At: at})
}

// ScheduleWake enqueues a WAKEUP for agentID at the given absolute
// virtual time. WAKEUP bypasses the latency model entirely (spec §9's
// Open Question resolution).
func (k *Kernel) ScheduleWake(agentID domain.AgentID, at int64) {
	k.q.Push(at, domain.Message{From: domain.KernelSender, To: agentID, Type: domain.WakeupMsg, At: at})
}

// Broadcast schedules one message per non-sender agent, each stamped
// with its own latency (spec §4.5). Delivery order across recipients
// follows registration order for determinism.
func (k *Kernel) Broadcast(from domain.AgentID, typ domain.MessageType, body interface{}, extraDelayNs int64) {
	for _, id := range k.order {
		if id == from {
			continue
		}
		k.Send(from, id, typ, body, extraDelayNs)
	}
}

// Start sets the clock to startNs and invokes each agent's start hook,
// in registration order (spec §4.5).
func (k *Kernel) Start(startNs int64) {
	k.now = startNs
	k.stopped = false
	for _, id := range k.order {
		k.agents[id].Start(startNs)
	}
}

// Stop halts the tick timer and invokes each agent's stop hook; any
// still-queued messages are discarded (spec §4.5, §5).
func (k *Kernel) Stop() {
	k.stopped = true
	for _, id := range k.order {
		k.agents[id].Stop()
	}
	k.q.Clear()
}

// deliver dispatches a single popped message to its recipient. Unknown
// recipients are silently dropped (spec §4.5, §7). The recipient sees
// the message's own precise delivery time as "now", preserving exact
// latency arithmetic even though the kernel's externally observed clock
// only advances in fixed tick increments (spec §8's invariant on NowNs
// applies between ticks, not to in-tick dispatch order).
func (k *Kernel) deliver(m domain.Message) {
	a, ok := k.agents[m.To]
	if !ok {
		if k.log != nil {
			k.log.Debugw("dropping message to unknown recipient", "to", m.To, "type", m.Type.String())
		}
		return
	}
	prevNow := k.now
	k.now = m.At
	if m.Type == domain.WakeupMsg {
		a.Wake(m.At)
	} else {
		a.Receive(m.At, m)
	}
	k.now = prevNow
}

// Tick advances the virtual clock by one fixed increment and delivers
// every message whose delivery time has arrived (spec §4.5). RunWallClock
// is built on it; RunToCompletion steps the queue directly and does not
// call Tick.
func (k *Kernel) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return
	}
	k.now += k.cfg.TickNs
	boundary := k.now

	for {
		_, at, ok := k.q.Peek()
		if !ok || at > boundary {
			break
		}
		payload, _, _ := k.q.Pop()
		k.deliver(payload.(domain.Message))
	}

	k.now = boundary
	if k.postTick != nil {
		k.postTick()
	}
}

// RunWallClock paces Tick calls on a real-time ticker until ctx is
// cancelled or Stop is called. This is the interactive driver (spec
// §4.5's "wall-clock timer"); it lets external human interaction flow
// into the simulation between ticks while preserving determinism within
// a tick (spec §2).
func (k *Kernel) RunWallClock(ctx context.Context, wallInterval time.Duration) {
	ticker := time.NewTicker(wallInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if k.stopped {
				return
			}
			k.Tick()
		}
	}
}

// RunToCompletion drains the queue without sleeping, fast-forwarding the
// clock directly to each pending message's delivery time instead of
// waiting for fixed wall-clock ticks (spec §9's "run-as-fast-as-possible
// driver... for tests"). It does not preserve the fixed tickNs-per-tick
// invariant (spec §8) between its internal steps, but it delivers
// exactly the same messages, in exactly the same order, with exactly
// the same content as a wall-paced run over the same config and seeds
// when no external I/O is involved.
func (k *Kernel) RunToCompletion() {
	for {
		if done := k.runToCompletionStep(); done {
			return
		}
	}
}

// runToCompletionStep processes one message under the external-call
// lock and reports whether the run is finished (stopped or drained).
func (k *Kernel) runToCompletionStep() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return true
	}
	_, at, ok := k.q.Peek()
	if !ok {
		return true
	}
	if at > k.now {
		k.now = at
	}
	payload, _, _ := k.q.Pop()
	k.deliver(payload.(domain.Message))
	if k.postTick != nil {
		k.postTick()
	}
	return false
}

// Pending returns the number of messages still queued.
func (k *Kernel) Pending() int { return k.q.Len() }
