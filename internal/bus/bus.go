// Package bus implements the kernel's synchronous, single-threaded
// publish-subscribe event bus (spec §4.5, §9). Handlers register against
// a statically typed event-variant tag instead of an untyped payload;
// emission is synchronous and handlers must not block the tick.
package bus

import "github.com/lobsim/lobsim/internal/domain"

// Topic identifies one of the bus-only event categories from spec §6.
type Topic uint8

const (
	Trade Topic = iota
	OrderLog
	OrderRejected
	MarketData
	OracleTick
)

func (t Topic) String() string {
	switch t {
	case Trade:
		return "TRADE"
	case OrderLog:
		return "ORDER_LOG"
	case OrderRejected:
		return "ORDER_REJECTED"
	case MarketData:
		return "MARKET_DATA"
	case OracleTick:
		return "ORACLE_TICK"
	default:
		return "UNKNOWN"
	}
}

// Event is the payload delivered to a subscriber. Exactly one of the
// typed fields is populated, matching the topic it was emitted under.
type Event struct {
	Topic Topic

	Trade         *domain.Trade
	OrderLog      *domain.OrderLog
	OrderRejected *domain.OrderRejectedBody
	MarketData    *domain.MarketDataBody
	OracleTick    *domain.OracleTick
}

// Handler processes one bus event. It must not block (spec §5). It may
// enqueue outbound work, for example through the kernel's Send or
// ScheduleWake, which only push onto the time queue. It must not drive
// delivery itself.
type Handler func(Event)

// Bus is a single-threaded, synchronous publish-subscribe dispatcher.
type Bus struct {
	handlers map[Topic][]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[Topic][]Handler)}
}

// On registers handler for topic. Returns nothing identifying the
// subscription; a single handler cannot be removed on its own. Off(topic)
// removes every handler registered for that topic, matching spec §4.5's
// on/off contract at the granularity this simulator needs.
func (b *Bus) On(topic Topic, handler Handler) {
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Off removes every handler registered for topic.
func (b *Bus) Off(topic Topic) {
	delete(b.handlers, topic)
}

// Emit delivers event to every handler subscribed to its topic, in
// registration order. A handler panic is recovered and swallowed so one
// misbehaving observer cannot propagate into the tick loop (spec §7
// "malformed bus event emitted by a handler").
func (b *Bus) Emit(event Event) {
	for _, h := range b.handlers[event.Topic] {
		func() {
			defer func() { _ = recover() }()
			h(event)
		}()
	}
}
