// Package strategy implements the illustrative demo agents used by
// "lobsim demo" and the integration tests: a noise trader, a simple
// market maker, and an oracle-tick-reactive trader. They are grounded on
// the teacher's internal/trader/agent.go Strategy.Decide logic (re-quote,
// cancel-stale, cross-on-signal), rewritten against the agent.Agent
// interface and Send/ScheduleWake message passing instead of direct
// struct-field access on a shared Agent/ActiveOrders map. Per spec's
// Non-goals these are illustrative only, not production strategies.
package strategy

import (
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/lobsim/lobsim/internal/agent"
	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/domain"
)

// subscriber lets an agent subscribe to bus-only topics through the same
// richer-interface type-assertion idiom internal/exchange and
// internal/scenario use for their own extra kernel needs.
type subscriber interface {
	On(topic bus.Topic, handler bus.Handler)
}

// NoiseTrader submits randomly sized/priced limit and market orders on a
// fixed cadence; it never tracks resting orders and never cancels,
// distinguishing it from MarketMaker's quote-and-manage behavior.
type NoiseTrader struct {
	id         domain.AgentID
	symbol     string
	intervalNs int64
	midPrice   int64
	spread     int64
	qty        int64
	rng        *rand.Rand

	k agent.Kernel
}

// NewNoiseTrader creates a noise trader that wakes every intervalNs and
// posts a random limit or market order near midPrice.
func NewNoiseTrader(id domain.AgentID, symbol string, intervalNs, midPrice, spread, qty, seed int64) *NoiseTrader {
	return &NoiseTrader{
		id: id, symbol: symbol, intervalNs: intervalNs,
		midPrice: midPrice, spread: spread, qty: qty,
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (n *NoiseTrader) Attach(k agent.Kernel) { n.k = k }
func (n *NoiseTrader) Start(t int64)         { n.k.ScheduleWake(n.id, t+n.intervalNs) }
func (n *NoiseTrader) Stop()                 {}
func (n *NoiseTrader) Receive(int64, domain.Message) {}

func (n *NoiseTrader) Wake(t int64) {
	side := domain.Buy
	if n.rng.Float64() < 0.5 {
		side = domain.Sell
	}
	if n.rng.Float64() < 0.2 {
		n.k.Send(n.id, n.k.ExchangeID(), domain.MarketOrderMsg, domain.MarketOrderBody{
			Symbol: n.symbol, Side: side, Qty: n.qty,
		}, 0)
	} else {
		offset := n.rng.Int63n(n.spread + 1)
		price := n.midPrice - n.spread/2 + offset
		n.k.Send(n.id, n.k.ExchangeID(), domain.LimitOrderMsg, domain.LimitOrder{
			ID: fmt.Sprintf("noise-%d-%d", n.id, t), Symbol: n.symbol, Side: side,
			Price: price, Qty: n.qty,
		}, 0)
	}
	n.k.ScheduleWake(n.id, t+n.intervalNs)
}

// MarketMaker re-quotes a two-sided market at the current best bid/ask
// every ReQuoteIntervalNs, cancelling any quote still resting past
// CancelTimeoutNs (spec's QUERY_SPREAD is the only way to learn the
// book, matching the exchange being the sole book-reading participant).
type MarketMaker struct {
	id     domain.AgentID
	symbol string

	ReQuoteIntervalNs int64
	CancelTimeoutNs   int64
	TargetQty         int64

	k agent.Kernel

	nextID  uint64
	resting map[string]int64 // order id -> placement time
	bidID   string
	askID   string
}

// NewMarketMaker creates a market maker with the teacher's default
// cadence (100ms re-quote, 500ms stale timeout, 5-lot quotes).
func NewMarketMaker(id domain.AgentID, symbol string) *MarketMaker {
	return &MarketMaker{
		id: id, symbol: symbol,
		ReQuoteIntervalNs: 100_000_000,
		CancelTimeoutNs:   500_000_000,
		TargetQty:         5,
		resting:           make(map[string]int64),
	}
}

func (m *MarketMaker) Attach(k agent.Kernel) { m.k = k }
func (m *MarketMaker) Start(t int64)         { m.k.ScheduleWake(m.id, t+m.ReQuoteIntervalNs) }
func (m *MarketMaker) Stop()                 {}

func (m *MarketMaker) Receive(t int64, msg domain.Message) {
	if msg.Type != domain.MarketDataMsg {
		return
	}
	md := msg.Body.(domain.MarketDataBody)
	m.cancelStale(t)
	if m.bidID == "" && len(md.Bids) > 0 {
		m.bidID = m.quote(domain.Buy, md.Bids[0].Price, t)
	}
	if m.askID == "" && len(md.Asks) > 0 {
		m.askID = m.quote(domain.Sell, md.Asks[0].Price, t)
	}
}

func (m *MarketMaker) Wake(t int64) {
	m.cancelStale(t)
	m.k.Send(m.id, m.k.ExchangeID(), domain.QuerySpreadMsg, domain.QuerySpreadBody{Symbol: m.symbol}, 0)
	m.k.ScheduleWake(m.id, t+m.ReQuoteIntervalNs)
}

func (m *MarketMaker) cancelStale(t int64) {
	var ids []string
	for id := range m.resting {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if t-m.resting[id] > m.CancelTimeoutNs {
			m.k.Send(m.id, m.k.ExchangeID(), domain.CancelOrderMsg, domain.CancelOrderBody{ID: id}, 0)
			delete(m.resting, id)
			if id == m.bidID {
				m.bidID = ""
			}
			if id == m.askID {
				m.askID = ""
			}
		}
	}
}

func (m *MarketMaker) quote(side domain.Side, price, t int64) string {
	m.nextID++
	id := fmt.Sprintf("mm-%d-%d", m.id, m.nextID)
	m.k.Send(m.id, m.k.ExchangeID(), domain.LimitOrderMsg, domain.LimitOrder{
		ID: id, Symbol: m.symbol, Side: side, Price: price, Qty: m.TargetQty,
	}, 0)
	m.resting[id] = t
	return id
}

// OracleTrader crosses the spread with a market order whenever an oracle
// tick's magnitude exceeds CrossThreshold, the strong-signal branch of
// the teacher's Strategy.Decide.
type OracleTrader struct {
	id     domain.AgentID
	symbol string

	CrossThreshold float64
	TargetQty      int64

	k   agent.Kernel
	log *zap.SugaredLogger
}

// NewOracleTrader creates an oracle-reactive trader with the teacher's
// default threshold of 1.0 and a 5-lot crossing size.
func NewOracleTrader(id domain.AgentID, symbol string, log *zap.SugaredLogger) *OracleTrader {
	return &OracleTrader{id: id, symbol: symbol, CrossThreshold: 1.0, TargetQty: 5, log: log}
}

func (o *OracleTrader) Attach(k agent.Kernel) {
	o.k = k
	if sub, ok := k.(subscriber); ok {
		sub.On(bus.OracleTick, o.onTick)
	} else if o.log != nil {
		o.log.Warnw("kernel does not expose bus subscription; oracle trader will never act", "agent", o.id)
	}
}

func (o *OracleTrader) Start(int64)                   {}
func (o *OracleTrader) Stop()                         {}
func (o *OracleTrader) Receive(int64, domain.Message) {}
func (o *OracleTrader) Wake(int64)                    {}

// onTick is a bus handler (spec §4.5): it must not block, and it may
// call Send/ScheduleWake directly since those only enqueue work on the
// kernel's own queue rather than re-entering the tick loop synchronously.
func (o *OracleTrader) onTick(e bus.Event) {
	if e.OracleTick == nil || e.OracleTick.Symbol != o.symbol {
		return
	}
	v := e.OracleTick.Fundamental
	if v <= o.CrossThreshold && v >= -o.CrossThreshold {
		return
	}
	side := domain.Buy
	if v < 0 {
		side = domain.Sell
	}
	o.k.Send(o.id, o.k.ExchangeID(), domain.MarketOrderMsg, domain.MarketOrderBody{
		Symbol: o.symbol, Side: side, Qty: o.TargetQty,
	}, 0)
}
