// Package exchange implements the single agent permitted to mutate the
// order book (spec §4.4). It validates inbound order messages, drives
// internal/orderbook, emits the response protocol, and publishes market
// data after every mutation.
package exchange

import (
	"go.uber.org/zap"

	"github.com/lobsim/lobsim/internal/agent"
	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/domain"
	"github.com/lobsim/lobsim/internal/kernel"
	"github.com/lobsim/lobsim/internal/orderbook"
)

// Kernel is the kernel surface the exchange needs beyond the base
// agent.Kernel contract: broadcasting market data, emitting bus events
// directly, reading the configured snapshot depth, and registering
// itself as the book snapshot reader for external collaborators (spec
// §4.5, §4.7). kernel.Kernel's adapter satisfies this.
type Kernel interface {
	agent.Kernel
	Broadcast(from domain.AgentID, typ domain.MessageType, body interface{}, extraDelayNs int64)
	Emit(e bus.Event)
	MarketDataDepth() int
	SetBookSnapshotter(fn kernel.BookSnapshotter)
}

// Exchange is the sole mutator of its Book.
type Exchange struct {
	id     domain.AgentID
	symbol string
	book   *orderbook.Book
	k      Kernel
	log    *zap.SugaredLogger
}

// New creates an exchange agent for symbol, registered under id.
func New(id domain.AgentID, symbol string, log *zap.SugaredLogger) *Exchange {
	return &Exchange{id: id, symbol: symbol, book: orderbook.New(symbol), log: log}
}

// Attach satisfies agent.Agent. It requires the kernel passed in to
// also satisfy this package's richer Kernel interface; kernel.Kernel's
// internal adapter does.
func (e *Exchange) Attach(k agent.Kernel) {
	rich, ok := k.(Kernel)
	if !ok {
		panic("exchange: kernel does not support the exchange's Kernel interface")
	}
	e.k = rich
	e.k.SetBookSnapshotter(func(depth int) domain.MarketDataBody {
		return e.book.Snapshot(depth)
	})
}

// Start and Stop are no-ops; the exchange has no periodic activity of
// its own (spec §4.4).
func (e *Exchange) Start(t int64) {}
func (e *Exchange) Stop()         {}

// Wake is never scheduled for the exchange, but satisfies agent.Agent.
func (e *Exchange) Wake(t int64) {}

// Receive dispatches an inbound message per spec §4.4's state machine.
func (e *Exchange) Receive(t int64, msg domain.Message) {
	switch msg.Type {
	case domain.LimitOrderMsg:
		e.handleLimit(t, msg)
	case domain.MarketOrderMsg:
		e.handleMarket(t, msg)
	case domain.CancelOrderMsg:
		e.handleCancel(t, msg)
	case domain.ModifyOrderMsg:
		e.handleModify(t, msg)
	case domain.QuerySpreadMsg:
		e.handleQuerySpread(t, msg)
	case domain.QueryLastMsg:
		e.handleQueryLast(t, msg)
	default:
		if e.log != nil {
			e.log.Warnw("exchange received unroutable message type", "type", msg.Type.String(), "from", msg.From)
		}
	}
}

func (e *Exchange) handleLimit(t int64, msg domain.Message) {
	body, ok := msg.Body.(domain.LimitOrder)
	if !ok {
		e.reject(msg.From, "malformed body", "LIMIT_ORDER", "")
		return
	}
	if body.Symbol != e.symbol {
		e.reject(msg.From, "symbol mismatch", "LIMIT_ORDER", body.ID)
		return
	}
	if body.Price <= 0 {
		e.reject(msg.From, "price must be positive", "LIMIT_ORDER", body.ID)
		return
	}
	if body.Qty <= 0 {
		e.reject(msg.From, "qty must be positive", "LIMIT_ORDER", body.ID)
		return
	}
	if body.Side != domain.Buy && body.Side != domain.Sell {
		e.reject(msg.From, "invalid side", "LIMIT_ORDER", body.ID)
		return
	}

	order := &domain.LimitOrder{
		ID: body.ID, Agent: msg.From, Symbol: e.symbol,
		Side: body.Side, Price: body.Price, Qty: body.Qty, Ts: t,
	}
	trades := e.book.PlaceLimit(order)
	e.book.AssertInvariants()

	e.k.Send(e.id, msg.From, domain.OrderAcceptedMsg, domain.OrderAcceptedBody{
		OrderID: order.ID, Symbol: e.symbol, Side: body.Side, Price: body.Price, Qty: body.Qty,
	}, 0)

	e.publishTrades(trades, order.ID)
	e.broadcastMarketData()
}

func (e *Exchange) handleMarket(t int64, msg domain.Message) {
	body, ok := msg.Body.(domain.MarketOrderBody)
	if !ok {
		e.reject(msg.From, "malformed body", "MARKET_ORDER", "")
		return
	}
	if body.Side != domain.Buy && body.Side != domain.Sell {
		e.reject(msg.From, "invalid side", "MARKET_ORDER", "")
		return
	}
	if body.Qty <= 0 {
		e.reject(msg.From, "qty must be positive", "MARKET_ORDER", "")
		return
	}

	filled, trades := e.book.PlaceMarket(msg.From, body.Side, body.Qty, t)
	if filled == 0 {
		e.reject(msg.From, "No liquidity", "MARKET_ORDER", "")
		return
	}
	e.book.AssertInvariants()

	e.publishTrades(trades, "")
	e.broadcastMarketData()
}

func (e *Exchange) handleCancel(t int64, msg domain.Message) {
	body, ok := msg.Body.(domain.CancelOrderBody)
	if !ok || body.ID == "" {
		e.reject(msg.From, "missing id", "CANCEL_ORDER", "")
		return
	}

	side, price, qty, found := e.book.Cancel(body.ID)
	if !found {
		e.reject(msg.From, "Unknown order id", "CANCEL_ORDER", body.ID)
		return
	}

	e.k.Send(e.id, msg.From, domain.OrderCancelledMsg, domain.OrderCancelledBody{
		OrderID: body.ID, Side: side, Price: price, Qty: qty,
	}, 0)
	e.broadcastMarketData()
}

func (e *Exchange) handleModify(t int64, msg domain.Message) {
	body, ok := msg.Body.(domain.ModifyOrderBody)
	if !ok || body.ID == "" {
		e.reject(msg.From, "missing id", "MODIFY_ORDER", "")
		return
	}
	if body.Price != nil && *body.Price <= 0 {
		e.reject(msg.From, "price must be positive", "MODIFY_ORDER", body.ID)
		return
	}
	if body.Qty != nil && *body.Qty < 0 {
		e.reject(msg.From, "qty must be non-negative", "MODIFY_ORDER", body.ID)
		return
	}

	order, err := e.book.Modify(body.ID, body.Price, body.Qty, t)
	if err != nil {
		e.reject(msg.From, "unknown order id", "MODIFY_ORDER", body.ID)
		return
	}
	e.book.AssertInvariants()

	e.k.Send(e.id, msg.From, domain.OrderAcceptedMsg, domain.OrderAcceptedBody{
		OrderID: body.ID, Symbol: e.symbol, Side: order.Side, Price: order.Price, Qty: order.Qty, Replaced: true,
	}, 0)
	e.broadcastMarketData()
}

func (e *Exchange) handleQuerySpread(t int64, msg domain.Message) {
	body, _ := msg.Body.(domain.QuerySpreadBody)
	depth := body.Depth
	if depth <= 0 {
		depth = e.k.MarketDataDepth()
	}
	snap := e.book.Snapshot(depth)
	e.k.Send(e.id, msg.From, domain.MarketDataMsg, snap, 0)
}

func (e *Exchange) handleQueryLast(t int64, msg domain.Message) {
	last := e.book.Snapshot(0).Last
	e.k.Send(e.id, msg.From, domain.MarketDataMsg, domain.MarketDataBody{Symbol: e.symbol, Last: last}, 0)
}

// publishTrades sends the pair of ORDER_EXECUTED messages per match and
// emits the TRADE bus event strictly between the maker and taker sends
// (spec §5). takerOrderID is the resident order id the taker's own
// message referenced, or "" for a market order or a maker counterparty
// (the book doesn't retain resting order ids per trade).
func (e *Exchange) publishTrades(trades []domain.Trade, takerOrderID string) {
	for _, tr := range trades {
		trCopy := tr

		e.k.Send(e.id, tr.MakerAgent, domain.OrderExecutedMsg, domain.OrderExecutedBody{
			Symbol: tr.Symbol, Price: tr.Price, Qty: tr.Qty,
			Role: domain.Maker, SideForRecipient: tr.MakerSide, OrderID: "",
		}, 0)

		e.k.Emit(bus.Event{Topic: bus.Trade, Trade: &trCopy})

		e.k.Send(e.id, tr.TakerAgent, domain.OrderExecutedMsg, domain.OrderExecutedBody{
			Symbol: tr.Symbol, Price: tr.Price, Qty: tr.Qty,
			Role: domain.Taker, SideForRecipient: tr.MakerSide.Opposite(), OrderID: takerOrderID,
		}, 0)
	}
}

func (e *Exchange) broadcastMarketData() {
	snap := e.book.Snapshot(e.k.MarketDataDepth())
	e.k.Broadcast(e.id, domain.MarketDataMsg, snap, 0)
}

func (e *Exchange) reject(to domain.AgentID, reason, refType, ref string) {
	body := domain.OrderRejectedBody{Reason: reason, RefType: refType, Ref: ref}
	e.k.Send(e.id, to, domain.OrderRejectedMsg, body, 0)
	e.k.Emit(bus.Event{Topic: bus.OrderRejected, OrderRejected: &body})
}
