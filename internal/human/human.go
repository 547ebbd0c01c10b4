// Package human implements the C7 human-trader entry façade (spec §7):
// a dedicated agent.Agent exposing placeLimit/placeMarket/cancel/modify/
// listOpen/getBalances, which translate into kernel Send calls. A
// gateway (internal/gateway) calls these methods; it never touches the
// kernel queue directly. Grounded on ndrandal-feed-simulator's
// internal/session.Client, which also fronts a single goroutine-confined
// resource (a websocket connection) with a mutex-guarded state struct and
// a bounded channel for cross-goroutine handoff — here the resource is
// the kernel's single-threaded tick loop instead of a socket.
package human

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lobsim/lobsim/internal/agent"
	"github.com/lobsim/lobsim/internal/domain"
)

// ErrTimeout is returned when the kernel doesn't answer a blocking call
// before its context is done (e.g. the tick driver isn't running).
var ErrTimeout = errors.New("human: kernel did not respond before context was done")

// OpenOrder is the façade's locally tracked view of one resident order,
// built from ORDER_ACCEPTED/ORDER_EXECUTED/ORDER_CANCELLED responses
// rather than a book query, since only the exchange may read the book
// directly (spec §4.6).
type OpenOrder struct {
	ID    string
	Side  domain.Side
	Price int64
	Qty   int64 // remaining
}

// Balance is the façade's running per-symbol position and realized cash,
// accumulated from ORDER_EXECUTED fills.
type Balance struct {
	Symbol       string
	Position     int64 // positive long, negative short
	RealizedCash int64 // cents; proceeds of sells minus cost of buys
}

// pendingAck correlates a blocking call with the response that completes
// it: ORDER_ACCEPTED/ORDER_REJECTED keyed by order id (the uuid
// PlaceLimit generates, or the id passed to Cancel/Modify). Market
// orders have no id, so they're resolved non-blocking
// (see PlaceMarket).
type pendingAck struct {
	accepted *domain.OrderAcceptedBody
	rejected *domain.OrderRejectedBody
	ch       chan struct{}
}

// Human is the human-trader facing agent.Agent.
type Human struct {
	id     domain.AgentID
	symbol string
	k      agent.Kernel
	lockFn locker

	mu      sync.Mutex
	pending map[string]*pendingAck
	open    map[string]*OpenOrder
	bal     Balance
}

// locker is the kernel's external-serialization mutex, exposed through
// the same richer-interface type-assertion idiom internal/exchange and
// internal/scenario use. Every call that reaches into the kernel from
// outside the tick loop (spec §7) takes this lock first.
type locker interface {
	Lock()
	Unlock()
}

// New creates a human-trader façade for symbol.
func New(id domain.AgentID, symbol string) *Human {
	return &Human{
		id:      id,
		symbol:  symbol,
		pending: make(map[string]*pendingAck),
		open:    make(map[string]*OpenOrder),
		bal:     Balance{Symbol: symbol},
	}
}

func (h *Human) Attach(k agent.Kernel) {
	h.k = k
	if l, ok := k.(locker); ok {
		h.lockFn = l
	}
}
func (h *Human) Start(int64)           {}
func (h *Human) Stop()                 {}
func (h *Human) Wake(int64)            {}

// Receive is invoked on the kernel's own goroutine; it updates local
// state and wakes any blocking call waiting on this response.
func (h *Human) Receive(_ int64, msg domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch msg.Type {
	case domain.OrderAcceptedMsg:
		body := msg.Body.(domain.OrderAcceptedBody)
		h.open[body.OrderID] = &OpenOrder{ID: body.OrderID, Side: body.Side, Price: body.Price, Qty: body.Qty}
		h.resolve(body.OrderID, &body, nil)

	case domain.OrderRejectedMsg:
		body := msg.Body.(domain.OrderRejectedBody)
		h.resolve(body.Ref, nil, &body)

	case domain.OrderCancelledMsg:
		body := msg.Body.(domain.OrderCancelledBody)
		delete(h.open, body.OrderID)
		h.resolve(body.OrderID, &domain.OrderAcceptedBody{
			OrderID: body.OrderID, Symbol: h.symbol, Side: body.Side, Price: body.Price, Qty: body.Qty,
		}, nil)

	case domain.OrderExecutedMsg:
		body := msg.Body.(domain.OrderExecutedBody)
		h.applyFill(body)
		if body.OrderID != "" {
			if o, ok := h.open[body.OrderID]; ok {
				o.Qty -= body.Qty
				if o.Qty <= 0 {
					delete(h.open, body.OrderID)
				}
			}
		}
	}
}

func (h *Human) applyFill(body domain.OrderExecutedBody) {
	sign := int64(1)
	if body.SideForRecipient == domain.Sell {
		sign = -1
	}
	h.bal.Position += sign * body.Qty
	h.bal.RealizedCash -= sign * body.Qty * body.Price
}

// resolve must be called with h.mu held.
func (h *Human) resolve(key string, accepted *domain.OrderAcceptedBody, rejected *domain.OrderRejectedBody) {
	p, ok := h.pending[key]
	if !ok {
		return
	}
	p.accepted = accepted
	p.rejected = rejected
	close(p.ch)
	delete(h.pending, key)
}

// sendAwaiting registers a pending entry under both the kernel's
// external lock and h.mu, issues send while still holding the kernel
// lock (so the tick loop cannot process and answer it before the entry
// exists), then blocks for the response or ctx cancellation.
func (h *Human) sendAwaiting(ctx context.Context, id string, send func()) (*domain.OrderAcceptedBody, *domain.OrderRejectedBody, error) {
	p := &pendingAck{ch: make(chan struct{})}

	if h.lockFn != nil {
		h.lockFn.Lock()
	}
	h.mu.Lock()
	h.pending[id] = p
	h.mu.Unlock()
	send()
	if h.lockFn != nil {
		h.lockFn.Unlock()
	}

	select {
	case <-p.ch:
		return p.accepted, p.rejected, nil
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
		return nil, nil, ErrTimeout
	}
}

// PlaceLimit submits a resident order and blocks until the exchange
// accepts or rejects it. If ctx is done first, the pending entry is
// removed and ErrTimeout is returned; a later ORDER_ACCEPTED for the
// order still adds it to ListOpen.
func (h *Human) PlaceLimit(ctx context.Context, side domain.Side, price, qty int64) (*domain.OrderAcceptedBody, *domain.OrderRejectedBody, error) {
	id := uuid.NewString()
	return h.sendAwaiting(ctx, id, func() {
		h.k.Send(h.id, h.k.ExchangeID(), domain.LimitOrderMsg, domain.LimitOrder{
			ID: id, Symbol: h.symbol, Side: side, Price: price, Qty: qty,
		}, 0)
	})
}

// PlaceMarket submits a market order. Market orders carry no client id,
// so fills/rejections for it surface asynchronously through Receive
// rather than a blocking return value; the caller observes them via
// ListOpen/GetBalances or its own bus subscription.
func (h *Human) PlaceMarket(side domain.Side, qty int64) {
	if h.lockFn != nil {
		h.lockFn.Lock()
		defer h.lockFn.Unlock()
	}
	h.k.Send(h.id, h.k.ExchangeID(), domain.MarketOrderMsg, domain.MarketOrderBody{
		Symbol: h.symbol, Side: side, Qty: qty,
	}, 0)
}

// Cancel requests cancellation of orderID and blocks until the exchange
// confirms or rejects it.
func (h *Human) Cancel(ctx context.Context, orderID string) (*domain.OrderAcceptedBody, *domain.OrderRejectedBody, error) {
	return h.sendAwaiting(ctx, orderID, func() {
		h.k.Send(h.id, h.k.ExchangeID(), domain.CancelOrderMsg, domain.CancelOrderBody{ID: orderID}, 0)
	})
}

// Modify requests a price and/or quantity change to orderID and blocks
// until the exchange confirms or rejects it.
func (h *Human) Modify(ctx context.Context, orderID string, price, qty *int64) (*domain.OrderAcceptedBody, *domain.OrderRejectedBody, error) {
	return h.sendAwaiting(ctx, orderID, func() {
		h.k.Send(h.id, h.k.ExchangeID(), domain.ModifyOrderMsg, domain.ModifyOrderBody{ID: orderID, Price: price, Qty: qty}, 0)
	})
}

// ListOpen returns this human's locally tracked resident orders, sorted
// by order id for a deterministic listing.
func (h *Human) ListOpen() []OpenOrder {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]OpenOrder, 0, len(h.open))
	for _, o := range h.open {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetBalances returns this human's accumulated position and cash.
func (h *Human) GetBalances() Balance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bal
}

func (h *Human) String() string {
	return fmt.Sprintf("human(%d)", h.id)
}
