// Package orderbook implements the canonical price-time priority matcher
// for a single symbol (spec §4.3). It is mutated only by the exchange
// agent; it never produces validation errors — unknown-id on cancel and
// modify is the single error case it surfaces (spec §7).
package orderbook

import (
	"fmt"
	"sort"

	"github.com/lobsim/lobsim/internal/domain"
)

// priceLevel holds all resting orders at a single price, oldest first.
type priceLevel struct {
	price  int64
	orders []*domain.LimitOrder
}

func (pl *priceLevel) totalQty() int64 {
	var total int64
	for _, o := range pl.orders {
		total += o.Qty
	}
	return total
}

// Book is a single-instrument limit order book.
type Book struct {
	Symbol string

	bids []*priceLevel // descending by price, best bid first
	asks []*priceLevel // ascending by price, best ask first

	index map[string]*domain.LimitOrder // order id -> resident order
	last  *int64
}

// New creates an empty book for symbol.
func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		index:  make(map[string]*domain.LimitOrder),
	}
}

// PlaceLimit inserts order into the correct side, matches it
// aggressively against the book, and rests any unfilled remainder.
// Returns the executions generated, in the price-time priority order
// makers were consumed (spec §4.3).
func (b *Book) PlaceLimit(order *domain.LimitOrder) []domain.Trade {
	trades := b.match(order, order.Side, order.Price, true)
	if order.Qty > 0 {
		b.insert(order)
	}
	return trades
}

// PlaceMarket sweeps the opposite side until qty is exhausted or that
// side is empty. Returns the quantity filled and the executions
// generated; market orders never rest (spec §4.3).
func (b *Book) PlaceMarket(agent domain.AgentID, side domain.Side, qty int64, ts int64) (filled int64, trades []domain.Trade) {
	incoming := &domain.LimitOrder{
		ID:     "", // market orders never rest, so no id is needed
		Agent:  agent,
		Symbol: b.Symbol,
		Side:   side,
		Qty:    qty,
		Ts:     ts,
	}
	trades = b.match(incoming, side, 0, false)
	filled = qty - incoming.Qty
	return filled, trades
}

// match repeats the matching step against the opposite side of side
// while both are non-empty and crossed, per spec §4.3's algorithm.
// limitPrice/usePrice controls whether price crossing is checked (limit
// orders check it; market orders sweep regardless of price).
func (b *Book) match(incoming *domain.LimitOrder, side domain.Side, limitPrice int64, usePrice bool) []domain.Trade {
	var trades []domain.Trade
	opposite := &b.asks
	if side == domain.Sell {
		opposite = &b.bids
	}

	for incoming.Qty > 0 && len(*opposite) > 0 {
		level := (*opposite)[0]

		if usePrice {
			if side == domain.Buy && limitPrice < level.price {
				break
			}
			if side == domain.Sell && limitPrice > level.price {
				break
			}
		}

		for len(level.orders) > 0 && incoming.Qty > 0 {
			resting := level.orders[0]

			// Match price is the earlier-ts order's price, ties going to
			// the bid (spec §4.3: "bestBid.ts <= bestAsk.ts => bestBid.price").
			// Market orders have no limit price of their own and always
			// trade at the resting order's price.
			var bidTs, askTs int64
			var bidPrice, askPrice int64
			if side == domain.Buy {
				bidTs, askTs = incoming.Ts, resting.Ts
				bidPrice, askPrice = limitPriceOr(usePrice, limitPrice, resting.Price), resting.Price
			} else {
				bidTs, askTs = resting.Ts, incoming.Ts
				bidPrice, askPrice = resting.Price, limitPriceOr(usePrice, limitPrice, resting.Price)
			}
			matchPrice := askPrice
			if bidTs <= askTs {
				matchPrice = bidPrice
			}

			qty := min64(incoming.Qty, resting.Qty)
			incoming.Qty -= qty
			resting.Qty -= qty

			b.last = &matchPrice
			trade := domain.Trade{
				Ts:         incoming.Ts,
				Symbol:     b.Symbol,
				Price:      matchPrice,
				Qty:        qty,
				MakerAgent: resting.Agent,
				TakerAgent: incoming.Agent,
				MakerSide:  resting.Side,
			}
			trades = append(trades, trade)

			if resting.Qty == 0 {
				delete(b.index, resting.ID)
				level.orders = level.orders[1:]
			}
		}

		if len(level.orders) == 0 {
			*opposite = (*opposite)[1:]
		}
	}

	return trades
}

// limitPriceOr resolves spec §4.3's match-price rule: when the incoming
// order is earlier (ts-wise) than the resting order, the match happens at
// the incoming limit order's price; a market order has no limit price to
// use, so it always trades at the resting order's price.
func limitPriceOr(usePrice bool, limitPrice, restingPrice int64) int64 {
	if !usePrice {
		return restingPrice
	}
	return limitPrice
}

// Cancel removes the resident order orderID and returns its former
// side/price/qty. ok is false if the id is unknown or already removed
// (spec §9's Open Question: cancel on unknown id rejects, never ACKs).
func (b *Book) Cancel(orderID string) (side domain.Side, price int64, qty int64, ok bool) {
	order, exists := b.index[orderID]
	if !exists {
		return 0, 0, 0, false
	}
	side, price, qty = order.Side, order.Price, order.Qty
	b.removeResident(order)
	delete(b.index, orderID)
	return side, price, qty, true
}

// Modify applies an optional price and/or qty change to a resident
// order. If qty becomes 0 the order is removed (cancel-equivalent). If
// price changes, ts is reset to nowTs, losing priority; if price is
// specified but unchanged, ts is preserved (spec §4.3).
func (b *Book) Modify(orderID string, newPrice, newQty *int64, nowTs int64) (*domain.LimitOrder, error) {
	order, exists := b.index[orderID]
	if !exists {
		return nil, fmt.Errorf("unknown order id: %s", orderID)
	}

	if newQty != nil && *newQty == 0 {
		b.removeResident(order)
		delete(b.index, orderID)
		order.Qty = 0
		return order, nil
	}

	priceChanged := newPrice != nil && *newPrice != order.Price
	if priceChanged {
		b.removeResident(order)
	}

	if newQty != nil {
		order.Qty = *newQty
	}
	if newPrice != nil {
		order.Price = *newPrice
	}
	if priceChanged {
		order.Ts = nowTs
		b.insert(order)
	}

	return order, nil
}

// insert places a resident order into the correct, sorted price level.
func (b *Book) insert(order *domain.LimitOrder) {
	b.index[order.ID] = order
	if order.Side == domain.Buy {
		b.bids = insertIntoLevels(b.bids, order, true)
	} else {
		b.asks = insertIntoLevels(b.asks, order, false)
	}
}

func insertIntoLevels(levels []*priceLevel, order *domain.LimitOrder, descending bool) []*priceLevel {
	idx := sort.Search(len(levels), func(i int) bool {
		if descending {
			return levels[i].price <= order.Price
		}
		return levels[i].price >= order.Price
	})

	if idx < len(levels) && levels[idx].price == order.Price {
		levels[idx].orders = append(levels[idx].orders, order)
		return levels
	}

	levels = append(levels, nil)
	copy(levels[idx+1:], levels[idx:])
	levels[idx] = &priceLevel{price: order.Price, orders: []*domain.LimitOrder{order}}
	return levels
}

// removeResident removes order from its price level's FIFO queue.
func (b *Book) removeResident(order *domain.LimitOrder) {
	levels := &b.bids
	if order.Side == domain.Sell {
		levels = &b.asks
	}
	for i, level := range *levels {
		if level.price != order.Price {
			continue
		}
		for j, o := range level.orders {
			if o.ID == order.ID {
				level.orders = append(level.orders[:j], level.orders[j+1:]...)
				if len(level.orders) == 0 {
					*levels = append((*levels)[:i], (*levels)[i+1:]...)
				}
				return
			}
		}
	}
}

// Snapshot returns aggregated L2 levels per side, truncated to depth,
// plus the last trade price (spec §3).
func (b *Book) Snapshot(depth int) domain.MarketDataBody {
	md := domain.MarketDataBody{Symbol: b.Symbol, Last: b.last}
	for i, level := range b.bids {
		if i >= depth {
			break
		}
		md.Bids = append(md.Bids, domain.PriceLevel{Price: level.price, Qty: level.totalQty()})
	}
	for i, level := range b.asks {
		if i >= depth {
			break
		}
		md.Asks = append(md.Asks, domain.PriceLevel{Price: level.price, Qty: level.totalQty()})
	}
	return md
}

// ListOpenOrders returns resident orders, optionally restricted to a
// single agent (spec §4.3). Results are returned in bid-then-ask,
// best-to-worst price-time order for determinism.
func (b *Book) ListOpenOrders(agent *domain.AgentID) []domain.LimitOrder {
	var out []domain.LimitOrder
	collect := func(levels []*priceLevel) {
		for _, level := range levels {
			for _, o := range level.orders {
				if agent != nil && o.Agent != *agent {
					continue
				}
				out = append(out, *o)
			}
		}
	}
	collect(b.bids)
	collect(b.asks)
	return out
}

// BestBid returns the best bid price and whether one exists.
func (b *Book) BestBid() (int64, bool) {
	if len(b.bids) == 0 {
		return 0, false
	}
	return b.bids[0].price, true
}

// BestAsk returns the best ask price and whether one exists.
func (b *Book) BestAsk() (int64, bool) {
	if len(b.asks) == 0 {
		return 0, false
	}
	return b.asks[0].price, true
}

// AssertInvariants panics if any book invariant from spec §8 is
// violated. The only fatal condition in the simulator is an internal
// invariant violation (spec §7); callers should treat a panic here as a
// reason to halt the run with a diagnostic.
func (b *Book) AssertInvariants() {
	for i := 1; i < len(b.bids); i++ {
		if b.bids[i].price >= b.bids[i-1].price {
			panic(fmt.Sprintf("bid levels not strictly descending at %d", i))
		}
	}
	for i := 1; i < len(b.asks); i++ {
		if b.asks[i].price <= b.asks[i-1].price {
			panic(fmt.Sprintf("ask levels not strictly ascending at %d", i))
		}
	}
	if len(b.bids) > 0 && len(b.asks) > 0 && b.bids[0].price >= b.asks[0].price {
		panic(fmt.Sprintf("crossed book: best bid %d >= best ask %d", b.bids[0].price, b.asks[0].price))
	}
	count := 0
	for _, level := range b.bids {
		if len(level.orders) == 0 {
			panic(fmt.Sprintf("empty bid level at price %d", level.price))
		}
		for _, o := range level.orders {
			if o.Qty <= 0 {
				panic(fmt.Sprintf("non-positive qty %d on resident bid %s", o.Qty, o.ID))
			}
		}
		count += len(level.orders)
	}
	for _, level := range b.asks {
		if len(level.orders) == 0 {
			panic(fmt.Sprintf("empty ask level at price %d", level.price))
		}
		for _, o := range level.orders {
			if o.Qty <= 0 {
				panic(fmt.Sprintf("non-positive qty %d on resident ask %s", o.Qty, o.ID))
			}
		}
		count += len(level.orders)
	}
	if count != len(b.index) {
		panic(fmt.Sprintf("order index size %d != resident order count %d", len(b.index), count))
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
