// Package domain defines the wire-level types routed by the kernel:
// agent ids, messages, orders, trades, and book snapshots.
package domain

import (
	"fmt"
	"strings"
)

// AgentID identifies a kernel participant. Zero is reserved for the
// kernel's own out-of-band sender (wake-up events have no originating
// agent).
type AgentID uint32

// KernelSender is the reserved sender id for kernel-originated messages.
const KernelSender AgentID = 0

// Side is the direction of an order.
type Side int8

const (
	Buy Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

func (s Side) Opposite() Side {
	return -s
}

func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Side) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "BUY":
		*s = Buy
	case "SELL":
		*s = Sell
	default:
		return fmt.Errorf("unknown side: %s", data)
	}
	return nil
}

// MessageType enumerates every category of message the kernel routes,
// including the bus-only categories that never travel point to point.
type MessageType uint8

const (
	// Agent to exchange.
	LimitOrderMsg MessageType = iota
	MarketOrderMsg
	CancelOrderMsg
	ModifyOrderMsg
	QuerySpreadMsg
	QueryLastMsg

	// Exchange to agent.
	OrderAcceptedMsg
	OrderExecutedMsg
	OrderCancelledMsg
	OrderRejectedMsg
	MarketDataMsg

	// Kernel-internal.
	WakeupMsg

	// Bus-only (never enqueued as point-to-point messages).
	TradeEvent
	OrderLogEvent
	OrderRejectedEvent
	MarketDataEvent
	OracleTickEvent
)

func (t MessageType) String() string {
	switch t {
	case LimitOrderMsg:
		return "LIMIT_ORDER"
	case MarketOrderMsg:
		return "MARKET_ORDER"
	case CancelOrderMsg:
		return "CANCEL_ORDER"
	case ModifyOrderMsg:
		return "MODIFY_ORDER"
	case QuerySpreadMsg:
		return "QUERY_SPREAD"
	case QueryLastMsg:
		return "QUERY_LAST"
	case OrderAcceptedMsg:
		return "ORDER_ACCEPTED"
	case OrderExecutedMsg:
		return "ORDER_EXECUTED"
	case OrderCancelledMsg:
		return "ORDER_CANCELLED"
	case OrderRejectedMsg:
		return "ORDER_REJECTED"
	case MarketDataMsg:
		return "MARKET_DATA"
	case WakeupMsg:
		return "WAKEUP"
	case TradeEvent:
		return "TRADE"
	case OrderLogEvent:
		return "ORDER_LOG"
	case OrderRejectedEvent:
		return "ORDER_REJECTED_LOG"
	case MarketDataEvent:
		return "MARKET_DATA_LOG"
	case OracleTickEvent:
		return "ORACLE_TICK"
	default:
		return "UNKNOWN"
	}
}

// IsOrderMutating reports whether a message type mutates the book and
// therefore must emit a synchronous ORDER_LOG bus event at send time
// (spec §4.5/§5).
func (t MessageType) IsOrderMutating() bool {
	switch t {
	case LimitOrderMsg, MarketOrderMsg, CancelOrderMsg, ModifyOrderMsg:
		return true
	default:
		return false
	}
}

// Message is the unit routed by the kernel. Once enqueued, At is
// immutable (spec §3).
type Message struct {
	From AgentID
	To   AgentID
	Type MessageType
	Body interface{}
	At   int64 // virtual delivery time, nanoseconds

	// seq is never assigned or read: internal/queue breaks ties between
	// equal At values (FIFO) with its own insertion counter, kept outside
	// the message.
	seq uint64
}

// Role identifies which side of a match a recipient of an EXECUTED
// message played.
type Role int8

const (
	Maker Role = iota
	Taker
)

func (r Role) String() string {
	if r == Maker {
		return "MAKER"
	}
	return "TAKER"
}

// LimitOrder is the resident-order shape described in spec §3.
type LimitOrder struct {
	ID     string
	Agent  AgentID
	Symbol string
	Side   Side
	Price  int64 // cents, > 0
	Qty    int64 // remaining, > 0 while resident
	Ts     int64 // priority timestamp, ns
}

// MarketOrderBody is the MARKET_ORDER message body (spec §6).
type MarketOrderBody struct {
	Symbol string
	Side   Side
	Qty    int64
}

// CancelOrderBody is the CANCEL_ORDER message body.
type CancelOrderBody struct {
	ID string
}

// ModifyOrderBody is the MODIFY_ORDER message body. Price and Qty are
// pointers so "not specified" is distinguishable from "specified as
// zero" (spec §4.3).
type ModifyOrderBody struct {
	ID    string
	Price *int64
	Qty   *int64
}

// QuerySpreadBody carries the requested snapshot depth.
type QuerySpreadBody struct {
	Symbol string
	Depth  int
}

// QueryLastBody carries the symbol whose last trade price is requested.
type QueryLastBody struct {
	Symbol string
}

// OrderAcceptedBody is the ORDER_ACCEPTED response body.
type OrderAcceptedBody struct {
	OrderID  string
	Symbol   string
	Side     Side
	Price    int64
	Qty      int64
	Replaced bool
}

// OrderExecutedBody is the ORDER_EXECUTED response body, one per
// recipient per match (spec §4.4).
type OrderExecutedBody struct {
	Symbol           string
	Price            int64
	Qty              int64
	Role             Role
	SideForRecipient Side
	OrderID          string
}

// OrderCancelledBody is the ORDER_CANCELLED response body.
type OrderCancelledBody struct {
	OrderID string
	Side    Side
	Price   int64
	Qty     int64
}

// OrderRejectedBody is the ORDER_REJECTED response body.
type OrderRejectedBody struct {
	Reason  string
	RefType string
	Ref     string
}

// PriceLevel is one aggregated row of an L2 snapshot.
type PriceLevel struct {
	Price int64
	Qty   int64
}

// MarketDataBody is the MARKET_DATA broadcast/response body.
type MarketDataBody struct {
	Symbol string
	Bids   []PriceLevel
	Asks   []PriceLevel
	Last   *int64
}

// Trade is emitted exactly once per match (spec §3).
type Trade struct {
	Ts         int64
	Symbol     string
	Price      int64
	Qty        int64
	MakerAgent AgentID
	TakerAgent AgentID
	MakerSide  Side
}

// OrderLog records a mutating message at send time, before delivery
// (spec §5).
type OrderLog struct {
	Ts   int64
	From AgentID
	To   AgentID
	Type MessageType
	Body interface{}
}

// OracleTick is an opaque fundamental-value signal exposed only via the
// bus (spec §6, GLOSSARY).
type OracleTick struct {
	Ts          int64
	Symbol      string
	Fundamental float64
}
