// Package gateway implements the C7 WebSocket façade (spec §4.7, §5):
// it subscribes to the kernel's event bus and fans TRADE/ORDER_LOG/
// ORDER_REJECTED/MARKET_DATA/ORACLE_TICK events out to every connected
// viewer, and turns inbound human order-entry requests into calls
// against a per-connection internal/human.Human façade — it never
// touches the kernel queue directly. Grounded on
// ndrandal-feed-simulator's internal/session (Client/Manager/Handler:
// buffered send channel, read/write pumps, ping keepalive) and
// abdoElHodaky/tradSys's services/websocket Gateway (connection
// registry, per-topic broadcast, rate limiting).
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lobsim/lobsim/internal/agent"
	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/domain"
	"github.com/lobsim/lobsim/internal/human"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 30 * time.Second
	sendBuffer  = 256
	maxReadSize = 4096
)

// registrar is the slice of *kernel.Kernel the gateway needs: runtime
// agent registration serialized against the tick loop (spec §5) and bus
// subscription. A narrow interface, rather than importing
// internal/kernel directly, keeps the gateway testable against a fake.
type registrar interface {
	Register(id domain.AgentID, a agent.Agent)
	Lock()
	Unlock()
	On(topic bus.Topic, handler bus.Handler)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway is the WebSocket façade fronting one symbol.
type Gateway struct {
	log    *zap.SugaredLogger
	k      registrar
	symbol string
	nextID uint32

	rateLimit  rate.Limit
	rateBurst  int
	ackTimeout time.Duration

	mu      sync.RWMutex
	clients map[uint64]*conn
}

// New creates a gateway fronting symbol. baseAgentID must be above every
// agent id registered statically before the kernel starts (the scenario
// generator, strategies, the exchange), so dynamically-attached humans
// never collide with them. rateLimit/rateBurst bound each connection's
// order-entry call rate (spec §5's external-I/O serialization point).
func New(log *zap.SugaredLogger, k registrar, symbol string, baseAgentID domain.AgentID, rateLimit rate.Limit, rateBurst int) *Gateway {
	g := &Gateway{
		log:        log,
		k:          k,
		symbol:     symbol,
		nextID:     uint32(baseAgentID),
		rateLimit:  rateLimit,
		rateBurst:  rateBurst,
		ackTimeout: 2 * time.Second,
		clients:    make(map[uint64]*conn),
	}
	k.On(bus.Trade, g.onTrade)
	k.On(bus.OrderLog, g.onOrderLog)
	k.On(bus.OrderRejected, g.onOrderRejected)
	k.On(bus.MarketData, g.onMarketData)
	k.On(bus.OracleTick, g.onOracleTick)
	return g
}

// conn is one connected client: a websocket, its own human-trader
// façade, and a buffered outbound channel drained by writePump. Grounded
// on ndrandal-feed-simulator's session.Client.
type conn struct {
	id      uint64
	ws      *websocket.Conn
	human   *human.Human
	limiter *rate.Limiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// outEnvelope is the wire shape of every server-to-client push; exactly
// one of the typed fields is populated, matching its Topic.
type outEnvelope struct {
	Topic string `json:"topic"`

	Trade         *domain.Trade             `json:"trade,omitempty"`
	OrderLog      *domain.OrderLog          `json:"orderLog,omitempty"`
	OrderRejected *domain.OrderRejectedBody `json:"orderRejected,omitempty"`
	MarketData    *domain.MarketDataBody    `json:"marketData,omitempty"`
	OracleTick    *domain.OracleTick        `json:"oracleTick,omitempty"`

	Error string `json:"error,omitempty"`
}

func (g *Gateway) broadcast(env outEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		g.log.Warnw("gateway: failed to marshal broadcast", "topic", env.Topic, "err", err)
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.clients {
		if !c.trySend(data) {
			g.log.Warnw("gateway: client send buffer full, dropping", "clientId", c.id, "topic", env.Topic)
		}
	}
}

// onTrade, onOrderLog, onOrderRejected, onMarketData, and onOracleTick
// are bus.Handler callbacks invoked synchronously on the tick loop's own
// goroutine (spec §4.5); they must not block, so broadcast only ever
// attempts a non-blocking channel send per client.
func (g *Gateway) onTrade(e bus.Event) { g.broadcast(outEnvelope{Topic: "TRADE", Trade: e.Trade}) }
func (g *Gateway) onOrderLog(e bus.Event) {
	g.broadcast(outEnvelope{Topic: "ORDER_LOG", OrderLog: e.OrderLog})
}
func (g *Gateway) onOrderRejected(e bus.Event) {
	g.broadcast(outEnvelope{Topic: "ORDER_REJECTED", OrderRejected: e.OrderRejected})
}
func (g *Gateway) onMarketData(e bus.Event) {
	g.broadcast(outEnvelope{Topic: "MARKET_DATA", MarketData: e.MarketData})
}
func (g *Gateway) onOracleTick(e bus.Event) {
	g.broadcast(outEnvelope{Topic: "ORACLE_TICK", OracleTick: e.OracleTick})
}

// inRequest is the wire shape of one client-to-server order-entry call.
type inRequest struct {
	Action   string      `json:"action"`
	Side     domain.Side `json:"side,omitempty"`
	Price    int64       `json:"price,omitempty"`
	Qty      int64       `json:"qty,omitempty"`
	OrderID  string      `json:"orderId,omitempty"`
	NewPrice *int64      `json:"newPrice,omitempty"`
	NewQty   *int64      `json:"newQty,omitempty"`
}

// ackEnvelope is the wire shape of the reply to one inRequest.
type ackEnvelope struct {
	Topic    string                    `json:"topic"`
	Accepted *domain.OrderAcceptedBody `json:"accepted,omitempty"`
	Rejected *domain.OrderRejectedBody `json:"rejected,omitempty"`
	Open     []human.OpenOrder         `json:"open,omitempty"`
	Balance  *human.Balance            `json:"balance,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

// HandleConn upgrades r to a WebSocket, attaches a fresh human-trader
// façade to the kernel under a new agent id, and runs the connection's
// read/write pumps until it disconnects.
func (g *Gateway) HandleConn(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warnw("gateway: websocket upgrade failed", "err", err)
		return
	}

	id := domain.AgentID(atomic.AddUint32(&g.nextID, 1))
	h := human.New(id, g.symbol)

	g.k.Lock()
	g.k.Register(id, h)
	g.k.Unlock()

	c := &conn{
		id:      uint64(id),
		ws:      ws,
		human:   h,
		limiter: rate.NewLimiter(g.rateLimit, g.rateBurst),
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}

	g.mu.Lock()
	g.clients[c.id] = c
	g.mu.Unlock()

	g.log.Infow("gateway: client connected", "agentId", id, "remote", r.RemoteAddr)

	go g.writePump(c)
	g.readPump(c)
}

func (g *Gateway) unregister(c *conn) {
	g.mu.Lock()
	delete(g.clients, c.id)
	g.mu.Unlock()
	c.Close()
	g.log.Infow("gateway: client disconnected", "agentId", c.id)
}

func (g *Gateway) readPump(c *conn) {
	defer g.unregister(c)

	c.ws.SetReadLimit(maxReadSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var req inRequest
		if err := json.Unmarshal(data, &req); err != nil {
			g.reply(c, ackEnvelope{Topic: "ERROR", Error: "invalid request: " + err.Error()})
			continue
		}
		if !c.limiter.Allow() {
			g.reply(c, ackEnvelope{Topic: "ERROR", Error: "rate limit exceeded"})
			continue
		}
		g.handleRequest(c, req)
	}
}

func (g *Gateway) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (g *Gateway) reply(c *conn, env ackEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if !c.trySend(data) {
		g.log.Warnw("gateway: client send buffer full, dropping ack", "clientId", c.id)
	}
}

// handleRequest dispatches one parsed inRequest against c's human
// façade. The blocking calls (place_limit/cancel/modify) run with
// ackTimeout so one slow kernel response cannot wedge the read pump
// forever; place_market returns at once with an empty ack.
func (g *Gateway) handleRequest(c *conn, req inRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), g.ackTimeout)
	defer cancel()

	switch req.Action {
	case "place_limit":
		accepted, rejected, err := c.human.PlaceLimit(ctx, req.Side, req.Price, req.Qty)
		if err != nil {
			g.reply(c, ackEnvelope{Topic: "PLACE_LIMIT", Error: err.Error()})
			return
		}
		g.reply(c, ackEnvelope{Topic: "PLACE_LIMIT", Accepted: accepted, Rejected: rejected})

	case "place_market":
		c.human.PlaceMarket(req.Side, req.Qty)
		g.reply(c, ackEnvelope{Topic: "PLACE_MARKET"})

	case "cancel":
		accepted, rejected, err := c.human.Cancel(ctx, req.OrderID)
		if err != nil {
			g.reply(c, ackEnvelope{Topic: "CANCEL", Error: err.Error()})
			return
		}
		g.reply(c, ackEnvelope{Topic: "CANCEL", Accepted: accepted, Rejected: rejected})

	case "modify":
		accepted, rejected, err := c.human.Modify(ctx, req.OrderID, req.NewPrice, req.NewQty)
		if err != nil {
			g.reply(c, ackEnvelope{Topic: "MODIFY", Error: err.Error()})
			return
		}
		g.reply(c, ackEnvelope{Topic: "MODIFY", Accepted: accepted, Rejected: rejected})

	case "list_open":
		open := c.human.ListOpen()
		g.reply(c, ackEnvelope{Topic: "LIST_OPEN", Open: open})

	case "get_balances":
		bal := c.human.GetBalances()
		g.reply(c, ackEnvelope{Topic: "GET_BALANCES", Balance: &bal})

	default:
		g.reply(c, ackEnvelope{Topic: "ERROR", Error: "unknown action: " + req.Action})
	}
}

// ClientCount reports the number of currently connected clients.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}
