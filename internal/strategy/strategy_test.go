package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/domain"
)

type fakeKernel struct {
	exchange  domain.AgentID
	sent      []domain.Message
	wakes     []int64
	handlers  map[bus.Topic][]bus.Handler
}

func newFakeKernel(exchange domain.AgentID) *fakeKernel {
	return &fakeKernel{exchange: exchange, handlers: make(map[bus.Topic][]bus.Handler)}
}

func (f *fakeKernel) Send(from, to domain.AgentID, typ domain.MessageType, body interface{}, extraDelayNs int64) {
	f.sent = append(f.sent, domain.Message{From: from, To: to, Type: typ, Body: body})
}
func (f *fakeKernel) ScheduleWake(agentID domain.AgentID, at int64) { f.wakes = append(f.wakes, at) }
func (f *fakeKernel) ExchangeID() domain.AgentID                    { return f.exchange }
func (f *fakeKernel) NowNs() int64                                  { return 0 }
func (f *fakeKernel) On(topic bus.Topic, handler bus.Handler) {
	f.handlers[topic] = append(f.handlers[topic], handler)
}
func (f *fakeKernel) emit(e bus.Event) {
	for _, h := range f.handlers[e.Topic] {
		h(e)
	}
}

func TestNoiseTraderWakeSendsOneOrderAndReschedules(t *testing.T) {
	n := NewNoiseTrader(1, "XYZ", 1000, 10_000, 10, 5, 1)
	k := newFakeKernel(2)
	n.Attach(k)
	n.Start(0)
	require.Equal(t, []int64{1000}, k.wakes)

	n.Wake(1000)
	require.Len(t, k.sent, 1)
	require.Contains(t, []domain.MessageType{domain.LimitOrderMsg, domain.MarketOrderMsg}, k.sent[0].Type)
	require.Equal(t, []int64{1000, 2000}, k.wakes)
}

func TestMarketMakerQuotesBothSidesFromMarketData(t *testing.T) {
	mm := NewMarketMaker(1, "XYZ")
	k := newFakeKernel(2)
	mm.Attach(k)

	last := int64(9990)
	mm.Receive(0, domain.Message{Type: domain.MarketDataMsg, Body: domain.MarketDataBody{
		Symbol: "XYZ",
		Bids:   []domain.PriceLevel{{Price: 9990, Qty: 10}},
		Asks:   []domain.PriceLevel{{Price: 10010, Qty: 10}},
		Last:   &last,
	}})

	require.Len(t, k.sent, 2)
	require.NotEmpty(t, mm.bidID)
	require.NotEmpty(t, mm.askID)
}

func TestMarketMakerDoesNotRequoteAnAlreadyQuotedSide(t *testing.T) {
	mm := NewMarketMaker(1, "XYZ")
	k := newFakeKernel(2)
	mm.Attach(k)

	body := domain.MarketDataBody{
		Symbol: "XYZ",
		Bids:   []domain.PriceLevel{{Price: 9990, Qty: 10}},
		Asks:   []domain.PriceLevel{{Price: 10010, Qty: 10}},
	}
	mm.Receive(0, domain.Message{Type: domain.MarketDataMsg, Body: body})
	require.Len(t, k.sent, 2)

	mm.Receive(1, domain.Message{Type: domain.MarketDataMsg, Body: body})
	require.Len(t, k.sent, 2, "both sides already quoted; no new sends")
}

func TestMarketMakerCancelsStaleQuotesOnWake(t *testing.T) {
	mm := NewMarketMaker(1, "XYZ")
	mm.CancelTimeoutNs = 100
	k := newFakeKernel(2)
	mm.Attach(k)

	mm.Receive(0, domain.Message{Type: domain.MarketDataMsg, Body: domain.MarketDataBody{
		Symbol: "XYZ",
		Bids:   []domain.PriceLevel{{Price: 9990, Qty: 10}},
		Asks:   []domain.PriceLevel{{Price: 10010, Qty: 10}},
	}})
	require.Len(t, k.sent, 2)

	mm.Wake(1000) // far past CancelTimeoutNs=100
	var cancels int
	for _, m := range k.sent {
		if m.Type == domain.CancelOrderMsg {
			cancels++
		}
	}
	require.Equal(t, 2, cancels)
	require.Empty(t, mm.bidID)
	require.Empty(t, mm.askID)
}

func TestOracleTraderCrossesOnStrongSignalOnly(t *testing.T) {
	o := NewOracleTrader(1, "XYZ", nil)
	k := newFakeKernel(2)
	o.Attach(k)
	require.Len(t, k.handlers[bus.OracleTick], 1)

	k.emit(bus.Event{Topic: bus.OracleTick, OracleTick: &domain.OracleTick{Symbol: "XYZ", Fundamental: 0.3}})
	require.Empty(t, k.sent, "weak signal should not trade")

	k.emit(bus.Event{Topic: bus.OracleTick, OracleTick: &domain.OracleTick{Symbol: "XYZ", Fundamental: 1.5}})
	require.Len(t, k.sent, 1)
	require.Equal(t, domain.MarketOrderMsg, k.sent[0].Type)
	require.Equal(t, domain.Buy, k.sent[0].Body.(domain.MarketOrderBody).Side)

	k.emit(bus.Event{Topic: bus.OracleTick, OracleTick: &domain.OracleTick{Symbol: "XYZ", Fundamental: -2.0}})
	require.Len(t, k.sent, 2)
	require.Equal(t, domain.Sell, k.sent[1].Body.(domain.MarketOrderBody).Side)
}

func TestOracleTraderIgnoresOtherSymbols(t *testing.T) {
	o := NewOracleTrader(1, "XYZ", nil)
	k := newFakeKernel(2)
	o.Attach(k)

	k.emit(bus.Event{Topic: bus.OracleTick, OracleTick: &domain.OracleTick{Symbol: "ABC", Fundamental: 5.0}})
	require.Empty(t, k.sent)
}
