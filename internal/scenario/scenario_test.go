package scenario

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lobsim/lobsim/internal/agent"
	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/domain"
)

// fakeKernel is a minimal agent.Kernel plus emitter double, enough to
// drive a Generator without the real kernel's timing machinery.
type fakeKernel struct {
	exchange domain.AgentID
	sent     []domain.Message
	wakes    []int64
	emitted  []bus.Event
}

func (f *fakeKernel) Send(from, to domain.AgentID, typ domain.MessageType, body interface{}, extraDelayNs int64) {
	f.sent = append(f.sent, domain.Message{From: from, To: to, Type: typ, Body: body})
}
func (f *fakeKernel) ScheduleWake(agentID domain.AgentID, at int64) { f.wakes = append(f.wakes, at) }
func (f *fakeKernel) ExchangeID() domain.AgentID                    { return f.exchange }
func (f *fakeKernel) NowNs() int64                                  { return 0 }
func (f *fakeKernel) Emit(e bus.Event)                              { f.emitted = append(f.emitted, e) }

var _ agent.Kernel = (*fakeKernel)(nil)
var _ emitter = (*fakeKernel)(nil)

func TestStartSeedsBookWithLimitOrdersOnBothSides(t *testing.T) {
	p := CalmParams()
	p.MaxPriceLevels = 2
	p.DepthPerLevel = 3
	g := New(10, "XYZ", p, 1, nil)
	k := &fakeKernel{exchange: 1}
	g.Attach(k)
	g.Start(0)

	var buys, sells int
	for _, m := range k.sent {
		require.Equal(t, domain.LimitOrderMsg, m.Type)
		lo := m.Body.(domain.LimitOrder)
		if lo.Side == domain.Buy {
			buys++
		} else {
			sells++
		}
	}
	require.Equal(t, 6, buys)
	require.Equal(t, 6, sells)
}

func TestStartSchedulesOrderAndSignalWakes(t *testing.T) {
	p := CalmParams()
	g := New(1, "XYZ", p, 1, nil)
	k := &fakeKernel{exchange: 2}
	g.Attach(k)
	g.Start(0)

	require.NotZero(t, g.nextOrderAt)
	require.NotZero(t, g.nextSignalAt)
	require.Contains(t, k.wakes, g.nextOrderAt)
	require.Contains(t, k.wakes, g.nextSignalAt)
}

func TestWakeAtOrderTimeSendsAndReschedules(t *testing.T) {
	p := CalmParams()
	p.SignalIntervalNs = 0
	g := New(1, "XYZ", p, 1, nil)
	k := &fakeKernel{exchange: 2}
	g.Attach(k)
	g.Start(0)

	before := len(k.sent)
	at := g.nextOrderAt
	g.Wake(at)
	require.Greater(t, len(k.sent), before)
	require.NotEqual(t, at, g.nextOrderAt)
}

func TestWakeAtSignalTimeEmitsOracleTick(t *testing.T) {
	p := CalmParams()
	g := New(1, "XYZ", p, 1, nil)
	k := &fakeKernel{exchange: 2}
	g.Attach(k)
	g.Start(0)

	at := g.nextSignalAt
	g.Wake(at)
	require.Len(t, k.emitted, 1)
	require.Equal(t, bus.OracleTick, k.emitted[0].Topic)
	require.Equal(t, "XYZ", k.emitted[0].OracleTick.Symbol)
}

func TestWakeIgnoredWithoutEmitterSkipsSignal(t *testing.T) {
	p := CalmParams()
	g := New(1, "XYZ", p, 1, nil)
	g.k = &fakeKernel{exchange: 2}
	g.exchange = 2
	g.emit = nil // simulate a kernel adapter without Emit
	g.Start(0)
	require.NotPanics(t, func() { g.emitSignal(g.nextSignalAt) })
}

func TestCancelOnlyFiresWhenThereIsAResting(t *testing.T) {
	p := Params{
		InitialMidPrice: 100, InitialSpread: 2, OrderIntervalNs: 1000,
		CancelRate: 1.0, MarketOrderRatio: 0, MinOrderSize: 1, MaxOrderSize: 1,
		PriceTickSize: 1, MaxPriceLevels: 1, DepthPerLevel: 0,
	}
	g := New(1, "XYZ", p, 1, nil)
	k := &fakeKernel{exchange: 2}
	g.Attach(k)
	g.Start(0)
	// No resting orders yet (DepthPerLevel 0), so CancelRate=1.0 must fall
	// through to the limit-order branch instead of panicking on an empty
	// resting slice.
	g.emitOrderEvent(1000)
	require.NotEmpty(t, g.resting)
}

func TestParamsForUnknownNameIsNotOK(t *testing.T) {
	_, ok := ParamsFor("chaotic")
	require.False(t, ok)
	for _, name := range []string{"calm", "thin", "spike"} {
		_, ok := ParamsFor(name)
		require.True(t, ok)
	}
}
