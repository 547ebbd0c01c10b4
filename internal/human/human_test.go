package human

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lobsim/lobsim/internal/domain"
)

// fakeKernel is a minimal agent.Kernel + locker double. respond, when a
// test sets it, simulates the exchange's asynchronous reply; the tests
// call back into the Human's Receive method on a separate goroutine,
// exercising the same cross-goroutine path the real kernel uses.
type fakeKernel struct {
	exchange domain.AgentID
	mu       sync.Mutex
	sent     []domain.Message
	respond  func(domain.Message)
}

func (f *fakeKernel) Send(from, to domain.AgentID, typ domain.MessageType, body interface{}, extraDelayNs int64) {
	f.mu.Lock()
	f.sent = append(f.sent, domain.Message{From: from, To: to, Type: typ, Body: body})
	f.mu.Unlock()
	if f.respond != nil {
		f.respond(domain.Message{From: to, To: from, Type: typ, Body: body})
	}
}
func (f *fakeKernel) ScheduleWake(domain.AgentID, int64) {}
func (f *fakeKernel) ExchangeID() domain.AgentID         { return f.exchange }
func (f *fakeKernel) NowNs() int64                       { return 0 }
func (f *fakeKernel) Lock()                              {}
func (f *fakeKernel) Unlock()                             {}

func TestPlaceLimitBlocksUntilAccepted(t *testing.T) {
	h := New(1, "XYZ")
	k := &fakeKernel{exchange: 2}
	k.respond = func(req domain.Message) {
		lo := req.Body.(domain.LimitOrder)
		go h.Receive(0, domain.Message{Type: domain.OrderAcceptedMsg, Body: domain.OrderAcceptedBody{
			OrderID: lo.ID, Symbol: lo.Symbol, Side: lo.Side, Price: lo.Price, Qty: lo.Qty,
		}})
	}
	h.Attach(k)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	accepted, rejected, err := h.PlaceLimit(ctx, domain.Buy, 100, 5)
	require.NoError(t, err)
	require.Nil(t, rejected)
	require.NotNil(t, accepted)
	require.Len(t, h.ListOpen(), 1)
}

func TestPlaceLimitBlocksUntilRejected(t *testing.T) {
	h := New(1, "XYZ")
	k := &fakeKernel{exchange: 2}
	k.respond = func(req domain.Message) {
		lo := req.Body.(domain.LimitOrder)
		go h.Receive(0, domain.Message{Type: domain.OrderRejectedMsg, Body: domain.OrderRejectedBody{
			Reason: "price must be positive", RefType: "LIMIT_ORDER", Ref: lo.ID,
		}})
	}
	h.Attach(k)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	accepted, rejected, err := h.PlaceLimit(ctx, domain.Buy, -1, 5)
	require.NoError(t, err)
	require.Nil(t, accepted)
	require.NotNil(t, rejected)
	require.Empty(t, h.ListOpen())
}

func TestPlaceLimitTimesOutWithoutAResponse(t *testing.T) {
	h := New(1, "XYZ")
	k := &fakeKernel{exchange: 2}
	h.Attach(k)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := h.PlaceLimit(ctx, domain.Buy, 100, 5)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestCancelRemovesFromOpenOrders(t *testing.T) {
	h := New(1, "XYZ")
	k := &fakeKernel{exchange: 2}
	k.respond = func(req domain.Message) {
		switch req.Type {
		case domain.LimitOrderMsg:
			lo := req.Body.(domain.LimitOrder)
			go h.Receive(0, domain.Message{Type: domain.OrderAcceptedMsg, Body: domain.OrderAcceptedBody{
				OrderID: lo.ID, Side: lo.Side, Price: lo.Price, Qty: lo.Qty,
			}})
		case domain.CancelOrderMsg:
			co := req.Body.(domain.CancelOrderBody)
			go h.Receive(0, domain.Message{Type: domain.OrderCancelledMsg, Body: domain.OrderCancelledBody{OrderID: co.ID}})
		}
	}
	h.Attach(k)
	ctx := context.Background()

	_, _, err := h.PlaceLimit(ctx, domain.Buy, 100, 5)
	require.NoError(t, err)
	require.Len(t, h.ListOpen(), 1)
	id := h.ListOpen()[0].ID

	_, _, err = h.Cancel(ctx, id)
	require.NoError(t, err)
	require.Empty(t, h.ListOpen())
}

func TestFillsUpdateBalances(t *testing.T) {
	h := New(1, "XYZ")
	k := &fakeKernel{exchange: 2}
	h.Attach(k)

	h.Receive(0, domain.Message{Type: domain.OrderExecutedMsg, Body: domain.OrderExecutedBody{
		Symbol: "XYZ", Price: 100, Qty: 5, Role: domain.Taker, SideForRecipient: domain.Buy,
	}})
	bal := h.GetBalances()
	require.EqualValues(t, 5, bal.Position)
	require.EqualValues(t, -500, bal.RealizedCash)

	h.Receive(0, domain.Message{Type: domain.OrderExecutedMsg, Body: domain.OrderExecutedBody{
		Symbol: "XYZ", Price: 110, Qty: 2, Role: domain.Taker, SideForRecipient: domain.Sell,
	}})
	bal = h.GetBalances()
	require.EqualValues(t, 3, bal.Position)
	require.EqualValues(t, -280, bal.RealizedCash)
}
