package metrics

import (
	"path/filepath"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/domain"
	"github.com/lobsim/lobsim/internal/eventlog"
)

func TestCollectorsSubscribeCountsTrades(t *testing.T) {
	c := NewCollectors()
	b := bus.New()
	c.Subscribe(b)

	b.Emit(bus.Event{Topic: bus.Trade, Trade: &domain.Trade{Symbol: "XYZ"}})
	b.Emit(bus.Event{Topic: bus.Trade, Trade: &domain.Trade{Symbol: "XYZ"}})

	m := &dto.Metric{}
	require.NoError(t, c.TradesMatched.Write(m))
	require.Equal(t, float64(2), m.GetCounter().GetValue())
}

func TestCollectorsSubscribeCountsRejectionsByReason(t *testing.T) {
	c := NewCollectors()
	b := bus.New()
	c.Subscribe(b)

	b.Emit(bus.Event{Topic: bus.OrderRejected, OrderRejected: &domain.OrderRejectedBody{Reason: "No liquidity"}})

	m := &dto.Metric{}
	require.NoError(t, c.OrdersRejected.WithLabelValues("No liquidity").Write(m))
	require.Equal(t, float64(1), m.GetCounter().GetValue())
}

func TestComputeFromLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	w, err := eventlog.NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(bus.Event{Topic: bus.OrderLog, OrderLog: &domain.OrderLog{
		From: 2, To: 1, Type: domain.LimitOrderMsg,
	}}))
	require.NoError(t, w.Write(bus.Event{Topic: bus.Trade, Trade: &domain.Trade{
		MakerAgent: 2, TakerAgent: 3, Qty: 5,
	}}))
	require.NoError(t, w.Close())

	summaries, err := ComputeFromLog(path)
	require.NoError(t, err)
	require.Equal(t, 1, summaries[domain.AgentID(2)].OrdersSent)
	require.Equal(t, 1, summaries[domain.AgentID(2)].FillsAsMaker)
	require.EqualValues(t, 5, summaries[domain.AgentID(2)].QtyFilled)
	require.Equal(t, 1, summaries[domain.AgentID(3)].FillsAsTaker)
}
