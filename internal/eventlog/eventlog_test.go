package eventlog

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/domain"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)

	price := int64(100)
	require.NoError(t, w.Write(bus.Event{Topic: bus.Trade, Trade: &domain.Trade{
		Ts: 1, Symbol: "XYZ", Price: price, Qty: 5, MakerAgent: 1, TakerAgent: 2, MakerSide: domain.Sell,
	}}))
	require.NoError(t, w.Write(bus.Event{Topic: bus.OrderRejected, OrderRejected: &domain.OrderRejectedBody{
		Reason: "No liquidity", RefType: "MARKET_ORDER",
	}}))
	require.Equal(t, uint64(2), w.Count())
	require.NoError(t, w.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	events, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, bus.Trade, events[0].Topic)
	require.Equal(t, int64(100), events[0].Trade.Price)
	require.Equal(t, bus.OrderRejected, events[1].Topic)
	require.Equal(t, "No liquidity", events[1].OrderRejected.Reason)
}

func TestReaderEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestSubscribeForwardsMatchingTopicOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)

	b := bus.New()
	w.Subscribe(b, bus.Trade)

	b.Emit(bus.Event{Topic: bus.Trade, Trade: &domain.Trade{Symbol: "XYZ"}})
	b.Emit(bus.Event{Topic: bus.OracleTick, OracleTick: &domain.OracleTick{Symbol: "XYZ"}})

	require.NoError(t, w.Close())
	require.EqualValues(t, 1, w.Count())
}
