package latency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRPCModelDeterminism(t *testing.T) {
	cfg := RPCConfig{UpNs: MsToNs(200), DownNs: MsToNs(200), ComputeNs: MsToNs(300), DownJitterNs: MsToNs(20)}
	m1 := NewRPCModel(cfg, 1, 42)
	m2 := NewRPCModel(cfg, 1, 42)

	for i := 0; i < 1000; i++ {
		d1 := m1.Delay(AgentID(i%5+2), 1)
		d2 := m2.Delay(AgentID(i%5+2), 1)
		require.Equal(t, d1, d2, "iteration %d", i)
	}
}

func TestRPCModelStages(t *testing.T) {
	cfg := DefaultRPCConfig()
	const exchange AgentID = 1
	m := NewRPCModel(cfg, exchange, 7)

	require.Equal(t, MsToNs(200), m.Delay(2, exchange), "uplink")
	require.Equal(t, MsToNs(300), m.ComputeAt(exchange), "compute")
	require.Zero(t, m.ComputeAt(2), "compute only applies at the exchange")

	down := m.Delay(exchange, 2)
	require.Equal(t, MsToNs(200), down, "no jitter configured")
}

func TestRPCModelDownJitterBounds(t *testing.T) {
	cfg := RPCConfig{DownNs: MsToNs(5), DownJitterNs: MsToNs(3)}
	const exchange AgentID = 1
	m := NewRPCModel(cfg, exchange, 99)

	for i := 0; i < 10000; i++ {
		delay := m.Delay(exchange, 2)
		require.GreaterOrEqual(t, delay, MsToNs(5)-MsToNs(3))
		require.LessOrEqual(t, delay, MsToNs(5)+MsToNs(3))
	}
}

func TestNoLatency(t *testing.T) {
	var m NoLatency
	require.Zero(t, m.Delay(1, 2))
	require.Zero(t, m.ComputeAt(2))
}

func TestMsToNs(t *testing.T) {
	require.Equal(t, int64(1_000_000), MsToNs(1))
	require.Equal(t, int64(50_000_000), MsToNs(50))
}
