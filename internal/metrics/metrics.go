// Package metrics exposes run-level Prometheus collectors for the
// kernel and exchange, plus a batch ComputeFromLog entry point for
// offline per-agent summaries (SPEC_FULL.md §2/§3; grounded on the
// teacher's internal/metrics/collector.go ComputeFromLog shape, with a
// Prometheus-collector backend in place of its bespoke JSON struct).
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/domain"
	"github.com/lobsim/lobsim/internal/eventlog"
)

// Collectors holds the Prometheus instruments for a run. Subscribe keeps
// OrdersAccepted, OrdersRejected, and TradesMatched up to date from the
// bus. TickDuration and QueueDepth are registered, but nothing in this
// repository sets them.
type Collectors struct {
	OrdersAccepted prometheus.Counter
	OrdersRejected *prometheus.CounterVec
	TradesMatched  prometheus.Counter
	TickDuration   prometheus.Histogram
	QueueDepth     prometheus.Gauge
}

// NewCollectors creates the instrument set, unregistered.
func NewCollectors() *Collectors {
	return &Collectors{
		OrdersAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lobsim", Name: "orders_accepted_total",
			Help: "Limit and market orders sent to the exchange, counted at send time; includes orders the exchange later rejects.",
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobsim", Name: "orders_rejected_total",
			Help: "Orders rejected by the exchange, by reason.",
		}, []string{"reason"}),
		TradesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lobsim", Name: "trades_matched_total",
			Help: "Matches produced by the order book.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lobsim", Name: "tick_duration_seconds",
			Help:    "Wall-clock time spent processing one kernel tick.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lobsim", Name: "queue_depth",
			Help: "Messages pending in the kernel's time-priority queue.",
		}),
	}
}

// Register adds every collector to reg.
func (c *Collectors) Register(reg *prometheus.Registry) {
	reg.MustRegister(c.OrdersAccepted, c.OrdersRejected, c.TradesMatched, c.TickDuration, c.QueueDepth)
}

// subscribable is satisfied by both *bus.Bus directly and by
// *kernel.Kernel's On passthrough, so Subscribe can wire a standalone
// bus in tests or a live kernel in cmd/lobsim without this package
// importing internal/kernel.
type subscribable interface {
	On(topic bus.Topic, handler bus.Handler)
}

// Subscribe wires the collectors to the bus topics they track. Handlers
// must not block (spec §5); these only increment counters.
func (c *Collectors) Subscribe(b subscribable) {
	b.On(bus.Trade, func(bus.Event) { c.TradesMatched.Inc() })
	b.On(bus.OrderRejected, func(e bus.Event) {
		if e.OrderRejected != nil {
			c.OrdersRejected.WithLabelValues(e.OrderRejected.Reason).Inc()
		}
	})
	b.On(bus.OrderLog, func(e bus.Event) {
		if e.OrderLog != nil && (e.OrderLog.Type == domain.LimitOrderMsg || e.OrderLog.Type == domain.MarketOrderMsg) {
			c.OrdersAccepted.Inc()
		}
	})
}

// AgentSummary is one agent's batch-computed activity summary.
type AgentSummary struct {
	AgentID      domain.AgentID `json:"agent_id"`
	OrdersSent   int            `json:"orders_sent"`
	CancelsSent  int            `json:"cancels_sent"`
	FillsAsMaker int            `json:"fills_as_maker"`
	FillsAsTaker int            `json:"fills_as_taker"`
	QtyFilled    int64          `json:"qty_filled"`
}

// ComputeFromLog reads an event-log JSONL file and returns a per-agent
// summary, mirroring the teacher's ComputeFromLog entry point.
func ComputeFromLog(logPath string) (map[domain.AgentID]*AgentSummary, error) {
	r, err := eventlog.NewReader(logPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	summaries := make(map[domain.AgentID]*AgentSummary)
	get := func(id domain.AgentID) *AgentSummary {
		s, ok := summaries[id]
		if !ok {
			s = &AgentSummary{AgentID: id}
			summaries[id] = s
		}
		return s
	}

	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch e.Topic {
		case bus.OrderLog:
			if e.OrderLog == nil {
				continue
			}
			switch e.OrderLog.Type {
			case domain.LimitOrderMsg, domain.MarketOrderMsg:
				get(e.OrderLog.From).OrdersSent++
			case domain.CancelOrderMsg:
				get(e.OrderLog.From).CancelsSent++
			}
		case bus.Trade:
			if e.Trade == nil {
				continue
			}
			maker := get(e.Trade.MakerAgent)
			maker.FillsAsMaker++
			maker.QtyFilled += e.Trade.Qty
			taker := get(e.Trade.TakerAgent)
			taker.FillsAsTaker++
			taker.QtyFilled += e.Trade.Qty
		}
	}
	return summaries, nil
}
