// Package scenario implements the background order-flow generator (spec
// §4's scenario generation, calm/thin/spike presets). It is grounded on
// the teacher's internal/scenario/generator.go and params.go, rewritten
// from a batch Generate() []*domain.Event producer into a live
// agent.Agent: the generator schedules its own wakes through the kernel
// and sends LIMIT_ORDER/MARKET_ORDER/CANCEL_ORDER like any other
// participant, instead of pre-computing a flat event list for a
// hardcoded "background" trader id.
package scenario

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/lobsim/lobsim/internal/agent"
	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/domain"
)

// Params holds background order-flow tuning, one set per named preset
// (spec §6's calm/thin/spike scenarios).
type Params struct {
	InitialMidPrice  int64   // fixed-point cents
	InitialSpread    int64   // fixed-point cents
	OrderIntervalNs  int64   // base inter-arrival; each gap adds uniform jitter of up to half of it
	MarketOrderRatio float64 // fraction of orders that are market
	CancelRate       float64 // probability of cancel per interval
	MinOrderSize     int64
	MaxOrderSize     int64
	PriceTickSize    int64
	MaxPriceLevels   int   // levels to populate on each side at start
	DepthPerLevel    int64 // resting orders per level at start
	SignalIntervalNs int64 // how often oracle ticks fire, 0 disables

	// Burst window parameters; zero values disable bursts entirely
	// (calm and thin presets leave these unset).
	BurstWindowNs   int64
	BurstIntervalNs int64
	BurstRate       float64 // arrival-rate multiplier during a burst
	BurstCancelMul  float64
	BurstMarketMul  float64
	BurstSizeMul    float64
	BurstCancelCap  float64
	BurstMarketCap  float64
}

// CalmParams is the steady-state preset.
func CalmParams() Params {
	return Params{
		InitialMidPrice:  10_000,
		InitialSpread:    2,
		OrderIntervalNs:  5_000_000,
		MarketOrderRatio: 0.15,
		CancelRate:       0.10,
		MinOrderSize:     1,
		MaxOrderSize:     10,
		PriceTickSize:    1,
		MaxPriceLevels:   5,
		DepthPerLevel:    20,
		SignalIntervalNs: 200_000_000,
	}
}

// ThinParams is the low-depth preset with sporadic sweeps.
func ThinParams() Params {
	return Params{
		InitialMidPrice:  10_000,
		InitialSpread:    5,
		OrderIntervalNs:  20_000_000,
		MarketOrderRatio: 0.25,
		CancelRate:       0.15,
		MinOrderSize:     1,
		MaxOrderSize:     5,
		PriceTickSize:    1,
		MaxPriceLevels:   3,
		DepthPerLevel:    5,
		SignalIntervalNs: 200_000_000,
	}
}

// SpikeParams is the burst-window preset.
func SpikeParams() Params {
	return Params{
		InitialMidPrice:  10_000,
		InitialSpread:    3,
		OrderIntervalNs:  8_000_000,
		MarketOrderRatio: 0.20,
		CancelRate:       0.25,
		MinOrderSize:     1,
		MaxOrderSize:     15,
		PriceTickSize:    1,
		MaxPriceLevels:   5,
		DepthPerLevel:    15,
		SignalIntervalNs: 150_000_000,
		BurstWindowNs:    500_000_000,
		BurstIntervalNs:  2_000_000_000,
		BurstRate:        4.0,
		BurstCancelMul:   2.0,
		BurstMarketMul:   2.0,
		BurstSizeMul:     2.0,
		BurstCancelCap:   0.5,
		BurstMarketCap:   0.6,
	}
}

// ParamsFor returns the named preset's parameters. ok is false for an
// unrecognized name.
func ParamsFor(name string) (Params, bool) {
	switch name {
	case "calm":
		return CalmParams(), true
	case "thin":
		return ThinParams(), true
	case "spike":
		return SpikeParams(), true
	default:
		return Params{}, false
	}
}

// emitter is the subset of the kernel adapter the generator uses to
// publish oracle ticks directly to the bus, the same richer-interface
// type-assertion idiom internal/exchange uses for its own extra needs.
type emitter interface {
	Emit(e bus.Event)
}

// Generator is the background order-flow agent. It seeds the book at
// start, then alternates limit orders, market orders, and cancels of its
// own resting orders on an interval perturbed by jitter, exactly the mix
// the teacher's CalmGenerator/ThinGenerator/SpikeGenerator compute, and
// periodically emits an oracle tick if SignalIntervalNs > 0.
type Generator struct {
	id     domain.AgentID
	symbol string
	params Params
	rng    *rand.Rand
	log    *zap.SugaredLogger

	k        agent.Kernel
	emit     emitter
	exchange domain.AgentID

	nextSeq uint64
	resting []string

	nextOrderAt  int64
	nextSignalAt int64
}

// New creates a background generator for symbol, seeded deterministically
// by seed.
func New(id domain.AgentID, symbol string, params Params, seed int64, log *zap.SugaredLogger) *Generator {
	return &Generator{
		id:     id,
		symbol: symbol,
		params: params,
		rng:    rand.New(rand.NewSource(seed)),
		log:    log,
	}
}

func (g *Generator) Attach(k agent.Kernel) {
	g.k = k
	g.exchange = k.ExchangeID()
	if em, ok := k.(emitter); ok {
		g.emit = em
	}
}

func (g *Generator) Start(t int64) {
	g.seedBook(t)
	g.scheduleNextOrder(t)
	if g.params.SignalIntervalNs > 0 {
		g.scheduleNextSignal(t)
	}
}

func (g *Generator) Stop() {}

// Receive observes exchange responses only to keep a log; rejected
// resting orders are not retracted from g.resting, mirroring the
// teacher's generator which never reconciles its own bookkeeping against
// rejections either.
func (g *Generator) Receive(t int64, msg domain.Message) {
	if msg.Type == domain.OrderRejectedMsg && g.log != nil {
		g.log.Debugw("background order rejected", "agent", g.id, "t", t)
	}
}

func (g *Generator) Wake(t int64) {
	if t == g.nextOrderAt {
		g.emitOrderEvent(t)
		g.scheduleNextOrder(t)
	}
	if t == g.nextSignalAt {
		g.emitSignal(t)
		g.scheduleNextSignal(t)
	}
}

func (g *Generator) nextOrderID() string {
	g.nextSeq++
	return fmt.Sprintf("bg-%d-%d", g.id, g.nextSeq)
}

func (g *Generator) randSize() int64 {
	if g.params.MaxOrderSize <= g.params.MinOrderSize {
		return g.params.MinOrderSize
	}
	return g.params.MinOrderSize + g.rng.Int63n(g.params.MaxOrderSize-g.params.MinOrderSize+1)
}

func (g *Generator) randSide() domain.Side {
	if g.rng.Float64() < 0.5 {
		return domain.Buy
	}
	return domain.Sell
}

func (g *Generator) seedBook(t int64) {
	p := g.params
	halfSpread := p.InitialSpread / 2
	bestBid := p.InitialMidPrice - halfSpread
	bestAsk := p.InitialMidPrice + halfSpread

	for lvl := 0; lvl < p.MaxPriceLevels; lvl++ {
		price := bestBid - int64(lvl)*p.PriceTickSize
		for i := int64(0); i < p.DepthPerLevel; i++ {
			g.placeLimit(domain.Buy, price, g.randSize())
		}
	}
	for lvl := 0; lvl < p.MaxPriceLevels; lvl++ {
		price := bestAsk + int64(lvl)*p.PriceTickSize
		for i := int64(0); i < p.DepthPerLevel; i++ {
			g.placeLimit(domain.Sell, price, g.randSize())
		}
	}
}

func (g *Generator) placeLimit(side domain.Side, price, qty int64) {
	id := g.nextOrderID()
	g.k.Send(g.id, g.exchange, domain.LimitOrderMsg, domain.LimitOrder{
		ID: id, Symbol: g.symbol, Side: side, Price: price, Qty: qty,
	}, 0)
	g.resting = append(g.resting, id)
}

func (g *Generator) isBurst(t int64) bool {
	p := g.params
	if p.BurstIntervalNs <= 0 || p.BurstWindowNs <= 0 {
		return false
	}
	phase := t % p.BurstIntervalNs
	return phase < p.BurstWindowNs
}

func (g *Generator) scheduleNextOrder(now int64) {
	p := g.params
	interval := p.OrderIntervalNs
	if g.isBurst(now) && p.BurstRate > 0 {
		interval = int64(float64(interval) / p.BurstRate)
		if interval < 1 {
			interval = 1
		}
	}
	jitter := int64(0)
	if interval > 1 {
		jitter = g.rng.Int63n(interval/2 + 1)
	}
	next := now + interval + jitter
	g.nextOrderAt = next
	g.k.ScheduleWake(g.id, next)
}

func (g *Generator) scheduleNextSignal(now int64) {
	next := now + g.params.SignalIntervalNs
	g.nextSignalAt = next
	g.k.ScheduleWake(g.id, next)
}

func (g *Generator) emitOrderEvent(t int64) {
	p := g.params
	cancelRate := p.CancelRate
	marketRatio := p.MarketOrderRatio
	burst := g.isBurst(t)
	if burst {
		cancelRate *= p.BurstCancelMul
		marketRatio *= p.BurstMarketMul
		if p.BurstCancelCap > 0 && cancelRate > p.BurstCancelCap {
			cancelRate = p.BurstCancelCap
		}
		if p.BurstMarketCap > 0 && marketRatio > p.BurstMarketCap {
			marketRatio = p.BurstMarketCap
		}
	}

	roll := g.rng.Float64()
	switch {
	case roll < cancelRate && len(g.resting) > 0:
		idx := g.rng.Intn(len(g.resting))
		cancelID := g.resting[idx]
		g.resting = append(g.resting[:idx], g.resting[idx+1:]...)
		g.k.Send(g.id, g.exchange, domain.CancelOrderMsg, domain.CancelOrderBody{ID: cancelID}, 0)

	case roll < cancelRate+marketRatio:
		size := g.randSize()
		if burst && p.BurstSizeMul > 0 {
			size = int64(float64(size) * p.BurstSizeMul)
		}
		g.k.Send(g.id, g.exchange, domain.MarketOrderMsg, domain.MarketOrderBody{
			Symbol: g.symbol, Side: g.randSide(), Qty: size,
		}, 0)

	default:
		side := g.randSide()
		offset := g.rng.Int63n(int64(p.MaxPriceLevels)) * p.PriceTickSize
		var price int64
		if side == domain.Buy {
			price = p.InitialMidPrice - p.InitialSpread/2 - offset
		} else {
			price = p.InitialMidPrice + p.InitialSpread/2 + offset
		}
		g.placeLimit(side, price, g.randSize())
	}
}

// emitSignal publishes an oracle tick sampled from N(0, 0.5^2), matching
// the teacher's generateSignals. Oracle ticks are bus-only (GLOSSARY) so
// this is a no-op when the attached kernel doesn't expose Emit.
func (g *Generator) emitSignal(t int64) {
	if g.emit == nil {
		return
	}
	value := g.rng.NormFloat64() * 0.5
	g.emit.Emit(bus.Event{Topic: bus.OracleTick, OracleTick: &domain.OracleTick{
		Ts: t, Symbol: g.symbol, Fundamental: value,
	}})
}
