// Command lobsim assembles the kernel, the exchange agent, the
// background order-flow generator, the illustrative demo strategies,
// metrics, and the event log into one runnable simulation, wired
// through go.uber.org/fx the way tradSys's cmd/gateway bootstraps its
// own fx.App instead of hand-assembling globals in main.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lobsim/lobsim/internal/bus"
	"github.com/lobsim/lobsim/internal/config"
	"github.com/lobsim/lobsim/internal/domain"
	"github.com/lobsim/lobsim/internal/eventlog"
	"github.com/lobsim/lobsim/internal/exchange"
	"github.com/lobsim/lobsim/internal/gateway"
	"github.com/lobsim/lobsim/internal/kernel"
	"github.com/lobsim/lobsim/internal/latency"
	"github.com/lobsim/lobsim/internal/logging"
	"github.com/lobsim/lobsim/internal/metrics"
	"github.com/lobsim/lobsim/internal/report"
	"github.com/lobsim/lobsim/internal/scenario"
	"github.com/lobsim/lobsim/internal/strategy"
)

// Agent ids statically assigned before the kernel starts. Dynamically
// attached humans (internal/gateway, "serve" only) are allocated
// starting at humanBaseAgentID, well above this range.
const (
	exchangeAgentID     domain.AgentID = 1
	generatorAgentID    domain.AgentID = 2
	marketMakerAgentID  domain.AgentID = 3
	oracleTraderAgentID domain.AgentID = 4
	noiseTraderAgentID  domain.AgentID = 5
	humanBaseAgentID    domain.AgentID = 1000
)

// runOptions configures one invocation; supplied into the fx.App so
// every provider can depend on it without reading os.Args directly.
type runOptions struct {
	scenarioName string
	seed         int64
	configPath   string
	outDir       string
	serveAddr    string
	// durationMs bounds "run"/"demo" to a fixed span of simulated time;
	// the background generator never runs dry on its own (it always
	// reschedules its next wake), so run-to-completion has no natural
	// end outside of tests with a finite scripted agent.
	durationMs int64
}

// Result summarizes a completed run-to-completion invocation (run,
// demo, or replay's deterministic comparison pass).
type Result struct {
	Scenario   string
	Seed       int64
	EventCount uint64
	TradeCount int
	Duration   time.Duration
	OutputDir  string
	LogPath    string
	LogHash    string
}

// hashFile returns the hex sha256 of the file at path, for deterministic
// replay verification (grounded on the teacher's simHashFile).
func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

func newLogger(opts runOptions) (*zap.SugaredLogger, error) {
	return logging.New(opts.serveAddr != "")
}

func newConfig(opts runOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.scenarioName != "" {
		cfg.Scenario.Name = opts.scenarioName
	}
	cfg.Scenario.Seed = opts.seed
	cfg.Latency.Seed = opts.seed
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLatencyModel(cfg *config.Config) latency.Model {
	rpcCfg := latency.RPCConfig{
		UpNs:         latency.MsToNs(int64(cfg.Latency.RPCUpMs)),
		DownNs:       latency.MsToNs(int64(cfg.Latency.RPCDownMs)),
		ComputeNs:    latency.MsToNs(int64(cfg.Latency.ComputeMs)),
		DownJitterNs: latency.MsToNs(int64(cfg.Latency.DownJitterMs)),
	}
	return latency.NewRPCModel(rpcCfg, exchangeAgentID, cfg.Latency.Seed)
}

func newKernel(cfg *config.Config, lat latency.Model, log *zap.SugaredLogger) *kernel.Kernel {
	return kernel.New(kernel.Config{
		TickNs:          latency.MsToNs(int64(cfg.Kernel.TickMs)),
		MarketDataDepth: cfg.Kernel.MarketDataDepth,
	}, lat, log)
}

func newScenarioParams(cfg *config.Config) (scenario.Params, error) {
	params, ok := scenario.ParamsFor(cfg.Scenario.Name)
	if !ok {
		return scenario.Params{}, fmt.Errorf("unknown scenario: %s", cfg.Scenario.Name)
	}
	return params, nil
}

const simSymbol = "LOBSIM"

// wireAgents registers the exchange, the background generator, and the
// demo strategies under their static ids, and sets the exchange as the
// kernel's designated book mutator (spec §3). It runs as an fx.Invoke
// so the kernel exists before anything tries to register against it.
func wireAgents(k *kernel.Kernel, cfg *config.Config, params scenario.Params, log *zap.SugaredLogger) {
	ex := exchange.New(exchangeAgentID, simSymbol, log)
	k.Register(exchangeAgentID, ex)
	k.SetExchange(exchangeAgentID)

	gen := scenario.New(generatorAgentID, simSymbol, params, cfg.Scenario.Seed, log)
	k.Register(generatorAgentID, gen)

	mm := strategy.NewMarketMaker(marketMakerAgentID, simSymbol)
	k.Register(marketMakerAgentID, mm)

	ot := strategy.NewOracleTrader(oracleTraderAgentID, simSymbol, log)
	k.Register(oracleTraderAgentID, ot)

	nt := strategy.NewNoiseTrader(noiseTraderAgentID, simSymbol,
		params.OrderIntervalNs*2, params.InitialMidPrice, params.InitialSpread*4, params.MinOrderSize, cfg.Scenario.Seed+1)
	k.Register(noiseTraderAgentID, nt)
}

func newMetrics() *metrics.Collectors {
	return metrics.NewCollectors()
}

func newPrometheusRegistry(c *metrics.Collectors) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	c.Register(reg)
	return reg
}

// newEventLogWriter creates the JSONL writer under opts.outDir and
// subscribes it to every bus topic worth persisting for replay/metrics.
func newEventLogWriter(opts runOptions, cfg *config.Config, k *kernel.Kernel) (*eventlog.Writer, string, error) {
	runDir := filepath.Join(opts.outDir, fmt.Sprintf("%s_seed%d", cfg.Scenario.Name, cfg.Scenario.Seed))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create run directory: %w", err)
	}
	if err := writeRunMeta(runDir, opts, cfg); err != nil {
		return nil, "", err
	}
	logPath := filepath.Join(runDir, "events.jsonl")
	w, err := eventlog.NewWriter(logPath)
	if err != nil {
		return nil, "", err
	}
	w.Subscribe(k, bus.Trade, bus.OrderLog, bus.OrderRejected, bus.MarketData, bus.OracleTick)
	return w, runDir, nil
}

// writeRunMeta records the resolved scenario name and seed alongside the
// event log, so "replay" can reconstruct an equivalent runOptions
// without the caller having to pass them again by hand.
func writeRunMeta(runDir string, opts runOptions, cfg *config.Config) error {
	data, err := json.MarshalIndent(struct {
		Scenario   string `json:"scenario"`
		Seed       int64  `json:"seed"`
		DurationMs int64  `json:"duration_ms"`
	}{cfg.Scenario.Name, cfg.Scenario.Seed, opts.durationMs}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run meta: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, "meta.json"), data, 0o644)
}

// batchTicks is how many fixed-size Tick calls buildBatchApp runs
// before stopping: opts.durationMs of simulated time divided by the
// configured tick size.
func batchTicks(opts runOptions, cfg *config.Config) int64 {
	tickNs := latency.MsToNs(int64(cfg.Kernel.TickMs))
	durationNs := latency.MsToNs(opts.durationMs)
	if tickNs <= 0 {
		return 0
	}
	ticks := durationNs / tickNs
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

// buildBatchApp assembles the fx.App for "run" and "demo": it paces the
// kernel through a fixed number of Tick calls without sleeping between
// them (the batch analogue of RunWallClock, bounded by opts.durationMs
// of simulated time since the background generator reschedules its own
// wake forever and never drains the queue on its own), writes the event
// log, and calls fx.Shutdowner so app.Run() returns instead of blocking
// on an OS signal the way a long-running server would.
func buildBatchApp(opts runOptions, out *Result) *fx.App {
	return fx.New(
		fx.Supply(opts),
		fx.Provide(newLogger, newConfig, newLatencyModel, newKernel, newScenarioParams, newMetrics, newPrometheusRegistry),
		fx.Invoke(func(lc fx.Lifecycle, sh fx.Shutdowner, k *kernel.Kernel, cfg *config.Config, params scenario.Params, log *zap.SugaredLogger, coll *metrics.Collectors) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					wireAgents(k, cfg, params, log)
					coll.Subscribe(k)
					w, runDir, err := newEventLogWriter(opts, cfg, k)
					if err != nil {
						return err
					}

					start := time.Now()
					k.Start(0)
					for i := int64(0); i < batchTicks(opts, cfg); i++ {
						k.Tick()
					}
					k.Stop()
					wallDuration := time.Since(start)

					if err := w.Close(); err != nil {
						return err
					}
					logPath := filepath.Join(runDir, "events.jsonl")

					summaries, err := metrics.ComputeFromLog(logPath)
					if err != nil {
						log.Warnw("lobsim: could not compute metrics", "error", err)
					} else {
						report.PrintSummary(cfg.Scenario.Name, cfg.Scenario.Seed, summaries)
						rep := report.NewReport(cfg.Scenario.Name, cfg.Scenario.Seed, summaries, runDir)
						if err := rep.Generate(); err != nil {
							log.Warnw("lobsim: could not write report", "error", err)
						}
					}

					var tradeCount int
					for _, s := range summaries {
						tradeCount += s.FillsAsTaker
					}

					hash, err := hashFile(logPath)
					if err != nil {
						return fmt.Errorf("hash event log: %w", err)
					}

					*out = Result{
						Scenario:   cfg.Scenario.Name,
						Seed:       cfg.Scenario.Seed,
						EventCount: w.Count(),
						TradeCount: tradeCount,
						Duration:   wallDuration,
						OutputDir:  runDir,
						LogPath:    logPath,
						LogHash:    hash,
					}
					return sh.Shutdown()
				},
			})
		}),
	)
}

// buildServeApp assembles the fx.App for "serve": the kernel runs in
// real time on a wall-clock driver, and an HTTP server exposes the
// WebSocket gateway plus a Prometheus /metrics endpoint. Unlike
// buildBatchApp, this blocks on an OS signal (fx's default) since
// there's no natural completion point.
func buildServeApp(opts runOptions) *fx.App {
	return fx.New(
		fx.Supply(opts),
		fx.Provide(newLogger, newConfig, newLatencyModel, newKernel, newScenarioParams, newMetrics, newPrometheusRegistry),
		fx.Invoke(func(lc fx.Lifecycle, k *kernel.Kernel, cfg *config.Config, params scenario.Params, log *zap.SugaredLogger, coll *metrics.Collectors, reg *prometheus.Registry) {
			gw := gateway.New(log, k, simSymbol, humanBaseAgentID, 5, 10)

			mux := http.NewServeMux()
			mux.HandleFunc("/ws", gw.HandleConn)
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

			srv := &http.Server{Addr: opts.serveAddr, Handler: mux}

			var cancelRun context.CancelFunc
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					wireAgents(k, cfg, params, log)
					coll.Subscribe(k)

					runCtx, cancel := context.WithCancel(context.Background())
					cancelRun = cancel
					k.Start(0)
					go k.RunWallClock(runCtx, time.Duration(latency.MsToNs(int64(cfg.Kernel.TickMs))))

					ln, err := net.Listen("tcp", opts.serveAddr)
					if err != nil {
						return fmt.Errorf("listen on %s: %w", opts.serveAddr, err)
					}
					log.Infow("lobsim: serving", "addr", opts.serveAddr, "scenario", cfg.Scenario.Name)
					go srv.Serve(ln)
					return nil
				},
				OnStop: func(ctx context.Context) error {
					if cancelRun != nil {
						cancelRun()
					}
					k.Stop()
					return srv.Shutdown(ctx)
				},
			})
		}),
	)
}
