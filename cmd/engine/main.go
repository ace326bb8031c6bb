// Command tradecore-engine runs the live (or command-driven backtest-mode)
// trading engine: it loads a YAML config, wires Engine/OMS/RiskEngine/
// StrategyRuntime to a venue adapter, streams NDJSON events to stdout, and
// reads ORDER/CANCEL/STRATEGY/QUERY commands from stdin until EOF or a
// termination signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tradecore/internal/cliflags"
	"tradecore/internal/clock"
	"tradecore/internal/command"
	"tradecore/internal/config"
	"tradecore/internal/emitter"
	"tradecore/internal/engine"
	"tradecore/internal/eventqueue"
	execlive "tradecore/internal/executor/live"
	"tradecore/internal/executor/live/reconciler"
	"tradecore/internal/model"
	"tradecore/internal/oms"
	"tradecore/internal/oms/persist"
	"tradecore/internal/risk"
	"tradecore/internal/risk/circuitbreaker"
	"tradecore/internal/strategy"
	"tradecore/internal/strategy/gridstrat"
	"tradecore/internal/strategy/momentum"
	"tradecore/internal/telemetry"
	venuelive "tradecore/internal/venue/live"
	venuesim "tradecore/internal/venue/sim"
)

// liveQueueCapacity sizes the EventQueue generously for live mode: unlike a
// backtest run it is never expected to saturate, since PushMarketEvent and
// ConsumeUserStream feed it only as fast as the venue produces updates.
const liveQueueCapacity = 100000

var (
	configPath  string
	persistDB   string
	metricsAddr string
	logLevel    = cliflags.NewLogLevel()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tradecore-engine",
		Short: "Run the tradecore live trading engine",
		Long:  "tradecore-engine wires the Engine dispatch loop to a venue adapter and drives it from stdin commands until EOF or SIGTERM/SIGINT.",
		RunE:  runEngine,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&persistDB, "persist-db", "", "optional path to a SQLite file for periodic OrderStore audit dumps (disabled if empty)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9090", "listen address for the Prometheus /metrics endpoint (disabled if empty)")
	rootCmd.PersistentFlags().Var(logLevel, "log-level", "override the config file's log_level (DEBUG, INFO, WARN, ERROR)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Engine.Mode != "live" {
		return fmt.Errorf("tradecore-engine: engine.mode must be \"live\" (use tradecore-backtest for backtest runs)")
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel.String()
	}
	logger := telemetry.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	providers, err := telemetry.Setup("tradecore-engine")
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.WithField("error", err).Warn("telemetry shutdown failed")
		}
	}()

	symbols := make([]model.Symbol, len(cfg.Engine.Symbols))
	for i, s := range cfg.Engine.Symbols {
		symbols[i] = model.Symbol(s)
	}

	clk := clock.NewWallClock()
	queue := eventqueue.New(liveQueueCapacity)
	store := oms.New(logger)
	riskEng := risk.New(cfg.Risk.ToRiskConfig(), decimal.NewFromFloat(cfg.Risk.StartEquity), nil, logger)

	// A Runtime's factory map is keyed by TypeName, one factory per type, and
	// Config.Symbol is baked in at construction time rather than carried
	// through STRATEGY LOAD's float64-valued params. That means a single
	// engine process drives one symbol per strategy type: STRATEGY LOAD
	// always attaches to firstSymbol(symbols) regardless of which symbol a
	// multi-symbol config lists. Running several symbols with independent
	// per-symbol strategy instances needs one tradecore-engine process per
	// symbol today.
	primary := firstSymbol(symbols)
	factories := []strategy.Factory{
		momentum.New(momentum.Config{Symbol: primary}),
		gridstrat.New(gridstrat.Config{Symbol: primary}),
	}
	runtime := strategy.NewRuntime(factories, logger)

	em := emitter.New(os.Stdout, clk.NowNs)
	eng := engine.New(engine.Config{Mode: engine.ModeLive, Symbols: symbols}, clk, queue, store, riskEng, runtime, em, logger)

	venueName, venueCfg := firstVenue(cfg.Venues)
	adapter, wsClient := buildAdapter(venueCfg, logger)

	execCfg := execlive.DefaultConfig()
	if venueCfg.RateLimitPerSec > 0 {
		execCfg.RateLimitPerSec = venueCfg.RateLimitPerSec
	}
	liveExec := execlive.New(adapter, store, logger, execCfg)
	eng.WithLiveExecutor(liveExec)

	if err := eng.Initialize(); err != nil {
		return fmt.Errorf("engine initialize: %w", err)
	}

	breaker := circuitbreaker.New(venueName, circuitbreaker.Config{})
	recon := reconciler.New(adapter, store, riskEng, breaker, primary, 30*time.Second, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if wsClient != nil {
		g.Go(func() error { return wsClient.Run(ctx) })
	}

	g.Go(func() error { return eng.Run(ctx) })

	g.Go(func() error {
		userStream, err := adapter.SubscribeUserStream(ctx)
		if err != nil {
			return fmt.Errorf("subscribe user stream: %w", err)
		}
		eng.ConsumeUserStream(ctx, userStream)
		return nil
	})

	g.Go(func() error {
		marketCh, err := adapter.SubscribeMarket(ctx, symbols)
		if err != nil {
			return fmt.Errorf("subscribe market: %w", err)
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case evt, ok := <-marketCh:
				if !ok {
					return nil
				}
				_ = eng.PushMarketEvent(evt)
			}
		}
	})

	g.Go(func() error { recon.Run(ctx); return nil })

	g.Go(func() error { return command.RunLoop(ctx, os.Stdin, eng) })

	if metricsAddr != "" {
		metricsSrv := telemetry.NewMetricsServer(metricsAddr, logger)
		g.Go(func() error { return metricsSrv.Run(ctx) })
	}

	if persistDB != "" {
		dumper, err := persist.Open(persistDB)
		if err != nil {
			return err
		}
		defer dumper.Close()
		g.Go(func() error {
			dumper.Run(ctx, store, 10*time.Second, func(err error) {
				logger.WithField("error", err).Warn("order store audit dump failed")
			})
			return nil
		})
	}

	err = g.Wait()
	em.Flush()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func firstVenue(venues map[string]config.VenueConfig) (string, config.VenueConfig) {
	if len(venues) == 0 {
		return "", config.VenueConfig{}
	}
	names := make([]string, 0, len(venues))
	for name := range venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0], venues[names[0]]
}

func firstSymbol(symbols []model.Symbol) model.Symbol {
	if len(symbols) == 0 {
		return ""
	}
	return symbols[0]
}

// buildAdapter wires the reference loopback VenueAdapter (no concrete
// exchange wire format is in scope) and, when a venue websocket URL is
// configured, a transport-level Client purely to demonstrate the
// reconnect/heartbeat plumbing a real adapter would sit on top of; its raw
// frames are logged rather than parsed, since decoding them is venue-specific.
func buildAdapter(venueCfg config.VenueConfig, logger telemetry.Logger) (execlive.VenueAdapter, *venuelive.Client) {
	adapter := venuesim.New()

	var wsClient *venuelive.Client
	if venueCfg.WSURL != "" {
		wsClient = venuelive.NewClient(venuelive.ClientConfig{URL: venueCfg.WSURL}, func(message []byte) {
			logger.Debug("venue websocket frame received", "bytes", len(message))
		}, logger)
	}
	return adapter, wsClient
}
