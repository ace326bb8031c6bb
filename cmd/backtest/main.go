// Command tradecore-backtest replays historical market data through the
// BacktestHarness and reports the resulting performance metrics, optionally
// driving an Optimizer search over the strategy's parameters instead of a
// single run.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradecore/internal/backtest"
	"tradecore/internal/cliflags"
	"tradecore/internal/config"
	"tradecore/internal/datasource"
	"tradecore/internal/engine"
	"tradecore/internal/model"
	"tradecore/internal/optimizer"
	"tradecore/internal/strategy"
	"tradecore/internal/strategy/gridstrat"
	"tradecore/internal/strategy/momentum"
	"tradecore/internal/telemetry"
)

var (
	configPath string
	logLevel   = cliflags.NewLogLevel()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tradecore-backtest",
		Short: "Replay historical data through the backtest engine",
		Long:  "tradecore-backtest drives a BacktestHarness over a configured DataSource and strategy, reporting total return, drawdown, Sharpe, win rate and profit factor.",
		RunE:  runBacktest,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().Var(logLevel, "log-level", "override the config file's log_level (DEBUG, INFO, WARN, ERROR)")

	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search the strategy's parameter space instead of running once",
		RunE:  runOptimize,
	}
	rootCmd.AddCommand(optimizeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadRunConfig(cmd *cobra.Command) (*config.Config, telemetry.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Engine.Mode != "backtest" {
		return nil, nil, fmt.Errorf("tradecore-backtest: engine.mode must be \"backtest\" (use tradecore-engine for live runs)")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel.String()
	}
	logger := telemetry.NewLogger(cfg.LogLevel)
	return cfg, logger, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.(*telemetry.ZapLogger).Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runner, err := newTrialRunner(cfg, logger)
	if err != nil {
		return err
	}
	result, err := runner(ctx, paramsOf(cfg.Strategy.Params))
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.(*telemetry.ZapLogger).Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runner, err := newTrialRunner(cfg, logger)
	if err != nil {
		return err
	}

	opt, err := buildOptimizer(cfg.Optimizer)
	if err != nil {
		return err
	}

	ranked, err := opt.Optimize(ctx, runner)
	if err != nil {
		return err
	}
	if len(ranked) == 0 {
		return fmt.Errorf("optimizer produced no trials")
	}

	best := ranked.Best()
	fmt.Printf("evaluated %s trials\n", humanize.Comma(int64(len(ranked))))
	fmt.Printf("best params: %v (fitness %.4f)\n", best.Params, best.Fitness)
	printResult(best.Result)
	return nil
}

// newTrialRunner builds a TrialRunner that constructs a fresh strategy
// instance and Harness per call, so concurrent optimizer trials never share
// mutable state.
func newTrialRunner(cfg *config.Config, logger telemetry.Logger) (optimizer.TrialRunner, error) {
	symbol := model.Symbol(cfg.Backtest.DataSource.Symbol)
	dataType, tf, err := dataShapeOf(cfg.Backtest.DataSource)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, params optimizer.Params) (backtest.Result, error) {
		factory, err := buildFactory(cfg.Strategy, symbol)
		if err != nil {
			return backtest.Result{}, err
		}
		runtime := strategy.NewRuntime([]strategy.Factory{factory}, logger)

		merged := mergeParams(cfg.Strategy.Params, params)
		sub := strategy.NewSubscription(model.Venue(cfg.Strategy.Venue), symbol, eventTypeOf(cfg.Strategy.EventType))
		if _, err := runtime.Load(cfg.Strategy.ID, cfg.Strategy.Type, merged, []strategy.Subscription{sub}); err != nil {
			return backtest.Result{}, err
		}

		src, err := buildDataSource(cfg.Backtest.DataSource)
		if err != nil {
			return backtest.Result{}, err
		}
		if err := src.Connect(ctx); err != nil {
			return backtest.Result{}, err
		}
		defer src.Disconnect()

		h := backtest.New(backtest.Config{
			StartMs:                cfg.Backtest.StartMs,
			EndMs:                  cfg.Backtest.EndMs,
			InitialBalance:         decimal.NewFromFloat(cfg.Backtest.InitialBalance),
			Symbols:                []model.Symbol{symbol},
			EquitySampleIntervalMs: cfg.Backtest.EquitySampleIntervalMs,
			PeriodsPerYear:         cfg.Backtest.PeriodsPerYear,
			Risk:                   cfg.Risk.ToRiskConfig(),
			Logger:                 logger,
		}, runtime, engine.NopEmitter{})

		if err := h.Load(ctx, src, symbol, dataType, tf); err != nil {
			return backtest.Result{}, err
		}
		if err := h.Run(ctx); err != nil {
			return backtest.Result{}, err
		}
		return h.Result(), nil
	}, nil
}

func buildDataSource(cfg config.DataSourceConfig) (datasource.Source, error) {
	switch cfg.Type {
	case "csv":
		delim := ','
		if cfg.Delimiter != "" {
			delim = []rune(cfg.Delimiter)[0]
		}
		format, err := csvFormatOf(cfg.DataType)
		if err != nil {
			return nil, err
		}
		return datasource.NewCSV(datasource.CSVConfig{
			Path:            cfg.Path,
			Format:          format,
			Delimiter:       delim,
			HasHeader:       cfg.HasHeader,
			SkipInvalidRows: cfg.SkipInvalidRows,
			Symbol:          model.Symbol(cfg.Symbol),
		}), nil
	default:
		return nil, fmt.Errorf("data_source.type %q is not implemented (only csv is)", cfg.Type)
	}
}

func dataShapeOf(cfg config.DataSourceConfig) (datasource.DataType, datasource.TimeFrame, error) {
	dataType := datasource.DataTypeOHLCV
	switch cfg.DataType {
	case "", "ohlcv":
		dataType = datasource.DataTypeOHLCV
	case "trade":
		dataType = datasource.DataTypeTrade
	case "book":
		dataType = datasource.DataTypeBook
	default:
		return "", "", fmt.Errorf("data_source.data_type %q is not recognized", cfg.DataType)
	}

	tf := datasource.TimeFrame1h
	switch cfg.TimeFrame {
	case "", "1h":
		tf = datasource.TimeFrame1h
	case "1m":
		tf = datasource.TimeFrame1m
	case "5m":
		tf = datasource.TimeFrame5m
	case "1d":
		tf = datasource.TimeFrame1d
	default:
		return "", "", fmt.Errorf("data_source.time_frame %q is not recognized", cfg.TimeFrame)
	}
	return dataType, tf, nil
}

func csvFormatOf(dataType string) (datasource.CSVFormat, error) {
	switch dataType {
	case "", "ohlcv":
		return datasource.FormatOHLCV, nil
	case "trade":
		return datasource.FormatTrade, nil
	case "book":
		return datasource.FormatBook, nil
	default:
		return "", fmt.Errorf("data_source.data_type %q is not recognized", dataType)
	}
}

func eventTypeOf(name string) model.EventType {
	switch name {
	case "trade":
		return model.EventTrade
	case "book_top":
		return model.EventBookTop
	case "book_delta":
		return model.EventBookDelta
	default:
		return model.EventKline
	}
}

func buildFactory(cfg config.StrategyConfig, symbol model.Symbol) (strategy.Factory, error) {
	switch cfg.Type {
	case "momentum":
		return momentum.New(momentum.Config{
			Symbol: symbol,
			Fast:   10,
			Slow:   20,
			Qty:    decimal.NewFromFloat(cfg.Qty),
		}), nil
	case "grid":
		return gridstrat.New(gridstrat.Config{
			Symbol:         symbol,
			PriceInterval:  decimal.NewFromFloat(cfg.PriceInterval),
			OrderQty:       decimal.NewFromFloat(cfg.Qty),
			BuyWindowSize:  cfg.BuyWindowSize,
			SellWindowSize: cfg.SellWindowSize,
			PriceDecimals:  cfg.PriceDecimals,
			Neutral:        cfg.Neutral,
		}), nil
	default:
		return strategy.Factory{}, fmt.Errorf("strategy.type %q is not recognized", cfg.Type)
	}
}

func paramsOf(m map[string]float64) optimizer.Params {
	p := make(optimizer.Params, len(m))
	for k, v := range m {
		p[k] = v
	}
	return p
}

func mergeParams(base map[string]float64, override optimizer.Params) map[string]float64 {
	merged := make(map[string]float64, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func buildOptimizer(cfg config.OptimizerConfig) (optimizer.Optimizer, error) {
	ranges := make(map[string]optimizer.ParamRange, len(cfg.ParamRanges))
	for name, r := range cfg.ParamRanges {
		ranges[name] = optimizer.ParamRange{Min: r.Min, Max: r.Max, Step: r.Step}
	}
	objective := optimizer.Objective(cfg.Objective)
	if objective == "" {
		objective = optimizer.ObjectiveSharpe
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}

	progress := func(p optimizer.Progress) {
		fmt.Printf("trial %d/%d best=%.4f current=%.4f\n", p.CurrentIteration, p.TotalIterations, p.BestFitness, p.CurrentFitness)
	}

	switch cfg.Algorithm {
	case "", "grid":
		return optimizer.Grid{Ranges: ranges, MaxIterations: cfg.MaxIterations, Objective: objective, Parallelism: parallelism, OnProgress: progress}, nil
	case "random":
		return optimizer.Random{Ranges: ranges, MaxIterations: cfg.MaxIterations, Objective: objective, Parallelism: parallelism, OnProgress: progress}, nil
	case "ga":
		return optimizer.GA{
			Ranges:                 ranges,
			Population:             cfg.GA.Population,
			TournamentK:            cfg.GA.TournamentK,
			CrossoverRate:          cfg.GA.CrossoverRate,
			MutationRate:           cfg.GA.MutationRate,
			Elitism:                cfg.GA.Elitism,
			ConvergenceDelta:       cfg.GA.ConvergenceDelta,
			ConvergenceGenerations: cfg.GA.ConvergenceGenerations,
			MaxGenerations:         cfg.MaxIterations,
			Objective:              objective,
			Parallelism:            parallelism,
			OnProgress:             progress,
		}, nil
	case "bayesian":
		return optimizer.Bayesian{
			Ranges:         ranges,
			InitialSamples: cfg.Bayesian.InitialSamples,
			MaxIterations:  cfg.MaxIterations,
			Acquisition:    cfg.Bayesian.Acquisition,
			Kappa:          cfg.Bayesian.Kappa,
			Xi:             cfg.Bayesian.Xi,
			Objective:      objective,
			Parallelism:    parallelism,
			OnProgress:     progress,
		}, nil
	default:
		return nil, fmt.Errorf("optimizer.algorithm %q is not recognized", cfg.Algorithm)
	}
}

func printResult(r backtest.Result) {
	fmt.Printf("total return:   %s%%\n", r.TotalReturn.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Printf("max drawdown:   %s%%\n", r.MaxDrawdown.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Printf("sharpe ratio:   %.2f\n", r.SharpeRatio)
	fmt.Printf("win rate:       %s%%\n", r.WinRate.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Printf("profit factor:  %.2f\n", r.ProfitFactor)
	fmt.Printf("total fills:    %s\n", humanize.Comma(int64(r.TotalFills)))
	fmt.Printf("closed trades:  %s\n", humanize.Comma(int64(r.ClosedTrades)))
}
