// Package config loads and validates the YAML configuration for an engine
// or backtest run: engine mode/symbols, risk limits, backtest window, and
// optimizer search parameters.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tradecore/internal/risk"
)

// Config is the complete top-level configuration structure.
type Config struct {
	Engine    EngineConfig           `yaml:"engine" validate:"required"`
	Risk      RiskConfig             `yaml:"risk" validate:"required"`
	Backtest  BacktestConfig         `yaml:"backtest"`
	Optimizer OptimizerConfig        `yaml:"optimizer"`
	Venues    map[string]VenueConfig `yaml:"venues"`
	Strategy  StrategyConfig         `yaml:"strategy"`
	LogLevel  string                 `yaml:"log_level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
}

// StrategyConfig selects and parametrizes the one strategy instance a
// backtest or optimizer run drives. Params carries the fields the chosen
// TypeName's Factory.Ranges validates (e.g. momentum's "fast"/"slow");
// the remaining fields are construction-time template values the factory
// bakes in before any param override is applied.
type StrategyConfig struct {
	Type           string             `yaml:"type" validate:"required,oneof=momentum grid"`
	ID             string             `yaml:"id" validate:"required"`
	Params         map[string]float64 `yaml:"params"`
	Venue          string             `yaml:"venue" validate:"required"`
	EventType      string             `yaml:"event_type" validate:"required,oneof=trade book_top book_delta kline"`
	Qty            float64            `yaml:"qty" validate:"omitempty,min=0"`
	PriceInterval  float64            `yaml:"price_interval" validate:"omitempty,min=0"`
	BuyWindowSize  int                `yaml:"buy_window_size" validate:"omitempty,min=0"`
	SellWindowSize int                `yaml:"sell_window_size" validate:"omitempty,min=0"`
	PriceDecimals  int32              `yaml:"price_decimals" validate:"omitempty,min=0"`
	Neutral        bool               `yaml:"neutral"`
}

// EngineConfig selects the run mode and the symbols it trades.
type EngineConfig struct {
	Mode               string   `yaml:"mode" validate:"required,oneof=backtest live"`
	Symbols            []string `yaml:"symbols" validate:"required,min=1,dive,required"`
	ProgressIntervalMs int      `yaml:"progress_interval_ms" validate:"omitempty,min=1"`
}

// SymbolLimitConfig bounds risk for one symbol.
type SymbolLimitConfig struct {
	MaxPositionSize float64 `yaml:"max_position_size" validate:"min=0"`
	MaxNotional     float64 `yaml:"max_notional" validate:"min=0"`
}

// RiskConfig mirrors risk.Config in YAML-friendly, pre-decimal form.
type RiskConfig struct {
	Limits            map[string]SymbolLimitConfig `yaml:"limits"`
	DailyLossLimit    float64                      `yaml:"daily_loss_limit" validate:"required,min=0,max=1"`
	MaxOpenOrders     int                          `yaml:"max_open_orders" validate:"required,min=1,max=100000"`
	KillSwitchEnabled bool                         `yaml:"kill_switch_enabled"`
	StartEquity       float64                      `yaml:"start_equity" validate:"required,min=0"`
}

// DataSourceConfig selects and configures the backtest's market data feed.
type DataSourceConfig struct {
	Type            string `yaml:"type" validate:"required,oneof=csv http"`
	Path            string `yaml:"path"`
	URL             string `yaml:"url"`
	Symbol          string `yaml:"symbol" validate:"required"`
	Delimiter       string `yaml:"delimiter"`
	HasHeader       bool   `yaml:"has_header"`
	SkipInvalidRows bool   `yaml:"skip_invalid_rows"`
	DataType        string `yaml:"data_type" validate:"omitempty,oneof=trade ohlcv book"`
	TimeFrame       string `yaml:"time_frame" validate:"omitempty,oneof=1m 5m 1h 1d"`
}

// BacktestConfig bounds a BacktestHarness run.
type BacktestConfig struct {
	StartMs                int64            `yaml:"start_ms"`
	EndMs                  int64            `yaml:"end_ms" validate:"omitempty,gtfield=StartMs"`
	InitialBalance         float64          `yaml:"initial_balance" validate:"omitempty,min=0"`
	EquitySampleIntervalMs int64            `yaml:"equity_sample_interval_ms" validate:"omitempty,min=1"`
	PeriodsPerYear         float64          `yaml:"periods_per_year" validate:"omitempty,min=0"`
	DataSource             DataSourceConfig `yaml:"data_source"`
}

// ParamRangeConfig bounds one strategy parameter the optimizer searches
// over. Step == 0 means continuous (GA/Bayesian/Random); grid search
// requires a non-zero step.
type ParamRangeConfig struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max" validate:"gtefield=Min"`
	Step float64 `yaml:"step" validate:"min=0"`
}

// GAConfig tunes the genetic-algorithm optimizer.
type GAConfig struct {
	Population             int     `yaml:"population" validate:"omitempty,min=2"`
	TournamentK            int     `yaml:"tournament_k" validate:"omitempty,min=1"`
	CrossoverRate          float64 `yaml:"crossover_rate" validate:"omitempty,min=0,max=1"`
	MutationRate           float64 `yaml:"mutation_rate" validate:"omitempty,min=0,max=1"`
	Elitism                int     `yaml:"elitism" validate:"omitempty,min=0"`
	ConvergenceDelta       float64 `yaml:"convergence_delta" validate:"omitempty,min=0"`
	ConvergenceGenerations int     `yaml:"convergence_generations" validate:"omitempty,min=1"`
}

// BayesConfig tunes the Bayesian optimizer's acquisition function.
type BayesConfig struct {
	InitialSamples int     `yaml:"initial_samples" validate:"omitempty,min=1"`
	Acquisition    string  `yaml:"acquisition" validate:"omitempty,oneof=EI UCB PI"`
	Kappa          float64 `yaml:"kappa" validate:"omitempty,min=0"`
	Xi             float64 `yaml:"xi" validate:"omitempty,min=0"`
}

// OptimizerConfig configures one Optimizer.Optimize run.
type OptimizerConfig struct {
	Algorithm     string                      `yaml:"algorithm" validate:"omitempty,oneof=grid random ga bayesian"`
	Objective     string                      `yaml:"objective" validate:"omitempty,oneof=sharpe return win_rate custom"`
	MaxIterations int                         `yaml:"max_iterations" validate:"omitempty,min=1"`
	Parallelism   int                         `yaml:"parallelism" validate:"omitempty,min=1"`
	ParamRanges   map[string]ParamRangeConfig `yaml:"param_ranges"`
	GA            GAConfig                    `yaml:"ga"`
	Bayesian      BayesConfig                 `yaml:"bayesian"`
}

// VenueConfig holds one venue's connection and rate-limit settings.
type VenueConfig struct {
	RESTBaseURL     string  `yaml:"rest_base_url"`
	WSURL           string  `yaml:"ws_url"`
	APIKey          string  `yaml:"api_key"`
	SecretKey       string  `yaml:"secret_key"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" validate:"omitempty,min=0"`
}

// ToRiskConfig converts the YAML-friendly RiskConfig into risk.Config's
// decimal-backed form.
func (r RiskConfig) ToRiskConfig() risk.Config {
	limits := make(map[string]risk.SymbolLimits, len(r.Limits))
	for symbol, l := range r.Limits {
		limits[symbol] = risk.SymbolLimits{
			MaxPositionSize: decimal.NewFromFloat(l.MaxPositionSize),
			MaxNotional:     decimal.NewFromFloat(l.MaxNotional),
		}
	}
	return risk.Config{
		Limits:            limits,
		DailyLossLimit:    decimal.NewFromFloat(r.DailyLossLimit),
		MaxOpenOrders:     r.MaxOpenOrders,
		KillSwitchEnabled: r.KillSwitchEnabled,
	}
}

var validate = validator.New()

// Load reads, expands ${ENV_VAR} references in, parses, and validates the
// YAML config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate runs struct-tag validation plus the cross-field business rules
// the tags alone can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var problems []string
	if c.Engine.Mode == "backtest" {
		if c.Backtest.EndMs <= c.Backtest.StartMs {
			problems = append(problems, "backtest.end_ms must be after backtest.start_ms in backtest mode")
		}
		if c.Backtest.DataSource.Type == "" {
			problems = append(problems, "backtest.data_source.type is required in backtest mode")
		}
	}
	if c.Engine.Mode == "live" && len(c.Venues) == 0 {
		problems = append(problems, "at least one venue must be configured in live mode")
	}
	if c.Optimizer.Algorithm == "grid" {
		for name, r := range c.Optimizer.ParamRanges {
			if r.Step <= 0 {
				problems = append(problems, fmt.Sprintf("optimizer.param_ranges.%s.step must be > 0 for grid search", name))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// expandEnvVars substitutes ${VAR} references (secrets kept out of
// committed YAML), leaving the literal text if VAR is unset.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return "${" + key + "}"
	})
}
