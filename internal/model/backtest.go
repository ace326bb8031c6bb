package model

import (
	"github.com/shopspring/decimal"
)

// BacktestConfig parametrizes one BacktestHarness run.
type BacktestConfig struct {
	StrategyName    string
	Symbol          Symbol
	StartTsNs       int64
	EndTsNs         int64
	InitialBalance  decimal.Decimal
	RiskPerTrade    float64 // in [0, 1]
	MaxPositionSize decimal.Decimal
	Params          map[string]float64
	DataSource      string
	DataType        string
	TimeFrame       string
	SampleInterval  int64 // ns between forced equity-curve samples, 0 disables
}

// TradeRecord is one closed round-trip trade recorded during a backtest.
type TradeRecord struct {
	Symbol     Symbol
	EntryPx    decimal.Decimal
	ExitPx     decimal.Decimal
	Qty        decimal.Decimal
	Side       Side
	PnL        decimal.Decimal
	Fee        decimal.Decimal
	EntryTsNs  int64
	ExitTsNs   int64
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	TsNs   int64
	Equity decimal.Decimal
}

// DrawdownPoint is one sample of the drawdown curve.
type DrawdownPoint struct {
	TsNs         int64
	DrawdownFrac decimal.Decimal
}

// BacktestResult is the complete output of one BacktestHarness run.
type BacktestResult struct {
	TotalReturn   decimal.Decimal
	MaxDrawdown   decimal.Decimal
	SharpeRatio   decimal.Decimal
	WinRate       decimal.Decimal
	ProfitFactor  decimal.Decimal
	TradeCount    int
	FinalEquity   decimal.Decimal
	InitialEquity decimal.Decimal
	Trades        []TradeRecord
	EquityCurve   []EquityPoint
	Drawdowns     []DrawdownPoint
}
