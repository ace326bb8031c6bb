// Package momentum implements a dual moving-average crossover strategy:
// the deterministic backtest scenario from the spec exercises this with
// fast=10, slow=20 over kline data.
package momentum

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"tradecore/internal/model"
	"tradecore/internal/strategy"
)

// Config parametrizes one instance.
type Config struct {
	Symbol model.Symbol
	Fast   int
	Slow   int
	Qty    decimal.Decimal
}

// Strategy holds a rolling window of close prices and the position side it
// currently believes it holds, to avoid re-submitting on every bar.
type Strategy struct {
	mu sync.Mutex

	cfg    Config
	closes []decimal.Decimal
	seq    int
	inLong bool
}

// New returns a strategy.Factory over the given config template; fast/slow
// may be overridden per-instance via params.
func New(cfgTemplate Config) strategy.Factory {
	return strategy.Factory{
		TypeName: "momentum",
		Ranges: map[string]strategy.ParamRange{
			"fast": {Min: 2, Max: 200},
			"slow": {Min: 3, Max: 400},
		},
		New: func() strategy.Strategy {
			return &Strategy{cfg: cfgTemplate}
		},
	}
}

func (s *Strategy) OnInit(params map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := params["fast"]; ok {
		s.cfg.Fast = int(v)
	}
	if v, ok := params["slow"]; ok {
		s.cfg.Slow = int(v)
	}
	return nil
}

func (s *Strategy) OnMarketEvent(evt model.MarketEvent) []model.Action {
	if evt.Symbol != s.cfg.Symbol || evt.Type != model.EventKline {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes = append(s.closes, evt.Close)
	maxLen := s.cfg.Slow + 1
	if len(s.closes) > maxLen {
		s.closes = s.closes[len(s.closes)-maxLen:]
	}
	if len(s.closes) < s.cfg.Slow {
		return nil
	}

	fastAvg := sma(s.closes, s.cfg.Fast)
	slowAvg := sma(s.closes, s.cfg.Slow)

	var actions []model.Action
	if fastAvg.GreaterThan(slowAvg) && !s.inLong {
		s.seq++
		actions = append(actions, model.SubmitAction(model.OrderRequest{
			ClientOrderID: fmt.Sprintf("mom-%s-long-%d", s.cfg.Symbol, s.seq),
			Symbol:        s.cfg.Symbol,
			Side:          model.Buy,
			Type:          model.Market,
			TIF:           model.IOC,
			Qty:           s.cfg.Qty,
		}))
		s.inLong = true
	} else if fastAvg.LessThan(slowAvg) && s.inLong {
		s.seq++
		actions = append(actions, model.SubmitAction(model.OrderRequest{
			ClientOrderID: fmt.Sprintf("mom-%s-flat-%d", s.cfg.Symbol, s.seq),
			Symbol:        s.cfg.Symbol,
			Side:          model.Sell,
			Type:          model.Market,
			TIF:           model.IOC,
			Qty:           s.cfg.Qty,
		}))
		s.inLong = false
	}
	return actions
}

func (s *Strategy) OnOrderUpdate(model.OrderState) {}
func (s *Strategy) OnFill(model.Fill)              {}
func (s *Strategy) OnTimer(string, int64)          {}
func (s *Strategy) OnStop()                        {}

// sma computes the simple moving average of the last n entries of series.
// Deterministic: decimal division with a fixed rounding, no float reads.
func sma(series []decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 || n > len(series) {
		return decimal.Zero
	}
	window := series[len(series)-n:]
	sum := decimal.Zero
	for _, v := range window {
		sum = sum.Add(v)
	}
	return sum.DivRound(decimal.NewFromInt(int64(n)), 12)
}
