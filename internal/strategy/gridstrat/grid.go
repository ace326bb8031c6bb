// Package gridstrat implements a slot-based grid strategy: it quotes limit
// orders at fixed price intervals around an anchor price and keeps the
// grid populated as levels fill or price moves.
package gridstrat

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"tradecore/internal/model"
	"tradecore/internal/strategy"
)

// Config are the per-instance parameters, validated by Factory's Ranges
// before OnInit runs.
type Config struct {
	Symbol         model.Symbol
	PriceInterval  decimal.Decimal
	OrderQty       decimal.Decimal
	BuyWindowSize  int
	SellWindowSize int
	PriceDecimals  int32
	Neutral        bool // true: quote both sides; false: buy-only accumulation
}

// Strategy is the grid implementation. One instance manages one symbol.
type Strategy struct {
	mu sync.Mutex

	cfg         Config
	anchorPrice decimal.Decimal
	lastPrice   decimal.Decimal
	seq         int

	// openByLevel maps a rounded price level string to the client_order_id
	// resting there, so the strategy never double-quotes a level.
	openByLevel map[string]string
	levelSide   map[string]model.Side
}

// New returns a strategy.Factory that builds Strategy instances from the
// given config template; paramRanges follow from Config fields expressed as
// float64 ranges for strategy.Factory.ValidateParams.
func New(cfgTemplate Config) strategy.Factory {
	return strategy.Factory{
		TypeName: "grid",
		Ranges: map[string]strategy.ParamRange{
			"buy_window_size":  {Min: 1, Max: 50},
			"sell_window_size": {Min: 0, Max: 50},
		},
		New: func() strategy.Strategy {
			return &Strategy{cfg: cfgTemplate, openByLevel: make(map[string]string), levelSide: make(map[string]model.Side)}
		},
	}
}

// OnInit applies window-size overrides from params, if present.
func (s *Strategy) OnInit(params map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := params["buy_window_size"]; ok {
		s.cfg.BuyWindowSize = int(v)
	}
	if v, ok := params["sell_window_size"]; ok {
		s.cfg.SellWindowSize = int(v)
	}
	return nil
}

func (s *Strategy) OnMarketEvent(evt model.MarketEvent) []model.Action {
	if evt.Symbol != s.cfg.Symbol {
		return nil
	}

	var price decimal.Decimal
	switch evt.Type {
	case model.EventTrade:
		price = evt.Price
	case model.EventBookTop:
		price = evt.BidPx.Add(evt.AskPx).Div(decimal.NewFromInt(2))
	case model.EventPriceTick:
		price = evt.Price
	default:
		return nil
	}
	if price.IsZero() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPrice = price
	if s.anchorPrice.IsZero() {
		s.anchorPrice = price
	}

	gridPrice := nearestGridPrice(price, s.anchorPrice, s.cfg.PriceInterval)

	var actions []model.Action
	actions = append(actions, s.reconcileSide(gridPrice, model.Buy, s.cfg.BuyWindowSize)...)
	if s.cfg.Neutral {
		actions = append(actions, s.reconcileSide(gridPrice, model.Sell, s.cfg.SellWindowSize)...)
	}
	return actions
}

func (s *Strategy) reconcileSide(gridPrice decimal.Decimal, side model.Side, window int) []model.Action {
	wanted := make(map[string]decimal.Decimal, window)
	step := s.cfg.PriceInterval
	if side == model.Sell {
		// sell levels above the grid price
	} else {
		step = step.Neg()
	}
	for i := 1; i <= window; i++ {
		lvl := gridPrice.Add(step.Mul(decimal.NewFromInt(int64(i))))
		key := lvl.Round(s.cfg.PriceDecimals).String()
		wanted[key] = lvl.Round(s.cfg.PriceDecimals)
	}

	var actions []model.Action
	for key, px := range wanted {
		if _, exists := s.openByLevel[key]; exists {
			continue
		}
		s.seq++
		cid := fmt.Sprintf("grid-%s-%s-%d", s.cfg.Symbol, side, s.seq)
		s.openByLevel[key] = cid
		s.levelSide[key] = side
		actions = append(actions, model.SubmitAction(model.OrderRequest{
			ClientOrderID: cid,
			Symbol:        s.cfg.Symbol,
			Side:          side,
			Type:          model.Limit,
			TIF:           model.GTC,
			Qty:           s.cfg.OrderQty,
			Price:         px,
		}))
	}

	// cancel resting orders for this side whose level fell outside the window
	for key, cid := range s.openByLevel {
		if s.levelSide[key] != side {
			continue
		}
		if _, stillWanted := wanted[key]; !stillWanted {
			actions = append(actions, model.CancelAction(cid))
			delete(s.openByLevel, key)
			delete(s.levelSide, key)
		}
	}
	return actions
}

// OnOrderUpdate drops filled/cancelled/rejected levels from the open book
// so a later reconcile re-quotes them.
func (s *Strategy) OnOrderUpdate(state model.OrderState) {
	if !state.Status.IsTerminal() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cid := range s.openByLevel {
		if cid == state.ClientOrderID {
			delete(s.openByLevel, key)
			delete(s.levelSide, key)
			return
		}
	}
}

func (s *Strategy) OnFill(model.Fill)        {}
func (s *Strategy) OnTimer(string, int64)    {}
func (s *Strategy) OnStop()                  {}

// nearestGridPrice snaps price to the closest anchor + n*interval point.
func nearestGridPrice(price, anchor, interval decimal.Decimal) decimal.Decimal {
	if interval.IsZero() {
		return anchor
	}
	offset := price.Sub(anchor).Div(interval)
	n := offset.Round(0)
	return anchor.Add(interval.Mul(n))
}
