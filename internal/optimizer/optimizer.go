// Package optimizer implements the Optimizer capability (C10, spec
// §4.10): parameter search over the BacktestHarness via grid, random,
// genetic-algorithm, and Bayesian strategies, all sharing one
// Optimizer::optimize(strategy_factory) -> Ranked surface. Each trial runs
// an isolated BacktestHarness (its own Engine instance), matching the
// concurrency model's "optimizer workers" note in §5; trials fan out over
// a bounded pond worker pool.
package optimizer

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond"

	"tradecore/internal/backtest"
)

// Params is one candidate parameter assignment, keyed by strategy param
// name (the same keys a STRATEGY LOAD PARAMS command would carry).
type Params map[string]float64

// Clone returns an independent copy, since GA/Bayesian candidates are
// mutated in place by crossover/mutation.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParamRange bounds one searched parameter. Step == 0 means continuous
// (Random/GA/Bayesian); Grid takes only Min and Max from a range whose
// Step is <= 0.
type ParamRange struct {
	Min, Max, Step float64
}

// Objective selects which BacktestResult field the search maximizes.
type Objective string

const (
	ObjectiveSharpe  Objective = "sharpe"
	ObjectiveReturn  Objective = "return"
	ObjectiveWinRate Objective = "win_rate"
	ObjectiveCustom  Objective = "custom"
)

// CustomObjective scores a BacktestResult when Objective == custom.
type CustomObjective func(backtest.Result) float64

// Trial is one evaluated parameter set.
type Trial struct {
	Params  Params
	Result  backtest.Result
	Fitness float64
}

// Ranked is the optimizer's output: every evaluated Trial, descending by
// Fitness.
type Ranked []Trial

// Best returns the top-ranked Trial, or the zero value if Ranked is empty.
func (r Ranked) Best() Trial {
	if len(r) == 0 {
		return Trial{}
	}
	return r[0]
}

// TrialRunner runs one backtest trial for params and returns its result.
// Callers build this by constructing a fresh strategy instance and
// BacktestHarness per call — the strategy_factory the spec describes.
type TrialRunner func(ctx context.Context, params Params) (backtest.Result, error)

// Progress is the shape spec §4.10 requires on every completed iteration.
type Progress struct {
	CurrentIteration int
	TotalIterations  int
	BestFitness      float64
	CurrentFitness   float64
	BestParams       Params
	CurrentParams    Params
}

// ProgressFunc receives one Progress update per completed trial. Must not
// block; the optimizer calls it synchronously from whichever worker
// finished the trial.
type ProgressFunc func(Progress)

// Optimizer is the shared search surface every algorithm implements.
type Optimizer interface {
	Optimize(ctx context.Context, run TrialRunner) (Ranked, error)
}

func fitnessOf(objective Objective, custom CustomObjective, r backtest.Result) float64 {
	switch objective {
	case ObjectiveReturn:
		f, _ := r.TotalReturn.Float64()
		return f
	case ObjectiveWinRate:
		f, _ := r.WinRate.Float64()
		return f
	case ObjectiveCustom:
		if custom != nil {
			return custom(r)
		}
		return 0
	default:
		return r.SharpeRatio
	}
}

// evalConfig bundles the objective/progress/parallelism knobs shared by
// every algorithm's trial loop.
type evalConfig struct {
	objective   Objective
	custom      CustomObjective
	parallelism int
	onProgress  ProgressFunc
}

// runBatch evaluates every candidate in sets concurrently (bounded by
// cfg.parallelism, via a pond worker pool) and returns the resulting
// Trials in the same order as sets. A trial whose runner errors is
// recorded with fitness -Inf so it sorts last rather than aborting the
// whole batch — one bad parameter combination (e.g. a strategy panic on an
// out-of-range value) shouldn't lose every other trial's results.
func runBatch(ctx context.Context, sets []Params, run TrialRunner, cfg evalConfig, best *Trial, total int, completed *int64) []Trial {
	if cfg.parallelism <= 0 {
		cfg.parallelism = 1
	}
	trials := make([]Trial, len(sets))
	pool := pond.New(cfg.parallelism, 0)

	var mu sync.Mutex
	for i, params := range sets {
		i, params := i, params
		pool.Submit(func() {
			result, err := run(ctx, params)
			fitness := negInf
			if err == nil {
				fitness = fitnessOf(cfg.objective, cfg.custom, result)
			}
			trials[i] = Trial{Params: params, Result: result, Fitness: fitness}

			mu.Lock()
			if fitness > best.Fitness || best.Params == nil {
				*best = trials[i]
			}
			n := atomic.AddInt64(completed, 1)
			if cfg.onProgress != nil {
				cfg.onProgress(Progress{
					CurrentIteration: int(n),
					TotalIterations:  total,
					BestFitness:      best.Fitness,
					CurrentFitness:   fitness,
					BestParams:       best.Params,
					CurrentParams:    params,
				})
			}
			mu.Unlock()
		})
	}
	pool.StopAndWait()
	return trials
}

const negInf = -1e308

func rankedOf(trials []Trial) Ranked {
	out := make(Ranked, len(trials))
	copy(out, trials)
	sort.Slice(out, func(i, j int) bool { return out[i].Fitness > out[j].Fitness })
	return out
}
