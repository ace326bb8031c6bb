package optimizer

import "context"

// Grid evaluates the cartesian product of every ParamRange, stepping by
// each range's Step, truncated to MaxIterations. A range whose Step is <= 0
// contributes only its Min and Max.
type Grid struct {
	Ranges        map[string]ParamRange
	MaxIterations int
	Objective     Objective
	Custom        CustomObjective
	Parallelism   int
	OnProgress    ProgressFunc
}

func (g Grid) Optimize(ctx context.Context, run TrialRunner) (Ranked, error) {
	sets := cartesianProduct(g.Ranges)
	if g.MaxIterations > 0 && len(sets) > g.MaxIterations {
		sets = sets[:g.MaxIterations]
	}

	best := Trial{Fitness: negInf}
	var completed int64
	cfg := evalConfig{objective: g.Objective, custom: g.Custom, parallelism: g.Parallelism, onProgress: g.OnProgress}
	trials := runBatch(ctx, sets, run, cfg, &best, len(sets), &completed)
	return rankedOf(trials), nil
}

// cartesianProduct enumerates every grid point across ranges, in a
// deterministic key order so repeated calls over the same Ranges produce
// the same sequence.
func cartesianProduct(ranges map[string]ParamRange) []Params {
	names := sortedKeys(ranges)
	if len(names) == 0 {
		return nil
	}

	axes := make([][]float64, len(names))
	for i, name := range names {
		axes[i] = axisValues(ranges[name])
	}

	var out []Params
	idx := make([]int, len(axes))
	for {
		p := make(Params, len(names))
		for i, name := range names {
			p[name] = axes[i][idx[i]]
		}
		out = append(out, p)

		pos := len(axes) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(axes[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return out
}

func axisValues(r ParamRange) []float64 {
	step := r.Step
	if step <= 0 {
		return []float64{r.Min, r.Max}
	}
	var vals []float64
	for v := r.Min; v <= r.Max+1e-9; v += step {
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		vals = []float64{r.Min}
	}
	return vals
}

func sortedKeys(ranges map[string]ParamRange) []string {
	names := make([]string, 0, len(ranges))
	for k := range ranges {
		names = append(names, k)
	}
	// simple insertion sort: ranges are small (a handful of strategy params)
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}
