package optimizer

import (
	"context"

	"golang.org/x/exp/rand"
)

// Random draws MaxIterations uniform samples from Ranges. Seed makes two
// runs with the same Ranges reproducible, distinct from math/rand's global
// state (x/exp/rand.Source is independently seeded per instance).
type Random struct {
	Ranges        map[string]ParamRange
	MaxIterations int
	Seed          uint64
	Objective     Objective
	Custom        CustomObjective
	Parallelism   int
	OnProgress    ProgressFunc
}

func (r Random) Optimize(ctx context.Context, run TrialRunner) (Ranked, error) {
	rng := rand.New(rand.NewSource(r.Seed))
	names := sortedKeys(r.Ranges)

	n := r.MaxIterations
	if n <= 0 {
		n = 1
	}
	sets := make([]Params, n)
	for i := 0; i < n; i++ {
		p := make(Params, len(names))
		for _, name := range names {
			rg := r.Ranges[name]
			p[name] = rg.Min + rng.Float64()*(rg.Max-rg.Min)
		}
		sets[i] = p
	}

	best := Trial{Fitness: negInf}
	var completed int64
	cfg := evalConfig{objective: r.Objective, custom: r.Custom, parallelism: r.Parallelism, onProgress: r.OnProgress}
	trials := runBatch(ctx, sets, run, cfg, &best, n, &completed)
	return rankedOf(trials), nil
}
