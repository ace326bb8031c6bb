package optimizer

import (
	"context"

	"golang.org/x/exp/rand"
)

// GA is a generational genetic-algorithm search (spec §4.10): tournament
// selection, uniform crossover, gaussian mutation, elitism, stopping when
// the best fitness improves by less than ConvergenceDelta over
// ConvergenceGenerations consecutive generations (or MaxGenerations is
// reached, whichever comes first).
type GA struct {
	Ranges                 map[string]ParamRange
	Population             int
	TournamentK             int
	CrossoverRate           float64
	MutationRate            float64
	Elitism                 int
	ConvergenceDelta        float64
	ConvergenceGenerations  int
	MaxGenerations          int
	Seed                    uint64

	Objective   Objective
	Custom      CustomObjective
	Parallelism int
	OnProgress  ProgressFunc
}

func (g GA) Optimize(ctx context.Context, run TrialRunner) (Ranked, error) {
	pop := g.Population
	if pop < 2 {
		pop = 20
	}
	k := g.TournamentK
	if k < 1 {
		k = 3
	}
	maxGen := g.MaxGenerations
	if maxGen <= 0 {
		maxGen = 50
	}
	convergenceGenerations := g.ConvergenceGenerations
	if convergenceGenerations <= 0 {
		convergenceGenerations = 5
	}

	rng := rand.New(rand.NewSource(g.Seed))
	names := sortedKeys(g.Ranges)

	generation := randomPopulation(rng, g.Ranges, names, pop)
	cfg := evalConfig{objective: g.Objective, custom: g.Custom, parallelism: g.Parallelism, onProgress: g.OnProgress}

	var all []Trial
	best := Trial{Fitness: negInf}
	var completed int64
	total := pop * maxGen

	prevBest := negInf
	stagnant := 0

	for gen := 0; gen < maxGen; gen++ {
		evaluated := runBatch(ctx, generation, run, cfg, &best, total, &completed)
		all = append(all, evaluated...)

		if best.Fitness-prevBest < g.ConvergenceDelta {
			stagnant++
		} else {
			stagnant = 0
		}
		prevBest = best.Fitness
		if stagnant >= convergenceGenerations {
			break
		}

		generation = nextGeneration(rng, evaluated, g.Ranges, names, pop, k, g.CrossoverRate, g.MutationRate, g.Elitism)
	}

	return rankedOf(all), nil
}

func randomPopulation(rng *rand.Rand, ranges map[string]ParamRange, names []string, n int) []Params {
	out := make([]Params, n)
	for i := 0; i < n; i++ {
		p := make(Params, len(names))
		for _, name := range names {
			rg := ranges[name]
			p[name] = rg.Min + rng.Float64()*(rg.Max-rg.Min)
		}
		out[i] = p
	}
	return out
}

func tournamentSelect(rng *rand.Rand, evaluated []Trial, k int) Params {
	if k > len(evaluated) {
		k = len(evaluated)
	}
	bestIdx := rng.Intn(len(evaluated))
	for i := 1; i < k; i++ {
		cand := rng.Intn(len(evaluated))
		if evaluated[cand].Fitness > evaluated[bestIdx].Fitness {
			bestIdx = cand
		}
	}
	return evaluated[bestIdx].Params
}

func nextGeneration(rng *rand.Rand, evaluated []Trial, ranges map[string]ParamRange, names []string, pop, k int, cxRate, muRate float64, elitism int) []Params {
	ranked := rankedOf(evaluated)
	next := make([]Params, 0, pop)

	for i := 0; i < elitism && i < len(ranked); i++ {
		next = append(next, ranked[i].Params.Clone())
	}

	for len(next) < pop {
		parentA := tournamentSelect(rng, evaluated, k)
		parentB := tournamentSelect(rng, evaluated, k)
		child := uniformCrossover(rng, parentA, parentB, names, cxRate)
		gaussianMutate(rng, child, ranges, names, muRate)
		next = append(next, child)
	}
	return next
}

func uniformCrossover(rng *rand.Rand, a, b Params, names []string, cxRate float64) Params {
	child := make(Params, len(names))
	for _, name := range names {
		if rng.Float64() < cxRate {
			child[name] = b[name]
		} else {
			child[name] = a[name]
		}
	}
	return child
}

func gaussianMutate(rng *rand.Rand, p Params, ranges map[string]ParamRange, names []string, muRate float64) {
	for _, name := range names {
		if rng.Float64() >= muRate {
			continue
		}
		rg := ranges[name]
		sigma := (rg.Max - rg.Min) * 0.1
		if sigma <= 0 {
			continue
		}
		v := p[name] + rng.NormFloat64()*sigma
		if v < rg.Min {
			v = rg.Min
		}
		if v > rg.Max {
			v = rg.Max
		}
		p[name] = v
	}
}
