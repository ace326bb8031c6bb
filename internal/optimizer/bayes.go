package optimizer

import (
	"context"
	"math"

	"golang.org/x/exp/rand"
)

// Bayesian is a sequential model-based search (spec §4.10): InitialSamples
// random points seed a Gaussian-process surrogate over the objective;
// every subsequent iteration picks the candidate (from a random pool)
// maximizing the acquisition function, evaluates it, and refits the
// surrogate, until MaxIterations or the chosen acquisition value drops
// below ConvergenceThreshold.
type Bayesian struct {
	Ranges                 map[string]ParamRange
	InitialSamples         int
	MaxIterations          int
	Acquisition            string // "EI", "UCB", or "PI"
	Kappa                  float64
	Xi                     float64
	ConvergenceThreshold   float64
	CandidatePoolSize      int
	Seed                   uint64

	Objective   Objective
	Custom      CustomObjective
	Parallelism int
	OnProgress  ProgressFunc
}

func (b Bayesian) Optimize(ctx context.Context, run TrialRunner) (Ranked, error) {
	initial := b.InitialSamples
	if initial <= 0 {
		initial = 5
	}
	maxIter := b.MaxIterations
	if maxIter <= 0 {
		maxIter = 30
	}
	poolSize := b.CandidatePoolSize
	if poolSize <= 0 {
		poolSize = 200
	}

	rng := rand.New(rand.NewSource(b.Seed))
	names := sortedKeys(b.Ranges)

	var all []Trial
	best := Trial{Fitness: negInf}
	var completed int64
	cfg := evalConfig{objective: b.Objective, custom: b.Custom, parallelism: b.Parallelism, onProgress: b.OnProgress}

	seeds := randomPopulation(rng, b.Ranges, names, initial)
	all = append(all, runBatch(ctx, seeds, run, cfg, &best, maxIter, &completed)...)

	gp := newGP(len(names))
	for _, t := range all {
		gp.observe(vectorOf(t.Params, names), t.Fitness)
	}
	gp.fit()

	for iter := len(all); iter < maxIter; iter++ {
		candidates := randomPopulation(rng, b.Ranges, names, poolSize)

		bestAcq := math.Inf(-1)
		var bestCandidate Params
		for _, c := range candidates {
			mean, stdev := gp.predict(vectorOf(c, names))
			acq := acquisitionValue(b.Acquisition, mean, stdev, best.Fitness, b.Kappa, b.Xi)
			if acq > bestAcq {
				bestAcq = acq
				bestCandidate = c
			}
		}
		if bestCandidate == nil || bestAcq < b.ConvergenceThreshold {
			break
		}

		evaluated := runBatch(ctx, []Params{bestCandidate}, run, cfg, &best, maxIter, &completed)
		all = append(all, evaluated...)
		gp.observe(vectorOf(bestCandidate, names), evaluated[0].Fitness)
		gp.fit()
	}

	return rankedOf(all), nil
}

func acquisitionValue(kind string, mean, stdev, incumbent, kappa, xi float64) float64 {
	switch kind {
	case "UCB":
		return mean + kappa*stdev
	case "PI":
		if stdev <= 0 {
			if mean > incumbent {
				return 1
			}
			return 0
		}
		z := (mean - incumbent - xi) / stdev
		return normCDF(z)
	default: // EI
		if stdev <= 0 {
			return math.Max(0, mean-incumbent-xi)
		}
		z := (mean - incumbent - xi) / stdev
		return (mean-incumbent-xi)*normCDF(z) + stdev*normPDF(z)
	}
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func vectorOf(p Params, names []string) []float64 {
	v := make([]float64, len(names))
	for i, name := range names {
		v[i] = p[name]
	}
	return v
}

// gp is a minimal Gaussian-process regressor over a squared-exponential
// kernel, refit from scratch (O(n^3) Cholesky solve) on every observation.
// The number of observations is bounded by MaxIterations, so this is cheap
// relative to running an actual backtest trial.
type gp struct {
	dim       int
	lengthSc  float64
	noiseVar  float64
	signalVar float64

	xs []([]float64)
	ys []float64

	alpha []float64 // K^-1 y, recomputed in fit()
	chol  [][]float64
}

func newGP(dim int) *gp {
	return &gp{dim: dim, lengthSc: 1.0, noiseVar: 1e-6, signalVar: 1.0}
}

func (g *gp) observe(x []float64, y float64) {
	g.xs = append(g.xs, x)
	g.ys = append(g.ys, y)
}

func (g *gp) kernel(a, b []float64) float64 {
	sumSq := 0.0
	for i := range a {
		d := a[i] - b[i]
		sumSq += d * d
	}
	return g.signalVar * math.Exp(-0.5*sumSq/(g.lengthSc*g.lengthSc))
}

// fit computes a Cholesky factorization of K + noiseVar*I and solves for
// alpha = K^-1 y via forward/back substitution.
func (g *gp) fit() {
	n := len(g.xs)
	if n == 0 {
		return
	}
	k := make([][]float64, n)
	for i := 0; i < n; i++ {
		k[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			k[i][j] = g.kernel(g.xs[i], g.xs[j])
			if i == j {
				k[i][j] += g.noiseVar
			}
		}
	}
	g.chol = cholesky(k)
	z := forwardSubst(g.chol, g.ys)
	g.alpha = backSubstTranspose(g.chol, z)
}

// predict returns the posterior mean and standard deviation at x.
func (g *gp) predict(x []float64) (mean, stdev float64) {
	n := len(g.xs)
	if n == 0 {
		return 0, g.signalVar
	}
	kStar := make([]float64, n)
	for i := range g.xs {
		kStar[i] = g.kernel(g.xs[i], x)
	}
	for i, a := range g.alpha {
		mean += kStar[i] * a
	}

	v := forwardSubst(g.chol, kStar)
	variance := g.kernel(x, x)
	for _, vi := range v {
		variance -= vi * vi
	}
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

func cholesky(a [][]float64) [][]float64 {
	n := len(a)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum < 1e-12 {
					sum = 1e-12
				}
				l[i][j] = math.Sqrt(sum)
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}
	return l
}

// forwardSubst solves L z = b for z.
func forwardSubst(l [][]float64, b []float64) []float64 {
	n := len(b)
	z := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for j := 0; j < i; j++ {
			sum -= l[i][j] * z[j]
		}
		z[i] = sum / l[i][i]
	}
	return z
}

// backSubstTranspose solves L^T alpha = z for alpha.
func backSubstTranspose(l [][]float64, z []float64) []float64 {
	n := len(z)
	alpha := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := z[i]
		for j := i + 1; j < n; j++ {
			sum -= l[j][i] * alpha[j]
		}
		alpha[i] = sum / l[i][i]
	}
	return alpha
}
