package collective

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

const (
	// GibbsDefaultBurnInRatio is the fraction of the iteration budget
	// discarded as burn-in.
	GibbsDefaultBurnInRatio = 0.25
)

// GibbsSampling returns a configuration for the Gibbs sampling strategy: an
// emulated Markov-chain sweep over entity labels. Each iteration samples a
// label per updatable entity from the classifier's predicted distribution;
// the first ⌈maxiter·burnInRatio⌉ iterations are discarded as burn-in.
//
// The reported estimate of each updatable entity is the running empirical
// mean of its post-burn-in label samples (not the last sample): with enough
// iterations it approximates the marginal label distribution of the chain.
// If the burn-in covers the whole budget, no samples are accepted and the
// estimates are left untouched.
//
// Configure with the chained setters, then call Done.
func GibbsSampling() *GibbsConfig {
	return &GibbsConfig{
		maxIterations: 100,
		tol:           1e-6,
		burnInRatio:   GibbsDefaultBurnInRatio,
		seed:          rand.Uint64(),
	}
}

// GibbsConfig configures a Gibbs sampling inferer. Create it with
// GibbsSampling.
type GibbsConfig struct {
	maxIterations int
	tol           float64
	burnInRatio   float64
	seed          uint64
}

// MaxIter sets the iteration budget (burn-in included), clamped to at least 1.
// Defaults to 100.
func (c *GibbsConfig) MaxIter(maxIterations int) *GibbsConfig {
	c.maxIterations = clampIterations(maxIterations)
	return c
}

// Tol sets the convergence tolerance on the mean absolute change of the
// running estimate, clamped to at least 0. Only tested after burn-in.
// Defaults to 1e-6.
func (c *GibbsConfig) Tol(tol float64) *GibbsConfig {
	c.tol = clampTolerance(tol)
	return c
}

// BurnInRatio sets the fraction of the budget discarded as burn-in, clamped
// to [0, 1]. Defaults to 0.25.
func (c *GibbsConfig) BurnInRatio(ratio float64) *GibbsConfig {
	c.burnInRatio = math.Min(math.Max(ratio, 0), 1)
	return c
}

// Seed fixes the sampling seed, for reproducible chains.
func (c *GibbsConfig) Seed(seed uint64) *GibbsConfig {
	c.seed = seed
	return c
}

// Done finishes the configuration and returns the Inferer.
func (c *GibbsConfig) Done() Inferer {
	return &gibbsSampling{config: *c}
}

type gibbsSampling struct {
	config GibbsConfig
}

var _ Inferer = (*gibbsSampling)(nil)

// Infer implements Inferer.
func (g *gibbsSampling) Infer(problem *Problem) (result Result) {
	s := newPass(problem)
	if len(s.updatable) == 0 {
		return Result{Converged: true}
	}
	burnIn := int(math.Ceil(float64(g.config.maxIterations) * g.config.burnInRatio))

	// The chain state: fixed rows mirror the ground-truth estimates, updatable
	// rows hold the one-hot of the entity's current sampled label.
	estimates := problem.Estimates
	labels := s.hardLabels()
	chain := mat.DenseCopyOf(estimates)
	for _, entity := range s.updatable {
		setOneHot(chain.RawRowView(entity), labels[entity])
	}

	counts := mat.NewDense(len(s.updatable), s.numClasses, nil)
	weights := make([]float64, s.numClasses)
	src := rand.NewPCG(g.config.seed, 0)
	rng := rand.New(src)
	sampler := sampleuv.NewWeighted(weights, src)
	samples := 0

	for iteration := 0; iteration < g.config.maxIterations; iteration++ {
		predicted := s.predict(chain, labels)
		accepted := iteration >= burnIn
		var delta float64
		for i, entity := range s.updatable {
			copy(weights, predicted.RawRowView(i))
			label := sampleLabel(sampler, weights, rng)
			labels[entity] = label
			setOneHot(chain.RawRowView(entity), label)
			if !accepted {
				continue
			}
			counts.Set(i, label, counts.At(i, label)+1)
			row := estimates.RawRowView(entity)
			for class, old := range row {
				mean := counts.At(i, class) / float64(samples+1)
				delta += math.Abs(mean - old)
				row[class] = mean
			}
		}
		result.Iterations = iteration + 1
		if !accepted {
			// Burn-in iterations are never convergence-tested.
			continue
		}
		samples++
		result.MeanDelta = delta / float64(len(s.updatable)*s.numClasses)
		if converged(result.Iterations, result.MeanDelta, g.config.tol) {
			result.Converged = true
			return
		}
	}
	return
}

// sampleLabel draws a class index proportionally to weights, falling back to
// a uniform draw when all weights are zero.
func sampleLabel(sampler sampleuv.Weighted, weights []float64, rng *rand.Rand) int {
	if floats.Sum(weights) <= 0 {
		return rng.IntN(len(weights))
	}
	sampler.ReweightAll(weights)
	label, ok := sampler.Take()
	if !ok {
		return floats.MaxIdx(weights)
	}
	return label
}

// setOneHot writes the one-hot encoding of label into row.
func setOneHot(row []float64, label int) {
	for i := range row {
		row[i] = 0
	}
	row[label] = 1
}
