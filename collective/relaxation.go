package collective

import (
	"math"
)

const (
	// RelaxationDefaultKappa is the initial relaxation constant κ₀.
	RelaxationDefaultKappa = 1.0

	// RelaxationDefaultAlpha is the per-iteration geometric decay of κ.
	RelaxationDefaultAlpha = 0.99
)

// RelaxationLabeling returns a configuration for the relaxation labeling
// strategy: each iteration keeps a convex combination of the previous and the
// freshly predicted estimate, weighted by κ_t = κ₀·αᵗ. The damping shrinks
// every iteration, which settles oscillations on cyclic graphs.
//
// Configure with the chained setters, then call Done.
func RelaxationLabeling() *RelaxationConfig {
	return &RelaxationConfig{
		kappa:         RelaxationDefaultKappa,
		alpha:         RelaxationDefaultAlpha,
		maxIterations: 100,
		tol:           1e-6,
	}
}

// RelaxationConfig configures a relaxation labeling inferer. Create it with
// RelaxationLabeling.
type RelaxationConfig struct {
	kappa, alpha  float64
	maxIterations int
	tol           float64
}

// Kappa sets the initial relaxation constant κ₀, clamped to (0, 1]. With
// κ₀ = 1 and α = 1 there is no damping and the update degenerates to
// iterative classification's. Defaults to 1.
func (c *RelaxationConfig) Kappa(kappa float64) *RelaxationConfig {
	c.kappa = clampUnit(kappa, RelaxationDefaultKappa)
	return c
}

// Alpha sets the geometric decay factor of κ, clamped to (0, 1].
// Defaults to 0.99.
func (c *RelaxationConfig) Alpha(alpha float64) *RelaxationConfig {
	c.alpha = clampUnit(alpha, RelaxationDefaultAlpha)
	return c
}

// MaxIter sets the iteration budget, clamped to at least 1. Defaults to 100.
func (c *RelaxationConfig) MaxIter(maxIterations int) *RelaxationConfig {
	c.maxIterations = clampIterations(maxIterations)
	return c
}

// Tol sets the convergence tolerance on the mean absolute change, clamped to
// at least 0. Defaults to 1e-6.
func (c *RelaxationConfig) Tol(tol float64) *RelaxationConfig {
	c.tol = clampTolerance(tol)
	return c
}

// Done finishes the configuration and returns the Inferer.
func (c *RelaxationConfig) Done() Inferer {
	return &relaxationLabeling{config: *c}
}

type relaxationLabeling struct {
	config RelaxationConfig
}

var _ Inferer = (*relaxationLabeling)(nil)

// Infer implements Inferer.
func (rl *relaxationLabeling) Infer(problem *Problem) (result Result) {
	s := newPass(problem)
	if len(s.updatable) == 0 {
		return Result{Converged: true}
	}
	estimates := problem.Estimates
	kappa := rl.config.kappa
	for iteration := 0; iteration < rl.config.maxIterations; iteration++ {
		predicted := s.predict(estimates, nil)
		var delta float64
		for i, entity := range s.updatable {
			row := estimates.RawRowView(entity)
			fresh := predicted.RawRowView(i)
			for class, old := range row {
				updated := kappa*fresh[class] + (1-kappa)*old
				delta += math.Abs(updated - old)
				row[class] = updated
			}
		}
		kappa *= rl.config.alpha
		result.Iterations = iteration + 1
		result.MeanDelta = delta / float64(len(s.updatable)*s.numClasses)
		if converged(result.Iterations, result.MeanDelta, rl.config.tol) {
			result.Converged = true
			return
		}
	}
	return
}
