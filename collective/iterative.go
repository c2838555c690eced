package collective

import (
	"math"
)

// IterativeClassification returns a configuration for the iterative
// classification strategy: each iteration fully replaces the updatable
// estimates with the classifier's predictions, and the hard label
// re-extracted from every fresh estimate is what the class-conditioned
// relational learners aggregate on the next iteration.
//
// Configure with the chained setters, then call Done.
func IterativeClassification() *IterativeConfig {
	return &IterativeConfig{
		maxIterations: 100,
		tol:           1e-6,
	}
}

// IterativeConfig configures an iterative classification inferer. Create it
// with IterativeClassification.
type IterativeConfig struct {
	maxIterations int
	tol           float64
}

// MaxIter sets the iteration budget, clamped to at least 1. Defaults to 100.
func (c *IterativeConfig) MaxIter(maxIterations int) *IterativeConfig {
	c.maxIterations = clampIterations(maxIterations)
	return c
}

// Tol sets the convergence tolerance on the mean absolute change, clamped to
// at least 0. Defaults to 1e-6.
func (c *IterativeConfig) Tol(tol float64) *IterativeConfig {
	c.tol = clampTolerance(tol)
	return c
}

// Done finishes the configuration and returns the Inferer.
func (c *IterativeConfig) Done() Inferer {
	return &iterativeClassification{config: *c}
}

type iterativeClassification struct {
	config IterativeConfig
}

var _ Inferer = (*iterativeClassification)(nil)

// Infer implements Inferer.
func (ic *iterativeClassification) Infer(problem *Problem) (result Result) {
	s := newPass(problem)
	if len(s.updatable) == 0 {
		return Result{Converged: true}
	}
	estimates := problem.Estimates
	extract := problem.extractor()
	labels := s.hardLabels()
	for iteration := 0; iteration < ic.config.maxIterations; iteration++ {
		predicted := s.predict(estimates, labels)
		var delta float64
		for i, entity := range s.updatable {
			row := estimates.RawRowView(entity)
			fresh := predicted.RawRowView(i)
			for class, old := range row {
				delta += math.Abs(fresh[class] - old)
				row[class] = fresh[class]
			}
			labels[entity] = extract(row)
		}
		result.Iterations = iteration + 1
		result.MeanDelta = delta / float64(len(s.updatable)*s.numClasses)
		if converged(result.Iterations, result.MeanDelta, ic.config.tol) {
			result.Converged = true
			return
		}
	}
	return
}
