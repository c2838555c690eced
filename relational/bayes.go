package relational

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gomlx/netlearn/adjacency"
)

// bayesSmoothing is the Laplace pseudo-count applied when estimating the
// class-conditional neighbor-label probabilities.
const bayesSmoothing = 1.0

// bayesianLearner combines neighbor estimates with a naive-Bayes update over
// the class priors:
//
//	score(c) ∝ prior(c) * Π_j P(neighborLabel_j | c)^w_j
//
// where the per-class neighbor-label probabilities are estimated from the
// labeled entities at fit time. Scores are computed in the log domain and
// exp-normalized, so every produced row is a probability distribution.
type bayesianLearner struct {
	numClasses int
	normalize  bool
	priors     []float64

	// conditionals[c][l] = P(a neighbor has label l | the entity has class c),
	// Laplace-smoothed. One row per class.
	conditionals *mat.Dense
}

var _ Learner = (*bayesianLearner)(nil)

// fitBayesian estimates the class-conditional neighbor-label probabilities
// from the labeled restriction of the adjacency.
func fitBayesian(adj adjacency.Adjacency, fixedTargets []int, numClasses int, priors []float64, normalize bool) *bayesianLearner {
	conditionals := mat.NewDense(numClasses, numClasses, nil)
	for entity, target := range fixedTargets {
		checkTarget(target, numClasses)
		row := conditionals.RawRowView(target)
		adj.EachNeighbor(entity, func(neighbor int, weight float64) {
			row[fixedTargets[neighbor]] += weight
		})
	}
	for class := 0; class < numClasses; class++ {
		row := conditionals.RawRowView(class)
		floats.AddConst(bayesSmoothing, row)
		normalizeRowL1(row)
	}
	return &bayesianLearner{
		numClasses:   numClasses,
		normalize:    normalize,
		priors:       priors,
		conditionals: conditionals,
	}
}

// NumClasses implements Learner.
func (l *bayesianLearner) NumClasses() int { return l.numClasses }

// Apply implements Learner. Entities without neighbors get the priors as
// their feature row.
func (l *bayesianLearner) Apply(dst *mat.Dense, adj adjacency.Adjacency, estimates *mat.Dense, labels []int, entities []int) {
	checkApplyShapes(dst, adj, estimates, l.numClasses, entities)
	for i, entity := range entities {
		row := dst.RawRowView(i)
		hasNeighbor := false
		for class := 0; class < l.numClasses; class++ {
			row[class] = math.Log(math.Max(l.priors[class], minProbability))
		}
		adj.EachNeighbor(entity, func(neighbor int, weight float64) {
			hasNeighbor = true
			for class := 0; class < l.numClasses; class++ {
				likelihood := l.neighborLikelihood(class, estimates, labels, neighbor)
				row[class] += weight * math.Log(math.Max(likelihood, minProbability))
			}
		})
		if !hasNeighbor {
			copy(row, l.priors)
			continue
		}
		expNormalize(row)
		if l.normalize {
			normalizeRowL1(row)
		}
	}
}

// neighborLikelihood returns P(neighbor | class): the conditional of the
// neighbor's hard label when labels are available, otherwise the expectation
// of the conditionals under the neighbor's soft estimate.
func (l *bayesianLearner) neighborLikelihood(class int, estimates *mat.Dense, labels []int, neighbor int) float64 {
	conditionals := l.conditionals.RawRowView(class)
	if labels != nil {
		return conditionals[labels[neighbor]]
	}
	return floats.Dot(estimates.RawRowView(neighbor), conditionals)
}

// minProbability floors likelihoods before taking logs.
const minProbability = 1e-12

// expNormalize replaces log scores with normalized probabilities.
func expNormalize(row []float64) {
	maxScore := floats.Max(row)
	var total float64
	for i, s := range row {
		row[i] = math.Exp(s - maxScore)
		total += row[i]
	}
	floats.Scale(1/total, row)
}
