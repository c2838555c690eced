package relational

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gomlx/netlearn/adjacency"
)

// classDistributionLearner scores an entity by how similar its neighbor-class
// distribution is to the reference distribution of each class, learned from
// the labeled entities at fit time, scaled by the class priors.
type classDistributionLearner struct {
	numClasses int
	normalize  bool
	priors     []float64

	// references holds one row per class: the mean neighbor-class
	// distribution of the labeled entities of that class, L1-normalized.
	references *mat.Dense
}

var _ Learner = (*classDistributionLearner)(nil)

// fitClassDistribution learns the per-class reference vectors from the labeled
// restriction of the adjacency.
func fitClassDistribution(adj adjacency.Adjacency, fixedEstimates *mat.Dense, fixedTargets []int, priors []float64, normalize bool) *classDistributionLearner {
	numFixed, numClasses := fixedEstimates.Dims()
	references := mat.NewDense(numClasses, numClasses, nil)
	mass := make([]float64, numClasses)
	for entity := 0; entity < numFixed; entity++ {
		target := fixedTargets[entity]
		checkTarget(target, numClasses)
		row := make([]float64, numClasses)
		total := neighborClassMass(row, adj, fixedEstimates, fixedTargets, entity, true)
		if total == 0 {
			continue
		}
		floats.AddScaled(references.RawRowView(target), 1/total, row)
		mass[target]++
	}
	for class := 0; class < numClasses; class++ {
		row := references.RawRowView(class)
		if mass[class] > 0 {
			floats.Scale(1/mass[class], row)
		}
		normalizeRowL1(row)
	}
	return &classDistributionLearner{
		numClasses: numClasses,
		normalize:  normalize,
		priors:     priors,
		references: references,
	}
}

// NumClasses implements Learner.
func (l *classDistributionLearner) NumClasses() int { return l.numClasses }

// Apply implements Learner: feature[c] = prior[c] * cos(neighborDistribution,
// reference[c]). Entities without neighbors get a zero row.
func (l *classDistributionLearner) Apply(dst *mat.Dense, adj adjacency.Adjacency, estimates *mat.Dense, labels []int, entities []int) {
	checkApplyShapes(dst, adj, estimates, l.numClasses, entities)
	distribution := make([]float64, l.numClasses)
	for i, entity := range entities {
		row := dst.RawRowView(i)
		zeroRow(row)
		zeroRow(distribution)
		total := neighborClassMass(distribution, adj, estimates, labels, entity, true)
		if total == 0 {
			continue
		}
		for class := 0; class < l.numClasses; class++ {
			row[class] = l.priors[class] * cosineSimilarity(distribution, l.references.RawRowView(class))
		}
		if l.normalize {
			normalizeRowL1(row)
		}
	}
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 if
// either has zero norm. Distributions are non-negative, so the result is
// within [0, 1].
func cosineSimilarity(a, b []float64) float64 {
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}
