package relational

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gomlx/netlearn/adjacency"
)

// meanLearner implements the simple (unweighted) and weighted mean
// aggregations. It has no fitted parameters beyond the class count.
type meanLearner struct {
	numClasses int
	normalize  bool
	useWeights bool
}

var _ Learner = (*meanLearner)(nil)

// NumClasses implements Learner.
func (l *meanLearner) NumClasses() int { return l.numClasses }

// Apply implements Learner: each feature row is the (weighted) mean of the
// entity's neighbor estimate rows. Entities without neighbors get a zero row.
func (l *meanLearner) Apply(dst *mat.Dense, adj adjacency.Adjacency, estimates *mat.Dense, labels []int, entities []int) {
	checkApplyShapes(dst, adj, estimates, l.numClasses, entities)
	for i, entity := range entities {
		row := dst.RawRowView(i)
		zeroRow(row)
		// Mean learners always aggregate the soft estimates; hard labels only
		// condition the class-distribution style learners.
		total := neighborClassMass(row, adj, estimates, nil, entity, l.useWeights)
		if total > 0 {
			floats.Scale(1/total, row)
		}
		if l.normalize {
			normalizeRowL1(row)
		}
	}
}

// zeroRow resets row in place.
func zeroRow(row []float64) {
	for i := range row {
		row[i] = 0
	}
}
