package collective

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gomlx/netlearn/adjacency"
	"github.com/gomlx/netlearn/models"
	"github.com/gomlx/netlearn/relational"
)

// passthroughClassifier turns the first relational-feature block into a
// probability distribution: deterministic, so tests can predict every
// iteration exactly.
type passthroughClassifier struct {
	numClasses int
}

var _ models.Classifier = (*passthroughClassifier)(nil)

func (c *passthroughClassifier) Fit(mat.Matrix, []int, int) error { return nil }

func (c *passthroughClassifier) PredictProba(features mat.Matrix) (*mat.Dense, error) {
	rows, _ := features.Dims()
	out := mat.NewDense(rows, c.numClasses, nil)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		for class := 0; class < c.numClasses; class++ {
			row[class] = features.At(i, class)
		}
		if norm := floats.Norm(row, 1); norm > 0 {
			floats.Scale(1/norm, row)
		} else {
			for class := range row {
				row[class] = 1 / float64(c.numClasses)
			}
		}
	}
	return out, nil
}

// fourEntityProblem: entities 0 and 1 fixed with opposite one-hot labels,
// entities 2 and 3 updatable, wired 0-2, 1-3 and 2-3.
func fourEntityProblem(t *testing.T) *Problem {
	t.Helper()
	adj := adjacency.FromEdges(4, []adjacency.Edge{
		{I: 0, J: 2, Weight: 1},
		{I: 1, J: 3, Weight: 1},
		{I: 2, J: 3, Weight: 1},
	})
	estimates := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		0.5, 0.5,
		0.5, 0.5,
	})
	learner := relational.New(relational.KindWeighted).
		Fit(adj, estimates, []int{0, 1, 0, 1})
	return &Problem{
		Adjacencies: []adjacency.Adjacency{adj},
		Learners:    []relational.Learner{learner},
		Classifier:  &passthroughClassifier{numClasses: 2},
		Estimates:   estimates,
		Update:      []bool{false, false, true, true},
	}
}

// twoEntityProblem: one fixed, one updatable entity joined by an edge.
func twoEntityProblem(t *testing.T) *Problem {
	t.Helper()
	adj := adjacency.FromEdges(2, []adjacency.Edge{{I: 0, J: 1, Weight: 1}})
	estimates := mat.NewDense(2, 2, []float64{
		1, 0,
		0.5, 0.5,
	})
	learner := relational.New(relational.KindWeighted).
		Fit(adj, estimates, []int{0, 0})
	return &Problem{
		Adjacencies: []adjacency.Adjacency{adj},
		Learners:    []relational.Learner{learner},
		Classifier:  &passthroughClassifier{numClasses: 2},
		Estimates:   estimates,
		Update:      []bool{false, true},
	}
}

func TestRelaxationDegeneratesToIterative(t *testing.T) {
	// With κ=1 and α=1 there is no damping: one relaxation iteration must
	// produce exactly one iterative-classification iteration.
	relaxed := fourEntityProblem(t)
	iterated := fourEntityProblem(t)

	RelaxationLabeling().Kappa(1).Alpha(1).MaxIter(1).Tol(0).Done().Infer(relaxed)
	IterativeClassification().MaxIter(1).Tol(0).Done().Infer(iterated)

	require.True(t, mat.EqualApprox(relaxed.Estimates, iterated.Estimates, 1e-12))
}

func TestFixedRowsNeverChange(t *testing.T) {
	inferers := map[string]Inferer{
		"relaxationlabeling":      RelaxationLabeling().MaxIter(10).Done(),
		"iterativeclassification": IterativeClassification().MaxIter(10).Done(),
		"gibbssampling":           GibbsSampling().MaxIter(10).Seed(7).Done(),
	}
	for name, inferer := range inferers {
		t.Run(name, func(t *testing.T) {
			problem := fourEntityProblem(t)
			fixed0 := append([]float64(nil), problem.Estimates.RawRowView(0)...)
			fixed1 := append([]float64(nil), problem.Estimates.RawRowView(1)...)

			inferer.Infer(problem)

			assert.Equal(t, fixed0, problem.Estimates.RawRowView(0))
			assert.Equal(t, fixed1, problem.Estimates.RawRowView(1))
		})
	}
}

func TestRelaxationConverges(t *testing.T) {
	problem := twoEntityProblem(t)
	result := RelaxationLabeling().MaxIter(50).Tol(1e-4).Done().Infer(problem)

	assert.True(t, result.Converged)
	assert.LessOrEqual(t, result.Iterations, 50)
	// The updatable entity adopts its fixed neighbor's estimate.
	assert.InDeltaSlice(t, []float64{1, 0}, problem.Estimates.RawRowView(1), 1e-6)
}

func TestGibbsBurnInCoversBudget(t *testing.T) {
	problem := fourEntityProblem(t)
	before := mat.DenseCopyOf(problem.Estimates)

	result := GibbsSampling().MaxIter(10).BurnInRatio(1).Seed(3).Done().Infer(problem)

	// Every iteration was burn-in: zero accepted samples, estimates as before.
	assert.Equal(t, 10, result.Iterations)
	assert.False(t, result.Converged)
	require.True(t, mat.Equal(before, problem.Estimates))
}

func TestGibbsRecoversNeighborLabel(t *testing.T) {
	problem := twoEntityProblem(t)
	result := GibbsSampling().MaxIter(20).BurnInRatio(0.2).Seed(1).Done().Infer(problem)

	// The only neighbor is fixed at class 0, so every post-burn-in sample is
	// class 0 and the empirical mean pins to its one-hot.
	assert.True(t, result.Converged)
	assert.InDeltaSlice(t, []float64{1, 0}, problem.Estimates.RawRowView(1), 1e-12)
}

func TestBudgetAndToleranceClamping(t *testing.T) {
	problem := twoEntityProblem(t)
	result := RelaxationLabeling().MaxIter(0).Tol(-5).Done().Infer(problem)
	// Budget clamps to one iteration; the first update moves by 0.5 which is
	// above the clamped zero tolerance.
	assert.Equal(t, 1, result.Iterations)
	assert.False(t, result.Converged)
	assert.Greater(t, result.MeanDelta, 0.0)

	config := RelaxationLabeling().Kappa(2).Alpha(-1)
	assert.Equal(t, 1.0, config.kappa)
	assert.Equal(t, RelaxationDefaultAlpha, config.alpha)
}

func TestNoUpdatableEntities(t *testing.T) {
	problem := fourEntityProblem(t)
	problem.Update = []bool{false, false, false, false}
	result := IterativeClassification().Done().Infer(problem)
	assert.True(t, result.Converged)
	assert.Equal(t, 0, result.Iterations)
}

func TestProblemShapePanics(t *testing.T) {
	t.Run("mask length", func(t *testing.T) {
		problem := fourEntityProblem(t)
		problem.Update = []bool{true}
		require.Panics(t, func() { IterativeClassification().Done().Infer(problem) })
	})
	t.Run("learner count", func(t *testing.T) {
		problem := fourEntityProblem(t)
		problem.Learners = nil
		require.Panics(t, func() { IterativeClassification().Done().Infer(problem) })
	})
	t.Run("nil classifier", func(t *testing.T) {
		problem := fourEntityProblem(t)
		problem.Classifier = nil
		require.Panics(t, func() { IterativeClassification().Done().Infer(problem) })
	})
}
