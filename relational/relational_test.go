package relational

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gomlx/netlearn/adjacency"
)

// chainGraph returns 4 entities with edges 0-1 (weight 2) and 1-2 (weight 1);
// entity 3 is isolated.
func chainGraph() adjacency.Adjacency {
	return adjacency.FromEdges(4, []adjacency.Edge{
		{I: 0, J: 1, Weight: 2},
		{I: 1, J: 2, Weight: 1},
	})
}

func chainEstimates() *mat.Dense {
	return mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		0.5, 0.5,
		0.25, 0.75,
	})
}

func applyAll(t *testing.T, learner Learner, adj adjacency.Adjacency, estimates *mat.Dense, labels []int) *mat.Dense {
	t.Helper()
	dst := mat.NewDense(adj.NumEntities(), learner.NumClasses(), nil)
	learner.Apply(dst, adj, estimates, labels, []int{0, 1, 2, 3})
	return dst
}

func TestSimpleMean(t *testing.T) {
	adj := chainGraph()
	estimates := chainEstimates()
	learner := New(KindSimple).Fit(adj, estimates, []int{0, 1, 0, 1})

	features := applyAll(t, learner, adj, estimates, nil)
	assert.InDeltaSlice(t, []float64{0, 1}, features.RawRowView(0), 1e-12)
	// Entity 1 averages entities 0 and 2, ignoring edge weights.
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, features.RawRowView(1), 1e-12)
	assert.InDeltaSlice(t, []float64{0, 1}, features.RawRowView(2), 1e-12)
	// Isolated entity: all-zero row.
	assert.Equal(t, []float64{0, 0}, features.RawRowView(3))
}

func TestWeightedMean(t *testing.T) {
	adj := chainGraph()
	estimates := chainEstimates()
	learner := New(KindWeighted).Fit(adj, estimates, []int{0, 1, 0, 1})

	features := applyAll(t, learner, adj, estimates, nil)
	// Entity 1: (2*[1,0] + 1*[0.5,0.5]) / 3.
	assert.InDeltaSlice(t, []float64{2.5 / 3, 0.5 / 3}, features.RawRowView(1), 1e-12)
	assert.Equal(t, []float64{0, 0}, features.RawRowView(3))
}

func TestNormalizeL1(t *testing.T) {
	adj := chainGraph()
	// Estimates deliberately not summing to one per row.
	estimates := mat.NewDense(4, 2, []float64{
		2, 0,
		0, 3,
		1, 1,
		0, 0,
	})
	learner := New(KindWeighted).Normalize(true).Fit(adj, estimates, []int{0, 1, 0, 1})

	features := applyAll(t, learner, adj, estimates, nil)
	for entity := 0; entity < 3; entity++ {
		assert.InDelta(t, 1.0, floats.Norm(features.RawRowView(entity), 1), 1e-12,
			"entity %d should have unit L1 norm", entity)
	}
	// All-zero rows stay zero instead of being rescaled.
	assert.Equal(t, []float64{0, 0}, features.RawRowView(3))
}

func TestClassDistribution(t *testing.T) {
	// Two same-class pairs: 0-1 are class 0, 2-3 are class 1.
	adj := adjacency.FromEdges(4, []adjacency.Edge{
		{I: 0, J: 1, Weight: 1},
		{I: 2, J: 3, Weight: 1},
	})
	targets := []int{0, 0, 1, 1}
	estimates := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
		0, 1,
	})
	learner := New(KindClassDistribution).
		Priors([]float64{0.5, 0.5}).
		Normalize(true).
		Fit(adj, estimates, targets)

	features := applyAll(t, learner, adj, estimates, targets)
	// Entity 0's neighbor distribution is pure class 0, matching class 0's
	// reference vector exactly and class 1's not at all.
	assert.InDeltaSlice(t, []float64{1, 0}, features.RawRowView(0), 1e-12)
	assert.InDeltaSlice(t, []float64{0, 1}, features.RawRowView(3), 1e-12)
}

func TestBayesian(t *testing.T) {
	adj := adjacency.FromEdges(4, []adjacency.Edge{
		{I: 0, J: 1, Weight: 1},
		{I: 2, J: 3, Weight: 1},
	})
	targets := []int{0, 0, 1, 1}
	estimates := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
		0, 1,
	})
	learner := New(KindBayesian).Fit(adj, estimates, targets)

	features := applyAll(t, learner, adj, estimates, targets)
	for entity := 0; entity < 4; entity++ {
		row := features.RawRowView(entity)
		assert.InDelta(t, 1.0, floats.Sum(row), 1e-12)
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
	// With Laplace smoothing 1 the conditionals are [0.75, 0.25] per class,
	// so a single class-0 neighbor yields posterior [0.75, 0.25].
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, features.RawRowView(0), 1e-12)

	// Zero-neighbor entities fall back to the priors.
	isolated := adjacency.FromEdges(4, []adjacency.Edge{{I: 0, J: 1, Weight: 1}})
	learner = New(KindBayesian).Priors([]float64{0.9, 0.1}).Fit(isolated, estimates, targets)
	features = applyAll(t, learner, isolated, estimates, targets)
	assert.InDeltaSlice(t, []float64{0.9, 0.1}, features.RawRowView(3), 1e-12)
}

func TestKindNames(t *testing.T) {
	for _, name := range []string{"simple", "weighted", "classdistribution", "bayesian"} {
		kind, ok := KindFromName(name)
		require.True(t, ok)
		assert.Equal(t, name, kind.String())
	}
	_, ok := KindFromName("xyz")
	assert.False(t, ok)
	assert.Len(t, KindNames(), 4)
}

func TestFitShapePanics(t *testing.T) {
	adj := chainGraph()
	estimates := chainEstimates()

	// Wrong priors length.
	require.Panics(t, func() {
		New(KindBayesian).Priors([]float64{0.3, 0.3, 0.4}).Fit(adj, estimates, []int{0, 1, 0, 1})
	})
	// Priors out of [0, 1].
	require.Panics(t, func() {
		New(KindBayesian).Priors([]float64{1.5, -0.5}).Fit(adj, estimates, []int{0, 1, 0, 1})
	})
	// Targets misaligned with the estimate rows.
	require.Panics(t, func() {
		New(KindWeighted).Fit(adj, estimates, []int{0, 1})
	})
	// Adjacency over a different entity count.
	require.Panics(t, func() {
		New(KindWeighted).Fit(adjacency.NewMatrix(3), estimates, []int{0, 1, 0, 1})
	})
}

func TestApplyShapePanics(t *testing.T) {
	adj := chainGraph()
	estimates := chainEstimates()
	learner := New(KindWeighted).Fit(adj, estimates, []int{0, 1, 0, 1})

	// dst too narrow.
	require.Panics(t, func() {
		learner.Apply(mat.NewDense(4, 1, nil), adj, estimates, nil, []int{0, 1, 2, 3})
	})
	// Entity out of range.
	require.Panics(t, func() {
		learner.Apply(mat.NewDense(1, 2, nil), adj, estimates, nil, []int{7})
	})
}
