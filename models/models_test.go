package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestArgMax(t *testing.T) {
	assert.Equal(t, 2, ArgMax([]float64{0.1, 0.2, 0.7}))
	assert.Equal(t, 0, ArgMax([]float64{0.5, 0.5})) // ties resolve low
	assert.Equal(t, 1, ArgMax([]float64{-2, -1, -3}))
}

func TestCentroidSoftmax(t *testing.T) {
	// Two well separated clusters in feature space.
	features := mat.NewDense(4, 2, []float64{
		0, 0,
		0.1, 0,
		1, 1,
		0.9, 1,
	})
	targets := []int{0, 0, 1, 1}

	clf := &CentroidSoftmax{}
	require.NoError(t, clf.Fit(features, targets, 2))

	probas, err := clf.PredictProba(mat.NewDense(2, 2, []float64{
		0, 0.05,
		1, 0.95,
	}))
	require.NoError(t, err)
	rows, cols := probas.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 2, cols)
	for i := 0; i < rows; i++ {
		row := probas.RawRowView(i)
		assert.InDelta(t, 1.0, floats.Sum(row), 1e-12)
		for _, p := range row {
			assert.Greater(t, p, 0.0)
		}
	}
	// Nearer centroid wins.
	assert.Greater(t, probas.At(0, 0), probas.At(0, 1))
	assert.Greater(t, probas.At(1, 1), probas.At(1, 0))
}

func TestCentroidSoftmaxTemperature(t *testing.T) {
	features := mat.NewDense(2, 1, []float64{0, 1})
	targets := []int{0, 1}

	sharp := &CentroidSoftmax{Temperature: 0.1}
	require.NoError(t, sharp.Fit(features, targets, 2))
	soft := &CentroidSoftmax{Temperature: 10}
	require.NoError(t, soft.Fit(features, targets, 2))

	query := mat.NewDense(1, 1, []float64{0.2})
	sharpProbas, err := sharp.PredictProba(query)
	require.NoError(t, err)
	softProbas, err := soft.PredictProba(query)
	require.NoError(t, err)
	// Lower temperature concentrates mass on the nearest centroid.
	assert.Greater(t, sharpProbas.At(0, 0), softProbas.At(0, 0))
}

func TestCentroidSoftmaxPanics(t *testing.T) {
	clf := &CentroidSoftmax{}
	require.Panics(t, func() {
		_, _ = clf.PredictProba(mat.NewDense(1, 2, nil)) // not fitted
	})
	require.Panics(t, func() {
		_ = clf.Fit(mat.NewDense(2, 2, nil), []int{0}, 2) // misaligned targets
	})
	require.Panics(t, func() {
		_ = clf.Fit(mat.NewDense(2, 2, nil), []int{0, 5}, 2) // target out of range
	})

	require.NoError(t, clf.Fit(mat.NewDense(2, 2, nil), []int{0, 1}, 2))
	require.Panics(t, func() {
		_, _ = clf.PredictProba(mat.NewDense(1, 3, nil)) // wrong feature width
	})
}
