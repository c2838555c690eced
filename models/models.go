// Package models defines the classifier collaborator used by collective
// inference, along with a default implementation.
//
// The inference engine is agnostic to how the relational classifier works: it
// only needs Fit over (features, integer targets) and PredictProba returning
// one probability-like row per input row. Any upstream modeling library can be
// adapted to Classifier; CentroidSoftmax is a small self-contained default so
// the package is usable without one.
package models

import (
	"math"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Classifier is the relational classifier collaborator: trained once on the
// relational features of the labeled entities, then queried repeatedly during
// collective inference as the features evolve.
type Classifier interface {
	// Fit trains the classifier on one feature row per entity and the aligned
	// integer class targets. numClasses fixes the width of PredictProba rows.
	Fit(features mat.Matrix, targets []int, numClasses int) error

	// PredictProba returns one row per input row with a score per class.
	// Rows should be non-negative; they need not sum to one.
	PredictProba(features mat.Matrix) (*mat.Dense, error)
}

// TargetExtractor maps one estimate row to its class label.
type TargetExtractor func(estimate []float64) int

// ArgMax is the default TargetExtractor: the index of the largest entry.
// Ties resolve to the lowest index.
func ArgMax(estimate []float64) int {
	return floats.MaxIdx(estimate)
}

// CentroidSoftmax classifies by distance to per-class feature centroids,
// converted to probabilities with a temperature softmax.
//
// It is deliberately simple: collective inference does the heavy lifting, the
// base classifier only needs to map relational features to class scores.
type CentroidSoftmax struct {
	// Temperature of the softmax over negative distances. Lower is sharper.
	// Zero means the default of 1.
	Temperature float64

	centroids  *mat.Dense // numClasses x numFeatures
	numClasses int
	fitted     bool
}

var _ Classifier = (*CentroidSoftmax)(nil)

// Fit implements Classifier. Classes with no training rows keep a zero
// centroid.
func (c *CentroidSoftmax) Fit(features mat.Matrix, targets []int, numClasses int) error {
	rows, cols := features.Dims()
	if rows != len(targets) {
		exceptions.Panicf("CentroidSoftmax.Fit: %d feature rows but %d targets", rows, len(targets))
	}
	if numClasses <= 0 {
		exceptions.Panicf("CentroidSoftmax.Fit: numClasses must be positive, got %d", numClasses)
	}
	c.centroids = mat.NewDense(numClasses, cols, nil)
	counts := make([]float64, numClasses)
	for i, target := range targets {
		if target < 0 || target >= numClasses {
			exceptions.Panicf("CentroidSoftmax.Fit: target %d out of range for %d classes", target, numClasses)
		}
		counts[target]++
		for j := 0; j < cols; j++ {
			c.centroids.Set(target, j, c.centroids.At(target, j)+features.At(i, j))
		}
	}
	for class, count := range counts {
		if count == 0 {
			continue
		}
		floats.Scale(1/count, c.centroids.RawRowView(class))
	}
	c.numClasses = numClasses
	c.fitted = true
	return nil
}

// PredictProba implements Classifier.
func (c *CentroidSoftmax) PredictProba(features mat.Matrix) (*mat.Dense, error) {
	if !c.fitted {
		exceptions.Panicf("CentroidSoftmax.PredictProba called before Fit")
	}
	rows, cols := features.Dims()
	_, wantCols := c.centroids.Dims()
	if cols != wantCols {
		exceptions.Panicf("CentroidSoftmax.PredictProba: got %d feature columns, fitted with %d", cols, wantCols)
	}
	temperature := c.Temperature
	if temperature <= 0 {
		temperature = 1
	}
	out := mat.NewDense(rows, c.numClasses, nil)
	rowBuf := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(rowBuf, i, features)
		scores := out.RawRowView(i)
		for class := 0; class < c.numClasses; class++ {
			scores[class] = -floats.Distance(rowBuf, c.centroids.RawRowView(class), 2) / temperature
		}
		softmaxInPlace(scores)
	}
	return out, nil
}

// softmaxInPlace replaces scores with exp(scores - max) / sum.
func softmaxInPlace(scores []float64) {
	maxScore := floats.Max(scores)
	var total float64
	for i, s := range scores {
		scores[i] = math.Exp(s - maxScore)
		total += scores[i]
	}
	floats.Scale(1/total, scores)
}
