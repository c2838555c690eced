// Package adjacency defines the relational structures (graphs over entities) that
// collective inference runs on.
//
// An Adjacency is one relation over a fixed set of entities: it knows how many
// entities it covers, can enumerate the weighted neighbors of any entity, and can
// produce a symmetric restriction of itself to an arbitrary entity subset
// (used during training to isolate the labeled entities).
//
// Matrix is the dense implementation and the one used in practice; anything
// satisfying Adjacency can back a relational learner, so sparse or external
// graph stores can be plugged in without changes elsewhere.
package adjacency

import (
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// Adjacency is one relation over a set of entities.
type Adjacency interface {
	// NumEntities returns the number of entities the relation covers.
	NumEntities() int

	// EachNeighbor calls fn for every neighbor of entity with a non-zero edge
	// weight. Order of enumeration is unspecified.
	EachNeighbor(entity int, fn func(neighbor int, weight float64))

	// Restrict returns the symmetric sub-adjacency over the given entity subset.
	// Entity i of the restriction corresponds to subset[i] of the original.
	Restrict(subset []int) Adjacency
}

// Edge is one weighted, undirected connection between two entities.
type Edge struct {
	I, J   int
	Weight float64
}

// Matrix is a dense symmetric weighted adjacency over n entities.
type Matrix struct {
	weights *mat.Dense
	n       int
}

// Compile-time check.
var _ Adjacency = (*Matrix)(nil)

// NewMatrix creates an empty (edge-less) adjacency over numEntities entities.
func NewMatrix(numEntities int) *Matrix {
	if numEntities <= 0 {
		exceptions.Panicf("adjacency.NewMatrix: numEntities must be positive, got %d", numEntities)
	}
	return &Matrix{
		weights: mat.NewDense(numEntities, numEntities, nil),
		n:       numEntities,
	}
}

// FromDense wraps a square weight matrix as an adjacency. The matrix is
// symmetrized: the weight used for the pair (i, j) is max(w[i][j], w[j][i]).
// It panics if weights is not square.
func FromDense(weights mat.Matrix) *Matrix {
	rows, cols := weights.Dims()
	if rows != cols {
		exceptions.Panicf("adjacency.FromDense: weight matrix must be square, got %dx%d", rows, cols)
	}
	a := NewMatrix(rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			w := max(weights.At(i, j), weights.At(j, i))
			if w != 0 {
				a.weights.Set(i, j, w)
			}
		}
	}
	return a
}

// FromEdges builds an adjacency over numEntities entities from an undirected
// edge list. Repeated edges accumulate their weights.
func FromEdges(numEntities int, edges []Edge) *Matrix {
	a := NewMatrix(numEntities)
	for _, e := range edges {
		a.AddEdge(e.I, e.J, e.Weight)
	}
	return a
}

// AddEdge adds weight to the undirected edge between entities i and j.
func (a *Matrix) AddEdge(i, j int, weight float64) {
	a.checkEntity(i)
	a.checkEntity(j)
	a.weights.Set(i, j, a.weights.At(i, j)+weight)
	if i != j {
		a.weights.Set(j, i, a.weights.At(j, i)+weight)
	}
}

// Weight returns the edge weight between entities i and j, 0 if not connected.
func (a *Matrix) Weight(i, j int) float64 {
	a.checkEntity(i)
	a.checkEntity(j)
	return a.weights.At(i, j)
}

// NumEntities implements Adjacency.
func (a *Matrix) NumEntities() int { return a.n }

// EachNeighbor implements Adjacency.
func (a *Matrix) EachNeighbor(entity int, fn func(neighbor int, weight float64)) {
	a.checkEntity(entity)
	row := a.weights.RawRowView(entity)
	for j, w := range row {
		if w != 0 && j != entity {
			fn(j, w)
		}
	}
}

// Restrict implements Adjacency. The result is a new Matrix holding only the
// edges whose both endpoints are in subset; since a Matrix is symmetric, so is
// its restriction.
func (a *Matrix) Restrict(subset []int) Adjacency {
	sub := NewMatrix(len(subset))
	for si, i := range subset {
		a.checkEntity(i)
		for sj, j := range subset {
			if w := a.weights.At(i, j); w != 0 && si != sj {
				sub.weights.Set(si, sj, w)
			}
		}
	}
	return sub
}

// Degree returns the sum of edge weights incident to entity.
func (a *Matrix) Degree(entity int) float64 {
	var total float64
	a.EachNeighbor(entity, func(_ int, w float64) {
		total += w
	})
	return total
}

// NumEdges counts the undirected edges with non-zero weight.
func (a *Matrix) NumEdges() int {
	var count int
	for i := 0; i < a.n; i++ {
		for j := i + 1; j < a.n; j++ {
			if a.weights.At(i, j) != 0 {
				count++
			}
		}
	}
	return count
}

func (a *Matrix) checkEntity(entity int) {
	if entity < 0 || entity >= a.n {
		exceptions.Panicf("adjacency: entity %d out of range for %d entities", entity, a.n)
	}
}
