package netlearn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ShapeError reports a violated dimension or length invariant, e.g. an update
// mask whose length does not match the number of entities. It is raised (as a
// panic, recovered at the Fit/Infer boundary) the moment the violation is
// detected and always aborts the whole call.
type ShapeError struct {
	msg string
}

// Error implements error.
func (e *ShapeError) Error() string { return e.msg }

// shapeErrorf panics with a *ShapeError; the public entry points recover it
// into a returned error.
func shapeErrorf(format string, args ...any) {
	panic(&ShapeError{msg: fmt.Sprintf(format, args...)})
}

// State is the mutable state shared across inference iterations: the current
// per-entity estimate matrix and the mask of entities inference may rewrite.
//
// It is created once when a network learner is fitted and mutated in place by
// every inference pass; rows whose update flag is false are ground truth and
// are never touched.
type State struct {
	estimates *mat.Dense
	update    []bool
}

// NewState wraps an n x p estimate matrix and its update mask. The mask must
// have one entry per estimate row; a mismatch raises a ShapeError.
//
// The state takes ownership of both arguments: inference mutates the matrix
// in place.
func NewState(estimates *mat.Dense, update []bool) *State {
	if estimates == nil {
		shapeErrorf("netlearn.NewState: nil estimates")
	}
	numEntities, numClasses := estimates.Dims()
	if len(update) != numEntities {
		shapeErrorf("netlearn.NewState: %d estimate rows but update mask of length %d",
			numEntities, len(update))
	}
	if numClasses == 0 {
		shapeErrorf("netlearn.NewState: estimates have no classes")
	}
	return &State{estimates: estimates, update: update}
}

// Estimates returns the live estimate matrix. It is mutated in place by
// inference passes.
func (s *State) Estimates() *mat.Dense { return s.estimates }

// Update returns the update mask. True marks entities inference may rewrite.
func (s *State) Update() []bool { return s.update }

// NumEntities returns n, the number of entities.
func (s *State) NumEntities() int {
	n, _ := s.estimates.Dims()
	return n
}

// NumClasses returns p, the width of each estimate row.
func (s *State) NumClasses() int {
	_, p := s.estimates.Dims()
	return p
}

// Snapshot copies the current estimates. An inference pass that is aborted
// midway leaves already-rewritten rows behind; callers that need
// all-or-nothing semantics take a Snapshot first and Restore on failure.
func (s *State) Snapshot() *mat.Dense {
	return mat.DenseCopyOf(s.estimates)
}

// Restore copies a snapshot back over the current estimates. The snapshot
// must have the state's dimensions.
func (s *State) Restore(snapshot *mat.Dense) {
	rows, cols := snapshot.Dims()
	n, p := s.estimates.Dims()
	if rows != n || cols != p {
		shapeErrorf("netlearn.State.Restore: snapshot is %dx%d, state is %dx%d", rows, cols, n, p)
	}
	s.estimates.Copy(snapshot)
}

// FixedEntities returns the indices of the entities whose estimates are
// ground truth (update flag false), in ascending order.
func (s *State) FixedEntities() []int {
	return s.selectEntities(false)
}

// UpdatableEntities returns the indices of the entities inference may
// rewrite, in ascending order.
func (s *State) UpdatableEntities() []int {
	return s.selectEntities(true)
}

func (s *State) selectEntities(update bool) []int {
	var selected []int
	for entity, flag := range s.update {
		if flag == update {
			selected = append(selected, entity)
		}
	}
	return selected
}
