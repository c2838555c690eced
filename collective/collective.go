// Package collective implements the collective inference strategies: the
// loops that repeatedly re-estimate the updatable entities of a network from
// relational features until convergence or an iteration budget runs out.
//
// Every strategy shares the same iteration skeleton: recompute relational
// features for the updatable entities from the current estimates (one block
// per adjacency relation, concatenated), ask the relational classifier for
// fresh estimates, write them back into the updatable rows only, and test
// convergence. They differ in the write-back policy:
//
//   - RelaxationLabeling damps each update by a geometrically decaying
//     relaxation constant, which avoids oscillation on cyclic graphs.
//   - IterativeClassification replaces estimates outright and re-extracts a
//     hard label per entity each round; the labels condition the
//     class-distribution style relational learners.
//   - GibbsSampling runs a Markov-chain sweep, sampling labels from the
//     predicted distributions, with an initial burn-in that is discarded.
//
// Convergence is shared: stop when the mean absolute change across the
// updatable rows is at or below the tolerance, or when the budget is
// exhausted. Exhausting the budget is a normal terminal condition, reported
// through Result, never an error.
//
// Strategies are built gomlx-optimizer style, with a configuration object and
// chained setters:
//
//	inferer := collective.RelaxationLabeling().Kappa(1).Alpha(0.99).
//		MaxIter(100).Tol(1e-5).Done()
//	result := inferer.Infer(problem)
//
// Feature and delta buffers are allocated once per Infer call and reused
// across iterations; the only per-iteration allocation is the classifier's
// own prediction output.
package collective

import (
	"github.com/gomlx/exceptions"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/gomlx/netlearn/adjacency"
	"github.com/gomlx/netlearn/models"
	"github.com/gomlx/netlearn/relational"
)

// Kind selects one of the collective inference strategies.
type Kind int

const (
	KindRelaxationLabeling Kind = iota
	KindIterativeClassification
	KindGibbsSampling
)

// DefaultKind is used when a selector cannot be resolved.
const DefaultKind = KindRelaxationLabeling

var kindNames = map[string]Kind{
	"relaxationlabeling":      KindRelaxationLabeling,
	"iterativeclassification": KindIterativeClassification,
	"gibbssampling":           KindGibbsSampling,
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindRelaxationLabeling:
		return "relaxationlabeling"
	case KindIterativeClassification:
		return "iterativeclassification"
	case KindGibbsSampling:
		return "gibbssampling"
	}
	return "invalid"
}

// KindFromName resolves a selector string to its Kind. The second result is
// false if the name is unknown.
func KindFromName(name string) (Kind, bool) {
	kind, ok := kindNames[name]
	return kind, ok
}

// KindNames lists the recognized selector strings, in no particular order.
func KindNames() []string {
	return maps.Keys(kindNames)
}

// Problem bundles everything one collective inference pass operates on. The
// pass mutates Estimates in place and only on the rows with Update set; all
// other fields are read-only to it.
type Problem struct {
	// Adjacencies are the relations over the entities, aligned index-wise
	// with Learners.
	Adjacencies []adjacency.Adjacency

	// Learners holds one fitted relational learner per adjacency.
	Learners []relational.Learner

	// Classifier is the fitted relational classifier queried every iteration.
	Classifier models.Classifier

	// Estimates is the n x p estimate matrix, mutated in place.
	Estimates *mat.Dense

	// Update flags the entities whose estimates may be overwritten; the rest
	// are fixed ground truth.
	Update []bool

	// Extract maps an estimate row to its class label. Nil means
	// models.ArgMax.
	Extract models.TargetExtractor
}

// Result reports how an inference pass terminated. Exhausting the iteration
// budget is normal: Converged is simply left false.
type Result struct {
	// Iterations actually executed.
	Iterations int

	// Converged is true if the mean-absolute-change criterion was met within
	// the budget.
	Converged bool

	// MeanDelta is the mean absolute change of the last executed iteration.
	MeanDelta float64
}

// Inferer runs one collective inference pass over a Problem. Implementations
// hold only hyperparameters: all iteration state lives in buffers owned by
// the call, so an Inferer can be reused across passes (but not concurrently
// against the same Problem).
type Inferer interface {
	Infer(problem *Problem) Result
}

// check validates the problem's shapes. Violations are programming errors and
// panic with a shape error.
func (problem *Problem) check() {
	numEntities, numClasses := problem.Estimates.Dims()
	if len(problem.Update) != numEntities {
		exceptions.Panicf("collective: %d estimate rows but update mask of length %d",
			numEntities, len(problem.Update))
	}
	if len(problem.Adjacencies) == 0 {
		exceptions.Panicf("collective: no adjacency structures")
	}
	if len(problem.Learners) != len(problem.Adjacencies) {
		exceptions.Panicf("collective: %d learners for %d adjacencies",
			len(problem.Learners), len(problem.Adjacencies))
	}
	for i, adj := range problem.Adjacencies {
		if adj.NumEntities() != numEntities {
			exceptions.Panicf("collective: adjacency #%d covers %d entities, estimates have %d rows",
				i, adj.NumEntities(), numEntities)
		}
		if problem.Learners[i].NumClasses() != numClasses {
			exceptions.Panicf("collective: learner #%d fitted for %d classes, estimates have %d",
				i, problem.Learners[i].NumClasses(), numClasses)
		}
	}
	if problem.Classifier == nil {
		exceptions.Panicf("collective: nil classifier")
	}
}

// extractor returns the configured target extractor or the default.
func (problem *Problem) extractor() models.TargetExtractor {
	if problem.Extract != nil {
		return problem.Extract
	}
	return models.ArgMax
}

// pass holds the scratch buffers of one inference pass, allocated once and
// reused across iterations.
type pass struct {
	problem    *Problem
	updatable  []int      // entity indices with Update set
	features   *mat.Dense // len(updatable) x (numRelations*p)
	numClasses int
}

// newPass validates the problem and allocates the scratch buffers.
func newPass(problem *Problem) *pass {
	problem.check()
	_, numClasses := problem.Estimates.Dims()
	var updatable []int
	for entity, update := range problem.Update {
		if update {
			updatable = append(updatable, entity)
		}
	}
	return &pass{
		problem:    problem,
		updatable:  updatable,
		features:   mat.NewDense(max(len(updatable), 1), len(problem.Adjacencies)*numClasses, nil),
		numClasses: numClasses,
	}
}

// predict recomputes the relational features of the updatable entities from
// estimates (and optional hard labels) and returns the classifier's fresh
// estimate rows, aligned with pass.updatable.
func (s *pass) predict(estimates *mat.Dense, labels []int) *mat.Dense {
	for r, learner := range s.problem.Learners {
		block := s.features.Slice(0, len(s.updatable), r*s.numClasses, (r+1)*s.numClasses).(*mat.Dense)
		learner.Apply(block, s.problem.Adjacencies[r], estimates, labels, s.updatable)
	}
	predicted, err := s.problem.Classifier.PredictProba(s.features)
	if err != nil {
		exceptions.Panicf("collective: classifier prediction failed: %v", err)
	}
	rows, cols := predicted.Dims()
	if rows != len(s.updatable) || cols != s.numClasses {
		exceptions.Panicf("collective: classifier returned %dx%d estimates, want %dx%d",
			rows, cols, len(s.updatable), s.numClasses)
	}
	return predicted
}

// hardLabels extracts one label per entity from the current estimates.
func (s *pass) hardLabels() []int {
	extract := s.problem.extractor()
	numEntities, _ := s.problem.Estimates.Dims()
	labels := make([]int, numEntities)
	for entity := 0; entity < numEntities; entity++ {
		labels[entity] = extract(s.problem.Estimates.RawRowView(entity))
	}
	return labels
}

// converged applies the shared criterion and traces the iteration.
func converged(iteration int, meanDelta, tol float64) bool {
	klog.V(1).Infof("collective inference iteration %d: mean delta %.6g (tol %g)", iteration, meanDelta, tol)
	return meanDelta <= tol
}

// clampIterations enforces the >= 1 budget invariant.
func clampIterations(maxIterations int) int {
	if maxIterations < 1 {
		return 1
	}
	return maxIterations
}

// clampTolerance enforces the >= 0 tolerance invariant.
func clampTolerance(tol float64) float64 {
	if tol < 0 {
		return 0
	}
	return tol
}

// clampUnit clamps value into (0, 1], substituting fallback for non-positive
// values.
func clampUnit(value, fallback float64) float64 {
	if value > 1 {
		return 1
	}
	if value <= 0 {
		return fallback
	}
	return value
}
