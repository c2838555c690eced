// Package relational implements the relational learners: strategies that turn
// the current estimates of an entity's neighbors, under one adjacency
// structure, into a relational feature vector for that entity.
//
// A learner is fitted once on the labeled (fixed) restriction of an adjacency
// and is immutable afterward, but it is re-applied on every collective
// inference iteration -- the features it produces change as the neighbor
// estimates evolve, it is not a cached snapshot.
//
// Available kinds:
//   - KindSimple: unweighted mean of neighbor estimate rows.
//   - KindWeighted: edge-weight-weighted mean of neighbor estimate rows.
//   - KindClassDistribution: similarity of the entity's neighbor-class
//     distribution to per-class reference vectors learned at fit time,
//     scaled by the class priors.
//   - KindBayesian: naive-Bayes combination of neighbor estimates over the
//     class priors, using class-conditional neighbor-label probabilities
//     learned at fit time.
//
// Learners are created through New, configured with chained setters and
// fitted with Config.Fit:
//
//	learner := relational.New(relational.KindWeighted).
//		Normalize(true).
//		Fit(restricted, fixedEstimates, fixedTargets)
package relational

import (
	"github.com/gomlx/exceptions"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gomlx/netlearn/adjacency"
)

// Kind selects one of the relational learner strategies.
type Kind int

const (
	KindSimple Kind = iota
	KindWeighted
	KindClassDistribution
	KindBayesian
)

// DefaultKind is used when a selector cannot be resolved.
const DefaultKind = KindWeighted

// kindNames are the recognized selector strings, all lowercase.
var kindNames = map[string]Kind{
	"simple":            KindSimple,
	"weighted":          KindWeighted,
	"classdistribution": KindClassDistribution,
	"bayesian":          KindBayesian,
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindWeighted:
		return "weighted"
	case KindClassDistribution:
		return "classdistribution"
	case KindBayesian:
		return "bayesian"
	}
	return "invalid"
}

// KindFromName resolves a selector string to its Kind. The second result is
// false if the name is unknown -- callers decide whether to fall back or fail.
func KindFromName(name string) (Kind, bool) {
	kind, ok := kindNames[name]
	return kind, ok
}

// KindNames lists the recognized selector strings, in no particular order.
func KindNames() []string {
	return maps.Keys(kindNames)
}

// Learner is a fitted relational feature extractor for one adjacency relation.
//
// Implementations are immutable after fit and safe to re-apply as estimates
// evolve across inference iterations.
type Learner interface {
	// Apply writes one relational-feature row per element of entities into
	// dst, which must be len(entities) x NumClasses().
	//
	// estimates holds the current estimate row of every entity covered by adj.
	// labels optionally holds a hard class label per entity (as produced by
	// iterative classification); when non-nil, class-conditioned learners use
	// the labels instead of the soft estimates. Nil labels are always valid.
	Apply(dst *mat.Dense, adj adjacency.Adjacency, estimates *mat.Dense, labels []int, entities []int)

	// NumClasses returns the width p of the feature rows Apply produces.
	NumClasses() int
}

// Config configures and fits a relational learner. Create it with New.
type Config struct {
	kind      Kind
	priors    []float64
	normalize bool
}

// New creates a configuration for a learner of the given kind. Configure it
// with the chained setters, then call Fit.
func New(kind Kind) *Config {
	return &Config{kind: kind}
}

// Priors sets the class prior probabilities, used by the class-distribution
// and Bayesian kinds. Defaults to uniform. Each entry must be in [0, 1] and
// the length must match the number of classes seen at Fit.
func (c *Config) Priors(priors []float64) *Config {
	c.priors = priors
	return c
}

// Normalize rescales every produced feature row to unit L1 norm. Rows that
// aggregate to all-zero (entities without neighbors) are left as zero.
func (c *Config) Normalize(normalize bool) *Config {
	c.normalize = normalize
	return c
}

// Fit fits a learner of the configured kind on the labeled restriction of an
// adjacency: fixedEstimates and fixedTargets are aligned to the entities of
// adj (one row / one entry per entity).
//
// It panics with a shape error if the alignment or the priors are off.
func (c *Config) Fit(adj adjacency.Adjacency, fixedEstimates *mat.Dense, fixedTargets []int) Learner {
	numFixed, numClasses := fixedEstimates.Dims()
	if adj.NumEntities() != numFixed {
		exceptions.Panicf("relational.Fit: adjacency covers %d entities but got %d estimate rows",
			adj.NumEntities(), numFixed)
	}
	if len(fixedTargets) != numFixed {
		exceptions.Panicf("relational.Fit: %d estimate rows but %d targets", numFixed, len(fixedTargets))
	}
	priors := c.checkedPriors(numClasses)

	switch c.kind {
	case KindSimple:
		return &meanLearner{numClasses: numClasses, normalize: c.normalize}
	case KindWeighted:
		return &meanLearner{numClasses: numClasses, normalize: c.normalize, useWeights: true}
	case KindClassDistribution:
		return fitClassDistribution(adj, fixedEstimates, fixedTargets, priors, c.normalize)
	case KindBayesian:
		return fitBayesian(adj, fixedTargets, numClasses, priors, c.normalize)
	}
	exceptions.Panicf("relational.Fit: invalid kind %d", c.kind)
	return nil
}

// checkedPriors validates the configured priors, defaulting to uniform.
func (c *Config) checkedPriors(numClasses int) []float64 {
	if c.priors == nil {
		uniform := make([]float64, numClasses)
		for i := range uniform {
			uniform[i] = 1 / float64(numClasses)
		}
		return uniform
	}
	if len(c.priors) != numClasses {
		exceptions.Panicf("relational.Fit: %d priors for %d classes", len(c.priors), numClasses)
	}
	for i, p := range c.priors {
		if p < 0 || p > 1 {
			exceptions.Panicf("relational.Fit: prior #%d is %g, must be within [0, 1]", i, p)
		}
	}
	return c.priors
}

// neighborClassMass accumulates into dst the weighted class mass of entity's
// neighbors: the one-hot of the neighbor's label when labels is non-nil, its
// soft estimate row otherwise. Weights are taken from adj if useWeights, 1
// otherwise. Returns the total weight aggregated.
func neighborClassMass(dst []float64, adj adjacency.Adjacency, estimates *mat.Dense, labels []int, entity int, useWeights bool) float64 {
	var total float64
	adj.EachNeighbor(entity, func(neighbor int, weight float64) {
		if !useWeights {
			weight = 1
		}
		if labels != nil {
			dst[labels[neighbor]] += weight
		} else {
			floats.AddScaled(dst, weight, estimates.RawRowView(neighbor))
		}
		total += weight
	})
	return total
}

// checkTarget validates a class label.
func checkTarget(target, numClasses int) {
	if target < 0 || target >= numClasses {
		exceptions.Panicf("relational: target %d out of range for %d classes", target, numClasses)
	}
}

// checkApplyShapes validates the buffers handed to Learner.Apply.
func checkApplyShapes(dst *mat.Dense, adj adjacency.Adjacency, estimates *mat.Dense, numClasses int, entities []int) {
	numEntities, p := estimates.Dims()
	if numEntities != adj.NumEntities() {
		exceptions.Panicf("relational.Apply: adjacency covers %d entities but got %d estimate rows",
			adj.NumEntities(), numEntities)
	}
	if p != numClasses {
		exceptions.Panicf("relational.Apply: estimates have %d classes, learner fitted with %d", p, numClasses)
	}
	dstRows, dstCols := dst.Dims()
	if dstRows != len(entities) || dstCols != numClasses {
		exceptions.Panicf("relational.Apply: dst is %dx%d, want %dx%d",
			dstRows, dstCols, len(entities), numClasses)
	}
	for _, entity := range entities {
		if entity < 0 || entity >= numEntities {
			exceptions.Panicf("relational.Apply: entity %d out of range for %d entities", entity, numEntities)
		}
	}
}

// normalizeRowL1 rescales row to unit L1 norm, leaving all-zero rows alone.
func normalizeRowL1(row []float64) {
	norm := floats.Norm(row, 1)
	if norm > 0 {
		floats.Scale(1/norm, row)
	}
}
