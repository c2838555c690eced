// Package netlearn implements entity-based collective inference over
// relational networks.
//
// Given an initial per-entity estimate matrix, one or more adjacency
// structures connecting the entities, and a mask splitting the entities into
// fixed (labeled ground truth) and updatable ones, Fit trains a relational
// learner per adjacency on the fixed subset, trains a relational classifier
// on the concatenated relational features, and runs a collective inference
// pass that iteratively refines the updatable entities' estimates. The fitted
// NetworkLearner can re-run inference at any time with NetworkLearner.Infer,
// e.g. after new unlabeled observations were written into its state.
//
// The building blocks live in the subpackages -- adjacency (relations),
// relational (the learner family), collective (the inference strategies) and
// models (the classifier collaborator) -- and can be composed directly; this
// package is the orchestration layer tying them together:
//
//	learner, err := netlearn.Fit(estimates, update, adjacencies,
//		netlearn.NewConfig().
//			Learner("weighted").
//			Inference("relaxationlabeling").
//			Normalize(true).
//			MaxIter(100).Tol(1e-5))
//
// Only the rows of the estimate matrix flagged by the update mask are ever
// mutated; fixed rows are read-only ground truth throughout.
package netlearn

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/gomlx/netlearn/adjacency"
	"github.com/gomlx/netlearn/collective"
	"github.com/gomlx/netlearn/models"
	"github.com/gomlx/netlearn/relational"
)

// Config collects the options of a Fit call. Create it with NewConfig and
// chain the setters; the zero config (or a nil *Config) selects the
// documented defaults everywhere.
type Config struct {
	learnerKind relational.Kind
	inferKind   collective.Kind

	priors    []float64
	normalize bool

	maxIterations int
	tol           float64

	kappa, alpha float64 // relaxation labeling only
	burnInRatio  float64 // Gibbs only
	seed         *uint64 // Gibbs only

	extract     models.TargetExtractor
	classifier  models.Classifier
	columnMajor bool
}

// NewConfig returns a configuration with the defaults: weighted relational
// learner, relaxation labeling inference, uniform priors, no normalization,
// 100 iterations, tolerance 1e-6.
func NewConfig() *Config {
	return &Config{
		learnerKind:   relational.DefaultKind,
		inferKind:     collective.DefaultKind,
		maxIterations: 100,
		tol:           1e-6,
		kappa:         collective.RelaxationDefaultKappa,
		alpha:         collective.RelaxationDefaultAlpha,
		burnInRatio:   collective.GibbsDefaultBurnInRatio,
	}
}

// Learner selects the relational learner by name: "simple", "weighted",
// "classdistribution" or "bayesian". An unknown name is not an error: it
// falls back to the weighted learner with a logged warning.
func (c *Config) Learner(name string) *Config {
	kind, ok := relational.KindFromName(name)
	if !ok {
		klog.Warningf("netlearn: unknown relational learner %q, falling back to %q (known: %v)",
			name, relational.DefaultKind, relational.KindNames())
		kind = relational.DefaultKind
	}
	c.learnerKind = kind
	return c
}

// LearnerKind selects the relational learner by Kind.
func (c *Config) LearnerKind(kind relational.Kind) *Config {
	c.learnerKind = kind
	return c
}

// Inference selects the collective inference strategy by name:
// "relaxationlabeling", "iterativeclassification" or "gibbssampling". An
// unknown name falls back to relaxation labeling with a logged warning.
func (c *Config) Inference(name string) *Config {
	kind, ok := collective.KindFromName(name)
	if !ok {
		klog.Warningf("netlearn: unknown inference strategy %q, falling back to %q (known: %v)",
			name, collective.DefaultKind, collective.KindNames())
		kind = collective.DefaultKind
	}
	c.inferKind = kind
	return c
}

// InferenceKind selects the collective inference strategy by Kind.
func (c *Config) InferenceKind(kind collective.Kind) *Config {
	c.inferKind = kind
	return c
}

// Priors sets the class prior probabilities used by the class-distribution
// and Bayesian learners. Defaults to uniform. The length must be p; a
// mismatch aborts Fit with a shape error.
func (c *Config) Priors(priors []float64) *Config {
	c.priors = priors
	return c
}

// Normalize rescales every relational feature row to unit L1 norm, guarding
// against entities with very different neighbor counts dominating the
// relational signal.
func (c *Config) Normalize(normalize bool) *Config {
	c.normalize = normalize
	return c
}

// MaxIter sets the inference iteration budget, clamped to at least 1.
func (c *Config) MaxIter(maxIterations int) *Config {
	c.maxIterations = maxIterations
	return c
}

// Tol sets the convergence tolerance, clamped to at least 0.
func (c *Config) Tol(tol float64) *Config {
	c.tol = tol
	return c
}

// Kappa sets the initial relaxation constant (relaxation labeling only),
// clamped to (0, 1].
func (c *Config) Kappa(kappa float64) *Config {
	c.kappa = kappa
	return c
}

// Alpha sets the relaxation decay factor (relaxation labeling only), clamped
// to (0, 1].
func (c *Config) Alpha(alpha float64) *Config {
	c.alpha = alpha
	return c
}

// BurnInRatio sets the fraction of the budget discarded as burn-in (Gibbs
// sampling only), clamped to [0, 1].
func (c *Config) BurnInRatio(ratio float64) *Config {
	c.burnInRatio = ratio
	return c
}

// Seed fixes the Gibbs sampling seed, for reproducible inference.
func (c *Config) Seed(seed uint64) *Config {
	c.seed = &seed
	return c
}

// Extract sets the target-extraction function mapping an estimate row to a
// class label. Defaults to models.ArgMax.
func (c *Config) Extract(extract models.TargetExtractor) *Config {
	c.extract = extract
	return c
}

// Classifier sets the relational classifier collaborator. Defaults to
// models.CentroidSoftmax.
func (c *Config) Classifier(classifier models.Classifier) *Config {
	c.classifier = classifier
	return c
}

// ObservationsInColumns declares that the input estimate matrix is p x n
// (one column per entity) instead of the default n x p. Fit transposes it
// into a fresh row-major matrix, which the learner state then owns -- the
// caller's matrix is not mutated in this mode.
func (c *Config) ObservationsInColumns() *Config {
	c.columnMajor = true
	return c
}

// buildInferer materializes the configured collective inference strategy.
func (c *Config) buildInferer() collective.Inferer {
	switch c.inferKind {
	case collective.KindIterativeClassification:
		return collective.IterativeClassification().
			MaxIter(c.maxIterations).Tol(c.tol).Done()
	case collective.KindGibbsSampling:
		cfg := collective.GibbsSampling().
			MaxIter(c.maxIterations).Tol(c.tol).BurnInRatio(c.burnInRatio)
		if c.seed != nil {
			cfg = cfg.Seed(*c.seed)
		}
		return cfg.Done()
	default:
		return collective.RelaxationLabeling().
			Kappa(c.kappa).Alpha(c.alpha).
			MaxIter(c.maxIterations).Tol(c.tol).Done()
	}
}

// NetworkLearner is a fitted collective inference model: the learner state,
// the fitted relational learners (one per adjacency), the fitted relational
// classifier and the inference strategy, ready to re-run inference.
type NetworkLearner struct {
	state       *State
	adjacencies []adjacency.Adjacency
	learners    []relational.Learner
	classifier  models.Classifier
	inferer     collective.Inferer
	extract     models.TargetExtractor
	lastResult  collective.Result
}

// Fit trains a collective inference model.
//
// estimates is the n x p initial estimate matrix produced by an upstream
// local model (p x n with Config.ObservationsInColumns); update flags the
// entities whose estimates inference may rewrite, and the unflagged entities
// are the labeled training subset. adjacencies holds at least one relation
// over the n entities.
//
// Fit trains one relational learner per adjacency on the fixed subset,
// trains the classifier on the concatenated relational features of that
// subset, runs one collective inference pass over the whole entity set
// (mutating only the updatable rows), and returns the fitted learner.
//
// Shape violations (mask length, priors length, misaligned adjacencies)
// abort with an error before any state is mutated.
func Fit(estimates *mat.Dense, update []bool, adjacencies []adjacency.Adjacency, config *Config) (learner *NetworkLearner, err error) {
	err = exceptions.TryCatch[error](func() {
		learner = fitOrPanic(estimates, update, adjacencies, config)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "netlearn.Fit")
	}
	return learner, nil
}

func fitOrPanic(estimates *mat.Dense, update []bool, adjacencies []adjacency.Adjacency, config *Config) *NetworkLearner {
	if config == nil {
		config = NewConfig()
	}
	if config.columnMajor {
		transposed := mat.DenseCopyOf(estimates.T())
		estimates = transposed
	}
	state := NewState(estimates, update)
	if len(adjacencies) == 0 {
		shapeErrorf("netlearn.Fit: no adjacency structures")
	}
	for i, adj := range adjacencies {
		if adj.NumEntities() != state.NumEntities() {
			shapeErrorf("netlearn.Fit: adjacency #%d covers %d entities, estimates have %d rows",
				i, adj.NumEntities(), state.NumEntities())
		}
	}
	fixed := state.FixedEntities()
	if len(fixed) == 0 {
		shapeErrorf("netlearn.Fit: no fixed (labeled) entities to train on")
	}

	extract := config.extract
	if extract == nil {
		extract = models.ArgMax
	}
	fixedEstimates := copyRows(state.Estimates(), fixed)
	fixedTargets := make([]int, len(fixed))
	for i, entity := range fixed {
		fixedTargets[i] = extract(state.Estimates().RawRowView(entity))
	}

	// One relational learner per adjacency, fitted on the labeled restriction.
	numClasses := state.NumClasses()
	learners := make([]relational.Learner, len(adjacencies))
	restricted := make([]adjacency.Adjacency, len(adjacencies))
	for i, adj := range adjacencies {
		restricted[i] = adj.Restrict(fixed)
		learners[i] = relational.New(config.learnerKind).
			Priors(config.priors).
			Normalize(config.normalize).
			Fit(restricted[i], fixedEstimates, fixedTargets)
	}

	// Relational features of the fixed subset: one block per relation, in
	// adjacency order.
	features := mat.NewDense(len(fixed), len(adjacencies)*numClasses, nil)
	allFixed := make([]int, len(fixed))
	for i := range allFixed {
		allFixed[i] = i
	}
	for r, rl := range learners {
		block := features.Slice(0, len(fixed), r*numClasses, (r+1)*numClasses).(*mat.Dense)
		rl.Apply(block, restricted[r], fixedEstimates, fixedTargets, allFixed)
	}

	classifier := config.classifier
	if classifier == nil {
		classifier = &models.CentroidSoftmax{}
	}
	if err := classifier.Fit(features, fixedTargets, numClasses); err != nil {
		panic(errors.WithMessage(err, "training the relational classifier"))
	}

	learner := &NetworkLearner{
		state:       state,
		adjacencies: adjacencies,
		learners:    learners,
		classifier:  classifier,
		inferer:     config.buildInferer(),
		extract:     extract,
	}
	learner.lastResult = learner.runPass()
	return learner
}

// Infer re-runs collective inference against the learner's current state:
// re-used relational learners, re-used classifier, no retraining. Only the
// updatable rows of the estimate matrix change.
//
// Exhausting the iteration budget without reaching the tolerance is a normal
// outcome, reported through the Result, not an error.
func (l *NetworkLearner) Infer() (result collective.Result, err error) {
	err = exceptions.TryCatch[error](func() {
		result = l.runPass()
	})
	if err != nil {
		return collective.Result{}, errors.WithMessage(err, "netlearn.Infer")
	}
	l.lastResult = result
	return result, nil
}

func (l *NetworkLearner) runPass() collective.Result {
	return l.inferer.Infer(&collective.Problem{
		Adjacencies: l.adjacencies,
		Learners:    l.learners,
		Classifier:  l.classifier,
		Estimates:   l.state.Estimates(),
		Update:      l.state.Update(),
		Extract:     l.extract,
	})
}

// State returns the learner's mutable state. Callers may flip update flags or
// write new observations into the estimate matrix before calling Infer.
func (l *NetworkLearner) State() *State { return l.state }

// LastResult reports how the most recent inference pass terminated.
func (l *NetworkLearner) LastResult() collective.Result { return l.lastResult }

// Labels extracts the current class label of every entity.
func (l *NetworkLearner) Labels() []int {
	labels := make([]int, l.state.NumEntities())
	for entity := range labels {
		labels[entity] = l.extract(l.state.Estimates().RawRowView(entity))
	}
	return labels
}

// copyRows copies the selected rows of src into a fresh matrix.
func copyRows(src *mat.Dense, rows []int) *mat.Dense {
	_, cols := src.Dims()
	dst := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		dst.SetRow(i, src.RawRowView(row))
	}
	return dst
}
