package consensus

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/crowd-data/labelfuse/internal/config"
	"github.com/crowd-data/labelfuse/internal/crowd"
)

// StopReason records which condition ended a training pass.
type StopReason string

const (
	StopConverged     StopReason = "converged"      // parameter delta fell below tolerance
	StopMaxIterations StopReason = "max_iterations" // iteration budget exhausted
	StopCancelled     StopReason = "cancelled"      // context cancelled mid-pass
)

// TrainerConfig holds configuration parameters for the EM trainer.
type TrainerConfig struct {
	Tolerance            float64 // Total absolute parameter change below which training stops
	MaxIterations        int     // EM iteration budget
	Workers              int     // E-step parallelism
	LearningRate         float64 // Gradient step size for M-step regressions
	RegressionIterations int     // Gradient iterations per M-step fit
	L2Penalty            float64 // Ridge penalty on regression weights
	ProbeSize            int     // Probe examples used to validate the final snapshot
	EpsilonClamp         float64 // Publication-edge probability clamp (before logarithms)
}

// DefaultTrainerConfig returns trainer configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found — intended for tests and binaries
// that have already validated config availability.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfigFromTuning(config.MustLoadDefaultConfig())
}

// TrainerConfigFromTuning builds a TrainerConfig from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
func TrainerConfigFromTuning(cfg *config.TuningConfig) TrainerConfig {
	return TrainerConfig{
		Tolerance:            cfg.GetTolerance(),
		MaxIterations:        cfg.GetMaxIterations(),
		Workers:              cfg.GetTrainWorkers(),
		LearningRate:         cfg.GetLearningRate(),
		RegressionIterations: cfg.GetRegressionIterations(),
		L2Penalty:            cfg.GetL2Penalty(),
		ProbeSize:            cfg.GetProbeSize(),
		EpsilonClamp:         cfg.GetEpsilonClamp(),
	}
}

// IterationStats records one EM iteration for convergence diagnostics.
type IterationStats struct {
	Iteration     int     `json:"iteration"`
	ParamDelta    float64 `json:"param_delta"`
	LogLikelihood float64 `json:"log_likelihood"`
}

// Result is the outcome of one training pass. Non-convergence within the
// iteration budget is not an error: the best snapshot is returned with
// Converged false and StopReason set to the triggering condition.
type Result struct {
	Params     *Parameters
	Converged  bool
	StopReason StopReason
	Iterations int
	FinalDelta float64

	// Posteriors holds P(z=1 | x, annotations) per example, indexed by
	// position in the examples slice passed to Fit. Recomputed every
	// pass, never persisted.
	Posteriors []float64

	History []IterationStats
}

// Trainer fits Parameters from an example set and a label-matrix snapshot
// by EM: the E-step computes the posterior over each example's latent true
// label, the M-step refits the likelihood weights (soft targets) and each
// labeller's reliability weights (agreement indicators).
//
// Each pass reads immutable inputs and produces a new Parameters snapshot,
// so concurrent readers of the previous snapshot are never disturbed.
type Trainer struct {
	Config TrainerConfig
}

// NewTrainer creates a trainer with the given configuration.
func NewTrainer(cfg TrainerConfig) *Trainer {
	return &Trainer{Config: cfg}
}

// Fit runs EM until convergence or the iteration budget. prev seeds the
// optimization; pass nil to start from zeroed parameters. On numeric
// failure of the final snapshot (probe validation), an error is returned
// and the caller should keep its previous snapshot.
func (t *Trainer) Fit(ctx context.Context, examples []crowd.Example, labels *crowd.Snapshot, prev *Parameters) (*Result, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("cannot train on an empty example set")
	}
	dim := len(examples[0].Features)
	if dim == 0 {
		return nil, fmt.Errorf("%w: examples have zero features", ErrDimensionMismatch)
	}
	for _, ex := range examples {
		if len(ex.Features) != dim {
			return nil, fmt.Errorf("%w: example %d has %d features, want %d",
				ErrDimensionMismatch, ex.Index, len(ex.Features), dim)
		}
	}

	current := prev
	if current == nil {
		current = NewParameters(dim)
	} else {
		if current.Dim != dim {
			return nil, fmt.Errorf("%w: previous snapshot has dimension %d, examples have %d",
				ErrDimensionMismatch, current.Dim, dim)
		}
		current = current.Clone()
	}

	// Lazily install default reliability functions for labellers the
	// previous snapshot has never seen. Existing entries are kept as the
	// starting point; the pass refits everything.
	for _, id := range labels.LabellerIDs() {
		if _, ok := current.Labellers[id]; !ok {
			current.Labellers[id] = DefaultLabellerParams(dim)
		}
	}

	result := &Result{StopReason: StopMaxIterations}

	for iter := 0; iter < t.Config.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			result.StopReason = StopCancelled
			break
		}

		model, err := NewModel(current)
		if err != nil {
			return nil, err
		}

		posteriors, loglik := t.estep(model, examples, labels)
		next := t.mstep(current, examples, labels, posteriors)

		delta := next.TotalDelta(current)
		result.Iterations = iter + 1
		result.FinalDelta = delta
		result.Posteriors = posteriors
		result.History = append(result.History, IterationStats{
			Iteration:     iter + 1,
			ParamDelta:    delta,
			LogLikelihood: loglik,
		})

		current = next
		if delta < t.Config.Tolerance {
			result.Converged = true
			result.StopReason = StopConverged
			break
		}
	}

	if !result.Converged && result.StopReason == StopMaxIterations {
		log.Printf("WARNING: consensus training stopped after %d iterations without converging (delta=%g, tolerance=%g)",
			result.Iterations, result.FinalDelta, t.Config.Tolerance)
	}

	if err := t.validateSnapshot(current, examples); err != nil {
		return nil, err
	}

	result.Params = current
	return result, nil
}

// estep computes the posterior probability that each example's latent true
// label is 1, combining the likelihood term with the product of
// annotation-likelihood terms over annotating labellers. Examples with
// zero annotations use the bare likelihood estimate. Also returns the
// total marginal log-likelihood of the observed annotations.
//
// The work is split evenly across Config.Workers goroutines; each worker
// reads the immutable model/snapshot and writes disjoint output ranges.
func (t *Trainer) estep(model *Model, examples []crowd.Example, labels *crowd.Snapshot) ([]float64, float64) {
	posteriors := make([]float64, len(examples))
	partials := make([]float64, len(examples))
	eps := t.Config.EpsilonClamp

	workers := t.Config.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(examples) {
		workers = len(examples)
	}
	chunk := (len(examples) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(examples) {
			end = len(examples)
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				x := examples[i].Features
				p1 := model.trueLabelProb(x)

				// Log-space accumulation: many annotations would
				// underflow a direct product. Clamping happens only
				// here, at the logarithm boundary.
				logA := math.Log(clampProb(p1, eps))
				logB := math.Log(clampProb(1-p1, eps))
				for id, y := range labels.AnnotationsFor(examples[i].Index) {
					c := model.correctness(id, x)
					if y == 1 {
						logA += math.Log(clampProb(c, eps))
						logB += math.Log(clampProb(1-c, eps))
					} else {
						logA += math.Log(clampProb(1-c, eps))
						logB += math.Log(clampProb(c, eps))
					}
				}

				posteriors[i] = sigmoid(logA - logB)
				partials[i] = logSumExp(logA, logB)
			}
		}(start, end)
	}
	wg.Wait()

	var loglik float64
	for _, p := range partials {
		loglik += p
	}
	return posteriors, loglik
}

// mstep re-estimates all parameters from the E-step posteriors, producing
// a fresh snapshot. The previous snapshot is never mutated.
func (t *Trainer) mstep(current *Parameters, examples []crowd.Example, labels *crowd.Snapshot, posteriors []float64) *Parameters {
	next := current.Clone()
	regCfg := regressionConfig{
		LearningRate: t.Config.LearningRate,
		Iterations:   t.Config.RegressionIterations,
		L2Penalty:    t.Config.L2Penalty,
	}

	features := make([][]float64, len(examples))
	for i := range examples {
		features[i] = examples[i].Features
	}

	// Likelihood weights: soft-target fit against the posteriors.
	unit := make([]float64, len(examples))
	for i := range unit {
		unit[i] = 1
	}
	if weights, bias, err := fitWeightedLogistic(features, posteriors, unit, current.Dim, regCfg); err == nil {
		next.Weights = weights
		next.Bias = bias
	}
	// Degenerate likelihood targets (all posteriors one class) keep the
	// previous weights; the labeller fits below can still move.

	// Reliability weights: per labeller, fit the agreement indicator
	// between the observed annotation and the posterior-rounded label,
	// restricted to the examples that labeller annotated. Labellers with
	// zero annotations are skipped and retain their previous parameters.
	for _, id := range labels.LabellerIDs() {
		var labellerFeatures [][]float64
		var targets, sampleWeights []float64
		var agreeMass float64

		for i := range examples {
			y, ok := labels.Get(examples[i].Index, id)
			if !ok {
				continue
			}
			rounded := 0
			if posteriors[i] >= 0.5 {
				rounded = 1
			}
			agree := 0.0
			if y == rounded {
				agree = 1.0
			}
			labellerFeatures = append(labellerFeatures, features[i])
			targets = append(targets, agree)
			sampleWeights = append(sampleWeights, 1)
			agreeMass += agree
		}
		if len(targets) == 0 {
			continue
		}

		weights, bias, err := fitWeightedLogistic(labellerFeatures, targets, sampleWeights, current.Dim, regCfg)
		if err != nil {
			// All-one-class agreement targets: fall back to a constant
			// reliability estimate rather than failing the pass.
			next.Labellers[id] = LabellerParams{
				Fallback:     true,
				FallbackRate: agreeMass / float64(len(targets)),
			}
			continue
		}
		next.Labellers[id] = LabellerParams{Weights: weights, Bias: bias}
	}

	return next
}

// validateSnapshot evaluates the snapshot on a probe subset and rejects it
// if any published probability is non-finite or outside [0, 1]. A rejected
// snapshot is a fatal data-model violation: the caller keeps its previous
// snapshot rather than publishing this one.
func (t *Trainer) validateSnapshot(params *Parameters, examples []crowd.Example) error {
	model, err := NewModel(params)
	if err != nil {
		return err
	}

	probes := t.Config.ProbeSize
	if probes < 1 || probes > len(examples) {
		probes = len(examples)
	}
	ids := params.LabellerIDs()

	for i := 0; i < probes; i++ {
		x := examples[i].Features
		p := model.trueLabelProb(x)
		if !validProbability(p) {
			return fmt.Errorf("snapshot validation failed: true-label probability %g for example %d", p, examples[i].Index)
		}
		for _, id := range ids {
			c := model.correctness(id, x)
			if !validProbability(c) {
				return fmt.Errorf("snapshot validation failed: correctness %g for labeller %d on example %d", c, id, examples[i].Index)
			}
		}
	}
	return nil
}

func validProbability(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// logSumExp computes log(exp(a) + exp(b)) without overflow.
func logSumExp(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}
