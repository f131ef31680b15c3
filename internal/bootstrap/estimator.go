// Package bootstrap estimates a black-box classifier's predictive
// uncertainty by nonparametric resampling. The classifier is treated as a
// capability interface (fit/predict); nothing inspects its internals, so
// any model family works, including ones with no calibrated probability.
//
// Both scores assume the classifier is smooth: small training-set
// perturbations should yield small prediction changes, or the resampling
// approximation is meaningless. This is a property of the supplied
// classifier and is not checkable here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/crowd-data/labelfuse/internal/config"
)

// ErrReplicateTraining reports a classifier that repeatedly failed to fit
// bootstrap replicates within the retry budget. It is fatal: dropping
// replicates instead would bias the variance estimate, so the supplied
// classifier is deemed unsuitable for bootstrap estimation on this data.
var ErrReplicateTraining = errors.New("replicate training failed")

// Classifier is the capability interface a base classifier must satisfy.
// Fit trains on the given rows; Predict returns the predicted binary
// label for a single point.
type Classifier interface {
	Fit(features [][]float64, labels []int) error
	Predict(x []float64) int
}

// Factory creates a fresh untrained classifier instance. Each bootstrap
// replicate trains its own instance, so factories must return independent
// values.
type Factory func() Classifier

// Config holds configuration for the bootstrap estimator.
type Config struct {
	Replicates int   // Resample count k; higher reduces estimate variance at proportional cost
	MaxRetries int   // Per-replicate retries on degenerate resamples
	Workers    int   // Replicate-training parallelism
	Seed       int64 // Base seed for reproducible resampling
}

// DefaultConfig returns estimator configuration from the canonical tuning
// defaults file. Panics if the file cannot be found; intended for tests.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Replicates: cfg.GetBootstrapReplicates(),
		MaxRetries: cfg.GetBootstrapMaxRetries(),
		Workers:    cfg.GetBootstrapWorkers(),
	}
}

// Estimator scores points by training classifier replicates on bootstrap
// resamples of a labelled index set. Every scoring call is independent
// and re-resamples; nothing is cached between calls.
type Estimator struct {
	factory Factory
	cfg     Config
}

// NewEstimator creates an estimator around a classifier factory.
func NewEstimator(factory Factory, cfg Config) (*Estimator, error) {
	if factory == nil {
		return nil, errors.New("classifier factory must not be nil")
	}
	if cfg.Replicates < 1 {
		return nil, fmt.Errorf("replicate count must be at least 1, got %d", cfg.Replicates)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("retry budget must be non-negative, got %d", cfg.MaxRetries)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Estimator{factory: factory, cfg: cfg}, nil
}

// Uncertainty estimates the classifier's predictive uncertainty at x as
// the sample variance of the k replicate predictions. Predictions are
// binary, so this reduces to p(1-p) where p is the fraction of replicates
// predicting label 1: 0 when all replicates agree, maximal (0.25) at an
// even split.
func (e *Estimator) Uncertainty(ctx context.Context, features [][]float64, labels []int, trainIdx []int, x []float64) (float64, error) {
	votes, err := e.replicateVotes(ctx, features, labels, trainIdx, x)
	if err != nil {
		return 0, err
	}
	p := stat.Mean(votes, nil)
	return p * (1 - p), nil
}

// MinExpError estimates the expected classifier error if x were added to
// the training set. The full-set classifier predicts label l for x; two
// augmented classifiers are trained, one with (x, l) and one with
// (x, 1-l), and evaluated on the held-out index set. The score weights
// the two error rates by the replicate-vote confidence in l:
//
//	score = p̂·e_right + (1-p̂)·e_wrong
//
// which always lies between the two error rates.
func (e *Estimator) MinExpError(ctx context.Context, features [][]float64, labels []int, trainIdx []int, x []float64, holdoutIdx []int) (float64, error) {
	if len(holdoutIdx) == 0 {
		return 0, errors.New("held-out evaluation set must not be empty")
	}

	votes, err := e.replicateVotes(ctx, features, labels, trainIdx, x)
	if err != nil {
		return 0, err
	}

	// Predicted label from the classifier trained on the full set.
	full := e.factory()
	trainFeatures, trainLabels := gatherRows(features, labels, trainIdx)
	if err := full.Fit(trainFeatures, trainLabels); err != nil {
		return 0, fmt.Errorf("full training set fit: %w", err)
	}
	predicted := full.Predict(x)

	// Fraction of replicates agreeing with the full-set prediction.
	var agree float64
	for _, v := range votes {
		if int(v) == predicted {
			agree++
		}
	}
	pHat := agree / float64(len(votes))

	eRight, err := e.augmentedError(features, labels, trainIdx, x, predicted, holdoutIdx)
	if err != nil {
		return 0, err
	}
	eWrong, err := e.augmentedError(features, labels, trainIdx, x, 1-predicted, holdoutIdx)
	if err != nil {
		return 0, err
	}

	return pHat*eRight + (1-pHat)*eWrong, nil
}

// replicateVotes trains one classifier per bootstrap resample of trainIdx
// and collects the k predicted labels for x. Replicates train in parallel;
// votes are merged by simple aggregation so replicate ordering is
// irrelevant. A replicate whose fit fails (e.g. a single-class resample)
// is retried with a fresh resample up to the retry budget; persistent
// failure surfaces as ErrReplicateTraining.
func (e *Estimator) replicateVotes(ctx context.Context, features [][]float64, labels []int, trainIdx []int, x []float64) ([]float64, error) {
	if len(trainIdx) == 0 {
		return nil, errors.New("training index set must not be empty")
	}
	if len(features) != len(labels) {
		return nil, fmt.Errorf("features and labels must have equal length: %d vs %d", len(features), len(labels))
	}

	votes := make([]float64, e.cfg.Replicates)
	errs := make([]error, e.cfg.Replicates)

	workers := e.cfg.Workers
	if workers > e.cfg.Replicates {
		workers = e.cfg.Replicates
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				votes[r], errs[r] = e.trainReplicate(ctx, features, labels, trainIdx, x, r)
			}
		}()
	}
	for r := 0; r < e.cfg.Replicates; r++ {
		jobs <- r
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return votes, nil
}

// trainReplicate draws resamples and trains classifiers until one fit
// succeeds or the retry budget is exhausted. Each replicate uses its own
// seeded source so results are reproducible and goroutine-safe.
func (e *Estimator) trainReplicate(ctx context.Context, features [][]float64, labels []int, trainIdx []int, x []float64, replicate int) (float64, error) {
	rng := rand.New(rand.NewSource(e.cfg.Seed + int64(replicate)))

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		resample := make([]int, len(trainIdx))
		for i := range resample {
			resample[i] = trainIdx[rng.Intn(len(trainIdx))]
		}

		clf := e.factory()
		repFeatures, repLabels := gatherRows(features, labels, resample)
		if err := clf.Fit(repFeatures, repLabels); err != nil {
			lastErr = err
			continue
		}
		return float64(clf.Predict(x)), nil
	}
	return 0, fmt.Errorf("%w: replicate %d exhausted %d retries: %v",
		ErrReplicateTraining, replicate, e.cfg.MaxRetries, lastErr)
}

// augmentedError trains a classifier on trainIdx plus the point (x, label)
// and returns its error rate on the held-out index set.
func (e *Estimator) augmentedError(features [][]float64, labels []int, trainIdx []int, x []float64, label int, holdoutIdx []int) (float64, error) {
	augFeatures, augLabels := gatherRows(features, labels, trainIdx)
	augFeatures = append(augFeatures, x)
	augLabels = append(augLabels, label)

	clf := e.factory()
	if err := clf.Fit(augFeatures, augLabels); err != nil {
		return 0, fmt.Errorf("augmented training set fit (label %d): %w", label, err)
	}

	var wrong float64
	for _, i := range holdoutIdx {
		if clf.Predict(features[i]) != labels[i] {
			wrong++
		}
	}
	return wrong / float64(len(holdoutIdx)), nil
}

// gatherRows copies the selected rows into dense slices for a Fit call.
func gatherRows(features [][]float64, labels []int, idx []int) ([][]float64, []int) {
	outFeatures := make([][]float64, len(idx))
	outLabels := make([]int, len(idx))
	for i, j := range idx {
		outFeatures[i] = features[j]
		outLabels[i] = labels[j]
	}
	return outFeatures, outLabels
}
