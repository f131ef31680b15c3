package active

import (
	"context"
	"errors"

	"github.com/crowd-data/labelfuse/internal/bootstrap"
	"github.com/crowd-data/labelfuse/internal/consensus"
	"github.com/crowd-data/labelfuse/internal/crowd"
)

// Scorer ranks candidate examples for annotation. Higher scores mean more
// informative; the selector maximizes. Implementations must be safe for
// repeated calls within a round.
type Scorer interface {
	Name() string
	Score(ctx context.Context, ex crowd.Example) (float64, error)
}

// ConsensusScorer ranks examples by posterior uncertainty under a fitted
// consensus model: the score is -(0.5-p)^2, so the example whose predicted
// label probability sits closest to 0.5 scores highest.
type ConsensusScorer struct {
	model *consensus.Model
}

func NewConsensusScorer(model *consensus.Model) (*ConsensusScorer, error) {
	if model == nil {
		return nil, errors.New("consensus model must not be nil")
	}
	return &ConsensusScorer{model: model}, nil
}

func (s *ConsensusScorer) Name() string { return "consensus" }

func (s *ConsensusScorer) Score(_ context.Context, ex crowd.Example) (float64, error) {
	p, err := s.model.TrueLabelProbability(ex.Features)
	if err != nil {
		return 0, err
	}
	d := 0.5 - p
	return -(d * d), nil
}

// UncertaintyScorer ranks examples by bootstrap vote variance over a fixed
// labelled pool. The pool slices are referenced, not copied; callers must
// not mutate them while the scorer is in use.
type UncertaintyScorer struct {
	estimator *bootstrap.Estimator
	features  [][]float64
	labels    []int
	trainIdx  []int
}

func NewUncertaintyScorer(est *bootstrap.Estimator, features [][]float64, labels []int, trainIdx []int) (*UncertaintyScorer, error) {
	if est == nil {
		return nil, errors.New("bootstrap estimator must not be nil")
	}
	return &UncertaintyScorer{estimator: est, features: features, labels: labels, trainIdx: trainIdx}, nil
}

func (s *UncertaintyScorer) Name() string { return "bootstrap-uncertainty" }

func (s *UncertaintyScorer) Score(ctx context.Context, ex crowd.Example) (float64, error) {
	return s.estimator.Uncertainty(ctx, s.features, s.labels, s.trainIdx, ex.Features)
}

// MinExpErrorScorer ranks examples by the expected classifier error were
// they labelled next, evaluated against a held-out index set.
type MinExpErrorScorer struct {
	estimator  *bootstrap.Estimator
	features   [][]float64
	labels     []int
	trainIdx   []int
	holdoutIdx []int
}

func NewMinExpErrorScorer(est *bootstrap.Estimator, features [][]float64, labels []int, trainIdx, holdoutIdx []int) (*MinExpErrorScorer, error) {
	if est == nil {
		return nil, errors.New("bootstrap estimator must not be nil")
	}
	if len(holdoutIdx) == 0 {
		return nil, errors.New("held-out evaluation set must not be empty")
	}
	return &MinExpErrorScorer{
		estimator:  est,
		features:   features,
		labels:     labels,
		trainIdx:   trainIdx,
		holdoutIdx: holdoutIdx,
	}, nil
}

func (s *MinExpErrorScorer) Name() string { return "bootstrap-minexperror" }

func (s *MinExpErrorScorer) Score(ctx context.Context, ex crowd.Example) (float64, error) {
	return s.estimator.MinExpError(ctx, s.features, s.labels, s.trainIdx, ex.Features, s.holdoutIdx)
}
