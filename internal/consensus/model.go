// Package consensus implements the joint generative model relating
// examples, an unobserved true binary label, and multiple labellers'
// noisy annotations, plus the EM trainer that fits it.
//
// The model has two logistic parts sharing the feature space:
//
//	P(z=1 | x)          = sigma(w.x + b)         (true-label likelihood)
//	P(correct | x, t)   = sigma(g_t.x + c_t)     (labeller t reliability)
//
// An observed annotation agrees with the latent label with the labeller's
// correctness probability and flips it otherwise, so the model is trainable
// without ever observing the true label.
package consensus

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrDimensionMismatch reports a feature/weight-vector size disagreement.
// It is fatal: the caller must not proceed with a mismatched model.
var ErrDimensionMismatch = errors.New("feature dimension mismatch")

// defaultReliabilityBias is the reliability bias installed for a labeller
// never seen before: sigma(1.0) ~ 0.73, a weak prior that a new labeller
// is better than chance.
const defaultReliabilityBias = 1.0

// LabellerParams holds one labeller's reliability function: a logistic
// weight vector and bias over the feature space. When Fallback is set the
// logistic form is bypassed and FallbackRate is used as a constant
// correctness probability (degenerate-regression fallback).
type LabellerParams struct {
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	Fallback     bool      `json:"fallback,omitempty"`
	FallbackRate float64   `json:"fallback_rate,omitempty"`
}

// Parameters is a complete snapshot of the consensus model: global
// true-label likelihood weights plus per-labeller reliability functions.
// Snapshots are replaced wholesale after each training pass; nothing
// mutates a published snapshot in place.
type Parameters struct {
	Dim       int                    `json:"dim"`
	Weights   []float64              `json:"weights"`
	Bias      float64                `json:"bias"`
	Labellers map[int]LabellerParams `json:"labellers"`
}

// NewParameters creates a zeroed snapshot for the given feature dimension.
func NewParameters(dim int) *Parameters {
	return &Parameters{
		Dim:       dim,
		Weights:   make([]float64, dim),
		Labellers: make(map[int]LabellerParams),
	}
}

// DefaultLabellerParams returns the reliability function installed for a
// labeller with no fitted parameters yet.
func DefaultLabellerParams(dim int) LabellerParams {
	return LabellerParams{
		Weights: make([]float64, dim),
		Bias:    defaultReliabilityBias,
	}
}

// Clone returns a deep copy of the snapshot.
func (p *Parameters) Clone() *Parameters {
	out := &Parameters{
		Dim:       p.Dim,
		Weights:   append([]float64(nil), p.Weights...),
		Bias:      p.Bias,
		Labellers: make(map[int]LabellerParams, len(p.Labellers)),
	}
	for id, lp := range p.Labellers {
		lp.Weights = append([]float64(nil), lp.Weights...)
		out.Labellers[id] = lp
	}
	return out
}

// LabellerIDs returns the sorted labeller ids with reliability functions in
// this snapshot.
func (p *Parameters) LabellerIDs() []int {
	ids := make([]int, 0, len(p.Labellers))
	for id := range p.Labellers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// TotalDelta returns the total absolute parameter change between two
// snapshots, summed over the global weights, global bias, and every
// labeller's reliability parameters. Labellers present in only one
// snapshot contribute the full magnitude of their parameters.
func (p *Parameters) TotalDelta(other *Parameters) float64 {
	delta := math.Abs(p.Bias - other.Bias)
	for i := range p.Weights {
		delta += math.Abs(p.Weights[i] - other.Weights[i])
	}

	seen := make(map[int]bool, len(p.Labellers))
	for id, lp := range p.Labellers {
		seen[id] = true
		delta += labellerDelta(lp, other.Labellers[id])
	}
	for id, olp := range other.Labellers {
		if !seen[id] {
			delta += labellerDelta(olp, LabellerParams{})
		}
	}
	return delta
}

// labellerDelta sums absolute differences between two reliability
// parameter sets. Weight vectors of different lengths (fitted vs fallback)
// compare element-wise against zero for the missing entries.
func labellerDelta(a, b LabellerParams) float64 {
	delta := math.Abs(a.Bias-b.Bias) + math.Abs(a.FallbackRate-b.FallbackRate)
	n := len(a.Weights)
	if len(b.Weights) > n {
		n = len(b.Weights)
	}
	for i := 0; i < n; i++ {
		var av, bv float64
		if i < len(a.Weights) {
			av = a.Weights[i]
		}
		if i < len(b.Weights) {
			bv = b.Weights[i]
		}
		delta += math.Abs(av - bv)
	}
	return delta
}

// validate checks internal dimension consistency.
func (p *Parameters) validate() error {
	if len(p.Weights) != p.Dim {
		return fmt.Errorf("%w: likelihood weights have %d elements, want %d",
			ErrDimensionMismatch, len(p.Weights), p.Dim)
	}
	for id, lp := range p.Labellers {
		if lp.Fallback {
			continue
		}
		if len(lp.Weights) != p.Dim {
			return fmt.Errorf("%w: labeller %d reliability weights have %d elements, want %d",
				ErrDimensionMismatch, id, len(lp.Weights), p.Dim)
		}
	}
	return nil
}

// Model answers probability queries against one Parameters snapshot.
// It is a pure view: it holds no mutable state and is safe for concurrent
// readers.
type Model struct {
	params *Parameters
}

// NewModel wraps a parameter snapshot, validating dimension consistency.
func NewModel(params *Parameters) (*Model, error) {
	if params.Dim <= 0 {
		return nil, fmt.Errorf("%w: non-positive dimension %d", ErrDimensionMismatch, params.Dim)
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Model{params: params}, nil
}

// Params returns the underlying snapshot. Callers must treat it as
// read-only.
func (m *Model) Params() *Parameters {
	return m.params
}

// Dim returns the feature dimension the model was fitted for.
func (m *Model) Dim() int {
	return m.params.Dim
}

// LabellerIDs returns the sorted labeller ids known to the model.
func (m *Model) LabellerIDs() []int {
	return m.params.LabellerIDs()
}

// TrueLabelProbability returns P(z=1 | x) under the logistic likelihood.
func (m *Model) TrueLabelProbability(x []float64) (float64, error) {
	if len(x) != m.params.Dim {
		return 0, fmt.Errorf("%w: example has %d features, model expects %d",
			ErrDimensionMismatch, len(x), m.params.Dim)
	}
	return sigmoid(floats.Dot(m.params.Weights, x) + m.params.Bias), nil
}

// LabellerCorrectness returns the probability that the given labeller
// answers correctly on example x. Labellers without fitted parameters
// are evaluated against the default reliability function.
func (m *Model) LabellerCorrectness(labellerID int, x []float64) (float64, error) {
	if len(x) != m.params.Dim {
		return 0, fmt.Errorf("%w: example has %d features, model expects %d",
			ErrDimensionMismatch, len(x), m.params.Dim)
	}
	lp, ok := m.params.Labellers[labellerID]
	if !ok {
		lp = DefaultLabellerParams(m.params.Dim)
	}
	if lp.Fallback {
		return lp.FallbackRate, nil
	}
	return sigmoid(floats.Dot(lp.Weights, x) + lp.Bias), nil
}

// AnnotationLikelihood returns P(y = observed | x) for one labeller,
// marginalizing over the latent true label: the labeller reports the true
// label with its correctness probability and the flipped label otherwise.
// The two possible observed values sum to 1 for fixed x and labeller.
func (m *Model) AnnotationLikelihood(labellerID int, x []float64, observed int) (float64, error) {
	if observed != 0 && observed != 1 {
		return 0, fmt.Errorf("observed label must be 0 or 1, got %d", observed)
	}
	p1, err := m.TrueLabelProbability(x)
	if err != nil {
		return 0, err
	}
	c, err := m.LabellerCorrectness(labellerID, x)
	if err != nil {
		return 0, err
	}
	if observed == 1 {
		return p1*c + (1-p1)*(1-c), nil
	}
	return p1*(1-c) + (1-p1)*c, nil
}

// trueLabelProb is the unchecked fast path for TrueLabelProbability.
// Callers must have validated feature dimensions beforehand.
func (m *Model) trueLabelProb(x []float64) float64 {
	return sigmoid(floats.Dot(m.params.Weights, x) + m.params.Bias)
}

// correctness is the unchecked fast path for LabellerCorrectness.
func (m *Model) correctness(labellerID int, x []float64) float64 {
	lp, ok := m.params.Labellers[labellerID]
	if !ok {
		return sigmoid(defaultReliabilityBias)
	}
	if lp.Fallback {
		return lp.FallbackRate
	}
	return sigmoid(floats.Dot(lp.Weights, x) + lp.Bias)
}

// sigmoid is the numerically stable logistic function.
func sigmoid(z float64) float64 {
	if z >= 0 {
		e := math.Exp(-z)
		return 1 / (1 + e)
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// clampProb clamps a probability to [eps, 1-eps]. Used only at publication
// edges (before taking a logarithm), never mid-computation.
func clampProb(p, eps float64) float64 {
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}
