// Package simulate generates synthetic crowd-labelling fixtures: a
// separable two-Gaussian example pool plus annotators with known error
// behaviours, so consensus and selection quality can be checked against
// ground truth.
package simulate

import (
	"fmt"
	"math/rand"

	"github.com/crowd-data/labelfuse/internal/crowd"
)

// Archetype is an annotator error behaviour.
type Archetype int

const (
	// Accurate always reports the true label.
	Accurate Archetype = iota
	// Noisy10 flips the true label 10% of the time.
	Noisy10
	// FeatureConditional is accurate where x[0] > 0 and guesses
	// uniformly elsewhere.
	FeatureConditional
	// LabelConditional is accurate on positive examples and guesses
	// uniformly on negatives.
	LabelConditional
	// Noisy30 flips the true label 30% of the time.
	Noisy30
)

// classMean is the per-feature offset of the two Gaussian class centres
// from the origin, symmetric so the separating boundary passes through
// zero.
const classMean = 1.5

// Pool is a synthetic labelling task: examples with hidden true labels
// and a fixed crowd of annotators. All randomness flows from the seed, so
// a pool is reproducible.
type Pool struct {
	Examples   []crowd.Example
	TrueLabels []int

	archetypes []Archetype
	rng        *rand.Rand
}

// DefaultArchetypes returns a crowd of n annotators: one accurate, one
// uniformly noisy, one feature-conditional, and a noisy majority.
func DefaultArchetypes(n int) []Archetype {
	out := make([]Archetype, n)
	for i := range out {
		switch i {
		case 0:
			out[i] = Accurate
		case 1:
			out[i] = Noisy10
		case 2:
			out[i] = FeatureConditional
		default:
			out[i] = Noisy30
		}
	}
	return out
}

// NewPool samples nExamples two-dimensional examples from two symmetric
// Gaussian classes and attaches the given annotator crowd.
func NewPool(nExamples int, archetypes []Archetype, seed int64) (*Pool, error) {
	if nExamples <= 0 {
		return nil, fmt.Errorf("example count must be positive, got %d", nExamples)
	}
	if len(archetypes) == 0 {
		return nil, fmt.Errorf("annotator crowd must not be empty")
	}

	rng := rand.New(rand.NewSource(seed))
	p := &Pool{
		Examples:   make([]crowd.Example, nExamples),
		TrueLabels: make([]int, nExamples),
		archetypes: archetypes,
		rng:        rng,
	}

	for i := 0; i < nExamples; i++ {
		label := rng.Intn(2)
		centre := -classMean
		if label == 1 {
			centre = classMean
		}
		p.Examples[i] = crowd.Example{
			Index: i,
			Features: []float64{
				centre + rng.NormFloat64(),
				centre + rng.NormFloat64(),
			},
		}
		p.TrueLabels[i] = label
	}
	return p, nil
}

// NumAnnotators returns the crowd size.
func (p *Pool) NumAnnotators() int { return len(p.archetypes) }

// SeparatingWeights returns the Bayes-optimal logistic weights for the
// two-Gaussian generator: the boundary is x[0]+x[1] = 0.
func (p *Pool) SeparatingWeights() ([]float64, float64) {
	// For unit-variance classes at +/-classMean, the posterior log-odds
	// are 2*classMean*(x[0]+x[1]).
	w := 2 * classMean
	return []float64{w, w}, 0
}

// Annotate returns annotator labellerID's label for an example, drawn
// according to the annotator's archetype.
func (p *Pool) Annotate(labellerID, exampleIndex int) (int, error) {
	if labellerID < 0 || labellerID >= len(p.archetypes) {
		return 0, fmt.Errorf("unknown annotator %d", labellerID)
	}
	if exampleIndex < 0 || exampleIndex >= len(p.Examples) {
		return 0, fmt.Errorf("unknown example %d", exampleIndex)
	}

	truth := p.TrueLabels[exampleIndex]
	switch p.archetypes[labellerID] {
	case Accurate:
		return truth, nil
	case Noisy10:
		if p.rng.Float64() < 0.1 {
			return 1 - truth, nil
		}
		return truth, nil
	case FeatureConditional:
		if p.Examples[exampleIndex].Features[0] > 0 {
			return truth, nil
		}
		return p.rng.Intn(2), nil
	case LabelConditional:
		if truth == 1 {
			return truth, nil
		}
		return p.rng.Intn(2), nil
	case Noisy30:
		if p.rng.Float64() < 0.3 {
			return 1 - truth, nil
		}
		return truth, nil
	default:
		return 0, fmt.Errorf("unknown archetype %d for annotator %d", p.archetypes[labellerID], labellerID)
	}
}

// FillMatrix has every annotator label every example, the passive
// full-coverage regime.
func (p *Pool) FillMatrix(m *crowd.LabelMatrix) error {
	for t := range p.archetypes {
		for i := range p.Examples {
			label, err := p.Annotate(t, i)
			if err != nil {
				return err
			}
			if err := m.Set(i, t, label); err != nil {
				return err
			}
		}
	}
	return nil
}

// Accuracy returns the fraction of examples whose rounded posterior
// matches the true label.
func (p *Pool) Accuracy(posteriors []float64) (float64, error) {
	if len(posteriors) != len(p.Examples) {
		return 0, fmt.Errorf("posterior count %d does not match example count %d", len(posteriors), len(p.Examples))
	}
	var correct float64
	for i, post := range posteriors {
		predicted := 0
		if post >= 0.5 {
			predicted = 1
		}
		if predicted == p.TrueLabels[i] {
			correct++
		}
	}
	return correct / float64(len(p.Examples)), nil
}
