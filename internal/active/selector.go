// Package active implements two-stage selection of (example, labeller)
// pairs for an annotation round: first the most informative example under
// a pluggable scoring backend, then the labeller predicted to annotate
// that specific example most reliably. Selections are emitted as
// SelectionRound records; annotations come back out-of-band into the
// LabelMatrix before the next round.
package active

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/crowd-data/labelfuse/internal/crowd"
)

var (
	// ErrExhaustedPool reports that no example remains under its
	// redundancy cap. Control flow, not a failure.
	ErrExhaustedPool = errors.New("no eligible examples remain")

	// ErrNoLabellerAvailable reports that every labeller has already been
	// used this round. The caller may skip the round or begin a new one.
	ErrNoLabellerAvailable = errors.New("no labeller available this round")
)

// ReliabilityModel predicts per-labeller correctness on a specific
// example. A fitted consensus model satisfies it.
type ReliabilityModel interface {
	LabellerIDs() []int
	LabellerCorrectness(labellerID int, x []float64) (float64, error)
}

// SelectionRound is one append-only log entry: the pair chosen in a
// round, the score that chose it, and the backend that produced the
// score.
type SelectionRound struct {
	RoundID      string  `json:"round_id"`
	Round        int     `json:"round"`
	ExampleIndex int     `json:"example_index"`
	LabellerID   int     `json:"labeller_id"`
	Score        float64 `json:"score"`
	Backend      string  `json:"backend"`
	UnixNanos    int64   `json:"unix_nanos"`
}

// Selector picks (example, labeller) pairs. It is synchronous and
// single-decision-per-call; a Next call may block on the scoring
// backend's classifier work, so callers needing bounded latency cancel
// via the context.
type Selector struct {
	scorer      Scorer
	reliability ReliabilityModel
	planner     RedundancyPlanner
	matrix      *crowd.LabelMatrix
	examples    []crowd.Example

	round   int
	used    map[int]bool // labellers already chosen this round
	pending map[int]int  // selections this round not yet in the matrix
}

// NewSelector creates a selector over a fixed example pool.
func NewSelector(scorer Scorer, reliability ReliabilityModel, planner RedundancyPlanner, matrix *crowd.LabelMatrix, examples []crowd.Example) (*Selector, error) {
	if scorer == nil {
		return nil, errors.New("scorer must not be nil")
	}
	if reliability == nil {
		return nil, errors.New("reliability model must not be nil")
	}
	if planner == nil {
		return nil, errors.New("redundancy planner must not be nil")
	}
	if matrix == nil {
		return nil, errors.New("label matrix must not be nil")
	}
	if len(examples) == 0 {
		return nil, errors.New("example pool must not be empty")
	}

	// Scan order is tie-break order, so keep the pool sorted by index.
	pool := make([]crowd.Example, len(examples))
	copy(pool, examples)
	sort.Slice(pool, func(i, j int) bool { return pool[i].Index < pool[j].Index })

	return &Selector{
		scorer:      scorer,
		reliability: reliability,
		planner:     planner,
		matrix:      matrix,
		examples:    pool,
		used:        map[int]bool{},
		pending:     map[int]int{},
	}, nil
}

// BeginRound starts the next annotation round, clearing the
// one-labeller-once set and the in-flight selection counts. Annotations
// for the previous round's selections are expected to have been pushed
// into the matrix by now.
func (s *Selector) BeginRound() int {
	s.round++
	s.used = map[int]bool{}
	s.pending = map[int]int{}
	return s.round
}

// Next chooses one (example, labeller) pair. The example is the eligible
// one with the highest backend score; the labeller is the unused one with
// the highest predicted correctness on that example. Both stages break
// ties towards the lowest index or id by scanning in ascending order and
// replacing the incumbent only on a strictly greater score.
func (s *Selector) Next(ctx context.Context) (*SelectionRound, error) {
	if s.round == 0 {
		s.BeginRound()
	}

	bestIdx := -1
	bestScore := 0.0
	for _, ex := range s.examples {
		if s.matrix.CountFor(ex.Index)+s.pending[ex.Index] >= s.planner.MaxLabels(ex.Index) {
			continue
		}
		score, err := s.scorer.Score(ctx, ex)
		if err != nil {
			return nil, fmt.Errorf("score example %d: %w", ex.Index, err)
		}
		if bestIdx < 0 || score > bestScore {
			bestIdx = ex.Index
			bestScore = score
		}
	}
	if bestIdx < 0 {
		return nil, ErrExhaustedPool
	}

	x := s.exampleFeatures(bestIdx)
	bestLabeller := -1
	bestCorrectness := 0.0
	for _, id := range s.reliability.LabellerIDs() {
		if s.used[id] {
			continue
		}
		c, err := s.reliability.LabellerCorrectness(id, x)
		if err != nil {
			return nil, fmt.Errorf("labeller %d correctness: %w", id, err)
		}
		if bestLabeller < 0 || c > bestCorrectness {
			bestLabeller = id
			bestCorrectness = c
		}
	}
	if bestLabeller < 0 {
		return nil, ErrNoLabellerAvailable
	}

	s.used[bestLabeller] = true
	s.pending[bestIdx]++

	return &SelectionRound{
		RoundID:      "rnd_" + uuid.NewString(),
		Round:        s.round,
		ExampleIndex: bestIdx,
		LabellerID:   bestLabeller,
		Score:        bestScore,
		Backend:      s.scorer.Name(),
		UnixNanos:    time.Now().UnixNano(),
	}, nil
}

func (s *Selector) exampleFeatures(index int) []float64 {
	for _, ex := range s.examples {
		if ex.Index == index {
			return ex.Features
		}
	}
	return nil
}
