// Package crowd holds the data model shared by the consensus and active
// learning layers: feature vectors, per-labeller annotations, and the
// sparse label matrix collected during a labelling session.
package crowd

import (
	"fmt"
	"sort"
	"sync"
)

// Example is a single unlabelled item: a fixed-dimension feature vector
// identified by a stable integer index. Examples are immutable once created.
type Example struct {
	Index    int
	Features []float64
}

// Annotation is one labeller's binary answer for one example.
type Annotation struct {
	ExampleIndex int
	LabellerID   int
	Label        int // 0 or 1
}

// LabelMatrix is the sparse mapping from (example index, labeller id) to an
// observed binary label. Not every labeller labels every example; the matrix
// grows monotonically during a session. A labeller re-labelling the same
// example overwrites the previous value (last write wins).
//
// The matrix assumes one writer applying annotations between training
// passes; training reads an immutable Snapshot taken at pass start.
type LabelMatrix struct {
	mu     sync.RWMutex
	labels map[int]map[int]int // example index -> labeller id -> label
}

// NewLabelMatrix creates an empty label matrix.
func NewLabelMatrix() *LabelMatrix {
	return &LabelMatrix{labels: make(map[int]map[int]int)}
}

// Set records one annotation, overwriting any previous label from the same
// labeller on the same example. Labels must be 0 or 1.
func (m *LabelMatrix) Set(exampleIndex, labellerID, label int) error {
	if label != 0 && label != 1 {
		return fmt.Errorf("label must be 0 or 1, got %d", label)
	}
	if exampleIndex < 0 {
		return fmt.Errorf("example index must be non-negative, got %d", exampleIndex)
	}
	if labellerID < 0 {
		return fmt.Errorf("labeller id must be non-negative, got %d", labellerID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.labels[exampleIndex]
	if !ok {
		row = make(map[int]int)
		m.labels[exampleIndex] = row
	}
	row[labellerID] = label
	return nil
}

// Get returns the label recorded by labellerID for exampleIndex, and whether
// one exists.
func (m *LabelMatrix) Get(exampleIndex, labellerID int) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.labels[exampleIndex]
	if !ok {
		return 0, false
	}
	label, ok := row[labellerID]
	return label, ok
}

// CountFor returns how many labellers have annotated the given example.
func (m *LabelMatrix) CountFor(exampleIndex int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.labels[exampleIndex])
}

// LabellerIDs returns the sorted set of labeller ids present anywhere in
// the matrix.
func (m *LabelMatrix) LabellerIDs() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int]bool)
	for _, row := range m.labels {
		for id := range row {
			seen[id] = true
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Snapshot returns a deep copy of the matrix contents for a training pass.
// The snapshot never changes after creation, so concurrent readers never
// observe a half-applied annotation batch.
func (m *LabelMatrix) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labels := make(map[int]map[int]int, len(m.labels))
	total := 0
	for i, row := range m.labels {
		copied := make(map[int]int, len(row))
		for id, label := range row {
			copied[id] = label
		}
		labels[i] = copied
		total += len(row)
	}
	return &Snapshot{labels: labels, total: total}
}

// Snapshot is an immutable copy of a LabelMatrix taken at the start of a
// training pass.
type Snapshot struct {
	labels map[int]map[int]int
	total  int
}

// AnnotationsFor returns the labeller id -> label map for one example.
// The returned map must not be modified.
func (s *Snapshot) AnnotationsFor(exampleIndex int) map[int]int {
	return s.labels[exampleIndex]
}

// Get returns the label recorded by labellerID for exampleIndex, and whether
// one exists.
func (s *Snapshot) Get(exampleIndex, labellerID int) (int, bool) {
	row, ok := s.labels[exampleIndex]
	if !ok {
		return 0, false
	}
	label, ok := row[labellerID]
	return label, ok
}

// TotalAnnotations returns the number of (example, labeller) pairs recorded.
func (s *Snapshot) TotalAnnotations() int {
	return s.total
}

// LabellerIDs returns the sorted set of labeller ids in the snapshot.
func (s *Snapshot) LabellerIDs() []int {
	seen := make(map[int]bool)
	for _, row := range s.labels {
		for id := range row {
			seen[id] = true
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ExampleIndices returns the sorted indices of examples with at least one
// annotation.
func (s *Snapshot) ExampleIndices() []int {
	indices := make([]int, 0, len(s.labels))
	for i := range s.labels {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}
