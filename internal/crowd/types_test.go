package crowd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelMatrixSetGet(t *testing.T) {
	t.Parallel()

	m := NewLabelMatrix()
	require.NoError(t, m.Set(0, 1, 1))
	require.NoError(t, m.Set(0, 2, 0))

	label, ok := m.Get(0, 1)
	require.True(t, ok)
	assert.Equal(t, 1, label)

	label, ok = m.Get(0, 2)
	require.True(t, ok)
	assert.Equal(t, 0, label)

	_, ok = m.Get(0, 3)
	assert.False(t, ok)
	_, ok = m.Get(5, 1)
	assert.False(t, ok)
}

func TestLabelMatrixOverwriteLastWins(t *testing.T) {
	t.Parallel()

	m := NewLabelMatrix()
	require.NoError(t, m.Set(3, 7, 0))
	require.NoError(t, m.Set(3, 7, 1))

	label, ok := m.Get(3, 7)
	require.True(t, ok)
	assert.Equal(t, 1, label)
	assert.Equal(t, 1, m.CountFor(3), "overwrite must not increase the annotation count")
}

func TestLabelMatrixRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	m := NewLabelMatrix()
	assert.Error(t, m.Set(0, 0, 2))
	assert.Error(t, m.Set(0, 0, -1))
	assert.Error(t, m.Set(-1, 0, 1))
	assert.Error(t, m.Set(0, -1, 1))
}

func TestLabelMatrixLabellerIDsSorted(t *testing.T) {
	t.Parallel()

	m := NewLabelMatrix()
	require.NoError(t, m.Set(0, 9, 1))
	require.NoError(t, m.Set(1, 2, 0))
	require.NoError(t, m.Set(2, 5, 1))

	assert.Equal(t, []int{2, 5, 9}, m.LabellerIDs())
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	t.Parallel()

	m := NewLabelMatrix()
	require.NoError(t, m.Set(0, 1, 1))

	snap := m.Snapshot()
	require.NoError(t, m.Set(0, 2, 0))
	require.NoError(t, m.Set(1, 1, 1))

	assert.Equal(t, 1, snap.TotalAnnotations())
	assert.Len(t, snap.AnnotationsFor(0), 1)
	assert.Nil(t, snap.AnnotationsFor(1))

	// The live matrix sees the new annotations.
	assert.Equal(t, 2, m.CountFor(0))
}

func TestSnapshotExampleIndicesSorted(t *testing.T) {
	t.Parallel()

	m := NewLabelMatrix()
	require.NoError(t, m.Set(4, 0, 1))
	require.NoError(t, m.Set(1, 0, 0))
	require.NoError(t, m.Set(2, 0, 1))

	snap := m.Snapshot()
	assert.Equal(t, []int{1, 2, 4}, snap.ExampleIndices())
}
