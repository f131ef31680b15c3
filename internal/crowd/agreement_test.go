package crowd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAgreementEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LabellerAgreement{}, ComputeAgreement(nil))
	assert.Equal(t, LabellerAgreement{}, ComputeAgreement(NewLabelMatrix().Snapshot()))
}

func TestComputeAgreementSingleLabeller(t *testing.T) {
	t.Parallel()

	m := NewLabelMatrix()
	require.NoError(t, m.Set(0, 1, 1))
	require.NoError(t, m.Set(1, 1, 0))

	got := ComputeAgreement(m.Snapshot())
	assert.Equal(t, 2, got.TotalExamples)
	assert.Equal(t, 0, got.MultiLabelledCount)
	assert.Equal(t, 0.0, got.AgreementRate)
}

func TestComputeAgreementMixed(t *testing.T) {
	t.Parallel()

	m := NewLabelMatrix()
	// Example 0: two labellers agree.
	require.NoError(t, m.Set(0, 1, 1))
	require.NoError(t, m.Set(0, 2, 1))
	// Example 1: two labellers disagree.
	require.NoError(t, m.Set(1, 1, 0))
	require.NoError(t, m.Set(1, 2, 1))
	// Example 2: one labeller only.
	require.NoError(t, m.Set(2, 3, 0))

	got := ComputeAgreement(m.Snapshot())
	assert.Equal(t, 3, got.TotalExamples)
	assert.Equal(t, 2, got.MultiLabelledCount)
	assert.Equal(t, 1, got.DisagreementCount)
	assert.InDelta(t, 0.5, got.AgreementRate, 1e-12)
}
