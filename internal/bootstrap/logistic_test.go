package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separableData() ([][]float64, []int) {
	features := [][]float64{
		{-2.0, -1.5}, {-1.5, -2.0}, {-1.0, -1.0}, {-2.5, -0.5},
		{2.0, 1.5}, {1.5, 2.0}, {1.0, 1.0}, {2.5, 0.5},
	}
	labels := []int{0, 0, 0, 0, 1, 1, 1, 1}
	return features, labels
}

func TestLogisticClassifierFitsSeparableData(t *testing.T) {
	t.Parallel()

	features, labels := separableData()
	clf := NewLogisticClassifier()
	require.NoError(t, clf.Fit(features, labels))

	for i, x := range features {
		assert.Equal(t, labels[i], clf.Predict(x), "row %d", i)
	}
	assert.Equal(t, 1, clf.Predict([]float64{3, 3}))
	assert.Equal(t, 0, clf.Predict([]float64{-3, -3}))
}

func TestLogisticClassifierRejectsDegenerateSets(t *testing.T) {
	t.Parallel()

	clf := NewLogisticClassifier()
	assert.Error(t, clf.Fit(nil, nil))
	assert.Error(t, clf.Fit([][]float64{{1}, {2}}, []int{1, 1}))
	assert.Error(t, clf.Fit([][]float64{{1}}, []int{0, 1}))
}

func TestLogisticClassifierUnfittedPredictsZero(t *testing.T) {
	t.Parallel()

	clf := NewLogisticClassifier()
	assert.Equal(t, 0, clf.Predict([]float64{5}))
}

func TestEstimatorWithLogisticClassifier(t *testing.T) {
	t.Parallel()

	features, labels := separableData()
	trainIdx := []int{0, 1, 2, 3, 4, 5, 6, 7}

	est, err := NewEstimator(func() Classifier { return NewLogisticClassifier() },
		Config{Replicates: 15, MaxRetries: 3, Workers: 4, Seed: 21})
	require.NoError(t, err)

	// Deep inside the positive class every replicate agrees.
	deep, err := est.Uncertainty(context.Background(), features, labels, trainIdx, []float64{4, 4})
	require.NoError(t, err)
	assert.Equal(t, 0.0, deep)

	score, err := est.MinExpError(context.Background(), features, labels, trainIdx, []float64{0.1, -0.1}, trainIdx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}
