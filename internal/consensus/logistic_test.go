package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRegressionConfig = regressionConfig{
	LearningRate: 0.5,
	Iterations:   500,
	L2Penalty:    1e-3,
}

func TestFitWeightedLogisticSeparable(t *testing.T) {
	t.Parallel()

	// Linearly separable on the first feature.
	features := [][]float64{
		{-2, 0.3}, {-1.5, -0.2}, {-1, 0.1}, {-0.5, -0.4},
		{0.5, 0.2}, {1, -0.3}, {1.5, 0.4}, {2, -0.1},
	}
	targets := []float64{0, 0, 0, 0, 1, 1, 1, 1}
	unit := []float64{1, 1, 1, 1, 1, 1, 1, 1}

	weights, bias, err := fitWeightedLogistic(features, targets, unit, 2, testRegressionConfig)
	require.NoError(t, err)
	assert.Greater(t, weights[0], 0.0, "separating weight must be positive")

	for i, x := range features {
		p := sigmoid(weights[0]*x[0] + weights[1]*x[1] + bias)
		if targets[i] == 1 {
			assert.Greater(t, p, 0.5, "example %d should score above the boundary", i)
		} else {
			assert.Less(t, p, 0.5, "example %d should score below the boundary", i)
		}
	}
}

func TestFitWeightedLogisticSoftTargets(t *testing.T) {
	t.Parallel()

	// Soft targets near 0.5 on symmetric inputs should keep the fit flat.
	features := [][]float64{{-1, 0}, {1, 0}}
	targets := []float64{0.5, 0.5}
	unit := []float64{1, 1}

	weights, bias, err := fitWeightedLogistic(features, targets, unit, 2, testRegressionConfig)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, weights[0], 0.05)
	assert.InDelta(t, 0.0, bias, 0.05)
}

func TestFitWeightedLogisticSampleWeights(t *testing.T) {
	t.Parallel()

	// The same point appears with both labels; the heavier label wins.
	features := [][]float64{{1, 0}, {1, 0}}
	targets := []float64{1, 0}
	sampleWeights := []float64{9, 1}

	weights, bias, err := fitWeightedLogistic(features, targets, sampleWeights, 2, testRegressionConfig)
	require.NoError(t, err)

	p := sigmoid(weights[0]*1 + bias)
	assert.Greater(t, p, 0.5)
}

func TestFitWeightedLogisticDegenerate(t *testing.T) {
	t.Parallel()

	features := [][]float64{{1, 0}, {2, 0}, {3, 0}}
	unit := []float64{1, 1, 1}

	// All-positive targets.
	_, _, err := fitWeightedLogistic(features, []float64{1, 1, 1}, unit, 2, testRegressionConfig)
	assert.ErrorIs(t, err, errDegenerateRegression)

	// All-negative targets.
	_, _, err = fitWeightedLogistic(features, []float64{0, 0, 0}, unit, 2, testRegressionConfig)
	assert.ErrorIs(t, err, errDegenerateRegression)

	// No effective sample mass.
	_, _, err = fitWeightedLogistic(features, []float64{1, 0, 1}, []float64{0, 0, 0}, 2, testRegressionConfig)
	assert.ErrorIs(t, err, errDegenerateRegression)
}

func TestFitWeightedLogisticLengthMismatch(t *testing.T) {
	t.Parallel()

	_, _, err := fitWeightedLogistic([][]float64{{1}}, []float64{1, 0}, []float64{1}, 1, testRegressionConfig)
	assert.Error(t, err)
}
