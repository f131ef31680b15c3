package bootstrap

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogisticClassifier is a reference Classifier: plain batch-gradient
// logistic regression. It exists so the estimator can run without an
// external model; any Classifier implementation may replace it.
type LogisticClassifier struct {
	LearningRate float64
	Iterations   int

	weights []float64
	bias    float64
}

// NewLogisticClassifier returns a classifier with workable defaults.
func NewLogisticClassifier() *LogisticClassifier {
	return &LogisticClassifier{LearningRate: 0.5, Iterations: 100}
}

func (c *LogisticClassifier) Fit(features [][]float64, labels []int) error {
	if len(features) == 0 {
		return errors.New("empty training set")
	}
	if len(features) != len(labels) {
		return fmt.Errorf("features and labels must have equal length: %d vs %d", len(features), len(labels))
	}
	dim := len(features[0])

	// A single-class resample has no gradient signal towards a
	// boundary; reject it so the estimator can retry with a fresh one.
	first := labels[0]
	single := true
	for _, l := range labels {
		if l != first {
			single = false
			break
		}
	}
	if single {
		return fmt.Errorf("single-class training set (all %d)", first)
	}

	c.weights = make([]float64, dim)
	c.bias = 0
	grad := make([]float64, dim)
	n := float64(len(features))

	for iter := 0; iter < c.Iterations; iter++ {
		for i := range grad {
			grad[i] = 0
		}
		var biasGrad float64
		for i, x := range features {
			if len(x) != dim {
				return fmt.Errorf("row %d has %d features, want %d", i, len(x), dim)
			}
			z := floats.Dot(c.weights, x) + c.bias
			residual := sigmoid(z) - float64(labels[i])
			floats.AddScaled(grad, residual, x)
			biasGrad += residual
		}
		step := c.LearningRate / n
		floats.AddScaled(c.weights, -step, grad)
		c.bias -= step * biasGrad
	}
	return nil
}

func (c *LogisticClassifier) Predict(x []float64) int {
	if c.weights == nil {
		return 0
	}
	if floats.Dot(c.weights, x)+c.bias > 0 {
		return 1
	}
	return 0
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
