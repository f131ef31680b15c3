package consensus

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// errDegenerateRegression reports a regression whose targets carry no
// class contrast (all-one-class, or no effective sample mass). Callers
// absorb it locally by falling back to a constant estimate.
var errDegenerateRegression = errors.New("degenerate regression targets")

// regressionConfig controls one weighted logistic regression fit.
type regressionConfig struct {
	LearningRate float64
	Iterations   int
	L2Penalty    float64
}

// fitWeightedLogistic fits a logistic regression by batch gradient descent.
//
// Targets are soft: each target is a value in [0, 1], and the gradient of
// the cross-entropy with soft targets is (sigma(z) - target) per sample,
// the same form as with hard labels. Sample weights scale each sample's
// contribution; samples with zero weight are ignored.
//
// The bias is not penalized. Returns errDegenerateRegression when the
// weighted targets carry no class contrast, so callers can fall back
// rather than fit a diverging separator.
func fitWeightedLogistic(features [][]float64, targets, sampleWeights []float64, dim int, cfg regressionConfig) ([]float64, float64, error) {
	if len(features) != len(targets) || len(features) != len(sampleWeights) {
		return nil, 0, errors.New("features, targets and sample weights must have equal length")
	}

	var mass, positive float64
	for i, w := range sampleWeights {
		if w <= 0 {
			continue
		}
		mass += w
		positive += w * targets[i]
	}
	if mass == 0 {
		return nil, 0, errDegenerateRegression
	}
	// No contrast: every effective target is (numerically) the same class.
	const contrastEps = 1e-9
	rate := positive / mass
	if rate < contrastEps || rate > 1-contrastEps {
		return nil, 0, errDegenerateRegression
	}

	weights := make([]float64, dim)
	bias := 0.0
	grad := make([]float64, dim)

	for iter := 0; iter < cfg.Iterations; iter++ {
		for i := range grad {
			grad[i] = 0
		}
		biasGrad := 0.0

		for i, x := range features {
			w := sampleWeights[i]
			if w <= 0 {
				continue
			}
			residual := w * (sigmoid(floats.Dot(weights, x)+bias) - targets[i])
			floats.AddScaled(grad, residual, x)
			biasGrad += residual
		}

		// Ridge penalty on the weights only.
		if cfg.L2Penalty > 0 {
			floats.AddScaled(grad, cfg.L2Penalty, weights)
		}

		step := cfg.LearningRate / mass
		floats.AddScaled(weights, -step, grad)
		bias -= step * biasGrad
	}

	return weights, bias, nil
}
