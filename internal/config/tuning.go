// Package config loads tuning parameters for consensus training, bootstrap
// estimation, and active selection from a JSON defaults file. Fields are
// pointer-typed so partial configs are safe: omitted fields fall back to
// the documented defaults via the Get* accessors.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
type TuningConfig struct {
	// Consensus trainer params
	Tolerance            *float64 `json:"tolerance,omitempty"`
	MaxIterations        *int     `json:"max_iterations,omitempty"`
	TrainWorkers         *int     `json:"train_workers,omitempty"`
	LearningRate         *float64 `json:"learning_rate,omitempty"`
	RegressionIterations *int     `json:"regression_iterations,omitempty"`
	L2Penalty            *float64 `json:"l2_penalty,omitempty"`
	ProbeSize            *int     `json:"probe_size,omitempty"`
	EpsilonClamp         *float64 `json:"epsilon_clamp,omitempty"`

	// Bootstrap estimator params
	BootstrapReplicates *int `json:"bootstrap_replicates,omitempty"`
	BootstrapMaxRetries *int `json:"bootstrap_max_retries,omitempty"`
	BootstrapWorkers    *int `json:"bootstrap_workers,omitempty"`

	// Active selector params
	RedundancyCap *int `json:"redundancy_cap,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and be under the max file size. Fields omitted
// from the JSON retain their default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that all set fields are in range.
func (c *TuningConfig) Validate() error {
	if c.Tolerance != nil && *c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", *c.Tolerance)
	}
	if c.MaxIterations != nil && *c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", *c.MaxIterations)
	}
	if c.TrainWorkers != nil && *c.TrainWorkers < 1 {
		return fmt.Errorf("train_workers must be at least 1, got %d", *c.TrainWorkers)
	}
	if c.LearningRate != nil && *c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", *c.LearningRate)
	}
	if c.RegressionIterations != nil && *c.RegressionIterations < 1 {
		return fmt.Errorf("regression_iterations must be at least 1, got %d", *c.RegressionIterations)
	}
	if c.L2Penalty != nil && *c.L2Penalty < 0 {
		return fmt.Errorf("l2_penalty must be non-negative, got %g", *c.L2Penalty)
	}
	if c.ProbeSize != nil && *c.ProbeSize < 1 {
		return fmt.Errorf("probe_size must be at least 1, got %d", *c.ProbeSize)
	}
	if c.EpsilonClamp != nil && (*c.EpsilonClamp <= 0 || *c.EpsilonClamp >= 0.5) {
		return fmt.Errorf("epsilon_clamp must be in (0, 0.5), got %g", *c.EpsilonClamp)
	}
	if c.BootstrapReplicates != nil && *c.BootstrapReplicates < 1 {
		return fmt.Errorf("bootstrap_replicates must be at least 1, got %d", *c.BootstrapReplicates)
	}
	if c.BootstrapMaxRetries != nil && *c.BootstrapMaxRetries < 0 {
		return fmt.Errorf("bootstrap_max_retries must be non-negative, got %d", *c.BootstrapMaxRetries)
	}
	if c.BootstrapWorkers != nil && *c.BootstrapWorkers < 1 {
		return fmt.Errorf("bootstrap_workers must be at least 1, got %d", *c.BootstrapWorkers)
	}
	if c.RedundancyCap != nil && *c.RedundancyCap < 1 {
		return fmt.Errorf("redundancy_cap must be at least 1, got %d", *c.RedundancyCap)
	}
	return nil
}

// GetTolerance returns the EM convergence tolerance (total absolute
// parameter change between consecutive iterations).
func (c *TuningConfig) GetTolerance() float64 {
	if c.Tolerance != nil {
		return *c.Tolerance
	}
	return 1e-4
}

// GetMaxIterations returns the EM iteration budget.
func (c *TuningConfig) GetMaxIterations() int {
	if c.MaxIterations != nil {
		return *c.MaxIterations
	}
	return 50
}

// GetTrainWorkers returns the E-step worker count.
func (c *TuningConfig) GetTrainWorkers() int {
	if c.TrainWorkers != nil {
		return *c.TrainWorkers
	}
	return 4
}

// GetLearningRate returns the gradient step size for the M-step regressions.
func (c *TuningConfig) GetLearningRate() float64 {
	if c.LearningRate != nil {
		return *c.LearningRate
	}
	return 0.5
}

// GetRegressionIterations returns the gradient iteration count per M-step fit.
func (c *TuningConfig) GetRegressionIterations() int {
	if c.RegressionIterations != nil {
		return *c.RegressionIterations
	}
	return 200
}

// GetL2Penalty returns the ridge penalty applied to regression weights.
func (c *TuningConfig) GetL2Penalty() float64 {
	if c.L2Penalty != nil {
		return *c.L2Penalty
	}
	return 1e-3
}

// GetProbeSize returns the held-out probe count used to validate a new
// parameter snapshot before publication.
func (c *TuningConfig) GetProbeSize() int {
	if c.ProbeSize != nil {
		return *c.ProbeSize
	}
	return 32
}

// GetEpsilonClamp returns the publication-edge probability clamp.
func (c *TuningConfig) GetEpsilonClamp() float64 {
	if c.EpsilonClamp != nil {
		return *c.EpsilonClamp
	}
	return 1e-9
}

// GetBootstrapReplicates returns the bootstrap resample count k.
func (c *TuningConfig) GetBootstrapReplicates() int {
	if c.BootstrapReplicates != nil {
		return *c.BootstrapReplicates
	}
	return 20
}

// GetBootstrapMaxRetries returns the per-replicate retry budget for
// classifiers that fail to fit a degenerate resample.
func (c *TuningConfig) GetBootstrapMaxRetries() int {
	if c.BootstrapMaxRetries != nil {
		return *c.BootstrapMaxRetries
	}
	return 3
}

// GetBootstrapWorkers returns the replicate-training worker count.
func (c *TuningConfig) GetBootstrapWorkers() int {
	if c.BootstrapWorkers != nil {
		return *c.BootstrapWorkers
	}
	return 4
}

// GetRedundancyCap returns the default per-example annotation cap used by
// the constant-cap redundancy planner.
func (c *TuningConfig) GetRedundancyCap() int {
	if c.RedundancyCap != nil {
		return *c.RedundancyCap
	}
	return 3
}
