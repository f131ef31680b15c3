package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadTuningConfigPartial(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"tolerance": 0.01, "bootstrap_replicates": 7}`)
	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.01, cfg.GetTolerance())
	assert.Equal(t, 7, cfg.GetBootstrapReplicates())

	// Omitted fields fall back to defaults.
	assert.Equal(t, 50, cfg.GetMaxIterations())
	assert.Equal(t, 4, cfg.GetTrainWorkers())
	assert.Equal(t, 3, cfg.GetRedundancyCap())
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tolerance: 0.01"), 0o644))

	_, err := LoadTuningConfig(path)
	assert.Error(t, err)
}

func TestLoadTuningConfigRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		contents string
	}{
		{"zero tolerance", `{"tolerance": 0}`},
		{"negative iterations", `{"max_iterations": -1}`},
		{"zero workers", `{"train_workers": 0}`},
		{"epsilon too large", `{"epsilon_clamp": 0.5}`},
		{"zero replicates", `{"bootstrap_replicates": 0}`},
		{"negative retries", `{"bootstrap_max_retries": -1}`},
		{"zero cap", `{"redundancy_cap": 0}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadTuningConfig(writeConfig(t, tc.contents))
			assert.Error(t, err)
		})
	}
}

func TestEmptyTuningConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := EmptyTuningConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1e-4, cfg.GetTolerance())
	assert.Equal(t, 0.5, cfg.GetLearningRate())
	assert.Equal(t, 200, cfg.GetRegressionIterations())
	assert.Equal(t, 1e-3, cfg.GetL2Penalty())
	assert.Equal(t, 32, cfg.GetProbeSize())
	assert.Equal(t, 1e-9, cfg.GetEpsilonClamp())
	assert.Equal(t, 20, cfg.GetBootstrapReplicates())
	assert.Equal(t, 3, cfg.GetBootstrapMaxRetries())
	assert.Equal(t, 4, cfg.GetBootstrapWorkers())
}

func TestMustLoadDefaultConfig(t *testing.T) {
	// Not parallel: depends on the working directory of the test process.
	cfg := MustLoadDefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.GetTolerance(), 0.0)
}
