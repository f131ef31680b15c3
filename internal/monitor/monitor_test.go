package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowd-data/labelfuse/internal/active"
	"github.com/crowd-data/labelfuse/internal/consensus"
)

func TestPlotPassWritesPNGs(t *testing.T) {
	t.Parallel()

	cp, err := NewConvergencePlotter(t.TempDir())
	require.NoError(t, err)

	history := []consensus.IterationStats{
		{Iteration: 1, ParamDelta: 2.5, LogLikelihood: -40.0},
		{Iteration: 2, ParamDelta: 0.8, LogLikelihood: -32.0},
		{Iteration: 3, ParamDelta: 0.1, LogLikelihood: -30.5},
	}

	files, err := cp.PlotPass(1, history)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestPlotPassEmptyHistory(t *testing.T) {
	t.Parallel()

	cp, err := NewConvergencePlotter(t.TempDir())
	require.NoError(t, err)

	_, err = cp.PlotPass(1, nil)
	assert.Error(t, err)
}

func TestPlotPosteriors(t *testing.T) {
	t.Parallel()

	cp, err := NewConvergencePlotter(t.TempDir())
	require.NoError(t, err)

	file, err := cp.PlotPosteriors(2, []float64{0.1, 0.5, 0.5, 0.92, 0.99})
	require.NoError(t, err)
	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSessionReportWriteHTML(t *testing.T) {
	t.Parallel()

	params := consensus.NewParameters(2)
	params.Weights = []float64{1, -1}
	params.Labellers[0] = consensus.LabellerParams{Weights: []float64{0.5, 0}, Bias: 0.2}
	params.Labellers[1] = consensus.LabellerParams{Fallback: true, FallbackRate: 0.75}
	model, err := consensus.NewModel(params)
	require.NoError(t, err)

	report := &SessionReport{
		SessionID:      "ses_test",
		Model:          model,
		Posteriors:     []float64{0.05, 0.4, 0.5, 0.61, 0.97, 1.0},
		ReferencePoint: []float64{0.5, 0.5},
		Rounds: []active.SelectionRound{
			{RoundID: "rnd_a", Round: 1, ExampleIndex: 3, LabellerID: 0, Score: -0.01, Backend: "consensus", UnixNanos: 1},
			{RoundID: "rnd_b", Round: 2, ExampleIndex: 1, LabellerID: 1, Score: -0.02, Backend: "consensus", UnixNanos: 2},
		},
	}

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, report.WriteHTML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Labeller reliability")
	assert.Contains(t, string(data), "Selection scores")
}

func TestSessionReportEmptySections(t *testing.T) {
	t.Parallel()

	report := &SessionReport{SessionID: "ses_empty"}
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, report.WriteHTML(path))

	_, err := os.Stat(path)
	require.NoError(t, err)
}
