// Package monitor renders training diagnostics: convergence plots as PNGs
// and an HTML session report. Output is for humans inspecting a run; no
// component reads it back.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/crowd-data/labelfuse/internal/consensus"
)

// ConvergencePlotter writes per-pass EM convergence plots.
type ConvergencePlotter struct {
	outputDir string
}

// NewConvergencePlotter creates a plotter writing into outputDir,
// creating the directory if needed.
func NewConvergencePlotter(outputDir string) (*ConvergencePlotter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &ConvergencePlotter{outputDir: outputDir}, nil
}

// PlotPass renders two PNGs for one training pass: the parameter delta
// per EM iteration (log-scale convergence view) and the observed-data
// log-likelihood per iteration. Returns the written file paths.
func (cp *ConvergencePlotter) PlotPass(pass int, history []consensus.IterationStats) ([]string, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("no iteration history for pass %d", pass)
	}

	deltaPts := make(plotter.XYs, len(history))
	likPts := make(plotter.XYs, len(history))
	for i, st := range history {
		deltaPts[i].X = float64(st.Iteration)
		deltaPts[i].Y = st.ParamDelta
		likPts[i].X = float64(st.Iteration)
		likPts[i].Y = st.LogLikelihood
	}

	deltaFile := filepath.Join(cp.outputDir, fmt.Sprintf("pass_%03d_delta.png", pass))
	if err := saveLinePlot(deltaFile, "Parameter delta per iteration", "iteration", "total |delta|", deltaPts, color.RGBA{R: 200, G: 60, B: 60, A: 255}); err != nil {
		return nil, err
	}

	likFile := filepath.Join(cp.outputDir, fmt.Sprintf("pass_%03d_loglik.png", pass))
	if err := saveLinePlot(likFile, "Log-likelihood per iteration", "iteration", "log-likelihood", likPts, color.RGBA{R: 60, G: 100, B: 200, A: 255}); err != nil {
		return nil, err
	}

	return []string{deltaFile, likFile}, nil
}

// PlotPosteriors renders a histogram of the label posteriors published by
// a training pass.
func (cp *ConvergencePlotter) PlotPosteriors(pass int, posteriors []float64) (string, error) {
	if len(posteriors) == 0 {
		return "", fmt.Errorf("no posteriors for pass %d", pass)
	}

	vals := make(plotter.Values, len(posteriors))
	copy(vals, posteriors)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Label posteriors, pass %d", pass)
	p.X.Label.Text = "P(label = 1)"
	p.Y.Label.Text = "examples"
	p.X.Min = 0
	p.X.Max = 1

	hist, err := plotter.NewHist(vals, 20)
	if err != nil {
		return "", fmt.Errorf("failed to build histogram: %w", err)
	}
	hist.FillColor = color.RGBA{R: 90, G: 160, B: 90, A: 255}
	p.Add(hist)

	file := filepath.Join(cp.outputDir, fmt.Sprintf("pass_%03d_posteriors.png", pass))
	if err := p.Save(10*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("failed to save plot: %w", err)
	}
	return file, nil
}

func saveLinePlot(file, title, xLabel, yLabel string, pts plotter.XYs, c color.RGBA) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = c
	p.Add(line)
	p.Add(plotter.NewGrid())

	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
