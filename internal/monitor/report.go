package monitor

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/crowd-data/labelfuse/internal/active"
	"github.com/crowd-data/labelfuse/internal/consensus"
)

// SessionReport collects one labelling session's outputs for rendering as
// a single HTML page.
type SessionReport struct {
	SessionID  string
	Model      *consensus.Model
	Posteriors []float64
	Rounds     []active.SelectionRound

	// ReferencePoint is the example at which per-labeller correctness is
	// evaluated for the reliability chart; reliability is
	// example-dependent, so the chart shows a single representative cut.
	ReferencePoint []float64
}

// WriteHTML renders the report to an HTML file.
func (r *SessionReport) WriteHTML(path string) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("labelfuse session %s", r.SessionID)

	if chart := r.reliabilityChart(); chart != nil {
		page.AddCharts(chart)
	}
	if chart := r.posteriorChart(); chart != nil {
		page.AddCharts(chart)
	}
	if chart := r.roundsChart(); chart != nil {
		page.AddCharts(chart)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// reliabilityChart bars each labeller's predicted correctness at the
// reference point.
func (r *SessionReport) reliabilityChart() components.Charter {
	if r.Model == nil || r.ReferencePoint == nil {
		return nil
	}

	ids := r.Model.LabellerIDs()
	if len(ids) == 0 {
		return nil
	}

	names := make([]string, 0, len(ids))
	values := make([]opts.BarData, 0, len(ids))
	for _, id := range ids {
		c, err := r.Model.LabellerCorrectness(id, r.ReferencePoint)
		if err != nil {
			continue
		}
		names = append(names, fmt.Sprintf("labeller %d", id))
		values = append(values, opts.BarData{Value: c})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Labeller reliability", Subtitle: "predicted correctness at reference point"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).AddSeries("correctness", values)
	return bar
}

// posteriorChart bars the distribution of label posteriors in 10 bins.
func (r *SessionReport) posteriorChart() components.Charter {
	if len(r.Posteriors) == 0 {
		return nil
	}

	const bins = 10
	counts := make([]int, bins)
	for _, p := range r.Posteriors {
		bin := int(p * bins)
		if bin >= bins {
			bin = bins - 1
		}
		if bin < 0 {
			bin = 0
		}
		counts[bin]++
	}

	names := make([]string, bins)
	values := make([]opts.BarData, bins)
	for i := 0; i < bins; i++ {
		names[i] = fmt.Sprintf("%.1f-%.1f", float64(i)/bins, float64(i+1)/bins)
		values[i] = opts.BarData{Value: counts[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Label posterior distribution", Subtitle: fmt.Sprintf("%d examples", len(r.Posteriors))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).AddSeries("examples", values)
	return bar
}

// roundsChart plots selection scores over the round log.
func (r *SessionReport) roundsChart() components.Charter {
	if len(r.Rounds) == 0 {
		return nil
	}

	names := make([]string, len(r.Rounds))
	values := make([]opts.LineData, len(r.Rounds))
	for i, round := range r.Rounds {
		names[i] = fmt.Sprintf("r%d ex%d lab%d", round.Round, round.ExampleIndex, round.LabellerID)
		values[i] = opts.LineData{Value: round.Score}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Selection scores", Subtitle: "per selection, in log order"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(names).AddSeries("score", values)
	return line
}
