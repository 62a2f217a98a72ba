package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/vrcore/internal/db"
)

var outcomeColors = map[string]color.RGBA{
	db.OutcomePresent:  {R: 46, G: 139, B: 87, A: 255},
	db.OutcomeRewarp:   {R: 255, G: 140, B: 0, A: 255},
	db.OutcomeFallback: {R: 178, G: 34, B: 34, A: 255},
	db.OutcomeSkipped:  {R: 105, G: 105, B: 105, A: 255},
}

// LatencyQuantile returns the q quantile of frame latency in milliseconds,
// ignoring fallback and skipped ticks. ok is false when no frame had a
// latency.
func LatencyQuantile(samples []db.PacingSample, q float64) (ms float64, ok bool) {
	var xs []float64
	for _, s := range samples {
		if s.Outcome == db.OutcomePresent || s.Outcome == db.OutcomeRewarp {
			xs = append(xs, s.LatencySeconds*1000)
		}
	}
	if len(xs) == 0 {
		return 0, false
	}
	sort.Float64s(xs)
	return stat.Quantile(q, stat.Empirical, xs, nil), true
}

// PlotPacing renders latency per tick, one series per outcome, with the
// 95th percentile marked, and saves it to path. The format follows the
// file extension.
func PlotPacing(samples []db.PacingSample, path string) error {
	if len(samples) == 0 {
		return errors.New("no pacing samples")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Frame latency (%d ticks)", len(samples))
	p.X.Label.Text = "Tick"
	p.Y.Label.Text = "Latency (ms)"

	byOutcome := make(map[string]plotter.XYs)
	for _, s := range samples {
		byOutcome[s.Outcome] = append(byOutcome[s.Outcome], plotter.XY{X: float64(s.Tick), Y: s.LatencySeconds * 1000})
	}
	outcomes := make([]string, 0, len(byOutcome))
	for o := range byOutcome {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)

	for _, o := range outcomes {
		sc, err := plotter.NewScatter(byOutcome[o])
		if err != nil {
			return fmt.Errorf("scatter %s: %w", o, err)
		}
		sc.GlyphStyle.Radius = vg.Points(1.5)
		if c, ok := outcomeColors[o]; ok {
			sc.GlyphStyle.Color = c
		}
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("%s (%d)", o, len(byOutcome[o])), sc)
	}

	if p95, ok := LatencyQuantile(samples, 0.95); ok {
		f := plotter.NewFunction(func(float64) float64 { return p95 })
		f.Color = color.RGBA{B: 200, A: 255}
		f.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(f)
		p.Legend.Add(fmt.Sprintf("p95 %.1f ms", p95), f)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
