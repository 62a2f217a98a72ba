package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/vrcore/internal/db"
	"github.com/banshee-data/vrcore/internal/httputil"
	"github.com/banshee-data/vrcore/internal/warp"
)

const (
	defaultPacingLimit = 600
	maxPacingLimit     = 20000
)

// handlePacingChart renders recent frame latency and the outcome mix.
// Query params:
//   - limit (optional; default 600) number of most recent ticks
func (ws *WebServer) handlePacingChart(w http.ResponseWriter, r *http.Request) {
	if ws.Pacing == nil {
		httputil.ServiceUnavailable(w, "pacing recorder not configured")
		return
	}
	limit := defaultPacingLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 || v > maxPacingLimit {
			httputil.BadRequest(w, fmt.Sprintf("limit must be 1..%d", maxPacingLimit))
			return
		}
		limit = v
	}

	samples, err := ws.Pacing.RecentPacing(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to read pacing: %v", err))
		return
	}
	if len(samples) == 0 {
		httputil.NotFound(w, "no pacing samples recorded")
		return
	}

	page := components.NewPage()
	page.PageTitle = "Frame pacing"
	page.AddCharts(latencyChart(samples), outcomeChart(samples))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func latencyChart(samples []db.PacingSample) *charts.Line {
	ticks := make([]uint64, len(samples))
	latency := make([]opts.LineData, len(samples))
	for i, s := range samples {
		ticks[i] = s.Tick
		latency[i] = opts.LineData{Value: s.LatencySeconds * 1000}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1100px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Motion-to-photon latency",
			Subtitle: fmt.Sprintf("session=%s ticks=%d", samples[len(samples)-1].SessionID, len(samples)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "latency (ms)", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(ticks).AddSeries("latency", latency,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

var outcomeOrder = []string{warp.OutcomePresent, warp.OutcomeRewarp, warp.OutcomeFallback, warp.OutcomeSkipped}

func outcomeCounts(samples []db.PacingSample) map[string]int {
	counts := make(map[string]int, len(outcomeOrder))
	for _, s := range samples {
		counts[s.Outcome]++
	}
	return counts
}

func outcomeChart(samples []db.PacingSample) *charts.Pie {
	counts := outcomeCounts(samples)
	data := make([]opts.PieData, 0, len(outcomeOrder))
	for _, o := range outcomeOrder {
		if n := counts[o]; n > 0 {
			data = append(data, opts.PieData{Name: o, Value: n})
		}
	}
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "600px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tick outcomes"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("outcomes", data)
	return pie
}
