// Package visualize renders the anytime search trajectory recorded by
// plan.Stats as an HTML line chart, for inspecting how solution cost
// improved over the search budget.
package visualize

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ThomasDebrunner/scampfilter/plan"
)

func toLineItems(vals []float64) []opts.LineData {
	out := make([]opts.LineData, len(vals))
	for i, v := range vals {
		out[i] = opts.LineData{Value: v}
	}
	return out
}

// CostTrajectoryChart renders one Sample per improving (or every, when
// Stats was collected with LogAll) solution as a line chart: elapsed
// search time on the X axis, solution cost on the Y axis.
func CostTrajectoryChart(title string, stats *plan.Stats) *charts.Line {
	labels := make([]string, len(stats.Sols))
	costs := make([]float64, len(stats.Sols))
	for i, s := range stats.Sols {
		labels[i] = fmt.Sprintf("%.2fs", s.Elapsed.Seconds())
		costs[i] = s.Cost
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d solutions found", len(stats.Sols))}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1000px", Height: "500px"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "elapsed"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "cost"}),
	)
	line.SetXAxis(labels).
		AddSeries("cost", toLineItems(costs)).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
	return line
}

// RenderCostTrajectory writes a standalone HTML page plotting stats to
// w.
func RenderCostTrajectory(w io.Writer, title string, stats *plan.Stats) error {
	page := components.NewPage()
	page.AddCharts(CostTrajectoryChart(title, stats))
	return page.Render(w)
}
