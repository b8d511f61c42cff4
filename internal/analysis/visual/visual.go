package visual

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"tradepilot/internal/store/model"
)

// ErrNoData 表示区间内没有快照可绘制。
var ErrNoData = errors.New("visual: no snapshots to render")

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#3b82f6"
	colorCash          = "#fbbf24"
	colorBull          = "#34d399"
	colorBear          = "#f87171"

	chartWidthPx   = 1200
	equityHeightPx = 420
	pnlHeightPx    = 220
)

// EquityInput 为权益曲线的绘制参数，Snapshots 需按时间升序。
type EquityInput struct {
	Title     string
	Period    string
	Snapshots []model.PortfolioSnapshot
}

// RenderEquity 输出包含权益/现金曲线与每日盈亏柱的 HTML 页面。
func RenderEquity(input EquityInput) ([]byte, error) {
	if len(input.Snapshots) == 0 {
		return nil, ErrNoData
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Portfolio"
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = title

	xAxis := buildXAxis(input.Snapshots)
	minVal, maxVal := equityBounds(input.Snapshots)
	padding := (maxVal - minVal) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxVal)*0.01)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(equityHeightPx)),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      subtitle(input),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minVal-padding, 2),
			Max:       round(maxVal+padding, 2),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", lineSeries(input.Snapshots, func(s model.PortfolioSnapshot) float64 { return s.TotalEquity }),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	line.AddSeries("Cash", lineSeries(input.Snapshots, func(s model.PortfolioSnapshot) float64 { return s.CashBalance }),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorCash, Width: 1}))

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(pnlHeightPx)),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
	)
	bar.SetXAxis(xAxis)
	bar.AddSeries("Daily PnL", pnlSeries(input.Snapshots))

	page.AddCharts(line, bar)
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("render equity chart: %w", err)
	}
	return buf.Bytes(), nil
}

func initOpts(height int) opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", height),
		BackgroundColor: colorBackground,
	}
}

func subtitle(input EquityInput) string {
	last := input.Snapshots[len(input.Snapshots)-1]
	parts := []string{fmt.Sprintf("equity $%.2f", last.TotalEquity), fmt.Sprintf("all-time %+.2f", last.PnLAllTime)}
	if p := strings.TrimSpace(input.Period); p != "" {
		parts = append([]string{p}, parts...)
	}
	return strings.Join(parts, " | ")
}

func buildXAxis(snaps []model.PortfolioSnapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Timestamp.UTC().Format("01-02 15:04")
	}
	return out
}

func lineSeries(snaps []model.PortfolioSnapshot, pick func(model.PortfolioSnapshot) float64) []opts.LineData {
	out := make([]opts.LineData, len(snaps))
	for i, s := range snaps {
		out[i] = opts.LineData{Value: round(pick(s), 2)}
	}
	return out
}

func pnlSeries(snaps []model.PortfolioSnapshot) []opts.BarData {
	out := make([]opts.BarData, len(snaps))
	for i, s := range snaps {
		color := colorBull
		if s.PnLDaily < 0 {
			color = colorBear
		}
		out[i] = opts.BarData{Value: round(s.PnLDaily, 2), ItemStyle: &opts.ItemStyle{Color: color}}
	}
	return out
}

func equityBounds(snaps []model.PortfolioSnapshot) (float64, float64) {
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, s := range snaps {
		for _, v := range []float64{s.TotalEquity, s.CashBalance} {
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	return minVal, maxVal
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
