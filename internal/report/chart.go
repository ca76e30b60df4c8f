package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"voltrade/internal/backtest"
	"voltrade/internal/indicator"
	"voltrade/internal/ledger"
	"voltrade/internal/market"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEmaFast       = "#3b82f6"
	colorEmaSlow       = "#f472b6"
	colorEquity        = "#fbbf24"

	chartWidthPx   = 1400
	klineHeightPx  = 520
	volumeHeightPx = 220
	equityHeightPx = 300
)

// ChartInput 是渲染回测页面所需的数据，Candles 为各 symbol 的成交量 K 线。
type ChartInput struct {
	Result  backtest.Result
	Candles map[string]market.Records
}

// RenderHTML 把每个 symbol 的 K 线、成交量与资金曲线渲染为一张 echarts 页面。
func RenderHTML(w io.Writer, input ChartInput) error {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = fmt.Sprintf("voltrade %s", input.Result.RunID)

	for _, sym := range market.Symbols(input.Candles) {
		candles := input.Candles[sym]
		if len(candles) == 0 {
			continue
		}
		xAxis := buildXAxis(candles)
		kline := buildKlineChart(sym, xAxis, candles, input.Result)
		if ema := buildEMALine(candles, input.Result.Params); ema != nil {
			ema.SetXAxis(xAxis)
			kline.Overlap(ema)
		}
		page.AddCharts(kline, buildVolumeChart(sym, xAxis, candles))
	}
	if len(input.Result.Curve) > 0 {
		page.AddCharts(buildEquityChart(input.Result))
	}
	if len(page.Charts) == 0 {
		return &market.InsufficientDataError{Op: "render report", Need: 1, Have: 0}
	}
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func initOpts(height int) opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", height),
		BackgroundColor: colorBackground,
	}
}

func buildKlineChart(symbol string, xAxis []string, candles market.Records, res backtest.Result) *charts.Kline {
	minPrice, maxPrice := priceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(klineHeightPx)),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:         strings.ToUpper(symbol),
			Subtitle:      tradeSubtitle(symbol, res),
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
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)
	return kline
}

// tradeSubtitle 汇总该 symbol 的开平仓情况。
func tradeSubtitle(symbol string, res backtest.Result) string {
	var mine []ledger.Position
	for _, p := range res.Positions {
		if p.Symbol == symbol {
			mine = append(mine, p)
		}
	}
	sum := ledger.Summarize(mine)
	pnl := sum.LongClosedPnL + sum.ShortClosedPnL
	return fmt.Sprintf("trades %d | closed %d | wins %d | losses %d | pnl %.2f",
		sum.Opened, sum.Closed, sum.Wins, sum.Losses, pnl)
}

func buildEMALine(candles market.Records, p backtest.Params) *charts.Line {
	fast, err := indicator.EMASeries(candles, p.ShortEMA)
	if err != nil {
		return nil
	}
	line := charts.NewLine()
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries(fmt.Sprintf("EMA%d", p.ShortEMA), toLineData(fast, len(candles)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaFast, Width: 2}))
	if slow, err := indicator.EMASeries(candles, p.LongEMA); err == nil {
		line.AddSeries(fmt.Sprintf("EMA%d", p.LongEMA), toLineData(slow, len(candles)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaSlow, Width: 2}))
	}
	return line
}

func buildVolumeChart(symbol string, xAxis []string, candles market.Records) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(volumeHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Volume %s", symbol), Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	vols := make([]opts.BarData, len(candles))
	for i, c := range candles {
		color := colorBear
		if c.Close >= c.Open {
			color = colorBull
		}
		vols[i] = opts.BarData{
			Value:     c.Volume,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.6)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Volume", vols)
	return bar
}

// buildEquityChart 按时间顺序绘制账户余额。
func buildEquityChart(res backtest.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(equityHeightPx)),
		charts.WithTitleOpts(opts.Title{
			Title:         "Balance",
			Subtitle:      fmt.Sprintf("start %.2f | final %.2f | max drawdown %.2f", res.StartingBalance, res.FinalBalance, res.MaxDrawdown),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
	)
	x := make([]string, len(res.Curve))
	data := make([]opts.LineData, len(res.Curve))
	for i, pt := range res.Curve {
		x[i] = formatTS(pt.Timestamp)
		data[i] = opts.LineData{Value: round(pt.Balance, 4)}
	}
	line.SetXAxis(x)
	line.AddSeries("Balance", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	return line
}

func buildXAxis(candles market.Records) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = formatTS(c.Timestamp)
	}
	return x
}

func formatTS(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("01-02 15:04")
}

func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		val := series[i]
		if math.IsNaN(val) {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round(val, 4)}
		}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func priceBounds(candles market.Records) (minVal, maxVal float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	minVal = candles[0].Low
	maxVal = candles[0].High
	for _, c := range candles {
		if c.Low < minVal {
			minVal = c.Low
		}
		if c.High > maxVal {
			maxVal = c.High
		}
	}
	return minVal, maxVal
}
