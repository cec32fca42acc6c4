package charts

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Default PNG size
const (
	DefaultWidth  = 1024
	DefaultHeight = 480
)

var palette = []drawing.Color{
	chart.ColorBlue,
	chart.ColorOrange,
	chart.ColorGreen,
	chart.ColorRed,
	chart.ColorCyan,
}

// Renderer draws chart data as PNG images.
type Renderer struct {
	Width  int
	Height int
}

// NewRenderer returns a renderer for the given size. Non-positive sizes use
// the defaults.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Renderer{Width: width, Height: height}
}

// lineStyle returns a style that renders a line with point markers
func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 2,
		DotColor:    col,
		DotWidth:    3,
	}
}

// pointStyle returns a style that renders points only (no connecting line)
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    4,
		DotColor:    col,
	}
}

// Distribution renders the monthly five-number summaries. Each month is one
// x position; whisker ends are drawn as points, quartiles as dashed lines and
// the median as a solid line.
func (r *Renderer) Distribution(w io.Writer, d Distribution) error {
	if len(d.Months) == 0 {
		return ErrNoChartData
	}

	n := len(d.Months)
	xs := make([]float64, n)
	mins := make([]float64, n)
	q1s := make([]float64, n)
	medians := make([]float64, n)
	q3s := make([]float64, n)
	maxs := make([]float64, n)
	ticks := []chart.Tick{{Value: -0.5, Label: ""}}
	for i, m := range d.Months {
		xs[i] = float64(i)
		mins[i], q1s[i], medians[i], q3s[i], maxs[i] = m.Min, m.Q1, m.Median, m.Q3, m.Max
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: m.Month})
	}
	ticks = append(ticks, chart.Tick{Value: float64(n) - 0.5, Label: ""})

	dashed := lineStyle(chart.ColorAlternateGray)
	dashed.StrokeDashArray = []float64{5, 5}

	series := []chart.Series{
		chart.ContinuousSeries{Name: "Min", XValues: xs, YValues: mins, Style: pointStyle(palette[0])},
		chart.ContinuousSeries{Name: "Q1", XValues: xs, YValues: q1s, Style: dashed},
		chart.ContinuousSeries{Name: "Median", XValues: xs, YValues: medians, Style: lineStyle(palette[1])},
		chart.ContinuousSeries{Name: "Q3", XValues: xs, YValues: q3s, Style: dashed},
		chart.ContinuousSeries{Name: "Max", XValues: xs, YValues: maxs, Style: pointStyle(palette[3])},
	}

	ch := chart.Chart{
		Title:      d.Title,
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "Bulan", Ticks: ticks},
		YAxis:      chart.YAxis{Name: d.Variable, Range: padRange(bounds(mins, maxs))},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return render(w, ch)
}

// Trend renders dated series, mapping each to its axis.
func (r *Renderer) Trend(w io.Writer, t Trend) error {
	if t.Points() == 0 {
		return ErrNoChartData
	}

	var (
		series          []chart.Series
		primary, second []float64
		first, last     time.Time
		hasSecondary    bool
	)
	for i, s := range t.Series {
		if len(s.Points) == 0 {
			continue
		}
		times, ys := s.times(), s.values()
		// Pad to at least two X values for go-chart
		if len(times) == 1 {
			times = append(times, times[0].Add(time.Second))
			ys = append(ys, ys[0])
		}

		ts := chart.TimeSeries{
			Name:    s.Name,
			XValues: times,
			YValues: ys,
			Style:   lineStyle(palette[i%len(palette)]),
		}
		if s.Axis == AxisSecondary {
			ts.YAxis = chart.YAxisSecondary
			ts.Style.StrokeDashArray = []float64{4, 3}
			second = append(second, ys...)
			hasSecondary = true
		} else {
			primary = append(primary, ys...)
		}
		series = append(series, ts)

		if first.IsZero() || times[0].Before(first) {
			first = times[0]
		}
		if end := times[len(times)-1]; end.After(last) {
			last = end
		}
	}

	ch := chart.Chart{
		Title:      t.Title,
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "Tanggal",
			ValueFormatter: chart.TimeDateValueFormatter,
			Range:          timeRange(first, last),
		},
		Series: series,
	}
	ch.YAxis = chart.YAxis{Name: t.PrimaryLabel, Range: padRange(0, 0)}
	if len(primary) > 0 {
		ch.YAxis.Range = padRange(bounds(primary, primary))
	}
	if hasSecondary {
		ch.YAxisSecondary = chart.YAxis{Name: t.SecondaryLabel, Range: padRange(bounds(second, second))}
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return render(w, ch)
}

func render(w io.Writer, ch chart.Chart) error {
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart %q: %w", ch.Title, err)
	}
	return nil
}

// bounds returns the smallest value of lows and the largest of highs.
func bounds(lows, highs []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range lows {
		lo = math.Min(lo, v)
	}
	for _, v := range highs {
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// padRange widens [lo, hi] by 5% on both sides, or by 1 when it is a single
// value, so the axis always has a non-zero delta.
func padRange(lo, hi float64) *chart.ContinuousRange {
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(lo)*0.05, 1)
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func timeRange(first, last time.Time) *chart.ContinuousRange {
	if last.Sub(first) < 24*time.Hour {
		first = first.Add(-12 * time.Hour)
		last = last.Add(12 * time.Hour)
	}
	return &chart.ContinuousRange{
		Min: chart.TimeToFloat64(first),
		Max: chart.TimeToFloat64(last),
	}
}
