// Package charts derives the dashboard chart data from a measurement table
// and renders it as PNG.
//
// Records without a valid date are left out of every chart. Time series are
// ordered by date, keeping store order for equal dates, and missing values
// are dropped point by point.
package charts

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"cementqa/internal/measurement"
	"cementqa/pkg/contracts/domain"
)

var (
	// ErrNoChartData is returned when a chart would have no plottable point
	ErrNoChartData = errors.New("no chart data")
	// ErrUnknownVariable is returned for a variable outside the X variables
	ErrUnknownVariable = errors.New("unknown chart variable")
)

// Axis selects the y axis a series is drawn against
type Axis string

const (
	AxisPrimary   Axis = "primary"
	AxisSecondary Axis = "secondary"
)

// MonthStats is the five-number summary of one month
type MonthStats struct {
	Month  string  `json:"month"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Distribution is the per-month distribution of one variable.
type Distribution struct {
	Title    string       `json:"title"`
	Variable string       `json:"variable"`
	Months   []MonthStats `json:"months"`
}

// Point is one dated value of a series
type Point struct {
	Date  domain.Date `json:"date"`
	Value float64     `json:"value"`
}

// Series is a named sequence of points
type Series struct {
	Name   string  `json:"name"`
	Axis   Axis    `json:"axis"`
	Points []Point `json:"points"`
}

// Trend is a set of series over time
type Trend struct {
	Title          string   `json:"title"`
	PrimaryLabel   string   `json:"primary_label"`
	SecondaryLabel string   `json:"secondary_label,omitempty"`
	Series         []Series `json:"series"`
}

// Points returns the total number of points across all series
func (t Trend) Points() int {
	n := 0
	for _, s := range t.Series {
		n += len(s.Points)
	}
	return n
}

// CheckVariable reports whether name is one of the chart X variables.
func CheckVariable(name string) error {
	for _, v := range domain.XVariables() {
		if v == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownVariable, name)
}

// dated returns the records with a valid date, stably sorted by date.
func dated(table domain.Table) []domain.Record {
	var out []domain.Record
	for _, r := range table.Records() {
		if r.Date.Valid {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Time.Before(out[j].Date.Time)
	})
	return out
}

// MonthlyDistribution groups the values of variable by calendar month.
func MonthlyDistribution(table domain.Table, variable string) (Distribution, error) {
	if err := CheckVariable(variable); err != nil {
		return Distribution{}, err
	}
	idx, _ := domain.NumericFieldIndex(variable)

	byMonth := make(map[string][]float64)
	var months []string
	for _, r := range dated(table) {
		v := r.Values[idx]
		if !v.Valid {
			continue
		}
		m := r.Date.Month()
		if _, seen := byMonth[m]; !seen {
			months = append(months, m)
		}
		byMonth[m] = append(byMonth[m], v.Float64)
	}
	if len(months) == 0 {
		return Distribution{}, ErrNoChartData
	}
	sort.Strings(months)

	dist := Distribution{
		Title:    fmt.Sprintf("Distribusi %s per Bulan", variable),
		Variable: variable,
		Months:   make([]MonthStats, 0, len(months)),
	}
	for _, m := range months {
		values := byMonth[m]
		sort.Float64s(values)
		dist.Months = append(dist.Months, MonthStats{
			Month:  m,
			Count:  len(values),
			Min:    values[0],
			Q1:     measurement.Quantile(values, 0.25),
			Median: measurement.Quantile(values, 0.5),
			Q3:     measurement.Quantile(values, 0.75),
			Max:    values[len(values)-1],
		})
	}
	return dist, nil
}

// SettingTimeOverlay plots initial and final setting time against the
// overlay variable on a secondary axis. An empty overlay uses the first X
// variable.
func SettingTimeOverlay(table domain.Table, overlay string) (Trend, error) {
	if overlay == "" {
		overlay = domain.XVariables()[0]
	}
	if err := CheckVariable(overlay); err != nil {
		return Trend{}, err
	}

	records := dated(table)
	trend := Trend{
		Title:          "Setting Time vs " + overlay,
		PrimaryLabel:   "Setting Time (menit)",
		SecondaryLabel: overlay,
	}
	for _, name := range domain.SettingTimeFields {
		trend.Series = append(trend.Series, series(records, name, AxisPrimary))
	}
	trend.Series = append(trend.Series, series(records, overlay, AxisSecondary))

	if trend.Points() == 0 {
		return Trend{}, ErrNoChartData
	}
	return trend, nil
}

// StrengthTrend plots the four compressive strength ages over time.
func StrengthTrend(table domain.Table) (Trend, error) {
	records := dated(table)
	trend := Trend{
		Title:        "Kuat Tekan per Tanggal",
		PrimaryLabel: "Kuat Tekan (MPa)",
	}
	for _, name := range domain.StrengthFields {
		trend.Series = append(trend.Series, series(records, name, AxisPrimary))
	}
	if trend.Points() == 0 {
		return Trend{}, ErrNoChartData
	}
	return trend, nil
}

func series(records []domain.Record, field string, axis Axis) Series {
	idx, _ := domain.NumericFieldIndex(field)
	s := Series{Name: field, Axis: axis, Points: []Point{}}
	for _, r := range records {
		if v := r.Values[idx]; v.Valid {
			s.Points = append(s.Points, Point{Date: r.Date, Value: v.Float64})
		}
	}
	return s
}

func (s Series) times() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Date.Time
	}
	return out
}

func (s Series) values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}
