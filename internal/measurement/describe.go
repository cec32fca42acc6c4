package measurement

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"cementqa/pkg/contracts/domain"
)

// Describe computes count, mean, sample standard deviation, min, quartiles
// and max for every numeric field of the table. Missing values are left out
// of every aggregate; a field with no values gets count 0 and missing stats.
func Describe(t domain.Table) domain.Description {
	desc := domain.Description{
		Rows:   t.Len(),
		Fields: make([]domain.FieldSummary, 0, domain.NumericFieldCount),
	}
	for _, name := range domain.NumericFields {
		col, _ := t.Column(name)
		desc.Fields = append(desc.Fields, Summarize(name, col))
	}
	return desc
}

// Summarize computes the descriptive statistics of a single column.
func Summarize(field string, col []domain.Number) domain.FieldSummary {
	values := Present(col)
	summary := domain.FieldSummary{Field: field, Count: len(values)}
	if len(values) == 0 {
		return summary
	}

	sort.Float64s(values)
	mean, std := stat.MeanStdDev(values, nil)
	summary.Mean = finite(mean)
	summary.Std = finite(std)
	summary.Min = domain.Float(values[0])
	summary.Q25 = domain.Float(Quantile(values, 0.25))
	summary.Q50 = domain.Float(Quantile(values, 0.50))
	summary.Q75 = domain.Float(Quantile(values, 0.75))
	summary.Max = domain.Float(values[len(values)-1])
	return summary
}

// Present returns the non-missing values of col, in order.
func Present(col []domain.Number) []float64 {
	out := make([]float64, 0, len(col))
	for _, n := range col {
		if n.Valid {
			out = append(out, n.Float64)
		}
	}
	return out
}

// Quantile returns the p-quantile of sorted using linear interpolation
// between the closest ranks at position (n-1)*p.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	pos := float64(n-1) * p
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func finite(v float64) domain.Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.Missing
	}
	return domain.Float(v)
}
