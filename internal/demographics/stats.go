package demographics

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/survey-analytics/engine/pkg/utils"
)

// SignificanceLevel is the p-value below which a result is significant.
const SignificanceLevel = 0.05

// ChiSquareTest computes Σ(o-e)²/e over cells with a positive expectation.
// Empty or ragged input returns a zero statistic with p-value 1. A single
// row or column has no degrees of freedom, so its statistic is kept with
// p-value 1.
func ChiSquareTest(observed, expected [][]float64) ChiSquareResult {
	result := ChiSquareResult{PValue: 1}
	if len(observed) == 0 || !sameShape(observed, expected) {
		return result
	}

	for i, row := range observed {
		for j, o := range row {
			e := expected[i][j]
			if e > 0 {
				result.ChiSquare += (o - e) * (o - e) / e
			}
		}
	}

	df := (len(observed) - 1) * (len(observed[0]) - 1)
	if df <= 0 {
		return result
	}

	result.DegreesOfFreedom = df
	dist := distuv.ChiSquared{K: float64(df)}
	result.PValue = utils.Clamp(dist.Survival(result.ChiSquare), 0, 1)
	result.Significant = result.PValue < SignificanceLevel

	return result
}

func sameShape(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	width := len(a[0])
	if width == 0 {
		return false
	}
	for i := range a {
		if len(a[i]) != width || len(b[i]) != width {
			return false
		}
	}
	return true
}

// CalculateExpectedFrequencies returns row total × column total / grand
// total for each cell. A zero grand total yields zeros of the same shape.
func CalculateExpectedFrequencies(observed [][]float64) [][]float64 {
	width := 0
	for _, row := range observed {
		if len(row) > width {
			width = len(row)
		}
	}

	rowTotals := make([]float64, len(observed))
	colTotals := make([]float64, width)
	grand := 0.0
	for i, row := range observed {
		for j, v := range row {
			rowTotals[i] += v
			colTotals[j] += v
			grand += v
		}
	}

	expected := make([][]float64, len(observed))
	for i, row := range observed {
		expected[i] = make([]float64, len(row))
		if grand == 0 {
			continue
		}
		for j := range row {
			expected[i][j] = rowTotals[i] * colTotals[j] / grand
		}
	}
	return expected
}

// Pearson returns the correlation coefficient of xs and ys clamped to
// [-1,1]. Degenerate input (empty, unequal length, constant) yields 0.
func Pearson(xs, ys []float64) float64 {
	r, err := stats.Correlation(xs, ys)
	if err != nil || math.IsNaN(r) {
		return 0
	}
	return utils.Clamp(r, -1, 1)
}

// ApproximatePValue maps the t statistic of r over n pairs onto a stepped
// scale. It is monotonic in |r| and n.
func ApproximatePValue(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}

	if r*r >= 1 {
		return 0.001
	}

	absT := math.Abs(r) * math.Sqrt(float64(n-2)/(1-r*r))
	switch {
	case absT > 3.0:
		return 0.003
	case absT > 2.5:
		return 0.013
	case absT > 2.0:
		return 0.046
	case absT > 1.5:
		return 0.134
	case absT > 1.0:
		return 0.317
	default:
		return 0.5
	}
}

// RatingStats describes 1..5 ratings. Out-of-range values count toward the
// average but not the distribution.
func RatingStats(ratings []int) RatingSummary {
	summary := RatingSummary{Distribution: make([]RatingCount, 5)}
	for i := range summary.Distribution {
		summary.Distribution[i].Rating = i + 1
	}
	if len(ratings) == 0 {
		return summary
	}

	data := make(stats.Float64Data, 0, len(ratings))
	promoters, detractors := 0, 0
	for _, r := range ratings {
		data = append(data, float64(r))
		if r >= 1 && r <= 5 {
			summary.Distribution[r-1].Count++
		}
		if r >= 5 {
			promoters++
		}
		if r <= 2 {
			detractors++
		}
	}

	summary.Count = len(ratings)
	mean, _ := data.Mean()
	median, _ := data.Median()
	summary.Average = utils.Round(mean, 2)
	summary.Median = median
	if modes, err := data.Mode(); err == nil && len(modes) > 0 {
		summary.Mode = modes[0]
	} else {
		summary.Mode = median
	}
	summary.NPS = utils.Round(100*float64(promoters-detractors)/float64(len(ratings)), 1)

	return summary
}

func mean(values []float64) float64 {
	m, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return m
}
