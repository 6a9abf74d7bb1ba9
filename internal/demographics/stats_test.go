package demographics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChiSquareTest_EmptyInput(t *testing.T) {
	result := ChiSquareTest([][]float64{}, [][]float64{})

	assert.Equal(t, ChiSquareResult{PValue: 1}, result)
	assert.Equal(t, ChiSquareResult{PValue: 1}, ChiSquareTest(nil, nil))
}

func TestChiSquareTest_DegenerateShapes(t *testing.T) {
	ragged := [][]float64{{1, 2}, {3}}
	assert.Equal(t, ChiSquareResult{PValue: 1}, ChiSquareTest(ragged, ragged))

	mismatched := ChiSquareTest([][]float64{{1, 2}, {3, 4}}, [][]float64{{1, 2}})
	assert.Equal(t, ChiSquareResult{PValue: 1}, mismatched)

	singleRow := [][]float64{{4, 6, 8}}
	assert.Equal(t, ChiSquareResult{PValue: 1}, ChiSquareTest(singleRow, singleRow))
}

func TestChiSquareTest_SingleColumnKeepsStatistic(t *testing.T) {
	observed := [][]float64{{10}, {30}}
	expected := [][]float64{{20}, {20}}

	result := ChiSquareTest(observed, expected)

	assert.InDelta(t, 10.0, result.ChiSquare, 1e-9)
	assert.Equal(t, 0, result.DegreesOfFreedom)
	assert.Equal(t, 1.0, result.PValue)
	assert.False(t, result.Significant)
}

func TestChiSquareTest_KnownTable(t *testing.T) {
	observed := [][]float64{{10, 20}, {20, 10}}
	expected := CalculateExpectedFrequencies(observed)

	result := ChiSquareTest(observed, expected)

	assert.InDelta(t, 6.6667, result.ChiSquare, 1e-3)
	assert.Equal(t, 1, result.DegreesOfFreedom)
	assert.InDelta(t, 0.0098, result.PValue, 5e-4)
	assert.True(t, result.Significant)
}

func TestChiSquareTest_ZeroExpectationCellsAreSkipped(t *testing.T) {
	observed := [][]float64{{5, 0}, {5, 0}}
	expected := CalculateExpectedFrequencies(observed)

	result := ChiSquareTest(observed, expected)

	assert.Zero(t, result.ChiSquare)
	assert.InDelta(t, 1.0, result.PValue, 1e-9)
	assert.False(t, result.Significant)
}

func TestCalculateExpectedFrequencies_PreservesMargins(t *testing.T) {
	observed := [][]float64{{3, 5, 2}, {4, 1, 9}, {0, 7, 6}}

	expected := CalculateExpectedFrequencies(observed)

	require.Len(t, expected, 3)
	for i := range observed {
		var obsRow, expRow float64
		for j := range observed[i] {
			obsRow += observed[i][j]
			expRow += expected[i][j]
		}
		assert.InDelta(t, obsRow, expRow, 1e-9, "row %d", i)
	}
	for j := range observed[0] {
		var obsCol, expCol float64
		for i := range observed {
			obsCol += observed[i][j]
			expCol += expected[i][j]
		}
		assert.InDelta(t, obsCol, expCol, 1e-9, "column %d", j)
	}
}

func TestCalculateExpectedFrequencies_ZeroTotal(t *testing.T) {
	expected := CalculateExpectedFrequencies([][]float64{{0, 0, 0}, {0, 0, 0}})

	assert.Equal(t, [][]float64{{0, 0, 0}, {0, 0, 0}}, expected)
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1.0, Pearson([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}), 1e-9)
	assert.InDelta(t, -1.0, Pearson([]float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}), 1e-9)
	assert.Zero(t, Pearson([]float64{1, 2, 3}, []float64{5, 5, 5}))
	assert.Zero(t, Pearson([]float64{1, 2, 3}, []float64{1, 2}))
	assert.Zero(t, Pearson(nil, nil))
}

func TestApproximatePValue(t *testing.T) {
	assert.Equal(t, 1.0, ApproximatePValue(0.9, 2))
	assert.Equal(t, 0.001, ApproximatePValue(1, 10))
	assert.Equal(t, 0.001, ApproximatePValue(-1, 10))
	assert.Equal(t, 0.134, ApproximatePValue(0.5, 10))
	assert.Equal(t, 0.003, ApproximatePValue(0.5, 40))
	assert.Equal(t, 0.5, ApproximatePValue(0, 100))
}

func TestApproximatePValue_Monotonic(t *testing.T) {
	for _, n := range []int{3, 5, 10, 30, 100} {
		prev := 1.0
		for i := 0; i <= 100; i++ {
			p := ApproximatePValue(float64(i)/100, n)
			assert.LessOrEqual(t, p, prev, "n=%d r=%.2f", n, float64(i)/100)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			prev = p
		}
	}

	for _, r := range []float64{0.1, 0.3, 0.5, 0.8} {
		prev := 1.0
		for n := 3; n <= 200; n++ {
			p := ApproximatePValue(r, n)
			assert.LessOrEqual(t, p, prev, "r=%.1f n=%d", r, n)
			prev = p
		}
	}
}

func TestRatingStats(t *testing.T) {
	s := RatingStats([]int{5, 5, 4, 3, 1, 2})

	assert.Equal(t, 6, s.Count)
	assert.Equal(t, 3.33, s.Average)
	assert.Equal(t, 3.5, s.Median)
	assert.Equal(t, 5.0, s.Mode)
	assert.Equal(t, []RatingCount{{1, 1}, {2, 1}, {3, 1}, {4, 1}, {5, 2}}, s.Distribution)
	assert.Zero(t, s.NPS)
}

func TestRatingStats_Empty(t *testing.T) {
	s := RatingStats(nil)

	assert.Zero(t, s.Count)
	assert.Len(t, s.Distribution, 5)
	assert.Zero(t, s.Average)
}
