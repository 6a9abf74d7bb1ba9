package utils

import "math"

func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Percentages converts counts to percentages with one decimal that always sum
// to exactly 100 (largest remainder method). A zero total yields all zeros.
func Percentages(counts []int) []float64 {
	out := make([]float64, len(counts))
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return out
	}

	const scale = 1000 // tenths of a percent
	floors := make([]int, len(counts))
	remainders := make([]float64, len(counts))
	assigned := 0
	for i, c := range counts {
		exact := float64(c) * scale / float64(total)
		floors[i] = int(math.Floor(exact))
		remainders[i] = exact - float64(floors[i])
		assigned += floors[i]
	}

	for left := scale - assigned; left > 0; left-- {
		best := -1
		for i := range remainders {
			if best == -1 || remainders[i] > remainders[best] {
				best = i
			}
		}
		floors[best]++
		remainders[best] = -1
	}

	for i, f := range floors {
		out[i] = float64(f) / 10
	}
	return out
}
