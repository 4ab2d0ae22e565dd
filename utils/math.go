package utils

import (
	"math"
	"math/rand"
	"sort"
)

// ClampF64 clamps x to the closed interval [min, max].
func ClampF64(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

// AbsInt returns the absolute value of the given int.
func AbsInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// MaxInt returns the maximum of two ints.
func MaxInt(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// MinInt returns the minimum of two ints.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Median returns the median value of the given values. If there are no
// values, NaN is returned.
func Median(values ...float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// SampleRandomIntRange samples a random integer within a range given by
// [min, max] using the given rand.Rand.
func SampleRandomIntRange(min, max int, r *rand.Rand) int {
	return r.Intn(max-min+1) + min
}

// SampleNIntegersUniform samples n integers uniformly in [vMin, vMax] with
// the given rand.Rand.
func SampleNIntegersUniform(n int, vMin, vMax float64, r *rand.Rand) []int {
	samples := make([]int, n)
	for i := range samples {
		samples[i] = SampleRandomIntRange(int(vMin), int(vMax), r)
	}
	return samples
}

// SampleNIntegersNormal samples n integers from an approximate normal
// distribution centered in the middle of [vMin, vMax], clamped to the range.
func SampleNIntegersNormal(n int, vMin, vMax float64, r *rand.Rand) []int {
	mu := (vMax + vMin) / 2
	sigma := (vMax - vMin) / 5
	samples := make([]int, n)
	for i := range samples {
		v := math.Round(r.NormFloat64()*sigma + mu)
		samples[i] = int(ClampF64(v, vMin, vMax))
	}
	return samples
}

// SampleNRandomUniqueInts samples n distinct integers in [0, total).
// total must be >= n.
func SampleNRandomUniqueInts(n, total int, r *rand.Rand) []int {
	perm := r.Perm(total)
	return perm[:n]
}
