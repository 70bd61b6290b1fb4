package optimization

import "math"

// Fitness maps a cost onto a score where larger is better.
// Non-negative costs land in (0, 1], negative costs in [1, +Inf).
func Fitness(cost float64) float64 {
	if cost >= 0 {
		return 1 / (1 + cost)
	}
	return 1 + math.Abs(cost)
}

// FitnessBatch applies Fitness elementwise. dst is reused when it is long enough.
func FitnessBatch(dst, costs []float64) []float64 {
	if cap(dst) < len(costs) {
		dst = make([]float64, len(costs))
	}
	dst = dst[:len(costs)]
	for i, c := range costs {
		dst[i] = Fitness(c)
	}
	return dst
}
