package sfu

import "math"

// Mix sums the sources sample by sample into n samples. Shorter sources are
// zero-padded and longer ones truncated. With more than one source the sum
// is divided by the source count, then clipped to the int16 range.
func Mix(sources [][]int16, n int) []int16 {
	if n <= 0 || len(sources) == 0 {
		return nil
	}
	acc := make([]float32, n)
	for _, src := range sources {
		m := min(n, len(src))
		for i := 0; i < m; i++ {
			acc[i] += float32(src[i])
		}
	}
	if len(sources) > 1 {
		div := float32(len(sources))
		for i := range acc {
			acc[i] /= div
		}
	}
	out := make([]int16, n)
	for i, v := range acc {
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}
