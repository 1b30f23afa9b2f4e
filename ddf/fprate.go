package ddf

import "math"

// estimateFPRate computes the classic Bloom filter false-positive bound
// for m bits, k hashes, n inserted elements: (1 - e^(-kn/m))^k.
func estimateFPRate(m, k uint, n uint64) float64 {
	if m == 0 || n == 0 {
		return 0
	}

	exponent := -float64(k) * float64(n) / float64(m)
	inner := 1 - math.Exp(exponent)

	return math.Pow(inner, float64(k))
}
