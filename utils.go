package glitch

import (
	"math"
)

type numeric interface {
	int | int64 | float64
}

func clampMin[T numeric](v, min T) T {
	if v < min {
		return min
	}
	return v
}

func clamp[T numeric](v, min, max T) T {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// wrap returns x mod m in [0, m) for positive m, including negative x.
// A non-positive modulus yields 0.
func wrap(x, m float64) float64 {
	if m <= 0 {
		return 0
	}
	v := x - math.Floor(x/m)*m
	if v >= m {
		// Happens with x a tiny negative number: floor(x/m)=-1 and x+m rounds up to m.
		return 0
	}
	return v
}

func samplesFromSeconds(sampleRate, seconds float64) float64 {
	return math.Round(sampleRate * seconds)
}
