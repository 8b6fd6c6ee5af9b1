package lofi

import (
	"math"
	"math/rand/v2"
)

// ShouldApply decides whether the distortion stage is active until the next tick.
// Any amount above 1/3 keeps the distortion always on.
func ShouldApply(amount float64, rng *rand.Rand) bool {
	return rng.Float64() < math.Max(0, math.Min(amount*3, 1))
}

// Randomize draws new distortion parameters for the given lofi amount in [0, 1].
// The bitrate and other codec fields of p are kept.
//
// The amount is cubed for the resolution parameters, so most of the
// range stays musical and only the top end gets really harsh.
func Randomize(p Parameters, amount float64, rng *rand.Rand) Parameters {
	amount = math.Max(0, math.Min(amount, 1))
	scaled := amount * amount * amount

	p.BitDepth = math.Floor(scaleRange(1-scaled, 5, 12)+0.5) + rng.Float64()*3
	p.Downsampling = int(scaleRange(scaled, 2, 15) + rng.Float64()*(1+scaled*16))
	p.Drive = scaleRange(amount, 3, 15) + rng.Float64()*amount*21
	return p
}

func scaleRange(v, outMin, outMax float64) float64 {
	return outMin + v*(outMax-outMin)
}
