package glitch

import (
	"math"
	"testing"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		x    float64
		m    float64
		want float64
	}{
		{0, 10, 0},
		{3.5, 10, 3.5},
		{10, 10, 0},
		{25, 10, 5},
		{-0.5, 10, 9.5},
		{-10, 10, 0},
		{-25, 10, 5},
		{-1e-18, 10, 0},
		{7, 0, 0},
		{7, -3, 0},
		{10 - 0.0001, 10, 10 - 0.0001},
		{10 + 3.2, 10, 10 + 3.2 - 10},
	}

	for _, test := range tests {
		have := wrap(test.x, test.m)
		if math.Abs(have-test.want) > 1e-12 {
			t.Errorf("wrap(%v, %v):\nhave: %v\nwant: %v", test.x, test.m, have, test.want)
		}
		if test.m > 0 && (have < 0 || have >= test.m) {
			t.Errorf("wrap(%v, %v)=%v is out of range", test.x, test.m, have)
		}
	}
}

func TestWrapPeriodic(t *testing.T) {
	const m = 8
	for _, x := range []float64{0, 0.25, 3.5, 7.75} {
		want := wrap(x, m)
		for k := -4; k <= 4; k++ {
			have := wrap(x+float64(k)*m, m)
			if have != want {
				t.Errorf("wrap(%v+%d*%v, %v): have %v, want %v", x, k, m, m, have, want)
			}
		}
	}
}
