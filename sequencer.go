package glitch

import (
	"math/rand/v2"
)

// region is a playback window inside the used part of the history.
// It covers [start, start+length).
type region struct {
	start  int
	length int
}

func (r region) end() int { return r.start + r.length }

func (r region) contains(pos float64) bool {
	return pos >= float64(r.start) && pos < float64(r.end())
}

const (
	minLoopLength    = 2
	minSegmentLength = 4
)

// randomLoop holds a random sub-region for period advance calls,
// then draws a new one.
//
// The draw picks two uniform positions inside the buffer and uses
// the ordered pair as the region bounds.
type randomLoop struct {
	rng *rand.Rand

	bufferLength int
	period       int
	counter      int
	current      region
}

func newRandomLoop(rng *rand.Rand, bufferLength, period int) randomLoop {
	l := randomLoop{rng: rng}
	l.setPeriod(period)
	l.setBufferLength(bufferLength)
	return l
}

func (l *randomLoop) setPeriod(period int) {
	l.period = clampMin(period, 1)
	l.counter %= l.period
}

// setBufferLength changes the draw range and forces a redraw
// on the next advance.
func (l *randomLoop) setBufferLength(n int) {
	l.bufferLength = clampMin(n, ringMinUsedLength)
	l.counter = 0
	l.current = region{length: l.bufferLength}
}

func (l *randomLoop) advance() region {
	if l.counter == 0 {
		l.current = l.draw()
	}
	l.counter++
	if l.counter >= l.period {
		l.counter = 0
	}
	return l.current
}

func (l *randomLoop) draw() region {
	a := l.rng.IntN(l.bufferLength)
	b := l.rng.IntN(l.bufferLength)
	if a > b {
		a, b = b, a
	}
	r := region{start: a, length: clampMin(b-a, minLoopLength)}
	if r.end() > l.bufferLength {
		r.start = l.bufferLength - r.length
	}
	return r
}

// segmentStepper divides the buffer into equal segments and
// steps through them in order, holding every segment for period
// advance calls.
//
// With divisions=D the stepper visits segments 0..D-2 and wraps;
// the last segment is never visited.
// Fewer than 2 divisions are treated as 2.
//
// When randomPeriod is set, the hold period is redrawn from [2, 4]
// on every step (the CD skip behavior).
// Otherwise the period is the divisions count itself: every segment
// is repeated as many times as there are segments (the repeat behavior).
type segmentStepper struct {
	rng *rand.Rand

	randomPeriod bool

	bufferLength  int
	divisions     int
	segmentLength int
	segmentIndex  int
	period        int
	counter       int
	current       region
}

func newSegmentStepper(rng *rand.Rand, bufferLength, divisions int, randomPeriod bool) segmentStepper {
	s := segmentStepper{
		rng:          rng,
		randomPeriod: randomPeriod,
		divisions:    2,
		period:       1,
	}
	s.setDivisions(divisions)
	s.setBufferLength(bufferLength)
	return s
}

// setBufferLength changes the segmented range and restarts
// the stepping from the first segment.
func (s *segmentStepper) setBufferLength(n int) {
	s.bufferLength = clampMin(n, ringMinUsedLength)
	s.segmentLength = s.bufferLength / s.divisions
	s.counter = 0
	s.segmentIndex = 0
	s.current = region{length: s.bufferLength}
}

func (s *segmentStepper) setDivisions(d int) {
	s.divisions = clampMin(d, 2)
	s.segmentLength = s.bufferLength / s.divisions
	if !s.randomPeriod {
		s.period = s.divisions
		s.counter %= s.period
	}
}

func (s *segmentStepper) advance() region {
	if s.counter == 0 {
		if s.randomPeriod {
			s.period = 2 + s.rng.IntN(3)
		}
		s.current = s.step()
	}
	s.counter++
	if s.counter >= s.period {
		s.counter = 0
	}
	return s.current
}

func (s *segmentStepper) step() region {
	index := s.segmentIndex % (s.divisions - 1)
	s.segmentIndex = (index + 1) % (s.divisions - 1)

	start := index * s.segmentLength
	if start < 0 || start >= s.bufferLength {
		start = 0
	}
	length := clampMin(s.segmentLength, minSegmentLength)
	if start+length > s.bufferLength {
		length = s.bufferLength - start
	}
	return region{start: start, length: length}
}
