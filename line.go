package glitch

import (
	"math"
)

// Line is a value that moves linearly towards its destination
// over a configured number of samples.
//
// Every Render call advances the value by one sample.
// Once the destination is reached, the value stays there exactly:
// a line never overshoots and never accumulates rounding drift at the end.
//
// The zero value is a line sitting at 0 with a one-sample ramp.
type Line struct {
	value       float64
	start       float64
	destination float64
	increment   float64
	duration    float64
	stepsLeft   int
}

// NewLine creates a line resting at the initial value.
// See SetRampDuration for the rampSamples semantics.
func NewLine(initial, rampSamples float64) Line {
	l := Line{
		value:       initial,
		start:       initial,
		destination: initial,
	}
	l.SetRampDuration(rampSamples)
	return l
}

// SetRampDuration sets the number of samples the next ramp will take.
// Durations below 1 are treated as 1.
//
// A ramp that is already in progress keeps its slope.
func (l *Line) SetRampDuration(samples float64) {
	if !(samples >= 1) { // also catches NaN
		samples = 1
	}
	l.duration = samples
}

// SetDestination starts a ramp from the current value towards v.
// Setting the same destination again is a no-op.
func (l *Line) SetDestination(v float64) {
	if v == l.destination {
		return
	}
	duration := max(l.duration, 1) // the zero value has no duration set
	l.start = l.value
	l.destination = v
	l.increment = (l.destination - l.start) / duration
	l.stepsLeft = int(math.Ceil(duration))
}

// Render advances the line by one sample and returns the new value.
func (l *Line) Render() float64 {
	if l.stepsLeft == 0 {
		return l.value
	}
	l.stepsLeft--
	if l.stepsLeft == 0 {
		l.value = l.destination
		return l.value
	}
	l.value += l.increment
	if (l.increment > 0 && l.value > l.destination) || (l.increment < 0 && l.value < l.destination) {
		l.value = l.destination
		l.stepsLeft = 0
	}
	return l.value
}

// Value reports the current value without advancing the line.
func (l *Line) Value() float64 { return l.value }

// Destination reports the value the line is moving towards.
func (l *Line) Destination() float64 { return l.destination }

// Reset puts the line at v and cancels any ramp in progress.
func (l *Line) Reset(v float64) {
	l.value = v
	l.start = v
	l.destination = v
	l.increment = 0
	l.stepsLeft = 0
}
