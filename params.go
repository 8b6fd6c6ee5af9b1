package glitch

import (
	"math"
)

// Params are the live engine controls.
// They can be changed between Process calls; the engine picks
// them up at the start of the next block.
//
// All values are clamped into their valid ranges.
type Params struct {
	// AnalogFX is the tape character amount in [0, 1].
	// It drives tape speed bends, reverse playback and tape stops.
	// A zero value also returns all tape speeds back to 1.
	AnalogFX float64

	// DigitalFX is the digital character amount in [0, 1].
	// It drives the probability of random loops and CD skips.
	DigitalFX float64

	// BufferLength is the used history size in samples.
	// It's clamped to the engine's history capacity.
	BufferLength int

	// ClockPeriod is the internal clock cycle length in samples.
	ClockPeriod int

	// ClockMode selects between the internal clock and
	// the host transport synchronization.
	ClockMode ClockMode

	// Subdivision is the host-synced clock note value.
	Subdivision Subdivision

	// Repeats above 1 enables the repeat mode: the history is split
	// into Repeats segments and every segment is played Repeats times.
	// The value is clamped to [1, MaxRepeats].
	Repeats int
}

const MaxRepeats = 64

// DefaultParams returns the engine controls defaults for the given sample rate.
func DefaultParams(sampleRate float64) Params {
	return Params{
		AnalogFX:     0.35,
		DigitalFX:    0.35,
		BufferLength: int(samplesFromSeconds(sampleRate, 1.5)),
		ClockPeriod:  int(samplesFromSeconds(sampleRate, 1.0)),
		ClockMode:    ClockInternal,
		Subdivision:  DefaultSubdivision,
		Repeats:      1,
	}
}

func (p Params) normalized(maxBufferLength int) Params {
	p.AnalogFX = clamp(p.AnalogFX, 0, 1)
	if math.IsNaN(p.AnalogFX) {
		p.AnalogFX = 0
	}
	p.DigitalFX = clamp(p.DigitalFX, 0, 1)
	if math.IsNaN(p.DigitalFX) {
		p.DigitalFX = 0
	}
	p.BufferLength = clamp(p.BufferLength, ringMinUsedLength, maxBufferLength)
	p.ClockPeriod = clampMin(p.ClockPeriod, 1)
	if p.ClockMode != ClockHost {
		p.ClockMode = ClockInternal
	}
	p.Subdivision = p.Subdivision.normalize()
	p.Repeats = clamp(p.Repeats, 1, MaxRepeats)
	return p
}

// Tape speed multipliers a bend can pick from.
// The bend depth selects how many of them are eligible.
var tapeBendValues = [...]float64{1.0, 0.67, 1.5, 0.5}

// character is the set of per-tick probabilities derived from
// the analog and digital amounts.
type character struct {
	bendProb    float64
	bendDepth   int
	reverseProb float64
	stopProb    float64
	loopProb    float64
	skipProb    float64
}

func makeCharacter(analog, digital float64) character {
	var c character

	c.bendProb = analog
	switch {
	case analog == 0:
		c.bendDepth = 0
	case analog < 0.35:
		c.bendDepth = 2
	default:
		c.bendDepth = len(tapeBendValues)
	}
	c.reverseProb = clamp(analog*1.5, 0, 0.8)
	c.stopProb = 0.4 * math.Pow(analog, 1.5)

	c.loopProb = math.Pow(digital, 0.707)
	c.skipProb = 0.25 * digital * (1 - c.loopProb)

	return c
}

// SourceMode tells where a channel takes its next sample from.
type SourceMode uint8

const (
	// SourceFree is a plain tape playback: the cursor runs through the
	// whole used history at the current playback rate.
	SourceFree SourceMode = iota

	// SourceLoop keeps the cursor inside a random region
	// that is redrawn periodically.
	SourceLoop

	// SourceSkip jumps between consecutive history segments,
	// like a skipping CD player.
	SourceSkip

	// SourceRepeat plays every history segment several times in a row.
	// It's active whenever Params.Repeats is above 1.
	SourceRepeat
)

func (m SourceMode) String() string {
	switch m {
	case SourceFree:
		return "free"
	case SourceLoop:
		return "loop"
	case SourceSkip:
		return "skip"
	case SourceRepeat:
		return "repeat"
	default:
		return "unknown"
	}
}
