package glitch

import (
	"fmt"
	"math"
)

// ClockMode selects the source of the modulation ticks.
type ClockMode int

const (
	// ClockInternal fires a tick every Params.ClockPeriod samples.
	ClockInternal ClockMode = iota

	// ClockHost fires a tick every time the host transport position
	// crosses a Params.Subdivision boundary.
	// No ticks are produced while the host transport is stopped.
	ClockHost
)

var clockModeNames = [...]string{
	ClockInternal: "internal",
	ClockHost:     "host",
}

func (m ClockMode) String() string {
	if m < 0 || int(m) >= len(clockModeNames) {
		return fmt.Sprintf("ClockMode(%d)", int(m))
	}
	return clockModeNames[m]
}

func (m ClockMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ClockMode) UnmarshalText(text []byte) error {
	v, err := ParseClockMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseClockMode converts a ClockMode.String() result back to a ClockMode.
func ParseClockMode(s string) (ClockMode, error) {
	for i, name := range clockModeNames {
		if name == s {
			return ClockMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown clock mode %q", s)
}

// Subdivision is a musical note value used by the host-synced clock.
type Subdivision int

const (
	Subdivision4Bars Subdivision = iota
	Subdivision2Bars
	Subdivision1Bar
	SubdivisionHalfDotted
	SubdivisionHalf
	SubdivisionQuarterDotted
	SubdivisionQuarter
	SubdivisionEighthDotted
	SubdivisionEighth
	SubdivisionSixteenth

	numSubdivisions
)

// DefaultSubdivision is a half note.
const DefaultSubdivision = SubdivisionHalf

var subdivisionInfo = [numSubdivisions]struct {
	name     string
	quarters float64
}{
	Subdivision4Bars:         {"4 bars", 16},
	Subdivision2Bars:         {"2 bars", 8},
	Subdivision1Bar:          {"1 bar", 4},
	SubdivisionHalfDotted:    {"1/2d", 3},
	SubdivisionHalf:          {"1/2", 2},
	SubdivisionQuarterDotted: {"1/4d", 1.5},
	SubdivisionQuarter:       {"1/4", 1},
	SubdivisionEighthDotted:  {"1/8d", 0.75},
	SubdivisionEighth:        {"1/8", 0.5},
	SubdivisionSixteenth:     {"1/16", 0.25},
}

// Quarters reports the note length in quarter notes.
// Invalid values are treated as DefaultSubdivision.
func (s Subdivision) Quarters() float64 {
	return subdivisionInfo[s.normalize()].quarters
}

func (s Subdivision) String() string {
	if s < 0 || s >= numSubdivisions {
		return fmt.Sprintf("Subdivision(%d)", int(s))
	}
	return subdivisionInfo[s].name
}

func (s Subdivision) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Subdivision) UnmarshalText(text []byte) error {
	v, err := ParseSubdivision(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Subdivision) normalize() Subdivision {
	if s < 0 || s >= numSubdivisions {
		return DefaultSubdivision
	}
	return s
}

// ParseSubdivision accepts the names reported by Subdivision.String,
// like "1/4d" or "2 bars".
func ParseSubdivision(s string) (Subdivision, error) {
	for i, info := range subdivisionInfo {
		if info.name == s {
			return Subdivision(i), nil
		}
	}
	return 0, fmt.Errorf("unknown subdivision %q", s)
}

// Subdivisions lists all valid note values, from the longest to the shortest.
func Subdivisions() []Subdivision {
	list := make([]Subdivision, numSubdivisions)
	for i := range list {
		list[i] = Subdivision(i)
	}
	return list
}

// internalClock fires on the first tick and then every cycleLength ticks.
type internalClock struct {
	counter     int
	cycleLength int
}

func (c *internalClock) setCycleLength(n int) {
	c.cycleLength = clampMin(n, 1)
	c.counter %= c.cycleLength
}

func (c *internalClock) tick() bool {
	fired := c.counter == 0
	c.counter++
	if c.counter >= c.cycleLength {
		c.counter = 0
	}
	return fired
}

// hostClock fires whenever floor(ppq/quarters) changes.
// The first observed position always fires.
type hostClock struct {
	quarters    float64
	lastQuantum int64
	started     bool
}

func (c *hostClock) setSubdivision(s Subdivision) {
	c.quarters = s.Quarters()
}

func (c *hostClock) reset() {
	c.started = false
	c.lastQuantum = 0
}

func (c *hostClock) tick(ppq float64) bool {
	q := int64(math.Floor(ppq / c.quarters))
	if c.started && q == c.lastQuantum {
		return false
	}
	c.started = true
	c.lastQuantum = q
	return true
}
