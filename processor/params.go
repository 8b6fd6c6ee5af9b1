package processor

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/quasilyte/glitch"
	"github.com/quasilyte/glitch/lofi"
)

// Params is the complete set of user-facing controls.
//
// The time-based values are in milliseconds, so the same preset works
// for any sample rate. Out of range values are clamped when applied.
type Params struct {
	// AnalogFX is the tape character amount, [0, 1].
	AnalogFX float64 `json:"analog_fx"`

	// DigitalFX is the loops and skips amount, [0, 1].
	DigitalFX float64 `json:"digital_fx"`

	// LofiFX is the randomized distortion amount, [0, 1].
	LofiFX float64 `json:"lofi_fx"`

	// ClockSpeed is the internal clock period, [80, 2000] ms.
	ClockSpeed float64 `json:"clock_speed_ms"`

	ClockMode glitch.ClockMode   `json:"clock_mode"`
	ClockNote glitch.Subdivision `json:"clock_note"`

	// BufferLength is the recorded history size, [12, 8000] ms.
	BufferLength float64 `json:"buffer_length_ms"`

	// Repeats is [1, 64]; 1 disables the repeat mode.
	Repeats int `json:"repeats"`

	// DryWet is the output blend, 0 is fully dry.
	DryWet float64 `json:"dry_wet"`

	// Distortion is either lofi.KindBitcrush or lofi.KindSaturation.
	Distortion lofi.Kind `json:"distortion"`

	// Codec is lofi.KindNone, lofi.KindMuLaw or lofi.KindOpus.
	Codec lofi.Kind `json:"codec"`

	// Downsampling is the codec rate reduction factor, [1, 8].
	Downsampling int `json:"downsampling"`
}

const (
	MinClockSpeed   = 80.0
	MaxClockSpeed   = 2000.0
	MinBufferLength = 12.0
	MaxBufferLength = 8000.0
	MaxDownsampling = 8
)

func DefaultParams() Params {
	return Params{
		AnalogFX:     0.35,
		DigitalFX:    0.35,
		LofiFX:       0,
		ClockSpeed:   1000,
		ClockMode:    glitch.ClockInternal,
		ClockNote:    glitch.DefaultSubdivision,
		BufferLength: 1500,
		Repeats:      1,
		DryWet:       0.4,
		Distortion:   lofi.KindBitcrush,
		Codec:        lofi.KindNone,
		Downsampling: 1,
	}
}

// Normalized returns a copy of p with all values clamped to their ranges.
func (p Params) Normalized() Params {
	p.AnalogFX = unit(p.AnalogFX)
	p.DigitalFX = unit(p.DigitalFX)
	p.LofiFX = unit(p.LofiFX)
	p.DryWet = unit(p.DryWet)
	p.ClockSpeed = clampValue(p.ClockSpeed, MinClockSpeed, MaxClockSpeed)
	p.BufferLength = clampValue(p.BufferLength, MinBufferLength, MaxBufferLength)
	p.Repeats = min(max(p.Repeats, 1), glitch.MaxRepeats)
	p.Downsampling = min(max(p.Downsampling, 1), MaxDownsampling)
	if !p.Distortion.IsDistortion() {
		p.Distortion = lofi.KindBitcrush
	}
	if !p.Codec.IsCodec() {
		p.Codec = lofi.KindNone
	}
	return p
}

func (p Params) engineParams(sampleRate float64) glitch.Params {
	return glitch.Params{
		AnalogFX:     p.AnalogFX,
		DigitalFX:    p.DigitalFX,
		BufferLength: int(math.Round(p.BufferLength * sampleRate / 1000)),
		ClockPeriod:  int(math.Round(p.ClockSpeed * sampleRate / 1000)),
		ClockMode:    p.ClockMode,
		Subdivision:  p.ClockNote,
		Repeats:      p.Repeats,
	}
}

func (p Params) codecParameters() lofi.Parameters {
	params := lofi.DefaultParameters()
	params.Downsampling = p.Downsampling
	params.Bitrate = int(32000 - 24000*p.LofiFX)
	return params
}

func unit(v float64) float64 { return clampValue(v, 0, 1) }

func clampValue(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}

// ParamStore publishes Params from control threads to the audio thread.
//
// Store and Update can be called from any goroutine.
// Load never blocks and never allocates, so it's safe to call it
// from the audio callback.
type ParamStore struct {
	mu sync.Mutex // serializes writers only
	p  atomic.Pointer[Params]
}

func NewParamStore(p Params) *ParamStore {
	s := &ParamStore{}
	s.Store(p)
	return s
}

func (s *ParamStore) Load() Params {
	return *s.p.Load()
}

func (s *ParamStore) Store(p Params) {
	p = p.Normalized()
	s.mu.Lock()
	s.p.Store(&p)
	s.mu.Unlock()
}

// Update applies f to the current params and publishes the result.
func (s *ParamStore) Update(f func(p *Params)) Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *s.p.Load()
	f(&p)
	p = p.Normalized()
	s.p.Store(&p)
	return p
}

// TransportStore holds the latest host transport snapshot.
type TransportStore struct {
	mu      sync.Mutex
	t       glitch.Transport
	version uint64
}

// Store publishes a new transport snapshot.
// A host calls it before every processed block.
func (s *TransportStore) Store(t glitch.Transport) {
	s.mu.Lock()
	s.t = t
	s.version++
	s.mu.Unlock()
}

// Load returns the latest snapshot and its version.
// The version changes with every Store call.
func (s *TransportStore) Load() (glitch.Transport, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t, s.version
}
