package glitch

import (
	"errors"
	"math/rand/v2"
	"time"
)

// Engine is a real-time glitch processor.
//
// It records the incoming audio into a history buffer and plays it back
// through a per-channel tape emulation: variable speed, reverse playback,
// tape stops, random loops, CD skips and segment repeats.
// The random decisions are made on the modulation clock ticks;
// see Params for the controls.
//
// Process works in place on non-interleaved float32 blocks.
// An engine is not safe for concurrent use: all methods are expected
// to be called from the audio thread. Use a parameter store to pass
// the controls from other threads (see the processor package).
type Engine struct {
	config     EngineConfig
	sampleRate float64

	pcg *rand.PCG
	rng *rand.Rand

	history  ringBuffer
	channels []engineChannel

	params        Params
	character     character
	paramsApplied bool

	internalClock internalClock
	hostClock     hostClock
	transport     Transport
	ppq           float64

	direction      float64
	rampSamples    float64
	recoverSamples float64

	frame     int64
	tickIndex int

	settings engineSettings
}

type engineSettings struct {
	eventHandler func(e Event)
}

// Transport is a host transport snapshot.
type Transport struct {
	Playing bool

	// PPQ is the position in quarter notes at the beginning of the next block.
	PPQ float64

	// BPM is the current host tempo.
	BPM float64
}

// EngineInfo contains the engine allocation details.
type EngineInfo struct {
	// MemoryUsage approximates the engine state size in bytes.
	// The history buffers dominate this value.
	MemoryUsage uint

	// HistoryCapacity is the allocated history size per channel, in samples.
	// It includes a safety margin that is never used for playback.
	HistoryCapacity int

	// Seed is the random seed the engine was prepared with.
	// Use it in EngineConfig to reproduce a render.
	Seed uint64
}

// EngineConfig configures the engine allocations.
//
// These settings can't be changed without a Prepare call,
// which resets the engine state.
type EngineConfig struct {
	// The audio device sample rate.
	//
	// A zero value will assume a sample rate of 44100.
	SampleRate uint

	// NumChannels is a number of audio channels to process.
	//
	// A zero value means stereo.
	NumChannels int

	// MaxBlockSize is the largest block the host will pass to Process.
	// Bigger blocks are still accepted, they're processed in parts.
	//
	// A zero value will use 512.
	MaxBlockSize int

	// MaxBufferLength is the largest history size in samples
	// that can be selected with Params.BufferLength.
	//
	// A zero value will use 352800 (8 seconds at 44100).
	MaxBufferLength int

	// Seed initializes the engine random number generator.
	// Two engines with the same seed, config and inputs produce
	// identical outputs.
	//
	// A zero value will use a time-based seed.
	Seed uint64
}

const (
	// Every random tape speed or stop change takes this long.
	rampSeconds = 0.15

	// A stopped tape recovers in this time.
	stopRecoverSeconds = 0.003

	minHistoryMargin = 512
)

// NewEngine allocates an engine ready to process audio.
// The engine starts with DefaultParams.
func NewEngine(config EngineConfig) (*Engine, error) {
	e := &Engine{}
	if err := e.Prepare(config); err != nil {
		return nil, err
	}
	return e, nil
}

// SetEventHandler installs an event listener to the engine.
//
// f is called on every engine event, from inside Process.
func (e *Engine) SetEventHandler(f func(e Event)) {
	e.settings.eventHandler = f
}

// Prepare reallocates the engine for a new audio configuration.
//
// This is the only way to change the sample rate, the channel count
// or the block size. All cursors, sequencers and the recorded history
// are reset; the current params are kept, clamped to the new limits.
func (e *Engine) Prepare(config EngineConfig) error {
	if config.NumChannels < 0 {
		return errors.New("invalid channel count (must be at least 1)")
	}
	if config.MaxBlockSize < 0 {
		return errors.New("invalid max block size")
	}
	if config.MaxBufferLength < 0 {
		return errors.New("invalid max buffer length")
	}
	e.applyConfigDefaults(&config)

	e.config = config
	e.sampleRate = float64(config.SampleRate)
	e.rampSamples = samplesFromSeconds(e.sampleRate, rampSeconds)
	e.recoverSamples = samplesFromSeconds(e.sampleRate, stopRecoverSeconds)

	if e.pcg == nil {
		e.pcg = &rand.PCG{}
		e.rng = rand.New(e.pcg)
	}
	e.seedRand()

	margin := clampMin(config.MaxBlockSize, minHistoryMargin)
	e.history = newRingBuffer(config.NumChannels, clampMin(config.MaxBufferLength, ringMinUsedLength)+margin, margin)

	e.channels = make([]engineChannel, config.NumChannels)
	for i := range e.channels {
		ch := &e.channels[i]
		ch.id = i
		ch.speed = NewLine(1, e.rampSamples)
		ch.stop = NewLine(1, e.rampSamples)
		ch.loop = newRandomLoop(e.rng, e.history.usedLength, loopPeriods[i%len(loopPeriods)])
		ch.skipper = newSegmentStepper(e.rng, e.history.usedLength, 4, true)
		ch.repeater = newSegmentStepper(e.rng, e.history.usedLength, 1, false)
	}

	params := e.params
	if !e.paramsApplied {
		params = DefaultParams(e.sampleRate)
	}
	e.paramsApplied = false
	e.reset()
	e.applyParams(params)
	return nil
}

func (e *Engine) applyConfigDefaults(config *EngineConfig) {
	if config.SampleRate == 0 {
		config.SampleRate = 44100
	}
	if config.NumChannels == 0 {
		config.NumChannels = 2
	}
	if config.MaxBlockSize == 0 {
		config.MaxBlockSize = 512
	}
	if config.MaxBufferLength == 0 {
		config.MaxBufferLength = 352800
	}
	if config.Seed == 0 {
		config.Seed = uint64(time.Now().UnixNano()) | 1
	}
}

func (e *Engine) seedRand() {
	e.pcg.Seed(e.config.Seed, e.config.Seed^0x9e3779b97f4a7c15)
}

// Reset clears the recorded history and returns the engine to its
// initial state, as if it was just prepared.
// The random generator is re-seeded, so a reset engine
// repeats its previous output for the same input.
func (e *Engine) Reset() {
	e.seedRand()
	e.reset()
	params := e.params
	e.paramsApplied = false
	e.applyParams(params)
}

func (e *Engine) reset() {
	e.history.clear()
	for i := range e.channels {
		e.channels[i].Reset(e.history.usedLength)
	}
	e.internalClock = internalClock{cycleLength: 1}
	e.hostClock.reset()
	e.transport = Transport{}
	e.ppq = 0
	e.direction = 1
	e.frame = 0
	e.tickIndex = 0
}

// GetInfo returns engine-related info.
// See EngineInfo for more details.
func (e *Engine) GetInfo() EngineInfo {
	return EngineInfo{
		MemoryUsage:     engineSize(e),
		HistoryCapacity: e.history.capacity,
		Seed:            e.config.Seed,
	}
}

// Params returns the currently active controls, after clamping.
func (e *Engine) Params() Params { return e.params }

// SampleRate reports the prepared sample rate.
func (e *Engine) SampleRate() float64 { return e.sampleRate }

// NumChannels reports the prepared channel count.
func (e *Engine) NumChannels() int { return len(e.channels) }

// MaxBufferLength reports the largest valid Params.BufferLength value.
func (e *Engine) MaxBufferLength() int { return e.history.maxUsedLength() }

// ChannelMode reports the current source mode of the channel.
func (e *Engine) ChannelMode(ch int) SourceMode {
	if ch < 0 || ch >= len(e.channels) {
		return SourceFree
	}
	return e.channels[ch].mode
}

// Reversed reports whether the tape currently plays backwards.
func (e *Engine) Reversed() bool { return e.direction < 0 }

// SetParams updates the engine controls.
// Only the changed values are re-applied, so it's fine to call
// this method before every block.
func (e *Engine) SetParams(p Params) {
	e.applyParams(p)
}

// SetTransport updates the host transport snapshot.
// It only matters for ClockHost mode and should be called before
// every block while the host is playing.
func (e *Engine) SetTransport(t Transport) {
	e.transport = t
	e.ppq = t.PPQ
}

func (e *Engine) applyParams(p Params) {
	p = p.normalized(e.history.maxUsedLength())
	force := !e.paramsApplied
	prev := e.params
	e.params = p
	e.paramsApplied = true

	if force || p.BufferLength != prev.BufferLength {
		e.history.setUsedLength(p.BufferLength)
		for i := range e.channels {
			e.channels[i].setBufferLength(e.history.usedLength)
		}
	}
	if force || p.Repeats != prev.Repeats {
		for i := range e.channels {
			ch := &e.channels[i]
			ch.repeater.setDivisions(p.Repeats)
			ch.repeatCounter = 0
		}
	}
	if force || p.ClockPeriod != prev.ClockPeriod {
		e.internalClock.setCycleLength(p.ClockPeriod)
	}
	if force || p.Subdivision != prev.Subdivision {
		e.hostClock.setSubdivision(p.Subdivision)
	}
	if force || p.ClockMode != prev.ClockMode {
		e.hostClock.reset()
	}
	if force || p.AnalogFX != prev.AnalogFX || p.DigitalFX != prev.DigitalFX {
		e.character = makeCharacter(p.AnalogFX, p.DigitalFX)
		if p.AnalogFX == 0 {
			for i := range e.channels {
				e.channels[i].speed.SetDestination(1)
			}
		}
	}

	e.updateModes()
}

// Process replaces the block contents with the engine output.
//
// block is a list of per-channel sample slices of the same length.
// Extra channels above the prepared channel count are silenced.
// The recorded input is the block contents before the call.
func (e *Engine) Process(block [][]float32) {
	numChannels := min(len(block), len(e.channels))
	for _, extra := range block[numChannels:] {
		clear(extra)
	}
	if numChannels == 0 {
		return
	}
	n := len(block[0])
	for _, samples := range block[1:numChannels] {
		n = min(n, len(samples))
	}

	for offset := 0; offset < n; offset += e.config.MaxBlockSize {
		end := min(offset+e.config.MaxBlockSize, n)
		e.processChunk(block[:numChannels], offset, end)
	}
}

func (e *Engine) processChunk(block [][]float32, from, to int) {
	for ch, samples := range block {
		e.history.ingest(ch, samples[from:to])
	}

	var ppqStep float64
	if e.transport.Playing {
		ppqStep = e.transport.BPM / (60 * e.sampleRate)
	}

	for i := from; i < to; i++ {
		if e.clockTick() {
			e.tick()
		}
		if ppqStep != 0 {
			e.ppq += ppqStep
		}
		for ch, samples := range block {
			samples[i] = e.channels[ch].nextSample(&e.history, e.direction, e.recoverSamples)
		}
		e.frame++
	}
}

func (e *Engine) clockTick() bool {
	if e.params.ClockMode == ClockHost {
		if !e.transport.Playing {
			return false
		}
		return e.hostClock.tick(e.ppq)
	}
	return e.internalClock.tick()
}

// tick makes all the random character decisions.
// The order of random draws is part of the seed reproducibility.
func (e *Engine) tick() {
	c := &e.character

	for i := range e.channels {
		ch := &e.channels[i]
		if c.bendDepth > 0 && e.rng.Float64() < c.bendProb {
			ch.speed.SetDestination(tapeBendValues[e.rng.IntN(c.bendDepth)])
		}
	}

	if e.rng.Float64() < c.reverseProb {
		e.direction = -1
	} else {
		e.direction = 1
	}

	for i := range e.channels {
		ch := &e.channels[i]
		if e.rng.Float64() < c.stopProb {
			ch.stop.SetRampDuration(e.rampSamples)
			ch.stop.SetDestination(0)
		}
	}

	for i := range e.channels {
		e.channels[i].roll = e.rng.Float64()
	}

	if e.settings.eventHandler != nil {
		e.settings.eventHandler(Event{
			Kind:    EventTick,
			Channel: -1,
			Time:    e.currentTime(),
			value:   uint64(e.tickIndex),
		})
	}
	e.tickIndex++

	e.updateModes()
}

func (e *Engine) updateModes() {
	for i := range e.channels {
		ch := &e.channels[i]
		prev := ch.mode
		if !ch.setMode(e.modeFor(ch.roll)) {
			continue
		}
		if e.settings.eventHandler != nil {
			e.settings.eventHandler(Event{
				Kind:    EventModeChange,
				Channel: ch.id,
				Time:    e.currentTime(),
				value:   uint64(prev)<<8 | uint64(ch.mode),
			})
		}
	}
}

func (e *Engine) modeFor(roll float64) SourceMode {
	if e.params.Repeats > 1 {
		return SourceRepeat
	}
	switch {
	case roll < e.character.loopProb:
		return SourceLoop
	case roll < e.character.loopProb+e.character.skipProb:
		return SourceSkip
	default:
		return SourceFree
	}
}

func (e *Engine) currentTime() float64 {
	return float64(e.frame) / e.sampleRate
}
