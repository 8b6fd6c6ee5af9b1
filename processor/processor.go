// Package processor wires the glitch engine and the lofi stages into
// a complete effect that can be hosted by an audio callback or
// pulled through an io.Reader.
//
// The signal flow of a block is:
//
//	input -> engine -> distortion (on some ticks) -> codec -> dry/wet -> output
package processor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/quasilyte/glitch"
	"github.com/quasilyte/glitch/lofi"
)

// Config configures the processor allocations.
type Config struct {
	// SampleRate is the audio stream sample rate.
	//
	// A zero value will assume a sample rate of 44100.
	SampleRate uint

	// NumChannels is the audio stream channel count.
	//
	// A zero value means stereo.
	NumChannels int

	// MaxBlockSize is the largest block passed to ProcessBlock.
	//
	// A zero value will use 512.
	MaxBlockSize int

	// Seed makes the renders reproducible.
	// See glitch.EngineConfig.Seed.
	Seed uint64

	// Params are the initial controls.
	//
	// A nil value will use DefaultParams.
	Params *Params

	// Logger receives the diagnostics.
	// The processor never logs per-block events.
	//
	// A nil value discards the logs.
	Logger *slog.Logger
}

// Processor is a glitch effect with all of its post-processing stages.
//
// ProcessBlock must be called from a single goroutine (the audio thread).
// The controls are passed through the Params and Transport stores,
// which are safe for concurrent use.
type Processor struct {
	engine *glitch.Engine
	spec   lofi.Spec
	pcg    *rand.PCG
	rng    *rand.Rand
	logger *slog.Logger

	params           *ParamStore
	transport        *TransportStore
	transportVersion uint64

	current Params
	applied bool

	distortionKind  lofi.Kind
	distortion      lofi.Processor
	applyDistortion bool

	codecKind lofi.Kind
	codec     lofi.Processor

	mixer *lofi.Mixer
}

func New(config Config) (*Processor, error) {
	if config.SampleRate == 0 {
		config.SampleRate = 44100
	}
	if config.NumChannels == 0 {
		config.NumChannels = 2
	}
	if config.MaxBlockSize == 0 {
		config.MaxBlockSize = 512
	}
	if config.MaxBlockSize < 0 {
		return nil, errors.New("invalid max block size")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	params := DefaultParams()
	if config.Params != nil {
		params = *config.Params
	}

	engine, err := glitch.NewEngine(glitch.EngineConfig{
		SampleRate:      config.SampleRate,
		NumChannels:     config.NumChannels,
		MaxBlockSize:    config.MaxBlockSize,
		MaxBufferLength: int(MaxBufferLength * float64(config.SampleRate) / 1000),
		Seed:            config.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	pcg := &rand.PCG{}
	p := &Processor{
		engine: engine,
		spec: lofi.Spec{
			SampleRate:   float64(config.SampleRate),
			MaxBlockSize: config.MaxBlockSize,
			NumChannels:  config.NumChannels,
		},
		pcg:       pcg,
		rng:       rand.New(pcg),
		logger:    config.Logger,
		params:    NewParamStore(params),
		transport: &TransportStore{},
		mixer: lofi.NewMixer(lofi.Spec{
			NumChannels:  config.NumChannels,
			MaxBlockSize: config.MaxBlockSize,
		}),
	}
	p.seedRand()
	engine.SetEventHandler(p.handleEvent)

	p.logger.Debug("processor created",
		"sampleRate", config.SampleRate,
		"channels", config.NumChannels,
		"maxBlockSize", config.MaxBlockSize,
		"seed", engine.GetInfo().Seed,
		"memoryUsage", engine.GetInfo().MemoryUsage,
	)

	p.apply(p.params.Load())
	return p, nil
}

// Params returns the controls store.
func (p *Processor) Params() *ParamStore { return p.params }

// Transport returns the host transport store.
// It's only needed for glitch.ClockHost mode.
func (p *Processor) Transport() *TransportStore { return p.transport }

// Engine returns the underlying engine.
// It must only be accessed from the audio thread.
func (p *Processor) Engine() *glitch.Engine { return p.engine }

func (p *Processor) NumChannels() int { return p.spec.NumChannels }

func (p *Processor) SampleRate() float64 { return p.spec.SampleRate }

// Slots reports the active distortion and codec kinds.
// A codec that failed to initialize is reported as lofi.KindNone.
func (p *Processor) Slots() (distortion, codec lofi.Kind) {
	return p.distortionKind, p.codecKind
}

// DistortionActive reports whether the last tick enabled the distortion stage.
func (p *Processor) DistortionActive() bool { return p.applyDistortion }

// Reset clears the recorded history and all stage states.
// Like glitch.Engine.Reset, it re-seeds the random generators,
// so a reset processor repeats its output for the same input.
func (p *Processor) Reset() {
	p.engine.Reset()
	p.seedRand()
	p.applyDistortion = false
	p.transportVersion = 0

	// Re-create the slots to drop their randomized parameters.
	p.applied = false
	p.apply(p.current)
}

func (p *Processor) seedRand() {
	seed := p.engine.GetInfo().Seed
	p.pcg.Seed(seed, seed>>1)
}

// ProcessBlock applies the effect to the block in place.
// The block layout is the same as for glitch.Engine.Process.
func (p *Processor) ProcessBlock(block [][]float32) {
	params := p.params.Load()
	p.apply(params)

	if params.ClockMode == glitch.ClockHost {
		t, version := p.transport.Load()
		if version != p.transportVersion {
			p.transportVersion = version
			p.engine.SetTransport(t)
		}
	}

	p.mixer.PushDry(block)
	p.engine.Process(block)
	if p.applyDistortion && p.distortion != nil {
		p.distortion.ProcessBlock(block)
	}
	if p.codec != nil {
		p.codec.ProcessBlock(block)
	}
	p.mixer.MixWet(block, params.DryWet)
}

func (p *Processor) apply(params Params) {
	if p.applied && params == p.current {
		return
	}
	prev := p.current
	force := !p.applied
	p.current = params
	p.applied = true

	p.engine.SetParams(params.engineParams(p.spec.SampleRate))

	if force || params.Distortion != prev.Distortion {
		p.releaseSlot(p.distortion)
		p.distortion = p.createSlot(params.Distortion)
		p.distortionKind = params.Distortion
		p.applyDistortion = false
	}
	if force || params.Codec != prev.Codec {
		p.releaseSlot(p.codec)
		p.codec = p.createSlot(params.Codec)
		if p.codec == nil {
			p.codecKind = lofi.KindNone
		} else {
			p.codecKind = params.Codec
		}
	}
	if p.codec != nil && (force || params.Codec != prev.Codec || params.Downsampling != prev.Downsampling || params.LofiFX != prev.LofiFX) {
		p.codec.SetParameters(params.codecParameters())
	}
}

func (p *Processor) createSlot(kind lofi.Kind) lofi.Processor {
	slot := newSlotProcessor(kind)
	if slot == nil {
		return nil
	}
	if err := slot.Prepare(p.spec); err != nil {
		p.logger.Error("can't prepare a processor", "kind", kind, "err", err)
		return nil
	}
	p.logger.Debug("processor slot changed", "kind", kind)
	return slot
}

// releaseSlot frees the native resources held by a replaced slot.
func (p *Processor) releaseSlot(slot lofi.Processor) {
	c, ok := slot.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		p.logger.Warn("can't release a processor", "err", err)
	}
}

func (p *Processor) handleEvent(e glitch.Event) {
	if e.Kind != glitch.EventTick {
		return
	}
	amount := p.current.LofiFX
	p.applyDistortion = lofi.ShouldApply(amount, p.rng)
	if p.distortion != nil {
		p.distortion.SetParameters(lofi.Randomize(p.distortion.Parameters(), amount, p.rng))
	}
}
