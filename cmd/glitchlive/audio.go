package main

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/quasilyte/glitch"
	"github.com/quasilyte/glitch/internal/rtpcast"
	"github.com/quasilyte/glitch/processor"
)

// liveAudio runs the processor inside the device callback.
type liveAudio struct {
	proc   *processor.Processor
	stream *portaudio.Stream
	caster *rtpcast.Caster
	logger *slog.Logger

	sampleRate float64
	bpm        float64
	ppq        float64

	interleaved []float32

	// The state below is published for the UI goroutine.
	modes    atomic.Uint64 // 8 bits per channel
	reversed atomic.Bool
}

func newLiveAudio(proc *processor.Processor, caster *rtpcast.Caster, bpm float64, framesPerBuffer int, logger *slog.Logger) (*liveAudio, error) {
	a := &liveAudio{
		proc:       proc,
		caster:     caster,
		logger:     logger,
		sampleRate: proc.SampleRate(),
		bpm:        bpm,
	}
	numChannels := proc.NumChannels()
	if caster != nil {
		a.interleaved = make([]float32, 0, framesPerBuffer*numChannels)
	}

	stream, err := portaudio.OpenDefaultStream(numChannels, numChannels, a.sampleRate, framesPerBuffer, a.process)
	if err != nil {
		return nil, fmt.Errorf("open audio stream: %w", err)
	}
	a.stream = stream
	return a, nil
}

func (a *liveAudio) Start() error {
	if err := a.stream.Start(); err != nil {
		a.stream.Close()
		return fmt.Errorf("start audio stream: %w", err)
	}
	a.logger.Debug("audio stream started", "sampleRate", a.sampleRate, "bpm", a.bpm)
	return nil
}

func (a *liveAudio) Close() error {
	if err := a.stream.Stop(); err != nil {
		a.logger.Warn("stop audio stream", "err", err)
	}
	return a.stream.Close()
}

func (a *liveAudio) process(in, out [][]float32) {
	if len(out) == 0 || len(in) == 0 {
		return
	}
	n := len(out[0])
	for ch := range out {
		copy(out[ch], in[min(ch, len(in)-1)])
	}

	// The live input has no host transport, so the tempo
	// flag drives a free-running one.
	a.proc.Transport().Store(glitch.Transport{
		Playing: true,
		PPQ:     a.ppq,
		BPM:     a.bpm,
	})
	a.ppq += float64(n) * a.bpm / (60 * a.sampleRate)

	a.proc.ProcessBlock(out)

	engine := a.proc.Engine()
	var modes uint64
	for ch := 0; ch < engine.NumChannels() && ch < 8; ch++ {
		modes |= uint64(engine.ChannelMode(ch)) << (8 * ch)
	}
	a.modes.Store(modes)
	a.reversed.Store(engine.Reversed())

	if a.caster != nil {
		buf := a.interleaved[:0]
		for i := 0; i < n; i++ {
			for ch := range out {
				buf = append(buf, out[ch][i])
			}
		}
		a.interleaved = buf
		a.caster.Write(buf)
	}
}

// ChannelModes returns the last published source modes.
func (a *liveAudio) ChannelModes(numChannels int) []glitch.SourceMode {
	packed := a.modes.Load()
	modes := make([]glitch.SourceMode, min(numChannels, 8))
	for ch := range modes {
		modes[ch] = glitch.SourceMode(packed >> (8 * ch) & 0xff)
	}
	return modes
}
