// Package opuscodec implements a lossy codec degradation stage:
// the signal goes through a real Opus encoder and decoder.
//
// Low bitrates and narrow codec bandwidths give the characteristic
// "bad phone line" artifacts. The Downsampling parameter selects
// the codec sample rate, from 48kHz (1) down to 8kHz (6 and above).
package opuscodec

import (
	"errors"
	"fmt"
	"math"

	"github.com/dh1tw/gosamplerate"
	"github.com/hraban/opus"

	"github.com/quasilyte/glitch/lofi"
)

const (
	// 20ms, the most common Opus frame duration.
	framesPerSecond = 50

	// Large enough for any single Opus frame.
	maxPacketSize = 1275

	minBitrate = 6000
	maxBitrate = 128000

	// The resamplers are fed in parts of this many frames,
	// so their output buffers never overflow.
	resampleChunk = 1024
)

// Codec is a lofi.Processor running every block through Opus.
//
// The output is delayed by one codec frame, or by two frames
// when the codec rate differs from the stream rate.
type Codec struct {
	spec   lofi.Spec
	params lofi.Parameters

	codecRate int
	frameSize int

	enc *opus.Encoder
	dec *opus.Decoder

	// Both are nil when no rate conversion is needed.
	down *resampler
	up   *resampler

	interleaved []float32
	pending     []float32 // interleaved, at codec rate
	decoded     []float32 // interleaved, at host rate
	packet      []byte
	pcm         []float32
}

func New() *Codec {
	return &Codec{params: lofi.DefaultParameters()}
}

func (c *Codec) Prepare(spec lofi.Spec) error {
	if spec.NumChannels < 1 || spec.NumChannels > 2 {
		return errors.New("unsupported channel count (only mono and stereo are supported)")
	}
	if spec.SampleRate <= 0 {
		return errors.New("invalid sample rate")
	}
	c.spec = spec
	c.codecRate = 0
	return c.configure(c.params)
}

// Reset re-creates the codec state.
func (c *Codec) Reset() {
	if c.enc == nil {
		return
	}
	c.codecRate = 0
	_ = c.configure(c.params)
}

func (c *Codec) Parameters() lofi.Parameters { return c.params }

// SetParameters applies new parameters.
// Changing the codec rate re-creates the encoder and the decoder.
func (c *Codec) SetParameters(p lofi.Parameters) {
	if c.spec.NumChannels == 0 {
		c.params = p
		return
	}
	// The rate is validated by Prepare, so the errors here
	// are only possible with an out of memory libopus.
	_ = c.configure(p)
}

func (c *Codec) configure(p lofi.Parameters) error {
	p.Downsampling = max(p.Downsampling, 1)
	p.Bitrate = min(max(p.Bitrate, minBitrate), maxBitrate)
	c.params = p

	rate := codecRateFor(p.Downsampling)
	if rate != c.codecRate {
		enc, err := opus.NewEncoder(rate, c.spec.NumChannels, opus.AppAudio)
		if err != nil {
			return fmt.Errorf("create opus encoder: %w", err)
		}
		dec, err := opus.NewDecoder(rate, c.spec.NumChannels)
		if err != nil {
			return fmt.Errorf("create opus decoder: %w", err)
		}
		down, up, err := c.newResamplers(rate)
		if err != nil {
			return err
		}
		c.Close()
		c.enc = enc
		c.dec = dec
		c.down = down
		c.up = up
		c.codecRate = rate
		c.frameSize = rate / framesPerSecond
		c.packet = make([]byte, maxPacketSize)
		c.pcm = make([]float32, c.frameSize*c.spec.NumChannels)
		c.pending = c.pending[:0]
		c.prefill()
	}
	if err := c.enc.SetBitrate(p.Bitrate); err != nil {
		return fmt.Errorf("set opus bitrate: %w", err)
	}
	return nil
}

// Close releases the resamplers.
func (c *Codec) Close() error {
	var errs []error
	for _, r := range []*resampler{c.down, c.up} {
		if r != nil {
			errs = append(errs, r.close())
		}
	}
	c.down = nil
	c.up = nil
	return errors.Join(errs...)
}

func (c *Codec) newResamplers(rate int) (down, up *resampler, err error) {
	if float64(rate) == c.spec.SampleRate {
		return nil, nil, nil
	}
	down, err = newResampler(c.spec.NumChannels, float64(rate)/c.spec.SampleRate)
	if err != nil {
		return nil, nil, err
	}
	up, err = newResampler(c.spec.NumChannels, c.spec.SampleRate/float64(rate))
	if err != nil {
		down.close()
		return nil, nil, err
	}
	return down, up, nil
}

// prefill puts silence into the output queue, so the decoded stream
// never runs dry between codec frames.
// The resamplers hold back a few samples, so they need another frame.
func (c *Codec) prefill() {
	frames := 1
	if c.down != nil {
		frames = 2
	}
	n := frames * int(c.spec.SampleRate/framesPerSecond) * c.spec.NumChannels
	c.decoded = append(c.decoded[:0], make([]float32, n)...)
}

func (c *Codec) ProcessBlock(block [][]float32) {
	numChannels := c.spec.NumChannels
	if len(block) < numChannels || c.enc == nil {
		return
	}
	n := len(block[0])

	c.interleaved = c.interleaved[:0]
	for i := 0; i < n; i++ {
		for ch := 0; ch < numChannels; ch++ {
			c.interleaved = append(c.interleaved, block[ch][i])
		}
	}
	c.pending = c.down.process(c.pending, c.interleaved)

	frameLen := c.frameSize * numChannels
	for len(c.pending) >= frameLen {
		c.runFrame(c.pending[:frameLen])
		c.pending = c.pending[:copy(c.pending, c.pending[frameLen:])]
	}

	available := min(n, len(c.decoded)/numChannels)
	for i := 0; i < available; i++ {
		for ch := 0; ch < numChannels; ch++ {
			block[ch][i] = c.decoded[i*numChannels+ch]
		}
	}
	for ch := 0; ch < numChannels; ch++ {
		clear(block[ch][available:])
	}
	c.decoded = c.decoded[:copy(c.decoded, c.decoded[available*numChannels:])]
}

func (c *Codec) runFrame(frame []float32) {
	numChannels := c.spec.NumChannels
	size, err := c.enc.EncodeFloat32(frame, c.packet)
	if err != nil {
		clear(c.pcm)
		c.decoded = c.up.process(c.decoded, c.pcm)
		return
	}
	samples, err := c.dec.DecodeFloat32(c.packet[:size], c.pcm)
	if err != nil {
		// Treat it as a lost packet.
		clear(c.pcm)
		samples = c.frameSize
	}
	pcm := c.pcm[:samples*numChannels]
	c.decoded = c.up.process(c.decoded, pcm)
}

func codecRateFor(downsampling int) int {
	switch {
	case downsampling <= 1:
		return 48000
	case downsampling == 2:
		return 24000
	case downsampling == 3:
		return 16000
	case downsampling <= 5:
		return 12000
	default:
		return 8000
	}
}

// resampler is a streaming sample rate converter.
// Unlike gosamplerate.Simple, it keeps the filter state and the
// fractional position between the calls.
type resampler struct {
	src      gosamplerate.Src
	ratio    float64
	channels int
}

func newResampler(channels int, ratio float64) (*resampler, error) {
	// The same length is used for the input and the output buffers.
	bufferLen := (max(resampleChunk, int(math.Ceil(resampleChunk*ratio))) + 64) * channels
	src, err := gosamplerate.New(gosamplerate.SRC_SINC_FASTEST, channels, bufferLen)
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	return &resampler{src: src, ratio: ratio, channels: channels}, nil
}

// process appends the converted data to dst.
// A nil resampler appends the data as is.
func (r *resampler) process(dst, data []float32) []float32 {
	if r == nil {
		return append(dst, data...)
	}
	chunk := resampleChunk * r.channels
	for len(data) != 0 {
		n := min(len(data), chunk)
		out, err := r.src.Process(data[:n], r.ratio, false)
		if err != nil {
			frames := int(float64(n/r.channels) * r.ratio)
			out = make([]float32, frames*r.channels)
		}
		dst = append(dst, out...)
		data = data[n:]
	}
	return dst
}

func (r *resampler) close() error {
	return gosamplerate.Delete(r.src)
}
