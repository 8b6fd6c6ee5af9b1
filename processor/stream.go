package processor

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Source provides the input audio for a Stream.
type Source interface {
	// ReadFrames fills the per-channel slices of dst with the next frames.
	// All dst slices have the same length.
	// It returns the number of frames written and io.EOF once the source is drained.
	ReadFrames(dst [][]float32) (int, error)
}

// Rewinder is implemented by sources that can restart from the beginning.
// See Stream.SetLooping.
type Rewinder interface {
	Rewind()
}

// SampleFormat is a Stream PCM encoding.
type SampleFormat int

const (
	// FormatInt16LE is 16-bit little endian PCM,
	// what ebiten/audio package expects.
	FormatInt16LE SampleFormat = iota

	// FormatFloat32LE is 32-bit little endian float PCM.
	FormatFloat32LE
)

func (f SampleFormat) bytesPerSample() int {
	if f == FormatFloat32LE {
		return 4
	}
	return 2
}

// StreamConfig configures a Stream.
type StreamConfig struct {
	// Format selects the produced PCM encoding.
	//
	// A zero value means 16-bit integers.
	Format SampleFormat

	// BlockSize is the number of frames processed at once.
	//
	// A zero value will use 512.
	BlockSize int
}

// Stream pulls the audio from a Source, runs it through a Processor
// and produces interleaved PCM bytes.
//
// Use Stream as an io.Reader argument for audio players like
// audio.Context.NewPlayer() of Ebitengine or oto.Context.NewPlayer().
type Stream struct {
	proc   *Processor
	src    Source
	config StreamConfig

	block      [][]float32
	frameBytes int
	bytePos    int

	settings streamSettings
}

type streamSettings struct {
	volumeScaling float64
	looping       bool
}

func NewStream(p *Processor, src Source, config StreamConfig) *Stream {
	return newStream(p, src, p.NumChannels(), config)
}

// NewPCMReader is like NewStream, but the source frames are encoded as is.
// It's useful for playing back an already rendered audio.
func NewPCMReader(src Source, numChannels int, config StreamConfig) *Stream {
	return newStream(nil, src, numChannels, config)
}

func newStream(p *Processor, src Source, numChannels int, config StreamConfig) *Stream {
	if config.BlockSize == 0 {
		config.BlockSize = 512
	}
	s := &Stream{
		proc:       p,
		src:        src,
		config:     config,
		block:      make([][]float32, numChannels),
		frameBytes: numChannels * config.Format.bytesPerSample(),
		settings: streamSettings{
			volumeScaling: 1,
		},
	}
	for i := range s.block {
		s.block[i] = make([]float32, config.BlockSize)
	}
	return s
}

// SetVolume adjusts the output volume scaling.
// The default value is 1; a value of 0 disables the sound.
// The value is clamped in [0, 1].
func (s *Stream) SetVolume(v float64) {
	s.settings.volumeScaling = clampValue(v, 0, 1)
}

// SetLooping makes the stream restart its source instead of reporting io.EOF.
// It only has effect if the source implements Rewinder.
func (s *Stream) SetLooping(v bool) {
	s.settings.looping = v
}

// Seek partially implements io.Seeker.
// Only (0, SeekCurrent) is supported: it reports the byte pos inside the stream.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent && offset == 0 {
		return int64(s.bytePos), nil
	}
	return 0, errors.New("unsupported Seek call")
}

// Read puts next PCM bytes into provided slice.
//
// Only whole frames are written: if there is a tail in b that can't
// fit a frame, n<len(b) is returned.
//
// When the source has no more frames, io.EOF error is returned.
func (s *Stream) Read(b []byte) (int, error) {
	written := 0
	for {
		frames := min(len(b)/s.frameBytes, s.config.BlockSize)
		if frames == 0 {
			break
		}
		block := s.block
		for ch := range block {
			block[ch] = block[ch][:frames]
		}
		n, err := s.src.ReadFrames(block)
		if n > 0 {
			for ch := range block {
				block[ch] = block[ch][:n]
			}
			if s.proc != nil {
				s.proc.ProcessBlock(block)
			}
			s.encode(b, block)
			written += n * s.frameBytes
			b = b[n*s.frameBytes:]
		}
		if err != nil {
			if errors.Is(err, io.EOF) && s.settings.looping {
				if r, ok := s.src.(Rewinder); ok {
					r.Rewind()
					if n == 0 && written == 0 {
						// An empty source would spin forever.
						return 0, io.EOF
					}
					continue
				}
			}
			s.bytePos += written
			if errors.Is(err, io.EOF) {
				return written, io.EOF
			}
			return written, err
		}
		if n == 0 {
			break
		}
	}
	s.bytePos += written
	return written, nil
}

func (s *Stream) encode(b []byte, block [][]float32) {
	vol := float32(s.settings.volumeScaling)
	n := len(block[0])
	offset := 0
	for i := 0; i < n; i++ {
		for ch := range block {
			v := block[ch][i] * vol
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			if s.config.Format == FormatFloat32LE {
				binary.LittleEndian.PutUint32(b[offset:], math.Float32bits(v))
				offset += 4
			} else {
				binary.LittleEndian.PutUint16(b[offset:], uint16(int16(v*math.MaxInt16)))
				offset += 2
			}
		}
	}
}
