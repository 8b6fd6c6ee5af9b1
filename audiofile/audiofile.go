// Package audiofile loads and saves audio files as in-memory tapes.
package audiofile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dh1tw/gosamplerate"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Tape is a non-interleaved float32 audio clip.
type Tape struct {
	SampleRate int
	Channels   [][]float32
}

// NewTape allocates an empty tape with room for capacity frames.
func NewTape(sampleRate, numChannels, capacity int) *Tape {
	t := &Tape{
		SampleRate: sampleRate,
		Channels:   make([][]float32, numChannels),
	}
	for i := range t.Channels {
		t.Channels[i] = make([]float32, 0, capacity)
	}
	return t
}

func (t *Tape) NumFrames() int {
	if len(t.Channels) == 0 {
		return 0
	}
	return len(t.Channels[0])
}

// Append adds the block frames to the end of the tape.
// Extra block channels are ignored.
func (t *Tape) Append(block [][]float32) {
	for ch := range t.Channels {
		if ch < len(block) {
			t.Channels[ch] = append(t.Channels[ch], block[ch]...)
		}
	}
}

// Duration reports the tape play time.
func (t *Tape) Duration() time.Duration {
	if t.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(t.NumFrames()) / float64(t.SampleRate) * float64(time.Second))
}

// Load decodes a WAV or MP3 file.
// The result is resampled to sampleRate unless it's 0.
//
// logger can be nil.
func Load(path string, sampleRate int, logger *slog.Logger) (*Tape, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var interleaved []float32
	var numChannels int
	var fileRate int
	startTime := time.Now()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		interleaved, numChannels, fileRate, err = decodeWAV(f)
	case ".mp3":
		interleaved, numChannels, fileRate, err = decodeMP3(f)
	default:
		return nil, fmt.Errorf("unsupported audio file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	logger.Debug("decoded audio file",
		"path", path,
		"sampleRate", fileRate,
		"nchannels", numChannels,
		"nsamples", len(interleaved),
		"elapsed", time.Since(startTime),
	)

	if sampleRate != 0 && sampleRate != fileRate && len(interleaved) != 0 {
		startTime = time.Now()
		interleaved, err = gosamplerate.Simple(interleaved, float64(sampleRate)/float64(fileRate), numChannels, gosamplerate.SRC_SINC_BEST_QUALITY)
		if err != nil {
			return nil, fmt.Errorf("resample %s: %w", path, err)
		}
		logger.Debug("resampled audio file", "path", path, "from", fileRate, "to", sampleRate, "elapsed", time.Since(startTime))
		fileRate = sampleRate
	}

	t := NewTape(fileRate, numChannels, len(interleaved)/numChannels)
	for ch := range t.Channels {
		t.Channels[ch] = t.Channels[ch][:len(interleaved)/numChannels]
	}
	for i, v := range interleaved {
		t.Channels[i%numChannels][i/numChannels] = v
	}
	return t, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, int, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, 0, 0, errors.New("invalid WAV file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	bitDepth := int(decoder.SampleBitDepth())
	if bitDepth == 0 {
		return nil, 0, 0, errors.New("unknown WAV bit depth")
	}
	numChannels := buf.Format.NumChannels
	if numChannels < 1 {
		return nil, 0, 0, errors.New("invalid WAV channel count")
	}

	factor := math.Pow(2, float64(bitDepth-1))
	samples := make([]float32, len(buf.Data)-len(buf.Data)%numChannels)
	for i := range samples {
		samples[i] = float32(float64(buf.Data[i]) / factor)
	}
	return samples, numChannels, buf.Format.SampleRate, nil
}

func decodeMP3(r io.Reader) ([]float32, int, int, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, err
	}
	// The decoder always produces 16-bit LE stereo.
	const numChannels = 2
	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, 0, err
	}
	n := len(data) / 2
	n -= n % numChannels
	samples := make([]float32, n)
	for i := range samples {
		v := int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		samples[i] = float32(v) / 32768
	}
	return samples, numChannels, decoder.SampleRate(), nil
}

// WriteWAV encodes the tape as a 16-bit PCM WAV file.
func (t *Tape) WriteWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	numChannels := len(t.Channels)
	if numChannels == 0 {
		return errors.New("can't write a tape without channels")
	}
	enc := wav.NewEncoder(f, t.SampleRate, 16, numChannels, 1)
	n := t.NumFrames()
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  t.SampleRate,
		},
		Data:           make([]int, n*numChannels),
		SourceBitDepth: 16,
	}
	for i := 0; i < n; i++ {
		for ch, samples := range t.Channels {
			v := math.Max(-1, math.Min(1, float64(samples[i])))
			buf.Data[i*numChannels+ch] = int(math.Round(v * 32767))
		}
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return f.Close()
}

// Source returns a frame reader over the tape.
// A looping source never reports io.EOF.
func (t *Tape) Source(loop bool) *Source {
	return &Source{tape: t, loop: loop}
}

// Source reads the tape frames sequentially.
type Source struct {
	tape *Tape
	pos  int
	loop bool
}

// ReadFrames implements processor.Source.
// Channels missing in the tape are filled by the last tape channel,
// so a mono file can feed a stereo processor.
func (s *Source) ReadFrames(dst [][]float32) (int, error) {
	total := s.tape.NumFrames()
	if total == 0 || len(dst) == 0 {
		return 0, io.EOF
	}
	want := len(dst[0])
	written := 0
	for written < want {
		if s.pos >= total {
			if !s.loop {
				return written, io.EOF
			}
			s.pos = 0
		}
		n := min(want-written, total-s.pos)
		for ch := range dst {
			src := s.tape.Channels[min(ch, len(s.tape.Channels)-1)]
			copy(dst[ch][written:written+n], src[s.pos:s.pos+n])
		}
		written += n
		s.pos += n
	}
	return written, nil
}

// Rewind restarts the reading from the tape beginning.
func (s *Source) Rewind() { s.pos = 0 }
