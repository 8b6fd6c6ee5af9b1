package processor

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/quasilyte/glitch"
	"github.com/quasilyte/glitch/lofi"
)

type constSource struct {
	value  float32
	frames int
}

func (s *constSource) ReadFrames(dst [][]float32) (int, error) {
	n := min(len(dst[0]), s.frames)
	for ch := range dst {
		for i := 0; i < n; i++ {
			dst[ch][i] = s.value
		}
	}
	s.frames -= n
	if s.frames == 0 {
		return n, io.EOF
	}
	return n, nil
}

func newTestProcessor(t *testing.T, params Params) *Processor {
	t.Helper()
	p, err := New(Config{
		SampleRate:   44100,
		NumChannels:  2,
		MaxBlockSize: 256,
		Seed:         99,
		Params:       &params,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParamsNormalized(t *testing.T) {
	p := Params{
		AnalogFX:     -1,
		DigitalFX:    math.NaN(),
		LofiFX:       3,
		ClockSpeed:   1,
		BufferLength: 100000,
		Repeats:      0,
		DryWet:       0.5,
		Distortion:   lofi.KindOpus,
		Codec:        lofi.KindSaturation,
		Downsampling: 100,
	}.Normalized()

	want := Params{
		AnalogFX:     0,
		DigitalFX:    0,
		LofiFX:       1,
		ClockSpeed:   MinClockSpeed,
		BufferLength: MaxBufferLength,
		Repeats:      1,
		DryWet:       0.5,
		Distortion:   lofi.KindBitcrush,
		Codec:        lofi.KindNone,
		Downsampling: MaxDownsampling,
	}
	if p != want {
		t.Fatalf("normalized params:\nhave: %+v\nwant: %+v", p, want)
	}
}

func TestEngineParamsConversion(t *testing.T) {
	p := DefaultParams()
	ep := p.engineParams(44100)
	if ep.BufferLength != 66150 {
		t.Fatalf("buffer length: have %d, want 66150", ep.BufferLength)
	}
	if ep.ClockPeriod != 44100 {
		t.Fatalf("clock period: have %d, want 44100", ep.ClockPeriod)
	}
	if ep.Subdivision != glitch.SubdivisionHalf {
		t.Fatalf("subdivision: have %s", ep.Subdivision)
	}
}

func TestParamStore(t *testing.T) {
	s := NewParamStore(DefaultParams())
	s.Update(func(p *Params) {
		p.AnalogFX += 10
		p.Repeats = 4
	})
	p := s.Load()
	if p.AnalogFX != 1 || p.Repeats != 4 {
		t.Fatalf("unexpected params after update: %+v", p)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.Update(func(p *Params) { p.DigitalFX = float64(i%10) / 10 })
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		if v := s.Load().DigitalFX; v < 0 || v > 1 {
			t.Fatalf("torn value: %v", v)
		}
	}
	<-done
}

func TestTransportStore(t *testing.T) {
	var s TransportStore
	_, v0 := s.Load()
	s.Store(glitch.Transport{Playing: true, PPQ: 4, BPM: 90})
	tr, v1 := s.Load()
	if v1 == v0 {
		t.Fatal("version did not change")
	}
	if !tr.Playing || tr.PPQ != 4 || tr.BPM != 90 {
		t.Fatalf("unexpected transport: %+v", tr)
	}
}

func TestProcessorDry(t *testing.T) {
	params := DefaultParams()
	params.DryWet = 0
	params.LofiFX = 1
	params.Codec = lofi.KindMuLaw
	p := newTestProcessor(t, params)

	for b := 0; b < 20; b++ {
		block := [][]float32{make([]float32, 256), make([]float32, 256)}
		for i := range block[0] {
			block[0][i] = float32(i) / 256
			block[1][i] = -float32(i) / 256
		}
		p.ProcessBlock(block)
		for i := range block[0] {
			if block[0][i] != float32(i)/256 || block[1][i] != -float32(i)/256 {
				t.Fatalf("block %d: the dry signal is not preserved at %d", b, i)
			}
		}
	}
}

func TestProcessorSlots(t *testing.T) {
	params := DefaultParams()
	params.LofiFX = 1
	p := newTestProcessor(t, params)

	distortion, codec := p.Slots()
	if distortion != lofi.KindBitcrush || codec != lofi.KindNone {
		t.Fatalf("initial slots: %s %s", distortion, codec)
	}

	p.Params().Update(func(p *Params) {
		p.Distortion = lofi.KindSaturation
		p.Codec = lofi.KindMuLaw
	})
	block := [][]float32{make([]float32, 128), make([]float32, 128)}
	p.ProcessBlock(block)

	distortion, codec = p.Slots()
	if distortion != lofi.KindSaturation || codec != lofi.KindMuLaw {
		t.Fatalf("updated slots: %s %s", distortion, codec)
	}
	// The first block always starts with a clock tick,
	// and a full lofi amount always enables the distortion.
	if !p.DistortionActive() {
		t.Fatal("distortion is not active")
	}
}

func TestStreamRead(t *testing.T) {
	params := DefaultParams()
	params.DryWet = 0
	p := newTestProcessor(t, params)

	src := &constSource{value: 0.5, frames: 1000}
	s := NewStream(p, src, StreamConfig{BlockSize: 256})

	buf := make([]byte, 4*300+3)
	var pcm []byte
	for {
		n, err := s.Read(buf)
		if n%4 != 0 {
			t.Fatalf("partial frame written: %d bytes", n)
		}
		pcm = append(pcm, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	if len(pcm) != 1000*4 {
		t.Fatalf("have %d bytes, want %d", len(pcm), 1000*4)
	}
	const want = 16383 // 0.5 * math.MaxInt16, truncated
	for i := 0; i < len(pcm); i += 2 {
		if v := int16(binary.LittleEndian.Uint16(pcm[i:])); v != want {
			t.Fatalf("sample %d: have %d, want %d", i/2, v, want)
		}
	}
	if pos, _ := s.Seek(0, io.SeekCurrent); pos != 4000 {
		t.Fatalf("stream pos: have %d, want 4000", pos)
	}
}

func TestStreamFloat32(t *testing.T) {
	params := DefaultParams()
	params.DryWet = 0
	p := newTestProcessor(t, params)

	s := NewStream(p, &constSource{value: 2, frames: 10}, StreamConfig{Format: FormatFloat32LE})
	buf := make([]byte, 1024)
	n, err := s.Read(buf)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, have %v", err)
	}
	if n != 10*2*4 {
		t.Fatalf("have %d bytes, want %d", n, 10*2*4)
	}
	if v := math.Float32frombits(binary.LittleEndian.Uint32(buf)); v != 1 {
		t.Fatalf("the output is not clipped: %v", v)
	}
}

type rampSource struct {
	pos    int
	frames int
}

func (s *rampSource) Rewind() { s.pos = 0 }

func (s *rampSource) ReadFrames(dst [][]float32) (int, error) {
	n := min(len(dst[0]), s.frames-s.pos)
	for ch := range dst {
		for i := 0; i < n; i++ {
			dst[ch][i] = float32(s.pos+i) / 100
		}
	}
	s.pos += n
	if s.pos == s.frames {
		return n, io.EOF
	}
	return n, nil
}

func TestPCMReaderLooping(t *testing.T) {
	s := NewPCMReader(&rampSource{frames: 5}, 1, StreamConfig{Format: FormatFloat32LE, BlockSize: 4})
	s.SetLooping(true)

	buf := make([]byte, 12*4)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(buf) {
		t.Fatalf("have %d bytes, want %d", n, len(buf))
	}
	want := []float32{0, 0.01, 0.02, 0.03, 0.04, 0, 0.01, 0.02, 0.03, 0.04, 0, 0.01}
	for i, w := range want {
		if v := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])); v != w {
			t.Fatalf("sample %d: have %v, want %v", i, v, w)
		}
	}

	s.SetLooping(false)
	for {
		_, err := s.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	empty := NewPCMReader(&rampSource{}, 2, StreamConfig{})
	empty.SetLooping(true)
	if _, err := empty.Read(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("an empty looping source must report EOF, have %v", err)
	}
}

func TestProcessorResetRepeats(t *testing.T) {
	params := DefaultParams()
	params.AnalogFX = 0.8
	params.DigitalFX = 0.6
	params.LofiFX = 0.7
	params.ClockSpeed = MinClockSpeed
	params.DryWet = 1
	p := newTestProcessor(t, params)

	render := func() [][]float32 {
		var out [][]float32
		for b := 0; b < 40; b++ {
			block := [][]float32{make([]float32, 256), make([]float32, 256)}
			for i := range block[0] {
				v := float32(math.Sin(float64(b*256+i) * 0.03))
				block[0][i] = v
				block[1][i] = -v
			}
			p.ProcessBlock(block)
			out = append(out, block...)
		}
		return out
	}

	first := render()
	p.Reset()
	second := render()
	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("block %d sample %d: have %v after reset, want %v", i/2, j, second[i][j], first[i][j])
			}
		}
	}
}
