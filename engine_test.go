package glitch

import (
	"math"
	"math/rand/v2"
	"testing"
)

func quietParams(bufferLength int) Params {
	return Params{
		AnalogFX:     0,
		DigitalFX:    0,
		BufferLength: bufferLength,
		ClockPeriod:  100,
		Repeats:      1,
	}
}

func newTestEngine(t *testing.T, config EngineConfig) *Engine {
	t.Helper()
	if config.Seed == 0 {
		config.Seed = 42
	}
	e, err := NewEngine(config)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func makeBlock(numChannels, n int, gen func(ch, i int) float32) [][]float32 {
	block := make([][]float32, numChannels)
	for ch := range block {
		block[ch] = make([]float32, n)
		for i := range block[ch] {
			block[ch][i] = gen(ch, i)
		}
	}
	return block
}

func copyBlock(block [][]float32) [][]float32 {
	dst := make([][]float32, len(block))
	for i := range block {
		dst[i] = append([]float32(nil), block[i]...)
	}
	return dst
}

func TestEnginePassThrough(t *testing.T) {
	e := newTestEngine(t, EngineConfig{
		NumChannels:     2,
		MaxBlockSize:    64,
		MaxBufferLength: 1000,
	})
	e.SetParams(quietParams(1000))

	// With no character at all the tape runs at the unit speed
	// right behind the recording head.
	offset := 0
	for _, blockSize := range []int{64, 64, 10, 200, 1, 999, 64} {
		block := makeBlock(2, blockSize, func(ch, i int) float32 {
			return float32(offset+i) + float32(ch)*0.25
		})
		input := copyBlock(block)
		e.Process(block)
		for ch := range block {
			for i := range block[ch] {
				if block[ch][i] != input[ch][i] {
					t.Fatalf("block at %d, ch%d[%d]: have %v, want %v", offset, ch, i, block[ch][i], input[ch][i])
				}
			}
		}
		offset += blockSize
	}
}

func TestEngineDeterminism(t *testing.T) {
	config := EngineConfig{
		SampleRate:      44100,
		NumChannels:     2,
		MaxBufferLength: 20000,
		Seed:            777,
	}
	params := Params{
		AnalogFX:     0.8,
		DigitalFX:    0.6,
		BufferLength: 8000,
		ClockPeriod:  700,
		Repeats:      1,
	}

	render := func(e *Engine) [][]float32 {
		noise := rand.New(rand.NewPCG(5, 5))
		var out [][]float32
		for b := 0; b < 40; b++ {
			block := makeBlock(2, 512, func(ch, i int) float32 {
				return float32(noise.Float64()*2 - 1)
			})
			e.Process(block)
			out = append(out, block...)
		}
		return out
	}

	e1 := newTestEngine(t, config)
	e1.SetParams(params)
	e2 := newTestEngine(t, config)
	e2.SetParams(params)

	out1 := render(e1)
	out2 := render(e2)
	e1.Reset()
	out3 := render(e1)

	for i := range out1 {
		for j := range out1[i] {
			if out1[i][j] != out2[i][j] {
				t.Fatalf("engines with the same seed diverged at [%d][%d]", i, j)
			}
			if out1[i][j] != out3[i][j] {
				t.Fatalf("reset engine diverged at [%d][%d]", i, j)
			}
			if math.IsNaN(float64(out1[i][j])) {
				t.Fatalf("NaN at [%d][%d]", i, j)
			}
		}
	}
}

func TestEngineTickEvents(t *testing.T) {
	e := newTestEngine(t, EngineConfig{
		SampleRate:  1000,
		NumChannels: 1,
	})
	e.SetParams(quietParams(500))

	var ticks []Event
	e.SetEventHandler(func(ev Event) {
		if ev.Kind == EventTick {
			ticks = append(ticks, ev)
		}
	})
	e.Process(makeBlock(1, 250, func(ch, i int) float32 { return 0 }))

	if len(ticks) != 3 {
		t.Fatalf("have %d ticks, want 3", len(ticks))
	}
	for i, ev := range ticks {
		if ev.TickEventData() != i {
			t.Errorf("tick[%d]: have index %d", i, ev.TickEventData())
		}
		if ev.Time != float64(i)*0.1 {
			t.Errorf("tick[%d]: have time %v, want %v", i, ev.Time, float64(i)*0.1)
		}
		if ev.Channel != -1 {
			t.Errorf("tick[%d]: have channel %d, want -1", i, ev.Channel)
		}
	}
}

func TestEngineHostClock(t *testing.T) {
	// 120 BPM at this rate gives a quarter note every 16384 samples,
	// the per-sample PPQ step is exact.
	e := newTestEngine(t, EngineConfig{
		SampleRate:  32768,
		NumChannels: 1,
	})
	params := quietParams(1000)
	params.ClockMode = ClockHost
	params.Subdivision = SubdivisionQuarter
	e.SetParams(params)

	var frames []int64
	e.SetEventHandler(func(ev Event) {
		if ev.Kind == EventTick {
			frames = append(frames, int64(ev.Time*32768))
		}
	})

	silence := func() [][]float32 { return makeBlock(1, 1000, func(ch, i int) float32 { return 0 }) }

	// A stopped transport produces no ticks.
	e.SetTransport(Transport{Playing: false, PPQ: 0, BPM: 120})
	e.Process(silence())
	if len(frames) != 0 {
		t.Fatalf("have %d ticks while stopped", len(frames))
	}

	e.SetTransport(Transport{Playing: true, PPQ: 0, BPM: 120})
	for i := 0; i < 40; i++ {
		e.Process(silence())
	}
	want := []int64{1000, 1000 + 16384, 1000 + 2*16384}
	if len(frames) != len(want) {
		t.Fatalf("have ticks at %v, want %v", frames, want)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("have ticks at %v, want %v", frames, want)
		}
	}
}

func TestEngineReversePlayback(t *testing.T) {
	b := newTestRing(16)
	ch := engineChannel{
		pos:   5,
		speed: NewLine(1, 10),
		stop:  NewLine(1, 10),
	}

	want := []float32{5, 4, 3, 2, 1, 0, 15, 14, 13}
	for i, w := range want {
		if v := ch.nextSample(&b, -1, 5); v != w {
			t.Fatalf("sample[%d]: have %v, want %v", i, v, w)
		}
		if ch.pos < 0 || ch.pos >= 16 {
			t.Fatalf("sample[%d]: cursor %v is out of range", i, ch.pos)
		}
	}
}

func TestEngineTapeStopRecovery(t *testing.T) {
	b := newTestRing(100)
	ch := engineChannel{
		speed: NewLine(1, 10),
		stop:  NewLine(1, 10),
	}
	ch.stop.SetDestination(0)

	for i := 0; i < 10; i++ {
		ch.nextSample(&b, 1, 5)
	}
	if ch.stop.Value() != 0 {
		t.Fatalf("stop line: have %v, want 0", ch.stop.Value())
	}
	if ch.stop.Destination() != 1 {
		t.Fatalf("stop line is not recovering, destination %v", ch.stop.Destination())
	}
	stoppedAt := ch.pos

	for i := 0; i < 5; i++ {
		ch.nextSample(&b, 1, 5)
	}
	if ch.stop.Value() != 1 {
		t.Fatalf("stop line: have %v after the recovery ramp, want 1", ch.stop.Value())
	}
	if ch.pos <= stoppedAt {
		t.Fatalf("the tape did not move after the recovery")
	}
}

func TestEngineLoopContainsCursor(t *testing.T) {
	b := newTestRing(1000)
	ch := engineChannel{
		pos:   900,
		speed: NewLine(1.5, 10),
		stop:  NewLine(1, 10),
		mode:  SourceLoop,
		loop:  newRandomLoop(newTestRand(), 1000, 300),
	}

	for _, direction := range []float64{1, -1} {
		for i := 0; i < 3000; i++ {
			ch.nextSample(&b, direction, 5)
			r := ch.loop.current
			if !r.contains(ch.pos) {
				t.Fatalf("direction=%v sample[%d]: cursor %v is outside of %+v", direction, i, ch.pos, r)
			}
		}
	}
}

func TestEngineRepeatMode(t *testing.T) {
	const bufferLength = 400
	b := newTestRing(bufferLength)
	ch := engineChannel{
		pos:      123,
		speed:    NewLine(1, 10),
		stop:     NewLine(1, 10),
		mode:     SourceRepeat,
		repeater: newSegmentStepper(newTestRand(), bufferLength, 4, false),
	}

	// 4 segments of 100 samples, each played 4 times.
	// The last segment is never visited.
	for k := 0; k < 2400; k++ {
		pass := k / 100
		want := float32(100*((pass/4)%3) + k%100)
		if v := ch.nextSample(&b, 1, 5); v != want {
			t.Fatalf("sample[%d]: have %v, want %v", k, v, want)
		}
	}
}

func TestEngineSkipMode(t *testing.T) {
	const bufferLength = 4000
	b := newRingBuffer(1, bufferLength+minHistoryMargin, minHistoryMargin)
	b.setUsedLength(bufferLength)
	b.ingest(0, make([]float32, bufferLength))
	ch := engineChannel{
		speed:   NewLine(1, 10),
		stop:    NewLine(1, 10),
		mode:    SourceSkip,
		skipper: newSegmentStepper(newTestRand(), bufferLength, 4, true),
	}

	// Segments of 1000 samples; every jump lands on a segment start.
	for k := 0; k < 20000; k++ {
		ch.nextSample(&b, 1, 5)
		if ch.skipCounter == 1 {
			start := ch.skipRegion.start
			if start%1000 != 0 || start >= 3000 {
				t.Fatalf("sample[%d]: unexpected segment start %d", k, start)
			}
			if ch.pos != float64(start+1) {
				t.Fatalf("sample[%d]: cursor %v, want %d", k, ch.pos, start+1)
			}
		}
	}
}

func TestEngineRepeatsParam(t *testing.T) {
	e := newTestEngine(t, EngineConfig{NumChannels: 2})

	var changes int
	e.SetEventHandler(func(ev Event) {
		if ev.Kind == EventModeChange {
			_, mode := ev.ModeEventData()
			if mode != SourceRepeat {
				t.Fatalf("ch%d: have mode %s, want repeat", ev.Channel, mode)
			}
			changes++
		}
	})

	params := quietParams(1000)
	params.Repeats = 8
	e.SetParams(params)
	if changes != 2 {
		t.Fatalf("have %d mode changes, want 2", changes)
	}
	for ch := 0; ch < 2; ch++ {
		if e.ChannelMode(ch) != SourceRepeat {
			t.Fatalf("ch%d: have mode %s", ch, e.ChannelMode(ch))
		}
	}
}

func TestEngineParamsClamp(t *testing.T) {
	e := newTestEngine(t, EngineConfig{MaxBufferLength: 5000})
	e.SetParams(Params{
		AnalogFX:     2,
		DigitalFX:    -1,
		BufferLength: 1 << 30,
		ClockPeriod:  -5,
		ClockMode:    ClockMode(10),
		Subdivision:  Subdivision(99),
		Repeats:      1000,
	})

	p := e.Params()
	want := Params{
		AnalogFX:     1,
		DigitalFX:    0,
		BufferLength: 5000,
		ClockPeriod:  1,
		ClockMode:    ClockInternal,
		Subdivision:  DefaultSubdivision,
		Repeats:      MaxRepeats,
	}
	if p != want {
		t.Fatalf("clamped params:\nhave: %+v\nwant: %+v", p, want)
	}
	if e.MaxBufferLength() != 5000 {
		t.Fatalf("max buffer length: have %d, want 5000", e.MaxBufferLength())
	}
}

func TestEngineExtraChannels(t *testing.T) {
	e := newTestEngine(t, EngineConfig{NumChannels: 1})
	e.SetParams(quietParams(1000))

	block := makeBlock(3, 64, func(ch, i int) float32 { return 1 })
	e.Process(block)
	for i := range block[0] {
		if block[0][i] != 1 {
			t.Fatalf("ch0[%d]: have %v, want 1", i, block[0][i])
		}
		if block[1][i] != 0 || block[2][i] != 0 {
			t.Fatalf("extra channels are not silenced at %d", i)
		}
	}
}

func TestEnginePrepareErrors(t *testing.T) {
	configs := []EngineConfig{
		{NumChannels: -1},
		{MaxBlockSize: -1},
		{MaxBufferLength: -1},
	}
	for _, config := range configs {
		if _, err := NewEngine(config); err == nil {
			t.Errorf("%+v: expected an error", config)
		}
	}
}

func TestEngineInfo(t *testing.T) {
	e := newTestEngine(t, EngineConfig{NumChannels: 2, MaxBufferLength: 1000, MaxBlockSize: 256})
	info := e.GetInfo()
	if info.HistoryCapacity != 1000+minHistoryMargin {
		t.Fatalf("capacity: have %d, want %d", info.HistoryCapacity, 1000+minHistoryMargin)
	}
	if info.MemoryUsage < uint(2*4*info.HistoryCapacity) {
		t.Fatalf("memory usage %d is too small", info.MemoryUsage)
	}
	if info.Seed != 42 {
		t.Fatalf("seed: have %d, want 42", info.Seed)
	}
}

func TestMakeCharacter(t *testing.T) {
	tests := []struct {
		analog  float64
		digital float64
		want    character
	}{
		{0, 0, character{}},
		{0.2, 0, character{bendProb: 0.2, bendDepth: 2, reverseProb: 0.2 * 1.5, stopProb: 0.4 * math.Pow(0.2, 1.5)}},
		{1, 1, character{bendProb: 1, bendDepth: 4, reverseProb: 0.8, stopProb: 0.4, loopProb: 1}},
	}

	for _, test := range tests {
		have := makeCharacter(test.analog, test.digital)
		if have != test.want {
			t.Errorf("makeCharacter(%v, %v):\nhave: %+v\nwant: %+v", test.analog, test.digital, have, test.want)
		}
	}

	c := makeCharacter(0, 0.5)
	if c.loopProb <= 0 || c.skipProb <= 0 || c.loopProb+c.skipProb >= 1 {
		t.Fatalf("unexpected digital probabilities: %+v", c)
	}
}
