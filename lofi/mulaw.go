package lofi

import (
	"math"

	"github.com/quasilyte/glitch"
)

const (
	muLawMu     = 255
	muLawLevels = 127 // 8-bit codes, sign excluded
)

// MuLaw is a G.711-style 8-bit mu-law companding codec.
//
// With Downsampling above 1 the codec only takes every Nth input sample
// and glides linearly between the decoded values,
// which softens the aliasing of a plain sample-and-hold.
type MuLaw struct {
	params Parameters

	lines   []glitch.Line
	counter []int
}

func NewMuLaw() *MuLaw {
	m := &MuLaw{}
	m.SetParameters(DefaultParameters())
	return m
}

func (m *MuLaw) Prepare(spec Spec) error {
	m.lines = make([]glitch.Line, spec.NumChannels)
	m.counter = make([]int, spec.NumChannels)
	m.Reset()
	return nil
}

func (m *MuLaw) Reset() {
	for i := range m.lines {
		m.lines[i] = glitch.NewLine(0, float64(m.params.Downsampling))
	}
	clear(m.counter)
}

func (m *MuLaw) Parameters() Parameters { return m.params }

func (m *MuLaw) SetParameters(p Parameters) {
	p.Downsampling = max(p.Downsampling, 1)
	m.params = p
	for i := range m.lines {
		m.lines[i].SetRampDuration(float64(p.Downsampling))
		m.counter[i] %= p.Downsampling
	}
}

func (m *MuLaw) ProcessBlock(block [][]float32) {
	hold := m.params.Downsampling
	for ch, samples := range block {
		if ch >= len(m.lines) {
			break
		}
		line := &m.lines[ch]
		counter := m.counter[ch]
		for i, v := range samples {
			if counter == 0 {
				line.SetDestination(muLawDecode(muLawEncode(float64(v))))
			}
			samples[i] = float32(line.Render())
			counter++
			if counter >= hold {
				counter = 0
			}
		}
		m.counter[ch] = counter
	}
}

// muLawEncode returns a signed code in [-127, 127].
func muLawEncode(x float64) int {
	x = math.Max(-1, math.Min(1, x))
	y := math.Log1p(muLawMu*math.Abs(x)) / math.Log1p(muLawMu)
	code := int(math.Round(y * muLawLevels))
	if x < 0 {
		return -code
	}
	return code
}

func muLawDecode(code int) float64 {
	y := float64(code) / muLawLevels
	x := (math.Pow(1+muLawMu, math.Abs(y)) - 1) / muLawMu
	if y < 0 {
		return -x
	}
	return x
}
