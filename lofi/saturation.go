package lofi

import (
	"math"
)

// Saturator is a normalized tanh waveshaper.
// The output peak stays at 1 for a full-scale input regardless of the drive.
type Saturator struct {
	params Parameters
	gain   float64
	norm   float64
}

func NewSaturator() *Saturator {
	s := &Saturator{}
	s.SetParameters(DefaultParameters())
	return s
}

func (s *Saturator) Prepare(spec Spec) error { return nil }

func (s *Saturator) Reset() {}

func (s *Saturator) Parameters() Parameters { return s.params }

func (s *Saturator) SetParameters(p Parameters) {
	if !(p.Drive > 0) {
		p.Drive = 1e-3
	}
	s.params = p
	s.gain = p.Drive
	s.norm = 1 / math.Tanh(p.Drive)
}

func (s *Saturator) ProcessBlock(block [][]float32) {
	for _, samples := range block {
		for i, v := range samples {
			samples[i] = float32(math.Tanh(s.gain*float64(v)) * s.norm)
		}
	}
}
