package lofi

// Mixer blends the processed signal with a copy of the input.
//
// Call PushDry before processing the block and MixWet after it.
type Mixer struct {
	dry [][]float32
}

func NewMixer(spec Spec) *Mixer {
	m := &Mixer{dry: make([][]float32, spec.NumChannels)}
	for i := range m.dry {
		m.dry[i] = make([]float32, 0, spec.MaxBlockSize)
	}
	return m
}

// PushDry remembers the unprocessed block.
func (m *Mixer) PushDry(block [][]float32) {
	for ch, samples := range block {
		if ch >= len(m.dry) {
			break
		}
		m.dry[ch] = append(m.dry[ch][:0], samples...)
	}
}

// MixWet replaces the block with a linear dry/wet blend.
// wet=0 restores the dry signal, wet=1 keeps the block as is.
func (m *Mixer) MixWet(block [][]float32, wet float64) {
	wet = max(0, min(wet, 1))
	w := float32(wet)
	d := float32(1 - wet)
	for ch, samples := range block {
		if ch >= len(m.dry) {
			break
		}
		dry := m.dry[ch]
		n := min(len(samples), len(dry))
		for i := 0; i < n; i++ {
			samples[i] = dry[i]*d + samples[i]*w
		}
	}
}
