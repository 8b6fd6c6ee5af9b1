package lofi

import (
	"math"
)

// Bitcrusher reduces the amplitude resolution and holds
// every sample for Downsampling frames.
type Bitcrusher struct {
	params Parameters
	step   float32

	held    []float32
	counter []int
}

func NewBitcrusher() *Bitcrusher {
	b := &Bitcrusher{}
	b.SetParameters(DefaultParameters())
	return b
}

func (b *Bitcrusher) Prepare(spec Spec) error {
	b.held = make([]float32, spec.NumChannels)
	b.counter = make([]int, spec.NumChannels)
	return nil
}

func (b *Bitcrusher) Reset() {
	clear(b.held)
	clear(b.counter)
}

func (b *Bitcrusher) Parameters() Parameters { return b.params }

func (b *Bitcrusher) SetParameters(p Parameters) {
	p.BitDepth = math.Max(p.BitDepth, 1)
	p.Downsampling = max(p.Downsampling, 1)
	b.params = p
	b.step = float32(1 / math.Pow(2, p.BitDepth))
	for i, c := range b.counter {
		b.counter[i] = c % p.Downsampling
	}
}

func (b *Bitcrusher) ProcessBlock(block [][]float32) {
	hold := b.params.Downsampling
	for ch, samples := range block {
		if ch >= len(b.held) {
			break
		}
		held := b.held[ch]
		counter := b.counter[ch]
		for i, v := range samples {
			if counter == 0 {
				held = quantize(v, b.step)
			}
			samples[i] = held
			counter++
			if counter >= hold {
				counter = 0
			}
		}
		b.held[ch] = held
		b.counter[ch] = counter
	}
}

// quantize truncates v towards zero to a multiple of step.
func quantize(v, step float32) float32 {
	return v - float32(math.Mod(float64(v), float64(step)))
}
