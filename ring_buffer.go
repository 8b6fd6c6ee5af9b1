package glitch

import (
	"math"
)

// ringMinUsedLength is the smallest usable history size.
// It keeps the modulo arithmetic of the readers well-defined.
const ringMinUsedLength = 4

// ringBuffer holds per-channel audio history.
//
// The storage is allocated once, on prepare. Only the first usedLength
// samples of every channel participate in writes and reads; the rest
// is a safety margin that lets usedLength grow without reallocations.
type ringBuffer struct {
	data       [][]float32
	writePos   []int
	capacity   int
	usedLength int
	margin     int
}

func newRingBuffer(numChannels, capacity, margin int) ringBuffer {
	b := ringBuffer{
		data:     make([][]float32, numChannels),
		writePos: make([]int, numChannels),
		capacity: capacity,
		margin:   margin,
	}
	for i := range b.data {
		b.data[i] = make([]float32, capacity)
	}
	b.setUsedLength(b.maxUsedLength())
	return b
}

func (b *ringBuffer) maxUsedLength() int {
	return clampMin(b.capacity-b.margin, ringMinUsedLength)
}

// setUsedLength changes the active history size.
// Write cursors are wrapped into the new range.
// The stored samples are kept as is.
func (b *ringBuffer) setUsedLength(n int) {
	b.usedLength = clamp(n, ringMinUsedLength, b.maxUsedLength())
	for ch, w := range b.writePos {
		b.writePos[ch] = w % b.usedLength
	}
}

// ingest appends samples to the channel history.
// The cursor wraps at usedLength, so only the last usedLength
// samples of a long input survive.
func (b *ringBuffer) ingest(ch int, samples []float32) {
	buf := b.data[ch][:b.usedLength]
	w := b.writePos[ch]
	for len(samples) > 0 {
		n := copy(buf[w:], samples)
		samples = samples[n:]
		w += n
		if w >= len(buf) {
			w = 0
		}
	}
	b.writePos[ch] = w
}

// read returns the linearly interpolated sample at a fractional position.
// Positions outside [0, usedLength) are wrapped.
func (b *ringBuffer) read(ch int, pos float64) float32 {
	n := b.usedLength
	floor := math.Floor(pos)
	frac := pos - floor
	i0 := int(floor) % n
	if i0 < 0 {
		i0 += n
	}
	i1 := i0 + 1
	if i1 >= n {
		i1 = 0
	}
	buf := b.data[ch]
	v0 := buf[i0]
	v1 := buf[i1]
	return v0 + float32(frac)*(v1-v0)
}

func (b *ringBuffer) clear() {
	for ch := range b.data {
		clear(b.data[ch])
		b.writePos[ch] = 0
	}
}
