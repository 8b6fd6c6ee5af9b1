package glitch

import (
	"testing"
)

func newTestRing(usedLength int) ringBuffer {
	b := newRingBuffer(1, usedLength+minHistoryMargin, minHistoryMargin)
	ramp := make([]float32, usedLength)
	for i := range ramp {
		ramp[i] = float32(i)
	}
	b.ingest(0, ramp)
	return b
}

func TestRingBufferRead(t *testing.T) {
	b := newTestRing(16)

	for i := 0; i < 16; i++ {
		if v := b.read(0, float64(i)); v != float32(i) {
			t.Fatalf("read(%d): have %v, want %v", i, v, i)
		}
	}
	for i := 0; i < 15; i++ {
		pos := float64(i) + 0.5
		want := float32(i) + 0.5
		if v := b.read(0, pos); v != want {
			t.Fatalf("read(%v): have %v, want %v", pos, v, want)
		}
	}

	// The last sample is interpolated with the first one.
	if v := b.read(0, 15.5); v != 7.5 {
		t.Fatalf("read(15.5): have %v, want 7.5", v)
	}

	// Out of range positions are wrapped.
	if v := b.read(0, 17); v != 1 {
		t.Fatalf("read(17): have %v, want 1", v)
	}
	if v := b.read(0, -1); v != 15 {
		t.Fatalf("read(-1): have %v, want 15", v)
	}
}

func TestRingBufferIngestWrap(t *testing.T) {
	b := newTestRing(16)
	if b.writePos[0] != 0 {
		t.Fatalf("write pos after a full cycle: have %d, want 0", b.writePos[0])
	}

	b.ingest(0, []float32{100, 101, 102})
	if b.writePos[0] != 3 {
		t.Fatalf("write pos: have %d, want 3", b.writePos[0])
	}
	if v := b.read(0, 2); v != 102 {
		t.Fatalf("read(2): have %v, want 102", v)
	}

	// An input longer than the used length wraps several times.
	long := make([]float32, 40)
	for i := range long {
		long[i] = float32(1000 + i)
	}
	b.ingest(0, long)
	if b.writePos[0] != (3+40)%16 {
		t.Fatalf("write pos after a long input: have %d, want %d", b.writePos[0], (3+40)%16)
	}
	// Position 10 was written last with long[39].
	if v := b.read(0, 10); v != 1039 {
		t.Fatalf("read(10): have %v, want 1039", v)
	}

	for _, v := range b.data[0][16:] {
		if v != 0 {
			t.Fatal("the safety margin was written to")
		}
	}
}

func TestRingBufferUsedLengthClamp(t *testing.T) {
	b := newRingBuffer(2, 1000+minHistoryMargin, minHistoryMargin)

	tests := []struct {
		n    int
		want int
	}{
		{-5, ringMinUsedLength},
		{0, ringMinUsedLength},
		{100, 100},
		{1000, 1000},
		{1001, 1000},
		{1 << 30, 1000},
	}
	for _, test := range tests {
		b.setUsedLength(test.n)
		if b.usedLength != test.want {
			t.Errorf("setUsedLength(%d): have %d, want %d", test.n, b.usedLength, test.want)
		}
	}

	b.setUsedLength(100)
	b.ingest(1, make([]float32, 90))
	b.setUsedLength(50)
	if b.writePos[1] != 90%50 {
		t.Fatalf("write pos after shrink: have %d, want %d", b.writePos[1], 90%50)
	}
}
