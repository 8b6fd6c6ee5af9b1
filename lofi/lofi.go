// Package lofi implements the fixed-function degradation stages
// that are applied after the glitch engine: bit reduction, saturation,
// companding codecs and the dry/wet mixing.
//
// All processors work in place on non-interleaved float32 blocks
// and are meant to be driven from the audio thread.
package lofi

import (
	"fmt"
)

// Processor is a block-based audio stage.
type Processor interface {
	// Prepare allocates the processor state for the given audio configuration.
	// It resets the processor.
	Prepare(spec Spec) error

	// ProcessBlock transforms the block in place.
	ProcessBlock(block [][]float32)

	// Reset clears the processing history.
	Reset()

	Parameters() Parameters
	SetParameters(p Parameters)
}

// Spec describes the audio stream a processor works with.
type Spec struct {
	SampleRate   float64
	MaxBlockSize int
	NumChannels  int
}

// Parameters is a union of all degradation stage controls.
// Every processor reads only the fields it needs.
type Parameters struct {
	// BitDepth is the quantization resolution in bits.
	// Fractional values are allowed.
	BitDepth float64

	// Downsampling is a sample-and-hold factor: 1 keeps the rate,
	// 2 halves it and so on.
	Downsampling int

	// Drive is the saturation input gain.
	Drive float64

	// Bitrate is the lossy codec target bitrate in bits per second.
	Bitrate int
}

// DefaultParameters returns a mild degradation setup.
func DefaultParameters() Parameters {
	return Parameters{
		BitDepth:     12,
		Downsampling: 1,
		Drive:        3,
		Bitrate:      16000,
	}
}

// Kind enumerates the available processors.
type Kind int

const (
	KindNone Kind = iota
	KindBitcrush
	KindSaturation
	KindMuLaw
	KindOpus

	numKinds
)

var kindNames = [numKinds]string{
	KindNone:       "none",
	KindBitcrush:   "bitcrush",
	KindSaturation: "saturation",
	KindMuLaw:      "mulaw",
	KindOpus:       "opus",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || k >= numKinds {
		return nil, fmt.Errorf("invalid processor kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKind converts a Kind.String() result back to a Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return KindNone, fmt.Errorf("unknown processor kind %q", s)
}

// IsDistortion reports whether k is a tick-randomized distortion stage.
func (k Kind) IsDistortion() bool {
	return k == KindBitcrush || k == KindSaturation
}

// IsCodec reports whether k is a companding or a lossy codec stage.
func (k Kind) IsCodec() bool {
	return k == KindNone || k == KindMuLaw || k == KindOpus
}
