package processor

import (
	"github.com/quasilyte/glitch/lofi"
	"github.com/quasilyte/glitch/lofi/opuscodec"
)

// newSlotProcessor creates an unprepared processor of the given kind.
// KindNone results in nil.
func newSlotProcessor(kind lofi.Kind) lofi.Processor {
	switch kind {
	case lofi.KindBitcrush:
		return lofi.NewBitcrusher()
	case lofi.KindSaturation:
		return lofi.NewSaturator()
	case lofi.KindMuLaw:
		return lofi.NewMuLaw()
	case lofi.KindOpus:
		return opuscodec.New()
	default:
		return nil
	}
}
