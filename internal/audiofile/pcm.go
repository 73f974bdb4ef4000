package audiofile

import (
	"math"

	"github.com/ossrs/go-oryx-lib/errors"
)

// pcmCodec converts between container integers and normalized floats. The
// scale is a power of two so an unprocessed round trip is bit exact.
type pcmCodec struct {
	bitDepth  int
	unsigned8 bool
	scale     float64
	min, max  int
}

func newPCMCodec(bitDepth int, unsigned8 bool) (*pcmCodec, error) {
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, errors.Errorf("unsupported bit depth %v", bitDepth)
	}

	full := 1 << (bitDepth - 1)
	return &pcmCodec{
		bitDepth:  bitDepth,
		unsigned8: unsigned8 && bitDepth == 8,
		scale:     float64(full),
		min:       -full,
		max:       full - 1,
	}, nil
}

func (v *pcmCodec) toFloat(s int) float64 {
	if v.unsigned8 {
		s -= 128
	}
	return float64(s) / v.scale
}

func (v *pcmCodec) toInt(f float64) int {
	s := int(math.Round(f * v.scale))
	if s < v.min {
		s = v.min
	} else if s > v.max {
		s = v.max
	}
	if v.unsigned8 {
		s += 128
	}
	return s
}
